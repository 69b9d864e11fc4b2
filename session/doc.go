// Package session persists admin session records and encodes them in a
// compact, versioned binary format.
//
// # Binary encoding
//
// The first byte of every record is the schema version. Decoders reject
// versions they do not know; new versions append fields and never
// reinterpret old ones.
//
// # Architecture boundaries
//
// This package owns the [Store] (record persistence over a [store.Store]) and
// the [Session] model. It does NOT sign or parse tokens and does not decide
// whether a session is acceptable; the engine does that.
//
// # What this package must NOT do
//
//   - Import adminauth or jwt (no upward imports).
//   - Store the client token itself. Only the session id is persisted.
package session
