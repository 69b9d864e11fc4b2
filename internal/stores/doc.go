// Package stores persists the per-email OTP state record: the pending code
// and the rate-limit history live in one versioned, binary-encoded value so
// that every gating decision is a single compare-and-swap.
//
// # Design
//
// [EmailStateStore.Load] returns the decoded record together with the raw
// bytes it was decoded from. Callers mutate the record and hand both back to
// [EmailStateStore.Swap], which only writes when the stored bytes are still
// the ones that were read. A losing writer reloads and retries.
//
// Unknown or corrupt records decode as an empty state; the raw bytes are
// still returned so the next successful write replaces them.
//
// # Architecture boundaries
//
// This package owns persistence and encoding of [EmailState]. It does NOT
// generate codes, compare secrets, or decide whether a request is allowed;
// those belong to the engine and to internal/limiters.
//
// # What this package must NOT do
//
//   - Import adminauth.
//   - Persist plaintext OTP codes. Only SHA-256 digests are stored.
package stores
