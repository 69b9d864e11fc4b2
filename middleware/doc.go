// Package middleware guards HTTP routes with an admin session.
//
// [Guard] wraps a net/http handler and [RequireSession] is the gin
// equivalent. Both read the token from "Authorization: Bearer" or, failing
// that, the session cookie, resolve it with the engine and put the
// [adminauth.Session] on the request context. All decisions are delegated to
// the engine; this package never parses tokens or touches storage.
package middleware
