// Package jwt signs and verifies admin session tokens. A token carries the
// session id and the admin email; the server-side session record remains the
// authority on whether the session is still live.
package jwt
