// Package internal contains helper utilities that are intentionally private to
// adminauth: secure random generation for OTP codes, session ids and issuance
// nonces.
//
// # Sub-packages
//
//   - limiters: OTP request throttle and failed-attempt lockout policy
//   - stores: per-email OTP/rate-limit state record and its codec
//   - appconfig: file and environment configuration loading for cmd/
//   - httpapi: gin HTTP handlers for the admin endpoints
//
// # What this package must NOT do
//
//   - Export types that appear in the public adminauth API.
//   - Be imported by any package outside the adminauth module.
package internal
