// Package httpapi is the gin HTTP surface of adminauthd.
//
// Routes:
//
//	POST /admin/otp/request       {email}          -> {sentAt, expiresAt}
//	POST /admin/otp/verify        {email, code}    -> {sessionToken, expiresAt}
//	GET  /admin/otp/status?email=                  -> countdowns for the sign-in form
//	GET  /admin/session/validate                   -> {valid, email?, expiresAt?}
//	POST /admin/session/logout                     -> 204
//	GET  /healthz, GET /metrics
//
// Failures are JSON {errorType, message, remainingTime?, remainingAttempts?}
// with remainingTime in whole seconds.
package httpapi
