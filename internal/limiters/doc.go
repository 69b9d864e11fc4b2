// Package limiters holds the OTP rate-limit policy: request cooldown, the
// sliding hourly request cap, and the failed-verification lockout.
//
// The policy is pure. It mutates a [RateLimitRecord] in place given an
// explicit "now" and never touches storage; the engine loads the record,
// applies the policy and persists it with a single compare-and-swap, which
// is what makes "check then record" atomic per email.
//
// # What this package must NOT do
//
//   - Read the wall clock. Every decision takes the caller's now.
//   - Import adminauth or any sibling internal package.
package limiters
