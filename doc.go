// Package adminauth implements passwordless sign-in for a small, fixed set of
// administrators: an allow-listed email requests a one-time code, proves
// possession of it, and receives a session token.
//
// # Architecture
//
// The [Engine] is built with [New] and [Builder]. Per-email state (the
// pending code and the request/failure history) lives in one record of a
// [store.Store] and every decision that reads it commits its change with
// compare-and-swap, so concurrent duplicate requests cannot both pass a
// cooldown check. The [store.MemoryStore] backend keeps state in process;
// [store.RedisStore] persists it and can be shared between instances.
//
// Every time-based decision reads the injected [Clock].
//
// # Flow
//
//  1. [Engine.RequestOTP]: allow-list, lockout, cooldown and hourly cap, then
//     a fresh code is stored (hashed) and handed to the [Notifier]. A failed
//     delivery is rolled back.
//  2. [Engine.VerifyOTP]: lockout first, then expiry and single use, then a
//     constant-time comparison. Three wrong codes lock the address for an
//     hour.
//  3. [Engine.ValidateSession], [Engine.Session], [Engine.InvalidateSession]
//     manage the signed session token and its server-side record.
//
// Failures the caller should render are returned as [*AuthError] with an
// [ErrorKind]; infrastructure failures wrap [ErrUnavailable].
package adminauth
