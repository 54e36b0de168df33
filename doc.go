// Package goSession is the client-side authentication session of the card
// settlement back-office: it keeps the bearer access token, tracks the
// signed-in user, refreshes the token before it expires and decides whether
// navigation to a protected page may proceed.
//
// # Architecture boundaries
//
// goSession is the public surface. It exposes [Session], [Builder], [Config],
// [TokenStore], [Gate] and value types. Persistence lives in storage/, token
// decoding in jwt/, RBAC in permission/, and the HTTP side (API client,
// request authorizer, uploads) in client/.
//
// A Session is built through [Builder.Build] and passed to whoever needs it.
// There is no package-level instance.
//
// # Lifecycle
//
// Unknown moves to Loading or Unauthenticated on [Session.Init]. Login and
// profile loading pass through Loading. Authenticated requires a stored token
// and a loaded profile. Every failure path ends in Unauthenticated with the
// token removed, and [Session.Subscribe] observes each transition in order.
//
// # Refresh
//
// [Session.Refresh] is single flight: concurrent callers share one network
// call. A failed refresh logs the session out. While authenticated the token
// is also refreshed on a fixed interval.
//
// # What this package must NOT do
//
//   - Log or audit the raw access token. Use its fingerprint.
//   - Route session-owned API calls through the refreshing transport.
package goSession
