// Package storage persists the small set of session values (access token and
// cached user profile) behind a key/value [Backend].
//
// # Backends
//
//   - [Memory]: process-local, the default; equivalent to per-tab browser storage.
//   - [Redis]: shared between processes; values may carry a TTL.
//   - [Badger]: durable on-disk store for command line use.
//   - [Sealed]: wraps any backend and encrypts values at rest.
//
// # What this package must NOT do
//
//   - Import goSession or interpret the values it stores.
//   - Log stored values.
package storage
