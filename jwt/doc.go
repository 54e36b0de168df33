// Package jwt decodes access tokens held by a client session and, when the
// deployment shares verification keys with the issuer, checks their signature.
//
// Expiry is deliberately not enforced here. The session token store owns the
// expiry window so that "about to expire" and "expired" are computed against a
// single clock.
package jwt
