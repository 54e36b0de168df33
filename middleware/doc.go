// Package middleware adapts the goSession authorization gate to net/http
// handlers.
//
// # Guards
//
//   - [RequireAuth] admits any authenticated user.
//   - [RequireRole] and [RequirePermission] add the role and permission checks.
//   - [GuestOnly] sends authenticated users to the landing page.
//   - [Guard] takes a function building the gate input per request.
//
// Allowed requests carry the user profile, see [UserFromContext].
//
// # What this package must NOT do
//
//   - Decide anything itself. Every decision comes from goSession.Gate.
//   - Read or write the token store directly.
package middleware
