// Package permission maps "resource:action" permissions onto a 64-bit mask
// and composes role masks from them.
//
// A [Registry] assigns bit positions, a [RoleManager] folds the permissions of
// each role into a [Mask64], and [Catalog] describes the back-office defaults:
// the permissions every signed-in user holds plus the manager extras.
//
// # What this package must NOT do
//
//   - Import goSession or fetch anything over the network.
//   - Decide who the current user is; callers pass role names in.
package permission
