// Package middleware guards protected views of the portal.
//
//   - [RequireSession] sends anonymous visitors to the sign-in page.
//   - [RequireAdmin] additionally sends non-admin users to the investor area.
//
// Both guards wait for Store.Initialize and read the resulting state. An
// unresolved session is treated as a signed-out visitor, never as an error
// page.
package middleware
