// Package identity defines the contract between portalauth and an identity
// provider: the user and session values it returns, the change-notification
// stream, and the error sentinels a provider reports.
//
// # Architecture boundaries
//
// This package owns provider-facing types only. Concrete providers live in
// sub-packages (see identity/local). It does NOT hold session state; the
// portalauth Store does.
package identity
