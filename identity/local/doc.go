// Package local is a self-contained identity.Provider backed by argon2id
// password accounts and JWT access tokens.
//
// Access tokens expire after the jwt.Manager's AccessTTL. CurrentSession
// rotates an expired access token using the opaque refresh token and emits
// identity.EventTokenRefreshed; once the refresh token has also expired the
// session is dropped and identity.EventSignedOut is emitted.
//
// When Config.Storage is available the provider persists its accounts and
// the active session so that separate processes (the portalctl CLI) can
// resume the same session.
package local
