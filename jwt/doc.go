// Package jwt issues and verifies the access tokens handed out by the local
// identity provider, with strict algorithm, issuer, audience and kid checks.
package jwt
