// Package portalauth bootstraps and maintains the client-side authentication
// state of the investor portal: who is signed in, with which session, and
// whether that user is an administrator.
//
// The [Store] owns the state. [Store.Initialize] reconciles it with the
// identity provider in a single deduplicated cycle (session, then user, then
// role lookup) and never surfaces provider errors; failures resolve to the
// signed-out state and a failed role lookup degrades to a non-admin user.
// The [Coordinator] listens for provider change notifications and
// re-initializes the store on each, and redirects a freshly signed-in user
// away from the sign-in pages exactly once.
//
// # Architecture boundaries
//
// portalauth is the public surface: [Engine], [Builder], [Config], [Store],
// [Coordinator] and value types. Identity backends implement
// identity.Provider, role membership comes from roles.Lookup, and durable
// storage goes through storage.Guarded so no storage failure can reach a
// caller.
//
// # What this package must NOT do
//
//   - Propagate errors out of Store.Initialize.
//   - Persist the in-flight marker or the Initialized flag.
//   - Publish an admin flag or a session without a user.
package portalauth
