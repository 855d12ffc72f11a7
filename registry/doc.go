// Package registry enforces at most one live stream per endpoint.
//
// A Registry maps a normalized endpoint key to the cleanup of the session
// currently bound to it. Registering a second session for the same key first
// runs and discards the previous cleanup, so independent call sites that
// subscribe to the same logical stream never hold two connections open.
//
// Endpoint identity is scheme, host and path (one trailing slash removed).
// The query string is deliberately excluded: two subscriptions that differ
// only in their parameters replace one another.
//
// Registries are ordinary values. Construct one per composition root (see
// stream.Client) rather than sharing a package-level instance, so tests can
// use isolated registries.
package registry
