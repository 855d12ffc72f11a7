// Package stream turns an event-stream endpoint into a reconnecting,
// JSON-decoding subscription.
//
// A Client is the composition root: it holds the base streaming URL, the
// default public path, the connection registry, and the transport
// configuration. Client.Subscribe starts a session that immediately begins
// connecting and returns a single cleanup function. Calling the cleanup (any
// number of times) closes the connection, cancels a pending reconnect, and
// unbinds the endpoint from the registry.
//
// # Reconnects
//
// Each connection-level error is reported to Request.OnError. While the
// number of consecutive failures is below the retry budget a new transport is
// dialed after Request.ReconnectInterval. Any successful open or message
// resets the count. Once the budget is exhausted the session stays closed and
// silent; it remains registered until cleanup or replacement. A server that
// ends the stream closes the session the same way unless
// Config.ReconnectOnStreamEnd is set, which makes the end count as a failure.
//
// # Decoding
//
// Payloads arrive with event-stream framing already removed by package
// eventsource. A payload that is not valid JSON is reported as a *DecodeError
// and the stream stays open.
//
// # One session per endpoint
//
// Sessions are registered under their endpoint identity (scheme, host and
// path, never the query). Subscribing again to the same endpoint, with any
// parameters, closes the previous session first. See package registry.
package stream
