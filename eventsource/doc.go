// Package eventsource implements a single-request Server-Sent Events
// transport over net/http.
//
// A Source performs exactly one streaming GET and decodes its body into
// discrete messages. It never reconnects: retry policy belongs to the owner of
// the Source (see package stream), which constructs a new Source per attempt.
//
// # Lifecycle
//
//	Connecting ──2xx + body──▶ Open ──close / error / EOF──▶ Closed
//	     └──────────non-2xx / nil body / dial error──────────────┘
//
// Handlers are registered at construction time and are invoked sequentially
// from the Source's read goroutine, in the order the bytes arrived. Close is
// the only cancellation primitive: it aborts the in-flight request so the
// underlying connection is released, and the abort itself is never reported
// as an error. A server ending the stream closes the Source quietly unless
// it was created WithStreamEndError.
//
// # Framing
//
// The Source is the sole owner of event-stream framing. Message.Data carries
// the payload with the "data:" field prefix already removed; consumers can
// treat it as the raw document the server sent.
package eventsource
