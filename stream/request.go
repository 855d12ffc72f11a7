package stream

import (
	"encoding/json"
	"time"
)

const (
	// DefaultReconnectAttempts is the retry budget used when
	// Request.ReconnectAttempts is zero.
	DefaultReconnectAttempts = 3
	// DefaultReconnectInterval is the delay used when
	// Request.ReconnectInterval is zero.
	DefaultReconnectInterval = time.Second
)

// CleanupFunc ends a subscription. It is idempotent.
type CleanupFunc func()

// Request describes one subscription.
type Request struct {
	// Params are sent as the query string. They are not part of the
	// endpoint identity.
	Params map[string]string
	// Headers are added to every connection attempt, after the client's
	// header source.
	Headers map[string]string

	// OnMessage receives every payload that is valid JSON.
	OnMessage func(data json.RawMessage)
	// OnError receives connection errors and *DecodeError values.
	OnError func(err error)
	// OnOpen is called each time a connection is established.
	OnOpen func()

	// ReconnectAttempts is the number of consecutive failed connections
	// tolerated before giving up. Zero selects the client default; a
	// negative value disables reconnects.
	ReconnectAttempts int
	// ReconnectInterval is the delay before a reconnect. Zero selects the
	// client default.
	ReconnectInterval time.Duration

	// Path replaces the path of the base URL. Empty selects the client's
	// public path.
	Path string
}
