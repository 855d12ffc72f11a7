package eventsource

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Option configures a Source.
type Option func(*config)

type config struct {
	client  *http.Client
	header  http.Header
	logger  *slog.Logger
	idle    time.Duration
	context context.Context
	endErr  bool
}

// WithHTTPClient sets the client used for the streaming request. The client
// must not carry a Timeout: it would bound the lifetime of the whole stream.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *config) { cfg.client = c }
}

// WithHeader sets a request header, replacing any default of the same name.
func WithHeader(key, value string) Option {
	return func(cfg *config) { cfg.header.Set(key, value) }
}

// WithHeaders merges h into the request headers. Keys present in h replace
// the defaults.
func WithHeaders(h http.Header) Option {
	return func(cfg *config) {
		for k, vs := range h {
			cfg.header.Del(k)
			for _, v := range vs {
				cfg.header.Add(k, v)
			}
		}
	}
}

// WithLogger sets the logger. If not provided, logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *config) { cfg.logger = l }
}

// WithIdleTimeout closes the stream with ErrIdleTimeout when no bytes arrive
// for d. Zero disables the watchdog.
func WithIdleTimeout(d time.Duration) Option {
	return func(cfg *config) { cfg.idle = d }
}

// WithContext sets the parent context of the streaming request. Canceling it
// behaves like a network failure, not like Close.
func WithContext(ctx context.Context) Option {
	return func(cfg *config) { cfg.context = ctx }
}

// WithStreamEndError reports a server-side end of stream as ErrStreamEnded
// through OnError. By default the Source closes without notification.
func WithStreamEndError() Option {
	return func(cfg *config) { cfg.endErr = true }
}
