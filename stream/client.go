package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ggoodman/tradestream-go/eventsource"
	"github.com/ggoodman/tradestream-go/internal/logctx"
	"github.com/ggoodman/tradestream-go/registry"
	"github.com/google/uuid"
)

// DefaultPublicPath is the streaming path used when Config.PublicPath is
// empty.
const DefaultPublicPath = "/sse"

// Dialer opens the transport for one connection attempt. Handlers may run on
// another goroutine, possibly before Dialer returns.
type Dialer func(ctx context.Context, url string, header http.Header, h eventsource.Handlers) eventsource.Transport

// HeaderFunc supplies headers for a connection attempt. It is consulted on
// every attempt so reconnects pick up refreshed credentials. An error is
// treated as a failed connection.
type HeaderFunc func(ctx context.Context) (http.Header, error)

// Config holds the endpoint and retry defaults of a Client.
type Config struct {
	// BaseURL is the scheme and host of the streaming API, for example
	// "https://api.example.com". Its path is replaced per subscription.
	BaseURL string
	// PublicPath is the path used when a Request has no Path.
	PublicPath string
	// ReconnectAttempts is the default retry budget. Zero selects
	// DefaultReconnectAttempts.
	ReconnectAttempts int
	// ReconnectInterval is the default reconnect delay. Zero selects
	// DefaultReconnectInterval.
	ReconnectInterval time.Duration
	// IdleTimeout closes a connection that receives no bytes for this long.
	// Zero disables the watchdog.
	IdleTimeout time.Duration
	// ReconnectOnStreamEnd treats a server closing the stream as a failed
	// connection, reported as eventsource.ErrStreamEnded and retried within
	// the budget. By default the session closes quietly.
	ReconnectOnStreamEnd bool
}

// Option configures a Client.
type Option func(*Client)

// WithRegistry shares a registry between clients. By default each client
// owns a fresh registry.
func WithRegistry(r *registry.Registry) Option {
	return func(c *Client) { c.registry = r }
}

// WithLogger sets the logger. If not provided, logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithHTTPClient sets the HTTP client used by the default dialer.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithDialer replaces the transport constructor.
func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dial = d }
}

// WithScheduler replaces the reconnect timer implementation.
func WithScheduler(s Scheduler) Option {
	return func(c *Client) { c.sched = s }
}

// WithHeaderFunc sets a per-attempt header source, typically credentials.
func WithHeaderFunc(f HeaderFunc) Option {
	return func(c *Client) { c.headers = f }
}

// Client creates subscriptions against one streaming API.
type Client struct {
	base       *url.URL
	publicPath string
	attempts   int
	interval   time.Duration
	idle       time.Duration
	endErr     bool

	registry   *registry.Registry
	log        *slog.Logger
	httpClient *http.Client
	dial       Dialer
	headers    HeaderFunc
	sched      Scheduler
}

// NewClient validates cfg and builds a Client.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, ErrInvalidBaseURL
	}

	c := &Client{
		base:       base,
		publicPath: cfg.PublicPath,
		attempts:   cfg.ReconnectAttempts,
		interval:   cfg.ReconnectInterval,
		idle:       cfg.IdleTimeout,
		endErr:     cfg.ReconnectOnStreamEnd,
	}
	if c.publicPath == "" {
		c.publicPath = DefaultPublicPath
	}
	if c.attempts == 0 {
		c.attempts = DefaultReconnectAttempts
	}
	if c.interval <= 0 {
		c.interval = DefaultReconnectInterval
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.log == nil {
		c.log = slog.New(slog.DiscardHandler)
	}
	c.log = logctx.Wrap(c.log)
	if c.registry == nil {
		c.registry = registry.New(registry.WithLogger(c.log))
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.dial == nil {
		c.dial = c.dialEventSource
	}
	if c.sched == nil {
		c.sched = timeScheduler{}
	}
	return c, nil
}

func (c *Client) dialEventSource(ctx context.Context, target string, header http.Header, h eventsource.Handlers) eventsource.Transport {
	opts := []eventsource.Option{
		eventsource.WithContext(ctx),
		eventsource.WithHTTPClient(c.httpClient),
		eventsource.WithHeaders(header),
		eventsource.WithLogger(c.log),
		eventsource.WithIdleTimeout(c.idle),
	}
	if c.endErr {
		opts = append(opts, eventsource.WithStreamEndError())
	}
	return eventsource.New(target, h, opts...)
}

// Registry returns the registry sessions are bound to.
func (c *Client) Registry() *registry.Registry { return c.registry }

// Endpoint returns the URL of path (or the public path when empty) without
// a query string. It is the identity a subscription is registered under.
func (c *Client) Endpoint(path string) string {
	return c.endpoint(path).String()
}

// URL returns the full connection URL for path and params.
func (c *Client) URL(path string, params map[string]string) string {
	u := c.endpoint(path)
	if len(params) > 0 {
		q := url.Values{}
		for k, v := range params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (c *Client) endpoint(path string) *url.URL {
	if path == "" {
		path = c.publicPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := *c.base
	u.Path = path
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return &u
}

// Subscribe starts a session for req and returns its cleanup. Any session
// already bound to the same endpoint is closed first. Subscribe never fails:
// every problem is reported through req.OnError.
func (c *Client) Subscribe(req Request) CleanupFunc {
	if req.OnMessage == nil {
		req.OnMessage = func(json.RawMessage) {}
	}
	if req.OnError == nil {
		req.OnError = func(error) {}
	}
	if req.OnOpen == nil {
		req.OnOpen = func() {}
	}

	budget := req.ReconnectAttempts
	if budget == 0 {
		budget = c.attempts
	}
	if budget < 0 {
		budget = 0
	}
	interval := req.ReconnectInterval
	if interval <= 0 {
		interval = c.interval
	}

	endpoint := c.Endpoint(req.Path)
	target := c.URL(req.Path, req.Params)
	id := uuid.NewString()

	s := &session{
		ctx: logctx.WithSessionData(context.Background(), &logctx.SessionData{
			SessionID: id,
			Endpoint:  endpoint,
			URL:       target,
		}),
		log:      c.log,
		url:      target,
		req:      req,
		budget:   budget,
		interval: interval,
		dial:     c.dial,
		headers:  c.headers,
		sched:    c.sched,
	}

	cleanup := c.registry.Register(endpoint, s.close)
	s.connect()
	return CleanupFunc(cleanup)
}

// Close ends every session bound to the client's registry.
func (c *Client) Close() {
	c.registry.Reset()
}
