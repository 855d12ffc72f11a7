package eventsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/ggoodman/tradestream-go/internal/framing"
)

var eventStreamMediaType = contenttype.NewMediaType("text/event-stream")

const readBufferSize = 4096

// ReadyState is the connection state of a Source.
type ReadyState int32

const (
	Connecting ReadyState = iota
	Open
	Closed
)

func (s ReadyState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("ReadyState(%d)", int32(s))
	}
}

// Message is one event received on the stream.
type Message struct {
	// Event is the event type, empty for the default "message" type.
	Event string
	// ID is the last event ID sent with this event, if any.
	ID string
	// Data is the event payload with framing removed.
	Data string
}

// Handlers are the three notification slots of a Source. Nil handlers are
// skipped.
type Handlers struct {
	OnOpen    func()
	OnMessage func(Message)
	OnError   func(error)
}

// Transport is the consumer-facing contract of a streaming connection.
type Transport interface {
	URL() string
	ReadyState() ReadyState
	// Close aborts the connection. It is idempotent. A handler whose dispatch
	// was already under way may still run once; none starts after that.
	Close()
}

// Source is a single streaming GET request decoded as an event stream.
type Source struct {
	url    string
	header http.Header
	client *http.Client
	log    *slog.Logger
	idle   time.Duration
	endErr bool
	parent context.Context
	h      Handlers

	state atomic.Int32

	mu      sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelCauseFunc
}

var _ Transport = (*Source)(nil)

// New creates a Source for url and immediately starts connecting in the
// background. Default request headers are "Accept: text/event-stream" and
// "Cache-Control: no-cache".
func New(url string, h Handlers, opts ...Option) *Source {
	cfg := config{
		header: http.Header{},
	}
	cfg.header.Set("Accept", eventStreamMediaType.String())
	cfg.header.Set("Cache-Control", "no-cache")
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.client == nil {
		cfg.client = &http.Client{}
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}
	if cfg.context == nil {
		cfg.context = context.Background()
	}

	s := &Source{
		url:    url,
		header: cfg.header,
		client: cfg.client,
		log:    cfg.logger,
		idle:   cfg.idle,
		endErr: cfg.endErr,
		parent: cfg.context,
		h:      h,
	}
	s.state.Store(int32(Connecting))
	s.connect()
	return s
}

// URL returns the target URL.
func (s *Source) URL() string { return s.url }

// ReadyState returns the current state.
func (s *Source) ReadyState() ReadyState { return ReadyState(s.state.Load()) }

// Close aborts the in-flight request, if any, and moves the Source to Closed.
func (s *Source) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()

	s.state.Store(int32(Closed))
	if cancel != nil {
		cancel(errClosed)
	}
}

// connect starts the request goroutine. Only the first call has any effect:
// a Source never issues more than one request.
func (s *Source) connect() {
	s.mu.Lock()
	if s.started || s.closed {
		s.mu.Unlock()
		return
	}
	s.started = true
	ctx, cancel := context.WithCancelCause(s.parent)
	s.cancel = cancel
	s.mu.Unlock()

	go s.run(ctx)
}

func (s *Source) run(ctx context.Context) {
	var watchdog *time.Timer
	if s.idle > 0 {
		watchdog = time.AfterFunc(s.idle, func() { s.cancel(ErrIdleTimeout) })
		defer watchdog.Stop()
	}
	touch := func() {
		if watchdog != nil {
			watchdog.Reset(s.idle)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		s.fail(ctx, fmt.Errorf("eventsource: build request: %w", err))
		return
	}
	req.Header = s.header.Clone()

	resp, err := s.client.Do(req)
	if err != nil {
		s.fail(ctx, fmt.Errorf("eventsource: connect: %w", err))
		return
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.Body != nil {
			_ = resp.Body.Close()
		}
		s.fail(ctx, &HTTPStatusError{StatusCode: resp.StatusCode, Status: resp.Status})
		return
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		s.fail(ctx, ErrNilBody)
		return
	}
	defer resp.Body.Close()

	if ct := contenttype.NewMediaType(resp.Header.Get("Content-Type")); ct.Type != eventStreamMediaType.Type || ct.Subtype != eventStreamMediaType.Subtype {
		s.log.WarnContext(ctx, "eventsource.unexpected_content_type",
			slog.String("url", s.url),
			slog.String("content_type", resp.Header.Get("Content-Type")),
		)
	}

	if !s.state.CompareAndSwap(int32(Connecting), int32(Open)) {
		return
	}
	touch()
	s.log.DebugContext(ctx, "eventsource.open", slog.String("url", s.url))
	if s.h.OnOpen != nil && !s.isClosed() {
		s.h.OnOpen()
	}

	s.read(ctx, resp.Body, touch)
}

func (s *Source) read(ctx context.Context, body io.Reader, touch func()) {
	buf := make([]byte, readBufferSize)
	var pending []byte
	for {
		n, err := body.Read(buf)
		if n > 0 {
			touch()
			var segments [][]byte
			segments, pending = framing.Split(pending, buf[:n])
			for _, seg := range segments {
				ev := framing.Parse(seg)
				if !ev.HasData {
					continue
				}
				if s.isClosed() {
					return
				}
				if s.h.OnMessage != nil {
					s.h.OnMessage(Message{Event: ev.Type, ID: ev.ID, Data: ev.Data})
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if s.endErr {
					s.fail(ctx, ErrStreamEnded)
					return
				}
				s.end(ctx)
				return
			}
			s.fail(ctx, fmt.Errorf("eventsource: read: %w", err))
			return
		}
	}
}

// fail moves the Source to Closed and reports err, unless the failure is the
// result of Close.
func (s *Source) fail(ctx context.Context, err error) {
	cause := context.Cause(ctx)
	if errors.Is(cause, errClosed) {
		return
	}
	if errors.Is(cause, ErrIdleTimeout) {
		err = ErrIdleTimeout
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()

	s.state.Store(int32(Closed))
	cancel(err)

	s.log.DebugContext(ctx, "eventsource.error", slog.String("url", s.url), slog.String("err", err.Error()))
	if s.h.OnError != nil {
		s.h.OnError(err)
	}
}

// end moves the Source to Closed after the server finished the stream.
func (s *Source) end(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()

	s.state.Store(int32(Closed))
	cancel(nil)
	s.log.DebugContext(ctx, "eventsource.ended", slog.String("url", s.url))
}

func (s *Source) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
