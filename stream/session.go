package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ggoodman/tradestream-go/eventsource"
)

// session owns the transport of one subscription across reconnects.
type session struct {
	ctx      context.Context
	log      *slog.Logger
	url      string
	req      Request
	budget   int
	interval time.Duration
	dial     Dialer
	headers  HeaderFunc
	sched    Scheduler

	mu        sync.Mutex
	transport eventsource.Transport
	timer     Timer
	gen       uint64
	failedGen uint64
	retries   int
	destroyed bool
}

// connect dials a new transport unless the session has been destroyed.
// It is also the reconnect timer's callback.
func (s *session) connect() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	header, err := s.buildHeader()
	if err != nil {
		s.handleError(gen, fmt.Errorf("stream: build headers: %w", err))
		return
	}

	s.log.DebugContext(s.ctx, "stream.connect", slog.Uint64("generation", gen))
	t := s.dial(s.ctx, s.url, header, eventsource.Handlers{
		OnOpen:    func() { s.handleOpen(gen) },
		OnMessage: func(m eventsource.Message) { s.handleMessage(gen, m) },
		OnError:   func(err error) { s.handleError(gen, err) },
	})

	s.mu.Lock()
	if s.destroyed || s.gen != gen {
		s.mu.Unlock()
		t.Close()
		return
	}
	s.transport = t
	s.mu.Unlock()
}

func (s *session) buildHeader() (http.Header, error) {
	header := http.Header{}
	if s.headers != nil {
		h, err := s.headers(s.ctx)
		if err != nil {
			return nil, err
		}
		for k, vs := range h {
			for _, v := range vs {
				header.Add(k, v)
			}
		}
	}
	for k, v := range s.req.Headers {
		header.Set(k, v)
	}
	return header, nil
}

// current reports whether gen belongs to the live transport.
func (s *session) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.destroyed && s.gen == gen
}

func (s *session) handleOpen(gen uint64) {
	s.mu.Lock()
	if s.destroyed || s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.retries = 0
	s.mu.Unlock()

	s.log.DebugContext(s.ctx, "stream.open")
	s.req.OnOpen()
}

func (s *session) handleMessage(gen uint64, m eventsource.Message) {
	if !s.current(gen) {
		return
	}

	var payload json.RawMessage
	if err := json.Unmarshal([]byte(m.Data), &payload); err != nil {
		s.log.WarnContext(s.ctx, "stream.decode_failed", slog.String("err", err.Error()))
		s.req.OnError(&DecodeError{Payload: m.Data, Err: err})
		return
	}

	s.mu.Lock()
	s.retries = 0
	s.mu.Unlock()

	s.req.OnMessage(payload)
}

func (s *session) handleError(gen uint64, err error) {
	s.mu.Lock()
	if s.destroyed || s.gen != gen || s.failedGen == gen {
		s.mu.Unlock()
		return
	}
	s.failedGen = gen
	s.mu.Unlock()

	s.log.WarnContext(s.ctx, "stream.error", slog.String("err", err.Error()))
	s.req.OnError(err)

	s.mu.Lock()
	if s.destroyed || s.gen != gen {
		s.mu.Unlock()
		return
	}
	if s.retries >= s.budget {
		s.mu.Unlock()
		s.log.WarnContext(s.ctx, "stream.retries_exhausted", slog.Int("budget", s.budget))
		return
	}
	s.retries++
	attempt := s.retries
	t := s.transport
	s.transport = nil
	s.timer = s.sched.AfterFunc(s.interval, s.connect)
	s.mu.Unlock()

	if t != nil {
		t.Close()
	}
	s.log.InfoContext(s.ctx, "stream.reconnect_scheduled",
		slog.Int("attempt", attempt),
		slog.Int("budget", s.budget),
		slog.Duration("delay", s.interval),
	)
}

// close destroys the session: the transport is closed and a pending
// reconnect is canceled. It is idempotent.
func (s *session) close() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	t := s.transport
	s.transport = nil
	timer := s.timer
	s.timer = nil
	s.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if t != nil {
		t.Close()
	}
	s.log.DebugContext(s.ctx, "stream.closed")
}
