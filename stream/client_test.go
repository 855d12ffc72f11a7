package stream_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/ggoodman/tradestream-go/eventsource"
	"github.com/ggoodman/tradestream-go/eventsource/ssetest"
	"github.com/ggoodman/tradestream-go/stream"
)

const waitTimeout = 2 * time.Second

type events struct {
	opens    chan struct{}
	messages chan string
	errs     chan error
}

func newEvents() *events {
	return &events{
		opens:    make(chan struct{}, 16),
		messages: make(chan string, 64),
		errs:     make(chan error, 16),
	}
}

func (e *events) request(path string, params map[string]string) stream.Request {
	return stream.Request{
		Path:      path,
		Params:    params,
		OnOpen:    func() { e.opens <- struct{}{} },
		OnMessage: func(data json.RawMessage) { e.messages <- string(data) },
		OnError:   func(err error) { e.errs <- err },
	}
}

func (e *events) waitOpen(t *testing.T) {
	t.Helper()
	select {
	case <-e.opens:
	case err := <-e.errs:
		t.Fatalf("expected open, got error: %v", err)
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for open")
	}
}

func (e *events) waitMessage(t *testing.T) string {
	t.Helper()
	select {
	case m := <-e.messages:
		return m
	case err := <-e.errs:
		t.Fatalf("expected message, got error: %v", err)
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for message")
	}
	return ""
}

func (e *events) waitError(t *testing.T) error {
	t.Helper()
	select {
	case err := <-e.errs:
		return err
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for error")
	}
	return nil
}

func newClient(t *testing.T, srv *ssetest.Server, attempts int) *stream.Client {
	t.Helper()
	c, err := stream.NewClient(stream.Config{
		BaseURL:           srv.URL,
		ReconnectAttempts: attempts,
		ReconnectInterval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestClientDeliversPayloads(t *testing.T) {
	srv := ssetest.NewServer(t)
	c := newClient(t, srv, 0)
	ev := newEvents()

	cleanup := c.Subscribe(ev.request("/v1/trading/contracts/open/stream", nil))
	defer cleanup()

	conn := srv.Accept(t, waitTimeout)
	ev.waitOpen(t)

	if got := conn.URL.Path; got != "/v1/trading/contracts/open/stream" {
		t.Fatalf("unexpected path %q", got)
	}

	_ = conn.Send(`{"contracts":[]}`)
	_ = conn.Write("event: ping\n\n")
	_ = conn.Send(`{"contracts":[{"contract_id":"1"}]}`)

	if got := ev.waitMessage(t); got != `{"contracts":[]}` {
		t.Fatalf("unexpected payload %s", got)
	}
	if got := ev.waitMessage(t); got != `{"contracts":[{"contract_id":"1"}]}` {
		t.Fatalf("unexpected payload %s", got)
	}
}

func TestClientReconnectsAfterRejection(t *testing.T) {
	srv := ssetest.NewServer(t)
	srv.RejectNext(http.StatusServiceUnavailable, 2)
	c := newClient(t, srv, 3)
	ev := newEvents()

	cleanup := c.Subscribe(ev.request("", map[string]string{"stream": "balance"}))
	defer cleanup()

	for i := 0; i < 2; i++ {
		err := ev.waitError(t)
		var statusErr *eventsource.HTTPStatusError
		if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusServiceUnavailable {
			t.Fatalf("expected 503 status error, got %v", err)
		}
	}

	conn := srv.Accept(t, waitTimeout)
	ev.waitOpen(t)
	if got := conn.URL.Query().Get("stream"); got != "balance" {
		t.Fatalf("unexpected stream param %q", got)
	}
	if got := srv.Attempts(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestClientGivesUpAfterBudget(t *testing.T) {
	srv := ssetest.NewServer(t)
	srv.RejectNext(http.StatusBadGateway, 10)
	c := newClient(t, srv, 1)
	ev := newEvents()

	cleanup := c.Subscribe(ev.request("/sse", nil))
	defer cleanup()

	ev.waitError(t)
	ev.waitError(t)

	select {
	case err := <-ev.errs:
		t.Fatalf("unexpected third error %v", err)
	case <-time.After(100 * time.Millisecond):
	}
	if got := srv.Attempts(); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}

func TestClientStreamEndClosesQuietly(t *testing.T) {
	srv := ssetest.NewServer(t)
	c := newClient(t, srv, 3)
	ev := newEvents()

	cleanup := c.Subscribe(ev.request("/sse", nil))
	defer cleanup()

	conn := srv.Accept(t, waitTimeout)
	ev.waitOpen(t)
	conn.Close()

	select {
	case err := <-ev.errs:
		t.Fatalf("unexpected error %v", err)
	case <-time.After(100 * time.Millisecond):
	}
	if got := srv.Attempts(); got != 1 {
		t.Fatalf("expected 1 attempt, got %d", got)
	}
	if got := c.Registry().Len(); got != 1 {
		t.Fatalf("session must stay registered until cleanup, got %d entries", got)
	}
}

func TestClientReconnectsWhenServerEndsStream(t *testing.T) {
	srv := ssetest.NewServer(t)
	c, err := stream.NewClient(stream.Config{
		BaseURL:              srv.URL,
		ReconnectAttempts:    1,
		ReconnectInterval:    10 * time.Millisecond,
		ReconnectOnStreamEnd: true,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(c.Close)
	ev := newEvents()

	cleanup := c.Subscribe(ev.request("/sse", nil))
	defer cleanup()

	first := srv.Accept(t, waitTimeout)
	ev.waitOpen(t)
	first.Close()

	if err := ev.waitError(t); !errors.Is(err, eventsource.ErrStreamEnded) {
		t.Fatalf("expected ErrStreamEnded, got %v", err)
	}

	second := srv.Accept(t, waitTimeout)
	ev.waitOpen(t)
	_ = second.Send(`1`)
	if got := ev.waitMessage(t); got != "1" {
		t.Fatalf("unexpected payload %s", got)
	}
}

func TestClientSameEndpointReplacesConnection(t *testing.T) {
	srv := ssetest.NewServer(t)
	c := newClient(t, srv, 0)
	first := newEvents()
	second := newEvents()

	c.Subscribe(first.request("/v1/trading/proposal/stream", map[string]string{"instrument_id": "R_100"}))
	old := srv.Accept(t, waitTimeout)
	first.waitOpen(t)

	cleanup := c.Subscribe(second.request("/v1/trading/proposal/stream", map[string]string{"instrument_id": "R_50"}))
	defer cleanup()

	select {
	case <-old.Disconnected():
	case <-time.After(waitTimeout):
		t.Fatalf("previous connection was not closed")
	}

	conn := srv.Accept(t, waitTimeout)
	second.waitOpen(t)
	if got := conn.URL.Query().Get("instrument_id"); got != "R_50" {
		t.Fatalf("unexpected instrument %q", got)
	}

	select {
	case err := <-first.errs:
		t.Fatalf("replaced session reported %v", err)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestClientCleanupDisconnects(t *testing.T) {
	srv := ssetest.NewServer(t)
	c := newClient(t, srv, 0)
	ev := newEvents()

	cleanup := c.Subscribe(ev.request("/sse", nil))
	conn := srv.Accept(t, waitTimeout)
	ev.waitOpen(t)

	cleanup()
	cleanup()

	select {
	case <-conn.Disconnected():
	case <-time.After(waitTimeout):
		t.Fatalf("server did not observe the disconnect")
	}
	select {
	case err := <-ev.errs:
		t.Fatalf("cleanup must be silent, got %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	if got := c.Registry().Len(); got != 0 {
		t.Fatalf("expected empty registry, got %d", got)
	}
}
