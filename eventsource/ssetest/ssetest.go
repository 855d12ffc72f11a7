// Package ssetest provides a scriptable event-stream server for tests.
//
// Each accepted GET is exposed as a Conn on which the test writes events or
// raw bytes and which it can end at will. The server can also be told to
// reject the next N connections with a status code, which is how reconnect
// behavior is exercised.
package ssetest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/elnormous/contenttype"
)

var (
	eventStreamMediaType  = contenttype.NewMediaType("text/event-stream")
	eventStreamMediaTypes = []contenttype.MediaType{eventStreamMediaType}
)

// Server is an httptest.Server speaking text/event-stream.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	attempts int
	reject   []int
	conns    []*Conn
	requests []*url.URL
	headers  []http.Header

	accepted chan *Conn
}

// NewServer starts a Server and registers its shutdown with t.Cleanup.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{accepted: make(chan *Conn, 64)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// Close ends every open stream and shuts the server down.
func (s *Server) Close() {
	s.mu.Lock()
	conns := append([]*Conn(nil), s.conns...)
	s.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
	s.Server.Close()
}

// RejectNext answers the next n connection attempts with status.
func (s *Server) RejectNext(status, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.reject = append(s.reject, status)
	}
}

// Attempts returns the number of requests received so far, including
// rejected ones.
func (s *Server) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Request returns the URL and headers of the i-th request (0-based).
func (s *Server) Request(i int) (*url.URL, http.Header) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.requests) {
		return nil, nil
	}
	return s.requests[i], s.headers[i]
}

// Accept waits for the next accepted stream.
func (s *Server) Accept(t testing.TB, timeout time.Duration) *Conn {
	t.Helper()
	select {
	case c := <-s.accepted:
		return c
	case <-time.After(timeout):
		t.Fatalf("ssetest: no connection accepted within %s", timeout)
		return nil
	}
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.attempts++
	u := *r.URL
	s.requests = append(s.requests, &u)
	s.headers = append(s.headers, r.Header.Clone())
	var status int
	if len(s.reject) > 0 {
		status, s.reject = s.reject[0], s.reject[1:]
	}
	s.mu.Unlock()

	if status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}
	if _, _, err := contenttype.GetAcceptableMediaType(r, eventStreamMediaTypes); err != nil {
		http.Error(w, "event stream not acceptable", http.StatusNotAcceptable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", eventStreamMediaType.String())
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	c := &Conn{
		w:    w,
		f:    flusher,
		ctx:  r.Context(),
		done: make(chan struct{}),
		URL:  &u,
	}
	s.mu.Lock()
	s.conns = append(s.conns, c)
	s.mu.Unlock()
	s.accepted <- c

	select {
	case <-c.done:
	case <-r.Context().Done():
		c.Close()
	}
}

// Conn is one accepted stream.
type Conn struct {
	// URL is the request URL including the query string.
	URL *url.URL

	mu     sync.Mutex
	w      http.ResponseWriter
	f      http.Flusher
	ctx    context.Context
	closed bool
	done   chan struct{}
}

// Send writes one event whose data field is data.
func (c *Conn) Send(data string) error {
	return c.Write("data: " + data + "\n\n")
}

// Write writes raw bytes to the stream and flushes them.
func (c *Conn) Write(raw string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("ssetest: write on closed stream")
	}
	if err := c.ctx.Err(); err != nil {
		return err
	}
	if _, err := c.w.Write([]byte(raw)); err != nil {
		return err
	}
	c.f.Flush()
	return nil
}

// Close ends the response from the server side.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

// Done is closed once the stream has ended, from either side.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Disconnected reports whether the client has gone away.
func (c *Conn) Disconnected() <-chan struct{} { return c.ctx.Done() }
