// Package memory provides an in-memory implementation of broker.Broker.
// It is suitable for single-process relays and tests.
package memory

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/ggoodman/tradestream-go/broker"
)

// Option configures a Broker.
type Option func(*Broker)

// WithMaxLen bounds the number of messages retained per topic. Subscribers
// that fall further behind skip the dropped messages. Zero keeps everything.
func WithMaxLen(n int) Option {
	return func(b *Broker) { b.maxLen = n }
}

// Broker implements broker.Broker with per-topic in-memory logs.
type Broker struct {
	mu           sync.Mutex
	topics       map[string]*topic
	eventCounter atomic.Int64
	maxLen       int
}

// topic is an append-only log. The message at index i has sequence first+i.
type topic struct {
	mu       sync.Mutex
	messages []entry
	first    int64
	wake     chan struct{}
	closed   bool
}

type entry struct {
	seq int64
	env broker.MessageEnvelope
}

// New creates an empty Broker.
func New(opts ...Option) *Broker {
	b := &Broker{topics: make(map[string]*topic)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Broker) topic(name string) *topic {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[name]
	if !ok {
		t = &topic{wake: make(chan struct{})}
		b.topics[name] = t
	}
	return t
}

// Publish implements broker.Broker.Publish.
func (b *Broker) Publish(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	eventID := strconv.FormatInt(b.eventCounter.Add(1), 10)
	env := broker.MessageEnvelope{ID: eventID, Data: append([]byte(nil), data...)}

	t := b.topic(name)
	t.mu.Lock()
	t.messages = append(t.messages, entry{seq: t.first + int64(len(t.messages)), env: env})
	if b.maxLen > 0 && len(t.messages) > b.maxLen {
		drop := len(t.messages) - b.maxLen
		t.messages = append([]entry(nil), t.messages[drop:]...)
		t.first += int64(drop)
	}
	close(t.wake)
	t.wake = make(chan struct{})
	t.mu.Unlock()

	return eventID, nil
}

// Subscribe implements broker.Broker.Subscribe.
func (b *Broker) Subscribe(ctx context.Context, name string, lastEventID string, handler broker.MessageHandler) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t := b.topic(name)
	t.mu.Lock()
	next := t.first + int64(len(t.messages))
	if lastEventID != "" {
		found := false
		for _, e := range t.messages {
			if e.env.ID == lastEventID {
				next = e.seq + 1
				found = true
				break
			}
		}
		if !found {
			t.mu.Unlock()
			return broker.ErrUnknownEventID
		}
	}
	t.mu.Unlock()

	for {
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			return broker.ErrTopicClosed
		}
		if next < t.first {
			next = t.first
		}
		if idx := next - t.first; idx < int64(len(t.messages)) {
			batch := make([]broker.MessageEnvelope, 0, int64(len(t.messages))-idx)
			for _, e := range t.messages[idx:] {
				batch = append(batch, e.env)
			}
			next = t.first + int64(len(t.messages))
			t.mu.Unlock()

			for _, env := range batch {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := handler(ctx, env); err != nil {
					return err
				}
			}
			continue
		}
		wake := t.wake
		t.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wake:
		}
	}
}

// Cleanup implements broker.Broker.Cleanup. Active subscribers of the topic
// return broker.ErrTopicClosed.
func (b *Broker) Cleanup(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	t, ok := b.topics[name]
	delete(b.topics, name)
	b.mu.Unlock()
	if !ok {
		return nil
	}

	t.mu.Lock()
	t.closed = true
	t.messages = nil
	close(t.wake)
	t.wake = make(chan struct{})
	t.mu.Unlock()
	return nil
}

// Topics returns the number of topics that currently hold state.
func (b *Broker) Topics() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics)
}

var _ broker.Broker = (*Broker)(nil)
