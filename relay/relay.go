// Package relay republishes upstream stream payloads into a broker.
//
// Each subscription of a File becomes one stream session whose JSON
// payloads are published, unchanged, to the subscription's topic. Local
// consumers then read topics from the broker instead of opening their own
// upstream connections, which would evict one another per endpoint.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"

	"github.com/ggoodman/tradestream-go/broker"
	"github.com/ggoodman/tradestream-go/internal/logctx"
	"github.com/ggoodman/tradestream-go/registry"
	"github.com/ggoodman/tradestream-go/stream"
	"github.com/google/uuid"
)

// ErrClosed is returned by Apply after Close.
var ErrClosed = errors.New("relay: closed")

// Option configures a Relay.
type Option func(*Relay)

// WithLogger sets the logger. If not provided, logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(r *Relay) { r.log = l }
}

// Relay keeps one stream session per configured subscription.
type Relay struct {
	id     string
	client *stream.Client
	broker broker.Broker
	log    *slog.Logger

	mu     sync.Mutex
	active map[string]*binding
	closed bool
}

type binding struct {
	sub     Subscription
	cleanup stream.CleanupFunc
}

// New creates a Relay that subscribes through client and publishes to b.
func New(client *stream.Client, b broker.Broker, opts ...Option) *Relay {
	r := &Relay{
		id:     uuid.NewString(),
		client: client,
		broker: b,
		active: make(map[string]*binding),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = slog.New(slog.DiscardHandler)
	}
	r.log = logctx.Wrap(r.log)
	return r
}

// ID identifies this relay instance in logs.
func (r *Relay) ID() string { return r.id }

// Apply makes the running subscriptions match f. Subscriptions that are
// unchanged keep their session; removed or changed ones are stopped before
// new ones start. f is rejected as a whole when two of its subscriptions
// resolve to the same endpoint.
func (r *Relay) Apply(f File) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if err := r.checkEndpoints(f); err != nil {
		return err
	}

	want := make(map[string]Subscription, len(f.Subscriptions))
	for _, s := range f.Subscriptions {
		want[s.Topic] = s
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	var stop []stream.CleanupFunc
	for topic, b := range r.active {
		if s, ok := want[topic]; ok && reflect.DeepEqual(s, b.sub) {
			delete(want, topic)
			continue
		}
		stop = append(stop, b.cleanup)
		delete(r.active, topic)
	}
	r.mu.Unlock()

	for _, cleanup := range stop {
		cleanup()
	}

	topics := make([]string, 0, len(want))
	for topic := range want {
		topics = append(topics, topic)
	}
	sort.Strings(topics)

	for _, topic := range topics {
		s := want[topic]
		cleanup := r.start(s)
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			cleanup()
			return ErrClosed
		}
		r.active[topic] = &binding{sub: s, cleanup: cleanup}
		r.mu.Unlock()
	}

	r.log.Info("relay.applied",
		slog.String("relay_id", r.id),
		slog.Int("subscriptions", len(f.Subscriptions)),
		slog.Int("started", len(topics)),
		slog.Int("stopped", len(stop)),
	)
	return nil
}

func (r *Relay) checkEndpoints(f File) error {
	owners := make(map[string]string, len(f.Subscriptions))
	for _, s := range f.Subscriptions {
		endpoint := r.client.Endpoint(s.Path)
		key, err := registry.Key(endpoint)
		if err != nil {
			key = endpoint
		}
		if other, ok := owners[key]; ok {
			return fmt.Errorf("relay: topics %q and %q share endpoint %s", other, s.Topic, key)
		}
		owners[key] = s.Topic
	}
	return nil
}

func (r *Relay) start(s Subscription) stream.CleanupFunc {
	ctx := logctx.WithRelayData(context.Background(), &logctx.RelayData{RelayID: r.id, Topic: s.Topic})
	interval, _ := s.interval()

	return r.client.Subscribe(stream.Request{
		Path:              s.Path,
		Params:            s.Params,
		Headers:           s.Headers,
		ReconnectAttempts: s.ReconnectAttempts,
		ReconnectInterval: interval,
		OnOpen: func() {
			r.log.InfoContext(ctx, "relay.stream_open")
		},
		OnMessage: func(data json.RawMessage) {
			id, err := r.broker.Publish(ctx, s.Topic, data)
			if err != nil {
				r.log.ErrorContext(ctx, "relay.publish_failed", slog.String("err", err.Error()))
				return
			}
			r.log.DebugContext(ctx, "relay.published", slog.String("event_id", id))
		},
		OnError: func(err error) {
			r.log.WarnContext(ctx, "relay.stream_error", slog.String("err", err.Error()))
		},
	})
}

// Topics returns the topics with a running session, sorted.
func (r *Relay) Topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	topics := make([]string, 0, len(r.active))
	for topic := range r.active {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// Close stops every session. It is idempotent.
func (r *Relay) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	active := r.active
	r.active = make(map[string]*binding)
	r.mu.Unlock()

	for _, b := range active {
		b.cleanup()
	}
}
