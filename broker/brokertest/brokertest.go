// Package brokertest is a conformance suite for broker.Broker
// implementations.
package brokertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/tradestream-go/broker"
)

// BrokerFactory is a function that creates a new broker instance for testing.
type BrokerFactory func(t *testing.T) broker.Broker

// RunBrokerTests runs the complete broker test suite against the provided factory.
func RunBrokerTests(t *testing.T, factory BrokerFactory) {
	t.Run("PublishAndSubscribeFromNext", func(t *testing.T) {
		testPublishAndSubscribeFromNext(t, factory)
	})
	t.Run("ResumeFromLastEventID", func(t *testing.T) {
		testResumeFromLastEventID(t, factory)
	})
	t.Run("OrderedDelivery", func(t *testing.T) {
		testOrderedDelivery(t, factory)
	})
	t.Run("MultipleSubscribersToSameTopic", func(t *testing.T) {
		testMultipleSubscribersToSameTopic(t, factory)
	})
	t.Run("TopicIsolation", func(t *testing.T) {
		testTopicIsolation(t, factory)
	})
	t.Run("SubscriptionContextCancellation", func(t *testing.T) {
		testSubscriptionContextCancellation(t, factory)
	})
	t.Run("HandlerErrorStopsSubscription", func(t *testing.T) {
		testHandlerErrorStopsSubscription(t, factory)
	})
	t.Run("Cleanup", func(t *testing.T) {
		testCleanup(t, factory)
	})
	t.Run("ResumeFromUnknownEventID", func(t *testing.T) {
		testResumeFromUnknownEventID(t, factory)
	})
}

var topics = []string{
	"test.next", "test.resume", "test.ordered", "test.multi",
	"test.isolation.a", "test.isolation.b", "test.cancel",
	"test.handler-error", "test.cleanup", "test.unknown",
}

// collector gathers delivered envelopes and cancels once it has want.
type collector struct {
	mu     sync.Mutex
	got    []broker.MessageEnvelope
	want   int
	cancel context.CancelFunc
}

func (c *collector) handle(_ context.Context, env broker.MessageEnvelope) error {
	c.mu.Lock()
	c.got = append(c.got, env)
	done := c.want > 0 && len(c.got) >= c.want
	c.mu.Unlock()
	if done && c.cancel != nil {
		c.cancel()
	}
	return nil
}

func (c *collector) envelopes() []broker.MessageEnvelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]broker.MessageEnvelope(nil), c.got...)
}

func subscribe(ctx context.Context, b broker.Broker, topic, lastEventID string, h broker.MessageHandler) <-chan error {
	done := make(chan error, 1)
	go func() { done <- b.Subscribe(ctx, topic, lastEventID, h) }()
	return done
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("Subscription did not complete within timeout")
		return nil
	}
}

func publish(t *testing.T, ctx context.Context, b broker.Broker, topic, data string) string {
	t.Helper()
	id, err := b.Publish(ctx, topic, []byte(data))
	if err != nil {
		t.Fatalf("Failed to publish to %s: %v", topic, err)
	}
	if id == "" {
		t.Fatal("Expected non-empty event ID")
	}
	return id
}

func testPublishAndSubscribeFromNext(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	defer cleanupBroker(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	publish(t, ctx, b, "test.next", `{"before":true}`)

	c := &collector{want: 1, cancel: cancel}
	done := subscribe(ctx, b, "test.next", "", c.handle)

	// Give subscription time to start
	time.Sleep(100 * time.Millisecond)
	id := publish(t, ctx, b, "test.next", `{"price":"1.25"}`)

	if err := waitDone(t, done); !errors.Is(err, context.Canceled) {
		t.Fatalf("Subscription error: %v", err)
	}
	got := c.envelopes()
	if len(got) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(got))
	}
	if got[0].ID != id || string(got[0].Data) != `{"price":"1.25"}` {
		t.Fatalf("Unexpected envelope %s %s", got[0].ID, got[0].Data)
	}
}

func testResumeFromLastEventID(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	defer cleanupBroker(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id1 := publish(t, ctx, b, "test.resume", `1`)
	id2 := publish(t, ctx, b, "test.resume", `2`)
	id3 := publish(t, ctx, b, "test.resume", `3`)

	c := &collector{want: 2, cancel: cancel}
	done := subscribe(ctx, b, "test.resume", id1, c.handle)

	if err := waitDone(t, done); !errors.Is(err, context.Canceled) {
		t.Fatalf("Subscription error: %v", err)
	}
	got := c.envelopes()
	if len(got) != 2 || got[0].ID != id2 || got[1].ID != id3 {
		t.Fatalf("Expected messages after %s, got %v", id1, got)
	}
}

func testOrderedDelivery(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	defer cleanupBroker(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const n = 25
	c := &collector{want: n, cancel: cancel}
	done := subscribe(ctx, b, "test.ordered", "", c.handle)
	time.Sleep(100 * time.Millisecond)

	for i := 0; i < n; i++ {
		publish(t, ctx, b, "test.ordered", fmt.Sprintf(`{"seq":%d}`, i))
	}

	if err := waitDone(t, done); !errors.Is(err, context.Canceled) {
		t.Fatalf("Subscription error: %v", err)
	}
	got := c.envelopes()
	if len(got) != n {
		t.Fatalf("Expected %d messages, got %d", n, len(got))
	}
	for i, env := range got {
		if want := fmt.Sprintf(`{"seq":%d}`, i); string(env.Data) != want {
			t.Fatalf("Message %d out of order: got %s want %s", i, env.Data, want)
		}
	}
}

func testMultipleSubscribersToSameTopic(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	defer cleanupBroker(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c1 := &collector{}
	c2 := &collector{}
	done1 := subscribe(ctx, b, "test.multi", "", c1.handle)
	done2 := subscribe(ctx, b, "test.multi", "", c2.handle)
	time.Sleep(100 * time.Millisecond)

	id := publish(t, ctx, b, "test.multi", `{"balance":"10.00"}`)

	// Wait a bit for message delivery
	time.Sleep(200 * time.Millisecond)
	cancel()
	waitDone(t, done1)
	waitDone(t, done2)

	for i, c := range []*collector{c1, c2} {
		got := c.envelopes()
		if len(got) != 1 || got[0].ID != id {
			t.Fatalf("Subscriber %d: expected event %s, got %v", i+1, id, got)
		}
	}
}

func testTopicIsolation(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	defer cleanupBroker(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ca := &collector{}
	cb := &collector{}
	doneA := subscribe(ctx, b, "test.isolation.a", "", ca.handle)
	doneB := subscribe(ctx, b, "test.isolation.b", "", cb.handle)
	time.Sleep(100 * time.Millisecond)

	publish(t, ctx, b, "test.isolation.a", `"a"`)
	publish(t, ctx, b, "test.isolation.b", `"b"`)

	time.Sleep(200 * time.Millisecond)
	cancel()
	waitDone(t, doneA)
	waitDone(t, doneB)

	if got := ca.envelopes(); len(got) != 1 || string(got[0].Data) != `"a"` {
		t.Fatalf("Topic a received %v", got)
	}
	if got := cb.envelopes(); len(got) != 1 || string(got[0].Data) != `"b"` {
		t.Fatalf("Topic b received %v", got)
	}
}

func testSubscriptionContextCancellation(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	defer cleanupBroker(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	done := subscribe(ctx, b, "test.cancel", "", func(context.Context, broker.MessageEnvelope) error { return nil })
	if err := waitDone(t, done); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected context.DeadlineExceeded, got %v", err)
	}
}

func testHandlerErrorStopsSubscription(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	defer cleanupBroker(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	expectedErr := errors.New("handler error")
	done := subscribe(ctx, b, "test.handler-error", "", func(context.Context, broker.MessageEnvelope) error {
		return expectedErr
	})
	time.Sleep(100 * time.Millisecond)
	publish(t, ctx, b, "test.handler-error", `{}`)

	if err := waitDone(t, done); !errors.Is(err, expectedErr) {
		t.Fatalf("Expected handler error, got %v", err)
	}
}

func testCleanup(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	defer cleanupBroker(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id := publish(t, ctx, b, "test.cleanup", `{}`)
	publish(t, ctx, b, "test.cleanup", `{}`)
	if err := b.Cleanup(ctx, "test.cleanup"); err != nil {
		t.Fatalf("Failed to cleanup topic: %v", err)
	}

	subCtx, subCancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer subCancel()
	err := b.Subscribe(subCtx, "test.cleanup", id, func(context.Context, broker.MessageEnvelope) error {
		t.Error("Should not receive any messages after cleanup")
		return nil
	})
	// Implementations may either reject the forgotten ID or wait out the deadline.
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, broker.ErrUnknownEventID) {
		t.Fatalf("Unexpected error after cleanup: %v", err)
	}
}

func testResumeFromUnknownEventID(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	defer cleanupBroker(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := b.Subscribe(ctx, "test.unknown", "non-existent-id", func(context.Context, broker.MessageEnvelope) error {
		return nil
	})
	if !errors.Is(err, broker.ErrUnknownEventID) {
		t.Fatalf("Expected ErrUnknownEventID, got %v", err)
	}
}

// cleanupBroker attempts to cleanup any test resources.
// This is a best-effort cleanup and errors are logged but not fatal.
func cleanupBroker(t *testing.T, b broker.Broker) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, topic := range topics {
		if err := b.Cleanup(ctx, topic); err != nil {
			t.Logf("Warning: failed to cleanup topic %s: %v", topic, err)
		}
	}

	if closer, ok := b.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			t.Logf("Warning: failed to close broker: %v", err)
		}
	}
}
