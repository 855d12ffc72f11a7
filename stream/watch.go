package stream

import (
	"encoding/json"
	"sync"
)

// JSON adapts a typed callback to Request.OnMessage. Payloads that do not
// decode into T are reported to onError as a *DecodeError.
func JSON[T any](onData func(T), onError func(error)) func(json.RawMessage) {
	return func(raw json.RawMessage) {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			if onError != nil {
				onError(&DecodeError{Payload: string(raw), Err: err})
			}
			return
		}
		onData(v)
	}
}

// Snapshot is the latest state observed by a Watcher.
type Snapshot[T any] struct {
	// Data is the most recent value, nil until the first one arrives.
	Data *T
	// Err is the most recent error, nil until one is reported.
	Err error
	// Connecting is true from the start of the subscription until the first
	// value or error.
	Connecting bool
}

// Watcher keeps the latest value of a subscription.
type Watcher[T any] struct {
	mu      sync.Mutex
	snap    Snapshot[T]
	stop    CleanupFunc
	changed chan struct{}
}

// Watch subscribes through subscribe and records every value and error it
// reports. Stop ends the underlying subscription.
func Watch[T any](subscribe func(onData func(T), onError func(error)) CleanupFunc) *Watcher[T] {
	w := &Watcher[T]{
		snap:    Snapshot[T]{Connecting: true},
		changed: make(chan struct{}, 1),
	}
	w.stop = subscribe(w.setData, w.setErr)
	return w
}

func (w *Watcher[T]) setData(v T) {
	w.mu.Lock()
	w.snap.Data = &v
	w.snap.Connecting = false
	w.mu.Unlock()
	w.notify()
}

func (w *Watcher[T]) setErr(err error) {
	w.mu.Lock()
	w.snap.Err = err
	w.snap.Connecting = false
	w.mu.Unlock()
	w.notify()
}

func (w *Watcher[T]) notify() {
	select {
	case w.changed <- struct{}{}:
	default:
	}
}

// Snapshot returns the current state.
func (w *Watcher[T]) Snapshot() Snapshot[T] {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snap
}

// Changed receives a value after the snapshot changes. Changes that happen
// while a previous signal is unread are coalesced.
func (w *Watcher[T]) Changed() <-chan struct{} { return w.changed }

// Stop ends the subscription. It is idempotent.
func (w *Watcher[T]) Stop() {
	if w.stop != nil {
		w.stop()
	}
}
