package registry

import (
	"fmt"
	"log/slog"
	"sync"
)

// CleanupFunc releases a registered session.
type CleanupFunc func()

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger. If not provided, logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// Registry tracks the live cleanup for each endpoint. It is safe for
// concurrent use. Cleanups are always invoked without the registry lock held,
// so a cleanup may itself call into the registry.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	log     *slog.Logger
}

type entry struct {
	key     string
	cleanup CleanupFunc
	once    sync.Once
}

// New creates an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[string]*entry),
		log:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register binds cleanup to the endpoint of rawURL. Any cleanup previously
// bound to the same endpoint is invoked, exactly once, before Register
// returns.
//
// The returned function runs cleanup and unbinds the endpoint. It is safe to
// call any number of times; only the first call has an effect, and it never
// unbinds a newer registration that has since replaced this one.
func (r *Registry) Register(rawURL string, cleanup CleanupFunc) CleanupFunc {
	key := r.key(rawURL)
	e := &entry{key: key, cleanup: cleanup}

	r.mu.Lock()
	prev := r.entries[key]
	r.entries[key] = e
	r.mu.Unlock()

	if prev != nil {
		r.log.Debug("registry.evict", slog.String("endpoint", key))
		r.run(prev)
	}

	return func() {
		r.mu.Lock()
		if r.entries[key] == e {
			delete(r.entries, key)
		}
		r.mu.Unlock()
		r.run(e)
	}
}

// CloseExisting runs and removes the cleanup bound to the endpoint of rawURL.
// It is a no-op when nothing is bound.
func (r *Registry) CloseExisting(rawURL string) {
	key := r.key(rawURL)

	r.mu.Lock()
	e := r.entries[key]
	delete(r.entries, key)
	r.mu.Unlock()

	if e != nil {
		r.run(e)
	}
}

// Len returns the number of bound endpoints.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Reset runs every bound cleanup and empties the registry. It is meant for
// shutdown and test teardown.
func (r *Registry) Reset() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range entries {
		r.run(e)
	}
}

func (r *Registry) key(rawURL string) string {
	key, err := Key(rawURL)
	if err != nil {
		r.log.Error("registry.normalize_failed", slog.String("url", rawURL), slog.String("err", err.Error()))
		return rawURL
	}
	return key
}

// run invokes the entry's cleanup at most once. A panicking cleanup is
// logged and swallowed.
func (r *Registry) run(e *entry) {
	e.once.Do(func() {
		defer func() {
			if v := recover(); v != nil {
				r.log.Error("registry.cleanup_panicked", slog.String("endpoint", e.key), slog.String("panic", fmt.Sprint(v)))
			}
		}()
		if e.cleanup != nil {
			e.cleanup()
		}
	})
}
