package relay

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Run loads the subscription file at path, applies it, and re-applies it
// whenever the file changes until ctx is done. A file that fails to load
// during a reload is logged and the running subscriptions are kept; a file
// that fails on the first load is returned as an error.
func (r *Relay) Run(ctx context.Context, path string) error {
	path, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("relay: resolve %s: %w", path, err)
	}

	f, err := LoadFile(path)
	if err != nil {
		return err
	}
	if err := r.Apply(f); err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("relay: create watcher: %w", err)
	}
	defer func() {
		_ = w.Close()
	}()

	// Watch the directory: editors often replace the file by rename, which
	// drops a watch on the file itself.
	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("relay: watch %s: %w", filepath.Dir(path), err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			r.reload(path)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			r.log.Warn("relay.watch_error", slog.String("err", err.Error()))
		}
	}
}

func (r *Relay) reload(path string) {
	f, err := LoadFile(path)
	if err != nil {
		r.log.Warn("relay.reload_failed", slog.String("path", path), slog.String("err", err.Error()))
		return
	}
	if err := r.Apply(f); err != nil {
		r.log.Warn("relay.reload_rejected", slog.String("path", path), slog.String("err", err.Error()))
		return
	}
	r.log.Info("relay.reloaded", slog.String("path", path))
}
