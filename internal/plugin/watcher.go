package plugin

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// WatchEvent reports a reload performed by Watch.
type WatchEvent struct {
	Path     string
	Unloaded bool
	Err      error
}

// WatchOption configures Watch.
type WatchOption func(*watchConfig)

type watchConfig struct {
	notify func(WatchEvent)
}

// OnReload sets a function called after each reload or unload.
func OnReload(fn func(WatchEvent)) WatchOption {
	return func(c *watchConfig) {
		c.notify = fn
	}
}

// Watch reloads hook files in dir as they change, until ctx is done.
// It does not perform the initial load; call Load first.
func (l *Loader) Watch(ctx context.Context, dir string, opts ...WatchOption) error {
	cfg := watchConfig{notify: func(WatchEvent) {}}
	for _, opt := range opts {
		opt(&cfg)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("plugin: creating watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("%w %s: %w", ErrDirectoryRead, dir, err)
	}
	l.logger.Info("watching hook directory", zap.String("dir", dir))

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if _, match := ParseFilename(filepath.Base(ev.Name)); !match {
				continue
			}
			if we, handled := l.handleEvent(ev); handled {
				cfg.notify(we)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			l.logger.Warn("watch error", zap.String("dir", dir), zap.Error(err))
		}
	}
}

// handleEvent applies one filesystem event to the registry.
// Events other than create, write, remove and rename are not handled.
func (l *Loader) handleEvent(ev fsnotify.Event) (WatchEvent, bool) {
	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		l.Unload(ev.Name)
		return WatchEvent{Path: ev.Name, Unloaded: true}, true

	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		if _, err := l.LoadFile(ev.Name); err != nil {
			// The previous version of the file, if any, stays registered.
			l.logger.Error("hook file reload failed", zap.String("path", ev.Name), zap.Error(err))
			return WatchEvent{Path: ev.Name, Err: err}, true
		}
		l.logger.Info("hook file reloaded", zap.String("path", ev.Name))
		return WatchEvent{Path: ev.Name}, true

	default:
		return WatchEvent{}, false
	}
}
