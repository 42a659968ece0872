package plugin

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dshills/hookline/internal/hook"
)

func TestHandleEvent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "save-pre.lua")
	writeFiles(t, dir, map[string]string{"save-pre.lua": `return function(ctx, next) next() end`})

	l, reg, _ := newLoader(t)

	ev, handled := l.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Create})
	if !handled || ev.Err != nil || ev.Unloaded {
		t.Fatalf("create event = %+v, %v", ev, handled)
	}
	if n := len(reg.Lookup("save", hook.PhasePre)); n != 1 {
		t.Fatalf("pre records = %d, want 1", n)
	}

	// A broken rewrite keeps the previous handlers.
	writeFiles(t, dir, map[string]string{"save-pre.lua": `return 7`})
	ev, _ = l.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Write})
	if ev.Err == nil {
		t.Error("write event with bad file should report an error")
	}
	if n := len(reg.Lookup("save", hook.PhasePre)); n != 1 {
		t.Errorf("pre records after failed reload = %d, want 1", n)
	}

	if _, handled := l.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Chmod}); handled {
		t.Error("chmod event should not be handled")
	}

	ev, _ = l.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Remove})
	if !ev.Unloaded {
		t.Errorf("remove event = %+v, want Unloaded", ev)
	}
	if reg.Count() != 0 {
		t.Errorf("Count() after remove = %d, want 0", reg.Count())
	}
}

func TestWatchReloads(t *testing.T) {
	dir := t.TempDir()
	l, reg, eng := newLoader(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Watch(ctx, dir) }()
	defer func() {
		cancel()
		<-done
	}()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(dir, "ping.lua")
	tmp := filepath.Join(dir, "ping.tmp")
	if err := os.WriteFile(tmp, []byte(`return function(ctx, next) next(nil, "pong") end`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for reg.Count() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if reg.Count() != 1 {
		t.Fatalf("Count() = %d, want 1 after create", reg.Count())
	}
	if r, err := run(t, eng, "ping", nil, nil, hook.AllPhases()); err != nil || r != "pong" {
		t.Errorf("ping = %v, %v", r, err)
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	deadline = time.Now().Add(5 * time.Second)
	for reg.Count() != 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if reg.Count() != 0 {
		t.Errorf("Count() = %d, want 0 after remove", reg.Count())
	}
}

func TestWatchMissingDirectory(t *testing.T) {
	l, _, _ := newLoader(t)
	err := l.Watch(context.Background(), filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Error("Watch() on a missing directory should fail")
	}
}
