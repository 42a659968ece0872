package plugin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	glua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/dshills/hookline/internal/hook"
	"github.com/dshills/hookline/internal/plugin/lua"
)

// Entry is one hook file registered by a load.
type Entry struct {
	FileSpec
	Path string
	Spec hook.Spec
}

// Grouping holds the entries of a load keyed by the phase in their file name.
type Grouping map[hook.Phase][]Entry

// Count returns the number of entries across all phases.
func (g Grouping) Count() int {
	n := 0
	for _, entries := range g {
		n += len(entries)
	}
	return n
}

// Loader evaluates hook files and registers their handlers.
type Loader struct {
	registry     *hook.Registry
	logger       *zap.Logger
	timeout      time.Duration
	capabilities []lua.Capability

	mu     sync.Mutex
	states map[string]*lua.State
	closed bool
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLogger sets the loader logger. Hook files log through it too.
func WithLogger(l *zap.Logger) LoaderOption {
	return func(ld *Loader) {
		if l != nil {
			ld.logger = l
		}
	}
}

// WithExecutionTimeout bounds each Lua call made by a hook file.
func WithExecutionTimeout(d time.Duration) LoaderOption {
	return func(ld *Loader) {
		ld.timeout = d
	}
}

// WithCapabilities grants sandbox capabilities to every hook file.
func WithCapabilities(caps ...lua.Capability) LoaderOption {
	return func(ld *Loader) {
		ld.capabilities = append(ld.capabilities, caps...)
	}
}

// NewLoader creates a loader that registers into reg.
func NewLoader(reg *hook.Registry, opts ...LoaderOption) *Loader {
	l := &Loader{
		registry: reg,
		logger:   zap.NewNop(),
		timeout:  lua.DefaultExecutionTimeout,
		states:   make(map[string]*lua.State),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load evaluates every hook file in dir and registers their handlers.
// Files are evaluated in name order. If any file fails, nothing from dir is
// registered and a *LoadError is returned. Files from an earlier load of dir
// that are no longer present are unloaded.
func (l *Loader) Load(ctx context.Context, dir string) (Grouping, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrDirectoryRead, dir, err)
	}

	var loaded []evaluated
	discard := func() {
		for _, ev := range loaded {
			ev.state.Close()
		}
	}

	for _, de := range entries {
		if err := ctx.Err(); err != nil {
			discard()
			return nil, err
		}
		if de.IsDir() {
			continue
		}
		fs, ok := ParseFilename(de.Name())
		if !ok {
			l.logger.Debug("skip file", zap.String("file", de.Name()))
			continue
		}

		path := filepath.Join(dir, de.Name())
		entry, state, err := l.evaluate(path, fs)
		if err != nil {
			discard()
			return nil, err
		}
		loaded = append(loaded, evaluated{entry: entry, state: state})
	}

	if err := l.commit(loaded, filepath.Clean(dir)); err != nil {
		return nil, err
	}

	group := make(Grouping)
	for _, ev := range loaded {
		l.logRegistered(ev.entry)
		group[ev.entry.Phase] = append(group[ev.entry.Phase], ev.entry)
	}

	l.logger.Info("hooks loaded",
		zap.String("dir", dir),
		zap.Int("files", group.Count()),
	)
	return group, nil
}

// LoadFile evaluates a single hook file and registers its handlers, replacing
// any handlers the same path registered before.
func (l *Loader) LoadFile(path string) (Entry, error) {
	fs, ok := ParseFilename(filepath.Base(path))
	if !ok {
		return Entry{}, &LoadError{Path: path, Err: fmt.Errorf("file name does not match <name>[-<phase>][-<priority>]%s", Extension)}
	}
	entry, state, err := l.evaluate(path, fs)
	if err != nil {
		return Entry{}, err
	}
	if err := l.commit([]evaluated{{entry: entry, state: state}}, ""); err != nil {
		return Entry{}, err
	}
	l.logRegistered(entry)
	return entry, nil
}

// Unload drops the handlers registered from path and closes its Lua state.
// It reports whether path was loaded.
func (l *Loader) Unload(path string) bool {
	l.mu.Lock()
	state, ok := l.states[path]
	delete(l.states, path)
	l.mu.Unlock()

	if !ok {
		return false
	}
	removed := l.registry.RemoveSource(path)
	state.Close()
	l.logger.Info("hook file unloaded", zap.String("path", path), zap.Int("records", removed))
	return true
}

// Files returns the loaded file paths in sorted order.
func (l *Loader) Files() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	paths := make([]string, 0, len(l.states))
	for p := range l.states {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Close releases every Lua state. Handlers from closed states fail with
// lua.ErrStateClosed if they are still executed.
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	for path, state := range l.states {
		state.Close()
		delete(l.states, path)
	}
	return nil
}

// evaluate runs path in a new Lua state and resolves its exported value.
func (l *Loader) evaluate(path string, fs FileSpec) (Entry, *lua.State, error) {
	state, err := lua.NewState(
		lua.WithExecutionTimeout(l.timeout),
		lua.WithModule(moduleName, l.module(path)),
	)
	if err != nil {
		return Entry{}, nil, &LoadError{Path: path, Err: err}
	}
	for _, c := range l.capabilities {
		state.Sandbox().Grant(c)
	}

	exported, err := state.Load(path)
	if err != nil {
		state.Close()
		return Entry{}, nil, &LoadError{Path: path, Err: err}
	}

	spec, err := l.toSpec(path, state, exported)
	if err != nil {
		state.Close()
		return Entry{}, nil, &LoadError{Path: path, Err: err}
	}

	return Entry{FileSpec: fs, Path: path, Spec: spec}, state, nil
}

// evaluated is a hook file that ran but is not registered yet.
type evaluated struct {
	entry Entry
	state *lua.State
}

// commit registers batch while holding l.mu, so Close sees none or all of it.
// When dir is not empty, loaded files in dir missing from batch are dropped.
// On failure the batch is rolled back and its states are closed; a file the
// batch was replacing stays unloaded.
func (l *Loader) commit(batch []evaluated, dir string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		for _, ev := range batch {
			ev.state.Close()
		}
		return ErrLoaderClosed
	}

	var retired []*lua.State
	for i, ev := range batch {
		path := ev.entry.Path
		l.registry.RemoveSource(path)
		if old := l.states[path]; old != nil {
			retired = append(retired, old)
			delete(l.states, path)
		}
		if err := l.registry.RegisterFrom(path, ev.entry.Phase, ev.entry.Name, ev.entry.Spec, ev.entry.Priority); err != nil {
			for _, done := range batch[:i] {
				l.registry.RemoveSource(done.entry.Path)
				delete(l.states, done.entry.Path)
			}
			for _, ev := range batch {
				ev.state.Close()
			}
			for _, st := range retired {
				st.Close()
			}
			return &LoadError{Path: path, Err: err}
		}
		l.states[path] = ev.state
	}

	if dir != "" {
		keep := make(map[string]bool, len(batch))
		for _, ev := range batch {
			keep[ev.entry.Path] = true
		}
		for path, st := range l.states {
			if keep[path] || filepath.Dir(path) != dir {
				continue
			}
			removed := l.registry.RemoveSource(path)
			delete(l.states, path)
			retired = append(retired, st)
			l.logger.Info("hook file unloaded", zap.String("path", path), zap.Int("records", removed))
		}
	}

	for _, st := range retired {
		st.Close()
	}
	return nil
}

func (l *Loader) logRegistered(entry Entry) {
	l.logger.Debug("hook file registered",
		zap.String("path", entry.Path),
		zap.String("hook", entry.Name),
		zap.String("phase", entry.Phase.String()),
		zap.Int("priority", entry.Priority),
	)
}

// toSpec converts a file's exported value into a hook.Spec.
func (l *Loader) toSpec(path string, state *lua.State, v glua.LValue) (hook.Spec, error) {
	switch val := v.(type) {
	case *glua.LFunction:
		return hook.Single(l.luaHandler(path, state, val)), nil
	case *glua.LTable:
		if val.Len() > 0 {
			return l.sequence(path, state, val)
		}
		return l.bundle(path, state, val)
	default:
		return nil, fmt.Errorf("%w: file returned %s", hook.ErrInvalidHandlerShape, v.Type())
	}
}

// sequence converts an array of functions into a Many spec.
func (l *Loader) sequence(path string, state *lua.State, t *glua.LTable) (hook.Spec, error) {
	n := t.Len()
	handlers := make([]hook.Handler, 0, n)
	for i := 1; i <= n; i++ {
		fn, ok := t.RawGetInt(i).(*glua.LFunction)
		if !ok {
			return nil, fmt.Errorf("%w: element %d is %s", hook.ErrInvalidHandlerShape, i, t.RawGetInt(i).Type())
		}
		handlers = append(handlers, l.luaHandler(path, state, fn))
	}
	return hook.Many(handlers...), nil
}

// bundle converts a {pre, main, post} table into a Bundle spec.
func (l *Loader) bundle(path string, state *lua.State, t *glua.LTable) (hook.Spec, error) {
	var b hook.Bundle
	slots := map[hook.Phase]*hook.Spec{
		hook.PhasePre:  &b.Pre,
		hook.PhaseMain: &b.Main,
		hook.PhasePost: &b.Post,
	}

	found := 0
	for _, p := range hook.Phases {
		v := t.RawGetString(string(p))
		switch val := v.(type) {
		case *glua.LNilType:
			continue
		case *glua.LFunction:
			*slots[p] = hook.Single(l.luaHandler(path, state, val))
		case *glua.LTable:
			spec, err := l.sequence(path, state, val)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", p, err)
			}
			*slots[p] = spec
		default:
			return nil, fmt.Errorf("%w: %s is %s", hook.ErrInvalidHandlerShape, p, v.Type())
		}
		found++
	}

	if found == 0 {
		l.logger.Warn("hook file returned an empty bundle", zap.String("path", path))
	}
	return b, nil
}
