package lua

import (
	"context"
	"fmt"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// DefaultExecutionTimeout bounds a single Load or Invoke call.
const DefaultExecutionTimeout = 5 * time.Second

// State is a sandboxed Lua runtime for one hook file.
//
// gopher-lua's LState is not goroutine-safe. Every entry point takes the
// State mutex, so Go code may call into a State from any goroutine, but Lua
// code must never re-enter its own State from inside a call.
type State struct {
	L *lua.LState

	mu               sync.Mutex
	executionTimeout time.Duration
	preload          map[string]lua.LGFunction
	sandbox          *Sandbox
	closed           bool
}

// StateOption configures a State.
type StateOption func(*State)

// WithExecutionTimeout sets the timeout for each Load and Invoke call.
// Zero or negative disables the timeout.
func WithExecutionTimeout(d time.Duration) StateOption {
	return func(s *State) {
		s.executionTimeout = d
	}
}

// WithModule makes a Go-implemented module available to require.
func WithModule(name string, loader lua.LGFunction) StateOption {
	return func(s *State) {
		s.preload[name] = loader
	}
}

// NewState creates a new sandboxed Lua state.
func NewState(opts ...StateOption) (*State, error) {
	s := &State{
		executionTimeout: DefaultExecutionTimeout,
		preload:          make(map[string]lua.LGFunction),
	}
	for _, opt := range opts {
		opt(s)
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibraries(L)

	modules := make([]string, 0, len(s.preload))
	for name, loader := range s.preload {
		L.PreloadModule(name, loader)
		modules = append(modules, name)
	}

	s.L = L
	s.sandbox = NewSandbox(L, modules...)
	s.sandbox.Install()
	return s, nil
}

// openSafeLibraries opens the libraries hook files may use.
// io, os and debug are opened only through sandbox capabilities.
func openSafeLibraries(L *lua.LState) {
	lua.OpenPackage(L)
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
}

// Load executes the Lua file at path and returns the chunk's first return
// value.
func (s *State) Load(path string) (lua.LValue, error) {
	var exported lua.LValue
	err := s.Invoke(func(L *lua.LState) error {
		fn, err := L.LoadFile(path)
		if err != nil {
			return err
		}
		top := L.GetTop()
		L.Push(fn)
		if err := L.PCall(0, 1, nil); err != nil {
			return err
		}
		exported = L.Get(top + 1)
		L.SetTop(top)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if exported == nil || exported == lua.LNil {
		return nil, ErrNoReturnValue
	}
	return exported, nil
}

// DoString executes a Lua string.
func (s *State) DoString(code string) error {
	return s.Invoke(func(L *lua.LState) error {
		return L.DoString(code)
	})
}

// Invoke runs fn with exclusive access to the LState, under the execution
// timeout. A panic inside fn is returned as an error.
func (s *State) Invoke(fn func(L *lua.LState) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStateClosed
	}

	if s.executionTimeout > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), s.executionTimeout)
		defer cancel()
		s.L.SetContext(ctx)
		defer s.L.RemoveContext()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn(s.L)
}

// Sandbox returns the sandbox for capability management.
func (s *State) Sandbox() *Sandbox {
	return s.sandbox
}

// Close releases the Lua state. Later calls return ErrStateClosed.
func (s *State) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.L.Close()
	s.closed = true
	return nil
}
