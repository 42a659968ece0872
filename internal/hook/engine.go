package hook

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Callback receives the outcome of an execution: the first handler error
// together with the result that handler passed alongside it, or the result
// the last handler passed to its continuation.
type Callback func(err error, result any)

// Engine executes registered hook pipelines.
type Engine struct {
	registry *Registry
	logger   *zap.Logger
	observer Observer
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithObserver sets the observer notified of handler calls and completions.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

// NewEngine creates an engine reading handlers from reg.
func NewEngine(reg *Registry, opts ...Option) *Engine {
	e := &Engine{
		registry: reg,
		logger:   zap.NewNop(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the registry the engine reads from.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Execute runs the pre, main and post stacks of name in sequence.
// Each phase's final result is the Prev of the next phase's first handler.
func (e *Engine) Execute(name string, args []any, recv any, cb Callback) error {
	return e.ExecuteSelect(name, args, recv, cb, AllPhases())
}

// ExecutePhase runs only the given phase's stack of name.
func (e *Engine) ExecutePhase(phase Phase, name string, args []any, recv any, cb Callback) error {
	if !phase.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidPhase, string(phase))
	}
	return e.ExecuteSelect(name, args, recv, cb, OnlyPhase(phase))
}

// ExecuteStack runs stack as given, without consulting the registry.
func (e *Engine) ExecuteStack(name string, stack []Handler, args []any, recv any, cb Callback) {
	e.start(name, args, recv, cb, Explicit(stack...))
}

// Pre runs only the pre stack of name.
func (e *Engine) Pre(name string, args []any, recv any, cb Callback) error {
	return e.ExecutePhase(PhasePre, name, args, recv, cb)
}

// Post runs only the post stack of name.
func (e *Engine) Post(name string, args []any, recv any, cb Callback) error {
	return e.ExecutePhase(PhasePost, name, args, recv, cb)
}

// ExecuteSelect runs the handlers chosen by sel. It returns an error only
// when sel names an invalid phase; every other outcome goes to cb.
func (e *Engine) ExecuteSelect(name string, args []any, recv any, cb Callback, sel Selector) error {
	if !sel.explicit && sel.phase != "" && !sel.phase.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidPhase, string(sel.phase))
	}
	e.start(name, args, recv, cb, sel)
	return nil
}

// start runs a validated selection.
func (e *Engine) start(name string, args []any, recv any, cb Callback, sel Selector) {
	ex := &execution{
		engine: e,
		id:     uuid.NewString(),
		name:   name,
		args:   args,
		recv:   recv,
		mode:   sel.mode(),
		start:  time.Now(),
	}
	ex.done = ex.finish(cb)

	e.logger.Debug("execute",
		zap.String("execution_id", ex.id),
		zap.String("hook", name),
		zap.String("mode", ex.mode),
	)

	switch {
	case sel.explicit:
		stack := make([]Handler, len(sel.stack))
		copy(stack, sel.stack)
		ex.runStack("", stack, nil, ex.done)
	case sel.phase != "":
		ex.runStack(sel.phase, e.registry.Stack(name, sel.phase), nil, ex.done)
	default:
		// All three stacks are built before any handler runs.
		stacks := make([]phaseStack, len(Phases))
		for i, p := range Phases {
			stacks[i] = phaseStack{phase: p, stack: e.registry.Stack(name, p)}
		}
		ex.runPhases(stacks, nil)
	}
}

// Run executes like ExecuteSelect and blocks until the callback fires or ctx
// is done. When ctx ends first, the pipeline keeps running in the background
// and its outcome is discarded.
func (e *Engine) Run(ctx context.Context, name string, args []any, recv any, sel Selector) (any, error) {
	type outcome struct {
		result any
		err    error
	}
	ch := make(chan outcome, 1)

	err := e.ExecuteSelect(name, args, recv, func(err error, result any) {
		ch <- outcome{result: result, err: err}
	}, sel)
	if err != nil {
		return nil, err
	}

	select {
	case o := <-ch:
		return o.result, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// execution is the state of one Execute call.
type execution struct {
	engine *Engine
	id     string
	name   string
	args   []any
	recv   any
	mode   string
	start  time.Time
	done   Callback
}

// finish wraps the caller's callback with completion logging and metrics.
func (ex *execution) finish(cb Callback) Callback {
	return func(err error, result any) {
		d := time.Since(ex.start)
		ex.engine.observer.ExecutionDone(ex.name, ex.mode, err, d)
		ex.engine.logger.Debug("execute done",
			zap.String("execution_id", ex.id),
			zap.String("hook", ex.name),
			zap.String("mode", ex.mode),
			zap.Duration("duration", d),
			zap.Error(err),
		)
		if cb != nil {
			cb(err, result)
		}
	}
}

// runPhases runs the remaining phase stacks in order, threading each
// phase's result into the next.
func (ex *execution) runPhases(stacks []phaseStack, prev any) {
	if len(stacks) == 0 {
		ex.done(nil, prev)
		return
	}
	cur, rest := stacks[0], stacks[1:]
	ex.runStack(cur.phase, cur.stack, prev, func(err error, result any) {
		if err != nil {
			ex.done(err, result)
			return
		}
		ex.runPhases(rest, result)
	})
}

type phaseStack struct {
	phase Phase
	stack []Handler
}

// runStack invokes stack left to right. A continuation fired before its
// handler returns is consumed by the loop; one fired later resumes the
// remaining stack on the caller's goroutine.
func (ex *execution) runStack(phase Phase, stack []Handler, prev any, done Callback) {
	for i := 0; ; i++ {
		if i >= len(stack) {
			done(nil, prev)
			return
		}

		st := &step{ex: ex, phase: phase, rest: stack[i+1:], done: done}
		call := &Call{
			Hook:    ex.name,
			Phase:   phase,
			Args:    ex.args,
			Context: ex.recv,
			Prev:    prev,
		}
		ex.invoke(st, stack[i], call)

		fired, result, err := st.handlerReturned()
		if !fired {
			return
		}
		if err != nil {
			done(err, result)
			return
		}
		prev = result
	}
}

// invoke calls h, converting a panic into a handler error.
func (ex *execution) invoke(st *step, h Handler, call *Call) {
	defer func() {
		if r := recover(); r != nil {
			ex.engine.logger.Error("handler panic",
				zap.String("execution_id", ex.id),
				zap.String("hook", ex.name),
				zap.String("phase", string(call.Phase)),
				zap.Any("panic", r),
			)
			st.fire(fmt.Errorf("%w: %v", ErrHandlerPanic, r), nil, true)
		}
	}()

	ex.engine.observer.HandlerCalled(ex.name, call.Phase)
	h(call, st.next)
}

// step tracks the continuation of a single handler call.
type step struct {
	ex    *execution
	phase Phase
	rest  []Handler
	done  Callback

	mu       sync.Mutex
	fired    bool
	returned bool
	err      error
	result   any
}

func (st *step) next(err error, result any) {
	st.fire(err, result, false)
}

func (st *step) fire(err error, result any, recovered bool) {
	st.mu.Lock()
	if st.fired {
		st.mu.Unlock()
		if !recovered {
			st.ex.engine.logger.Warn("continuation called more than once",
				zap.String("execution_id", st.ex.id),
				zap.String("hook", st.ex.name),
				zap.String("phase", string(st.phase)),
			)
		}
		return
	}
	st.fired = true
	if !st.returned {
		st.err, st.result = err, result
		st.mu.Unlock()
		return
	}
	st.mu.Unlock()

	if err != nil {
		st.done(err, result)
		return
	}
	st.ex.runStack(st.phase, st.rest, result, st.done)
}

// handlerReturned marks the handler as returned and reports whether its
// continuation already fired.
func (st *step) handlerReturned() (fired bool, result any, err error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.returned = true
	return st.fired, st.result, st.err
}
