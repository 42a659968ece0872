package hook

import "fmt"

// Next is the continuation a handler calls to finish.
// A non-nil err stops the pipeline; result becomes the next handler's Prev.
type Next func(err error, result any)

// Handler is a single step of a hook pipeline.
type Handler func(call *Call, next Next)

// Call describes one handler invocation.
type Call struct {
	// Hook is the hook name being executed.
	Hook string

	// Phase is the phase of the running stack. Empty for explicit stacks.
	Phase Phase

	// Args is the fixed argument list shared by every handler.
	Args []any

	// Context is the receiver every handler in the pipeline is bound to.
	Context any

	// Prev is the result of the previous handler, or nil for the first one.
	Prev any
}

// Spec describes the handlers passed to a registration.
// The concrete shapes are Single, Many and Bundle.
type Spec interface {
	isSpec()
}

type single struct {
	h Handler
}

func (single) isSpec() {}

type many struct {
	hs []Handler
}

func (many) isSpec() {}

// Single registers one handler.
func Single(h Handler) Spec {
	return single{h: h}
}

// Many registers an ordered list of handlers under the same name, phase and
// priority.
func Many(hs ...Handler) Spec {
	return many{hs: hs}
}

// Bundle groups pre, main and post handlers for one hook name.
// Nil fields are skipped.
type Bundle struct {
	Pre  Spec
	Main Spec
	Post Spec
}

func (Bundle) isSpec() {}

// Record is a registered handler.
type Record struct {
	Name     string
	Phase    Phase
	Priority int
	Handler  Handler

	// Source identifies where the record came from, such as a hook file path.
	// Empty for handlers registered directly.
	Source string
}

// String returns a short description of the record.
func (r Record) String() string {
	if r.Source != "" {
		return fmt.Sprintf("%s[%s]@%d (%s)", r.Name, r.Phase, r.Priority, r.Source)
	}
	return fmt.Sprintf("%s[%s]@%d", r.Name, r.Phase, r.Priority)
}

// expand resolves a spec into records for the given phase.
// Bundles may only appear at the top level.
func expand(phase Phase, name string, spec Spec, priority int, source string, nested bool) ([]Record, error) {
	switch s := spec.(type) {
	case single:
		if s.h == nil {
			return nil, fmt.Errorf("%w: nil handler for %q", ErrInvalidHandlerShape, name)
		}
		return []Record{{Name: name, Phase: phase, Priority: priority, Handler: s.h, Source: source}}, nil

	case many:
		records := make([]Record, 0, len(s.hs))
		for i, h := range s.hs {
			if h == nil {
				return nil, fmt.Errorf("%w: nil handler at index %d for %q", ErrInvalidHandlerShape, i, name)
			}
			records = append(records, Record{Name: name, Phase: phase, Priority: priority, Handler: h, Source: source})
		}
		return records, nil

	case Bundle:
		if nested {
			return nil, fmt.Errorf("%w: nested bundle for %q", ErrInvalidHandlerShape, name)
		}
		var records []Record
		parts := []struct {
			phase Phase
			spec  Spec
		}{
			{PhasePre, s.Pre},
			{PhasePost, s.Post},
			{PhaseMain, s.Main},
		}
		for _, part := range parts {
			if part.spec == nil {
				continue
			}
			rs, err := expand(part.phase, name, part.spec, priority, source, true)
			if err != nil {
				return nil, err
			}
			records = append(records, rs...)
		}
		return records, nil

	case *Bundle:
		if s == nil {
			return nil, fmt.Errorf("%w: nil bundle for %q", ErrInvalidHandlerShape, name)
		}
		return expand(phase, name, *s, priority, source, nested)

	default:
		return nil, fmt.Errorf("%w: %T for %q", ErrInvalidHandlerShape, spec, name)
	}
}
