package hook

// Selector chooses which handlers an execution runs.
// The zero value selects the full pre, main, post pipeline.
type Selector struct {
	phase    Phase
	stack    []Handler
	explicit bool
}

// AllPhases selects the pre, main and post stacks in sequence.
func AllPhases() Selector {
	return Selector{}
}

// OnlyPhase selects a single phase's stack.
func OnlyPhase(p Phase) Selector {
	return Selector{phase: p}
}

// Explicit bypasses the registry and runs exactly the given handlers.
func Explicit(stack ...Handler) Selector {
	return Selector{stack: stack, explicit: true}
}

// mode names the selector for logs and metrics.
func (s Selector) mode() string {
	switch {
	case s.explicit:
		return "stack"
	case s.phase == "":
		return "all"
	default:
		return string(s.phase)
	}
}
