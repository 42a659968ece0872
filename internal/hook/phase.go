package hook

import "fmt"

// Phase is an ordering tier within a hook.
type Phase string

// Hook phases, in execution order.
const (
	PhasePre  Phase = "pre"
	PhaseMain Phase = "main"
	PhasePost Phase = "post"
)

// Phases lists every phase in execution order.
var Phases = []Phase{PhasePre, PhaseMain, PhasePost}

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	switch p {
	case PhasePre, PhaseMain, PhasePost:
		return true
	default:
		return false
	}
}

// String returns the phase name.
func (p Phase) String() string {
	return string(p)
}

// ParsePhase converts a phase token into a Phase.
func ParsePhase(s string) (Phase, error) {
	p := Phase(s)
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhase, s)
	}
	return p, nil
}
