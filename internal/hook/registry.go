package hook

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Registry holds registered handler records per phase, in insertion order.
type Registry struct {
	mu      sync.RWMutex
	records map[Phase][]Record
	logger  *zap.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger used for registration events.
func WithRegistryLogger(l *zap.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		records: map[Phase][]Record{
			PhasePre:  make([]Record, 0),
			PhaseMain: make([]Record, 0),
			PhasePost: make([]Record, 0),
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds handlers to the main phase of the named hook.
// A Bundle spec registers each of its present phases instead.
func (r *Registry) Register(name string, spec Spec, priority int) error {
	return r.RegisterFrom("", PhaseMain, name, spec, priority)
}

// RegisterPhase adds handlers to the given phase of the named hook.
func (r *Registry) RegisterPhase(phase Phase, name string, spec Spec, priority int) error {
	return r.RegisterFrom("", phase, name, spec, priority)
}

// RegisterFrom is RegisterPhase with the records tagged by source, so that
// they can later be dropped with RemoveSource.
func (r *Registry) RegisterFrom(source string, phase Phase, name string, spec Spec, priority int) error {
	if !phase.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidPhase, string(phase))
	}
	if spec == nil {
		return fmt.Errorf("%w: nil spec for %q", ErrInvalidHandlerShape, name)
	}

	records, err := expand(phase, name, spec, priority, source, false)
	if err != nil {
		return err
	}

	r.mu.Lock()
	for _, rec := range records {
		r.records[rec.Phase] = append(r.records[rec.Phase], rec)
	}
	r.mu.Unlock()

	for _, rec := range records {
		r.logger.Debug("register",
			zap.String("hook", rec.Name),
			zap.String("phase", rec.Phase.String()),
			zap.Int("priority", rec.Priority),
			zap.String("source", rec.Source),
		)
	}
	return nil
}

// Stack returns the handlers registered for name in phase, sorted by
// ascending priority. Equal priorities keep registration order.
// The result is a fresh slice on every call.
func (r *Registry) Stack(name string, phase Phase) []Handler {
	records := r.Lookup(name, phase)
	stack := make([]Handler, len(records))
	for i, rec := range records {
		stack[i] = rec.Handler
	}
	return stack
}

// Lookup returns the records registered for name in phase, in execution order.
func (r *Registry) Lookup(name string, phase Phase) []Record {
	r.mu.RLock()
	matched := make([]Record, 0)
	for _, rec := range r.records[phase] {
		if rec.Name == name {
			matched = append(matched, rec)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Priority < matched[j].Priority
	})
	return matched
}

// Records returns a copy of every record in phase, in registration order.
func (r *Registry) Records(phase Phase) []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Record, len(r.records[phase]))
	copy(out, r.records[phase])
	return out
}

// Grouped returns a copy of every record keyed by phase.
func (r *Registry) Grouped() map[Phase][]Record {
	out := make(map[Phase][]Record, len(Phases))
	for _, p := range Phases {
		out[p] = r.Records(p)
	}
	return out
}

// Count returns the number of records across all phases.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, recs := range r.records {
		n += len(recs)
	}
	return n
}

// Has reports whether name has at least one record in any phase.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, recs := range r.records {
		for _, rec := range recs {
			if rec.Name == name {
				return true
			}
		}
	}
	return false
}

// Names returns the sorted, distinct hook names with at least one record.
func (r *Registry) Names() []string {
	r.mu.RLock()
	seen := make(map[string]bool)
	for _, recs := range r.records {
		for _, rec := range recs {
			seen[rec.Name] = true
		}
	}
	r.mu.RUnlock()

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RemoveSource drops every record tagged with source and returns how many
// were removed. Records registered without a source are never matched.
func (r *Registry) RemoveSource(source string) int {
	if source == "" {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for phase, recs := range r.records {
		kept := make([]Record, 0, len(recs))
		for _, rec := range recs {
			if rec.Source == source {
				removed++
				continue
			}
			kept = append(kept, rec)
		}
		r.records[phase] = kept
	}
	return removed
}

// Clear removes all records.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range Phases {
		r.records[p] = make([]Record, 0)
	}
}
