package plugin

import (
	"context"
)

// Pending is the handle returned by LoadAsync.
type Pending struct {
	done  chan struct{}
	group Grouping
	err   error
}

// LoadAsync runs Load in the background. If cb is non-nil it is called with
// the outcome before the handle resolves.
func (l *Loader) LoadAsync(dir string, cb func(Grouping, error)) *Pending {
	p := &Pending{done: make(chan struct{})}
	go func() {
		defer close(p.done)
		p.group, p.err = l.Load(context.Background(), dir)
		if cb != nil {
			cb(p.group, p.err)
		}
	}()
	return p
}

// Wait blocks until the load finishes or ctx is done.
func (p *Pending) Wait(ctx context.Context) (Grouping, error) {
	select {
	case <-p.done:
		return p.group, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done is closed when the load finishes.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}
