package hook

import "time"

// Observer receives execution events. Implementations must be safe for
// concurrent use.
type Observer interface {
	// HandlerCalled is invoked right before a handler runs.
	HandlerCalled(hook string, phase Phase)

	// ExecutionDone is invoked once per execution when its callback fires.
	// mode is "all", "stack" or a phase name.
	ExecutionDone(hook string, mode string, err error, d time.Duration)
}

type nopObserver struct{}

func (nopObserver) HandlerCalled(string, Phase)                       {}
func (nopObserver) ExecutionDone(string, string, error, time.Duration) {}
