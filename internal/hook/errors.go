package hook

import "errors"

// Hook errors.
var (
	// ErrInvalidPhase indicates a phase token other than pre, main or post.
	ErrInvalidPhase = errors.New("hook: invalid phase, expected 'main', 'pre' or 'post'")

	// ErrInvalidHandlerShape indicates a Spec that is not a handler, a list of
	// handlers, or a pre/main/post bundle.
	ErrInvalidHandlerShape = errors.New("hook: handler must be a function, a list of functions or a {pre, main, post} bundle")

	// ErrHandlerPanic indicates a handler panicked before calling its continuation.
	ErrHandlerPanic = errors.New("hook: handler panic")
)
