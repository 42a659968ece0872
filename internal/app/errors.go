package app

import "errors"

// Application errors.
var (
	// ErrAlreadyRunning indicates Serve was called while already serving.
	ErrAlreadyRunning = errors.New("application already running")
)

// InitError reports a component that failed to initialize.
type InitError struct {
	Component string
	Err       error
}

func (e *InitError) Error() string {
	return "init " + e.Component + ": " + e.Err.Error()
}

func (e *InitError) Unwrap() error {
	return e.Err
}
