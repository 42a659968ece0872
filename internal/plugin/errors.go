package plugin

import (
	"errors"
	"fmt"
)

// Loader errors.
var (
	// ErrDirectoryRead indicates the hook directory could not be listed.
	ErrDirectoryRead = errors.New("plugin: cannot read hook directory")

	// ErrLoaderClosed is returned when using a closed loader.
	ErrLoaderClosed = errors.New("plugin: loader is closed")
)

// LoadError describes a hook file that could not be evaluated or registered.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("plugin: loading %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// ScriptError is a handler error raised by a Lua hook file, either passed to
// next or thrown.
type ScriptError struct {
	Path    string
	Message string
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("hook script %s: %s", e.Path, e.Message)
}
