package loader

import (
	"errors"
	"fmt"
)

// Loader errors.
var (
	// ErrLoadFailure is returned when a module image cannot be loaded or registered.
	ErrLoadFailure = errors.New("load failure")

	// ErrNoEntryPoint is returned when an image has no registration entry point.
	ErrNoEntryPoint = errors.New("module has no registration entry point")

	// ErrModuleBusy is returned when unloading a module whose objects are still alive.
	ErrModuleBusy = errors.New("module busy")

	// ErrModuleNotFound is returned when no loaded module matches a name.
	ErrModuleNotFound = errors.New("module not found")

	// ErrModuleExists is returned when a static module reuses the handle of
	// a different module that is already registered.
	ErrModuleExists = errors.New("module handle already registered")

	// ErrUnsupportedFormat is returned when no opener handles a file's extension.
	ErrUnsupportedFormat = errors.New("unsupported module format")
)

// LoadError describes a failure of one lifecycle step for one module.
type LoadError struct {
	Path string // file path or module name
	Op   string // open, register, initialize, unload
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// loadFailure wraps err so that it matches ErrLoadFailure as well as err.
func loadFailure(path, op string, err error) *LoadError {
	if errors.Is(err, ErrLoadFailure) {
		return &LoadError{Path: path, Op: op, Err: err}
	}
	return &LoadError{Path: path, Op: op, Err: fmt.Errorf("%w: %w", ErrLoadFailure, err)}
}
