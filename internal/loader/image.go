package loader

import (
	"fmt"

	"github.com/dshills/modhost/pkg/object"
	"github.com/dshills/modhost/pkg/registry"
)

// Image is a module image mapped into the process.
type Image interface {
	// Register runs the module's registration entry point.
	Register(r *registry.Registrar) error

	// HasInitializer reports whether the module has a post-load hook.
	HasInitializer() bool

	// Initialize runs the post-load hook. Only called when HasInitializer is true.
	Initialize() error

	// Close releases the image. Called after the module's classes are
	// unregistered and its objects are gone.
	Close() error
}

// Named is implemented by images that know their own display name.
type Named interface {
	Name() string
}

// Opener maps a module file into the process.
type Opener interface {
	Open(path string) (Image, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(path string) (Image, error)

// Open calls f(path).
func (f OpenerFunc) Open(path string) (Image, error) {
	return f(path)
}

// Static is a module compiled into the host. It is registered with
// RegisterPlugin and never loaded from a file.
type Static struct {
	// Name is the display name used by UnloadPlugin and diagnostics.
	Name string

	// Module is the handle objects of this module are owned by. A zero
	// handle gets a fresh one; object.HostModule registers the host itself.
	Module object.Module

	// Register is the registration entry point. Required.
	Register func(r *registry.Registrar) error

	// Initialize is the optional post-load hook.
	Initialize func() error

	// Finalize optionally runs when the module is unloaded.
	Finalize func() error
}

// staticImage adapts Static to Image.
type staticImage struct {
	m Static
}

func (s staticImage) Name() string { return s.m.Name }

func (s staticImage) Register(r *registry.Registrar) error {
	if s.m.Register == nil {
		return fmt.Errorf("static module %q: %w", s.m.Name, ErrNoEntryPoint)
	}
	return s.m.Register(r)
}

func (s staticImage) HasInitializer() bool { return s.m.Initialize != nil }

func (s staticImage) Initialize() error {
	if s.m.Initialize == nil {
		return nil
	}
	return s.m.Initialize()
}

func (s staticImage) Close() error {
	if s.m.Finalize == nil {
		return nil
	}
	return s.m.Finalize()
}
