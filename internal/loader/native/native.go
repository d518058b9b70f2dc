// Package native opens Go plugins (built with -buildmode=plugin) as
// module images.
//
// A native module exports
//
//	func RegisterModule(r *registry.Registrar) error
//
// and optionally
//
//	func InitializeModule() error
//	func FinalizeModule() error
//	var ModuleName string
//
// Go cannot unmap a plugin once opened: Close runs FinalizeModule and the
// image stays resident. Loading the same path again after an unload returns
// the already mapped image.
package native

import (
	"errors"
	"fmt"
	"plugin"

	"github.com/dshills/modhost/internal/loader"
	"github.com/dshills/modhost/pkg/registry"
)

// Exported symbol names.
const (
	SymbolRegister   = "RegisterModule"
	SymbolInitialize = "InitializeModule"
	SymbolFinalize   = "FinalizeModule"
	SymbolName       = "ModuleName"
)

// Ext is the file extension handled by the opener.
const Ext = ".so"

// ErrBadSymbol is returned when an exported symbol has the wrong type.
var ErrBadSymbol = errors.New("exported symbol has the wrong type")

type lookupFunc func(name string) (plugin.Symbol, error)

// Image is a loaded Go plugin.
type Image struct {
	path       string
	name       string
	register   func(*registry.Registrar) error
	initialize func() error
	finalize   func() error
}

// Opener opens Go plugins.
type Opener struct{}

// NewOpener returns an opener for Go plugins.
func NewOpener() *Opener {
	return &Opener{}
}

// Open implements loader.Opener.
func (*Opener) Open(path string) (loader.Image, error) {
	img, err := Open(path)
	if err != nil {
		return nil, err
	}
	return img, nil
}

// Open maps the plugin at path and resolves its entry points.
func Open(path string) (*Image, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open plugin %s: %w", loader.ErrLoadFailure, path, err)
	}
	return bind(path, p.Lookup)
}

// bind resolves the module's symbols through lookup.
func bind(path string, lookup lookupFunc) (*Image, error) {
	img := &Image{path: path}

	sym, err := lookup(SymbolRegister)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, loader.ErrNoEntryPoint)
	}
	switch f := sym.(type) {
	case func(*registry.Registrar) error:
		img.register = f
	case *func(*registry.Registrar) error:
		img.register = *f
	default:
		return nil, fmt.Errorf("%s: %s is %T: %w", path, SymbolRegister, sym, ErrBadSymbol)
	}

	if img.initialize, err = optionalHook(lookup, SymbolInitialize); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if img.finalize, err = optionalHook(lookup, SymbolFinalize); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if sym, err := lookup(SymbolName); err == nil {
		if name, ok := sym.(*string); ok {
			img.name = *name
		}
	}
	return img, nil
}

func optionalHook(lookup lookupFunc, name string) (func() error, error) {
	sym, err := lookup(name)
	if err != nil {
		return nil, nil
	}
	switch f := sym.(type) {
	case func() error:
		return f, nil
	case *func() error:
		return *f, nil
	default:
		return nil, fmt.Errorf("%s is %T: %w", name, sym, ErrBadSymbol)
	}
}

// Name returns ModuleName, or "" when the plugin does not export it.
func (img *Image) Name() string {
	return img.name
}

// Path returns the file the image was opened from.
func (img *Image) Path() string {
	return img.path
}

// Register runs RegisterModule.
func (img *Image) Register(r *registry.Registrar) error {
	return img.register(r)
}

// HasInitializer reports whether the plugin exports InitializeModule.
func (img *Image) HasInitializer() bool {
	return img.initialize != nil
}

// Initialize runs InitializeModule.
func (img *Image) Initialize() error {
	if img.initialize == nil {
		return nil
	}
	return img.initialize()
}

// Close runs FinalizeModule. The plugin itself stays mapped.
func (img *Image) Close() error {
	if img.finalize == nil {
		return nil
	}
	return img.finalize()
}
