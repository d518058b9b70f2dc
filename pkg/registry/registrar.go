package registry

import (
	"sync"

	"github.com/dshills/modhost/pkg/object"
)

// Registrar is the view of the registry handed to a module's registration
// entry point. Everything registered through it is owned by one module.
type Registrar struct {
	reg    *Registry
	module object.Module

	mu       sync.Mutex
	classes  []ClassID
	rejected []error
}

// Registrar returns a registrar that registers classes on behalf of m.
func (r *Registry) Registrar(m object.Module) *Registrar {
	return &Registrar{reg: r, module: m}
}

// Module returns the handle of the module being registered.
func (g *Registrar) Module() object.Module {
	return g.module
}

// Census returns the census objects of this module must report to.
func (g *Registrar) Census() *object.Census {
	return g.reg.census
}

// Registry returns the underlying registry, for modules that create
// instances of sibling classes.
func (g *Registrar) Registry() *Registry {
	return g.reg
}

// Register adds a class owned by the module. A rejected registration is
// remembered and returned; the module decides whether it is fatal.
func (g *Registrar) Register(id ClassID, factory Factory) error {
	err := g.reg.Register(id, factory, g.module)

	g.mu.Lock()
	defer g.mu.Unlock()
	if err != nil {
		g.rejected = append(g.rejected, err)
		return err
	}
	g.classes = append(g.classes, id)
	return nil
}

// Init prepares b as an object owned by the module, with the reference
// count already reflecting the factory's own reference.
func (g *Registrar) Init(b *object.Base, self object.Object, opts ...object.Option) {
	b.Init(self, g.module, g.reg.census, opts...)
}

// Classes returns the ids registered through this registrar, in order.
func (g *Registrar) Classes() []ClassID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]ClassID(nil), g.classes...)
}

// Rejected returns the registration errors seen so far.
func (g *Registrar) Rejected() []error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]error(nil), g.rejected...)
}
