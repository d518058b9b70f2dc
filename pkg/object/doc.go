// Package object provides the cross-module object model shared by the host
// and every loaded module.
//
// An object is any value that embeds Base. Base carries the reference count,
// the owning module, and the set of capabilities the object exposes. The
// only way to destroy an object is to release its last reference: the object
// runs its own destroy hook synchronously inside that Release call, so the
// code that tears an object down always belongs to the module that built it.
//
// # Reference counting
//
// Every holder acquires and releases on behalf of a Module. References taken
// by a module other than the owner are "foreign" and are tracked separately,
// per object, per owning module, and process-wide in a Census. The loader
// reads the census to decide whether a module can be unloaded.
//
//	type counter struct {
//	    object.Base
//	    n int
//	}
//
//	c := &counter{}
//	c.Init(c, owner, census, object.WithClassID("counter"))
//	c.Expose(CapCounter, c)
//
//	c.Acquire(consumer) // foreign reference
//	c.Release(consumer)
//	c.Release(owner)    // last reference: destroyed here
//
// # Capabilities
//
// Capabilities are named handles exposed by an object. Query never changes
// the reference count; a holder that keeps a capability handle must keep the
// object acquired for as long as it uses the handle.
//
//	if s, ok := object.As[fmt.Stringer](obj, "stringer"); ok {
//	    fmt.Println(s.String())
//	}
//
// # Invariants
//
// Releasing more references than were taken, or touching an object after
// its last release, panics with an *InvariantError. These panics are not
// meant to be recovered: they signal memory-safety corruption already in
// progress.
package object
