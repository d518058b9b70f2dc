// Package registry maps class identifiers to the factories that build them.
//
// Modules populate the registry while they are being registered; any module
// (or the host) then creates instances by class identifier without knowing
// which module provides the class. Every entry is tagged with its owning
// module so the loader can revoke a module's classes when it is unloaded.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dshills/modhost/pkg/object"
)

// Registry errors.
var (
	// ErrDuplicateClassID is returned when a class identifier is already registered.
	ErrDuplicateClassID = errors.New("duplicate class id")

	// ErrUnknownClassID is returned when no factory is registered for a class identifier.
	ErrUnknownClassID = errors.New("unknown class id")

	// ErrInvalidClass is returned for an empty class identifier or a nil factory.
	ErrInvalidClass = errors.New("invalid class registration")

	// ErrFactoryFailed is returned when a factory fails to produce an object.
	ErrFactoryFailed = errors.New("factory failed")

	// ErrNoCapability is returned by CreateAs when the instance lacks the capability.
	ErrNoCapability = errors.New("capability not supported")
)

// ClassID names a concrete class.
type ClassID string

// Factory builds one instance of a class. The returned object holds one
// reference owned by the factory's module, or none when it was built with
// object.WithoutReference.
type Factory func() (object.Object, error)

// entry is one registered class.
type entry struct {
	factory Factory
	owner   object.Module
}

// moduleClasses tracks what one module contributed.
type moduleClasses struct {
	ids      []ClassID
	inflight atomic.Int64 // factory calls currently running
}

// Registry is the process-wide class table. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	classes map[ClassID]entry
	modules map[object.Module]*moduleClasses
	census  *object.Census
}

// New creates an empty registry whose objects are counted in census.
// A nil census selects object.DefaultCensus.
func New(census *object.Census) *Registry {
	if census == nil {
		census = object.DefaultCensus()
	}
	return &Registry{
		classes: make(map[ClassID]entry),
		modules: make(map[object.Module]*moduleClasses),
		census:  census,
	}
}

// Census returns the census objects of this registry report to.
func (r *Registry) Census() *object.Census {
	return r.census
}

// Register associates id with factory on behalf of owner. The first mapping
// of an id wins; later attempts fail with ErrDuplicateClassID.
func (r *Registry) Register(id ClassID, factory Factory, owner object.Module) error {
	if id == "" || factory == nil {
		return fmt.Errorf("%w: %q", ErrInvalidClass, id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.classes[id]; ok {
		return fmt.Errorf("%w: %q already provided by %s", ErrDuplicateClassID, id, existing.owner)
	}
	r.classes[id] = entry{factory: factory, owner: owner}

	mc := r.modules[owner]
	if mc == nil {
		mc = &moduleClasses{}
		r.modules[owner] = mc
	}
	mc.ids = append(mc.ids, id)
	return nil
}

// Create builds an instance of id for requester. The returned object holds
// exactly one reference, attributed to requester; the caller releases it
// with obj.Release(requester).
func (r *Registry) Create(id ClassID, requester object.Module) (object.Object, error) {
	r.mu.RLock()
	e, ok := r.classes[id]
	var mc *moduleClasses
	if ok {
		mc = r.modules[e.owner]
		mc.inflight.Add(1)
	}
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownClassID, id)
	}
	defer mc.inflight.Add(-1)

	obj, err := invoke(e.factory)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrFactoryFailed, id, err)
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: %q returned no object", ErrFactoryFailed, id)
	}

	// Hand the factory's reference over to the requester. An object built
	// without a reference gets the requester's as its first.
	if obj.RefCount() < 1 {
		obj.Acquire(requester)
		return obj, nil
	}
	obj.Acquire(requester)
	obj.Release(obj.Owner())
	return obj, nil
}

// invoke runs a factory, converting a panic into an error. Invariant
// violations are re-raised.
func invoke(f Factory) (obj object.Object, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			if object.IsInvariant(rec) {
				panic(rec)
			}
			err = fmt.Errorf("factory panic: %v", rec)
		}
	}()
	return f()
}

// CreateAs creates an instance of id and returns its capability handle
// typed as T, along with the object that owns the reference. When the
// capability is missing the instance is released and ErrNoCapability is
// returned.
func CreateAs[T any](r *Registry, id ClassID, capID object.CapabilityID, requester object.Module) (T, object.Object, error) {
	var zero T
	obj, err := r.Create(id, requester)
	if err != nil {
		return zero, nil, err
	}
	handle, ok := object.As[T](obj, capID)
	if !ok {
		obj.Release(requester)
		return zero, nil, fmt.Errorf("%w: %q does not expose %q", ErrNoCapability, id, capID)
	}
	return handle, obj, nil
}

// UnregisterModule removes every class owned by owner and returns their ids.
func (r *Registry) UnregisterModule(owner object.Module) []ClassID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(owner)
}

// RetireModule removes owner's classes only if no factory of the module is
// running and busy reports false. busy is evaluated while the registry is
// locked for writing, so no new instance of the module's classes can appear
// between the check and the removal.
func (r *Registry) RetireModule(owner object.Module, busy func() bool) ([]ClassID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if mc := r.modules[owner]; mc != nil && mc.inflight.Load() > 0 {
		return nil, false
	}
	if busy != nil && busy() {
		return nil, false
	}
	return r.removeLocked(owner), true
}

func (r *Registry) removeLocked(owner object.Module) []ClassID {
	mc := r.modules[owner]
	if mc == nil {
		return nil
	}
	for _, id := range mc.ids {
		delete(r.classes, id)
	}
	delete(r.modules, owner)
	return mc.ids
}

// Has reports whether id is registered.
func (r *Registry) Has(id ClassID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.classes[id]
	return ok
}

// Owner returns the module that registered id.
func (r *Registry) Owner(id ClassID) (object.Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.classes[id]
	return e.owner, ok
}

// Classes returns all registered ids, sorted.
func (r *Registry) Classes() []ClassID {
	r.mu.RLock()
	ids := make([]ClassID, 0, len(r.classes))
	for id := range r.classes {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sortIDs(ids)
	return ids
}

// ClassesOf returns the ids registered by owner, sorted.
func (r *Registry) ClassesOf(owner object.Module) []ClassID {
	r.mu.RLock()
	var ids []ClassID
	if mc := r.modules[owner]; mc != nil {
		ids = append(ids, mc.ids...)
	}
	r.mu.RUnlock()

	sortIDs(ids)
	return ids
}

// Count returns the number of registered classes.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.classes)
}

func sortIDs(ids []ClassID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
