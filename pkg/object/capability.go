package object

import "sort"

// CapabilityID names an interface an object may expose.
type CapabilityID string

// CapObject is exposed by every object and resolves to the object itself.
const CapObject CapabilityID = "object"

// Expose registers impl as the handle for capability id, replacing any
// earlier registration. Objects expose their capabilities while they are
// being constructed, before any handle crosses a module boundary.
func (b *Base) Expose(id CapabilityID, impl any) {
	b.capsMu.Lock()
	defer b.capsMu.Unlock()

	if b.caps == nil {
		return
	}
	b.caps[id] = impl
}

// Query implements Object.
func (b *Base) Query(id CapabilityID) (any, bool) {
	b.capsMu.RLock()
	defer b.capsMu.RUnlock()

	impl, ok := b.caps[id]
	return impl, ok
}

// Capabilities returns the exposed capability IDs in sorted order.
func (b *Base) Capabilities() []CapabilityID {
	b.capsMu.RLock()
	defer b.capsMu.RUnlock()

	ids := make([]CapabilityID, 0, len(b.caps))
	for id := range b.caps {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// QueryCapability returns the handle obj exposes for id, or nil if obj is
// nil or does not support the capability.
func QueryCapability(obj Object, id CapabilityID) any {
	if obj == nil {
		return nil
	}
	impl, ok := obj.Query(id)
	if !ok {
		return nil
	}
	return impl
}

// Supports reports whether obj exposes capability id.
func Supports(obj Object, id CapabilityID) bool {
	return QueryCapability(obj, id) != nil
}

// As returns the handle for id typed as T. It reports false when the
// capability is missing or its handle does not implement T.
func As[T any](obj Object, id CapabilityID) (T, bool) {
	var zero T
	impl := QueryCapability(obj, id)
	if impl == nil {
		return zero, false
	}
	t, ok := impl.(T)
	if !ok {
		return zero, false
	}
	return t, true
}

// Lister is implemented by objects that can enumerate their capabilities.
// Base satisfies it.
type Lister interface {
	Capabilities() []CapabilityID
}
