package object

import "sync/atomic"

// Handle pairs an acquired object with the module holding it, so the
// reference can be released exactly once with a plain deferred call.
//
//	h := object.Hold(obj, me)
//	defer h.Close()
type Handle struct {
	obj      Object
	consumer Module
	closed   atomic.Bool
}

// Hold acquires obj on behalf of consumer and returns a handle owning that
// reference.
func Hold(obj Object, consumer Module) *Handle {
	obj.Acquire(consumer)
	return &Handle{obj: obj, consumer: consumer}
}

// Adopt wraps a reference the caller already owns, such as the one returned
// by a registry Create call, without acquiring again.
func Adopt(obj Object, consumer Module) *Handle {
	return &Handle{obj: obj, consumer: consumer}
}

// Object returns the held object. It must not be used after Close.
func (h *Handle) Object() Object {
	return h.obj
}

// Consumer returns the module the reference is attributed to.
func (h *Handle) Consumer() Module {
	return h.consumer
}

// Clone acquires another reference for consumer.
func (h *Handle) Clone(consumer Module) *Handle {
	if h.closed.Load() {
		panic(&InvariantError{
			Op:       "acquire",
			ClassID:  h.obj.ClassID(),
			Owner:    h.obj.Owner(),
			Consumer: consumer,
			Reason:   "clone of a closed handle",
		})
	}
	return Hold(h.obj, consumer)
}

// Close releases the held reference. Calls after the first are no-ops.
func (h *Handle) Close() {
	if !h.closed.CompareAndSwap(false, true) {
		return
	}
	h.obj.Release(h.consumer)
}
