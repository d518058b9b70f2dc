package loader

import (
	"github.com/dshills/modhost/internal/diag"
	"github.com/dshills/modhost/pkg/object"
)

// EventType is the type of a loader event.
type EventType int

const (
	// EventLoaded is emitted when a module file is mapped and registered.
	// It precedes EventRegistered; a file that fails to register emits
	// only EventError.
	EventLoaded EventType = iota
	// EventRegistered is emitted when a module's registration entry point has run.
	EventRegistered
	// EventInitialized is emitted when a module's post-load hook has run.
	EventInitialized
	// EventUnloaded is emitted when a module record is removed.
	EventUnloaded
	// EventError is emitted when a lifecycle step fails.
	EventError
)

// String returns a string representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventLoaded:
		return "loaded"
	case EventRegistered:
		return "registered"
	case EventInitialized:
		return "initialized"
	case EventUnloaded:
		return "unloaded"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event describes a lifecycle change of one module.
type Event struct {
	Type   EventType
	Module string // display name
	Path   string // empty for static modules
	Err    error
}

// EventHandler handles loader events. Handlers are called outside the
// loader's lock, so they may call back into the Loader. Panics in handlers
// are recovered.
type EventHandler func(Event)

// Subscribe adds an event handler and returns the function that removes it.
func (l *Loader) Subscribe(handler EventHandler) func() {
	if handler == nil {
		return func() {}
	}

	l.hmu.Lock()
	l.handlers = append(l.handlers, handler)
	index := len(l.handlers) - 1
	l.hmu.Unlock()

	return func() {
		l.hmu.Lock()
		defer l.hmu.Unlock()
		// nil out rather than remove so other indexes stay valid
		if index < len(l.handlers) {
			l.handlers[index] = nil
		}
	}
}

// emitLocked queues an event until the loader lock is released.
func (l *Loader) emitLocked(e Event) {
	l.pending = append(l.pending, e)
}

func (l *Loader) dispatch(events []Event) {
	if len(events) == 0 {
		return
	}

	l.hmu.RLock()
	handlers := make([]EventHandler, len(l.handlers))
	copy(handlers, l.handlers)
	l.hmu.RUnlock()

	for _, e := range events {
		for _, h := range handlers {
			if h == nil {
				continue
			}
			l.callHandler(h, e)
		}
	}
}

func (l *Loader) callHandler(h EventHandler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			if object.IsInvariant(r) {
				panic(r)
			}
			diag.Writef(l.sink, diag.Warning, "event handler panic", "%s %s: %v", e.Type, e.Module, r)
		}
	}()
	h(e)
}
