package object

import (
	"sync"
	"sync/atomic"
)

// Object is the lifecycle and capability surface of every value that
// crosses a module boundary.
type Object interface {
	// Acquire takes a reference on behalf of consumer.
	Acquire(consumer Module)

	// Release drops a reference taken on behalf of consumer. Releasing the
	// last reference destroys the object before Release returns.
	Release(consumer Module)

	// Query returns the handle registered for a capability.
	// It does not change the reference count.
	Query(id CapabilityID) (any, bool)

	// Owner returns the module whose code constructed the object.
	Owner() Module

	// ClassID returns the class identifier the object was created as.
	ClassID() string

	// RefCount returns the number of outstanding references.
	RefCount() int64
}

// Option configures a Base during Init.
type Option func(*Base)

// WithoutReference starts the count at zero instead of one. The first
// Acquire then establishes the only reference.
func WithoutReference() Option {
	return func(b *Base) {
		b.initial = 0
	}
}

// WithDestroy sets the hook run when the last reference is released.
func WithDestroy(fn func()) Option {
	return func(b *Base) {
		b.onDestroy = fn
	}
}

// WithClassID records the class identifier of the object.
func WithClassID(id string) Option {
	return func(b *Base) {
		b.classID = id
	}
}

// Base implements Object. Embed it in a concrete type and call Init once
// before the value is shared. A Base must not be copied after Init.
//
// Base has no exported way to destroy the object: the transition of the
// count from one to zero inside Release is the only path.
type Base struct {
	refs      atomic.Int64
	foreign   atomic.Int64
	destroyed atomic.Bool

	owner     Module
	classID   string
	census    *Census
	tally     *tally
	onDestroy func()
	initial   int64

	capsMu sync.RWMutex
	caps   map[CapabilityID]any
}

// Init binds the object to its owner and census. self is the embedding
// value; it is exposed as the CapObject capability. The reference count
// starts at one (owned by owner) unless WithoutReference is given.
func (b *Base) Init(self Object, owner Module, census *Census, opts ...Option) {
	if census == nil {
		census = defaultCensus
	}
	b.owner = owner
	b.census = census
	b.tally = census.tallyFor(owner)
	b.initial = 1
	for _, opt := range opts {
		opt(b)
	}

	b.caps = make(map[CapabilityID]any)
	if self != nil {
		b.caps[CapObject] = self
	}

	b.refs.Store(b.initial)
	census.constructed(b.tally)
}

// Acquire implements Object.
func (b *Base) Acquire(consumer Module) {
	if b.destroyed.Load() {
		panic(b.violation("acquire", consumer, "object already destroyed"))
	}
	if consumer != b.owner {
		b.foreign.Add(1)
		b.census.foreign(b.tally, 1)
	}
	b.refs.Add(1)
}

// Release implements Object.
func (b *Base) Release(consumer Module) {
	if consumer != b.owner {
		if b.foreign.Add(-1) < 0 {
			panic(b.violation("release", consumer, "foreign reference count below zero"))
		}
		b.census.foreign(b.tally, -1)
	}

	switch n := b.refs.Add(-1); {
	case n == 0:
		b.destroy(consumer)
	case n < 0:
		panic(b.violation("release", consumer, "reference count below zero"))
	}
}

func (b *Base) destroy(consumer Module) {
	if !b.destroyed.CompareAndSwap(false, true) {
		panic(b.violation("destroy", consumer, "object destroyed twice"))
	}
	if b.onDestroy != nil {
		b.onDestroy()
	}

	b.capsMu.Lock()
	b.caps = nil
	b.capsMu.Unlock()

	b.census.destroyed(b.tally)
}

// Owner implements Object.
func (b *Base) Owner() Module {
	return b.owner
}

// ClassID implements Object.
func (b *Base) ClassID() string {
	return b.classID
}

// RefCount implements Object.
func (b *Base) RefCount() int64 {
	return b.refs.Load()
}

// ForeignRefs returns the references currently held by non-owning modules.
func (b *Base) ForeignRefs() int64 {
	return b.foreign.Load()
}

// Destroyed reports whether the last reference has been released.
func (b *Base) Destroyed() bool {
	return b.destroyed.Load()
}

func (b *Base) violation(op string, consumer Module, reason string) *InvariantError {
	return &InvariantError{
		Op:       op,
		ClassID:  b.classID,
		Owner:    b.owner,
		Consumer: consumer,
		Count:    b.refs.Load(),
		Reason:   reason,
	}
}

// defaultCensus backs objects initialized without an explicit census.
var defaultCensus = NewCensus()

// DefaultCensus returns the census used when Init is given nil.
func DefaultCensus() *Census {
	return defaultCensus
}
