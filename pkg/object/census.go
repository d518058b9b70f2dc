package object

import (
	"sync"
	"sync/atomic"
)

// Counters is a snapshot of live objects and outstanding foreign references.
type Counters struct {
	Objects     int64
	ForeignRefs int64
}

// Idle reports whether no objects are alive.
func (c Counters) Idle() bool {
	return c.Objects == 0
}

// tally is the live counter pair behind a Counters snapshot.
type tally struct {
	objects atomic.Int64
	foreign atomic.Int64
}

func (t *tally) snapshot() Counters {
	return Counters{Objects: t.objects.Load(), ForeignRefs: t.foreign.Load()}
}

// Census holds the process-wide object and foreign-reference counters, plus
// the same pair for every owning module. A host creates one Census at
// startup and hands it to the registry and loader; objects update it on
// construction, destruction, and every cross-module acquire and release.
type Census struct {
	total tally

	mu      sync.RWMutex
	modules map[Module]*tally
}

// NewCensus creates an empty census.
func NewCensus() *Census {
	return &Census{modules: make(map[Module]*tally)}
}

// Objects returns the number of live objects across all modules.
func (c *Census) Objects() int64 {
	return c.total.objects.Load()
}

// ForeignRefs returns the number of outstanding references held by modules
// other than the owning one, across all objects.
func (c *Census) ForeignRefs() int64 {
	return c.total.foreign.Load()
}

// Total returns the process-wide snapshot.
func (c *Census) Total() Counters {
	return c.total.snapshot()
}

// Module returns the snapshot for objects owned by m.
func (c *Census) Module(m Module) Counters {
	c.mu.RLock()
	t, ok := c.modules[m]
	c.mu.RUnlock()
	if !ok {
		return Counters{}
	}
	return t.snapshot()
}

// Modules returns a snapshot of every module that has ever owned an object
// and has not been forgotten.
func (c *Census) Modules() map[Module]Counters {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[Module]Counters, len(c.modules))
	for m, t := range c.modules {
		out[m] = t.snapshot()
	}
	return out
}

// Forget drops the per-module entry for m if it is idle. It returns false
// when objects owned by m are still alive.
func (c *Census) Forget(m Module) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.modules[m]
	if !ok {
		return true
	}
	if t.objects.Load() != 0 {
		return false
	}
	delete(c.modules, m)
	return true
}

// tallyFor returns the live counters of m, creating them on first use.
func (c *Census) tallyFor(m Module) *tally {
	c.mu.RLock()
	t, ok := c.modules[m]
	c.mu.RUnlock()
	if ok {
		return t
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok = c.modules[m]; ok {
		return t
	}
	t = &tally{}
	c.modules[m] = t
	return t
}

func (c *Census) constructed(t *tally) {
	t.objects.Add(1)
	c.total.objects.Add(1)
}

func (c *Census) destroyed(t *tally) {
	t.objects.Add(-1)
	c.total.objects.Add(-1)
}

func (c *Census) foreign(t *tally, delta int64) {
	t.foreign.Add(delta)
	c.total.foreign.Add(delta)
}
