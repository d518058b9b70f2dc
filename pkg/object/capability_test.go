package object

import (
	"fmt"
	"testing"
)

const capStringer CapabilityID = "stringer"

type named struct {
	Base
	name string
}

func (n *named) String() string { return n.name }

func newNamed(owner Module, name string) *named {
	n := &named{name: name}
	n.Init(n, owner, NewCensus(), WithClassID("named"))
	n.Expose(capStringer, n)
	return n
}

func TestQueryCapability(t *testing.T) {
	owner := NewModule("owner")
	n := newNamed(owner, "alpha")

	tests := []struct {
		name string
		id   CapabilityID
		want bool
	}{
		{"exposed", capStringer, true},
		{"object", CapObject, true},
		{"missing", "missing", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := QueryCapability(n, tt.id) != nil
			if got != tt.want {
				t.Errorf("QueryCapability(%q) present = %v, want %v", tt.id, got, tt.want)
			}
			if Supports(n, tt.id) != tt.want {
				t.Errorf("Supports(%q) = %v, want %v", tt.id, !tt.want, tt.want)
			}
		})
	}

	if n.RefCount() != 1 {
		t.Errorf("Query changed RefCount() to %d", n.RefCount())
	}
	if QueryCapability(nil, capStringer) != nil {
		t.Error("QueryCapability(nil) != nil")
	}
}

func TestAs(t *testing.T) {
	n := newNamed(NewModule("owner"), "beta")

	s, ok := As[fmt.Stringer](n, capStringer)
	if !ok {
		t.Fatal("As[fmt.Stringer]() = false")
	}
	if s.String() != "beta" {
		t.Errorf("String() = %q, want %q", s.String(), "beta")
	}

	self, ok := As[Object](n, CapObject)
	if !ok || self != Object(n) {
		t.Errorf("As[Object](CapObject) = %v, %v", self, ok)
	}

	if _, ok := As[error](n, capStringer); ok {
		t.Error("As[error]() = true for a Stringer handle")
	}
}

func TestCapabilitiesClearedOnDestroy(t *testing.T) {
	owner := NewModule("owner")
	n := newNamed(owner, "gamma")

	caps := n.Capabilities()
	if len(caps) != 2 || caps[0] != CapObject || caps[1] != capStringer {
		t.Errorf("Capabilities() = %v", caps)
	}

	n.Release(owner)
	if _, ok := n.Query(capStringer); ok {
		t.Error("Query() succeeded after destroy")
	}
}

func TestHandleClose(t *testing.T) {
	owner := NewModule("owner")
	consumer := NewModule("consumer")
	census := NewCensus()

	o := newTestObject(owner, census)
	h := Hold(o, consumer)
	clone := h.Clone(owner)

	if o.RefCount() != 3 {
		t.Fatalf("RefCount() = %d, want 3", o.RefCount())
	}
	h.Close()
	h.Close()
	if o.RefCount() != 2 {
		t.Errorf("RefCount() = %d after double Close, want 2", o.RefCount())
	}
	clone.Close()

	Adopt(o, owner).Close()
	if o.destroyed != 1 {
		t.Errorf("destroyed = %d, want 1", o.destroyed)
	}
	expectInvariant(t, func() { h.Clone(consumer) })
}
