package registry

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/dshills/modhost/pkg/object"
	"pgregory.net/rapid"
)

const capGreeter object.CapabilityID = "greeter"

type Greeter interface {
	Greet() string
}

type greeter struct {
	object.Base
	word string
}

func (g *greeter) Greet() string { return g.word }

func greeterFactory(reg *Registrar, word string) Factory {
	return func() (object.Object, error) {
		g := &greeter{word: word}
		reg.Init(&g.Base, g, object.WithClassID(word))
		g.Expose(capGreeter, g)
		return g, nil
	}
}

func TestRegisterDuplicate(t *testing.T) {
	census := object.NewCensus()
	r := New(census)
	a := r.Registrar(object.NewModule("a"))
	b := r.Registrar(object.NewModule("b"))

	if err := a.Register("X", greeterFactory(a, "first")); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	err := b.Register("X", greeterFactory(b, "second"))
	if !errors.Is(err, ErrDuplicateClassID) {
		t.Fatalf("second Register() error = %v, want ErrDuplicateClassID", err)
	}
	if len(b.Rejected()) != 1 {
		t.Errorf("Rejected() = %v, want 1 error", b.Rejected())
	}
	if len(b.Classes()) != 0 {
		t.Errorf("Classes() = %v, want none", b.Classes())
	}

	owner, ok := r.Owner("X")
	if !ok || owner != a.Module() {
		t.Errorf("Owner(X) = %v, want %v", owner, a.Module())
	}

	obj, err := r.Create("X", object.HostModule)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer obj.Release(object.HostModule)
	g, ok := object.As[Greeter](obj, capGreeter)
	if !ok || g.Greet() != "first" {
		t.Errorf("Greet() = %v, want first mapping", g)
	}
}

func TestRegisterInvalid(t *testing.T) {
	r := New(object.NewCensus())
	owner := object.NewModule("a")

	if err := r.Register("", func() (object.Object, error) { return nil, nil }, owner); !errors.Is(err, ErrInvalidClass) {
		t.Errorf("empty id error = %v, want ErrInvalidClass", err)
	}
	if err := r.Register("X", nil, owner); !errors.Is(err, ErrInvalidClass) {
		t.Errorf("nil factory error = %v, want ErrInvalidClass", err)
	}
	if r.Count() != 0 {
		t.Errorf("Count() = %d, want 0", r.Count())
	}
}

func TestCreateUnknown(t *testing.T) {
	census := object.NewCensus()
	r := New(census)

	obj, err := r.Create("Z", object.HostModule)
	if !errors.Is(err, ErrUnknownClassID) {
		t.Fatalf("Create() error = %v, want ErrUnknownClassID", err)
	}
	if obj != nil {
		t.Error("Create() returned an object for an unknown class")
	}
	if census.Objects() != 0 {
		t.Errorf("census.Objects() = %d, want 0", census.Objects())
	}
}

func TestCreateTransfersReference(t *testing.T) {
	census := object.NewCensus()
	r := New(census)
	mod := r.Registrar(object.NewModule("provider"))
	if err := mod.Register("X", greeterFactory(mod, "hi")); err != nil {
		t.Fatal(err)
	}

	obj, err := r.Create("X", object.HostModule)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if obj.RefCount() != 1 {
		t.Errorf("RefCount() = %d, want 1", obj.RefCount())
	}
	if obj.Owner() != mod.Module() {
		t.Errorf("Owner() = %v, want %v", obj.Owner(), mod.Module())
	}
	if got := census.Module(mod.Module()); got.Objects != 1 || got.ForeignRefs != 1 {
		t.Errorf("census.Module() = %+v, want {1 1}", got)
	}

	obj.Release(object.HostModule)
	if census.Objects() != 0 || census.ForeignRefs() != 0 {
		t.Errorf("census = %+v after release, want zero", census.Total())
	}
}

func TestCreateWithoutReference(t *testing.T) {
	census := object.NewCensus()
	r := New(census)
	mod := r.Registrar(object.NewModule("provider"))

	destroyed := 0
	err := mod.Register("Lazy", func() (object.Object, error) {
		g := &greeter{word: "lazy"}
		mod.Init(&g.Base, g, object.WithoutReference(), object.WithDestroy(func() { destroyed++ }))
		return g, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	obj, err := r.Create("Lazy", object.HostModule)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if destroyed != 0 {
		t.Fatal("Create() returned a destroyed object")
	}
	if obj.RefCount() != 1 {
		t.Errorf("RefCount() = %d, want 1", obj.RefCount())
	}
	if got := census.Module(mod.Module()); got.Objects != 1 || got.ForeignRefs != 1 {
		t.Errorf("census.Module() = %+v, want {1 1}", got)
	}

	obj.Release(object.HostModule)
	if destroyed != 1 {
		t.Errorf("destroyed = %d after release, want 1", destroyed)
	}
	if census.Objects() != 0 || census.ForeignRefs() != 0 {
		t.Errorf("census = %+v after release, want zero", census.Total())
	}
}

func TestCreateFactoryFailures(t *testing.T) {
	r := New(object.NewCensus())
	owner := object.NewModule("a")

	factories := map[ClassID]Factory{
		"err":   func() (object.Object, error) { return nil, errors.New("boom") },
		"nil":   func() (object.Object, error) { return nil, nil },
		"panic": func() (object.Object, error) { panic("kaboom") },
	}
	for id, f := range factories {
		if err := r.Register(id, f, owner); err != nil {
			t.Fatal(err)
		}
	}

	for id := range factories {
		t.Run(string(id), func(t *testing.T) {
			obj, err := r.Create(id, object.HostModule)
			if !errors.Is(err, ErrFactoryFailed) {
				t.Errorf("Create() error = %v, want ErrFactoryFailed", err)
			}
			if obj != nil {
				t.Error("Create() returned an object")
			}
		})
	}
}

func TestCreateAs(t *testing.T) {
	census := object.NewCensus()
	r := New(census)
	mod := r.Registrar(object.NewModule("provider"))
	if err := mod.Register("X", greeterFactory(mod, "hello")); err != nil {
		t.Fatal(err)
	}

	g, obj, err := CreateAs[Greeter](r, "X", capGreeter, object.HostModule)
	if err != nil {
		t.Fatalf("CreateAs() error = %v", err)
	}
	if g.Greet() != "hello" {
		t.Errorf("Greet() = %q", g.Greet())
	}
	obj.Release(object.HostModule)

	_, _, err = CreateAs[Greeter](r, "X", "missing", object.HostModule)
	if !errors.Is(err, ErrNoCapability) {
		t.Errorf("CreateAs() error = %v, want ErrNoCapability", err)
	}
	if census.Objects() != 0 {
		t.Errorf("census.Objects() = %d, want 0 after capability miss", census.Objects())
	}
}

func TestUnregisterModule(t *testing.T) {
	r := New(object.NewCensus())
	a := r.Registrar(object.NewModule("a"))
	b := r.Registrar(object.NewModule("b"))
	for _, id := range []ClassID{"a1", "a2"} {
		if err := a.Register(id, greeterFactory(a, string(id))); err != nil {
			t.Fatal(err)
		}
	}
	if err := b.Register("b1", greeterFactory(b, "b1")); err != nil {
		t.Fatal(err)
	}

	if got := r.ClassesOf(a.Module()); len(got) != 2 {
		t.Errorf("ClassesOf(a) = %v", got)
	}
	removed := r.UnregisterModule(a.Module())
	if len(removed) != 2 {
		t.Errorf("UnregisterModule() = %v, want 2 ids", removed)
	}
	if r.Has("a1") || r.Has("a2") || !r.Has("b1") {
		t.Errorf("Classes() = %v after unregister", r.Classes())
	}
}

func TestRetireModule(t *testing.T) {
	census := object.NewCensus()
	r := New(census)
	mod := r.Registrar(object.NewModule("a"))
	if err := mod.Register("X", greeterFactory(mod, "x")); err != nil {
		t.Fatal(err)
	}

	obj, err := r.Create("X", object.HostModule)
	if err != nil {
		t.Fatal(err)
	}
	busy := func() bool { return !census.Module(mod.Module()).Idle() }

	if _, ok := r.RetireModule(mod.Module(), busy); ok {
		t.Fatal("RetireModule() succeeded with a live object")
	}
	if !r.Has("X") {
		t.Fatal("class removed by a refused RetireModule()")
	}

	obj.Release(object.HostModule)
	ids, ok := r.RetireModule(mod.Module(), busy)
	if !ok || len(ids) != 1 || ids[0] != "X" {
		t.Errorf("RetireModule() = %v, %v", ids, ok)
	}
	if r.Has("X") {
		t.Error("class still registered after RetireModule()")
	}
}

func TestConcurrentRegisterAndCreate(t *testing.T) {
	census := object.NewCensus()
	r := New(census)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			mod := r.Registrar(object.NewModule(fmt.Sprintf("m%d", i)))
			id := ClassID(fmt.Sprintf("class-%d", i))
			if err := mod.Register(id, greeterFactory(mod, string(id))); err != nil {
				t.Errorf("Register(%s) error = %v", id, err)
				return
			}
			for j := 0; j < 50; j++ {
				obj, err := r.Create(id, object.HostModule)
				if err != nil {
					t.Errorf("Create(%s) error = %v", id, err)
					return
				}
				obj.Release(object.HostModule)
			}
		}(i)
	}
	wg.Wait()

	if r.Count() != 8 {
		t.Errorf("Count() = %d, want 8", r.Count())
	}
	if census.Objects() != 0 {
		t.Errorf("census.Objects() = %d, want 0", census.Objects())
	}
}

// Whatever order modules register in, the first registration of an id is
// the one that sticks and every later one is rejected.
func TestFirstRegistrationWins(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r := New(object.NewCensus())
		ids := rapid.SliceOfN(rapid.SampledFrom([]ClassID{"X", "Y", "Z"}), 1, 20).Draw(t, "ids")

		first := make(map[ClassID]object.Module)
		for i, id := range ids {
			m := object.NewModule(fmt.Sprintf("m%d", i))
			err := r.Register(id, func() (object.Object, error) { return nil, nil }, m)
			if _, seen := first[id]; seen {
				if !errors.Is(err, ErrDuplicateClassID) {
					t.Fatalf("Register(%s) #%d error = %v, want ErrDuplicateClassID", id, i, err)
				}
				continue
			}
			if err != nil {
				t.Fatalf("Register(%s) error = %v", id, err)
			}
			first[id] = m
		}

		for id, m := range first {
			owner, ok := r.Owner(id)
			if !ok || owner != m {
				t.Fatalf("Owner(%s) = %v, want %v", id, owner, m)
			}
		}
		if r.Count() != len(first) {
			t.Fatalf("Count() = %d, want %d", r.Count(), len(first))
		}
	})
}
