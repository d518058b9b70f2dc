package script

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/modhost/internal/diag"
	"github.com/dshills/modhost/pkg/object"
	"github.com/dshills/modhost/pkg/registry"
)

// CapInvoker is the capability through which script instances are called.
const CapInvoker object.CapabilityID = "script.invoker"

// Invoker calls methods of a script instance.
type Invoker interface {
	// Invoke calls the instance's method with args and returns its results.
	Invoke(method string, args ...any) ([]any, error)

	// Field returns a non-function field of the instance table. It fails
	// with ErrStateClosed once the module is unloaded.
	Field(name string) (any, error)
}

// Instance is a reference-counted object backed by a Lua table.
type Instance struct {
	object.Base
	img   *Image
	table *lua.LTable
}

var _ Invoker = (*Instance)(nil)

func newInstance(img *Image, r *registry.Registrar, id registry.ClassID, table *lua.LTable) *Instance {
	inst := &Instance{img: img, table: table}
	r.Init(&inst.Base, inst,
		object.WithClassID(string(id)),
		object.WithDestroy(inst.destroy),
	)
	inst.Expose(CapInvoker, inst)
	return inst
}

// Invoke calls table:method(args...).
func (i *Instance) Invoke(method string, args ...any) ([]any, error) {
	var out []any
	err := i.img.st.do(func(L *lua.LState) error {
		fn, ok := i.table.RawGetString(method).(*lua.LFunction)
		if !ok {
			return fmt.Errorf("%s: no method %q", i.ClassID(), method)
		}

		largs := make([]lua.LValue, 0, len(args)+1)
		largs = append(largs, i.table)
		for _, a := range args {
			largs = append(largs, toLua(L, a))
		}

		ret, err := call(L, fn, largs...)
		if err != nil {
			return err
		}
		out = make([]any, len(ret))
		for n, v := range ret {
			out[n] = toGo(v)
		}
		return nil
	})
	return out, err
}

// Field returns table[name] converted to Go.
func (i *Instance) Field(name string) (any, error) {
	var v any
	err := i.img.st.do(func(L *lua.LState) error {
		v = toGo(i.table.RawGetString(name))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (i *Instance) destroy() {
	err := i.img.st.do(func(L *lua.LState) error {
		fn, ok := i.table.RawGetString(MethodDestroy).(*lua.LFunction)
		if !ok {
			return nil
		}
		_, err := call(L, fn, i.table)
		return err
	})
	if err != nil {
		diag.Writef(i.img.sink, diag.Warning, "destroy failed", "%s: %v", i.ClassID(), err)
	}
}
