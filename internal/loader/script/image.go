// Package script loads Lua scripts as module images.
//
// A script module defines a global register function that receives a
// registrar table and declares its classes:
//
//	name = "greeter"
//
//	function register(reg)
//	  reg:class("Greeter", function()
//	    return {
//	      greet = function(self, who) return "hello " .. who end,
//	    }
//	  end)
//	end
//
// Each constructor returns the table backing one instance. Instances are
// reference-counted objects exposing CapInvoker, through which the host
// calls the table's methods. A method named __destroy runs when the
// instance is destroyed. The optional globals initialize and finalize run
// after registration and at unload. A log(level, message) function is
// available to scripts.
//
// Each module runs in its own sandboxed state with only the base, table,
// string and math libraries. Calls into a module are serialized.
package script

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/modhost/internal/diag"
	"github.com/dshills/modhost/internal/loader"
	"github.com/dshills/modhost/pkg/object"
	"github.com/dshills/modhost/pkg/registry"
)

// Ext is the file extension handled by the opener.
const Ext = ".lua"

// Global names looked up in a script.
const (
	FuncRegister   = "register"
	FuncInitialize = "initialize"
	FuncFinalize   = "finalize"
	GlobalName     = "name"
	MethodDestroy  = "__destroy"
)

// Opener opens Lua script modules.
type Opener struct {
	sink    diag.Sink
	timeout time.Duration
}

// Option configures an Opener.
type Option func(*Opener)

// WithSink sets where script log calls and destroy errors are reported.
func WithSink(s diag.Sink) Option {
	return func(o *Opener) {
		o.sink = s
	}
}

// WithCallTimeout bounds each call into a script.
func WithCallTimeout(d time.Duration) Option {
	return func(o *Opener) {
		o.timeout = d
	}
}

// NewOpener returns an opener for Lua script modules.
func NewOpener(opts ...Option) *Opener {
	o := &Opener{sink: diag.Nop{}, timeout: DefaultCallTimeout}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Open implements loader.Opener.
func (o *Opener) Open(path string) (loader.Image, error) {
	img, err := o.OpenImage(path)
	if err != nil {
		return nil, err
	}
	return img, nil
}

// OpenImage runs the script at path and checks for its entry point.
func (o *Opener) OpenImage(path string) (*Image, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	img := &Image{path: path, sink: o.sink}
	img.st = newState(path, o.sink, o.timeout)

	err = img.st.do(func(L *lua.LState) error {
		fn, err := L.Load(bytes.NewReader(src), path)
		if err != nil {
			return err
		}
		if _, err := call(L, fn); err != nil {
			return err
		}

		if globalFunc(L, FuncRegister) == nil {
			return fmt.Errorf("%s: global %s: %w", path, FuncRegister, loader.ErrNoEntryPoint)
		}
		img.hasInit = globalFunc(L, FuncInitialize) != nil
		if name, ok := L.GetGlobal(GlobalName).(lua.LString); ok {
			img.name = string(name)
		}
		return nil
	})
	if err != nil {
		img.st.close()
		return nil, err
	}
	return img, nil
}

// Image is a loaded script module.
type Image struct {
	path    string
	name    string
	hasInit bool
	st      *state
	sink    diag.Sink
}

// Name returns the script's name global, or "".
func (img *Image) Name() string {
	return img.name
}

// Register calls the script's register function with a registrar table
// offering reg:class(id, constructor). class returns true, or false and a
// message when the id is rejected.
func (img *Image) Register(r *registry.Registrar) error {
	return img.st.do(func(L *lua.LState) error {
		reg := L.NewTable()
		reg.RawSetString("module", lua.LString(r.Module().Name()))
		reg.RawSetString("class", L.NewFunction(func(L *lua.LState) int {
			id := registry.ClassID(L.CheckString(2))
			ctor := L.CheckFunction(3)

			if err := r.Register(id, img.factory(r, id, ctor)); err != nil {
				L.Push(lua.LFalse)
				L.Push(lua.LString(err.Error()))
				return 2
			}
			L.Push(lua.LTrue)
			return 1
		}))

		_, err := call(L, globalFunc(L, FuncRegister), reg)
		return err
	})
}

// factory builds instances of id by calling ctor.
func (img *Image) factory(r *registry.Registrar, id registry.ClassID, ctor *lua.LFunction) registry.Factory {
	return func() (object.Object, error) {
		var table *lua.LTable
		err := img.st.do(func(L *lua.LState) error {
			ret, err := call(L, ctor)
			if err != nil {
				return err
			}
			if len(ret) == 0 {
				return fmt.Errorf("constructor of %q returned nothing", id)
			}
			t, ok := ret[0].(*lua.LTable)
			if !ok {
				return fmt.Errorf("constructor of %q returned %s, want table", id, ret[0].Type())
			}
			table = t
			return nil
		})
		if err != nil {
			return nil, err
		}
		return newInstance(img, r, id, table), nil
	}
}

// HasInitializer reports whether the script defines initialize.
func (img *Image) HasInitializer() bool {
	return img.hasInit
}

// Initialize calls the script's initialize function.
func (img *Image) Initialize() error {
	return img.st.do(func(L *lua.LState) error {
		fn := globalFunc(L, FuncInitialize)
		if fn == nil {
			return nil
		}
		_, err := call(L, fn)
		return err
	})
}

// Close calls finalize, if defined, and closes the state.
func (img *Image) Close() error {
	err := img.st.do(func(L *lua.LState) error {
		fn := globalFunc(L, FuncFinalize)
		if fn == nil {
			return nil
		}
		_, err := call(L, fn)
		return err
	})
	img.st.close()
	if errors.Is(err, ErrStateClosed) {
		return nil
	}
	return err
}
