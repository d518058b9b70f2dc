package script

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/modhost/internal/diag"
)

// DefaultCallTimeout bounds a single call into a script.
const DefaultCallTimeout = 5 * time.Second

// ErrStateClosed is returned when calling into a closed module.
var ErrStateClosed = errors.New("lua state is closed")

// unsafeGlobals are removed from every state.
var unsafeGlobals = []string{"dofile", "loadfile", "load", "loadstring", "require", "module"}

// state is a sandboxed Lua state. gopher-lua states are not safe for
// concurrent use, so every access goes through mu.
type state struct {
	L       *lua.LState
	mu      sync.Mutex
	timeout time.Duration
	closed  bool
}

func newState(name string, sink diag.Sink, timeout time.Duration) *state {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	// io, os, debug, package and coroutine stay closed
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	for _, g := range unsafeGlobals {
		L.SetGlobal(g, lua.LNil)
	}

	L.SetGlobal("log", L.NewFunction(func(L *lua.LState) int {
		sev := diag.ParseSeverity(L.CheckString(1))
		diag.Write(sink, sev, L.CheckString(2), name)
		return 0
	}))

	return &state{L: L, timeout: timeout}
}

// do runs fn with the state locked and a call deadline installed. Panics
// raised by gopher-lua are returned as errors.
func (s *state) do(fn func(L *lua.LState) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doLocked(fn)
}

func (s *state) doLocked(fn func(L *lua.LState) error) (err error) {
	if s.closed {
		return ErrStateClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	s.L.SetContext(ctx)
	defer s.L.RemoveContext()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn(s.L)
}

// call calls fn with args and returns every value it returns. The state
// must be locked.
func call(L *lua.LState, fn lua.LValue, args ...lua.LValue) ([]lua.LValue, error) {
	top := L.GetTop()
	L.Push(fn)
	for _, arg := range args {
		L.Push(arg)
	}
	if err := L.PCall(len(args), lua.MultRet, nil); err != nil {
		return nil, err
	}

	n := L.GetTop() - top
	results := make([]lua.LValue, n)
	for i := 0; i < n; i++ {
		results[i] = L.Get(top + i + 1)
	}
	L.Pop(n)
	return results, nil
}

// globalFunc returns the global function name, or nil.
func globalFunc(L *lua.LState, name string) *lua.LFunction {
	fn, _ := L.GetGlobal(name).(*lua.LFunction)
	return fn
}

func (s *state) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.L.Close()
	s.closed = true
}
