package sandbox

import (
	"context"
	"log/slog"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/atvault/lexhost/internal/engine"
	"github.com/atvault/lexhost/internal/tid"
)

// DefaultTimeout bounds script execution when no timeout is configured.
const DefaultTimeout = 5 * time.Second

// Runtime executes handler scripts against an engine. A Runtime is
// immutable after construction and safe for concurrent use; each
// invocation gets its own interpreter state.
type Runtime struct {
	engine  *engine.Engine
	logger  *slog.Logger
	timeout time.Duration
}

// New builds a script runtime. A zero timeout means DefaultTimeout.
func New(e *engine.Engine, logger *slog.Logger, timeout time.Duration) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runtime{engine: e, logger: logger, timeout: timeout}
}

// Invocation carries one script call's context.
type Invocation struct {
	// Method is the NSID being dispatched.
	Method string
	// CallerDID is the repo records are written under.
	CallerDID string
	// Collection is the lexicon's target collection, if any.
	Collection string
	// Params holds coerced query parameters (queries).
	Params map[string]any
	// Input holds the request body (procedures).
	Input map[string]any
}

// newState builds a restricted interpreter for one invocation.
// The caller owns the returned state and must Close it.
func (rt *Runtime) newState(ctx context.Context, inv Invocation) *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	L.SetContext(ctx)

	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}

	// The base library carries escape hatches the sandbox forbids.
	for _, name := range []string{
		"load", "loadstring", "dofile", "loadfile", "print", "collectgarbage",
	} {
		L.SetGlobal(name, lua.LNil)
	}

	L.SetGlobal("method", lua.LString(inv.Method))
	L.SetGlobal("collection", lua.LString(inv.Collection))
	L.SetGlobal("caller_did", lua.LString(inv.CallerDID))
	if inv.Params != nil {
		L.SetGlobal("params", goToLua(L, inv.Params))
	}
	if inv.Input != nil {
		L.SetGlobal("input", goToLua(L, inv.Input))
	}

	L.SetGlobal("now", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(time.Now().UTC().Format(time.RFC3339)))
		return 1
	}))
	L.SetGlobal("TID", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(tid.Generate()))
		return 1
	}))
	L.SetGlobal("log", L.NewFunction(func(L *lua.LState) int {
		parts := make([]any, 0, L.GetTop())
		for i := 1; i <= L.GetTop(); i++ {
			gv, err := luaToGo(L, L.Get(i))
			if err != nil {
				gv = "<" + err.Error() + ">"
			}
			parts = append(parts, gv)
		}
		rt.logger.Info("script log", "method", inv.Method, "args", parts)
		return 0
	}))
	L.SetGlobal("toarray", L.NewFunction(func(L *lua.LState) int {
		tbl := L.CheckTable(1)
		markArray(L, tbl)
		L.Push(tbl)
		return 1
	}))

	rt.registerDB(L, ctx)
	rt.registerRecord(L, ctx, inv)
	return L
}
