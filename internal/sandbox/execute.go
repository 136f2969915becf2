package sandbox

import (
	"context"
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// Invoke runs a handler script and returns handle()'s result as a
// JSON-shaped Go value. The script is compiled fresh, must define a
// global handle function, and runs under the runtime's timeout.
//
// handle is called with no arguments. Procedure input and query
// parameters are exposed through the input / params globals.
func (rt *Runtime) Invoke(ctx context.Context, script string, inv Invocation) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, rt.timeout)
	defer cancel()

	L := rt.newState(ctx, inv)
	defer L.Close()

	if err := L.DoString(script); err != nil {
		return nil, rt.scriptFailure(ctx, inv, err)
	}

	fn := L.GetGlobal("handle")
	if fn.Type() != lua.LTFunction {
		return nil, &ScriptError{Method: inv.Method, Message: "script must define a handle function"}
	}

	if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}); err != nil {
		return nil, rt.scriptFailure(ctx, inv, err)
	}

	ret := L.Get(-1)
	L.Pop(1)
	out, err := luaToGo(L, ret)
	if err != nil {
		rt.logger.Warn("script result not serializable", "method", inv.Method, "error", err)
		return nil, &ScriptError{Method: inv.Method, Message: "handle result: " + err.Error()}
	}
	return out, nil
}

// CheckScript loads a script in a throwaway sandbox state and verifies
// it defines a global handle function. Used at lexicon upload time so a
// broken script is rejected before it is stored.
func (rt *Runtime) CheckScript(script string) error {
	ctx, cancel := context.WithTimeout(context.Background(), rt.timeout)
	defer cancel()

	L := rt.newState(ctx, Invocation{})
	defer L.Close()

	if err := L.DoString(script); err != nil {
		msg := err.Error()
		if apiErr, ok := err.(*lua.ApiError); ok {
			msg = apiErr.Object.String()
		}
		return fmt.Errorf("script does not load: %s", msg)
	}
	if L.GetGlobal("handle").Type() != lua.LTFunction {
		return fmt.Errorf("script must define a handle function")
	}
	return nil
}

// scriptFailure classifies a Lua error as a timeout or a script error.
func (rt *Runtime) scriptFailure(ctx context.Context, inv Invocation, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		rt.logger.Warn("script timed out", "method", inv.Method, "timeout", rt.timeout)
		return &TimeoutError{Method: inv.Method, Timeout: rt.timeout}
	}
	msg := err.Error()
	if apiErr, ok := err.(*lua.ApiError); ok {
		msg = apiErr.Object.String()
	}
	rt.logger.Warn("script failed", "method", inv.Method, "error", msg)
	return &ScriptError{Method: inv.Method, Message: msg}
}
