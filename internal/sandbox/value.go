package sandbox

import (
	"errors"
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// arrayMarker is the metatable field set by toarray(). Lua cannot
// distinguish an empty array from an empty object, so scripts mark
// tables that must serialize as JSON arrays.
const arrayMarker = "__array"

// maxConvertDepth bounds table nesting when converting script values
// back to Go. Deeply nested tables must surface as a script error, not
// exhaust the host stack.
const maxConvertDepth = 128

var errRecursiveTable = errors.New("table references itself")

// goToLua converts a JSON-shaped Go value into a Lua value.
// Slices become tables with the array marker set so they round-trip.
func goToLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case []any:
		tbl := L.NewTable()
		for i, elem := range val {
			tbl.RawSetInt(i+1, goToLua(L, elem))
		}
		markArray(L, tbl)
		return tbl
	case map[string]any:
		tbl := L.NewTable()
		for k, elem := range val {
			tbl.RawSetString(k, goToLua(L, elem))
		}
		return tbl
	default:
		return lua.LNil
	}
}

// luaToGo converts a Lua value back into a JSON-shaped Go value.
// Tables with consecutive integer keys from 1, or with the array marker,
// become []any; everything else becomes map[string]any with string keys.
// Self-referential tables and nesting past maxConvertDepth are rejected.
func luaToGo(L *lua.LState, v lua.LValue) (any, error) {
	return convertLua(L, v, map[*lua.LTable]bool{}, 0)
}

func convertLua(L *lua.LState, v lua.LValue, seen map[*lua.LTable]bool, depth int) (any, error) {
	switch val := v.(type) {
	case *lua.LNilType:
		return nil, nil
	case lua.LBool:
		return bool(val), nil
	case lua.LString:
		return string(val), nil
	case lua.LNumber:
		f := float64(val)
		if f == float64(int64(f)) {
			return int64(f), nil
		}
		return f, nil
	case *lua.LTable:
		if depth >= maxConvertDepth {
			return nil, fmt.Errorf("table nesting exceeds %d levels", maxConvertDepth)
		}
		if seen[val] {
			return nil, errRecursiveTable
		}
		seen[val] = true
		out, err := tableToGo(L, val, seen, depth+1)
		delete(seen, val)
		return out, err
	default:
		return nil, nil
	}
}

func tableToGo(L *lua.LState, tbl *lua.LTable, seen map[*lua.LTable]bool, depth int) (any, error) {
	n := tbl.Len()
	if n > 0 || isMarkedArray(L, tbl) {
		out := make([]any, 0, n)
		for i := 1; i <= n; i++ {
			elem, err := convertLua(L, tbl.RawGetInt(i), seen, depth)
			if err != nil {
				return nil, err
			}
			out = append(out, elem)
		}
		return out, nil
	}

	out := map[string]any{}
	var convErr error
	tbl.ForEach(func(k, v lua.LValue) {
		if convErr != nil {
			return
		}
		if ks, ok := k.(lua.LString); ok {
			elem, err := convertLua(L, v, seen, depth)
			if err != nil {
				convErr = err
				return
			}
			out[string(ks)] = elem
		}
	})
	if convErr != nil {
		return nil, convErr
	}
	return out, nil
}

func markArray(L *lua.LState, tbl *lua.LTable) {
	mt, ok := L.GetMetatable(tbl).(*lua.LTable)
	if !ok {
		mt = L.NewTable()
		L.SetMetatable(tbl, mt)
	}
	mt.RawSetString(arrayMarker, lua.LTrue)
}

func isMarkedArray(L *lua.LState, tbl *lua.LTable) bool {
	mt, ok := L.GetMetatable(tbl).(*lua.LTable)
	if !ok {
		return false
	}
	return mt.RawGetString(arrayMarker) == lua.LTrue
}
