package sandbox

import (
	"context"
	"fmt"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/atvault/lexhost/internal/engine"
	"github.com/atvault/lexhost/internal/lexicon"
	"github.com/atvault/lexhost/internal/store"
	"github.com/atvault/lexhost/internal/tid"
)

// recState is the host-side bookkeeping behind a Record instance. It
// lives in the instance's metatable so scripts can read the underscore
// fields but never write them.
type recState struct {
	collection string
	keyType    string
	rkey       string
	uri        string
	cid        string
	did        string
}

const recStateKey = "__state"

// registerRecord installs the Record constructor and statics. The
// Record table is itself callable, so Record("app.x.y", data) and
// Record.new("app.x.y", data) construct the same instance.
func (rt *Runtime) registerRecord(L *lua.LState, ctx context.Context, inv Invocation) {
	record := L.NewTable()

	// argOffset skips the receiver when invoked through __call.
	construct := func(L *lua.LState, argOffset int) int {
		collection := L.CheckString(1 + argOffset)
		data := L.OptTable(2+argOffset, nil)

		lex := rt.engine.Registry().Get(collection)
		if lex == nil || lex.Type != lexicon.TypeRecord {
			L.RaiseError("Record: no record lexicon for %q", collection)
		}

		st := &recState{
			collection: collection,
			keyType:    lex.RecordKey,
			did:        inv.CallerDID,
		}
		tbl := rt.newInstance(L, ctx, st)

		// Schema defaults first, then explicit data over them.
		for name, def := range lexicon.Defaults(lex.RecordSchema) {
			tbl.RawSetString(name, goToLua(L, def))
		}
		if data != nil {
			data.ForEach(func(k, v lua.LValue) {
				ks, ok := k.(lua.LString)
				if !ok || strings.HasPrefix(string(ks), "_") {
					return
				}
				tbl.RawSetString(string(ks), v)
			})
		}

		L.Push(tbl)
		return 1
	}

	record.RawSetString("new", L.NewFunction(func(L *lua.LState) int {
		return construct(L, 0)
	}))

	record.RawSetString("load", L.NewFunction(func(L *lua.LState) int {
		uri := L.CheckString(1)
		rec, err := rt.engine.GetRecord(ctx, uri)
		if err != nil {
			if errIsNotFound(err) {
				L.Push(lua.LNil)
				return 1
			}
			L.RaiseError("Record.load: %s", err.Error())
		}
		L.Push(rt.instanceFromStored(L, ctx, rec))
		return 1
	}))

	record.RawSetString("load_all", L.NewFunction(func(L *lua.LState) int {
		opts := L.CheckTable(1)
		q := store.RecordQuery{
			Collection: stringField(opts, "collection"),
			DID:        stringField(opts, "did"),
			Limit:      intField(opts, "limit"),
			Cursor:     stringField(opts, "cursor"),
		}
		if q.Collection == "" {
			L.RaiseError("Record.load_all: collection is required")
		}
		page, err := rt.engine.QueryRecords(ctx, q)
		if err != nil {
			L.RaiseError("Record.load_all: %s", err.Error())
		}

		out := L.NewTable()
		list := L.NewTable()
		for i, rec := range page.Records {
			rec := rec
			list.RawSetInt(i+1, rt.instanceFromStored(L, ctx, &rec))
		}
		markArray(L, list)
		out.RawSetString("records", list)
		if page.NextCursor != "" {
			out.RawSetString("cursor", lua.LString(page.NextCursor))
		}
		L.Push(out)
		return 1
	}))

	// save_all saves each record independently and reports per-item
	// results; one failure does not stop or roll back the rest.
	record.RawSetString("save_all", L.NewFunction(func(L *lua.LState) int {
		list := L.CheckTable(1)
		results := L.NewTable()
		for i := 1; i <= list.Len(); i++ {
			item := L.NewTable()
			inst, ok := list.RawGetInt(i).(*lua.LTable)
			if !ok {
				item.RawSetString("ok", lua.LFalse)
				item.RawSetString("error", lua.LString("not a record"))
				results.RawSetInt(i, item)
				continue
			}
			st := instanceState(L, inst)
			if st == nil {
				item.RawSetString("ok", lua.LFalse)
				item.RawSetString("error", lua.LString("not a record"))
				results.RawSetInt(i, item)
				continue
			}
			if err := rt.saveInstance(L, ctx, inst, st); err != nil {
				item.RawSetString("ok", lua.LFalse)
				item.RawSetString("error", lua.LString(err.Error()))
			} else {
				item.RawSetString("ok", lua.LTrue)
				item.RawSetString("uri", lua.LString(st.uri))
			}
			results.RawSetInt(i, item)
		}
		markArray(L, results)
		L.Push(results)
		return 1
	}))

	mt := L.NewTable()
	mt.RawSetString("__call", L.NewFunction(func(L *lua.LState) int {
		return construct(L, 1)
	}))
	L.SetMetatable(record, mt)

	L.SetGlobal("Record", record)
}

// newInstance builds an empty Record instance around st.
func (rt *Runtime) newInstance(L *lua.LState, ctx context.Context, st *recState) *lua.LTable {
	tbl := L.NewTable()
	mt := L.NewTable()

	ud := L.NewUserData()
	ud.Value = st
	mt.RawSetString(recStateKey, ud)

	mt.RawSetString("__index", L.NewFunction(func(L *lua.LState) int {
		self := L.CheckTable(1)
		key := L.CheckString(2)
		st := instanceState(L, self)
		if st == nil {
			L.Push(lua.LNil)
			return 1
		}
		switch key {
		case "_collection":
			L.Push(lua.LString(st.collection))
		case "_key_type":
			L.Push(lua.LString(st.keyType))
		case "_rkey":
			L.Push(lua.LString(st.rkey))
		case "_uri":
			L.Push(lua.LString(st.uri))
		case "_cid":
			L.Push(lua.LString(st.cid))
		case "_did":
			L.Push(lua.LString(st.did))
		case "save":
			L.Push(L.NewFunction(rt.methodSave(ctx)))
		case "delete":
			L.Push(L.NewFunction(rt.methodDelete(ctx)))
		case "set_key_type":
			L.Push(L.NewFunction(methodSetKeyType))
		case "set_rkey":
			L.Push(L.NewFunction(methodSetRkey))
		case "generate_rkey":
			L.Push(L.NewFunction(methodGenerateRkey))
		default:
			L.Push(lua.LNil)
		}
		return 1
	}))

	mt.RawSetString("__newindex", L.NewFunction(func(L *lua.LState) int {
		self := L.CheckTable(1)
		key := L.CheckString(2)
		if strings.HasPrefix(key, "_") {
			L.RaiseError("record field %q is read-only", key)
		}
		self.RawSetString(key, L.Get(3))
		return 0
	}))

	L.SetMetatable(tbl, mt)
	return tbl
}

// instanceFromStored wraps a stored record as a Record instance.
func (rt *Runtime) instanceFromStored(L *lua.LState, ctx context.Context, rec *store.Record) *lua.LTable {
	st := &recState{
		collection: rec.Collection,
		rkey:       rec.Rkey,
		uri:        rec.URI,
		cid:        rec.CID,
		did:        rec.DID,
	}
	if lex := rt.engine.Registry().Get(rec.Collection); lex != nil {
		st.keyType = lex.RecordKey
	}
	tbl := rt.newInstance(L, ctx, st)
	for k, v := range rec.Value {
		if k == "$type" {
			continue
		}
		tbl.RawSetString(k, goToLua(L, v))
	}
	return tbl
}

// instanceState extracts the host state from a Record instance.
// Returns nil for tables that are not instances.
func instanceState(L *lua.LState, tbl *lua.LTable) *recState {
	mt, ok := L.GetMetatable(tbl).(*lua.LTable)
	if !ok {
		return nil
	}
	ud, ok := mt.RawGetString(recStateKey).(*lua.LUserData)
	if !ok {
		return nil
	}
	st, _ := ud.Value.(*recState)
	return st
}

// saveInstance persists an instance through the engine and updates its
// addressing state.
func (rt *Runtime) saveInstance(L *lua.LState, ctx context.Context, tbl *lua.LTable, st *recState) error {
	value := map[string]any{}
	var convErr error
	tbl.ForEach(func(k, v lua.LValue) {
		if convErr != nil {
			return
		}
		if ks, ok := k.(lua.LString); ok {
			gv, err := luaToGo(L, v)
			if err != nil {
				convErr = fmt.Errorf("field %q: %w", string(ks), err)
				return
			}
			value[string(ks)] = gv
		}
	})
	if convErr != nil {
		return convErr
	}

	rec, err := rt.engine.SaveRecord(ctx, engine.RecordSave{
		DID:        st.did,
		Collection: st.collection,
		Rkey:       st.rkey,
		KeyType:    st.keyType,
		Value:      value,
	})
	if err != nil {
		return err
	}
	st.rkey = rec.Rkey
	st.uri = rec.URI
	st.cid = rec.CID
	return nil
}

func (rt *Runtime) methodSave(ctx context.Context) lua.LGFunction {
	return func(L *lua.LState) int {
		self := L.CheckTable(1)
		st := instanceState(L, self)
		if st == nil {
			L.RaiseError("save: not a record")
		}
		if err := rt.saveInstance(L, ctx, self, st); err != nil {
			L.RaiseError("save: %s", err.Error())
		}
		L.Push(self)
		return 1
	}
}

func (rt *Runtime) methodDelete(ctx context.Context) lua.LGFunction {
	return func(L *lua.LState) int {
		self := L.CheckTable(1)
		st := instanceState(L, self)
		if st == nil {
			L.RaiseError("delete: not a record")
		}
		if st.uri == "" {
			L.RaiseError("delete: record was never saved")
		}
		if err := rt.engine.DeleteRecord(ctx, st.uri); err != nil && !errIsNotFound(err) {
			L.RaiseError("delete: %s", err.Error())
		}
		L.Push(lua.LTrue)
		return 1
	}
}

func methodSetKeyType(L *lua.LState) int {
	self := L.CheckTable(1)
	keyType := L.CheckString(2)
	st := instanceState(L, self)
	if st == nil {
		L.RaiseError("set_key_type: not a record")
	}
	if !lexicon.ValidKeyType(keyType) {
		L.RaiseError("set_key_type: invalid key type %q", keyType)
	}
	st.keyType = keyType
	return 0
}

func methodSetRkey(L *lua.LState) int {
	self := L.CheckTable(1)
	rkey := L.CheckString(2)
	st := instanceState(L, self)
	if st == nil {
		L.RaiseError("set_rkey: not a record")
	}
	st.rkey = rkey
	return 0
}

func methodGenerateRkey(L *lua.LState) int {
	self := L.CheckTable(1)
	st := instanceState(L, self)
	if st == nil {
		L.RaiseError("generate_rkey: not a record")
	}
	st.rkey = tid.Generate()
	L.Push(lua.LString(st.rkey))
	return 1
}
