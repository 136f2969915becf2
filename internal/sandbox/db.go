package sandbox

import (
	"context"
	"errors"

	lua "github.com/yuin/gopher-lua"

	"github.com/atvault/lexhost/internal/engine"
	"github.com/atvault/lexhost/internal/store"
)

// registerDB installs the read-only db table. All functions raise a Lua
// error on storage failures and return nil for missing records.
func (rt *Runtime) registerDB(L *lua.LState, ctx context.Context) {
	db := L.NewTable()

	db.RawSetString("get", L.NewFunction(func(L *lua.LState) int {
		uri := L.CheckString(1)
		rec, err := rt.engine.GetRecord(ctx, uri)
		if err != nil {
			if engine.IsNotFound(err) {
				L.Push(lua.LNil)
				return 1
			}
			L.RaiseError("db.get: %s", err.Error())
		}
		L.Push(recordToLua(L, rec))
		return 1
	}))

	db.RawSetString("query", L.NewFunction(func(L *lua.LState) int {
		opts := L.CheckTable(1)
		q := store.RecordQuery{
			Collection: stringField(opts, "collection"),
			DID:        stringField(opts, "did"),
			Limit:      intField(opts, "limit"),
			Cursor:     stringField(opts, "cursor"),
		}
		if q.Collection == "" {
			L.RaiseError("db.query: collection is required")
		}

		// Legacy offset paging: widen the page and slice. Cursor paging
		// is the supported form; offset is capped by the query limit.
		offset := intField(opts, "offset")
		if offset > 0 && q.Cursor == "" {
			limit := q.Limit
			if limit <= 0 {
				limit = 20
			}
			q.Limit = offset + limit
		}

		page, err := rt.engine.QueryRecords(ctx, q)
		if err != nil {
			L.RaiseError("db.query: %s", err.Error())
		}

		records := page.Records
		if offset > 0 && q.Cursor == "" {
			if offset >= len(records) {
				records = nil
			} else {
				records = records[offset:]
			}
		}

		out := L.NewTable()
		list := L.NewTable()
		for i, rec := range records {
			rec := rec
			list.RawSetInt(i+1, recordToLua(L, &rec))
		}
		markArray(L, list)
		out.RawSetString("records", list)
		if page.NextCursor != "" {
			out.RawSetString("cursor", lua.LString(page.NextCursor))
		}
		L.Push(out)
		return 1
	}))

	db.RawSetString("count", L.NewFunction(func(L *lua.LState) int {
		collection := L.CheckString(1)
		did := L.OptString(2, "")
		n, err := rt.engine.CountRecords(ctx, collection, did)
		if err != nil {
			L.RaiseError("db.count: %s", err.Error())
		}
		L.Push(lua.LNumber(n))
		return 1
	}))

	db.RawSetString("search", L.NewFunction(func(L *lua.LState) int {
		opts := L.CheckTable(1)
		collection := stringField(opts, "collection")
		field := stringField(opts, "field")
		query := stringField(opts, "query")
		if collection == "" || field == "" || query == "" {
			L.RaiseError("db.search: collection, field and query are required")
		}

		found, err := rt.engine.SearchRecords(ctx, collection, field, query, intField(opts, "limit"))
		if err != nil {
			L.RaiseError("db.search: %s", err.Error())
		}

		out := L.NewTable()
		list := L.NewTable()
		for i, rec := range found {
			rec := rec
			list.RawSetInt(i+1, recordToLua(L, &rec))
		}
		markArray(L, list)
		out.RawSetString("records", list)
		L.Push(out)
		return 1
	}))

	L.SetGlobal("db", db)
}

// recordToLua renders a stored record as a plain Lua table: payload
// fields plus read-only underscore metadata.
func recordToLua(L *lua.LState, rec *store.Record) *lua.LTable {
	tbl := L.NewTable()
	for k, v := range rec.Value {
		if k == "$type" {
			continue
		}
		tbl.RawSetString(k, goToLua(L, v))
	}
	tbl.RawSetString("_uri", lua.LString(rec.URI))
	tbl.RawSetString("_cid", lua.LString(rec.CID))
	tbl.RawSetString("_collection", lua.LString(rec.Collection))
	tbl.RawSetString("_rkey", lua.LString(rec.Rkey))
	tbl.RawSetString("_did", lua.LString(rec.DID))
	return tbl
}

func stringField(tbl *lua.LTable, key string) string {
	if s, ok := tbl.RawGetString(key).(lua.LString); ok {
		return string(s)
	}
	return ""
}

func intField(tbl *lua.LTable, key string) int {
	if n, ok := tbl.RawGetString(key).(lua.LNumber); ok {
		return int(n)
	}
	return 0
}

// errIsNotFound reports whether err is any flavor of missing row.
func errIsNotFound(err error) bool {
	return engine.IsNotFound(err) || errors.Is(err, store.ErrNotFound)
}
