// Package sandbox executes lexicon handler scripts in a restricted Lua
// runtime.
//
// Every invocation gets a fresh interpreter state: scripts cannot leak
// globals, file handles or coroutines into each other. The state opens
// only the base, table, string and math libraries, and the escape
// hatches those carry (load, loadstring, dofile, loadfile, print,
// collectgarbage) are removed. There is no io, no os, no networking and
// no require.
//
// Scripts interact with the host through injected bindings:
//
//	handle()               entry point the script must define
//	params / input         coerced query parameters or procedure input
//	caller_did, method,
//	collection             invocation context strings
//	now(), log(), TID()    utility functions
//	toarray(t)             marks a table so it serializes as a JSON array
//	db.get/query/count/
//	db.search              read access to the record store
//	Record                 constructor plus load/load_all/save_all and
//	                       per-instance save/delete/key helpers
//
// Execution is bounded by a wall-clock deadline enforced through the
// interpreter's context support; an expired deadline surfaces as a
// TimeoutError, any other script failure as a ScriptError.
package sandbox
