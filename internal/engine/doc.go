// Package engine implements the lexicon and record operations behind the
// XRPC and admin surfaces.
//
// The engine composes a store.Store with an in-memory lexicon.Registry.
// The registry holds the current revision of every lexicon and is the
// source of truth for dispatch and schema lookups; the store is the
// source of truth across restarts. Every mutation goes through the engine
// so the two stay consistent:
//
//  1. PutLexicon validates the document, writes it with a revision bump,
//     then upserts the registry entry.
//  2. SaveRecord resolves the collection's record lexicon, validates and
//     filters the payload, generates the record key, computes the content
//     identifier, and upserts the row.
//
// The engine performs no I/O of its own beyond the store; network
// resolution and script execution live in the resolve and sandbox
// packages and call back into the engine.
package engine
