// Package server is the HTTP layer: the public /xrpc surface dispatching
// lexicon-defined methods, and the bearer-key protected /admin surface
// for lexicon management, record browsing, backfill and key minting.
package server
