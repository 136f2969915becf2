// Package lexicon validates and parses AT Protocol Lexicon v1 documents.
//
// A lexicon document describes either a record type (schema only) or an
// XRPC method (query/procedure/subscription). The package provides:
//
//   - Validate: structural validation against the Lexicon type grammar.
//     Def kinds form a closed set of tagged variants; validation is an
//     exhaustive match over them, so a malformed document is never
//     partially accepted.
//   - Parse: metadata extraction (main type, record key, parameters,
//     input/output schemas) into a ParsedLexicon.
//   - Registry: an in-memory cache of the current revision of every
//     lexicon, kept in sync with the store.
//   - ValidateRecordPayload / ValidateParams: data validation of record
//     payloads and XRPC parameters against a lexicon's schemas.
//
// # Grammar summary
//
// Top level: `lexicon` must equal 1, `id` must be an NSID with at least
// three dot-separated segments, `defs` must be a non-empty map. Primary
// def types (record, query, procedure, subscription) may only appear
// under the `main` key; every other key is restricted to non-primary
// types (object, array, token, boolean, integer, string, unknown,
// bytes, cid-link, blob).
package lexicon
