package lexicon

import (
	"sort"
	"sync"
)

// Registry is an in-memory cache of the current revision of every
// lexicon, keyed by NSID. The dispatcher reads from it on every call;
// the admin surface updates it whenever the store changes.
//
// All methods are safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]*ParsedLexicon
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*ParsedLexicon)}
}

// Replace swaps the entire registry contents. Used at startup after
// loading all lexicons from the store.
func (r *Registry) Replace(lexicons []*ParsedLexicon) {
	next := make(map[string]*ParsedLexicon, len(lexicons))
	for _, p := range lexicons {
		next[p.ID] = p
	}
	r.mu.Lock()
	r.byID = next
	r.mu.Unlock()
}

// Upsert inserts or replaces a single lexicon.
func (r *Registry) Upsert(p *ParsedLexicon) {
	r.mu.Lock()
	r.byID[p.ID] = p
	r.mu.Unlock()
}

// Remove deletes a lexicon by NSID, reporting whether it was present.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byID[id]
	delete(r.byID, id)
	return ok
}

// Get returns a lexicon by NSID, or nil.
func (r *Registry) Get(id string) *ParsedLexicon {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id]
}

// RecordCollections returns the NSIDs of all record-type lexicons, sorted.
func (r *Registry) RecordCollections() []string {
	return r.idsOfType(TypeRecord)
}

// Queries returns the NSIDs of all query-type lexicons, sorted.
func (r *Registry) Queries() []string {
	return r.idsOfType(TypeQuery)
}

// Procedures returns the NSIDs of all procedure-type lexicons, sorted.
func (r *Registry) Procedures() []string {
	return r.idsOfType(TypeProcedure)
}

// Count returns the number of registered lexicons.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func (r *Registry) idsOfType(t Type) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for id, p := range r.byID {
		if p.Type == t {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
