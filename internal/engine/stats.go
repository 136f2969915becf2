package engine

import "context"

// Stats summarizes what the instance is hosting.
type Stats struct {
	Lexicons     int   `json:"lexicons"`
	TotalRecords int64 `json:"total_records"`
	// Collections maps every collection with a record lexicon to its
	// record count, zero included, plus any collection that still holds
	// records after its lexicon was deleted.
	Collections map[string]int64 `json:"collections"`
}

// Stats computes instance statistics.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	counts, err := e.store.RecordCounts(ctx)
	if err != nil {
		return nil, err
	}

	collections := make(map[string]int64, len(counts))
	for _, id := range e.registry.RecordCollections() {
		collections[id] = 0
	}
	var total int64
	for collection, n := range counts {
		collections[collection] = n
		total += n
	}

	return &Stats{
		Lexicons:     e.registry.Count(),
		TotalRecords: total,
		Collections:  collections,
	}, nil
}
