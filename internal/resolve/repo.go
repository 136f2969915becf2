package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/atvault/lexhost/internal/aturi"
)

// ResolvePDS finds the personal data server endpoint for a DID.
func (r *Resolver) ResolvePDS(ctx context.Context, did string) (string, error) {
	return r.resolvePDS(ctx, did)
}

// RepoRecord is one record listed from a repo.
type RepoRecord struct {
	URI   string
	CID   string
	Rkey  string
	Value map[string]any
}

// RecordsPage is one page of com.atproto.repo.listRecords output.
type RecordsPage struct {
	Records []RepoRecord
	Cursor  string
}

// ListRepoRecords pages through a repo's records in one collection via
// its PDS.
func (r *Resolver) ListRepoRecords(ctx context.Context, pds, did, collection, cursor string, limit int) (*RecordsPage, error) {
	vals := url.Values{
		"repo":       {did},
		"collection": {collection},
	}
	if cursor != "" {
		vals.Set("cursor", cursor)
	}
	if limit > 0 {
		vals.Set("limit", strconv.Itoa(limit))
	}
	body, err := r.get(ctx, pds+"/xrpc/com.atproto.repo.listRecords?"+vals.Encode())
	if err != nil {
		return nil, fmt.Errorf("list records for %s: %w", did, err)
	}

	var out struct {
		Records []struct {
			URI   string         `json:"uri"`
			CID   string         `json:"cid"`
			Value map[string]any `json:"value"`
		} `json:"records"`
		Cursor string `json:"cursor"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode listRecords: %w", err)
	}

	page := &RecordsPage{Cursor: out.Cursor}
	for _, rec := range out.Records {
		if rec.URI == "" || rec.Value == nil {
			continue
		}
		page.Records = append(page.Records, RepoRecord{
			URI:   rec.URI,
			CID:   rec.CID,
			Rkey:  aturi.Rkey(rec.URI),
			Value: rec.Value,
		})
	}
	return page, nil
}
