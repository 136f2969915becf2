package xrpc

import (
	"context"

	"github.com/atvault/lexhost/internal/aturi"
	"github.com/atvault/lexhost/internal/engine"
	"github.com/atvault/lexhost/internal/lexicon"
	"github.com/atvault/lexhost/internal/store"
)

// recordView is the wire shape built-in handlers use for records.
type recordView struct {
	URI   string         `json:"uri"`
	CID   string         `json:"cid"`
	Value map[string]any `json:"value"`
}

func viewOf(rec *store.Record) recordView {
	return recordView{URI: rec.URI, CID: rec.CID, Value: rec.Value}
}

// builtinQuery serves a scriptless query over its target collection:
// a single-record get when a uri parameter is present, a cursor-paginated
// list otherwise.
func (d *Dispatcher) builtinQuery(ctx context.Context, lex *lexicon.ParsedLexicon, params map[string]any) (any, error) {
	if uri, ok := params["uri"].(string); ok && uri != "" {
		rec, err := d.engine.GetRecord(ctx, uri)
		if err != nil {
			return nil, MapError(err)
		}
		return viewOf(rec), nil
	}

	q := store.RecordQuery{Collection: lex.TargetCollection}
	if limit, ok := params["limit"].(int64); ok {
		q.Limit = int(limit)
	}
	if cursor, ok := params["cursor"].(string); ok {
		q.Cursor = cursor
	}
	if did, ok := params["did"].(string); ok {
		q.DID = did
	}

	page, err := d.engine.QueryRecords(ctx, q)
	if err != nil {
		return nil, MapError(err)
	}

	views := make([]recordView, len(page.Records))
	for i := range page.Records {
		views[i] = viewOf(&page.Records[i])
	}
	out := map[string]any{"records": views}
	if page.NextCursor != "" {
		out["cursor"] = page.NextCursor
	}
	return out, nil
}

// builtinProcedure serves a scriptless procedure with its declared
// action. The upsert default sniffs for a uri field in the input: with a
// uri it updates that record, without one it creates.
func (d *Dispatcher) builtinProcedure(ctx context.Context, lex *lexicon.ParsedLexicon, input map[string]any) (any, error) {
	action := lex.Action
	if action == lexicon.ActionUpsert {
		if _, ok := input["uri"].(string); ok {
			action = lexicon.ActionUpdate
		} else {
			action = lexicon.ActionCreate
		}
	}

	switch action {
	case lexicon.ActionCreate:
		rec, err := d.engine.SaveRecord(ctx, engine.RecordSave{
			DID:        d.serviceDID,
			Collection: lex.TargetCollection,
			Value:      input,
		})
		if err != nil {
			return nil, MapError(err)
		}
		return viewOf(rec), nil

	case lexicon.ActionUpdate:
		rawURI, _ := input["uri"].(string)
		target, err := aturi.Parse(rawURI)
		if err != nil {
			return nil, NewError(NameInvalidInput, "uri: %s", err.Error())
		}
		if target.Collection != lex.TargetCollection {
			return nil, NewError(NameInvalidInput,
				"uri targets %s, expected %s", target.Collection, lex.TargetCollection)
		}
		value := make(map[string]any, len(input))
		for k, v := range input {
			if k == "uri" {
				continue
			}
			value[k] = v
		}
		rec, err := d.engine.SaveRecord(ctx, engine.RecordSave{
			DID:        target.DID,
			Collection: target.Collection,
			Rkey:       target.Rkey,
			Value:      value,
		})
		if err != nil {
			return nil, MapError(err)
		}
		return viewOf(rec), nil

	case lexicon.ActionDelete:
		rawURI, _ := input["uri"].(string)
		if _, err := aturi.Parse(rawURI); err != nil {
			return nil, NewError(NameInvalidInput, "uri: %s", err.Error())
		}
		if err := d.engine.DeleteRecord(ctx, rawURI); err != nil {
			return nil, MapError(err)
		}
		return map[string]any{"deleted": true, "uri": rawURI}, nil

	default:
		return nil, NewError(NameInternal, "unsupported action %q", action)
	}
}
