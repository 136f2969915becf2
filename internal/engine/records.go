package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/atvault/lexhost/internal/aturi"
	"github.com/atvault/lexhost/internal/cid"
	"github.com/atvault/lexhost/internal/lexicon"
	"github.com/atvault/lexhost/internal/store"
	"github.com/atvault/lexhost/internal/tid"
)

// RecordSave is the input to SaveRecord.
type RecordSave struct {
	DID        string
	Collection string
	// Rkey may be empty for key types that generate their own.
	Rkey string
	// KeyType overrides the collection lexicon's key type. Scripts can
	// set it per record; empty means use the lexicon's.
	KeyType string
	Value   map[string]any
}

// SaveRecord validates, keys, addresses and persists a record.
//
// The collection must have a record lexicon in the registry. The payload
// is validated against that lexicon's record schema, filtered down to
// schema-declared properties, and stamped with $type before the content
// identifier is computed. Underscore-prefixed fields are dropped
// regardless of the schema; they are engine bookkeeping, never data.
func (e *Engine) SaveRecord(ctx context.Context, save RecordSave) (*store.Record, error) {
	if save.DID == "" {
		return nil, newError(ErrCodeRecordInvalid, "did", "record did is required")
	}
	lex := e.registry.Get(save.Collection)
	if lex == nil || lex.Type != lexicon.TypeRecord {
		return nil, newError(ErrCodeUnknownCollection, save.Collection,
			"no record lexicon registered for collection")
	}

	keyType := save.KeyType
	if keyType == "" {
		keyType = lex.RecordKey
	}
	rkey, err := resolveRkey(keyType, save.Rkey)
	if err != nil {
		return nil, err
	}

	if err := lexicon.ValidateRecordPayload(lex.RecordSchema, save.Value); err != nil {
		var pe *lexicon.PayloadError
		if errors.As(err, &pe) {
			return nil, newError(ErrCodeRecordInvalid, pe.Field, "%s", pe.Message)
		}
		return nil, newError(ErrCodeRecordInvalid, "", "%s", err.Error())
	}

	value := filterToSchema(lex.RecordSchema, save.Value)
	value["$type"] = save.Collection

	recordCID, err := cid.FromRecord(value)
	if err != nil {
		return nil, newError(ErrCodeRecordInvalid, "", "cannot address record: %s", err.Error())
	}

	rec := &store.Record{
		URI:        aturi.Make(save.DID, save.Collection, rkey),
		DID:        save.DID,
		Collection: save.Collection,
		Rkey:       rkey,
		CID:        recordCID,
		Value:      value,
	}
	if err := e.store.SaveRecord(ctx, rec); err != nil {
		return nil, err
	}

	e.logger.Debug("record saved", "uri", rec.URI, "cid", rec.CID)
	return rec, nil
}

// resolveRkey produces the record key for a save according to the key
// type. A provided rkey always wins for tid and any keys so updates can
// address an existing record.
func resolveRkey(keyType, rkey string) (string, error) {
	switch {
	case keyType == "tid":
		if rkey == "" {
			return tid.Generate(), nil
		}
		return rkey, nil
	case keyType == "any":
		if rkey == "" {
			return tid.Generate(), nil
		}
		return rkey, nil
	case keyType == "nsid":
		if !lexicon.IsNSID(rkey) {
			return "", newError(ErrCodeRecordInvalid, "rkey",
				"key type nsid requires a valid NSID record key, got %q", rkey)
		}
		return rkey, nil
	case strings.HasPrefix(keyType, "literal:"):
		lit := strings.TrimPrefix(keyType, "literal:")
		if rkey != "" && rkey != lit {
			return "", newError(ErrCodeRecordInvalid, "rkey",
				"key type %s forbids record key %q", keyType, rkey)
		}
		return lit, nil
	case keyType == "":
		// Lexicons stored before key was enforced; behave like tid.
		if rkey == "" {
			return tid.Generate(), nil
		}
		return rkey, nil
	default:
		return "", newError(ErrCodeRecordInvalid, "rkey",
			"unsupported record key type %q", keyType)
	}
}

// filterToSchema copies the schema-declared properties out of a payload.
// Underscore-prefixed and undeclared fields are dropped. A nil schema
// keeps everything except underscore fields.
func filterToSchema(schema, value map[string]any) map[string]any {
	out := make(map[string]any, len(value))
	var declared map[string]any
	if schema != nil {
		declared, _ = schema["properties"].(map[string]any)
	}
	for k, v := range value {
		if strings.HasPrefix(k, "_") || k == "$type" {
			continue
		}
		if declared != nil {
			if _, ok := declared[k]; !ok {
				continue
			}
		}
		out[k] = v
	}
	return out
}

// GetRecord returns the record at an AT URI.
func (e *Engine) GetRecord(ctx context.Context, uri string) (*store.Record, error) {
	rec, err := e.store.GetRecord(ctx, uri)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, newError(ErrCodeNotFound, uri, "record not found")
		}
		return nil, err
	}
	return rec, nil
}

// QueryRecords pages through a collection.
func (e *Engine) QueryRecords(ctx context.Context, q store.RecordQuery) (*store.RecordPage, error) {
	page, err := e.store.QueryRecords(ctx, q)
	if err != nil {
		return nil, err
	}
	return page, nil
}

// SearchRecords finds records whose top-level field contains a substring,
// matched case-insensitively. Results are ranked exact match first, then
// prefix, then contains.
func (e *Engine) SearchRecords(ctx context.Context, collection, field, query string, limit int) ([]store.Record, error) {
	found, err := e.store.SearchRecords(ctx, collection, field, query, limit)
	if err != nil {
		return nil, err
	}
	loweredQuery := strings.ToLower(query)
	rankOf := func(rec store.Record) int {
		s, _ := rec.Value[field].(string)
		switch {
		case strings.EqualFold(s, query):
			return 0
		case strings.HasPrefix(strings.ToLower(s), loweredQuery):
			return 1
		default:
			return 2
		}
	}
	// Stable ordering within a rank follows the store's URI ordering.
	out := make([]store.Record, 0, len(found))
	for rank := 0; rank <= 2; rank++ {
		for _, rec := range found {
			if rankOf(rec) == rank {
				out = append(out, rec)
			}
		}
	}
	return out, nil
}

// DeleteRecord removes the record at an AT URI.
func (e *Engine) DeleteRecord(ctx context.Context, uri string) error {
	if err := e.store.DeleteRecord(ctx, uri); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return newError(ErrCodeNotFound, uri, "record not found")
		}
		return err
	}
	e.logger.Debug("record deleted", "uri", uri)
	return nil
}

// DeleteCollection removes every record in a collection.
func (e *Engine) DeleteCollection(ctx context.Context, collection string) (int64, error) {
	n, err := e.store.DeleteCollection(ctx, collection)
	if err != nil {
		return 0, err
	}
	e.logger.Info("collection cleared", "collection", collection, "deleted", n)
	return n, nil
}

// CountRecords returns the number of records in a collection, optionally
// scoped to one repo's DID.
func (e *Engine) CountRecords(ctx context.Context, collection, did string) (int64, error) {
	return e.store.CountRecords(ctx, collection, did)
}
