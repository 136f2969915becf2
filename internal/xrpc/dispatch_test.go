package xrpc

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/atvault/lexhost/internal/engine"
	"github.com/atvault/lexhost/internal/lexicon"
	"github.com/atvault/lexhost/internal/sandbox"
	"github.com/atvault/lexhost/internal/store"
)

const serviceDID = "did:web:lexhost.test"

func testDispatcher(t *testing.T) (*Dispatcher, *engine.Engine) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	e, err := engine.New(context.Background(), st, slog.Default())
	if err != nil {
		t.Fatalf("engine.New() failed: %v", err)
	}
	rt := sandbox.New(e, slog.Default(), 0)
	return NewDispatcher(e, rt, slog.Default(), serviceDID), e
}

func putLexicon(t *testing.T, e *engine.Engine, doc map[string]any, put engine.LexiconUpsert) {
	t.Helper()
	put.Doc = doc
	if _, err := e.PutLexicon(context.Background(), put); err != nil {
		t.Fatalf("PutLexicon() failed: %v", err)
	}
}

func recordDoc(id string) map[string]any {
	return map[string]any{
		"lexicon": float64(1),
		"id":      id,
		"defs": map[string]any{
			"main": map[string]any{
				"type": "record",
				"key":  "tid",
				"record": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"text": map[string]any{"type": "string"},
					},
					"required": []any{"text"},
				},
			},
		},
	}
}

func queryDoc(id string) map[string]any {
	return map[string]any{
		"lexicon": float64(1),
		"id":      id,
		"defs": map[string]any{
			"main": map[string]any{
				"type": "query",
				"parameters": map[string]any{
					"type": "params",
					"properties": map[string]any{
						"uri":    map[string]any{"type": "string"},
						"limit":  map[string]any{"type": "integer", "minimum": float64(1), "maximum": float64(100)},
						"cursor": map[string]any{"type": "string"},
						"did":    map[string]any{"type": "string"},
					},
				},
			},
		},
	}
}

func procedureDoc(id string) map[string]any {
	return map[string]any{
		"lexicon": float64(1),
		"id":      id,
		"defs": map[string]any{
			"main": map[string]any{
				"type": "procedure",
				"input": map[string]any{
					"encoding": "application/json",
					"schema": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"text": map[string]any{"type": "string"},
							"uri":  map[string]any{"type": "string"},
						},
						"required": []any{},
					},
				},
			},
		},
	}
}

func wireName(t *testing.T, err error) string {
	t.Helper()
	var we *Error
	if !errors.As(err, &we) {
		t.Fatalf("expected *xrpc.Error, got %v", err)
	}
	return we.Name
}

func TestQuery_UnknownMethod(t *testing.T) {
	d, _ := testDispatcher(t)

	_, err := d.Query(context.Background(), "com.example.absent", nil)
	if wireName(t, err) != NameMethodNotFound {
		t.Errorf("name = %q", wireName(t, err))
	}
}

func TestQuery_WrongType(t *testing.T) {
	d, e := testDispatcher(t)
	putLexicon(t, e, recordDoc("com.example.note"), engine.LexiconUpsert{})

	// A record lexicon is not invokable as a query.
	_, err := d.Query(context.Background(), "com.example.note", nil)
	if wireName(t, err) != NameMethodNotFound {
		t.Errorf("name = %q", wireName(t, err))
	}
}

func TestQuery_InvalidParams(t *testing.T) {
	d, e := testDispatcher(t)
	putLexicon(t, e, queryDoc("com.example.listNotes"), engine.LexiconUpsert{
		TargetCollection: "com.example.note",
	})

	_, err := d.Query(context.Background(), "com.example.listNotes",
		map[string]string{"limit": "ten"})
	if wireName(t, err) != NameInvalidParams {
		t.Errorf("name = %q", wireName(t, err))
	}

	_, err = d.Query(context.Background(), "com.example.listNotes",
		map[string]string{"bogus": "1"})
	if wireName(t, err) != NameInvalidParams {
		t.Errorf("unknown param name = %q", wireName(t, err))
	}
}

func TestQuery_MissingScriptAndTarget(t *testing.T) {
	d, e := testDispatcher(t)

	// Engine puts reject bare queries now, but rows stored before that
	// enforcement can still surface. Dispatch rejects them cleanly.
	p, err := lexicon.Parse(queryDoc("com.example.bare"), 0, "", lexicon.ActionUpsert, "")
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	if err := e.Store().PutLexicon(context.Background(), p); err != nil {
		t.Fatalf("store.PutLexicon() failed: %v", err)
	}
	e.Registry().Upsert(p)

	_, err = d.Query(context.Background(), "com.example.bare", nil)
	if wireName(t, err) != NameMissingScript {
		t.Errorf("name = %q", wireName(t, err))
	}
}

func TestQuery_ScriptedHandler(t *testing.T) {
	d, e := testDispatcher(t)
	putLexicon(t, e, queryDoc("com.example.echo"), engine.LexiconUpsert{
		Script: `
			function handle()
				return {limit_was = params.limit}
			end
		`,
	})

	out, err := d.Query(context.Background(), "com.example.echo",
		map[string]string{"limit": "7"})
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	got := out.(map[string]any)
	if got["limit_was"] != int64(7) {
		t.Errorf("coerced param did not reach the script: %v", got)
	}
}

func TestQuery_ScriptErrorMapsToTaxonomy(t *testing.T) {
	d, e := testDispatcher(t)
	putLexicon(t, e, queryDoc("com.example.broken"), engine.LexiconUpsert{
		Script: `function handle() error("nope") end`,
	})

	_, err := d.Query(context.Background(), "com.example.broken", nil)
	if wireName(t, err) != NameScript {
		t.Errorf("name = %q", wireName(t, err))
	}
}

func TestQuery_BuiltinListAndGet(t *testing.T) {
	d, e := testDispatcher(t)
	ctx := context.Background()
	putLexicon(t, e, recordDoc("com.example.note"), engine.LexiconUpsert{})
	putLexicon(t, e, queryDoc("com.example.listNotes"), engine.LexiconUpsert{
		TargetCollection: "com.example.note",
	})

	var lastURI string
	for _, rkey := range []string{"a", "b", "c"} {
		rec, err := e.SaveRecord(ctx, engine.RecordSave{
			DID: serviceDID, Collection: "com.example.note",
			Rkey: rkey, Value: map[string]any{"text": "note " + rkey},
		})
		if err != nil {
			t.Fatalf("SaveRecord() failed: %v", err)
		}
		lastURI = rec.URI
	}

	out, err := d.Query(ctx, "com.example.listNotes", map[string]string{"limit": "2"})
	if err != nil {
		t.Fatalf("Query(list) failed: %v", err)
	}
	page := out.(map[string]any)
	views := page["records"].([]recordView)
	if len(views) != 2 {
		t.Fatalf("got %d records, expected 2", len(views))
	}
	if page["cursor"] == nil {
		t.Error("expected a cursor on a partial page")
	}

	out, err = d.Query(ctx, "com.example.listNotes", map[string]string{"uri": lastURI})
	if err != nil {
		t.Fatalf("Query(get) failed: %v", err)
	}
	view := out.(recordView)
	if view.URI != lastURI || view.Value["text"] != "note c" {
		t.Errorf("get view = %+v", view)
	}

	_, err = d.Query(ctx, "com.example.listNotes",
		map[string]string{"uri": "at://did:plc:x/com.example.note/gone"})
	if wireName(t, err) != NameNotFound {
		t.Errorf("missing record name = %q", wireName(t, err))
	}
}

func TestProcedure_BuiltinActions(t *testing.T) {
	d, e := testDispatcher(t)
	ctx := context.Background()
	putLexicon(t, e, recordDoc("com.example.note"), engine.LexiconUpsert{})
	putLexicon(t, e, procedureDoc("com.example.putNote"), engine.LexiconUpsert{
		TargetCollection: "com.example.note",
	})
	putLexicon(t, e, procedureDoc("com.example.deleteNote"), engine.LexiconUpsert{
		TargetCollection: "com.example.note",
		Action:           "delete",
	})

	// Upsert without uri creates.
	out, err := d.Procedure(ctx, "com.example.putNote", map[string]any{"text": "v1"})
	if err != nil {
		t.Fatalf("Procedure(create) failed: %v", err)
	}
	created := out.(recordView)
	if created.URI == "" || created.Value["text"] != "v1" {
		t.Fatalf("created = %+v", created)
	}

	// Upsert with uri updates in place.
	out, err = d.Procedure(ctx, "com.example.putNote", map[string]any{
		"uri": created.URI, "text": "v2",
	})
	if err != nil {
		t.Fatalf("Procedure(update) failed: %v", err)
	}
	updated := out.(recordView)
	if updated.URI != created.URI || updated.Value["text"] != "v2" {
		t.Errorf("updated = %+v", updated)
	}
	if n, _ := e.CountRecords(ctx, "com.example.note", ""); n != 1 {
		t.Errorf("count = %d after upsert update", n)
	}

	// Delete removes it.
	out, err = d.Procedure(ctx, "com.example.deleteNote", map[string]any{"uri": created.URI})
	if err != nil {
		t.Fatalf("Procedure(delete) failed: %v", err)
	}
	deleted := out.(map[string]any)
	if deleted["deleted"] != true {
		t.Errorf("delete result = %v", deleted)
	}
	if _, err := e.GetRecord(ctx, created.URI); !engine.IsNotFound(err) {
		t.Errorf("record survived delete: %v", err)
	}
}

func TestProcedure_UpdateRejectsForeignCollection(t *testing.T) {
	d, e := testDispatcher(t)
	putLexicon(t, e, recordDoc("com.example.note"), engine.LexiconUpsert{})
	putLexicon(t, e, procedureDoc("com.example.putNote"), engine.LexiconUpsert{
		TargetCollection: "com.example.note",
	})

	_, err := d.Procedure(context.Background(), "com.example.putNote", map[string]any{
		"uri": "at://did:plc:x/com.example.other/abc", "text": "x",
	})
	if wireName(t, err) != NameInvalidInput {
		t.Errorf("name = %q", wireName(t, err))
	}
}

func TestProcedure_InvalidInput(t *testing.T) {
	d, e := testDispatcher(t)
	putLexicon(t, e, recordDoc("com.example.note"), engine.LexiconUpsert{})

	doc := procedureDoc("com.example.putNote")
	main := doc["defs"].(map[string]any)["main"].(map[string]any)
	schema := main["input"].(map[string]any)["schema"].(map[string]any)
	schema["required"] = []any{"text"}
	putLexicon(t, e, doc, engine.LexiconUpsert{TargetCollection: "com.example.note"})

	_, err := d.Procedure(context.Background(), "com.example.putNote", map[string]any{})
	if wireName(t, err) != NameInvalidInput {
		t.Errorf("name = %q", wireName(t, err))
	}
}

func TestProcedure_ScriptedHandlerSavesRecords(t *testing.T) {
	d, e := testDispatcher(t)
	ctx := context.Background()
	putLexicon(t, e, recordDoc("com.example.note"), engine.LexiconUpsert{})
	putLexicon(t, e, procedureDoc("com.example.addNote"), engine.LexiconUpsert{
		TargetCollection: "com.example.note",
		Script: `
			function handle()
				local r = Record.new(collection, {text = input.text})
				r:save()
				return {uri = r._uri}
			end
		`,
	})

	out, err := d.Procedure(ctx, "com.example.addNote", map[string]any{"text": "scripted"})
	if err != nil {
		t.Fatalf("Procedure() failed: %v", err)
	}
	uri, _ := out.(map[string]any)["uri"].(string)
	if uri == "" {
		t.Fatalf("script result = %v", out)
	}
	rec, err := e.GetRecord(ctx, uri)
	if err != nil {
		t.Fatalf("GetRecord() failed: %v", err)
	}
	if rec.Value["text"] != "scripted" {
		t.Errorf("value = %v", rec.Value)
	}
	if rec.DID != serviceDID {
		t.Errorf("record did = %q, expected the service did", rec.DID)
	}
}

func TestMapError_Defaults(t *testing.T) {
	we := MapError(errors.New("database exploded"))
	if we.Name != NameInternal {
		t.Errorf("name = %q", we.Name)
	}
	if we.Message == "database exploded" {
		t.Error("internal detail leaked to the wire")
	}
	if we.Status != 500 {
		t.Errorf("status = %d", we.Status)
	}
}
