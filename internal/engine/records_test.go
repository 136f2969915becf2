package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/atvault/lexhost/internal/store"
)

func putNoteLexicon(t *testing.T, e *Engine, id string) {
	t.Helper()
	if _, err := e.PutLexicon(context.Background(), LexiconUpsert{Doc: noteDoc(id)}); err != nil {
		t.Fatalf("PutLexicon(%s) failed: %v", id, err)
	}
}

func TestSaveRecord_GeneratesTIDKey(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	putNoteLexicon(t, e, "com.example.note")

	rec, err := e.SaveRecord(ctx, RecordSave{
		DID: "did:plc:alice", Collection: "com.example.note",
		Value: map[string]any{"text": "hello"},
	})
	if err != nil {
		t.Fatalf("SaveRecord() failed: %v", err)
	}
	if len(rec.Rkey) != 13 {
		t.Errorf("rkey = %q, expected a 13-char tid", rec.Rkey)
	}
	if !strings.HasPrefix(rec.URI, "at://did:plc:alice/com.example.note/") {
		t.Errorf("uri = %q", rec.URI)
	}
	if rec.CID == "" {
		t.Error("cid was not computed")
	}
	if rec.Value["$type"] != "com.example.note" {
		t.Errorf("$type = %v", rec.Value["$type"])
	}
}

func TestSaveRecord_KeepsProvidedRkeyForUpdate(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	putNoteLexicon(t, e, "com.example.note")

	first, err := e.SaveRecord(ctx, RecordSave{
		DID: "did:plc:alice", Collection: "com.example.note",
		Value: map[string]any{"text": "v1"},
	})
	if err != nil {
		t.Fatalf("first SaveRecord() failed: %v", err)
	}

	second, err := e.SaveRecord(ctx, RecordSave{
		DID: "did:plc:alice", Collection: "com.example.note",
		Rkey:  first.Rkey,
		Value: map[string]any{"text": "v2"},
	})
	if err != nil {
		t.Fatalf("second SaveRecord() failed: %v", err)
	}
	if second.URI != first.URI {
		t.Errorf("update changed uri: %q vs %q", second.URI, first.URI)
	}
	if second.CID == first.CID {
		t.Error("cid did not change with the content")
	}

	got, err := e.GetRecord(ctx, first.URI)
	if err != nil {
		t.Fatalf("GetRecord() failed: %v", err)
	}
	if got.Value["text"] != "v2" {
		t.Errorf("value = %v", got.Value)
	}
	if n, _ := e.CountRecords(ctx, "com.example.note", ""); n != 1 {
		t.Errorf("count = %d after update, expected 1", n)
	}
}

func TestSaveRecord_FiltersUndeclaredAndInternalFields(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	putNoteLexicon(t, e, "com.example.note")

	rec, err := e.SaveRecord(ctx, RecordSave{
		DID: "did:plc:alice", Collection: "com.example.note",
		Value: map[string]any{
			"text":        "hello",
			"undeclared":  "dropped",
			"_collection": "dropped",
			"_rkey":       "dropped",
		},
	})
	if err != nil {
		t.Fatalf("SaveRecord() failed: %v", err)
	}
	if _, ok := rec.Value["undeclared"]; ok {
		t.Error("undeclared property was persisted")
	}
	for k := range rec.Value {
		if strings.HasPrefix(k, "_") {
			t.Errorf("internal field %q was persisted", k)
		}
	}
}

func TestSaveRecord_RejectsInvalidPayload(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	putNoteLexicon(t, e, "com.example.note")

	_, err := e.SaveRecord(ctx, RecordSave{
		DID: "did:plc:alice", Collection: "com.example.note",
		Value: map[string]any{"count": float64(1)}, // missing required text
	})
	if CodeOf(err) != ErrCodeRecordInvalid {
		t.Errorf("code = %q, expected RECORD_INVALID", CodeOf(err))
	}
}

func TestSaveRecord_UnknownCollection(t *testing.T) {
	e := testEngine(t)

	_, err := e.SaveRecord(context.Background(), RecordSave{
		DID: "did:plc:alice", Collection: "com.example.nothing",
		Value: map[string]any{},
	})
	if CodeOf(err) != ErrCodeUnknownCollection {
		t.Errorf("code = %q, expected UNKNOWN_COLLECTION", CodeOf(err))
	}
}

func TestResolveRkey(t *testing.T) {
	tests := []struct {
		name    string
		keyType string
		rkey    string
		want    string // empty means generated
		wantErr bool
	}{
		{name: "tid generates", keyType: "tid", rkey: ""},
		{name: "tid keeps provided", keyType: "tid", rkey: "3jzfcijpj2z2a", want: "3jzfcijpj2z2a"},
		{name: "any keeps provided", keyType: "any", rkey: "my-key", want: "my-key"},
		{name: "any generates", keyType: "any", rkey: ""},
		{name: "nsid valid", keyType: "nsid", rkey: "com.example.thing", want: "com.example.thing"},
		{name: "nsid invalid", keyType: "nsid", rkey: "nope", wantErr: true},
		{name: "literal fixed", keyType: "literal:self", rkey: "", want: "self"},
		{name: "literal matching rkey ok", keyType: "literal:self", rkey: "self", want: "self"},
		{name: "literal conflicting rkey", keyType: "literal:self", rkey: "other", wantErr: true},
		{name: "unsupported", keyType: "whatever", rkey: "x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveRkey(tt.keyType, tt.rkey)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("resolveRkey() failed: %v", err)
			}
			if tt.want != "" && got != tt.want {
				t.Errorf("rkey = %q, expected %q", got, tt.want)
			}
			if tt.want == "" && len(got) != 13 {
				t.Errorf("generated rkey = %q, expected a tid", got)
			}
		})
	}
}

func TestSearchRecords_RanksMatches(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	putNoteLexicon(t, e, "com.example.note")

	save := func(rkey, text string) {
		if _, err := e.SaveRecord(ctx, RecordSave{
			DID: "did:plc:alice", Collection: "com.example.note",
			Rkey: rkey, Value: map[string]any{"text": text},
		}); err != nil {
			t.Fatalf("SaveRecord(%s) failed: %v", rkey, err)
		}
	}
	save("a", "contains go inside")
	save("b", "Go")
	save("c", "GO further")

	// Matching and ranking both fold case.
	found, err := e.SearchRecords(ctx, "com.example.note", "text", "go", 0)
	if err != nil {
		t.Fatalf("SearchRecords() failed: %v", err)
	}
	if len(found) != 3 {
		t.Fatalf("got %d matches, expected 3", len(found))
	}
	if found[0].Value["text"] != "Go" {
		t.Errorf("exact match not first: %v", found[0].Value)
	}
	if found[1].Value["text"] != "GO further" {
		t.Errorf("prefix match not second: %v", found[1].Value)
	}
}

func TestDeleteCollection_ViaEngine(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	putNoteLexicon(t, e, "com.example.note")

	for _, rkey := range []string{"a", "b"} {
		if _, err := e.SaveRecord(ctx, RecordSave{
			DID: "did:plc:alice", Collection: "com.example.note",
			Rkey: rkey, Value: map[string]any{"text": "x"},
		}); err != nil {
			t.Fatalf("SaveRecord() failed: %v", err)
		}
	}

	n, err := e.DeleteCollection(ctx, "com.example.note")
	if err != nil {
		t.Fatalf("DeleteCollection() failed: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted %d, expected 2", n)
	}

	page, err := e.QueryRecords(ctx, store.RecordQuery{Collection: "com.example.note"})
	if err != nil {
		t.Fatalf("QueryRecords() failed: %v", err)
	}
	if len(page.Records) != 0 {
		t.Errorf("records remain: %+v", page.Records)
	}
}
