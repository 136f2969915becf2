package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/atvault/lexhost/internal/lexicon"
)

func testLexicon(t *testing.T, id string) *lexicon.ParsedLexicon {
	t.Helper()
	raw := map[string]any{
		"lexicon": float64(1),
		"id":      id,
		"defs": map[string]any{
			"main": map[string]any{
				"type": "record",
				"key":  "tid",
				"record": map[string]any{
					"type":       "object",
					"properties": map[string]any{"text": map[string]any{"type": "string"}},
					"required":   []any{"text"},
				},
			},
		},
	}
	p, err := lexicon.Parse(raw, 0, "", lexicon.ActionUpsert, "")
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	p.Source = lexicon.SourceManual
	return p
}

func TestPutLexicon_InsertThenGet(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	p := testLexicon(t, "com.example.note")
	if err := s.PutLexicon(ctx, p); err != nil {
		t.Fatalf("PutLexicon() failed: %v", err)
	}
	if p.Revision != 1 {
		t.Errorf("revision = %d, expected 1", p.Revision)
	}

	got, err := s.GetLexicon(ctx, "com.example.note")
	if err != nil {
		t.Fatalf("GetLexicon() failed: %v", err)
	}
	if got.ID != "com.example.note" {
		t.Errorf("id = %q", got.ID)
	}
	if got.Type != lexicon.TypeRecord {
		t.Errorf("type = %q, expected record", got.Type)
	}
	if got.RecordKey != "tid" {
		t.Errorf("record key = %q, expected tid", got.RecordKey)
	}
	if got.Revision != 1 {
		t.Errorf("revision = %d, expected 1", got.Revision)
	}
	if got.Source != lexicon.SourceManual {
		t.Errorf("source = %q, expected manual", got.Source)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps were not set")
	}
}

func TestPutLexicon_BumpsRevision(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	p := testLexicon(t, "com.example.note")
	if err := s.PutLexicon(ctx, p); err != nil {
		t.Fatalf("first PutLexicon() failed: %v", err)
	}

	p2 := testLexicon(t, "com.example.note")
	if err := s.PutLexicon(ctx, p2); err != nil {
		t.Fatalf("second PutLexicon() failed: %v", err)
	}
	if p2.Revision != 2 {
		t.Errorf("revision = %d, expected 2", p2.Revision)
	}

	got, err := s.GetLexicon(ctx, "com.example.note")
	if err != nil {
		t.Fatalf("GetLexicon() failed: %v", err)
	}
	if got.Revision != 2 {
		t.Errorf("stored revision = %d, expected 2", got.Revision)
	}
}

func TestPutLexicon_ConcurrentPutsSerialize(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	const writers = 8
	results := make([]*lexicon.ParsedLexicon, writers)
	errs := make([]error, writers)

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := testLexicon(t, "com.example.note")
			errs[i] = s.PutLexicon(ctx, p)
			results[i] = p
		}()
	}
	wg.Wait()

	// Every winner must have claimed a distinct revision, and every
	// loser must have surfaced as ErrConflict, nothing else.
	seen := map[int]bool{}
	succeeded := 0
	for i := 0; i < writers; i++ {
		if errs[i] != nil {
			if !errors.Is(errs[i], ErrConflict) {
				t.Errorf("writer %d failed with %v, expected ErrConflict", i, errs[i])
			}
			continue
		}
		succeeded++
		if seen[results[i].Revision] {
			t.Errorf("revision %d was handed out twice", results[i].Revision)
		}
		seen[results[i].Revision] = true
	}
	if succeeded == 0 {
		t.Fatal("no writer succeeded")
	}

	got, err := s.GetLexicon(ctx, "com.example.note")
	if err != nil {
		t.Fatalf("GetLexicon() failed: %v", err)
	}
	if got.Revision != succeeded {
		t.Errorf("stored revision = %d, expected %d after %d wins", got.Revision, succeeded, succeeded)
	}
}

func TestGetLexicon_NotFound(t *testing.T) {
	s := testStore(t)

	_, err := s.GetLexicon(context.Background(), "com.example.missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListLexicons_OrderedAndFiltered(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	b := testLexicon(t, "com.example.beta")
	a := testLexicon(t, "com.example.alpha")
	n := testLexicon(t, "net.other.thing")
	n.Source = lexicon.SourceNetwork
	n.AuthorityDID = "did:plc:abc123"

	for _, p := range []*lexicon.ParsedLexicon{b, a, n} {
		if err := s.PutLexicon(ctx, p); err != nil {
			t.Fatalf("PutLexicon(%s) failed: %v", p.ID, err)
		}
	}

	all, err := s.ListLexicons(ctx, "")
	if err != nil {
		t.Fatalf("ListLexicons() failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d lexicons, expected 3", len(all))
	}
	if all[0].ID != "com.example.alpha" || all[1].ID != "com.example.beta" {
		t.Errorf("lexicons not ordered by id: %s, %s", all[0].ID, all[1].ID)
	}

	network, err := s.ListLexicons(ctx, lexicon.SourceNetwork)
	if err != nil {
		t.Fatalf("ListLexicons(network) failed: %v", err)
	}
	if len(network) != 1 || network[0].ID != "net.other.thing" {
		t.Fatalf("network filter returned wrong rows: %v", network)
	}
	if network[0].AuthorityDID != "did:plc:abc123" {
		t.Errorf("authority did = %q", network[0].AuthorityDID)
	}
}

func TestDeleteLexicon(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	p := testLexicon(t, "com.example.note")
	if err := s.PutLexicon(ctx, p); err != nil {
		t.Fatalf("PutLexicon() failed: %v", err)
	}

	if err := s.DeleteLexicon(ctx, "com.example.note"); err != nil {
		t.Fatalf("DeleteLexicon() failed: %v", err)
	}

	if _, err := s.GetLexicon(ctx, "com.example.note"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}

	if err := s.DeleteLexicon(ctx, "com.example.note"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete should be ErrNotFound, got %v", err)
	}
}
