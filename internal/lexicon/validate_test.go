package lexicon

import (
	"encoding/json"
	"testing"
)

// mustDoc decodes a JSON literal into a document map.
func mustDoc(t *testing.T, raw string) map[string]any {
	t.Helper()
	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		t.Fatalf("bad test document: %v", err)
	}
	return doc
}

func recordDoc(t *testing.T) map[string]any {
	return mustDoc(t, `{
		"lexicon": 1,
		"id": "com.example.note",
		"defs": {
			"main": {
				"type": "record",
				"key": "tid",
				"record": {
					"type": "object",
					"properties": {
						"text": {"type": "string", "maxLength": 300},
						"count": {"type": "integer", "minimum": 0}
					},
					"required": ["text"]
				}
			}
		}
	}`)
}

func TestValidate_AcceptsRecordLexicon(t *testing.T) {
	if err := Validate(recordDoc(t)); err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}
}

func TestValidate_AcceptsQueryLexicon(t *testing.T) {
	doc := mustDoc(t, `{
		"lexicon": 1,
		"id": "com.example.listNotes",
		"defs": {
			"main": {
				"type": "query",
				"parameters": {
					"type": "params",
					"required": ["limit"],
					"properties": {
						"limit": {"type": "integer", "minimum": 1, "maximum": 100},
						"tags": {"type": "array", "items": {"type": "string"}}
					}
				},
				"output": {"encoding": "application/json"}
			}
		}
	}`)
	if err := Validate(doc); err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}
}

func TestValidate_AcceptsProcedureWithInputSchema(t *testing.T) {
	doc := mustDoc(t, `{
		"lexicon": 1,
		"id": "com.example.createNote",
		"defs": {
			"main": {
				"type": "procedure",
				"input": {
					"encoding": "application/json",
					"schema": {
						"type": "object",
						"properties": {"text": {"type": "string"}},
						"required": ["text"]
					}
				},
				"output": {"encoding": "application/json"}
			}
		}
	}`)
	if err := Validate(doc); err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}
}

func TestValidate_AcceptsNonPrimaryDefs(t *testing.T) {
	doc := mustDoc(t, `{
		"lexicon": 1,
		"id": "com.example.defs",
		"defs": {
			"genre": {"type": "string", "knownValues": ["action", "rpg"]},
			"flag": {"type": "token"},
			"meta": {
				"type": "object",
				"properties": {
					"link": {"type": "ref", "ref": "#genre"},
					"variant": {"type": "union", "refs": ["#meta"]}
				}
			}
		}
	}`)
	if err := Validate(doc); err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}
}

func TestValidate_RejectsWrongVersion(t *testing.T) {
	doc := recordDoc(t)
	doc["lexicon"] = float64(2)
	assertCode(t, Validate(doc), ErrBadVersion)
}

func TestValidate_RejectsShortNSID(t *testing.T) {
	doc := recordDoc(t)
	doc["id"] = "example.note"
	assertCode(t, Validate(doc), ErrBadID)
}

func TestValidate_RejectsEmptyDefs(t *testing.T) {
	doc := recordDoc(t)
	doc["defs"] = map[string]any{}
	assertCode(t, Validate(doc), ErrBadDefs)
}

func TestValidate_RejectsPrimaryTypeOutsideMain(t *testing.T) {
	doc := recordDoc(t)
	doc["defs"].(map[string]any)["extra"] = map[string]any{
		"type": "record",
		"key":  "tid",
		"record": map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	}
	assertCode(t, Validate(doc), ErrBadDefKind)
}

func TestValidate_RejectsRecordWithoutSchema(t *testing.T) {
	doc := mustDoc(t, `{
		"lexicon": 1,
		"id": "com.example.note",
		"defs": {"main": {"type": "record", "key": "tid"}}
	}`)
	assertCode(t, Validate(doc), ErrMissingField)
}

func TestValidate_RejectsBadRecordKey(t *testing.T) {
	doc := recordDoc(t)
	doc["defs"].(map[string]any)["main"].(map[string]any)["key"] = "literal:"
	assertCode(t, Validate(doc), ErrBadKey)
}

func TestValidate_RejectsRequiredNotInProperties(t *testing.T) {
	doc := recordDoc(t)
	rec := doc["defs"].(map[string]any)["main"].(map[string]any)["record"].(map[string]any)
	rec["required"] = []any{"text", "missing"}
	assertCode(t, Validate(doc), ErrBadSubset)
}

func TestValidate_RejectsQueryWithInput(t *testing.T) {
	doc := mustDoc(t, `{
		"lexicon": 1,
		"id": "com.example.listNotes",
		"defs": {
			"main": {
				"type": "query",
				"input": {"encoding": "application/json"}
			}
		}
	}`)
	assertCode(t, Validate(doc), ErrUnknownField)
}

func TestValidate_RejectsNestedArray(t *testing.T) {
	doc := mustDoc(t, `{
		"lexicon": 1,
		"id": "com.example.note",
		"defs": {
			"nested": {
				"type": "array",
				"items": {"type": "array", "items": {"type": "string"}}
			}
		}
	}`)
	assertCode(t, Validate(doc), ErrBadDefKind)
}

func TestValidate_RejectsRefInParameters(t *testing.T) {
	doc := mustDoc(t, `{
		"lexicon": 1,
		"id": "com.example.listNotes",
		"defs": {
			"main": {
				"type": "query",
				"parameters": {
					"type": "params",
					"properties": {"ref": {"type": "ref", "ref": "#x"}}
				}
			}
		}
	}`)
	assertCode(t, Validate(doc), ErrBadDefKind)
}

func TestValidate_RejectsEmptyUnionRefs(t *testing.T) {
	doc := mustDoc(t, `{
		"lexicon": 1,
		"id": "com.example.defs",
		"defs": {
			"meta": {
				"type": "object",
				"properties": {"u": {"type": "union", "refs": []}}
			}
		}
	}`)
	assertCode(t, Validate(doc), ErrBadRef)
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatal("expected a validation error")
	}
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T: %v", err, err)
	}
	if ve.Code != code {
		t.Errorf("error code = %s, want %s (error: %v)", ve.Code, code, ve)
	}
	if ve.Path == "" {
		t.Error("validation error has no path")
	}
}

func TestValidKeyType(t *testing.T) {
	valid := []string{"tid", "any", "nsid", "literal:self", "literal:x"}
	for _, k := range valid {
		if !ValidKeyType(k) {
			t.Errorf("ValidKeyType(%q) = false", k)
		}
	}
	invalid := []string{"", "literal:", "uuid", "TID"}
	for _, k := range invalid {
		if ValidKeyType(k) {
			t.Errorf("ValidKeyType(%q) = true", k)
		}
	}
}

func TestIsNSID(t *testing.T) {
	if !IsNSID("com.example.note") {
		t.Error("com.example.note should be a valid NSID")
	}
	if !IsNSID("games.gamesgamesgamesgames.listGames") {
		t.Error("long NSID should be valid")
	}
	if IsNSID("example.note") {
		t.Error("two-segment name should be invalid")
	}
	if IsNSID("") {
		t.Error("empty string should be invalid")
	}
}
