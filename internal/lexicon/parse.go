package lexicon

import (
	"fmt"
	"time"
)

// Type is the kind of a lexicon's main definition.
type Type string

const (
	TypeRecord    Type = "record"
	TypeQuery     Type = "query"
	TypeProcedure Type = "procedure"
	// TypeDefinitions covers lexicons with no main def or a non-endpoint
	// main type (token, object, string, etc.).
	TypeDefinitions Type = "definitions"
)

// Action is what a procedure performs on its target collection when it
// has no script of its own.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	// ActionUpsert is the backwards-compatible default: sniff for a
	// `uri` field in the input to decide create vs update.
	ActionUpsert Action = "upsert"
)

// ParseAction converts an optional action string to an Action.
// An empty string maps to ActionUpsert.
func ParseAction(s string) (Action, error) {
	switch s {
	case "":
		return ActionUpsert, nil
	case "create", "update", "delete", "upsert":
		return Action(s), nil
	}
	return "", fmt.Errorf("invalid action %q: must be create, update, delete, or upsert", s)
}

// StorageString returns the action string for database storage.
// ActionUpsert maps to the empty string (the default).
func (a Action) StorageString() string {
	if a == ActionUpsert {
		return ""
	}
	return string(a)
}

// Source identifies where a lexicon came from.
type Source string

const (
	SourceManual  Source = "manual"  // uploaded by an admin
	SourceNetwork Source = "network" // fetched from a remote authority
)

// ParsedLexicon is the metadata extracted from a raw lexicon document,
// plus its storage bookkeeping.
type ParsedLexicon struct {
	// ID is the NSID, e.g. "com.example.note".
	ID string
	// Type is what kind of endpoint this lexicon defines.
	Type Type
	// RecordKey is the record def's key type (tid, any, nsid, literal:*).
	RecordKey string
	// Parameters is defs.main.parameters for queries and procedures.
	Parameters map[string]any
	// Input is defs.main.input for procedures.
	Input map[string]any
	// Output is defs.main.output for queries and procedures.
	Output map[string]any
	// RecordSchema is defs.main.record for record lexicons.
	RecordSchema map[string]any
	// Raw is the entire validated document.
	Raw map[string]any
	// Revision is the current database revision.
	Revision int
	// TargetCollection is the backing record collection for
	// queries and procedures.
	TargetCollection string
	// Action is the built-in behavior for scriptless procedures.
	Action Action
	// Script is the optional Lua source that replaces the built-in handler.
	Script string

	Source        Source
	AuthorityDID  string
	Backfill      bool
	LastFetchedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Parse extracts metadata from a lexicon document. The document should
// already have passed Validate; Parse only requires the id field and
// tolerates anything else, so lexicons stored before a grammar tightening
// still load.
func Parse(raw map[string]any, revision int, targetCollection string, action Action, script string) (*ParsedLexicon, error) {
	id, ok := raw["id"].(string)
	if !ok || id == "" {
		return nil, fmt.Errorf("lexicon document missing 'id' field")
	}

	p := &ParsedLexicon{
		ID:               id,
		Type:             TypeDefinitions,
		Raw:              raw,
		Revision:         revision,
		TargetCollection: targetCollection,
		Action:           action,
		Script:           script,
	}

	defs, _ := raw["defs"].(map[string]any)
	main, _ := defs["main"].(map[string]any)
	if main == nil {
		return p, nil
	}

	switch kind, _ := main["type"].(string); kind {
	case "record":
		p.Type = TypeRecord
	case "query":
		p.Type = TypeQuery
	case "procedure":
		p.Type = TypeProcedure
	}

	if key, ok := main["key"].(string); ok {
		p.RecordKey = key
	}
	if v, ok := main["parameters"].(map[string]any); ok {
		p.Parameters = v
	}
	if v, ok := main["input"].(map[string]any); ok {
		p.Input = v
	}
	if v, ok := main["output"].(map[string]any); ok {
		p.Output = v
	}
	if v, ok := main["record"].(map[string]any); ok {
		p.RecordSchema = v
	}
	return p, nil
}

// Invokable reports whether this lexicon can be dispatched as an XRPC
// method. Record and definitions lexicons are schema-only.
func (p *ParsedLexicon) Invokable() bool {
	return p.Type == TypeQuery || p.Type == TypeProcedure
}
