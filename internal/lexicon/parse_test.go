package lexicon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_RecordLexicon(t *testing.T) {
	p, err := Parse(recordDoc(t), 1, "", ActionUpsert, "")
	require.NoError(t, err)
	assert.Equal(t, "com.example.note", p.ID)
	assert.Equal(t, TypeRecord, p.Type)
	assert.Equal(t, "tid", p.RecordKey)
	assert.NotNil(t, p.RecordSchema)
	assert.Nil(t, p.Parameters)
	assert.Nil(t, p.Input)
	assert.False(t, p.Invokable())
}

func TestParse_QueryLexicon(t *testing.T) {
	doc := mustDoc(t, `{
		"lexicon": 1,
		"id": "com.example.listNotes",
		"defs": {
			"main": {
				"type": "query",
				"parameters": {"type": "params", "properties": {"limit": {"type": "integer"}}},
				"output": {"encoding": "application/json"}
			}
		}
	}`)
	p, err := Parse(doc, 2, "com.example.note", ActionUpsert, "function handle() end")
	require.NoError(t, err)
	assert.Equal(t, TypeQuery, p.Type)
	assert.Equal(t, 2, p.Revision)
	assert.Equal(t, "com.example.note", p.TargetCollection)
	assert.NotNil(t, p.Parameters)
	assert.NotNil(t, p.Output)
	assert.True(t, p.Invokable())
}

func TestParse_DefinitionsLexicon(t *testing.T) {
	doc := mustDoc(t, `{
		"lexicon": 1,
		"id": "com.example.defs",
		"defs": {"genre": {"type": "string"}}
	}`)
	p, err := Parse(doc, 1, "", ActionUpsert, "")
	require.NoError(t, err)
	assert.Equal(t, TypeDefinitions, p.Type)
	assert.False(t, p.Invokable())
}

func TestParse_MissingID(t *testing.T) {
	_, err := Parse(map[string]any{"lexicon": float64(1)}, 1, "", ActionUpsert, "")
	assert.Error(t, err)
}

func TestParseAction(t *testing.T) {
	a, err := ParseAction("")
	require.NoError(t, err)
	assert.Equal(t, ActionUpsert, a)

	for _, s := range []string{"create", "update", "delete", "upsert"} {
		a, err := ParseAction(s)
		require.NoError(t, err)
		assert.Equal(t, Action(s), a)
	}

	_, err = ParseAction("replace")
	assert.Error(t, err)
}

func TestAction_StorageString(t *testing.T) {
	assert.Equal(t, "", ActionUpsert.StorageString())
	assert.Equal(t, "create", ActionCreate.StorageString())
}

func TestRegistry_UpsertGetRemove(t *testing.T) {
	reg := NewRegistry()
	assert.Equal(t, 0, reg.Count())

	p, err := Parse(recordDoc(t), 1, "", ActionUpsert, "")
	require.NoError(t, err)
	reg.Upsert(p)

	got := reg.Get("com.example.note")
	require.NotNil(t, got)
	assert.Equal(t, TypeRecord, got.Type)

	// Upsert replaces rather than appends.
	p2, err := Parse(recordDoc(t), 5, "", ActionUpsert, "")
	require.NoError(t, err)
	reg.Upsert(p2)
	assert.Equal(t, 1, reg.Count())
	assert.Equal(t, 5, reg.Get("com.example.note").Revision)

	assert.True(t, reg.Remove("com.example.note"))
	assert.False(t, reg.Remove("com.example.note"))
	assert.Nil(t, reg.Get("com.example.note"))
}

func TestRegistry_TypeFilters(t *testing.T) {
	reg := NewRegistry()

	rec, err := Parse(recordDoc(t), 1, "", ActionUpsert, "")
	require.NoError(t, err)
	q, err := Parse(mustDoc(t, `{"lexicon":1,"id":"com.example.listNotes","defs":{"main":{"type":"query"}}}`), 1, "", ActionUpsert, "")
	require.NoError(t, err)
	proc, err := Parse(mustDoc(t, `{"lexicon":1,"id":"com.example.createNote","defs":{"main":{"type":"procedure"}}}`), 1, "", ActionUpsert, "")
	require.NoError(t, err)

	reg.Upsert(rec)
	reg.Upsert(q)
	reg.Upsert(proc)

	assert.Equal(t, []string{"com.example.note"}, reg.RecordCollections())
	assert.Equal(t, []string{"com.example.listNotes"}, reg.Queries())
	assert.Equal(t, []string{"com.example.createNote"}, reg.Procedures())
}

func TestProperties_OrderedWithMetadata(t *testing.T) {
	p, err := Parse(recordDoc(t), 1, "", ActionUpsert, "")
	require.NoError(t, err)

	props := Properties(p.RecordSchema)
	require.Len(t, props, 2)
	assert.Equal(t, "count", props[0].Name)
	assert.Equal(t, "integer", props[0].Type)
	assert.False(t, props[0].Required)
	assert.Equal(t, "text", props[1].Name)
	assert.Equal(t, "string", props[1].Type)
	assert.True(t, props[1].Required)
}
