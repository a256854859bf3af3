package spec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergerApply(t *testing.T) {
	t.Parallel()

	base := mustParse(t, `{
		"openapi": "3.0.0",
		"info": {"title": "Base"},
		"paths": {"/a": {"get": {}}, "/b": {"get": {}}},
		"components": {"schemas": {"A": {}}, "responses": {"Err": {}}}
	}`)

	m := NewMerger(base)
	m.Apply(mustParse(t, `{
		"info": {"title": "Ignored"},
		"paths": {"/a": {"get": {"description": "annotated"}}, "/c": {"get": {}}},
		"components": {"schemas": {"A": {"description": "annotated"}, "B": {}}}
	}`))
	m.Apply(nil)

	out := m.Document()

	assert.Equal(t, "Base", asObject(out["info"])["title"])
	assert.Equal(t, "annotated", asObject(asObject(out.Paths()["/a"])["get"])["description"])
	assert.Contains(t, out.Paths(), "/b")
	assert.Contains(t, out.Paths(), "/c")
	assert.Equal(t, "annotated", asObject(out.Schemas()["A"])["description"])
	assert.Contains(t, out.Schemas(), "B")
	assert.Contains(t, asObject(out["components"]), "responses")

	// The seed is copied, not shared.
	assert.NotContains(t, asObject(asObject(base.Paths()["/a"])["get"]), "description")
}

func TestMergeWithoutFragmentsIsIdentity(t *testing.T) {
	t.Parallel()

	base := mustParse(t, `{"paths": {"/a": {}}, "components": {"schemas": {"S": {}}}}`)

	assert.Equal(t, base, Merge(base))
}

func TestMergeCreatesMissingTables(t *testing.T) {
	t.Parallel()

	out := Merge(Document{"openapi": "3.0.0"}, mustParse(t, `{"components": {"schemas": {"S": {}}}}`))

	assert.Contains(t, out.Schemas(), "S")
	assert.Nil(t, out.Paths())
}

func TestStripCodeFence(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"```json\n{\"a\": 1}\n```":          `{"a": 1}`,
		"prefix ```json {\"a\": 1}``` tail": `{"a": 1}`,
		"```\n{\"a\": 1}\n```":              `{"a": 1}`,
		"  {\"a\": 1}  ":                    `{"a": 1}`,
		"```json\n{\"a\": 1}":               `{"a": 1}`,
	}

	for in, want := range tests {
		assert.Equal(t, want, StripCodeFence(in), in)
	}
}

func TestParseAnnotated(t *testing.T) {
	t.Parallel()

	doc, err := ParseAnnotated([]byte("```json\n{\"paths\": {\"/a\": {}}}\n```"))
	require.NoError(t, err)
	assert.Contains(t, doc.Paths(), "/a")

	doc, err = ParseAnnotated([]byte(`{"paths": {}}`))
	require.NoError(t, err)
	assert.NotNil(t, doc)

	_, err = ParseAnnotated([]byte("I could not do that"))
	require.Error(t, err)
}
