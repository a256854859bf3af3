package spec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, raw string) Document {
	t.Helper()

	doc, err := Parse([]byte(raw))
	require.NoError(t, err)

	return doc
}

func TestDiff(t *testing.T) {
	t.Parallel()

	previous := `{
		"paths": {
			"/a": {"get": {"summary": "a"}},
			"/b": {"get": {"summary": "b"}},
			"/c": {"get": {"summary": "c"}}
		},
		"components": {"schemas": {
			"Keep": {"type": "object"},
			"Gone": {"type": "string"}
		}}
	}`

	tests := []struct {
		name     string
		previous string
		current  string
		check    func(t *testing.T, r *DiffReport)
	}{
		{
			name:     "first run reports everything as added",
			previous: "",
			current:  `{"paths": {"/a": {}, "/b": {}}, "components": {"schemas": {"S": {}}}}`,
			check: func(t *testing.T, r *DiffReport) {
				t.Helper()
				assert.Len(t, r.AddedPaths, 2)
				assert.Len(t, r.AddedSchemas, 1)
				assert.Empty(t, r.RemovedPaths)
				assert.Empty(t, r.ModifiedPaths)
			},
		},
		{
			name:     "identical documents produce an empty report",
			previous: previous,
			current:  previous,
			check: func(t *testing.T, r *DiffReport) {
				t.Helper()
				assert.True(t, r.IsEmpty())
				assert.Empty(t, r.ChangedPaths())
			},
		},
		{
			name:     "added removed and modified are disjoint",
			previous: previous,
			current: `{
				"paths": {
					"/a": {"get": {"summary": "a"}},
					"/b": {"get": {"summary": "b changed"}},
					"/d": {"post": {}}
				},
				"components": {"schemas": {
					"Keep": {"type": "object", "required": ["id"]},
					"New": {"type": "integer"}
				}}
			}`,
			check: func(t *testing.T, r *DiffReport) {
				t.Helper()
				assert.Equal(t, []string{"/d"}, sortedKeys(r.AddedPaths))
				assert.Equal(t, []string{"/c"}, sortedKeys(r.RemovedPaths))
				assert.Equal(t, []string{"/b"}, sortedKeys(r.ModifiedPaths))
				assert.Equal(t, []string{"New"}, sortedKeys(r.AddedSchemas))
				assert.Equal(t, []string{"Gone"}, sortedKeys(r.RemovedSchemas))
				assert.Equal(t, []string{"Keep"}, sortedKeys(r.ModifiedSchemas))

				changed := r.ChangedPaths()
				assert.Equal(t, []string{"/b", "/d"}, sortedKeys(changed))
				assert.Equal(t, "b changed",
					asObject(asObject(changed["/b"])["get"])["summary"])
			},
		},
		{
			name:     "key order does not count as a change",
			previous: `{"paths": {"/a": {"get": {"x": 1, "y": [1, 2]}}}}`,
			current:  `{"paths": {"/a": {"get": {"y": [1, 2], "x": 1}}}}`,
			check: func(t *testing.T, r *DiffReport) {
				t.Helper()
				assert.True(t, r.IsEmpty())
			},
		},
		{
			name:     "an empty list differs from an absent field",
			previous: `{"paths": {"/a": {"get": {}}, "/b": {"get": {"tags": null}}}}`,
			current:  `{"paths": {"/a": {"get": {"parameters": []}}, "/b": {"get": {"tags": []}}}}`,
			check: func(t *testing.T, r *DiffReport) {
				t.Helper()
				assert.Equal(t, []string{"/a", "/b"}, sortedKeys(r.ModifiedPaths))
			},
		},
		{
			name:     "missing tables on both sides",
			previous: `{}`,
			current:  `{"openapi": "3.0.0"}`,
			check: func(t *testing.T, r *DiffReport) {
				t.Helper()
				assert.True(t, r.IsEmpty())
				assert.Equal(t, DiffSummary{}, r.Summary())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var prev Document
			if tt.previous != "" {
				prev = mustParse(t, tt.previous)
			}

			tt.check(t, Diff(prev, mustParse(t, tt.current)))
		})
	}
}

func TestDiffSummary(t *testing.T) {
	t.Parallel()

	report := Diff(
		mustParse(t, `{"paths": {"/x": {}}}`),
		mustParse(t, `{"paths": {"/y": {}, "/z": {}}}`),
	)

	assert.Equal(t, DiffSummary{AddedPaths: 2, RemovedPaths: 1}, report.Summary())
	assert.False(t, report.IsEmpty())
}
