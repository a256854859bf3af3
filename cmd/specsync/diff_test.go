package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const previousDoc = `{
  "openapi": "3.0.0",
  "paths": {
    "/orders": {"get": {"summary": "List orders"}},
    "/legacy": {"get": {}}
  },
  "components": {"schemas": {"Order": {"type": "object"}}}
}`

const currentDoc = `openapi: 3.0.0
paths:
  /orders:
    get:
      summary: List all orders
  /users:
    get: {}
components:
  schemas:
    Order:
      type: object
`

func writeDocs(t *testing.T) (string, string) {
	t.Helper()

	dir := t.TempDir()
	prev := filepath.Join(dir, "previous.json")
	cur := filepath.Join(dir, "current.yaml")

	require.NoError(t, os.WriteFile(prev, []byte(previousDoc), 0o600))
	require.NoError(t, os.WriteFile(cur, []byte(currentDoc), 0o600))

	return prev, cur
}

func TestRunDiffText(t *testing.T) {
	prev, cur := writeDocs(t)

	var out bytes.Buffer
	require.NoError(t, runDiff(context.Background(), logrus.New(), &out, prev, cur, "text", false))

	assert.Equal(t, "Paths:\n  + /users\n  - /legacy\n  ~ /orders\n\n3 paths and 0 schemas changed\n", out.String())
}

func TestRunDiffJSON(t *testing.T) {
	prev, cur := writeDocs(t)

	var out bytes.Buffer
	require.NoError(t, runDiff(context.Background(), logrus.New(), &out, prev, cur, "json", false))

	var decoded struct {
		Summary struct {
			AddedPaths    int `json:"added_paths"`
			RemovedPaths  int `json:"removed_paths"`
			ModifiedPaths int `json:"modified_paths"`
		} `json:"summary"`
		AddedPaths map[string]any `json:"added_paths"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))

	assert.Equal(t, 1, decoded.Summary.AddedPaths)
	assert.Equal(t, 1, decoded.Summary.RemovedPaths)
	assert.Equal(t, 1, decoded.Summary.ModifiedPaths)
	assert.Contains(t, decoded.AddedPaths, "/users")
}

func TestRunDiffNoChanges(t *testing.T) {
	prev, _ := writeDocs(t)

	var out bytes.Buffer
	require.NoError(t, runDiff(context.Background(), logrus.New(), &out, prev, prev, "text", false))
	assert.Equal(t, "No changes\n", out.String())
}

func TestRunDiffErrors(t *testing.T) {
	prev, cur := writeDocs(t)

	var out bytes.Buffer

	err := runDiff(context.Background(), logrus.New(), &out, prev, cur, "xml", false)
	assert.ErrorContains(t, err, "unsupported output format")

	err = runDiff(context.Background(), logrus.New(), &out, filepath.Join(t.TempDir(), "missing.json"), cur, "text", false)
	assert.ErrorContains(t, err, "reading")
}
