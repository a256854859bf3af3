// Package spec implements the pure document transformations used by the
// sync pipeline: diffing, description carry-forward, path batching and
// fragment merging over OpenAPI 3 documents held as generic JSON trees.
package spec

import (
	"encoding/json"
	"fmt"
)

const (
	// DefaultOpenAPIVersion is used for fragments built from documents that
	// do not declare one.
	DefaultOpenAPIVersion = "3.0.0"

	// DefaultFragmentTitle and DefaultFragmentVersion fill a fragment's info
	// block when the source document has none.
	DefaultFragmentTitle   = "Partial API"
	DefaultFragmentVersion = "1.0.0"

	schemaRefPrefix = "#/components/schemas/"
)

// Document is an OpenAPI document decoded into a generic JSON tree.
type Document map[string]any

// Parse decodes a JSON document.
func Parse(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}

	if doc == nil {
		return nil, fmt.Errorf("decoding document: not a JSON object")
	}

	return doc, nil
}

// Paths returns the document's path table, or nil when absent.
func (d Document) Paths() map[string]any {
	return asObject(d["paths"])
}

// Schemas returns the document's components.schemas table, or nil when
// absent.
func (d Document) Schemas() map[string]any {
	components := asObject(d["components"])
	if components == nil {
		return nil
	}

	return asObject(components["schemas"])
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}

	return Document(cloneObject(d))
}

// Marshal encodes the document as JSON.
func (d Document) Marshal() ([]byte, error) {
	return json.Marshal(d)
}

// ensureObject returns parent[key] as an object, creating it when missing or
// not an object.
func ensureObject(parent map[string]any, key string) map[string]any {
	if obj := asObject(parent[key]); obj != nil {
		return obj
	}

	obj := make(map[string]any)
	parent[key] = obj

	return obj
}

func asObject(v any) map[string]any {
	switch o := v.(type) {
	case map[string]any:
		return o
	case Document:
		return o
	default:
		return nil
	}
}

func asArray(v any) []any {
	a, _ := v.([]any)

	return a
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneObject(t)
	case Document:
		return cloneObject(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}

		return out
	default:
		return t
	}
}

func cloneObject(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}

	return out
}

// hasDescription reports whether obj carries a non-empty description.
func hasDescription(obj map[string]any) bool {
	s, ok := obj["description"].(string)

	return ok && s != ""
}

func description(obj map[string]any) (string, bool) {
	s, ok := obj["description"].(string)

	return s, ok && s != ""
}
