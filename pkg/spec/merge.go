package spec

import (
	"fmt"
	"strings"
)

// Merger overlays annotated fragments onto a base document.
type Merger struct {
	doc Document
}

// NewMerger seeds a merger with a deep copy of base.
func NewMerger(base Document) *Merger {
	doc := base.Clone()
	if doc == nil {
		doc = Document{}
	}

	return &Merger{doc: doc}
}

// Apply replaces, by key, every path and every component schema present in
// fragment. Nothing else in the base document changes.
func (m *Merger) Apply(fragment Document) {
	if fragment == nil {
		return
	}

	if paths := fragment.Paths(); len(paths) > 0 {
		dst := ensureObject(m.doc, "paths")
		for k, v := range paths {
			dst[k] = cloneValue(v)
		}
	}

	if schemas := fragment.Schemas(); len(schemas) > 0 {
		dst := ensureObject(ensureObject(m.doc, "components"), "schemas")
		for k, v := range schemas {
			dst[k] = cloneValue(v)
		}
	}
}

// Document returns the merged document.
func (m *Merger) Document() Document {
	return m.doc
}

// Merge applies fragments to a copy of base in order.
func Merge(base Document, fragments ...Document) Document {
	m := NewMerger(base)
	for _, f := range fragments {
		m.Apply(f)
	}

	return m.Document()
}

// StripCodeFence removes a surrounding ```json or ``` fence from text. Text
// without a complete fence is returned trimmed but otherwise unchanged.
func StripCodeFence(text string) string {
	text = strings.TrimSpace(text)

	if idx := strings.Index(text, "```json"); idx >= 0 {
		rest := text[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}

		return strings.TrimSpace(rest)
	}

	parts := strings.Split(text, "```")
	if len(parts) >= 3 {
		return strings.TrimSpace(parts[1])
	}

	return text
}

// ParseAnnotated decodes annotation output, which is either a bare JSON
// document or one wrapped in a markdown code fence.
func ParseAnnotated(data []byte) (Document, error) {
	doc, err := Parse(data)
	if err == nil {
		return doc, nil
	}

	doc, fenceErr := Parse([]byte(StripCodeFence(string(data))))
	if fenceErr != nil {
		return nil, fmt.Errorf("parsing annotated fragment: %w", fenceErr)
	}

	return doc, nil
}
