package spec

import (
	"sort"

	"github.com/google/go-cmp/cmp"
)

// Change holds both versions of a modified entry.
type Change struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// DiffReport is the shallow difference between two documents. Entries are
// whole path items and whole schemas; nothing below them is compared
// field-by-field.
type DiffReport struct {
	AddedPaths      map[string]any    `json:"added_paths"`
	RemovedPaths    map[string]any    `json:"removed_paths"`
	ModifiedPaths   map[string]Change `json:"modified_paths"`
	AddedSchemas    map[string]any    `json:"added_schemas"`
	RemovedSchemas  map[string]any    `json:"removed_schemas"`
	ModifiedSchemas map[string]Change `json:"modified_schemas"`
}

// DiffSummary counts the entries of a DiffReport.
type DiffSummary struct {
	AddedPaths      int `json:"added_paths"`
	RemovedPaths    int `json:"removed_paths"`
	ModifiedPaths   int `json:"modified_paths"`
	AddedSchemas    int `json:"added_schemas"`
	RemovedSchemas  int `json:"removed_schemas"`
	ModifiedSchemas int `json:"modified_schemas"`
}

// Diff compares current against previous. A nil previous means no snapshot
// exists yet, so every path and schema of current is reported as added.
func Diff(previous, current Document) *DiffReport {
	report := &DiffReport{
		AddedPaths:      make(map[string]any),
		RemovedPaths:    make(map[string]any),
		ModifiedPaths:   make(map[string]Change),
		AddedSchemas:    make(map[string]any),
		RemovedSchemas:  make(map[string]any),
		ModifiedSchemas: make(map[string]Change),
	}

	var prevPaths, prevSchemas map[string]any
	if previous != nil {
		prevPaths = previous.Paths()
		prevSchemas = previous.Schemas()
	}

	diffTable(prevPaths, current.Paths(), report.AddedPaths, report.RemovedPaths, report.ModifiedPaths)
	diffTable(prevSchemas, current.Schemas(), report.AddedSchemas, report.RemovedSchemas, report.ModifiedSchemas)

	return report
}

func diffTable(prev, cur map[string]any, added, removed map[string]any, modified map[string]Change) {
	for key, curVal := range cur {
		prevVal, ok := prev[key]
		if !ok {
			added[key] = curVal

			continue
		}

		if !cmp.Equal(prevVal, curVal) {
			modified[key] = Change{Old: prevVal, New: curVal}
		}
	}

	for key, prevVal := range prev {
		if _, ok := cur[key]; !ok {
			removed[key] = prevVal
		}
	}
}

// IsEmpty reports whether the two documents had identical path and schema
// tables.
func (r *DiffReport) IsEmpty() bool {
	return len(r.AddedPaths) == 0 && len(r.RemovedPaths) == 0 && len(r.ModifiedPaths) == 0 &&
		len(r.AddedSchemas) == 0 && len(r.RemovedSchemas) == 0 && len(r.ModifiedSchemas) == 0
}

// ChangedPaths returns the added paths together with the new version of every
// modified path. These are the paths that need annotation.
func (r *DiffReport) ChangedPaths() map[string]any {
	out := make(map[string]any, len(r.AddedPaths)+len(r.ModifiedPaths))

	for k, v := range r.AddedPaths {
		out[k] = v
	}

	for k, c := range r.ModifiedPaths {
		out[k] = c.New
	}

	return out
}

// Summary returns entry counts.
func (r *DiffReport) Summary() DiffSummary {
	return DiffSummary{
		AddedPaths:      len(r.AddedPaths),
		RemovedPaths:    len(r.RemovedPaths),
		ModifiedPaths:   len(r.ModifiedPaths),
		AddedSchemas:    len(r.AddedSchemas),
		RemovedSchemas:  len(r.RemovedSchemas),
		ModifiedSchemas: len(r.ModifiedSchemas),
	}
}

// sortedKeys returns the keys of m in lexical order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
