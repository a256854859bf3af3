package spec

import (
	"fmt"
	"strings"
)

const (
	// MaxPathsPerBatch caps the number of paths sent in a single annotation
	// request.
	MaxPathsPerBatch = 10

	defaultGroupKey = "/default_group"
)

// Batch is a set of related paths annotated together, plus the names of the
// schemas they reference.
type Batch struct {
	GroupKey    string
	Paths       map[string]any
	SchemaNames []string
}

// GroupKey derives the grouping prefix for a path: the first two segments
// when present, the only segment otherwise, and a default group for the root.
func GroupKey(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case len(parts) >= 2:
		return "/" + parts[0] + "/" + parts[1]
	case len(parts) == 1 && parts[0] != "":
		return "/" + parts[0]
	default:
		return defaultGroupKey
	}
}

// BuildBatches partitions paths into batches keyed by GroupKey with at most
// MaxPathsPerBatch paths each. Overflow subgroups of a prefix are keyed
// "<prefix>_part2", "<prefix>_part3" and so on. Paths are consumed in lexical
// order so the output is deterministic. Every batch lists the schemas its
// paths reference, directly or through other schemas in the table.
func BuildBatches(paths map[string]any, schemas map[string]any) []*Batch {
	var (
		order  []string
		groups = make(map[string][]*Batch)
	)

	for _, path := range sortedKeys(paths) {
		prefix := GroupKey(path)

		subgroups, ok := groups[prefix]
		if !ok {
			order = append(order, prefix)
		}

		if len(subgroups) == 0 || len(subgroups[len(subgroups)-1].Paths) >= MaxPathsPerBatch {
			key := prefix
			if len(subgroups) > 0 {
				key = fmt.Sprintf("%s_part%d", prefix, len(subgroups)+1)
			}

			subgroups = append(subgroups, &Batch{GroupKey: key, Paths: make(map[string]any)})
			groups[prefix] = subgroups
		}

		subgroups[len(subgroups)-1].Paths[path] = paths[path]
	}

	batches := make([]*Batch, 0, len(paths)/MaxPathsPerBatch+len(order))

	for _, prefix := range order {
		for _, batch := range groups[prefix] {
			names := CollectSchemaRefs(batch.Paths)
			closeOverSchemas(names, schemas)

			batch.SchemaNames = sortedKeys(names)
			batches = append(batches, batch)
		}
	}

	return batches
}

// Fragment builds the self-contained partial document sent for annotation.
// It carries source's openapi version and info block (or defaults), the
// batch's paths, and only the referenced schemas that exist in source.
func (b *Batch) Fragment(source Document) Document {
	version, _ := source["openapi"].(string)
	if version == "" {
		version = DefaultOpenAPIVersion
	}

	info := asObject(source["info"])
	if info == nil {
		info = map[string]any{
			"title":   DefaultFragmentTitle,
			"version": DefaultFragmentVersion,
		}
	}

	available := source.Schemas()
	schemas := make(map[string]any, len(b.SchemaNames))

	for _, name := range b.SchemaNames {
		if schema, ok := available[name]; ok {
			schemas[name] = cloneValue(schema)
		}
	}

	return Document{
		"openapi": version,
		"info":    cloneValue(info),
		"paths":   cloneObject(b.Paths),
		"components": map[string]any{
			"schemas": schemas,
		},
	}
}
