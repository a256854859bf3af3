package spec

import "strings"

// RefMatcher inspects an object node and reports the reference name it
// carries, if any.
type RefMatcher func(node map[string]any) (string, bool)

// SchemaRef matches {"$ref": "#/components/schemas/<Name>"} and yields the
// last segment of the reference.
func SchemaRef(node map[string]any) (string, bool) {
	ref, ok := node["$ref"].(string)
	if !ok || !strings.HasPrefix(ref, schemaRefPrefix) {
		return "", false
	}

	name := ref[strings.LastIndex(ref, "/")+1:]
	if name == "" {
		return "", false
	}

	return name, true
}

// WalkRefs visits every object and array below node, at any depth, and calls
// visit for each reference recognised by match.
func WalkRefs(node any, match RefMatcher, visit func(name string)) {
	switch n := node.(type) {
	case map[string]any:
		walkObject(n, match, visit)
	case Document:
		walkObject(n, match, visit)
	case []any:
		for _, item := range n {
			WalkRefs(item, match, visit)
		}
	}
}

func walkObject(obj map[string]any, match RefMatcher, visit func(string)) {
	if name, ok := match(obj); ok {
		visit(name)
	}

	for _, v := range obj {
		WalkRefs(v, match, visit)
	}
}

// CollectSchemaRefs returns the set of schema names referenced below node.
func CollectSchemaRefs(node any) map[string]struct{} {
	names := make(map[string]struct{})

	WalkRefs(node, SchemaRef, func(name string) {
		names[name] = struct{}{}
	})

	return names
}

// closeOverSchemas extends names with every schema reachable from them
// through the schema table.
func closeOverSchemas(names map[string]struct{}, schemas map[string]any) {
	queue := make([]string, 0, len(names))
	for name := range names {
		queue = append(queue, name)
	}

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]

		schema, ok := schemas[name]
		if !ok {
			continue
		}

		WalkRefs(schema, SchemaRef, func(ref string) {
			if _, seen := names[ref]; seen {
				return
			}

			names[ref] = struct{}{}
			queue = append(queue, ref)
		})
	}
}
