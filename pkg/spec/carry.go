package spec

// genericResponseDescription is what spec producers emit when no real
// response description was written; it is treated as missing.
const genericResponseDescription = "OK"

// CarryForward returns a copy of current in which every description that
// exists in previous but is missing from current has been copied across.
// Existing descriptions in current are never overwritten, with the one
// exception of the generic "OK" response description. Entries are matched by
// path and method, parameter name, content type, status code, schema name and
// property name. current itself is not modified.
func CarryForward(previous, current Document) Document {
	if previous == nil {
		return current
	}

	result := current.Clone()

	carryPaths(previous.Paths(), result.Paths())
	carrySchemas(previous.Schemas(), result.Schemas())

	return result
}

func carryPaths(prevPaths, curPaths map[string]any) {
	for path, prevItemRaw := range prevPaths {
		prevItem := asObject(prevItemRaw)
		curItem := asObject(curPaths[path])

		if prevItem == nil || curItem == nil {
			continue
		}

		for method, prevOpRaw := range prevItem {
			prevOp := asObject(prevOpRaw)
			curOp := asObject(curItem[method])

			if prevOp == nil || curOp == nil {
				continue
			}

			carryOperation(prevOp, curOp)
		}
	}
}

func carryOperation(prevOp, curOp map[string]any) {
	copyDescription(prevOp, curOp)

	carryParameters(asArray(prevOp["parameters"]), asArray(curOp["parameters"]))

	if prevBody, curBody := asObject(prevOp["requestBody"]), asObject(curOp["requestBody"]); prevBody != nil && curBody != nil {
		copyDescription(prevBody, curBody)
		carryContent(prevBody, curBody)
	}

	prevResponses := asObject(prevOp["responses"])
	curResponses := asObject(curOp["responses"])

	for status, prevRespRaw := range prevResponses {
		prevResp := asObject(prevRespRaw)
		curResp := asObject(curResponses[status])

		if prevResp == nil || curResp == nil {
			continue
		}

		if desc, ok := description(prevResp); ok {
			if cur, _ := curResp["description"].(string); cur == "" || cur == genericResponseDescription {
				curResp["description"] = desc
			}
		}

		carryContent(prevResp, curResp)
	}
}

func carryParameters(prevParams, curParams []any) {
	if len(prevParams) == 0 || len(curParams) == 0 {
		return
	}

	byName := make(map[string]map[string]any, len(prevParams))

	for _, raw := range prevParams {
		param := asObject(raw)
		if param == nil {
			continue
		}

		if name, ok := param["name"].(string); ok && name != "" && hasDescription(param) {
			if _, seen := byName[name]; !seen {
				byName[name] = param
			}
		}
	}

	for _, raw := range curParams {
		param := asObject(raw)
		if param == nil {
			continue
		}

		name, _ := param["name"].(string)
		if prev, ok := byName[name]; ok {
			copyDescription(prev, param)
		}
	}
}

// carryContent copies per-content-type descriptions between two objects that
// carry a "content" map.
func carryContent(prev, cur map[string]any) {
	prevContent := asObject(prev["content"])
	curContent := asObject(cur["content"])

	for contentType, prevMediaRaw := range prevContent {
		prevMedia := asObject(prevMediaRaw)
		curMedia := asObject(curContent[contentType])

		if prevMedia != nil && curMedia != nil {
			copyDescription(prevMedia, curMedia)
		}
	}
}

func carrySchemas(prevSchemas, curSchemas map[string]any) {
	for name, prevRaw := range prevSchemas {
		prev := asObject(prevRaw)
		cur := asObject(curSchemas[name])

		if prev == nil || cur == nil {
			continue
		}

		copyDescription(prev, cur)

		prevProps := asObject(prev["properties"])
		curProps := asObject(cur["properties"])

		for prop, prevPropRaw := range prevProps {
			prevProp := asObject(prevPropRaw)
			curProp := asObject(curProps[prop])

			if prevProp != nil && curProp != nil {
				copyDescription(prevProp, curProp)
			}
		}
	}
}

// copyDescription sets dst's description from src when dst has none.
func copyDescription(src, dst map[string]any) {
	if hasDescription(dst) {
		return
	}

	if desc, ok := description(src); ok {
		dst["description"] = desc
	}
}
