// Package publish copies persisted snapshots to external sinks after a
// successful run.
package publish

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethpandaops/specsync/pkg/store"
)

// render expands {project}, {project_id} and {task} in a template.
func render(tmpl string, project *store.Project, snapshot *store.Snapshot) string {
	return strings.NewReplacer(
		"{project}", project.Name,
		"{project_id}", project.ID,
		"{task}", snapshot.TaskID,
	).Replace(tmpl)
}

// encode renders a snapshot document as indented JSON with a trailing
// newline, the way it is committed to repositories.
func encode(snapshot *store.Snapshot) ([]byte, error) {
	data, err := json.MarshalIndent(snapshot.Spec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot %s: %w", snapshot.ID, err)
	}

	return append(data, '\n'), nil
}
