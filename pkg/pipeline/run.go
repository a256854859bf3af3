package pipeline

import (
	"github.com/ethpandaops/specsync/pkg/lock"
	"github.com/ethpandaops/specsync/pkg/spec"
	"github.com/ethpandaops/specsync/pkg/store"
	"github.com/sirupsen/logrus"
)

// RunContext carries state through the stages of one run.
type RunContext struct {
	TaskID    string
	ProjectID string
	Log       logrus.FieldLogger

	// Set by load_project.
	Project  *store.Project
	GitToken string

	// Set by fetch_source, rewritten by carry_forward.
	Current spec.Document

	// Set by fetch_previous. Nil on the first run.
	Previous *store.Snapshot

	// Set by diff. SkipAnnotation is true when no path was added or
	// modified.
	Diff           *spec.DiffReport
	SkipAnnotation bool

	// Set by annotate.
	Batches      []*spec.Batch
	Fragments    []spec.Document
	FailedGroups []string
	BatchErrors  map[string]string

	// Set by merge and persist.
	Merged   spec.Document
	Snapshot *store.Snapshot

	// Set by publish.
	PublishErrors map[string]string

	stage  string
	unlock lock.Unlock
}

func newRunContext(log logrus.FieldLogger, task *store.Task) *RunContext {
	return &RunContext{
		TaskID:    task.ID,
		ProjectID: task.ProjectID,
		Log: log.WithFields(logrus.Fields{
			"task_id":    task.ID,
			"project_id": task.ProjectID,
		}),
		BatchErrors:   make(map[string]string),
		PublishErrors: make(map[string]string),
	}
}

// release frees the project lock if this run holds it. It is safe to call
// more than once.
func (rc *RunContext) release() {
	if rc.unlock != nil {
		rc.unlock()
	}
}

// Stage returns the stage currently executing.
func (rc *RunContext) Stage() string {
	return rc.stage
}

func (rc *RunContext) previousSpec() spec.Document {
	if rc.Previous == nil {
		return nil
	}

	return rc.Previous.Spec
}

// summary is the structured result stored on a successful task.
func (rc *RunContext) summary() map[string]any {
	out := map[string]any{
		"first_run":      rc.Previous == nil,
		"skipped":        rc.SkipAnnotation,
		"batches_total":  len(rc.Batches),
		"batches_failed": len(rc.FailedGroups),
		"failed_groups":  append([]string{}, rc.FailedGroups...),
		"batch_errors":   rc.BatchErrors,
	}

	if rc.Diff != nil {
		s := rc.Diff.Summary()
		out["diff"] = map[string]any{
			"added_paths":      s.AddedPaths,
			"removed_paths":    s.RemovedPaths,
			"modified_paths":   s.ModifiedPaths,
			"added_schemas":    s.AddedSchemas,
			"removed_schemas":  s.RemovedSchemas,
			"modified_schemas": s.ModifiedSchemas,
		}
	}

	if rc.Snapshot != nil {
		out["snapshot_id"] = rc.Snapshot.ID
	}

	if len(rc.PublishErrors) > 0 {
		out["publish_errors"] = rc.PublishErrors
	}

	return out
}
