package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ethpandaops/specsync/pkg/coderag"
	"github.com/ethpandaops/specsync/pkg/lock"
	"github.com/ethpandaops/specsync/pkg/spec"
	"github.com/ethpandaops/specsync/pkg/store"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Stage names, in execution order.
const (
	StageAcquireLock    = "acquire_lock"
	StageLoadProject    = "load_project"
	StageValidateConfig = "validate_config"
	StageMarkPending    = "mark_pending"
	StageFetchSource    = "fetch_source"
	StageFetchPrevious  = "fetch_previous"
	StageCarryForward   = "carry_forward"
	StageDiff           = "diff"
	StageIndexReady     = "index_ready"
	StageAnnotate       = "annotate"
	StageMerge          = "merge"
	StagePersist        = "persist"
	StagePublish        = "publish"
	StageComplete       = "complete"
)

// errIndexPending is returned by a poll while indexing is still running.
var errIndexPending = errors.New("repository index still pending")

// Stage represents a step in the sync pipeline.
type Stage interface {
	Name() string
	Execute(ctx context.Context, rc *RunContext) error
}

// skippable stages are bypassed when Skip reports true.
type skippable interface {
	Skip(rc *RunContext) bool
}

func (s *service) buildStages() []Stage {
	return []Stage{
		&acquireLockStage{s},
		&loadProjectStage{s},
		&validateConfigStage{},
		&markPendingStage{s},
		&fetchSourceStage{s},
		&fetchPreviousStage{s},
		&carryForwardStage{},
		&diffStage{s},
		&indexReadyStage{s},
		&annotateStage{s},
		&mergeStage{},
		&persistStage{s},
		&publishStage{s},
		&completeStage{s},
	}
}

type acquireLockStage struct{ s *service }

func (st *acquireLockStage) Name() string { return StageAcquireLock }

func (st *acquireLockStage) Execute(ctx context.Context, rc *RunContext) error {
	unlock, err := st.s.locker.TryLock(rc.ProjectID)
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			return newError(KindLockContention,
				fmt.Errorf("project %s is already being synchronized", rc.ProjectID))
		}

		return newError(KindUnexpected, fmt.Errorf("acquiring project lock: %w", err))
	}

	rc.unlock = unlock

	if err := st.s.queue.MarkProcessing(ctx, rc.TaskID); err != nil {
		return newError(KindUnexpected, err)
	}

	return nil
}

type loadProjectStage struct{ s *service }

func (st *loadProjectStage) Name() string { return StageLoadProject }

func (st *loadProjectStage) Execute(ctx context.Context, rc *RunContext) error {
	project, err := st.s.store.GetProject(ctx, rc.ProjectID)
	if err != nil {
		return newError(KindPersistence, fmt.Errorf("loading project: %w", err))
	}

	if project == nil {
		return newError(KindProjectNotFound, fmt.Errorf("project %s does not exist", rc.ProjectID))
	}

	rc.Project = project
	rc.Log = rc.Log.WithField("project", project.Name)

	if project.GitAuthToken != "" && st.s.secrets != nil {
		token, err := st.s.secrets.OpenSecret(project.GitAuthToken)
		if err != nil {
			return newError(KindConfiguration, fmt.Errorf("opening git credentials: %w", err))
		}

		rc.GitToken = token
	}

	return nil
}

type validateConfigStage struct{}

func (st *validateConfigStage) Name() string { return StageValidateConfig }

func (st *validateConfigStage) Execute(_ context.Context, rc *RunContext) error {
	if rc.Project.SourceSpecURL == "" {
		return newError(KindConfiguration,
			fmt.Errorf("project %s has no source specification URL", rc.Project.Name))
	}

	return nil
}

type markPendingStage struct{ s *service }

func (st *markPendingStage) Name() string { return StageMarkPending }

func (st *markPendingStage) Execute(ctx context.Context, rc *RunContext) error {
	if err := st.s.store.UpdateProjectStatus(ctx, rc.ProjectID, store.ProjectStatusPending); err != nil {
		return newError(KindPersistence, fmt.Errorf("marking project pending: %w", err))
	}

	rc.Project.Status = store.ProjectStatusPending

	return nil
}

type fetchSourceStage struct{ s *service }

func (st *fetchSourceStage) Name() string { return StageFetchSource }

func (st *fetchSourceStage) Execute(ctx context.Context, rc *RunContext) error {
	doc, err := st.s.fetcher.Fetch(ctx, rc.Project.SourceSpecURL)
	if err != nil {
		return newError(KindSourceFetch, err)
	}

	rc.Current = doc

	return nil
}

type fetchPreviousStage struct{ s *service }

func (st *fetchPreviousStage) Name() string { return StageFetchPrevious }

func (st *fetchPreviousStage) Execute(ctx context.Context, rc *RunContext) error {
	previous, err := st.s.store.GetLatestSnapshot(ctx, rc.ProjectID)
	if err != nil {
		return newError(KindPersistence, fmt.Errorf("loading latest snapshot: %w", err))
	}

	if previous == nil {
		rc.Log.Info("No previous snapshot, treating every element as added")
	}

	rc.Previous = previous

	return nil
}

type carryForwardStage struct{}

func (st *carryForwardStage) Name() string { return StageCarryForward }

func (st *carryForwardStage) Skip(rc *RunContext) bool { return rc.Previous == nil }

func (st *carryForwardStage) Execute(_ context.Context, rc *RunContext) error {
	rc.Current = spec.CarryForward(rc.previousSpec(), rc.Current)

	return nil
}

type diffStage struct{ s *service }

func (st *diffStage) Name() string { return StageDiff }

func (st *diffStage) Execute(_ context.Context, rc *RunContext) error {
	rc.Diff = spec.Diff(rc.previousSpec(), rc.Current)

	changed := len(rc.Diff.ChangedPaths())
	rc.SkipAnnotation = changed == 0

	st.s.metrics.RecordChangedPaths(changed)

	summary := rc.Diff.Summary()
	rc.Log.WithFields(logrus.Fields{
		"added_paths":      summary.AddedPaths,
		"removed_paths":    summary.RemovedPaths,
		"modified_paths":   summary.ModifiedPaths,
		"added_schemas":    summary.AddedSchemas,
		"removed_schemas":  summary.RemovedSchemas,
		"modified_schemas": summary.ModifiedSchemas,
	}).Info("Computed specification diff")

	if rc.SkipAnnotation {
		rc.Log.Info("No added or modified paths, skipping annotation")
	}

	return nil
}

type indexReadyStage struct{ s *service }

func (st *indexReadyStage) Name() string { return StageIndexReady }

func (st *indexReadyStage) Skip(rc *RunContext) bool { return rc.SkipAnnotation }

func (st *indexReadyStage) Execute(ctx context.Context, rc *RunContext) error {
	repoID := rc.Project.Name

	err := st.s.indexer.Setup(ctx, coderag.SetupRequest{
		RepoID:      repoID,
		RepoURL:     rc.Project.GitRepoURL,
		AccessToken: rc.GitToken,
	})
	if err != nil {
		if ctx.Err() != nil {
			return newError(KindUnexpected, fmt.Errorf("requesting repository index: %w", context.Cause(ctx)))
		}

		return newError(KindIndexingFailed, fmt.Errorf("requesting repository index: %w", err))
	}

	interval := st.s.cfg.Pipeline.IndexPollInterval
	timeout := st.s.cfg.Pipeline.IndexTimeout

	poll := func() (*coderag.IndexStatus, error) {
		status, err := st.s.indexer.Status(ctx, repoID)
		if err != nil {
			st.s.metrics.RecordIndexPoll("error")

			return nil, err
		}

		st.s.metrics.RecordIndexPoll(string(status.Status))

		switch status.Status {
		case coderag.IndexStateCompleted:
			return status, nil
		case coderag.IndexStateFailed:
			return nil, backoff.Permanent(newError(KindIndexingFailed,
				fmt.Errorf("repository %s failed to index: %s", repoID, status.Message)))
		default:
			return nil, errIndexPending
		}
	}

	_, err = backoff.Retry(ctx, poll,
		backoff.WithBackOff(backoff.NewConstantBackOff(interval)),
		backoff.WithMaxElapsedTime(timeout),
		backoff.WithNotify(func(err error, next time.Duration) {
			if !errors.Is(err, errIndexPending) {
				rc.Log.WithError(err).Warn("Repository status check failed, retrying")
			}

			rc.Log.WithField("next_poll", next).Debug("Waiting for repository index")
		}),
	)

	switch {
	case err == nil:
		rc.Log.WithField("repo_id", repoID).Info("Repository index ready")

		return nil
	case ctx.Err() != nil:
		return newError(KindUnexpected, fmt.Errorf("waiting for repository index: %w", context.Cause(ctx)))
	}

	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}

	return newError(KindIndexingTimeout,
		fmt.Errorf("repository %s not indexed within %s: %w", repoID, timeout, err))
}

type annotateStage struct{ s *service }

func (st *annotateStage) Name() string { return StageAnnotate }

func (st *annotateStage) Skip(rc *RunContext) bool { return rc.SkipAnnotation }

func (st *annotateStage) Execute(ctx context.Context, rc *RunContext) error {
	rc.Batches = spec.BuildBatches(rc.Diff.ChangedPaths(), rc.Current.Schemas())

	systemPrompt := st.s.cfg.Annotation.SystemPrompt
	rewritePrompt := st.s.cfg.RewritePromptFor(rc.Project.Language)

	for i, batch := range rc.Batches {
		if err := ctx.Err(); err != nil {
			return newError(KindUnexpected, fmt.Errorf("annotation interrupted: %w", context.Cause(ctx)))
		}

		log := rc.Log.WithFields(logrus.Fields{
			"group":   batch.GroupKey,
			"batch":   i + 1,
			"batches": len(rc.Batches),
			"paths":   len(batch.Paths),
			"schemas": len(batch.SchemaNames),
		})

		started := time.Now()

		fragment, err := st.s.annotator.Annotate(ctx, coderag.AnnotateRequest{
			RepoID:              rc.Project.Name,
			Fragment:            batch.Fragment(rc.Current),
			SystemInstructions:  systemPrompt,
			RewriteInstructions: rewritePrompt,
		})

		st.s.metrics.RecordBatch(err == nil, time.Since(started).Seconds())

		if err != nil {
			batchErr := &Error{Kind: KindAnnotationBatch, Stage: StageAnnotate, Err: err}
			log.WithError(batchErr).Warn("Annotation batch failed, continuing without it")

			rc.FailedGroups = append(rc.FailedGroups, batch.GroupKey)
			rc.BatchErrors[batch.GroupKey] = err.Error()

			continue
		}

		log.Info("Annotation batch completed")

		rc.Fragments = append(rc.Fragments, fragment)
	}

	return nil
}

type mergeStage struct{}

func (st *mergeStage) Name() string { return StageMerge }

func (st *mergeStage) Execute(_ context.Context, rc *RunContext) error {
	rc.Merged = spec.Merge(rc.Current, rc.Fragments...)

	return nil
}

type persistStage struct{ s *service }

func (st *persistStage) Name() string { return StagePersist }

func (st *persistStage) Execute(ctx context.Context, rc *RunContext) error {
	snapshot := &store.Snapshot{
		ID:        uuid.New().String(),
		ProjectID: rc.ProjectID,
		TaskID:    rc.TaskID,
		Spec:      rc.Merged,
		CreatedAt: time.Now().UTC(),
	}

	if err := st.s.store.CreateSnapshot(ctx, snapshot); err != nil {
		return newError(KindPersistence, fmt.Errorf("saving snapshot: %w", err))
	}

	st.s.metrics.RecordSnapshotCreated()

	rc.Snapshot = snapshot
	rc.Log.WithField("snapshot_id", snapshot.ID).Info("Snapshot persisted")

	return nil
}

type publishStage struct{ s *service }

func (st *publishStage) Name() string { return StagePublish }

func (st *publishStage) Skip(_ *RunContext) bool { return len(st.s.publishers) == 0 }

func (st *publishStage) Execute(ctx context.Context, rc *RunContext) error {
	for _, publisher := range st.s.publishers {
		err := publisher.Publish(ctx, rc.Project, rc.Snapshot)

		st.s.metrics.RecordPublish(publisher.Name(), err == nil)

		if err != nil {
			rc.Log.WithError(err).WithField("publisher", publisher.Name()).Warn("Failed to publish snapshot")
			rc.PublishErrors[publisher.Name()] = err.Error()

			continue
		}

		rc.Log.WithField("publisher", publisher.Name()).Info("Snapshot published")
	}

	return nil
}

type completeStage struct{ s *service }

func (st *completeStage) Name() string { return StageComplete }

func (st *completeStage) Execute(ctx context.Context, rc *RunContext) error {
	if err := st.s.store.UpdateProjectStatus(ctx, rc.ProjectID, store.ProjectStatusActive); err != nil {
		return newError(KindPersistence, fmt.Errorf("marking project active: %w", err))
	}

	rc.Project.Status = store.ProjectStatusActive

	// A caller that sees the task terminal may retrigger at once, so the
	// lock goes before the task transition.
	rc.release()

	result := map[string]any{
		"message": fmt.Sprintf("Documentation synchronized for project %s", rc.Project.Name),
		"summary": rc.summary(),
	}

	if err := st.s.queue.MarkSucceeded(ctx, rc.TaskID, result); err != nil {
		return newError(KindPersistence, err)
	}

	return nil
}
