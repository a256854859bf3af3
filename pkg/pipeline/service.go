// Package pipeline runs the documentation synchronization pipeline: fetch the
// authoritative document, diff it against the last snapshot, annotate what
// changed through the code-aware service and persist the merged result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/ethpandaops/specsync/pkg/config"
	"github.com/ethpandaops/specsync/pkg/lock"
	"github.com/ethpandaops/specsync/pkg/metrics"
	"github.com/ethpandaops/specsync/pkg/queue"
	"github.com/ethpandaops/specsync/pkg/store"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const auditActor = "pipeline"

// ErrNotRunning is returned when a run is triggered on a stopped service.
var ErrNotRunning = errors.New("pipeline service is not running")

// Service defines the interface for pipeline operations.
type Service interface {
	Start(ctx context.Context) error
	Stop() error

	// TriggerRun creates a pending task for the project and starts the
	// pipeline in the background. It never reflects the run's outcome.
	TriggerRun(ctx context.Context, projectID string) (*store.Task, error)

	// GetTaskStatus returns a task by ID.
	GetTaskStatus(ctx context.Context, taskID string) (*store.Task, error)

	// GetLatestSnapshot returns the most recent snapshot of a project or
	// ErrSnapshotNotFound.
	GetLatestSnapshot(ctx context.Context, projectID string) (*store.Snapshot, error)
}

// Dependencies are the collaborators a pipeline run talks to.
type Dependencies struct {
	Store      store.Store
	Queue      queue.Service
	Locker     lock.Locker
	Fetcher    Fetcher
	Indexer    Indexer
	Annotator  Annotator
	Secrets    SecretOpener
	Publishers []Publisher
	Metrics    *metrics.Metrics
}

// service implements Service.
type service struct {
	log        logrus.FieldLogger
	cfg        *config.Config
	store      store.Store
	queue      queue.Service
	locker     lock.Locker
	fetcher    Fetcher
	indexer    Indexer
	annotator  Annotator
	secrets    SecretOpener
	publishers []Publisher
	metrics    *metrics.Metrics
	stages     []Stage

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool
	wg      sync.WaitGroup
}

// Ensure service implements Service.
var _ Service = (*service)(nil)

// NewService creates a new pipeline service.
func NewService(log logrus.FieldLogger, cfg *config.Config, deps Dependencies) Service {
	m := deps.Metrics
	if m == nil {
		m = metrics.NewWithRegisterer(prometheus.NewRegistry())
	}

	s := &service{
		log:        log.WithField("component", "pipeline"),
		cfg:        cfg,
		store:      deps.Store,
		queue:      deps.Queue,
		locker:     deps.Locker,
		fetcher:    deps.Fetcher,
		indexer:    deps.Indexer,
		annotator:  deps.Annotator,
		secrets:    deps.Secrets,
		publishers: deps.Publishers,
		metrics:    m,
	}

	s.stages = s.buildStages()

	return s
}

// Start enables background runs.
func (s *service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log.WithField("publishers", len(s.publishers)).Info("Starting pipeline service")

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.stopped = false

	return nil
}

// Stop cancels in-flight runs and waits for them to record their outcome.
func (s *service) Stop() error {
	s.log.Info("Stopping pipeline service")

	s.mu.Lock()
	s.stopped = true

	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()

	return nil
}

// TriggerRun implements Service.
func (s *service) TriggerRun(ctx context.Context, projectID string) (*store.Task, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("getting project: %w", err)
	}

	if project == nil {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
	}

	s.mu.Lock()
	if s.ctx == nil || s.stopped {
		s.mu.Unlock()

		return nil, ErrNotRunning
	}

	runCtx := s.ctx
	s.wg.Add(1)
	s.mu.Unlock()

	task, err := s.queue.Enqueue(ctx, projectID)
	if err != nil {
		s.wg.Done()

		return nil, fmt.Errorf("creating task: %w", err)
	}

	s.metrics.RecordRunTriggered()
	s.audit(ctx, store.AuditActionRunTriggered, task,
		fmt.Sprintf("run triggered for project %s", project.Name))

	go s.execute(runCtx, task)

	return task, nil
}

// GetTaskStatus implements Service.
func (s *service) GetTaskStatus(ctx context.Context, taskID string) (*store.Task, error) {
	task, err := s.queue.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("getting task: %w", err)
	}

	if task == nil {
		return nil, fmt.Errorf("%w: %s", queue.ErrTaskNotFound, taskID)
	}

	return task, nil
}

// GetLatestSnapshot implements Service.
func (s *service) GetLatestSnapshot(ctx context.Context, projectID string) (*store.Snapshot, error) {
	snapshot, err := s.store.GetLatestSnapshot(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("getting latest snapshot: %w", err)
	}

	if snapshot == nil {
		return nil, ErrSnapshotNotFound
	}

	return snapshot, nil
}

// execute runs every stage for task and records the outcome. The project
// lock is released on every exit path.
func (s *service) execute(ctx context.Context, task *store.Task) {
	defer s.wg.Done()

	rc := newRunContext(s.log, task)

	defer rc.release()

	started := time.Now()

	s.metrics.RecordRunStarted()

	err := s.runStages(ctx, rc)

	s.finish(context.WithoutCancel(ctx), rc, err, time.Since(started))
}

func (s *service) runStages(ctx context.Context, rc *RunContext) error {
	for _, stage := range s.stages {
		rc.stage = stage.Name()
		log := rc.Log.WithField("stage", rc.stage)

		if sk, ok := stage.(skippable); ok && sk.Skip(rc) {
			log.Debug("Stage skipped")

			continue
		}

		if err := s.queue.SetStage(ctx, rc.TaskID, rc.stage); err != nil {
			return newError(KindUnexpected, fmt.Errorf("recording stage: %w", err))
		}

		started := time.Now()

		err := s.runStage(ctx, stage, rc)

		s.metrics.RecordStage(rc.stage, time.Since(started).Seconds())

		if err != nil {
			return err
		}

		log.WithField("duration", time.Since(started)).Debug("Stage completed")
	}

	return nil
}

// runStage converts a panicking stage into an unexpected error.
func (s *service) runStage(ctx context.Context, stage Stage, rc *RunContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			rc.Log.WithFields(logrus.Fields{
				"stage": stage.Name(),
				"panic": r,
				"stack": string(debug.Stack()),
			}).Error("Recovered from panic in pipeline stage")

			err = newError(KindUnexpected, fmt.Errorf("panic: %v", r))
		}
	}()

	return stage.Execute(ctx, rc)
}

func (s *service) finish(ctx context.Context, rc *RunContext, runErr error, elapsed time.Duration) {
	if runErr == nil {
		s.metrics.RecordRunFinished(string(store.TaskStatusSuccess), "", elapsed.Seconds())
		s.auditRun(ctx, store.AuditActionRunSucceeded, rc, "run succeeded")

		rc.Log.WithFields(logrus.Fields{
			"duration":       elapsed,
			"batches":        len(rc.Batches),
			"failed_batches": len(rc.FailedGroups),
		}).Info("Pipeline run succeeded")

		return
	}

	pe := classify(runErr, rc.stage)

	log := rc.Log.WithFields(logrus.Fields{
		"stage":      pe.Stage,
		"error_kind": pe.Kind,
		"duration":   elapsed,
	}).WithError(pe.Err)

	if pe.Kind == KindLockContention {
		s.metrics.RecordLockContention()
		log.Warn("Pipeline run rejected, project is locked")
	} else {
		log.Error("Pipeline run failed")
	}

	result := map[string]any{
		"error":   string(pe.Kind),
		"stage":   pe.Stage,
		"message": pe.Message(),
	}

	// Project status, then lock, then task: a task observed as failed
	// always has a failed project and a free lock.
	if rc.Project != nil && pe.Kind != KindLockContention {
		if err := s.store.UpdateProjectStatus(ctx, rc.ProjectID, store.ProjectStatusFailed); err != nil {
			log.WithField("update_error", err.Error()).Error("Failed to mark project as failed")
		}
	}

	rc.release()

	if err := s.queue.MarkFailed(ctx, rc.TaskID, pe.Stage, pe.Error(), result); err != nil {
		log.WithField("mark_error", err.Error()).Error("Failed to mark task as failed")
	}

	s.metrics.RecordRunFinished(string(store.TaskStatusFailed), string(pe.Kind), elapsed.Seconds())
	s.auditRun(ctx, store.AuditActionRunFailed, rc, pe.Error())
}

func (s *service) auditRun(ctx context.Context, action store.AuditAction, rc *RunContext, details string) {
	s.audit(ctx, action, &store.Task{ID: rc.TaskID, ProjectID: rc.ProjectID}, details)
}

func (s *service) audit(ctx context.Context, action store.AuditAction, task *store.Task, details string) {
	entry := &store.AuditEntry{
		ID:         uuid.New().String(),
		Action:     action,
		EntityType: store.AuditEntityTask,
		EntityID:   task.ID,
		Actor:      auditActor,
		Details:    fmt.Sprintf("project=%s %s", task.ProjectID, details),
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.store.CreateAuditEntry(ctx, entry); err != nil {
		s.log.WithError(err).WithField("action", action).Warn("Failed to write audit entry")
	}
}
