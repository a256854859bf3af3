package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethpandaops/specsync/pkg/config"
	"github.com/ethpandaops/specsync/pkg/metrics"
	"github.com/ethpandaops/specsync/pkg/store"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	// ErrTaskNotFound is returned when a task does not exist.
	ErrTaskNotFound = errors.New("task not found")

	// ErrInvalidTransition is returned when a task cannot move to the
	// requested status from its current one.
	ErrInvalidTransition = errors.New("invalid task transition")
)

// TaskChangeCallback is called when a task state changes.
type TaskChangeCallback func(task *store.Task)

// Service defines the interface for task queue operations. It owns every
// task status transition so that the state machine is enforced in one
// place.
type Service interface {
	Start(ctx context.Context) error
	Stop() error

	// Queue operations.
	Enqueue(ctx context.Context, projectID string) (*store.Task, error)

	// Queries.
	GetTask(ctx context.Context, taskID string) (*store.Task, error)
	ListByProject(ctx context.Context, projectID string, limit int) ([]*store.Task, error)

	// State transitions.
	SetStage(ctx context.Context, taskID, stage string) error
	MarkProcessing(ctx context.Context, taskID string) error
	MarkSucceeded(ctx context.Context, taskID string, result map[string]any) error
	MarkFailed(ctx context.Context, taskID, stage, errMsg string, result map[string]any) error

	// Callbacks.
	SetTaskChangeCallback(cb TaskChangeCallback)
}

// service implements Service.
type service struct {
	log                logrus.FieldLogger
	cfg                *config.Config
	store              store.Store
	metrics            *metrics.Metrics
	mu                 sync.Mutex
	taskChangeCallback TaskChangeCallback
	cancel             context.CancelFunc
	wg                 sync.WaitGroup
}

// Ensure service implements Service.
var _ Service = (*service)(nil)

// NewService creates a new queue service.
func NewService(log logrus.FieldLogger, cfg *config.Config, st store.Store, m *metrics.Metrics) Service {
	return &service{
		log:     log.WithField("component", "queue"),
		cfg:     cfg,
		store:   st,
		metrics: m,
	}
}

// Start initializes the queue service.
func (s *service) Start(ctx context.Context) error {
	s.log.Info("Starting queue service")

	ctx, s.cancel = context.WithCancel(ctx)

	// Start snapshot cleanup goroutine if retention is enabled.
	if s.cfg.History.RetentionDays > 0 {
		s.wg.Add(1)

		go s.cleanupOldSnapshots(ctx)
	}

	return nil
}

// cleanupOldSnapshots periodically removes snapshots past the retention
// window. The store never removes a project's latest snapshot.
func (s *service) cleanupOldSnapshots(ctx context.Context) {
	defer s.wg.Done()

	s.log.WithFields(logrus.Fields{
		"retention_days":   s.cfg.History.RetentionDays,
		"cleanup_interval": s.cfg.History.CleanupInterval,
	}).Info("Starting snapshot history cleanup goroutine")

	ticker := time.NewTicker(s.cfg.History.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Stopping snapshot history cleanup goroutine")

			return
		case <-ticker.C:
			s.cleanupOnce(ctx)
		}
	}
}

func (s *service) cleanupOnce(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -s.cfg.History.RetentionDays)

	count, err := s.store.DeleteOldSnapshots(ctx, cutoff)
	if err != nil {
		s.log.WithError(err).Error("Failed to cleanup old snapshots")

		return
	}

	if count > 0 {
		if s.metrics != nil {
			s.metrics.RecordSnapshotsDeleted(count)
		}

		s.log.WithFields(logrus.Fields{
			"deleted_count":  count,
			"retention_days": s.cfg.History.RetentionDays,
		}).Info("Cleaned up old snapshots")
	}
}

// Stop shuts down the queue service.
func (s *service) Stop() error {
	s.log.Info("Stopping queue service")

	if s.cancel != nil {
		s.cancel()
	}

	s.wg.Wait()

	return nil
}

// SetTaskChangeCallback sets the callback for task state changes.
func (s *service) SetTaskChangeCallback(cb TaskChangeCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.taskChangeCallback = cb
}

// notifyTaskChange calls the callback if set. Callers hold s.mu.
func (s *service) notifyTaskChange(task *store.Task) {
	if s.taskChangeCallback != nil {
		s.taskChangeCallback(task)
	}
}

// Enqueue creates a pending task for a project.
func (s *service) Enqueue(ctx context.Context, projectID string) (*store.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()

	task := &store.Task{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		Status:    store.TaskStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("creating task: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"task_id":    task.ID,
		"project_id": projectID,
	}).Info("Task enqueued")

	s.notifyTaskChange(task)

	return task, nil
}

// GetTask retrieves a task by ID. A missing task yields nil, nil.
func (s *service) GetTask(ctx context.Context, taskID string) (*store.Task, error) {
	return s.store.GetTask(ctx, taskID)
}

// ListByProject returns the most recent tasks of a project.
func (s *service) ListByProject(ctx context.Context, projectID string, limit int) ([]*store.Task, error) {
	return s.store.ListTasksByProject(ctx, projectID, limit)
}

// SetStage records the stage a non-terminal task is executing.
func (s *service) SetStage(ctx context.Context, taskID, stage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.getTask(ctx, taskID)
	if err != nil {
		return err
	}

	if task.Status.IsTerminal() {
		return fmt.Errorf("%w: cannot set stage on %s task", ErrInvalidTransition, task.Status)
	}

	task.Stage = stage
	task.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdateTask(ctx, task); err != nil {
		return fmt.Errorf("updating task: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"task_id": taskID,
		"stage":   stage,
	}).Debug("Task stage changed")

	s.notifyTaskChange(task)

	return nil
}

// MarkProcessing marks a pending task as processing.
func (s *service) MarkProcessing(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.getTask(ctx, taskID)
	if err != nil {
		return err
	}

	if task.Status != store.TaskStatusPending {
		return fmt.Errorf("%w: cannot mark task as processing: current status is %s",
			ErrInvalidTransition, task.Status)
	}

	task.Status = store.TaskStatusProcessing
	task.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdateTask(ctx, task); err != nil {
		return fmt.Errorf("updating task: %w", err)
	}

	s.log.WithField("task_id", taskID).Info("Task marked as processing")

	s.notifyTaskChange(task)

	return nil
}

// MarkSucceeded marks a processing task as successful.
func (s *service) MarkSucceeded(ctx context.Context, taskID string, result map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.getTask(ctx, taskID)
	if err != nil {
		return err
	}

	if task.Status != store.TaskStatusProcessing {
		return fmt.Errorf("%w: cannot mark task as succeeded: current status is %s",
			ErrInvalidTransition, task.Status)
	}

	now := time.Now().UTC()
	task.Status = store.TaskStatusSuccess
	task.Result = result
	task.Error = ""
	task.CompletedAt = &now
	task.UpdatedAt = now

	if err := s.store.UpdateTask(ctx, task); err != nil {
		return fmt.Errorf("updating task: %w", err)
	}

	s.log.WithField("task_id", taskID).Info("Task marked as succeeded")

	s.notifyTaskChange(task)

	return nil
}

// MarkFailed marks a pending or processing task as failed.
func (s *service) MarkFailed(ctx context.Context, taskID, stage, errMsg string, result map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.getTask(ctx, taskID)
	if err != nil {
		return err
	}

	if task.Status.IsTerminal() {
		return fmt.Errorf("%w: cannot mark task as failed: current status is %s",
			ErrInvalidTransition, task.Status)
	}

	now := time.Now().UTC()
	task.Status = store.TaskStatusFailed
	task.Stage = stage
	task.Error = errMsg
	task.Result = result
	task.CompletedAt = &now
	task.UpdatedAt = now

	if err := s.store.UpdateTask(ctx, task); err != nil {
		return fmt.Errorf("updating task: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"task_id": taskID,
		"stage":   stage,
		"error":   errMsg,
	}).Info("Task marked as failed")

	s.notifyTaskChange(task)

	return nil
}

func (s *service) getTask(ctx context.Context, taskID string) (*store.Task, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("getting task: %w", err)
	}

	if task == nil {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}

	return task, nil
}
