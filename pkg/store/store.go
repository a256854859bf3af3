package store

import (
	"context"
	"time"

	"github.com/ethpandaops/specsync/pkg/spec"
)

// Store defines the interface for database operations.
type Store interface {
	// Lifecycle.
	Start(ctx context.Context) error
	Stop() error

	// Projects.
	CreateProject(ctx context.Context, project *Project) error
	GetProject(ctx context.Context, id string) (*Project, error)
	GetProjectByName(ctx context.Context, name string) (*Project, error)
	ListProjects(ctx context.Context) ([]*Project, error)
	ListProjectsByTokenHash(ctx context.Context, tokenHash string) ([]*Project, error)
	UpdateProject(ctx context.Context, project *Project) error
	UpdateProjectStatus(ctx context.Context, id string, status ProjectStatus) error
	DeleteProject(ctx context.Context, id string) error

	// Tasks.
	CreateTask(ctx context.Context, task *Task) error
	GetTask(ctx context.Context, id string) (*Task, error)
	ListTasksByProject(ctx context.Context, projectID string, limit int) ([]*Task, error)
	UpdateTask(ctx context.Context, task *Task) error

	// Snapshots.
	CreateSnapshot(ctx context.Context, snapshot *Snapshot) error
	GetLatestSnapshot(ctx context.Context, projectID string) (*Snapshot, error)
	GetSnapshotByTask(ctx context.Context, taskID string) (*Snapshot, error)
	DeleteOldSnapshots(ctx context.Context, olderThan time.Time) (int64, error)

	// Audit.
	CreateAuditEntry(ctx context.Context, entry *AuditEntry) error
	ListAuditEntries(ctx context.Context, opts AuditQueryOpts) ([]*AuditEntry, int, error)

	// Migrations.
	Migrate(ctx context.Context) error
}

// ProjectStatus represents the state of a project's generated documentation.
type ProjectStatus string

const (
	ProjectStatusInit    ProjectStatus = "init"
	ProjectStatusPending ProjectStatus = "pending"
	ProjectStatusActive  ProjectStatus = "active"
	ProjectStatusFailed  ProjectStatus = "failed"
)

// Project is a unit of documentation generation: one source specification and
// one source repository.
type Project struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Language      string        `json:"language"`
	SourceSpecURL string        `json:"source_spec_url"`
	GitRepoURL    string        `json:"git_repo_url"`
	GitAuthToken  string        `json:"-"`
	TokenHash     string        `json:"-"`
	Status        ProjectStatus `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// TaskStatus represents the state of a pipeline run.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusSuccess    TaskStatus = "success"
	TaskStatusFailed     TaskStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusSuccess || s == TaskStatusFailed
}

// Task records one pipeline run.
type Task struct {
	ID          string         `json:"id"`
	ProjectID   string         `json:"project_id"`
	Status      TaskStatus     `json:"status"`
	Stage       string         `json:"stage,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// Snapshot is the complete annotated document produced by a successful run.
type Snapshot struct {
	ID        string        `json:"id"`
	ProjectID string        `json:"project_id"`
	TaskID    string        `json:"task_id"`
	Spec      spec.Document `json:"spec"`
	CreatedAt time.Time     `json:"created_at"`
}

// AuditAction represents the type of action being audited.
type AuditAction string

const (
	AuditActionProjectCreated AuditAction = "project_created"
	AuditActionProjectUpdated AuditAction = "project_updated"
	AuditActionProjectDeleted AuditAction = "project_deleted"
	AuditActionRunTriggered   AuditAction = "run_triggered"
	AuditActionRunSucceeded   AuditAction = "run_succeeded"
	AuditActionRunFailed      AuditAction = "run_failed"
)

// AuditEntityType represents the type of entity being audited.
type AuditEntityType string

const (
	AuditEntityProject AuditEntityType = "project"
	AuditEntityTask    AuditEntityType = "task"
)

// AuditEntry represents an audit log entry.
type AuditEntry struct {
	ID         string          `json:"id"`
	Action     AuditAction     `json:"action"`
	EntityType AuditEntityType `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Actor      string          `json:"actor"`
	Details    string          `json:"details"`
	CreatedAt  time.Time       `json:"created_at"`
}

// AuditQueryOpts contains options for querying audit entries.
type AuditQueryOpts struct {
	EntityType *AuditEntityType
	EntityID   *string
	Action     *AuditAction
	Since      *time.Time
	Limit      int
	Offset     int
}
