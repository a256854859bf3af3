package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	log logrus.FieldLogger
	dsn string
	db  *sql.DB
}

// Ensure PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgreSQL store.
func NewPostgresStore(log logrus.FieldLogger, dsn string) Store {
	return &PostgresStore{
		log: log.WithField("component", "store"),
		dsn: dsn,
	}
}

// Start opens the database connection.
func (s *PostgresStore) Start(ctx context.Context) error {
	s.log.Info("Opening PostgreSQL database")

	db, err := sql.Open("postgres", s.dsn)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	// Configure connection pool.
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Test connection.
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}

	s.db = db

	return nil
}

// Stop closes the database connection.
func (s *PostgresStore) Stop() error {
	if s.db != nil {
		return s.db.Close()
	}

	return nil
}

// Migrate runs database migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	s.log.Info("Running database migrations")

	migrations := []string{
		// Projects table.
		`CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			language TEXT,
			source_spec_url TEXT,
			git_repo_url TEXT,
			git_auth_token TEXT,
			token_hash TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'init',
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_projects_token_hash ON projects(token_hash)`,
		// Tasks table.
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			status TEXT NOT NULL,
			stage TEXT,
			result JSONB,
			error TEXT,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			completed_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id, created_at)`,
		// Snapshots table.
		`CREATE TABLE IF NOT EXISTS spec_snapshots (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			task_id TEXT NOT NULL UNIQUE REFERENCES tasks(id) ON DELETE CASCADE,
			spec JSONB NOT NULL,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_project_created ON spec_snapshots(project_id, created_at DESC)`,
		// Audit log table.
		`CREATE TABLE IF NOT EXISTS audit_log (
			id TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			actor TEXT,
			details TEXT,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_log_entity ON audit_log(entity_type, entity_id)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_log_created ON audit_log(created_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("running migration: %w", err)
		}
	}

	return nil
}

// ============================================================================
// Projects
// ============================================================================

// CreateProject creates a new project.
func (s *PostgresStore) CreateProject(ctx context.Context, project *Project) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (`+projectColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, project.ID, project.Name, project.Language, project.SourceSpecURL, project.GitRepoURL,
		project.GitAuthToken, project.TokenHash, project.Status, project.CreatedAt, project.UpdatedAt)

	if err != nil {
		return fmt.Errorf("inserting project: %w", err)
	}

	return nil
}

// GetProject retrieves a project by ID.
func (s *PostgresStore) GetProject(ctx context.Context, id string) (*Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)

	project, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("querying project: %w", err)
	}

	return project, nil
}

// GetProjectByName retrieves a project by its unique name.
func (s *PostgresStore) GetProjectByName(ctx context.Context, name string) (*Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE name = $1`, name)

	project, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("querying project: %w", err)
	}

	return project, nil
}

// ListProjects retrieves all projects.
func (s *PostgresStore) ListProjects(ctx context.Context) ([]*Project, error) {
	return s.queryProjects(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY name`)
}

// ListProjectsByTokenHash retrieves the projects owned by a bearer token.
func (s *PostgresStore) ListProjectsByTokenHash(ctx context.Context, tokenHash string) ([]*Project, error) {
	return s.queryProjects(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE token_hash = $1 ORDER BY name`, tokenHash)
}

func (s *PostgresStore) queryProjects(ctx context.Context, query string, args ...any) ([]*Project, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying projects: %w", err)
	}

	defer rows.Close()

	var projects []*Project

	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning project: %w", err)
		}

		projects = append(projects, project)
	}

	return projects, rows.Err()
}

// UpdateProject updates an existing project.
func (s *PostgresStore) UpdateProject(ctx context.Context, project *Project) error {
	project.UpdatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		UPDATE projects SET name = $1, language = $2, source_spec_url = $3, git_repo_url = $4,
			git_auth_token = $5, token_hash = $6, status = $7, updated_at = $8
		WHERE id = $9
	`, project.Name, project.Language, project.SourceSpecURL, project.GitRepoURL,
		project.GitAuthToken, project.TokenHash, project.Status, project.UpdatedAt, project.ID)

	if err != nil {
		return fmt.Errorf("updating project: %w", err)
	}

	return nil
}

// UpdateProjectStatus sets a project's status.
func (s *PostgresStore) UpdateProjectStatus(ctx context.Context, id string, status ProjectStatus) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE projects SET status = $1, updated_at = $2 WHERE id = $3
	`, status, time.Now().UTC(), id)

	if err != nil {
		return fmt.Errorf("updating project status: %w", err)
	}

	return nil
}

// DeleteProject deletes a project and, by cascade, its tasks and snapshots.
func (s *PostgresStore) DeleteProject(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting project: %w", err)
	}

	return nil
}

// ============================================================================
// Tasks
// ============================================================================

// CreateTask creates a new task.
func (s *PostgresStore) CreateTask(ctx context.Context, task *Task) error {
	result, err := encodeResult(task.Result)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, task.ID, task.ProjectID, task.Status, task.Stage, result, task.Error,
		task.CreatedAt, task.UpdatedAt, task.CompletedAt)

	if err != nil {
		return fmt.Errorf("inserting task: %w", err)
	}

	return nil
}

// GetTask retrieves a task by ID.
func (s *PostgresStore) GetTask(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)

	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("querying task: %w", err)
	}

	return task, nil
}

// ListTasksByProject retrieves the most recent tasks of a project.
func (s *PostgresStore) ListTasksByProject(ctx context.Context, projectID string, limit int) ([]*Task, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE project_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}

	defer rows.Close()

	var tasks []*Task

	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning task: %w", err)
		}

		tasks = append(tasks, task)
	}

	return tasks, rows.Err()
}

// UpdateTask updates an existing task.
func (s *PostgresStore) UpdateTask(ctx context.Context, task *Task) error {
	result, err := encodeResult(task.Result)
	if err != nil {
		return err
	}

	task.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx, `
		UPDATE tasks SET status = $1, stage = $2, result = $3, error = $4, updated_at = $5, completed_at = $6
		WHERE id = $7
	`, task.Status, task.Stage, result, task.Error, task.UpdatedAt, task.CompletedAt, task.ID)

	if err != nil {
		return fmt.Errorf("updating task: %w", err)
	}

	return nil
}

// ============================================================================
// Snapshots
// ============================================================================

// CreateSnapshot stores a new snapshot.
func (s *PostgresStore) CreateSnapshot(ctx context.Context, snapshot *Snapshot) error {
	raw, err := encodeSpec(snapshot.Spec)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO spec_snapshots (id, project_id, task_id, spec, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, snapshot.ID, snapshot.ProjectID, snapshot.TaskID, raw, snapshot.CreatedAt)

	if err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}

	return nil
}

// GetLatestSnapshot retrieves the most recently created snapshot of a project.
func (s *PostgresStore) GetLatestSnapshot(ctx context.Context, projectID string) (*Snapshot, error) {
	return s.getSnapshot(ctx, `
		SELECT id, project_id, task_id, spec, created_at FROM spec_snapshots
		WHERE project_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, projectID)
}

// GetSnapshotByTask retrieves the snapshot produced by a task.
func (s *PostgresStore) GetSnapshotByTask(ctx context.Context, taskID string) (*Snapshot, error) {
	return s.getSnapshot(ctx, `
		SELECT id, project_id, task_id, spec, created_at FROM spec_snapshots
		WHERE task_id = $1
	`, taskID)
}

func (s *PostgresStore) getSnapshot(ctx context.Context, query string, args ...any) (*Snapshot, error) {
	var snapshot Snapshot

	var raw string

	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&snapshot.ID, &snapshot.ProjectID, &snapshot.TaskID, &raw, &snapshot.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("querying snapshot: %w", err)
	}

	snapshot.Spec, err = decodeSpec(raw)
	if err != nil {
		return nil, err
	}

	return &snapshot, nil
}

// DeleteOldSnapshots deletes snapshots older than the given time. The latest
// snapshot of every project is always kept.
func (s *PostgresStore) DeleteOldSnapshots(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM spec_snapshots
		WHERE created_at < $1
		AND id NOT IN (
			SELECT DISTINCT ON (project_id) id FROM spec_snapshots
			ORDER BY project_id, created_at DESC
		)
	`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("deleting old snapshots: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}

	return count, nil
}

// ============================================================================
// Audit
// ============================================================================

// CreateAuditEntry creates a new audit log entry.
func (s *PostgresStore) CreateAuditEntry(ctx context.Context, entry *AuditEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, action, entity_type, entity_id, actor, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entry.ID, entry.Action, entry.EntityType, entry.EntityID, entry.Actor, entry.Details, entry.CreatedAt)

	if err != nil {
		return fmt.Errorf("inserting audit_entry: %w", err)
	}

	return nil
}

// ListAuditEntries retrieves audit entries with filtering and pagination.
func (s *PostgresStore) ListAuditEntries(
	ctx context.Context, opts AuditQueryOpts,
) ([]*AuditEntry, int, error) {
	where, args := auditFilter(opts, func(n int) string { return fmt.Sprintf("$%d", n) })

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_log WHERE 1=1`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting audit entries: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, action, entity_type, entity_id, actor, details, created_at FROM audit_log WHERE 1=1`+
			where+" ORDER BY created_at DESC"+auditPage(opts), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying audit entries: %w", err)
	}

	defer rows.Close()

	entries, err := scanAuditEntries(rows)
	if err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}
