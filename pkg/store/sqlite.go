package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	log  logrus.FieldLogger
	path string
	db   *sql.DB
}

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(log logrus.FieldLogger, path string) Store {
	return &SQLiteStore{
		log:  log.WithField("component", "store"),
		path: path,
	}
}

// Start opens the database connection.
func (s *SQLiteStore) Start(ctx context.Context) error {
	s.log.WithField("path", s.path).Info("Opening SQLite database")

	db, err := sql.Open("sqlite3", s.path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	// Test connection.
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}

	s.db = db

	return nil
}

// Stop closes the database connection.
func (s *SQLiteStore) Stop() error {
	if s.db != nil {
		return s.db.Close()
	}

	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
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
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_projects_token_hash ON projects(token_hash)`,
		// Tasks table.
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			status TEXT NOT NULL,
			stage TEXT,
			result TEXT,
			error TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			completed_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id, created_at)`,
		// Snapshots table.
		`CREATE TABLE IF NOT EXISTS spec_snapshots (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			task_id TEXT NOT NULL UNIQUE REFERENCES tasks(id) ON DELETE CASCADE,
			spec TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_project_created ON spec_snapshots(project_id, created_at)`,
		// Audit log table.
		`CREATE TABLE IF NOT EXISTS audit_log (
			id TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			actor TEXT,
			details TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
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

const projectColumns = `id, name, language, source_spec_url, git_repo_url, git_auth_token,
	token_hash, status, created_at, updated_at`

// CreateProject creates a new project.
func (s *SQLiteStore) CreateProject(ctx context.Context, project *Project) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (`+projectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, project.ID, project.Name, project.Language, project.SourceSpecURL, project.GitRepoURL,
		project.GitAuthToken, project.TokenHash, project.Status, project.CreatedAt, project.UpdatedAt)

	if err != nil {
		return fmt.Errorf("inserting project: %w", err)
	}

	return nil
}

// GetProject retrieves a project by ID.
func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)

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
func (s *SQLiteStore) GetProjectByName(ctx context.Context, name string) (*Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE name = ?`, name)

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
func (s *SQLiteStore) ListProjects(ctx context.Context) ([]*Project, error) {
	return s.queryProjects(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY name`)
}

// ListProjectsByTokenHash retrieves the projects owned by a bearer token.
func (s *SQLiteStore) ListProjectsByTokenHash(ctx context.Context, tokenHash string) ([]*Project, error) {
	return s.queryProjects(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE token_hash = ? ORDER BY name`, tokenHash)
}

func (s *SQLiteStore) queryProjects(ctx context.Context, query string, args ...any) ([]*Project, error) {
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
func (s *SQLiteStore) UpdateProject(ctx context.Context, project *Project) error {
	project.UpdatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		UPDATE projects SET name = ?, language = ?, source_spec_url = ?, git_repo_url = ?,
			git_auth_token = ?, token_hash = ?, status = ?, updated_at = ?
		WHERE id = ?
	`, project.Name, project.Language, project.SourceSpecURL, project.GitRepoURL,
		project.GitAuthToken, project.TokenHash, project.Status, project.UpdatedAt, project.ID)

	if err != nil {
		return fmt.Errorf("updating project: %w", err)
	}

	return nil
}

// UpdateProjectStatus sets a project's status.
func (s *SQLiteStore) UpdateProjectStatus(ctx context.Context, id string, status ProjectStatus) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE projects SET status = ?, updated_at = ? WHERE id = ?
	`, status, time.Now().UTC(), id)

	if err != nil {
		return fmt.Errorf("updating project status: %w", err)
	}

	return nil
}

// DeleteProject deletes a project and, by cascade, its tasks and snapshots.
func (s *SQLiteStore) DeleteProject(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting project: %w", err)
	}

	return nil
}

func scanProject(row rowScanner) (*Project, error) {
	var project Project

	var language, specURL, repoURL, gitToken sql.NullString

	if err := row.Scan(&project.ID, &project.Name, &language, &specURL, &repoURL, &gitToken,
		&project.TokenHash, &project.Status, &project.CreatedAt, &project.UpdatedAt); err != nil {
		return nil, err
	}

	project.Language = language.String
	project.SourceSpecURL = specURL.String
	project.GitRepoURL = repoURL.String
	project.GitAuthToken = gitToken.String

	return &project, nil
}

// ============================================================================
// Tasks
// ============================================================================

const taskColumns = `id, project_id, status, stage, result, error, created_at, updated_at, completed_at`

// CreateTask creates a new task.
func (s *SQLiteStore) CreateTask(ctx context.Context, task *Task) error {
	result, err := encodeResult(task.Result)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, task.ID, task.ProjectID, task.Status, task.Stage, result, task.Error,
		task.CreatedAt, task.UpdatedAt, task.CompletedAt)

	if err != nil {
		return fmt.Errorf("inserting task: %w", err)
	}

	return nil
}

// GetTask retrieves a task by ID.
func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)

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
func (s *SQLiteStore) ListTasksByProject(ctx context.Context, projectID string, limit int) ([]*Task, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE project_id = ?
		ORDER BY created_at DESC
		LIMIT ?
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
func (s *SQLiteStore) UpdateTask(ctx context.Context, task *Task) error {
	result, err := encodeResult(task.Result)
	if err != nil {
		return err
	}

	task.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, stage = ?, result = ?, error = ?, updated_at = ?, completed_at = ?
		WHERE id = ?
	`, task.Status, task.Stage, result, task.Error, task.UpdatedAt, task.CompletedAt, task.ID)

	if err != nil {
		return fmt.Errorf("updating task: %w", err)
	}

	return nil
}

func scanTask(row rowScanner) (*Task, error) {
	var task Task

	var stage, result, errMsg sql.NullString

	var completedAt sql.NullTime

	if err := row.Scan(&task.ID, &task.ProjectID, &task.Status, &stage, &result, &errMsg,
		&task.CreatedAt, &task.UpdatedAt, &completedAt); err != nil {
		return nil, err
	}

	decoded, err := decodeResult(result)
	if err != nil {
		return nil, err
	}

	task.Stage = stage.String
	task.Result = decoded
	task.Error = errMsg.String
	task.CompletedAt = nullTime(completedAt)

	return &task, nil
}

// ============================================================================
// Snapshots
// ============================================================================

// CreateSnapshot stores a new snapshot.
func (s *SQLiteStore) CreateSnapshot(ctx context.Context, snapshot *Snapshot) error {
	raw, err := encodeSpec(snapshot.Spec)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO spec_snapshots (id, project_id, task_id, spec, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, snapshot.ID, snapshot.ProjectID, snapshot.TaskID, raw, snapshot.CreatedAt)

	if err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}

	return nil
}

// GetLatestSnapshot retrieves the most recently created snapshot of a project.
func (s *SQLiteStore) GetLatestSnapshot(ctx context.Context, projectID string) (*Snapshot, error) {
	return s.getSnapshot(ctx, `
		SELECT id, project_id, task_id, spec, created_at FROM spec_snapshots
		WHERE project_id = ?
		ORDER BY created_at DESC
		LIMIT 1
	`, projectID)
}

// GetSnapshotByTask retrieves the snapshot produced by a task.
func (s *SQLiteStore) GetSnapshotByTask(ctx context.Context, taskID string) (*Snapshot, error) {
	return s.getSnapshot(ctx, `
		SELECT id, project_id, task_id, spec, created_at FROM spec_snapshots
		WHERE task_id = ?
	`, taskID)
}

func (s *SQLiteStore) getSnapshot(ctx context.Context, query string, args ...any) (*Snapshot, error) {
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
func (s *SQLiteStore) DeleteOldSnapshots(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM spec_snapshots
		WHERE created_at < ?
		AND id NOT IN (
			SELECT s.id FROM spec_snapshots s
			WHERE s.created_at = (
				SELECT MAX(created_at) FROM spec_snapshots WHERE project_id = s.project_id
			)
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
func (s *SQLiteStore) CreateAuditEntry(ctx context.Context, entry *AuditEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, action, entity_type, entity_id, actor, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.Action, entry.EntityType, entry.EntityID, entry.Actor, entry.Details, entry.CreatedAt)

	if err != nil {
		return fmt.Errorf("inserting audit_entry: %w", err)
	}

	return nil
}

// ListAuditEntries retrieves audit entries with filtering and pagination.
func (s *SQLiteStore) ListAuditEntries(
	ctx context.Context, opts AuditQueryOpts,
) ([]*AuditEntry, int, error) {
	where, args := auditFilter(opts, func(int) string { return "?" })

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

// auditFilter builds the WHERE suffix for an audit query. placeholder renders
// the n-th bind parameter in the driver's syntax.
func auditFilter(opts AuditQueryOpts, placeholder func(n int) string) (string, []any) {
	var (
		sb   strings.Builder
		args []any
	)

	add := func(column string, value any) {
		args = append(args, value)
		sb.WriteString(fmt.Sprintf(" AND %s %s", column, placeholder(len(args))))
	}

	if opts.EntityType != nil {
		add("entity_type =", *opts.EntityType)
	}

	if opts.EntityID != nil {
		add("entity_id =", *opts.EntityID)
	}

	if opts.Action != nil {
		add("action =", *opts.Action)
	}

	if opts.Since != nil {
		add("created_at >=", *opts.Since)
	}

	return sb.String(), args
}

func auditPage(opts AuditQueryOpts) string {
	if opts.Limit <= 0 {
		return ""
	}

	page := fmt.Sprintf(" LIMIT %d", opts.Limit)

	if opts.Offset > 0 {
		page += fmt.Sprintf(" OFFSET %d", opts.Offset)
	}

	return page
}

func scanAuditEntries(rows *sql.Rows) ([]*AuditEntry, error) {
	var entries []*AuditEntry

	for rows.Next() {
		var entry AuditEntry

		var actor, details sql.NullString

		if err := rows.Scan(&entry.ID, &entry.Action, &entry.EntityType, &entry.EntityID,
			&actor, &details, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audit_entry: %w", err)
		}

		entry.Actor = actor.String
		entry.Details = details.String
		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}
