package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ethpandaops/specsync/pkg/api/docs"
	"github.com/ethpandaops/specsync/pkg/auth"
	"github.com/ethpandaops/specsync/pkg/config"
	"github.com/ethpandaops/specsync/pkg/metrics"
	"github.com/ethpandaops/specsync/pkg/pipeline"
	"github.com/ethpandaops/specsync/pkg/queue"
	"github.com/ethpandaops/specsync/pkg/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const (
	auditActor = "api"

	defaultListLimit = 20
	maxListLimit     = 100

	minBearerTokenLength = 10
	maxNameLength        = 255
	maxURLLength         = 512
)

// Server is the HTTP API server.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
}

// server implements Server.
type server struct {
	log      logrus.FieldLogger
	cfg      *config.Config
	store    store.Store
	pipeline pipeline.Service
	queue    queue.Service
	auth     auth.Service
	metrics  *metrics.Metrics
	hub      *Hub
	srv      *http.Server
	router   chi.Router

	// Rate limiters for different endpoint tiers.
	publicRateLimiter  *IPRateLimiter
	triggerRateLimiter *IPRateLimiter
}

// Ensure server implements Server.
var _ Server = (*server)(nil)

// NewServer creates a new API server.
func NewServer(
	log logrus.FieldLogger,
	cfg *config.Config,
	st store.Store,
	pl pipeline.Service,
	q queue.Service,
	authSvc auth.Service,
	m *metrics.Metrics,
) Server {
	hub := NewHub(log, authSvc)

	s := &server{
		log:      log.WithField("component", "api"),
		cfg:      cfg,
		store:    st,
		pipeline: pl,
		queue:    q,
		auth:     authSvc,
		metrics:  m,
		hub:      hub,
	}

	// Initialize rate limiters if enabled.
	if cfg.Server.RateLimit.Enabled {
		rl := cfg.Server.RateLimit
		s.publicRateLimiter = NewIPRateLimiter(rl.Public.RequestsPerMinute, rl.Public.Burst)
		s.triggerRateLimiter = NewIPRateLimiter(rl.Trigger.RequestsPerMinute, rl.Trigger.Burst)

		log.WithFields(logrus.Fields{
			"public_rpm":  rl.Public.RequestsPerMinute,
			"trigger_rpm": rl.Trigger.RequestsPerMinute,
		}).Info("Rate limiting enabled")
	}

	// Set up callback to broadcast task state changes via WebSocket.
	q.SetTaskChangeCallback(func(task *store.Task) {
		hub.BroadcastTaskState(task)
	})

	s.setupRouter()

	return s
}

// Start starts the HTTP server.
func (s *server) Start(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              s.cfg.Server.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.WithField("addr", s.cfg.Server.Listen).Info("Starting API server")

	go s.hub.Run(ctx)

	for _, rl := range []*IPRateLimiter{s.publicRateLimiter, s.triggerRateLimiter} {
		if rl != nil {
			go rl.Run(ctx)
		}
	}

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("Server error")
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *server) Stop() error {
	if s.srv == nil {
		return nil
	}

	s.log.Info("Stopping API server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.srv.Shutdown(ctx)
}

func (s *server) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(s.metricsMiddleware)

	if len(s.cfg.Server.CORSOrigins) > 0 {
		r.Use(corsMiddleware(s.cfg.Server.CORSOrigins))
	}

	projectID := func(r *http.Request) string { return chi.URLParam(r, "id") }

	// Public endpoints.
	r.Group(func(r chi.Router) {
		if s.publicRateLimiter != nil {
			r.Use(s.publicRateLimiter.Middleware)
		}

		r.Get("/health", s.handleHealth)
		r.Handle("/metrics", promhttp.Handler())
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if s.publicRateLimiter != nil {
				r.Use(s.publicRateLimiter.Middleware)
			}

			r.Get("/openapi.json", s.handleOpenAPISpec)
			r.Get("/ws", s.handleWebSocket)
			r.With(middleware.Timeout(60*time.Second)).Get("/projects/{id}/openapi", s.handleGetDocument)
		})

		// Token holders.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			r.Use(auth.TokenMiddleware())

			if s.publicRateLimiter != nil {
				r.Use(s.publicRateLimiter.Middleware)
			}

			r.Get("/projects", s.handleListProjects)
			r.Get("/tasks/{id}", s.handleGetTask)

			r.Group(func(r chi.Router) {
				if s.triggerRateLimiter != nil {
					r.Use(s.triggerRateLimiter.Middleware)
				}

				r.Post("/projects", s.handleCreateProject)
			})

			// Owner of the project named in the path.
			r.Group(func(r chi.Router) {
				r.Use(auth.ProjectMiddleware(s.auth, projectID))

				r.Get("/projects/{id}", s.handleGetProject)
				r.Put("/projects/{id}", s.handleUpdateProject)
				r.Delete("/projects/{id}", s.handleDeleteProject)
				r.Get("/projects/{id}/tasks", s.handleListTasks)
				r.Get("/projects/{id}/audit", s.handleListAudit)

				r.Group(func(r chi.Router) {
					if s.triggerRateLimiter != nil {
						r.Use(s.triggerRateLimiter.Middleware)
					}

					r.Post("/projects/{id}/generate", s.handleGenerate)
				})
			})
		})
	})

	s.router = r
}

// metricsMiddleware records request counts and latency by route pattern.
func (s *server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		s.metrics.RecordHTTPRequest(r.Method, route, strconv.Itoa(status), time.Since(started).Seconds())
	})
}

// corsMiddleware adds CORS headers to responses.
func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	allowAll := len(origins) == 1 && origins[0] == "*"

	originSet := make(map[string]bool, len(origins))
	for _, origin := range origins {
		originSet[origin] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if allowAll || originSet[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ============================================================================
// Response helpers
// ============================================================================

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error string `json:"error" example:"Something went wrong"`
}

// RateLimitErrorResponse is returned when rate limit is exceeded.
type RateLimitErrorResponse struct {
	Error string `json:"error" example:"rate limit exceeded"`
}

func (s *server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.WithError(err).Error("Failed to encode JSON response")
	}
}

func (s *server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, ErrorResponse{Error: message})
}

func (s *server) audit(ctx context.Context, action store.AuditAction, project *store.Project, details string) {
	entry := &store.AuditEntry{
		ID:         uuid.New().String(),
		Action:     action,
		EntityType: store.AuditEntityProject,
		EntityID:   project.ID,
		Actor:      auditActor,
		Details:    details,
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.store.CreateAuditEntry(ctx, entry); err != nil {
		s.log.WithError(err).WithField("action", action).Warn("Failed to write audit entry")
	}
}

// listWindow reads limit and offset query parameters.
func listWindow(r *http.Request) (limit, offset int) {
	limit = defaultListLimit

	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = min(v, maxListLimit)
	}

	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		offset = v
	}

	return limit, offset
}

func validURL(raw string) bool {
	if raw == "" || len(raw) > maxURLLength {
		return false
	}

	u, err := url.Parse(raw)

	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// ============================================================================
// System
// ============================================================================

// HealthResponse is the response for the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status" example:"ok"`
	Database  string `json:"database" example:"ok"`
	Websocket int    `json:"websocket_clients" example:"2"`
}

// handleOpenAPISpec godoc
//
//	@Summary		API specification
//	@Description	Returns the specification of this API
//	@Tags			system
//	@Produce		json
//	@Success		200	{object}	object	"API specification"
//	@Router			/openapi.json [get]
func (s *server) handleOpenAPISpec(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(docs.SwaggerInfo.ReadDoc()))
}

// handleHealth godoc
//
//	@Summary		Health check
//	@Description	Returns the health status of the API server and its database
//	@Tags			system
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Failure		503	{object}	HealthResponse
//	@Failure		429	{object}	RateLimitErrorResponse	"Rate limit exceeded"
//	@Router			/health [get]
func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Database:  "ok",
		Websocket: s.hub.ClientCount(),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if _, err := s.store.GetProject(ctx, "health-check"); err != nil {
		s.log.WithError(err).Warn("Health check database query failed")

		resp.Status = "degraded"
		resp.Database = "unavailable"

		s.writeJSON(w, http.StatusServiceUnavailable, resp)

		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// handleWebSocket godoc
//
//	@Summary		WebSocket connection
//	@Description	Streams task state changes for the projects a client subscribes to
//	@Tags			websocket
//	@Param			token	query	string	false	"Project bearer token"
//	@Success		101		"WebSocket connection established"
//	@Failure		401		{object}	ErrorResponse
//	@Router			/ws [get]
func (s *server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ServeWs(s.hub, s.cfg.Server.CORSOrigins, w, r)
}

// ============================================================================
// Projects
// ============================================================================

// CreateProjectRequest is the request body for registering a project. The
// request's bearer token becomes the project's token.
type CreateProjectRequest struct {
	Name          string `json:"name" example:"petstore"`
	Language      string `json:"language" example:"go"`
	SourceSpecURL string `json:"source_spec_url" example:"https://petstore.example/openapi.json"`
	GitRepoURL    string `json:"git_repo_url" example:"https://github.com/acme/petstore"`
	GitAuthToken  string `json:"git_auth_token,omitempty" example:"ghp_xxx"`
}

// ProjectCreatedResponse is returned after registering a project.
type ProjectCreatedResponse struct {
	*store.Project
	TaskID  string `json:"task_id" example:"0b6f3f0e-5f43-4c55-9b0c-9c1f3c1c2b8e"`
	Message string `json:"message" example:"Documentation generation started for project petstore"`
}

// UpdateProjectRequest is the request body for updating a project. Absent
// fields are left unchanged.
type UpdateProjectRequest struct {
	Name          *string `json:"name,omitempty" example:"petstore"`
	Language      *string `json:"language,omitempty" example:"go"`
	SourceSpecURL *string `json:"source_spec_url,omitempty"`
	GitRepoURL    *string `json:"git_repo_url,omitempty"`
	GitAuthToken  *string `json:"git_auth_token,omitempty"`
	BearerToken   *string `json:"bearer_token,omitempty"`
}

// RunAcceptedResponse is returned when a run has been scheduled.
type RunAcceptedResponse struct {
	Message string `json:"message" example:"Documentation generation started"`
	TaskID  string `json:"task_id" example:"0b6f3f0e-5f43-4c55-9b0c-9c1f3c1c2b8e"`
}

// handleCreateProject godoc
//
//	@Summary		Register project
//	@Description	Registers a project owned by the request's bearer token and starts its first run
//	@Tags			projects
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateProjectRequest	true	"Project"
//	@Success		201		{object}	ProjectCreatedResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		401		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Failure		429		{object}	RateLimitErrorResponse	"Rate limit exceeded"
//	@Router			/projects [post]
func (s *server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")

		return
	}

	switch {
	case req.Name == "" || len(req.Name) > maxNameLength:
		s.writeError(w, http.StatusBadRequest, "name must be between 1 and 255 characters")

		return
	case !validURL(req.SourceSpecURL):
		s.writeError(w, http.StatusBadRequest, "source_spec_url must be an http(s) URL")

		return
	case req.GitRepoURL == "" || len(req.GitRepoURL) > maxURLLength:
		s.writeError(w, http.StatusBadRequest, "git_repo_url is required")

		return
	}

	existing, err := s.store.GetProjectByName(ctx, req.Name)
	if err != nil {
		s.log.WithError(err).Error("Failed to look up project name")
		s.writeError(w, http.StatusInternalServerError, "Failed to create project")

		return
	}

	if existing != nil {
		s.writeError(w, http.StatusConflict, "Project name already registered")

		return
	}

	sealed, err := s.auth.SealSecret(req.GitAuthToken)
	if err != nil {
		s.log.WithError(err).Error("Failed to seal git token")
		s.writeError(w, http.StatusInternalServerError, "Failed to create project")

		return
	}

	now := time.Now().UTC()
	project := &store.Project{
		ID:            uuid.New().String(),
		Name:          req.Name,
		Language:      req.Language,
		SourceSpecURL: req.SourceSpecURL,
		GitRepoURL:    req.GitRepoURL,
		GitAuthToken:  sealed,
		TokenHash:     auth.HashToken(auth.TokenFromContext(ctx)),
		Status:        store.ProjectStatusInit,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.store.CreateProject(ctx, project); err != nil {
		s.log.WithError(err).Error("Failed to create project")
		s.writeError(w, http.StatusInternalServerError, "Failed to create project")

		return
	}

	s.audit(ctx, store.AuditActionProjectCreated, project, fmt.Sprintf("project %s registered", project.Name))

	task, err := s.pipeline.TriggerRun(ctx, project.ID)
	if err != nil {
		s.log.WithError(err).WithField("project_id", project.ID).Error("Failed to start first run")
		s.writeError(w, http.StatusInternalServerError, "Project created but generation could not be started")

		return
	}

	s.writeJSON(w, http.StatusCreated, ProjectCreatedResponse{
		Project: project,
		TaskID:  task.ID,
		Message: fmt.Sprintf("Documentation generation started for project %s", project.Name),
	})
}

// handleListProjects godoc
//
//	@Summary		List projects
//	@Description	Returns the projects owned by the request's bearer token
//	@Tags			projects
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{array}		store.Project
//	@Failure		401	{object}	ErrorResponse
//	@Router			/projects [get]
func (s *server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	projects, err := s.store.ListProjectsByTokenHash(ctx, auth.HashToken(auth.TokenFromContext(ctx)))
	if err != nil {
		s.log.WithError(err).Error("Failed to list projects")
		s.writeError(w, http.StatusInternalServerError, "Failed to list projects")

		return
	}

	if projects == nil {
		projects = []*store.Project{}
	}

	s.writeJSON(w, http.StatusOK, projects)
}

// handleGetProject godoc
//
//	@Summary		Get project
//	@Description	Returns a single project
//	@Tags			projects
//	@Security		BearerAuth
//	@Produce		json
//	@Param			id	path		string	true	"Project ID"
//	@Success		200	{object}	store.Project
//	@Failure		401	{object}	ErrorResponse
//	@Failure		404	{object}	ErrorResponse
//	@Router			/projects/{id} [get]
func (s *server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, auth.ProjectFromContext(r.Context()))
}

// handleUpdateProject godoc
//
//	@Summary		Update project
//	@Description	Updates project settings or rotates its bearer token
//	@Tags			projects
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string					true	"Project ID"
//	@Param			body	body		UpdateProjectRequest	true	"Project updates"
//	@Success		200		{object}	store.Project
//	@Failure		400		{object}	ErrorResponse
//	@Failure		401		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Router			/projects/{id} [put]
func (s *server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	project := auth.ProjectFromContext(ctx)

	var req UpdateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")

		return
	}

	updated := *project

	if req.Name != nil && *req.Name != project.Name {
		if *req.Name == "" || len(*req.Name) > maxNameLength {
			s.writeError(w, http.StatusBadRequest, "name must be between 1 and 255 characters")

			return
		}

		other, err := s.store.GetProjectByName(ctx, *req.Name)
		if err != nil {
			s.log.WithError(err).Error("Failed to look up project name")
			s.writeError(w, http.StatusInternalServerError, "Failed to update project")

			return
		}

		if other != nil {
			s.writeError(w, http.StatusConflict, "Project name already registered")

			return
		}

		updated.Name = *req.Name
	}

	if req.Language != nil {
		updated.Language = *req.Language
	}

	if req.SourceSpecURL != nil {
		if !validURL(*req.SourceSpecURL) {
			s.writeError(w, http.StatusBadRequest, "source_spec_url must be an http(s) URL")

			return
		}

		updated.SourceSpecURL = *req.SourceSpecURL
	}

	if req.GitRepoURL != nil {
		if *req.GitRepoURL == "" || len(*req.GitRepoURL) > maxURLLength {
			s.writeError(w, http.StatusBadRequest, "git_repo_url must not be empty")

			return
		}

		updated.GitRepoURL = *req.GitRepoURL
	}

	if req.GitAuthToken != nil {
		sealed, err := s.auth.SealSecret(*req.GitAuthToken)
		if err != nil {
			s.log.WithError(err).Error("Failed to seal git token")
			s.writeError(w, http.StatusInternalServerError, "Failed to update project")

			return
		}

		updated.GitAuthToken = sealed
	}

	if req.BearerToken != nil {
		if len(*req.BearerToken) < minBearerTokenLength {
			s.writeError(w, http.StatusBadRequest, "bearer_token must be at least 10 characters")

			return
		}

		updated.TokenHash = auth.HashToken(*req.BearerToken)
	}

	if err := s.store.UpdateProject(ctx, &updated); err != nil {
		s.log.WithError(err).Error("Failed to update project")
		s.writeError(w, http.StatusInternalServerError, "Failed to update project")

		return
	}

	s.audit(ctx, store.AuditActionProjectUpdated, &updated, fmt.Sprintf("project %s updated", updated.Name))

	s.writeJSON(w, http.StatusOK, &updated)
}

// handleDeleteProject godoc
//
//	@Summary		Delete project
//	@Description	Deletes a project with its tasks and documents
//	@Tags			projects
//	@Security		BearerAuth
//	@Produce		json
//	@Param			id	path		string	true	"Project ID"
//	@Success		200	{object}	store.Project
//	@Failure		401	{object}	ErrorResponse
//	@Failure		404	{object}	ErrorResponse
//	@Router			/projects/{id} [delete]
func (s *server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	project := auth.ProjectFromContext(ctx)

	if err := s.store.DeleteProject(ctx, project.ID); err != nil {
		s.log.WithError(err).Error("Failed to delete project")
		s.writeError(w, http.StatusInternalServerError, "Failed to delete project")

		return
	}

	s.audit(ctx, store.AuditActionProjectDeleted, project, fmt.Sprintf("project %s deleted", project.Name))

	s.writeJSON(w, http.StatusOK, project)
}

// handleGenerate godoc
//
//	@Summary		Regenerate documentation
//	@Description	Schedules a pipeline run for the project
//	@Tags			projects
//	@Security		BearerAuth
//	@Produce		json
//	@Param			id	path		string	true	"Project ID"
//	@Success		202	{object}	RunAcceptedResponse
//	@Failure		401	{object}	ErrorResponse
//	@Failure		404	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Failure		429	{object}	RateLimitErrorResponse	"Rate limit exceeded"
//	@Router			/projects/{id}/generate [post]
func (s *server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	project := auth.ProjectFromContext(r.Context())

	task, err := s.pipeline.TriggerRun(r.Context(), project.ID)
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrProjectNotFound):
			s.writeError(w, http.StatusNotFound, "Project not found")
		case errors.Is(err, pipeline.ErrNotRunning):
			s.writeError(w, http.StatusServiceUnavailable, "Pipeline is shutting down")
		default:
			s.log.WithError(err).Error("Failed to trigger run")
			s.writeError(w, http.StatusInternalServerError, "Failed to trigger run")
		}

		return
	}

	s.writeJSON(w, http.StatusAccepted, RunAcceptedResponse{
		Message: "Documentation generation started",
		TaskID:  task.ID,
	})
}

// ============================================================================
// Tasks
// ============================================================================

// handleGetTask godoc
//
//	@Summary		Get task
//	@Description	Returns a pipeline run of a project owned by the bearer token
//	@Tags			tasks
//	@Security		BearerAuth
//	@Produce		json
//	@Param			id	path		string	true	"Task ID"
//	@Success		200	{object}	store.Task
//	@Failure		401	{object}	ErrorResponse
//	@Failure		404	{object}	ErrorResponse
//	@Router			/tasks/{id} [get]
func (s *server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	task, err := s.pipeline.GetTaskStatus(ctx, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, queue.ErrTaskNotFound) {
			s.writeError(w, http.StatusNotFound, "Task not found")

			return
		}

		s.log.WithError(err).Error("Failed to get task")
		s.writeError(w, http.StatusInternalServerError, "Failed to get task")

		return
	}

	if _, err := s.auth.AuthenticateProject(ctx, task.ProjectID, auth.TokenFromContext(ctx)); err != nil {
		switch {
		case errors.Is(err, auth.ErrProjectNotFound):
			s.writeError(w, http.StatusNotFound, "Task not found")
		case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrNoTokenConfigured):
			w.Header().Set("WWW-Authenticate", "Bearer")
			s.writeError(w, http.StatusUnauthorized, "Token does not own this task")
		default:
			s.log.WithError(err).Error("Failed to authenticate task owner")
			s.writeError(w, http.StatusInternalServerError, "Failed to get task")
		}

		return
	}

	s.writeJSON(w, http.StatusOK, task)
}

// handleListTasks godoc
//
//	@Summary		List tasks
//	@Description	Returns the most recent pipeline runs of a project
//	@Tags			tasks
//	@Security		BearerAuth
//	@Produce		json
//	@Param			id		path		string	true	"Project ID"
//	@Param			limit	query		int		false	"Maximum number of tasks (default 20, max 100)"
//	@Success		200		{array}		store.Task
//	@Failure		401		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Router			/projects/{id}/tasks [get]
func (s *server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	project := auth.ProjectFromContext(r.Context())
	limit, _ := listWindow(r)

	tasks, err := s.queue.ListByProject(r.Context(), project.ID, limit)
	if err != nil {
		s.log.WithError(err).Error("Failed to list tasks")
		s.writeError(w, http.StatusInternalServerError, "Failed to list tasks")

		return
	}

	if tasks == nil {
		tasks = []*store.Task{}
	}

	s.writeJSON(w, http.StatusOK, tasks)
}

// AuditResponse is a page of audit entries.
type AuditResponse struct {
	Entries []*store.AuditEntry `json:"entries"`
	Total   int                 `json:"total" example:"42"`
	Limit   int                 `json:"limit" example:"20"`
	Offset  int                 `json:"offset" example:"0"`
}

// handleListAudit godoc
//
//	@Summary		Project audit log
//	@Description	Returns changes made to a project
//	@Tags			projects
//	@Security		BearerAuth
//	@Produce		json
//	@Param			id		path		string	true	"Project ID"
//	@Param			limit	query		int		false	"Page size (default 20, max 100)"
//	@Param			offset	query		int		false	"Page offset"
//	@Success		200		{object}	AuditResponse
//	@Failure		401		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Router			/projects/{id}/audit [get]
func (s *server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	project := auth.ProjectFromContext(r.Context())
	limit, offset := listWindow(r)
	entityType := store.AuditEntityProject

	entries, total, err := s.store.ListAuditEntries(r.Context(), store.AuditQueryOpts{
		EntityType: &entityType,
		EntityID:   &project.ID,
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		s.log.WithError(err).Error("Failed to list audit entries")
		s.writeError(w, http.StatusInternalServerError, "Failed to list audit entries")

		return
	}

	if entries == nil {
		entries = []*store.AuditEntry{}
	}

	s.writeJSON(w, http.StatusOK, AuditResponse{
		Entries: entries,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	})
}

// ============================================================================
// Documents
// ============================================================================

// handleGetDocument godoc
//
//	@Summary		Latest document
//	@Description	Returns the most recent annotated OpenAPI document of a project
//	@Tags			documents
//	@Produce		json
//	@Param			id	path		string	true	"Project ID"
//	@Success		200	{object}	object	"OpenAPI document"
//	@Failure		404	{object}	ErrorResponse
//	@Router			/projects/{id}/openapi [get]
func (s *server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.pipeline.GetLatestSnapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, pipeline.ErrSnapshotNotFound) {
			s.writeError(w, http.StatusNotFound, "No OpenAPI document found for this project")

			return
		}

		s.log.WithError(err).Error("Failed to get latest snapshot")
		s.writeError(w, http.StatusInternalServerError, "Failed to get document")

		return
	}

	w.Header().Set("X-Specsync-Task", snapshot.TaskID)
	s.writeJSON(w, http.StatusOK, snapshot.Spec)
}
