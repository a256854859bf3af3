package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethpandaops/specsync/pkg/coderag"
	"github.com/ethpandaops/specsync/pkg/config"
	"github.com/ethpandaops/specsync/pkg/lock"
	"github.com/ethpandaops/specsync/pkg/metrics"
	"github.com/ethpandaops/specsync/pkg/pipeline/mocks"
	"github.com/ethpandaops/specsync/pkg/queue"
	"github.com/ethpandaops/specsync/pkg/spec"
	"github.com/ethpandaops/specsync/pkg/store"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const (
	waitTimeout = 5 * time.Second
	waitTick    = 10 * time.Millisecond
)

const shopSpec = `{
	"openapi": "3.0.0",
	"info": {"title": "Shop", "version": "1.0.0"},
	"paths": {
		"/v1/orders": {
			"get": {"responses": {"200": {"description": "OK", "content": {"application/json": {"schema": {"type": "array", "items": {"$ref": "#/components/schemas/Order"}}}}}}}
		},
		"/v1/orders/{id}": {
			"get": {"parameters": [{"name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}}}
		},
		"/v1/orders/{id}/items": {
			"post": {"responses": {"201": {"description": "OK"}}}
		}
	},
	"components": {"schemas": {"Order": {"type": "object", "properties": {"id": {"type": "string"}}}}}
}`

const twoGroupSpec = `{
	"openapi": "3.0.0",
	"info": {"title": "Shop", "version": "1.0.0"},
	"paths": {
		"/v1/orders": {"get": {"responses": {"200": {"description": "OK"}}}},
		"/v2/users": {"get": {"responses": {"200": {"description": "OK"}}}}
	}
}`

type harness struct {
	t         *testing.T
	ctx       context.Context
	cfg       *config.Config
	store     store.Store
	queue     queue.Service
	svc       Service
	fetcher   *mocks.MockFetcher
	indexer   *mocks.MockIndexer
	annotator *mocks.MockAnnotator
	secrets   *mocks.MockSecretOpener
}

type harnessOption func(*Dependencies)

func withStore(wrap func(store.Store) store.Store) harnessOption {
	return func(d *Dependencies) {
		d.Store = wrap(d.Store)
	}
}

func withPublishers(publishers ...Publisher) harnessOption {
	return func(d *Dependencies) {
		d.Publishers = publishers
	}
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	ctrl := gomock.NewController(t)
	ctx := context.Background()

	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)

	st := store.NewSQLiteStore(log, filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, st.Start(ctx))
	t.Cleanup(func() { _ = st.Stop() })
	require.NoError(t, st.Migrate(ctx))

	cfg := &config.Config{
		Pipeline: config.PipelineConfig{
			IndexPollInterval: 5 * time.Millisecond,
			IndexTimeout:      150 * time.Millisecond,
		},
		Annotation: config.AnnotationConfig{
			SystemPrompt:  "describe the API",
			RewritePrompt: "search {language} code",
		},
		History: config.HistoryConfig{RetentionDays: -1},
	}

	m := metrics.NewWithRegisterer(prometheus.NewRegistry())
	q := queue.NewService(log, cfg, st, m)

	h := &harness{
		t:         t,
		ctx:       ctx,
		cfg:       cfg,
		store:     st,
		queue:     q,
		fetcher:   mocks.NewMockFetcher(ctrl),
		indexer:   mocks.NewMockIndexer(ctrl),
		annotator: mocks.NewMockAnnotator(ctrl),
		secrets:   mocks.NewMockSecretOpener(ctrl),
	}

	deps := Dependencies{
		Store:     st,
		Queue:     q,
		Locker:    lock.NewMemoryLocker(),
		Fetcher:   h.fetcher,
		Indexer:   h.indexer,
		Annotator: h.annotator,
		Secrets:   h.secrets,
		Metrics:   m,
	}

	for _, opt := range opts {
		opt(&deps)
	}

	h.secrets.EXPECT().OpenSecret("sealed-git-token").Return("git-token", nil).AnyTimes()

	h.svc = NewService(log, cfg, deps)
	require.NoError(t, h.svc.Start(ctx))
	t.Cleanup(func() { _ = h.svc.Stop() })

	return h
}

func (h *harness) createProject(sourceURL string) *store.Project {
	h.t.Helper()

	now := time.Now().UTC()
	project := &store.Project{
		ID:            uuid.New().String(),
		Name:          "shop-" + uuid.New().String()[:8],
		Language:      "go",
		SourceSpecURL: sourceURL,
		GitRepoURL:    "https://github.com/example/shop",
		GitAuthToken:  "sealed-git-token",
		TokenHash:     "hash",
		Status:        store.ProjectStatusInit,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(h.t, h.store.CreateProject(h.ctx, project))

	return project
}

func (h *harness) waitForTask(taskID string) *store.Task {
	h.t.Helper()

	var task *store.Task

	require.Eventually(h.t, func() bool {
		got, err := h.svc.GetTaskStatus(h.ctx, taskID)
		if err != nil {
			return false
		}

		task = got

		return got.Status.IsTerminal()
	}, waitTimeout, waitTick)

	return task
}

func (h *harness) projectStatus(projectID string) store.ProjectStatus {
	h.t.Helper()

	project, err := h.store.GetProject(h.ctx, projectID)
	require.NoError(h.t, err)
	require.NotNil(h.t, project)

	return project.Status
}

func (h *harness) expectIndexReady(project *store.Project) {
	h.indexer.EXPECT().Setup(gomock.Any(), coderag.SetupRequest{
		RepoID:      project.Name,
		RepoURL:     project.GitRepoURL,
		AccessToken: "git-token",
	}).Return(nil)

	gomock.InOrder(
		h.indexer.EXPECT().Status(gomock.Any(), project.Name).
			Return(&coderag.IndexStatus{Status: coderag.IndexStatePending}, nil),
		h.indexer.EXPECT().Status(gomock.Any(), project.Name).
			Return(&coderag.IndexStatus{Status: coderag.IndexStateCompleted}, nil),
	)
}

func parseDoc(t *testing.T, raw string) spec.Document {
	t.Helper()

	doc, err := spec.Parse([]byte(raw))
	require.NoError(t, err)

	return doc
}

// describeAll fills every operation of fragment with a generated description.
func describeAll(fragment spec.Document) spec.Document {
	out := fragment.Clone()

	for path, item := range out.Paths() {
		ops, ok := item.(map[string]any)
		if !ok {
			continue
		}

		for method, op := range ops {
			if opMap, ok := op.(map[string]any); ok {
				opMap["description"] = "generated " + strings.ToUpper(method) + " " + path
			}
		}
	}

	return out
}

func operationDescription(t *testing.T, doc spec.Document, path, method string) string {
	t.Helper()

	item, ok := doc.Paths()[path].(map[string]any)
	require.True(t, ok, "path %s missing", path)

	op, ok := item[method].(map[string]any)
	require.True(t, ok, "operation %s %s missing", method, path)

	desc, _ := op["description"].(string)

	return desc
}

func summaryOf(t *testing.T, task *store.Task) map[string]any {
	t.Helper()

	summary, ok := task.Result["summary"].(map[string]any)
	require.True(t, ok, "result has no summary: %v", task.Result)

	return summary
}

func TestFirstRunAnnotatesEverything(t *testing.T) {
	h := newHarness(t)
	project := h.createProject("http://source.test/openapi.json")

	h.fetcher.EXPECT().Fetch(gomock.Any(), project.SourceSpecURL).Return(parseDoc(t, shopSpec), nil)
	h.expectIndexReady(project)
	h.annotator.EXPECT().Annotate(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req coderag.AnnotateRequest) (spec.Document, error) {
			assert.Equal(t, project.Name, req.RepoID)
			assert.Equal(t, "describe the API", req.SystemInstructions)
			assert.Equal(t, "search go code", req.RewriteInstructions)
			assert.Len(t, req.Fragment.Paths(), 3)
			assert.Contains(t, req.Fragment.Schemas(), "Order")

			return describeAll(req.Fragment), nil
		}).Times(1)

	task, err := h.svc.TriggerRun(h.ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, store.TaskStatusPending, task.Status)

	task = h.waitForTask(task.ID)
	require.Equal(t, store.TaskStatusSuccess, task.Status, task.Error)
	assert.Equal(t, StageComplete, task.Stage)
	assert.NotNil(t, task.CompletedAt)
	assert.Contains(t, task.Result["message"], project.Name)

	summary := summaryOf(t, task)
	assert.EqualValues(t, 1, summary["batches_total"])
	assert.EqualValues(t, 0, summary["batches_failed"])
	assert.Equal(t, true, summary["first_run"])

	diff, ok := summary["diff"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 3, diff["added_paths"])
	assert.EqualValues(t, 1, diff["added_schemas"])

	assert.Equal(t, store.ProjectStatusActive, h.projectStatus(project.ID))

	snapshot, err := h.svc.GetLatestSnapshot(h.ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, snapshot.TaskID)
	assert.Equal(t, "generated GET /v1/orders", operationDescription(t, snapshot.Spec, "/v1/orders", "get"))
	assert.Equal(t, "generated GET /v1/orders/{id}", operationDescription(t, snapshot.Spec, "/v1/orders/{id}", "get"))
	assert.Equal(t, "generated POST /v1/orders/{id}/items",
		operationDescription(t, snapshot.Spec, "/v1/orders/{id}/items", "post"))
}

func TestUnchangedSourceSkipsAnnotation(t *testing.T) {
	h := newHarness(t)
	project := h.createProject("http://source.test/openapi.json")

	h.fetcher.EXPECT().Fetch(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, string) (spec.Document, error) {
			return parseDoc(t, shopSpec), nil
		}).Times(2)
	h.expectIndexReady(project)
	h.annotator.EXPECT().Annotate(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req coderag.AnnotateRequest) (spec.Document, error) {
			return describeAll(req.Fragment), nil
		}).Times(1)

	first, err := h.svc.TriggerRun(h.ctx, project.ID)
	require.NoError(t, err)
	require.Equal(t, store.TaskStatusSuccess, h.waitForTask(first.ID).Status)

	second, err := h.svc.TriggerRun(h.ctx, project.ID)
	require.NoError(t, err)

	task := h.waitForTask(second.ID)
	require.Equal(t, store.TaskStatusSuccess, task.Status, task.Error)

	summary := summaryOf(t, task)
	assert.Equal(t, true, summary["skipped"])
	assert.Equal(t, false, summary["first_run"])
	assert.EqualValues(t, 0, summary["batches_total"])

	// Descriptions generated by the first run survive through carry-forward.
	snapshot, err := h.svc.GetLatestSnapshot(h.ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, snapshot.TaskID)
	assert.Equal(t, "generated GET /v1/orders", operationDescription(t, snapshot.Spec, "/v1/orders", "get"))
}

func TestFailedBatchDoesNotAbortRun(t *testing.T) {
	h := newHarness(t)
	project := h.createProject("http://source.test/openapi.json")

	h.fetcher.EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(parseDoc(t, twoGroupSpec), nil)
	h.expectIndexReady(project)
	h.annotator.EXPECT().Annotate(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req coderag.AnnotateRequest) (spec.Document, error) {
			if _, ok := req.Fragment.Paths()["/v1/orders"]; ok {
				return nil, errors.New("annotation service returned 502")
			}

			return describeAll(req.Fragment), nil
		}).Times(2)

	task, err := h.svc.TriggerRun(h.ctx, project.ID)
	require.NoError(t, err)

	task = h.waitForTask(task.ID)
	require.Equal(t, store.TaskStatusSuccess, task.Status, task.Error)

	summary := summaryOf(t, task)
	assert.EqualValues(t, 2, summary["batches_total"])
	assert.EqualValues(t, 1, summary["batches_failed"])
	assert.Equal(t, []any{"/v1/orders"}, summary["failed_groups"])

	snapshot, err := h.svc.GetLatestSnapshot(h.ctx, project.ID)
	require.NoError(t, err)
	assert.Empty(t, operationDescription(t, snapshot.Spec, "/v1/orders", "get"))
	assert.Equal(t, "generated GET /v2/users", operationDescription(t, snapshot.Spec, "/v2/users", "get"))
	assert.Equal(t, store.ProjectStatusActive, h.projectStatus(project.ID))
}

func TestConcurrentRunsContendForLock(t *testing.T) {
	h := newHarness(t)
	project := h.createProject("http://source.test/openapi.json")

	release := make(chan struct{})

	h.fetcher.EXPECT().Fetch(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ string) (spec.Document, error) {
			select {
			case <-release:
			case <-ctx.Done():
			}

			return nil, errors.New("source unavailable")
		}).Times(1)

	first, err := h.svc.TriggerRun(h.ctx, project.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		task, err := h.svc.GetTaskStatus(h.ctx, first.ID)

		return err == nil && task.Stage == StageFetchSource
	}, waitTimeout, waitTick)

	second, err := h.svc.TriggerRun(h.ctx, project.ID)
	require.NoError(t, err)

	loser := h.waitForTask(second.ID)
	assert.Equal(t, store.TaskStatusFailed, loser.Status)
	assert.Equal(t, StageAcquireLock, loser.Stage)
	assert.Equal(t, string(KindLockContention), loser.Result["error"])
	assert.True(t, strings.HasPrefix(loser.Error, "acquire_lock: lock_contention: "), loser.Error)

	// The losing attempt must not touch the project owned by the winner.
	assert.Equal(t, store.ProjectStatusPending, h.projectStatus(project.ID))

	winner, err := h.svc.GetTaskStatus(h.ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, store.TaskStatusProcessing, winner.Status)

	close(release)

	winner = h.waitForTask(first.ID)
	assert.Equal(t, store.TaskStatusFailed, winner.Status)
	assert.Equal(t, string(KindSourceFetch), winner.Result["error"])
}

func TestRetriggerAfterTerminalTask(t *testing.T) {
	h := newHarness(t)
	project := h.createProject("http://source.test/openapi.json")

	const cycles = 100

	// Odd calls fail, even calls return a document without paths, which
	// completes without indexing.
	var calls atomic.Int64

	h.fetcher.EXPECT().Fetch(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, string) (spec.Document, error) {
			if calls.Add(1)%2 == 1 {
				return nil, errors.New("source unavailable")
			}

			return parseDoc(t, `{"openapi": "3.0.0", "paths": {}}`), nil
		}).Times(cycles)

	for i := range cycles {
		task, err := h.svc.TriggerRun(h.ctx, project.ID)
		require.NoError(t, err)

		// Poll without sleeping so the retrigger lands right after the
		// terminal transition becomes visible.
		var done *store.Task

		require.Eventually(t, func() bool {
			for range 1000 {
				got, err := h.svc.GetTaskStatus(h.ctx, task.ID)
				if err == nil && got.Status.IsTerminal() {
					done = got

					return true
				}

				runtime.Gosched()
			}

			return false
		}, waitTimeout, time.Millisecond)

		require.NotEqual(t, string(KindLockContention), done.Result["error"], "cycle %d: %s", i, done.Error)

		if i%2 == 0 {
			require.Equal(t, store.TaskStatusFailed, done.Status, "cycle %d", i)
			assert.Equal(t, store.ProjectStatusFailed, h.projectStatus(project.ID), "cycle %d", i)
		} else {
			require.Equal(t, store.TaskStatusSuccess, done.Status, "cycle %d: %s", i, done.Error)
			assert.Equal(t, store.ProjectStatusActive, h.projectStatus(project.ID), "cycle %d", i)
		}
	}
}

func TestRunFailures(t *testing.T) {
	tests := []struct {
		name      string
		sourceURL string
		setup     func(h *harness, project *store.Project)
		wantStage string
		wantKind  Kind
	}{
		{
			name:      "missing source url",
			sourceURL: "",
			setup:     func(*harness, *store.Project) {},
			wantStage: StageValidateConfig,
			wantKind:  KindConfiguration,
		},
		{
			name:      "source fetch error",
			sourceURL: "http://source.test/openapi.json",
			setup: func(h *harness, _ *store.Project) {
				h.fetcher.EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection refused"))
			},
			wantStage: StageFetchSource,
			wantKind:  KindSourceFetch,
		},
		{
			name:      "index setup rejected",
			sourceURL: "http://source.test/openapi.json",
			setup: func(h *harness, _ *store.Project) {
				h.fetcher.EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(parseDoc(h.t, shopSpec), nil)
				h.indexer.EXPECT().Setup(gomock.Any(), gomock.Any()).Return(errors.New("unknown repository"))
			},
			wantStage: StageIndexReady,
			wantKind:  KindIndexingFailed,
		},
		{
			name:      "indexing failed",
			sourceURL: "http://source.test/openapi.json",
			setup: func(h *harness, project *store.Project) {
				h.fetcher.EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(parseDoc(h.t, shopSpec), nil)
				h.indexer.EXPECT().Setup(gomock.Any(), gomock.Any()).Return(nil)
				h.indexer.EXPECT().Status(gomock.Any(), project.Name).
					Return(&coderag.IndexStatus{Status: coderag.IndexStateFailed, Message: "clone failed"}, nil)
			},
			wantStage: StageIndexReady,
			wantKind:  KindIndexingFailed,
		},
		{
			name:      "indexing timeout",
			sourceURL: "http://source.test/openapi.json",
			setup: func(h *harness, project *store.Project) {
				h.fetcher.EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(parseDoc(h.t, shopSpec), nil)
				h.indexer.EXPECT().Setup(gomock.Any(), gomock.Any()).Return(nil)
				h.indexer.EXPECT().Status(gomock.Any(), project.Name).
					Return(&coderag.IndexStatus{Status: coderag.IndexStatePending}, nil).MinTimes(2)
			},
			wantStage: StageIndexReady,
			wantKind:  KindIndexingTimeout,
		},
		{
			name:      "panicking fetcher",
			sourceURL: "http://source.test/openapi.json",
			setup: func(h *harness, _ *store.Project) {
				h.fetcher.EXPECT().Fetch(gomock.Any(), gomock.Any()).DoAndReturn(
					func(context.Context, string) (spec.Document, error) {
						panic("boom")
					})
			},
			wantStage: StageFetchSource,
			wantKind:  KindUnexpected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			project := h.createProject(tt.sourceURL)
			tt.setup(h, project)

			task, err := h.svc.TriggerRun(h.ctx, project.ID)
			require.NoError(t, err, "trigger never reflects pipeline failure")

			task = h.waitForTask(task.ID)
			assert.Equal(t, store.TaskStatusFailed, task.Status)
			assert.Equal(t, tt.wantStage, task.Stage)
			assert.Equal(t, string(tt.wantKind), task.Result["error"])
			assert.Equal(t, tt.wantStage, task.Result["stage"])
			assert.NotEmpty(t, task.Result["message"])
			assert.True(t, strings.HasPrefix(task.Error, tt.wantStage+": "+string(tt.wantKind)+": "), task.Error)
			assert.Equal(t, store.ProjectStatusFailed, h.projectStatus(project.ID))

			_, err = h.svc.GetLatestSnapshot(h.ctx, project.ID)
			require.ErrorIs(t, err, ErrSnapshotNotFound)
		})
	}
}

// vanishingStore hides the project from every lookup after the first.
type vanishingStore struct {
	store.Store
	calls atomic.Int32
}

func (s *vanishingStore) GetProject(ctx context.Context, id string) (*store.Project, error) {
	if s.calls.Add(1) > 1 {
		return nil, nil
	}

	return s.Store.GetProject(ctx, id)
}

func TestProjectDisappearsBeforeRun(t *testing.T) {
	h := newHarness(t, withStore(func(st store.Store) store.Store {
		return &vanishingStore{Store: st}
	}))
	project := h.createProject("http://source.test/openapi.json")

	task, err := h.svc.TriggerRun(h.ctx, project.ID)
	require.NoError(t, err)

	task = h.waitForTask(task.ID)
	assert.Equal(t, store.TaskStatusFailed, task.Status)
	assert.Equal(t, string(KindProjectNotFound), task.Result["error"])
	assert.Equal(t, store.ProjectStatusInit, h.projectStatus(project.ID))
}

func TestPublishFailureIsRecorded(t *testing.T) {
	ctrl := gomock.NewController(t)
	ok := mocks.NewMockPublisher(ctrl)
	broken := mocks.NewMockPublisher(ctrl)

	ok.EXPECT().Name().Return("s3").AnyTimes()
	broken.EXPECT().Name().Return("github").AnyTimes()

	h := newHarness(t, withPublishers(ok, broken))
	project := h.createProject("http://source.test/openapi.json")

	h.fetcher.EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(parseDoc(t, shopSpec), nil)
	h.expectIndexReady(project)
	h.annotator.EXPECT().Annotate(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req coderag.AnnotateRequest) (spec.Document, error) {
			return describeAll(req.Fragment), nil
		})

	ok.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, p *store.Project, snap *store.Snapshot) error {
			assert.Equal(t, project.ID, p.ID)
			assert.NotNil(t, snap.Spec)

			return nil
		})
	broken.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("403 forbidden"))

	task, err := h.svc.TriggerRun(h.ctx, project.ID)
	require.NoError(t, err)

	task = h.waitForTask(task.ID)
	require.Equal(t, store.TaskStatusSuccess, task.Status, task.Error)

	publishErrors, isMap := summaryOf(t, task)["publish_errors"].(map[string]any)
	require.True(t, isMap)
	assert.Equal(t, "403 forbidden", publishErrors["github"])
	assert.NotContains(t, publishErrors, "s3")
}

func TestTriggerRunUnknownProject(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.TriggerRun(h.ctx, uuid.New().String())
	require.ErrorIs(t, err, ErrProjectNotFound)
}

func TestGetTaskStatusUnknownTask(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.GetTaskStatus(h.ctx, uuid.New().String())
	require.ErrorIs(t, err, queue.ErrTaskNotFound)
}

func TestTriggerRunAfterStop(t *testing.T) {
	h := newHarness(t)
	project := h.createProject("http://source.test/openapi.json")

	require.NoError(t, h.svc.Stop())

	_, err := h.svc.TriggerRun(h.ctx, project.ID)
	require.ErrorIs(t, err, ErrNotRunning)
}

func TestRunsAreAudited(t *testing.T) {
	h := newHarness(t)
	project := h.createProject("")

	task, err := h.svc.TriggerRun(h.ctx, project.ID)
	require.NoError(t, err)
	h.waitForTask(task.ID)

	entityType := store.AuditEntityTask

	require.Eventually(t, func() bool {
		entries, _, err := h.store.ListAuditEntries(h.ctx, store.AuditQueryOpts{
			EntityType: &entityType,
			EntityID:   &task.ID,
		})

		return err == nil && len(entries) == 2
	}, waitTimeout, waitTick)
}
