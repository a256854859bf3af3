package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethpandaops/specsync/pkg/store"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, secretKey string) (Service, store.Store) {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)

	st := store.NewSQLiteStore(log, filepath.Join(t.TempDir(), "auth.db"))

	ctx := context.Background()
	require.NoError(t, st.Start(ctx))
	t.Cleanup(func() { _ = st.Stop() })
	require.NoError(t, st.Migrate(ctx))

	return NewService(log, st, secretKey), st
}

func createProject(t *testing.T, st store.Store, tokenHash string) *store.Project {
	t.Helper()

	now := time.Now().UTC()
	project := &store.Project{
		ID:            uuid.New().String(),
		Name:          "proj-" + uuid.New().String()[:8],
		SourceSpecURL: "http://example.test/openapi.json",
		TokenHash:     tokenHash,
		Status:        store.ProjectStatusInit,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, st.CreateProject(context.Background(), project))

	return project
}

func TestHashAndVerifyToken(t *testing.T) {
	hash := HashToken("secret")

	assert.Len(t, hash, 64)
	assert.Equal(t, hash, HashToken("secret"))
	assert.True(t, VerifyToken("secret", hash))
	assert.False(t, VerifyToken("other", hash))
}

func TestGenerateToken(t *testing.T) {
	a, err := GenerateToken()
	require.NoError(t, err)

	b, err := GenerateToken()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.NotEmpty(t, a)
}

func TestAuthenticateProject(t *testing.T) {
	svc, st := newTestService(t, "")
	project := createProject(t, st, HashToken("good"))
	noToken := createProject(t, st, "")
	ctx := context.Background()

	got, err := svc.AuthenticateProject(ctx, project.ID, "good")
	require.NoError(t, err)
	assert.Equal(t, project.ID, got.ID)

	_, err = svc.AuthenticateProject(ctx, project.ID, "bad")
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.AuthenticateProject(ctx, project.ID, "")
	require.ErrorIs(t, err, ErrMissingToken)

	_, err = svc.AuthenticateProject(ctx, uuid.New().String(), "good")
	require.ErrorIs(t, err, ErrProjectNotFound)

	_, err = svc.AuthenticateProject(ctx, noToken.ID, "good")
	require.ErrorIs(t, err, ErrNoTokenConfigured)
}

func TestSealer(t *testing.T) {
	sealer := NewSealer("server-secret")

	sealed, err := sealer.Seal("ghp_token")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, sealedPrefix))
	assert.NotContains(t, sealed, "ghp_token")

	again, err := sealer.Seal("ghp_token")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonce must differ")

	plain, err := sealer.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "ghp_token", plain)

	_, err = NewSealer("other-secret").Open(sealed)
	require.ErrorIs(t, err, ErrUnsealable)

	_, err = NewSealer("").Open(sealed)
	require.ErrorIs(t, err, ErrUnsealable)

	legacy, err := sealer.Open("plain-token")
	require.NoError(t, err)
	assert.Equal(t, "plain-token", legacy)

	empty, err := sealer.Seal("")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSealerWithoutKey(t *testing.T) {
	sealer := NewSealer("")

	sealed, err := sealer.Seal("ghp_token")
	require.NoError(t, err)
	assert.Equal(t, "ghp_token", sealed)
}

func TestProjectMiddleware(t *testing.T) {
	svc, st := newTestService(t, "k")
	project := createProject(t, st, HashToken("good"))

	handler := ProjectMiddleware(svc, func(r *http.Request) string {
		return strings.TrimPrefix(r.URL.Path, "/projects/")
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := ProjectFromContext(r.Context())
		require.NotNil(t, p)
		_, _ = w.Write([]byte(p.ID))
	}))

	tests := []struct {
		name       string
		projectID  string
		header     string
		wantStatus int
	}{
		{name: "valid", projectID: project.ID, header: "Bearer good", wantStatus: http.StatusOK},
		{name: "raw token", projectID: project.ID, header: "good", wantStatus: http.StatusOK},
		{name: "wrong token", projectID: project.ID, header: "Bearer bad", wantStatus: http.StatusUnauthorized},
		{name: "missing token", projectID: project.ID, wantStatus: http.StatusUnauthorized},
		{name: "unknown project", projectID: uuid.New().String(), header: "Bearer good", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/projects/"+tt.projectID, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantStatus == http.StatusUnauthorized {
				assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestTokenMiddleware(t *testing.T) {
	handler := TokenMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(TokenFromContext(r.Context())))
	}))

	req := httptest.NewRequest(http.MethodGet, "/ws?token=abc", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc", rec.Body.String())

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
