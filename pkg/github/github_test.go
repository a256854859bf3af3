package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ethpandaops/specsync/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRepo serves the subset of the GitHub REST API the client uses.
type fakeRepo struct {
	mu    sync.Mutex
	files map[string][]byte
	puts  []map[string]any
}

func (f *fakeRepo) handler(t *testing.T) http.Handler {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("GET /rate_limit", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer gh-token", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"resources":{"core":{"limit":5000,"remaining":4999,"reset":1700000000}}}`))
	})

	mux.HandleFunc("GET /repos/{owner}/{repo}/contents/{path...}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		content, ok := f.files[r.PathValue("path")]
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-RateLimit-Remaining", "4990")

		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"Not Found"}`))

			return
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"type":     "file",
			"encoding": "base64",
			"path":     r.PathValue("path"),
			"sha":      "blob-sha",
			"content":  base64.StdEncoding.EncodeToString(content),
		})
	})

	mux.HandleFunc("PUT /repos/{owner}/{repo}/contents/{path...}", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		decoded, err := base64.StdEncoding.DecodeString(body["content"].(string))
		require.NoError(t, err)

		f.mu.Lock()
		f.files[r.PathValue("path")] = decoded
		f.puts = append(f.puts, body)
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"commit":{"sha":"commit-sha","html_url":"https://github.test/commit/commit-sha"}}`))
	})

	return mux
}

func newTestClient(t *testing.T, repo *fakeRepo) (Client, *metrics.Metrics) {
	t.Helper()

	srv := httptest.NewServer(repo.handler(t))
	t.Cleanup(srv.Close)

	m := metrics.NewWithRegisterer(prometheus.NewRegistry())
	c := NewClient(logrus.New(), Options{Token: "gh-token", BaseURL: srv.URL}, m)

	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { _ = c.Stop() })

	return c, m
}

func TestStartRecordsRateLimit(t *testing.T) {
	c, m := newTestClient(t, &fakeRepo{files: map[string][]byte{}})

	assert.Equal(t, 4999, c.RateLimitRemaining())
	assert.Equal(t, int64(1700000000), c.RateLimitReset().Unix())
	assert.InDelta(t, 4999, testutil.ToFloat64(m.GitHubRateLimitRemaining), 0)
}

func TestGetFile(t *testing.T) {
	repo := &fakeRepo{files: map[string][]byte{"docs/openapi.json": []byte(`{"openapi":"3.0.0"}`)}}
	c, m := newTestClient(t, repo)
	ctx := context.Background()

	file, err := c.GetFile(ctx, "acme", "shop", "docs/openapi.json", "main")
	require.NoError(t, err)
	require.NotNil(t, file)
	assert.Equal(t, "blob-sha", file.SHA)
	assert.JSONEq(t, `{"openapi":"3.0.0"}`, string(file.Content))
	assert.Equal(t, 4990, c.RateLimitRemaining())

	missing, err := c.GetFile(ctx, "acme", "shop", "docs/missing.json", "")
	require.NoError(t, err)
	assert.Nil(t, missing)

	assert.InDelta(t, 2, testutil.ToFloat64(m.GitHubAPIRequestsTotal.WithLabelValues("get_contents")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.GitHubAPIErrorsTotal.WithLabelValues("get_contents")), 0)
}

func TestPutFile(t *testing.T) {
	repo := &fakeRepo{files: map[string][]byte{}}
	c, _ := newTestClient(t, repo)
	ctx := context.Background()

	commit, err := c.PutFile(ctx, PutFileRequest{
		Owner:   "acme",
		Repo:    "shop",
		Path:    "docs/openapi.json",
		Branch:  "docs",
		Message: "update docs",
		Content: []byte(`{}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "commit-sha", commit.SHA)

	_, err = c.PutFile(ctx, PutFileRequest{
		Owner:   "acme",
		Repo:    "shop",
		Path:    "docs/openapi.json",
		Message: "update docs",
		Content: []byte(`{"a":1}`),
		SHA:     "blob-sha",
	})
	require.NoError(t, err)

	repo.mu.Lock()
	defer repo.mu.Unlock()

	require.Len(t, repo.puts, 2)
	assert.Equal(t, "docs", repo.puts[0]["branch"])
	assert.NotContains(t, repo.puts[0], "sha")
	assert.Equal(t, "blob-sha", repo.puts[1]["sha"])
	assert.Equal(t, `{"a":1}`, string(repo.files["docs/openapi.json"]))
}

func TestParseRepository(t *testing.T) {
	tests := []struct {
		in        string
		owner     string
		repo      string
		wantError bool
	}{
		{in: "https://github.com/acme/shop", owner: "acme", repo: "shop"},
		{in: "https://github.com/acme/shop.git", owner: "acme", repo: "shop"},
		{in: "https://github.com/acme/shop/", owner: "acme", repo: "shop"},
		{in: "git@github.com:acme/shop.git", owner: "acme", repo: "shop"},
		{in: "https://github.com/acme", wantError: true},
		{in: "/srv/repos/shop", wantError: true},
		{in: "git@github.com", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			owner, repo, err := ParseRepository(tt.in)
			if tt.wantError {
				require.ErrorIs(t, err, ErrInvalidRepository)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.owner, owner)
			assert.Equal(t, tt.repo, repo)
		})
	}
}
