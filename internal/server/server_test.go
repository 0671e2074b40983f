package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/plent/internal/artifact"
	"github.com/roach88/plent/internal/dedup"
	"github.com/roach88/plent/internal/metrics"
	"github.com/roach88/plent/internal/repo"
	"github.com/roach88/plent/internal/testutil"
	"github.com/roach88/plent/internal/vcs"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupServer(t *testing.T) (*Server, *repo.Repo) {
	t.Helper()
	ctx := context.Background()
	r, err := repo.Open("designs", t.TempDir(), vcs.NewRecorder(), artifact.Msch{})
	require.NoError(t, err)
	require.NoError(t, r.Add(ctx, repo.Submission{Dir: "logic", ID: 0x3e8, Artifact: testutil.Artifact("[red]Plastanium Sorter"), Author: "ana", UserID: 42}))
	require.NoError(t, r.Add(ctx, repo.Submission{Dir: "logic", ID: 0x3e9, Artifact: testutil.Artifact("Overflow Gate"), Author: "bo", UserID: 43}))

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.Change("designs", "add")

	repos := []*repo.Repo{r}
	return New(repos, dedup.New(repos, nil), reg), r
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s, _ := setupServer(t)
	w := get(t, s, "/healthz")
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, HealthResponse{Status: "ok", Repos: 1}, resp)
}

func TestFiles(t *testing.T) {
	s, _ := setupServer(t)
	w := get(t, s, "/files")
	require.Equal(t, http.StatusOK, w.Code)

	var files []File
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &files))
	assert.Equal(t, []File{
		{Repo: "designs", Dir: "logic", ID: "3e8"},
		{Repo: "designs", Dir: "logic", ID: "3e9"},
	}, files)
}

func TestFile(t *testing.T) {
	s, r := setupServer(t)

	for _, path := range []string{"/files/3e8", "/files/3e8.msch"} {
		w := get(t, s, path)
		require.Equal(t, http.StatusOK, w.Code, path)
		want, err := r.ReadRaw("logic", 0x3e8)
		require.NoError(t, err)
		assert.Equal(t, want, w.Body.Bytes())
		assert.Contains(t, w.Header().Get("Content-Disposition"), "3e8.msch")
	}

	assert.Equal(t, http.StatusNotFound, get(t, s, "/files/abc").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, s, "/files/zz").Code)
}

func TestBlame(t *testing.T) {
	s, _ := setupServer(t)
	w := get(t, s, "/blame/3e9")
	require.Equal(t, http.StatusOK, w.Code)

	var b Blame
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))
	assert.Equal(t, Blame{Repo: "designs", ID: "3e9", Owner: "bo"}, b)
}

func TestSearch(t *testing.T) {
	s, _ := setupServer(t)

	w := get(t, s, "/search?name=plastanium%20sorter")
	require.Equal(t, http.StatusOK, w.Code)
	var hits []SearchHit
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &hits))
	require.Len(t, hits, 1)
	assert.Equal(t, "3e8", hits[0].ID)
	assert.Equal(t, "Plastanium Sorter", hits[0].Name)
	assert.Empty(t, hits[0].Link)

	w = get(t, s, "/search?name=qqqqqqqq")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	assert.Equal(t, http.StatusBadRequest, get(t, s, "/search").Code)
}

func TestMetrics(t *testing.T) {
	s, _ := setupServer(t)
	w := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `plent_repo_changes_total{action="add",repo="designs"} 1`)
}
