package github

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/fleetgate/pkg/types"
)

func TestGetRun_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "/repos/acme/widgets/actions/runs/42", r.URL.Path)
		assert.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/vnd.github+json", r.Header.Get("Accept"))
		assert.Equal(t, apiVersion, r.Header.Get("X-GitHub-Api-Version"))

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":         42,
			"status":     "completed",
			"conclusion": "success",
			"name":       "hub-ci",
		})
	}))
	defer srv.Close()

	c := New(WithBaseURL(srv.URL), WithToken("s3cret"))
	run, err := c.GetRun(context.Background(), "acme/widgets", 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), run.ID)
	assert.Equal(t, "completed", run.Status)
	assert.Equal(t, "success", run.Conclusion)
}

func TestGetRun_NullConclusion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": 7, "status": "in_progress", "conclusion": null}`))
	}))
	defer srv.Close()

	run, err := New(WithBaseURL(srv.URL)).GetRun(context.Background(), "acme/widgets", 7)
	require.NoError(t, err)
	assert.Equal(t, "in_progress", run.Status)
	assert.Empty(t, run.Conclusion)
}

func TestGetRun_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message": "Not Found"}`))
	}))
	defer srv.Close()

	_, err := New(WithBaseURL(srv.URL)).GetRun(context.Background(), "acme/widgets", 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "Not Found", apiErr.Message)
	assert.Equal(t, types.FailurePermanent, apiErr.Category())
}

func TestGetRun_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	_, err := New(WithBaseURL(srv.URL)).GetRun(context.Background(), "acme/widgets", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding")
}

func TestInvalidRepo(t *testing.T) {
	c := New(WithBaseURL("http://127.0.0.1:1"))
	for _, repo := range []string{"", "widgets", "/widgets", "acme/", "a/b/c"} {
		_, err := c.GetRun(context.Background(), repo, 1)
		require.Error(t, err, repo)
		assert.Contains(t, err.Error(), "invalid repository")
	}
}

func TestListWorkflowRuns_Query(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/widgets/actions/workflows/hub-ci.yml/runs", r.URL.Path)
		assert.Equal(t, "workflow_dispatch", r.URL.Query().Get("event"))
		assert.Equal(t, "20", r.URL.Query().Get("per_page"))

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"total_count": 2,
			"workflow_runs": []map[string]interface{}{
				{"id": 2, "status": "queued"},
				{"id": 1, "status": "completed", "conclusion": "failure"},
			},
		})
	}))
	defer srv.Close()

	runs, err := New(WithBaseURL(srv.URL)).ListWorkflowRuns(context.Background(), "acme/widgets", "hub-ci.yml",
		ListRunsOptions{Event: "workflow_dispatch", PerPage: 20})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, int64(2), runs[0].ID)
	assert.Equal(t, "failure", runs[1].Conclusion)
}

func TestListWorkflowRuns_RequiresWorkflow(t *testing.T) {
	_, err := New().ListWorkflowRuns(context.Background(), "acme/widgets", "", ListRunsOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workflow is required")
}

func TestListRunArtifacts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/widgets/actions/runs/9/artifacts", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"total_count": 1,
			"artifacts": []map[string]interface{}{
				{"id": 100, "name": "ci-report", "size_in_bytes": 512, "expired": false},
			},
		})
	}))
	defer srv.Close()

	arts, err := New(WithBaseURL(srv.URL)).ListRunArtifacts(context.Background(), "acme/widgets", 9)
	require.NoError(t, err)
	require.Len(t, arts, 1)
	assert.Equal(t, "ci-report", arts[0].Name)
	assert.Equal(t, int64(100), arts[0].ID)
}

func TestDownloadArtifact_FollowsRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/actions/artifacts/100/zip", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/blob/100", http.StatusFound)
	})
	mux.HandleFunc("/blob/100", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("PK-zip-bytes"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	data, err := New(WithBaseURL(srv.URL)).DownloadArtifact(context.Background(), "acme/widgets", 100)
	require.NoError(t, err)
	assert.Equal(t, "PK-zip-bytes", string(data))
}

func TestBreaker_TripsOnTransientFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(WithBaseURL(srv.URL), WithBreaker(BreakerConfig{FailThreshold: 3, Cooldown: time.Hour, FailWindow: time.Hour}))
	for i := 0; i < 3; i++ {
		_, err := c.GetRun(context.Background(), "acme/widgets", 1)
		require.Error(t, err)
	}

	_, err := c.GetRun(context.Background(), "acme/widgets", 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls), "open breaker must not reach the server")
}

func TestBreaker_IsolatedPerRepo(t *testing.T) {
	var healthyCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/bad/{name}/actions/runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	mux.HandleFunc("GET /repos/good/repo/actions/runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&healthyCalls, 1)
		_, _ = w.Write([]byte(`{"id": 1, "status": "completed", "conclusion": "success"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(WithBaseURL(srv.URL), WithBreaker(BreakerConfig{FailThreshold: 2, Cooldown: time.Hour, FailWindow: time.Hour}))
	for _, repo := range []string{"bad/a", "bad/b", "bad/c", "bad/d", "bad/e"} {
		for i := 0; i < 3; i++ {
			_, err := c.GetRun(context.Background(), repo, 1)
			require.Error(t, err)
		}
		_, err := c.GetRun(context.Background(), repo, 1)
		assert.ErrorIs(t, err, gobreaker.ErrOpenState, repo)
	}

	run, err := c.GetRun(context.Background(), "good/repo", 1)
	require.NoError(t, err)
	assert.Equal(t, "completed", run.Status)
	assert.Equal(t, int32(1), atomic.LoadInt32(&healthyCalls))
}

func TestBreaker_IgnoresPermanentFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(WithBaseURL(srv.URL), WithBreaker(BreakerConfig{FailThreshold: 2, Cooldown: time.Hour}))
	for i := 0; i < 5; i++ {
		_, err := c.GetRun(context.Background(), "acme/widgets", 1)
		assert.True(t, errors.Is(err, ErrNotFound))
	}
	assert.Equal(t, int32(5), atomic.LoadInt32(&calls))
}

func TestClassifyHTTPStatus(t *testing.T) {
	assert.Equal(t, types.FailurePermanent, classifyHTTPStatus(401))
	assert.Equal(t, types.FailurePermanent, classifyHTTPStatus(404))
	assert.Equal(t, types.FailureTransient, classifyHTTPStatus(429))
	assert.Equal(t, types.FailureTransient, classifyHTTPStatus(500))
	assert.Equal(t, types.FailureTransient, classifyHTTPStatus(503))
}
