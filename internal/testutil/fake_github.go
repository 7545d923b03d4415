// Package testutil provides shared test utilities for fleetgate.
package testutil

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/dwsmith1983/fleetgate/internal/github"
)

// FakeGitHub is an in-memory GitHub Actions API served over httptest.
type FakeGitHub struct {
	Server *httptest.Server

	mu           sync.Mutex
	runs         map[string][]github.Run
	workflowRuns map[string][]github.Run
	artifacts    map[string][]github.Artifact
	archives     map[int64][]byte
	nextArtifact int64
	requests     int
}

// NewFakeGitHub starts a fake API that is closed when the test ends.
func NewFakeGitHub(t *testing.T) *FakeGitHub {
	t.Helper()
	f := &FakeGitHub{
		runs:         make(map[string][]github.Run),
		workflowRuns: make(map[string][]github.Run),
		artifacts:    make(map[string][]github.Artifact),
		archives:     make(map[int64][]byte),
		nextArtifact: 1000,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/{owner}/{name}/actions/runs/{id}", f.getRun)
	mux.HandleFunc("GET /repos/{owner}/{name}/actions/runs/{id}/artifacts", f.listArtifacts)
	mux.HandleFunc("GET /repos/{owner}/{name}/actions/workflows/{workflow}/runs", f.listWorkflowRuns)
	mux.HandleFunc("GET /repos/{owner}/{name}/actions/artifacts/{id}/zip", f.download)

	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests++
		f.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(f.Server.Close)
	return f
}

// URL is the API root to pass to github.WithBaseURL.
func (f *FakeGitHub) URL() string { return f.Server.URL }

// Requests returns the number of requests served so far.
func (f *FakeGitHub) Requests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

// AddRun registers the states a run reports on successive GETs. The last
// state repeats once the others are consumed.
func (f *FakeGitHub) AddRun(repo string, states ...github.Run) {
	if len(states) == 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[runKey(repo, states[0].ID)] = states
}

// AddWorkflowRun lists run under workflow, newest first in insertion order.
func (f *FakeGitHub) AddWorkflowRun(repo, workflow string, run github.Run) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := repo + "#" + workflow
	f.workflowRuns[key] = append(f.workflowRuns[key], run)
}

// AddReport uploads report.json inside an artifact called name for the run.
func (f *FakeGitHub) AddReport(t *testing.T, repo string, runID int64, name string, report map[string]interface{}) {
	t.Helper()
	body, err := json.Marshal(report)
	if err != nil {
		t.Fatalf("encoding report: %v", err)
	}
	f.AddArtifact(t, repo, runID, name, map[string][]byte{"report.json": body})
}

// AddArtifact uploads an artifact with the given zip members.
func (f *FakeGitHub) AddArtifact(t *testing.T, repo string, runID int64, name string, files map[string][]byte) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for member, data := range files {
		w, err := zw.Create(member)
		if err != nil {
			t.Fatalf("creating zip member: %v", err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatalf("writing zip member: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing zip: %v", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextArtifact++
	id := f.nextArtifact
	f.archives[id] = buf.Bytes()
	key := runKey(repo, runID)
	f.artifacts[key] = append(f.artifacts[key], github.Artifact{
		ID:          id,
		Name:        name,
		SizeInBytes: int64(buf.Len()),
	})
}

func (f *FakeGitHub) getRun(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	f.mu.Lock()
	key := runKey(repoOf(r), id)
	states := f.runs[key]
	var run github.Run
	if len(states) > 0 {
		run = states[0]
		if len(states) > 1 {
			f.runs[key] = states[1:]
		}
	}
	f.mu.Unlock()

	if len(states) == 0 {
		notFound(w)
		return
	}
	writeJSON(w, run)
}

func (f *FakeGitHub) listWorkflowRuns(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	runs := f.workflowRuns[repoOf(r)+"#"+r.PathValue("workflow")]
	f.mu.Unlock()

	if event := r.URL.Query().Get("event"); event != "" {
		filtered := runs[:0:0]
		for _, run := range runs {
			if run.Event == event {
				filtered = append(filtered, run)
			}
		}
		runs = filtered
	}
	if n, err := strconv.Atoi(r.URL.Query().Get("per_page")); err == nil && n < len(runs) {
		runs = runs[:n]
	}
	writeJSON(w, map[string]interface{}{"total_count": len(runs), "workflow_runs": runs})
}

func (f *FakeGitHub) listArtifacts(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	f.mu.Lock()
	arts := f.artifacts[runKey(repoOf(r), id)]
	f.mu.Unlock()
	if arts == nil {
		arts = []github.Artifact{}
	}
	writeJSON(w, map[string]interface{}{"total_count": len(arts), "artifacts": arts})
}

func (f *FakeGitHub) download(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	f.mu.Lock()
	data, found := f.archives[id]
	f.mu.Unlock()
	if !found {
		notFound(w)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	_, _ = w.Write(data)
}

func runKey(repo string, id int64) string {
	return fmt.Sprintf("%s#%d", repo, id)
}

func repoOf(r *http.Request) string {
	return r.PathValue("owner") + "/" + r.PathValue("name")
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, `{"message":"bad id"}`, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func notFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte(`{"message":"Not Found"}`))
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
