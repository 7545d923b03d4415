package github

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Run is the subset of a workflow run the engine reads.
type Run struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	DisplayTitle string    `json:"display_title"`
	Status       string    `json:"status"`
	Conclusion   string    `json:"conclusion"`
	Event        string    `json:"event"`
	HeadBranch   string    `json:"head_branch"`
	HTMLURL      string    `json:"html_url"`
	CreatedAt    time.Time `json:"created_at"`
}

// ListRunsOptions filters a workflow run listing.
type ListRunsOptions struct {
	Event   string
	Branch  string
	PerPage int
}

// Artifact is a file bundle uploaded by a workflow run.
type Artifact struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	SizeInBytes        int64  `json:"size_in_bytes"`
	Expired            bool   `json:"expired"`
	ArchiveDownloadURL string `json:"archive_download_url"`
}

// GetRun fetches a single workflow run.
func (c *Client) GetRun(ctx context.Context, repo string, runID int64) (*Run, error) {
	prefix, err := repoPath(repo)
	if err != nil {
		return nil, err
	}
	var run Run
	path := prefix + "/actions/runs/" + strconv.FormatInt(runID, 10)
	if err := c.getJSON(ctx, repo, path, nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListWorkflowRuns lists recent runs of a workflow, newest first.
// workflow is a workflow file name (e.g. "hub-ci.yml") or numeric id.
func (c *Client) ListWorkflowRuns(ctx context.Context, repo, workflow string, opts ListRunsOptions) ([]Run, error) {
	prefix, err := repoPath(repo)
	if err != nil {
		return nil, err
	}
	if workflow == "" {
		return nil, fmt.Errorf("github: workflow is required to list runs for %s", repo)
	}

	q := url.Values{}
	if opts.Event != "" {
		q.Set("event", opts.Event)
	}
	if opts.Branch != "" {
		q.Set("branch", opts.Branch)
	}
	if opts.PerPage > 0 {
		q.Set("per_page", strconv.Itoa(opts.PerPage))
	}

	var page struct {
		TotalCount   int   `json:"total_count"`
		WorkflowRuns []Run `json:"workflow_runs"`
	}
	path := prefix + "/actions/workflows/" + url.PathEscape(workflow) + "/runs"
	if err := c.getJSON(ctx, repo, path, q, &page); err != nil {
		return nil, err
	}
	return page.WorkflowRuns, nil
}

// ListRunArtifacts lists the artifacts uploaded by a run.
func (c *Client) ListRunArtifacts(ctx context.Context, repo string, runID int64) ([]Artifact, error) {
	prefix, err := repoPath(repo)
	if err != nil {
		return nil, err
	}
	var page struct {
		TotalCount int        `json:"total_count"`
		Artifacts  []Artifact `json:"artifacts"`
	}
	path := prefix + "/actions/runs/" + strconv.FormatInt(runID, 10) + "/artifacts"
	if err := c.getJSON(ctx, repo, path, url.Values{"per_page": []string{"100"}}, &page); err != nil {
		return nil, err
	}
	return page.Artifacts, nil
}

// DownloadArtifact returns the zip archive of an artifact. The API answers
// with a redirect to blob storage, which the HTTP client follows.
func (c *Client) DownloadArtifact(ctx context.Context, repo string, artifactID int64) ([]byte, error) {
	prefix, err := repoPath(repo)
	if err != nil {
		return nil, err
	}
	path := prefix + "/actions/artifacts/" + strconv.FormatInt(artifactID, 10) + "/zip"
	return c.get(ctx, repo, path, nil, "application/vnd.github+json")
}
