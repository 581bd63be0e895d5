package client

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// API paths.
const (
	PathProtonate = "/api/v1/protonate"
	PathJobs      = "/api/v1/jobs"
	PathRuns      = "/api/v1/runs"
	PathReady     = "/readyz"
)

const contentTypePDB = "chemical/x-pdb"

// Run is the ledger entry of one protonated structure.
type Run struct {
	ID             string         `json:"id"`
	BatchID        string         `json:"batch_id"`
	Structure      string         `json:"structure"`
	Outcome        string         `json:"outcome"`
	Flip           bool           `json:"flip"`
	His            bool           `json:"his"`
	Requested      int            `json:"requested"`
	Added          int            `json:"added"`
	Skipped        int            `json:"skipped"`
	SkippedBy      map[string]int `json:"skipped_by,omitempty"`
	ErrorCode      string         `json:"error_code,omitempty"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	EngineDuration time.Duration  `json:"engine_duration"`
	Cached         bool           `json:"cached"`
	StartedAt      time.Time      `json:"started_at"`
	FinishedAt     time.Time      `json:"finished_at"`
}

// ProtonateOptions overrides the server's engine defaults.  Nil keeps the
// default.
type ProtonateOptions struct {
	Flip *bool
	His  *bool
}

// ProtonateResult is the protonated document and its run.
type ProtonateResult struct {
	PDB []byte
	Run *Run
}

// Job is a queued protonation of a stored structure.
type Job struct {
	JobID     string    `json:"job_id"`
	Topic     string    `json:"topic"`
	Bucket    string    `json:"bucket"`
	ObjectKey string    `json:"object_key"`
	OutputKey string    `json:"output_key"`
	QueuedAt  time.Time `json:"queued_at"`
}

// JobRequest asks for bucket/objectKey to be protonated by the worker.
// Empty Bucket and OutputKey take the server defaults.
type JobRequest struct {
	Bucket    string `json:"bucket,omitempty"`
	ObjectKey string `json:"object_key"`
	OutputKey string `json:"output_key,omitempty"`
	Flip      *bool  `json:"flip,omitempty"`
	His       *bool  `json:"his,omitempty"`
}

type protonateBody struct {
	Name string `json:"name"`
	PDB  string `json:"pdb"`
	Flip *bool  `json:"flip,omitempty"`
	His  *bool  `json:"his,omitempty"`
}

type protonateAnswer struct {
	Run *Run   `json:"run"`
	PDB string `json:"pdb"`
}

type runList struct {
	Runs  []*Run `json:"runs"`
	Count int    `json:"count"`
}

// Protonate sends pdb as JSON and returns the protonated document.
func (c *Client) Protonate(ctx context.Context, name string, pdb []byte, opts ProtonateOptions) (*ProtonateResult, error) {
	var ans protonateAnswer
	body := protonateBody{Name: name, PDB: string(pdb), Flip: opts.Flip, His: opts.His}
	if err := c.post(ctx, PathProtonate, body, &ans); err != nil {
		return nil, err
	}
	return &ProtonateResult{PDB: []byte(ans.PDB), Run: ans.Run}, nil
}

// ProtonateRaw posts pdb as chemical/x-pdb.  The run comes back in
// response headers, so only its ID, outcome and added count are set.
func (c *Client) ProtonateRaw(ctx context.Context, name string, pdb []byte, opts ProtonateOptions) (*ProtonateResult, error) {
	q := url.Values{}
	if name != "" {
		q.Set("name", name)
	}
	if opts.Flip != nil {
		q.Set("flip", strconv.FormatBool(*opts.Flip))
	}
	if opts.His != nil {
		q.Set("his", strconv.FormatBool(*opts.His))
	}
	path := PathProtonate
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	resp, err := c.send(ctx, request{
		method:      http.MethodPost,
		path:        path,
		contentType: contentTypePDB,
		accept:      contentTypePDB,
		body:        pdb,
	})
	if err != nil {
		return nil, err
	}
	run := &Run{
		ID:        resp.header.Get("X-Run-ID"),
		Structure: name,
		Outcome:   resp.header.Get("X-Protonation-Outcome"),
	}
	run.Added, _ = strconv.Atoi(resp.header.Get("X-Hydrogens-Added"))
	return &ProtonateResult{PDB: resp.body, Run: run}, nil
}

// SubmitJob queues a protonation job.
func (c *Client) SubmitJob(ctx context.Context, req JobRequest) (*Job, error) {
	var job Job
	if err := c.post(ctx, PathJobs, req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// GetRun fetches one run by ID.
func (c *Client) GetRun(ctx context.Context, id string) (*Run, error) {
	var run Run
	if err := c.get(ctx, PathRuns+"/"+url.PathEscape(id), &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListBatch returns the runs of one batch in start order.
func (c *Client) ListBatch(ctx context.Context, batchID string) ([]*Run, error) {
	var list runList
	if err := c.get(ctx, PathRuns+"?batch_id="+url.QueryEscape(batchID), &list); err != nil {
		return nil, err
	}
	return list.Runs, nil
}

// ListRecent returns up to limit runs, newest first.  limit <= 0 takes the
// server default.
func (c *Client) ListRecent(ctx context.Context, limit int) ([]*Run, error) {
	path := PathRuns
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}
	var list runList
	if err := c.get(ctx, path, &list); err != nil {
		return nil, err
	}
	return list.Runs, nil
}

// Ready probes /readyz once.  A 503 answer is ready=false with a nil
// error.
func (c *Client) Ready(ctx context.Context) (bool, error) {
	_, err := c.send(ctx, request{method: http.MethodGet, path: PathReady, accept: "application/json", once: true})
	if err == nil {
		return true, nil
	}
	var apiErr *APIError
	if stderrors.As(err, &apiErr) && apiErr.StatusCode == http.StatusServiceUnavailable {
		return false, nil
	}
	return false, err
}

//Personal.AI order the ending
