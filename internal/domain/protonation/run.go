package protonation

import (
	"context"
	"time"
)

// Outcome is the result of protonating one structure.
type Outcome string

const (
	// OutcomeProtonated: the engine ran and its hydrogens were reconciled.
	// Individual hydrogens may still have been skipped.
	OutcomeProtonated Outcome = "protonated"
	// OutcomeEngineFailure: the engine failed, could not start or timed out.
	OutcomeEngineFailure Outcome = "engine_failure"
	// OutcomeUnreadable: the engine output had no atoms or no new hydrogens.
	OutcomeUnreadable Outcome = "unreadable"
	// OutcomeError: the structure could not be prepared for the engine.
	OutcomeError Outcome = "error"
	// OutcomeCanceled: the batch was canceled before this structure ran.
	OutcomeCanceled Outcome = "canceled"
)

// Run is the ledger entry of one structure's trip through the pipeline.
type Run struct {
	ID        string `json:"id"`
	BatchID   string `json:"batch_id"`
	Structure string `json:"structure"`

	Outcome Outcome `json:"outcome"`
	Flip    bool    `json:"flip"`
	His     bool    `json:"his"`

	Requested int            `json:"requested"`
	Added     int            `json:"added"`
	Skipped   int            `json:"skipped"`
	SkippedBy map[string]int `json:"skipped_by,omitempty"`

	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	EngineDuration time.Duration `json:"engine_duration"`
	Cached         bool          `json:"cached"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration returns the wall time of the run.
func (r *Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// ApplyReport copies the counts of a reconciliation report onto the run.
func (r *Run) ApplyReport(rep *Report) {
	r.Requested = rep.Requested
	r.Added = rep.AddedCount()
	r.Skipped = rep.SkippedCount()
	if r.Skipped > 0 {
		r.SkippedBy = make(map[string]int)
		for code, n := range rep.SkippedBy() {
			r.SkippedBy[string(code)] = n
		}
	}
}

// RunRepository persists the run ledger.
type RunRepository interface {
	// Save inserts run; saving an existing ID overwrites it.
	Save(ctx context.Context, run *Run) error

	// FindByID returns errors.ErrCodeNotFound when no run has the ID.
	FindByID(ctx context.Context, id string) (*Run, error)

	// ListByBatch returns the runs of one batch in start order.
	ListByBatch(ctx context.Context, batchID string) ([]*Run, error)

	// ListRecent returns the newest runs first.
	ListRecent(ctx context.Context, limit int) ([]*Run, error)
}

//Personal.AI order the ending
