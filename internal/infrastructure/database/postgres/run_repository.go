package postgres

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	domain "github.com/turtacn/KeyIP-Protonate/internal/domain/protonation"
	"github.com/turtacn/KeyIP-Protonate/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-Protonate/pkg/errors"
)

// Querier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DefaultListLimit caps ListRecent when the caller passes a non-positive limit.
const DefaultListLimit = 50

const runColumns = `id, batch_id, structure, outcome, flip, his,
	requested, added, skipped, skipped_by, error_code, error_message,
	engine_duration_us, cached, started_at, finished_at`

// RunRepository stores runs in the protonation_runs table.
type RunRepository struct {
	db     Querier
	logger logging.Logger
}

var _ domain.RunRepository = (*RunRepository)(nil)

// NewRunRepository returns a RunRepository over db.
func NewRunRepository(db Querier, logger logging.Logger) *RunRepository {
	return &RunRepository{db: db, logger: logger}
}

// ─────────────────────────────────────────────────────────────────────────────
// Save
// ─────────────────────────────────────────────────────────────────────────────

// Save upserts run.
func (r *RunRepository) Save(ctx context.Context, run *domain.Run) error {
	if run == nil || run.ID == "" {
		return errors.InvalidParam("run id required")
	}
	skipped := run.SkippedBy
	if skipped == nil {
		skipped = map[string]int{}
	}
	skippedJSON, err := json.Marshal(skipped)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal skipped_by")
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO protonation_runs (`+runColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (id) DO UPDATE SET
			batch_id = EXCLUDED.batch_id,
			structure = EXCLUDED.structure,
			outcome = EXCLUDED.outcome,
			flip = EXCLUDED.flip,
			his = EXCLUDED.his,
			requested = EXCLUDED.requested,
			added = EXCLUDED.added,
			skipped = EXCLUDED.skipped,
			skipped_by = EXCLUDED.skipped_by,
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			engine_duration_us = EXCLUDED.engine_duration_us,
			cached = EXCLUDED.cached,
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at`,
		run.ID, run.BatchID, run.Structure, string(run.Outcome), run.Flip, run.His,
		run.Requested, run.Added, run.Skipped, skippedJSON, run.ErrorCode, run.ErrorMessage,
		run.EngineDuration.Microseconds(), run.Cached, run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		r.logger.Error("failed to save run", logging.String("run_id", run.ID), logging.Err(err))
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to save run").WithDetail(run.ID)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Queries
// ─────────────────────────────────────────────────────────────────────────────

func (r *RunRepository) FindByID(ctx context.Context, id string) (*domain.Run, error) {
	row := r.db.QueryRow(ctx, `SELECT `+runColumns+` FROM protonation_runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.NotFound("run not found").WithDetail(id)
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to load run").WithDetail(id)
	}
	return run, nil
}

func (r *RunRepository) ListByBatch(ctx context.Context, batchID string) ([]*domain.Run, error) {
	return r.list(ctx, `SELECT `+runColumns+` FROM protonation_runs
		WHERE batch_id = $1 ORDER BY started_at ASC, id ASC`, batchID)
}

func (r *RunRepository) ListRecent(ctx context.Context, limit int) ([]*domain.Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return r.list(ctx, `SELECT `+runColumns+` FROM protonation_runs
		ORDER BY started_at DESC, id DESC LIMIT $1`, limit)
}

func (r *RunRepository) list(ctx context.Context, sql string, args ...any) ([]*domain.Run, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list runs")
	}
	defer rows.Close()

	runs := make([]*domain.Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan run")
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate runs")
	}
	return runs, nil
}

func scanRun(row pgx.Row) (*domain.Run, error) {
	var (
		run         domain.Run
		outcome     string
		skippedJSON []byte
		engineUS    int64
	)
	err := row.Scan(
		&run.ID, &run.BatchID, &run.Structure, &outcome, &run.Flip, &run.His,
		&run.Requested, &run.Added, &run.Skipped, &skippedJSON, &run.ErrorCode, &run.ErrorMessage,
		&engineUS, &run.Cached, &run.StartedAt, &run.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	run.Outcome = domain.Outcome(outcome)
	run.EngineDuration = time.Duration(engineUS) * time.Microsecond
	if len(skippedJSON) > 0 {
		var by map[string]int
		if err := json.Unmarshal(skippedJSON, &by); err != nil {
			return nil, err
		}
		if len(by) > 0 {
			run.SkippedBy = by
		}
	}
	return &run, nil
}

//Personal.AI order the ending
