// Package protonation is the batch driver of the hydrogen pipeline: for each
// structure it writes a PDB copy, runs the engine on it and grafts the
// resulting hydrogens back onto the caller's structure.
package protonation

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	domain "github.com/turtacn/KeyIP-Protonate/internal/domain/protonation"
	"github.com/turtacn/KeyIP-Protonate/internal/domain/structure"
	"github.com/turtacn/KeyIP-Protonate/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-Protonate/internal/infrastructure/pdb"
	"github.com/turtacn/KeyIP-Protonate/internal/infrastructure/reduce"
	"github.com/turtacn/KeyIP-Protonate/pkg/errors"
)

// EngineFailureMessage is the user-facing text of an engine failure.
const EngineFailureMessage = "Error computing hydrogens, reduce failed"

// Engine runs the protonation engine on a structure file.
type Engine interface {
	Protonate(ctx context.Context, inputPath, outputPath string, opts reduce.Options) (*reduce.Result, error)
}

// Metrics observes finished runs.
type Metrics interface {
	ObserveRun(run *domain.Run)
}

// RunSink receives every finished run, e.g. an event stream.
type RunSink interface {
	RunFinished(ctx context.Context, run *domain.Run) error
}

// Service is the application surface used by the CLI, HTTP API and worker.
type Service interface {
	AddHydrogens(ctx context.Context, structures []*structure.Structure, opts reduce.Options) ([]*structure.Structure, *BatchReport)
	ProtonatePDB(ctx context.Context, name string, data []byte, opts reduce.Options) (*PDBResult, error)
}

// ServiceConfig tunes the batch driver.
type ServiceConfig struct {
	// WorkDir is where per-structure temporary directories are created.
	// Empty means the OS default.
	WorkDir string

	// KeepFiles leaves temporary directories behind for inspection.
	KeepFiles bool
}

// BatchService implements Service.
type BatchService struct {
	engine     Engine
	reconciler *domain.Reconciler
	notifier   Notifier
	metrics    Metrics
	runs       domain.RunRepository
	sink       RunSink
	cfg        ServiceConfig
	logger     logging.Logger
}

// ServiceOption configures a BatchService.
type ServiceOption func(*BatchService)

// WithNotifier replaces the default LogNotifier.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *BatchService) { s.notifier = n }
}

// WithMetrics sets the run observer.
func WithMetrics(m Metrics) ServiceOption {
	return func(s *BatchService) { s.metrics = m }
}

// WithRunRepository records every run in repo.
func WithRunRepository(repo domain.RunRepository) ServiceOption {
	return func(s *BatchService) { s.runs = repo }
}

// WithRunSink forwards every finished run to sink.
func WithRunSink(sink RunSink) ServiceOption {
	return func(s *BatchService) { s.sink = sink }
}

// WithConfig sets the working directory policy.
func WithConfig(cfg ServiceConfig) ServiceOption {
	return func(s *BatchService) { s.cfg = cfg }
}

// NewService wires a BatchService.
func NewService(engine Engine, reconciler *domain.Reconciler, logger logging.Logger, opts ...ServiceOption) (*BatchService, error) {
	if engine == nil {
		return nil, errors.New(errors.ErrCodeValidation, "engine is required")
	}
	if reconciler == nil {
		return nil, errors.New(errors.ErrCodeValidation, "reconciler is required")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	s := &BatchService{engine: engine, reconciler: reconciler, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	if s.notifier == nil {
		s.notifier = NewLogNotifier(logger)
	}
	return s, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Batch
// ─────────────────────────────────────────────────────────────────────────────

// StructureReport is the outcome of one structure of a batch.
type StructureReport struct {
	Run    *domain.Run
	Report *domain.Report
	Err    error
}

// BatchReport summarises AddHydrogens.
type BatchReport struct {
	ID         string
	Structures []StructureReport
	StartedAt  time.Time
	FinishedAt time.Time
}

// Count returns how many structures ended with outcome.
func (b *BatchReport) Count(outcome domain.Outcome) int {
	n := 0
	for _, s := range b.Structures {
		if s.Run.Outcome == outcome {
			n++
		}
	}
	return n
}

// HydrogensAdded totals the grafted hydrogens.
func (b *BatchReport) HydrogensAdded() int {
	n := 0
	for _, s := range b.Structures {
		n += s.Run.Added
	}
	return n
}

// AddHydrogens protonates each structure in place, sequentially.  A failing
// structure is reported and skipped; the batch always runs to the end unless
// ctx is canceled, in which case the remaining structures are reported as
// canceled.  The input slice is returned for chaining.
func (s *BatchService) AddHydrogens(ctx context.Context, structures []*structure.Structure, opts reduce.Options) ([]*structure.Structure, *BatchReport) {
	batch := &BatchReport{ID: uuid.NewString(), StartedAt: time.Now()}
	log := s.logger.With(logging.String("batch_id", batch.ID))

	for _, st := range structures {
		run := &domain.Run{
			ID:        uuid.NewString(),
			BatchID:   batch.ID,
			Structure: st.Name,
			Flip:      opts.Flip,
			His:       opts.Histidines,
			StartedAt: time.Now(),
		}
		var sr StructureReport
		if err := ctx.Err(); err != nil {
			run.Outcome = domain.OutcomeCanceled
			setRunError(run, errors.Wrap(err, errors.ErrCodeTimeout, "batch canceled"))
			run.FinishedAt = time.Now()
			sr = StructureReport{Run: run, Err: err}
		} else {
			sr = s.protonateOne(ctx, st, run, opts, log)
		}
		s.finish(ctx, sr.Run, log)
		batch.Structures = append(batch.Structures, sr)
	}

	batch.FinishedAt = time.Now()
	log.Info("batch finished",
		logging.Int("structures", len(structures)),
		logging.Int("protonated", batch.Count(domain.OutcomeProtonated)),
		logging.Int("hydrogens_added", batch.HydrogensAdded()),
		logging.Duration("elapsed", batch.FinishedAt.Sub(batch.StartedAt)))
	return structures, batch
}

func (s *BatchService) protonateOne(ctx context.Context, st *structure.Structure, run *domain.Run, opts reduce.Options, log logging.Logger) StructureReport {
	log = log.With(logging.Structure(st.Name), logging.String("run_id", run.ID))
	defer func() { run.FinishedAt = time.Now() }()

	dir, err := os.MkdirTemp(s.cfg.WorkDir, "protonate-*")
	if err != nil {
		return s.prepFailure(run, log, errors.Wrap(err, errors.ErrCodeStructureWrite, "cannot create working directory"))
	}
	if s.cfg.KeepFiles {
		log.Debug("keeping working directory", logging.String("dir", dir))
	} else {
		defer os.RemoveAll(dir)
	}
	input := filepath.Join(dir, "input.pdb")
	output := filepath.Join(dir, "output.pdb")

	// Snapshot and index under one lock so the index matches the file the
	// engine sees.
	st.Lock()
	index := domain.NewPositionIndex(st)
	err = pdb.WriteFile(input, st)
	st.Unlock()
	if err != nil {
		return s.prepFailure(run, log, err)
	}

	res, err := s.engine.Protonate(ctx, input, output, opts)
	switch {
	case errors.IsCode(err, errors.ErrCodeEngineFailure):
		run.Outcome = domain.OutcomeEngineFailure
		setRunError(run, err)
		log.Error("reduce failed", logging.Err(err))
		if nerr := s.notifier.Notify(ctx, Notification{
			Level:     NotificationError,
			Message:   EngineFailureMessage,
			Structure: st.Name,
			RunID:     run.ID,
			Time:      time.Now(),
		}); nerr != nil {
			log.Warn("notification not delivered", logging.Err(nerr))
		}
		return StructureReport{Run: run, Err: err}
	case errors.IsCode(err, errors.ErrCodeUnreadableOutput):
		run.Outcome = domain.OutcomeUnreadable
		setRunError(run, err)
		log.Error("could not read the PDB generated by reduce", logging.Err(err))
		return StructureReport{Run: run, Err: err}
	case stderrors.Is(err, context.Canceled):
		run.Outcome = domain.OutcomeCanceled
		setRunError(run, err)
		log.Warn("structure abandoned", logging.Err(err))
		return StructureReport{Run: run, Err: err}
	case err != nil:
		return s.prepFailure(run, log, err)
	}

	run.EngineDuration = res.Duration
	run.Cached = res.Cached
	report := s.reconciler.Reconcile(st, index, res.Structure, res.Hydrogens)
	run.Outcome = domain.OutcomeProtonated
	run.ApplyReport(report)
	log.Info("hydrogens added",
		logging.Int("added", run.Added),
		logging.Int("skipped", run.Skipped),
		logging.Bool("cached", run.Cached))
	return StructureReport{Run: run, Report: report}
}

func (s *BatchService) prepFailure(run *domain.Run, log logging.Logger, err error) StructureReport {
	run.Outcome = domain.OutcomeError
	setRunError(run, err)
	log.Error("structure not processed", logging.Err(err))
	return StructureReport{Run: run, Err: err}
}

// finish hands the run to the optional collaborators.  Their failures are
// logged and never affect the batch.
func (s *BatchService) finish(ctx context.Context, run *domain.Run, log logging.Logger) {
	if s.metrics != nil {
		s.metrics.ObserveRun(run)
	}
	// Ledger and events outlive a canceled batch.
	bg := context.WithoutCancel(ctx)
	if s.runs != nil {
		if err := s.runs.Save(bg, run); err != nil {
			log.Warn("run not recorded", logging.String("run_id", run.ID), logging.Err(err))
		}
	}
	if s.sink != nil {
		if err := s.sink.RunFinished(bg, run); err != nil {
			log.Warn("run event not published", logging.String("run_id", run.ID), logging.Err(err))
		}
	}
}

func setRunError(run *domain.Run, err error) {
	run.ErrorCode = string(errors.GetCode(err))
	run.ErrorMessage = err.Error()
}

// ─────────────────────────────────────────────────────────────────────────────
// Single PDB document
// ─────────────────────────────────────────────────────────────────────────────

// PDBResult is ProtonatePDB's output.
type PDBResult struct {
	PDB    []byte
	Run    *domain.Run
	Report *domain.Report
}

// ProtonatePDB parses data, protonates it as a batch of one and serialises
// the result.  A malformed document yields ErrCodeStructureParse and an engine
// failure ErrCodeEngineFailure.  Unreadable engine output is not an error:
// the document comes back without added hydrogens and Run says why.
func (s *BatchService) ProtonatePDB(ctx context.Context, name string, data []byte, opts reduce.Options) (*PDBResult, error) {
	st, err := pdb.Parse(bytes.NewReader(data), name)
	if err != nil {
		return nil, err
	}
	if st.AtomCount() == 0 {
		return nil, errors.New(errors.ErrCodeStructureParse, "document contains no atoms").WithDetail(name)
	}

	_, batch := s.AddHydrogens(ctx, []*structure.Structure{st}, opts)
	sr := batch.Structures[0]
	switch sr.Run.Outcome {
	case domain.OutcomeEngineFailure, domain.OutcomeError, domain.OutcomeCanceled:
		return &PDBResult{Run: sr.Run}, sr.Err
	}

	var buf bytes.Buffer
	if err := pdb.Write(&buf, st); err != nil {
		return nil, err
	}
	return &PDBResult{PDB: buf.Bytes(), Run: sr.Run, Report: sr.Report}, nil
}

//Personal.AI order the ending
