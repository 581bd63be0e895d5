package reduce

import (
	"context"
	stderrors "errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/turtacn/KeyIP-Protonate/internal/domain/structure"
	"github.com/turtacn/KeyIP-Protonate/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-Protonate/internal/infrastructure/pdb"
	"github.com/turtacn/KeyIP-Protonate/pkg/errors"
)

// Engine run outcomes reported to the Observer.
const (
	OutcomeSuccess    = "success"
	OutcomeFailed     = "failed"
	OutcomeTimeout    = "timeout"
	OutcomeStartError = "start_error"
	OutcomeCanceled   = "canceled"
)

// Config locates the engine and bounds its run time.
type Config struct {
	Executable string
	Dictionary string

	// Timeout of one run; zero disables it.
	Timeout time.Duration
}

// Observer receives engine run measurements.
type Observer interface {
	EngineRun(outcome string, d time.Duration)
}

type nopObserver struct{}

func (nopObserver) EngineRun(string, time.Duration) {}

// Result is a successful engine run.
type Result struct {
	// Structure is the engine output parsed back; its engine-added atoms
	// carry IsNew.
	Structure *structure.Structure

	// Hydrogens lists the atom iteration indices of the added atoms.
	Hydrogens []int

	OutputPath string
	ExitCode   int
	Duration   time.Duration
	Cached     bool
}

// Engine runs Reduce on structure files.
type Engine struct {
	cfg      Config
	runner   Runner
	observer Observer
	logger   logging.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithObserver sets the measurement sink.
func WithObserver(o Observer) EngineOption {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

// NewEngine validates cfg and returns an Engine running through runner.
func NewEngine(cfg Config, runner Runner, logger logging.Logger, opts ...EngineOption) (*Engine, error) {
	if strings.TrimSpace(cfg.Executable) == "" {
		return nil, errors.New(errors.ErrCodeValidation, "reduce executable path is required")
	}
	if strings.TrimSpace(cfg.Dictionary) == "" {
		return nil, errors.New(errors.ErrCodeValidation, "reduce dictionary path is required")
	}
	if runner == nil {
		return nil, errors.New(errors.ErrCodeValidation, "runner is required")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	e := &Engine{cfg: cfg, runner: runner, observer: nopObserver{}, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Protonate runs the engine on inputPath and writes its structural records
// to outputPath.
//
// A negative exit code, a process that could not be started or a run that
// outlived the timeout yields ErrCodeEngineFailure.  A run abandoned because
// ctx was canceled yields ErrCodeTimeout wrapping context.Canceled.  An output
// with no parseable atoms or no added hydrogens yields ErrCodeUnreadableOutput.
func (e *Engine) Protonate(ctx context.Context, inputPath, outputPath string, opts Options) (*Result, error) {
	inv := Invocation{
		Executable: e.cfg.Executable,
		Args:       BuildArgs(e.cfg.Dictionary, inputPath, opts),
		Input:      inputPath,
	}
	e.logger.Debug("starting reduce", logging.Strings("args", inv.Args))

	runCtx := ctx
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	run, err := e.runner.Run(runCtx, inv)
	elapsed := time.Since(start)
	if err != nil {
		return nil, e.runError(runCtx, err, elapsed)
	}
	if run.ExitCode < 0 {
		e.observer.EngineRun(OutcomeFailed, elapsed)
		e.logger.Error("reduce returned an error", logging.Int("exit_code", run.ExitCode))
		return nil, errors.New(errors.ErrCodeEngineFailure, "reduce returned an error").
			WithDetail(fmt.Sprintf("exit_code=%d", run.ExitCode))
	}
	e.observer.EngineRun(OutcomeSuccess, elapsed)

	if err := pdb.WriteLines(outputPath, pdb.FilterRecords(string(run.Stdout))); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnreadableOutput, "could not store reduce output")
	}

	name := strings.TrimSuffix(filepath.Base(outputPath), filepath.Ext(outputPath))
	s, err := pdb.ParseFile(outputPath, name)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnreadableOutput, "could not read the PDB generated by reduce")
	}
	if s.AtomCount() == 0 {
		return nil, errors.New(errors.ErrCodeUnreadableOutput, "reduce produced no atoms").
			WithDetail(outputPath)
	}
	hydrogens := s.NewAtomIndices()
	if len(hydrogens) == 0 {
		return nil, errors.New(errors.ErrCodeUnreadableOutput, "reduce reported no new hydrogens").
			WithDetail(outputPath)
	}

	return &Result{
		Structure:  s,
		Hydrogens:  hydrogens,
		OutputPath: outputPath,
		ExitCode:   run.ExitCode,
		Duration:   run.Duration,
		Cached:     run.Cached,
	}, nil
}

func (e *Engine) runError(ctx context.Context, err error, elapsed time.Duration) error {
	if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		e.observer.EngineRun(OutcomeTimeout, elapsed)
		e.logger.Error("reduce timed out", logging.Duration("timeout", e.cfg.Timeout))
		timeout := errors.New(errors.ErrCodeEngineTimeout, "reduce timed out").
			WithDetail(e.cfg.Timeout.String()).WithCause(err)
		return errors.Wrap(timeout, errors.ErrCodeEngineFailure, "reduce failed")
	}
	if stderrors.Is(ctx.Err(), context.Canceled) || stderrors.Is(err, context.Canceled) {
		e.observer.EngineRun(OutcomeCanceled, elapsed)
		e.logger.Warn("reduce canceled", logging.Duration("elapsed", elapsed))
		return errors.Wrap(err, errors.ErrCodeTimeout, "reduce canceled")
	}
	e.observer.EngineRun(OutcomeStartError, elapsed)
	e.logger.Error("reduce could not be run", logging.Err(err))
	return errors.Wrap(err, errors.ErrCodeEngineFailure, "reduce could not be run").
		WithDetail(e.cfg.Executable)
}

//Personal.AI order the ending
