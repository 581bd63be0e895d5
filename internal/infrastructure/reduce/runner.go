package reduce

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"time"

	"github.com/turtacn/KeyIP-Protonate/internal/infrastructure/monitoring/logging"
)

// waitDelay bounds how long Wait lingers on open pipes after the process is
// killed.
const waitDelay = 5 * time.Second

// Invocation is one engine run.
type Invocation struct {
	Executable string
	Args       []string

	// Input is the structure file passed in Args.
	Input string
}

// RunResult is what a finished process left behind.
type RunResult struct {
	Stdout   []byte
	ExitCode int
	Duration time.Duration
	Cached   bool
}

// Runner executes an Invocation.  An error means the process could not be
// started or did not finish; a process that ran to completion returns a nil
// error whatever its exit code.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (*RunResult, error)
}

// ProcessRunner runs the engine with os/exec.  Standard output goes to a
// buffer owned by the call; standard error is forwarded line by line to the
// error log.
type ProcessRunner struct {
	logger logging.Logger
}

// NewProcessRunner returns a ProcessRunner that logs through logger.
func NewProcessRunner(logger logging.Logger) *ProcessRunner {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &ProcessRunner{logger: logger}
}

func (r *ProcessRunner) Run(ctx context.Context, inv Invocation) (*RunResult, error) {
	cmd := exec.CommandContext(ctx, inv.Executable, inv.Args...)
	cmd.WaitDelay = waitDelay

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	// stderr must be drained before Wait closes the pipe.
	r.forwardStderr(stderr)

	waitErr := cmd.Wait()
	result := &RunResult{
		Stdout:   stdout.Bytes(),
		ExitCode: 0,
		Duration: time.Since(start),
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		result.ExitCode = -1
		return result, ctxErr
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			// -1 when the process was terminated by a signal.
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, waitErr
	}
	return result, nil
}

func (r *ProcessRunner) forwardStderr(stderr io.Reader) {
	sc := bufio.NewScanner(stderr)
	sc.Buffer(make([]byte, 0, 4096), 1024*1024)
	for sc.Scan() {
		if line := sc.Text(); line != "" {
			r.logger.Error(line, logging.String("stream", "stderr"))
		}
	}
	if err := sc.Err(); err != nil {
		// Keep the pipe empty so the engine never blocks writing to it.
		r.logger.Warn("engine stderr no longer forwarded", logging.Err(err))
		_, _ = io.Copy(io.Discard, stderr)
	}
}

//Personal.AI order the ending
