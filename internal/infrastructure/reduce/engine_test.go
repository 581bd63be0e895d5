package reduce

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyIP-Protonate/internal/testutil"
	apperrors "github.com/turtacn/KeyIP-Protonate/pkg/errors"
)

const engineOutput = `USER  MOD reduce.3.24.130724 H: found=0, std=0, add=1, rem=0, adj=0
USER  MOD -----------------------------------------------------------------
ATOM      1  N   GLY A   1      10.000  10.000  10.000  1.00 15.50           N  
ATOM      2  CA  GLY A   1      11.458  10.000  10.000  1.00 16.00           C  
ATOM      0  H   GLY A   1       9.500  10.866  10.000  1.00  0.00           H     new
TER
END
`

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Run(ctx context.Context, inv Invocation) (*RunResult, error) {
	args := m.Called(ctx, inv)
	res, _ := args.Get(0).(*RunResult)
	return res, args.Error(1)
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *recordingObserver) EngineRun(outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func newTestEngine(t *testing.T, runner Runner, cfg Config) (*Engine, *recordingObserver, *testutil.MockLogger) {
	t.Helper()
	if cfg.Executable == "" {
		cfg.Executable = "/opt/reduce/bin/linux/reduce"
	}
	if cfg.Dictionary == "" {
		cfg.Dictionary = "/opt/reduce/data/reduce_wwPDB_het_dict.txt"
	}
	obs := &recordingObserver{}
	logger := testutil.NewMockLogger()
	e, err := NewEngine(cfg, runner, logger, WithObserver(obs))
	require.NoError(t, err)
	return e, obs, logger
}

func TestNewEngine_Validation(t *testing.T) {
	_, err := NewEngine(Config{Dictionary: "d"}, &mockRunner{}, nil)
	assert.Error(t, err)
	_, err = NewEngine(Config{Executable: "e"}, &mockRunner{}, nil)
	assert.Error(t, err)
	_, err = NewEngine(Config{Executable: "e", Dictionary: "d"}, nil, nil)
	assert.Error(t, err)
}

func TestProtonate_Success(t *testing.T) {
	runner := &mockRunner{}
	e, obs, _ := newTestEngine(t, runner, Config{})
	dir := t.TempDir()
	in, out := filepath.Join(dir, "in.pdb"), filepath.Join(dir, "out.pdb")

	runner.On("Run", mock.Anything, mock.MatchedBy(func(inv Invocation) bool {
		return inv.Input == in && inv.Args[0] == "-FLIP" && inv.Args[5] == in
	})).Return(&RunResult{Stdout: []byte(engineOutput), ExitCode: 0}, nil).Once()

	res, err := e.Protonate(context.Background(), in, out, DefaultOptions())
	require.NoError(t, err)
	runner.AssertExpectations(t)

	assert.Equal(t, []int{2}, res.Hydrogens)
	assert.Equal(t, 3, res.Structure.AtomCount())
	assert.Equal(t, "out", res.Structure.Name)
	assert.True(t, res.Structure.Atoms()[2].IsNew)
	assert.Equal(t, out, res.OutputPath)
	assert.Equal(t, []string{OutcomeSuccess}, obs.outcomes)
}

func TestProtonate_PositiveExitCodeIsSuccess(t *testing.T) {
	runner := &mockRunner{}
	e, _, _ := newTestEngine(t, runner, Config{})
	dir := t.TempDir()

	runner.On("Run", mock.Anything, mock.Anything).
		Return(&RunResult{Stdout: []byte(engineOutput), ExitCode: 1}, nil)

	res, err := e.Protonate(context.Background(), filepath.Join(dir, "in.pdb"), filepath.Join(dir, "out.pdb"), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExitCode)
}

func TestProtonate_NegativeExitCode(t *testing.T) {
	runner := &mockRunner{}
	e, obs, logger := newTestEngine(t, runner, Config{})
	dir := t.TempDir()

	runner.On("Run", mock.Anything, mock.Anything).Return(&RunResult{ExitCode: -1}, nil)

	res, err := e.Protonate(context.Background(), filepath.Join(dir, "in.pdb"), filepath.Join(dir, "out.pdb"), Options{})
	assert.Nil(t, res)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeEngineFailure))
	assert.False(t, apperrors.IsCode(err, apperrors.ErrCodeUnreadableOutput))
	assert.True(t, logger.HasMessage("error", "reduce returned an error"))
	assert.Equal(t, []string{OutcomeFailed}, obs.outcomes)
}

func TestProtonate_StartFailure(t *testing.T) {
	runner := &mockRunner{}
	e, obs, _ := newTestEngine(t, runner, Config{})
	dir := t.TempDir()

	runner.On("Run", mock.Anything, mock.Anything).Return(nil, errors.New("exec: no such file"))

	_, err := e.Protonate(context.Background(), filepath.Join(dir, "in.pdb"), filepath.Join(dir, "out.pdb"), Options{})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeEngineFailure))
	assert.Equal(t, []string{OutcomeStartError}, obs.outcomes)
}

func TestProtonate_TimeoutIsEngineFailure(t *testing.T) {
	runner := &mockRunner{}
	e, obs, _ := newTestEngine(t, runner, Config{Timeout: 20 * time.Millisecond})
	dir := t.TempDir()

	runner.On("Run", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		<-args.Get(0).(context.Context).Done()
	}).Return(&RunResult{ExitCode: -1}, context.DeadlineExceeded)

	_, err := e.Protonate(context.Background(), filepath.Join(dir, "in.pdb"), filepath.Join(dir, "out.pdb"), Options{})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeEngineFailure))
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeEngineTimeout))
	assert.Equal(t, []string{OutcomeTimeout}, obs.outcomes)
}

func TestProtonate_CanceledIsNotEngineFailure(t *testing.T) {
	runner := &mockRunner{}
	e, obs, logger := newTestEngine(t, runner, Config{Timeout: time.Minute})
	dir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	runner.On("Run", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		cancel()
	}).Return(&RunResult{ExitCode: -1}, context.Canceled)

	_, err := e.Protonate(ctx, filepath.Join(dir, "in.pdb"), filepath.Join(dir, "out.pdb"), Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeTimeout))
	assert.False(t, apperrors.IsCode(err, apperrors.ErrCodeEngineFailure))
	assert.False(t, apperrors.IsCode(err, apperrors.ErrCodeEngineTimeout))
	assert.Equal(t, []string{OutcomeCanceled}, obs.outcomes)
	assert.True(t, logger.HasMessage("warn", "reduce canceled"))
	assert.False(t, logger.HasMessage("error", "reduce could not be run"))
}

func TestProtonate_UnreadableOutput(t *testing.T) {
	cases := map[string]string{
		"no records":      "USER  MOD nothing\n",
		"no new hydrogen": strings.Replace(engineOutput, "     new", "", 1),
		"garbage atom":    "ATOM      1  N   GLY A   1      10.000\n",
	}
	for name, stdout := range cases {
		t.Run(name, func(t *testing.T) {
			runner := &mockRunner{}
			e, obs, _ := newTestEngine(t, runner, Config{})
			dir := t.TempDir()
			runner.On("Run", mock.Anything, mock.Anything).
				Return(&RunResult{Stdout: []byte(stdout)}, nil)

			res, err := e.Protonate(context.Background(), filepath.Join(dir, "in.pdb"), filepath.Join(dir, "out.pdb"), Options{})
			assert.Nil(t, res)
			assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeUnreadableOutput), err)
			assert.False(t, apperrors.IsCode(err, apperrors.ErrCodeEngineFailure))
			assert.Equal(t, []string{OutcomeSuccess}, obs.outcomes)
		})
	}
}

//Personal.AI order the ending
