package protonation

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	domain "github.com/turtacn/KeyIP-Protonate/internal/domain/protonation"
	"github.com/turtacn/KeyIP-Protonate/internal/domain/structure"
	"github.com/turtacn/KeyIP-Protonate/internal/infrastructure/pdb"
	"github.com/turtacn/KeyIP-Protonate/internal/infrastructure/reduce"
	"github.com/turtacn/KeyIP-Protonate/internal/testutil"
	apperrors "github.com/turtacn/KeyIP-Protonate/pkg/errors"
)

type recordingNotifier struct {
	mu    sync.Mutex
	notes []Notification
	err   error
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
	return r.err
}

type memoryRuns struct {
	mu   sync.Mutex
	runs []*domain.Run
	err  error
}

func (m *memoryRuns) Save(_ context.Context, run *domain.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.runs = append(m.runs, run)
	return nil
}

func (m *memoryRuns) FindByID(context.Context, string) (*domain.Run, error) { return nil, nil }
func (m *memoryRuns) ListByBatch(context.Context, string) ([]*domain.Run, error) {
	return nil, nil
}
func (m *memoryRuns) ListRecent(context.Context, int) ([]*domain.Run, error) { return nil, nil }

type countingMetrics struct {
	mu       sync.Mutex
	outcomes []domain.Outcome
}

func (c *countingMetrics) ObserveRun(run *domain.Run) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes = append(c.outcomes, run.Outcome)
}

type ServiceSuite struct {
	suite.Suite
	runner   *hydrogenatingRunner
	notifier *recordingNotifier
	runs     *memoryRuns
	metrics  *countingMetrics
	logger   *testutil.MockLogger
	service  *BatchService
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.runner = &hydrogenatingRunner{}
	s.notifier = &recordingNotifier{}
	s.runs = &memoryRuns{}
	s.metrics = &countingMetrics{}
	s.logger = testutil.NewMockLogger()

	engine, err := reduce.NewEngine(reduce.Config{Executable: "reduce", Dictionary: "dict"}, s.runner, s.logger)
	s.Require().NoError(err)
	s.service, err = NewService(engine, domain.NewReconciler(0, s.logger), s.logger,
		WithNotifier(s.notifier),
		WithRunRepository(s.runs),
		WithMetrics(s.metrics),
		WithConfig(ServiceConfig{WorkDir: s.T().TempDir()}),
	)
	s.Require().NoError(err)
}

func (s *ServiceSuite) parse(name, text string) *structure.Structure {
	st, err := pdb.Parse(strings.NewReader(text), name)
	s.Require().NoError(err)
	return st
}

func (s *ServiceSuite) TestAddHydrogens_GraftsOntoOriginal() {
	st := s.parse("pep", peptide)
	atomsBefore := st.Atoms()

	out, batch := s.service.AddHydrogens(context.Background(), []*structure.Structure{st}, reduce.DefaultOptions())

	s.Require().Len(out, 1)
	s.Same(st, out[0])
	s.Require().Len(batch.Structures, 1)
	run := batch.Structures[0].Run
	s.Equal(domain.OutcomeProtonated, run.Outcome)
	s.Equal(2, run.Added)
	s.Equal(0, run.Skipped)
	s.True(run.Flip)
	s.Equal(batch.ID, run.BatchID)

	s.Equal(7, st.AtomCount())
	s.Equal(2, st.BondCount())
	for _, a := range atomsBefore {
		s.True(st.Contains(a), "pre-existing atom %s kept", a.Label())
	}
	gly := st.Residues()[0]
	s.Require().Len(gly.Atoms(), 3)
	h := gly.Atoms()[2]
	s.Equal("H", h.Symbol)
	s.Equal(gly.Atoms()[0].Presentation, h.Presentation)

	s.Len(s.runs.runs, 1)
	s.Equal([]domain.Outcome{domain.OutcomeProtonated}, s.metrics.outcomes)
	s.Empty(s.notifier.notes)
}

func (s *ServiceSuite) TestAddHydrogens_EngineFailureNotifiesAndContinues() {
	failing := s.parse("bad", strings.Replace(peptide, "GLY", "FAI", -1))
	good := s.parse("good", peptide)
	s.runner.exitCode = map[string]int{"FAI": -1}

	_, batch := s.service.AddHydrogens(context.Background(), []*structure.Structure{failing, good}, reduce.Options{})

	s.Require().Len(batch.Structures, 2)
	s.Equal(domain.OutcomeEngineFailure, batch.Structures[0].Run.Outcome)
	s.Equal("PRT_001", batch.Structures[0].Run.ErrorCode)
	s.Equal(domain.OutcomeProtonated, batch.Structures[1].Run.Outcome)
	s.Equal(5, failing.AtomCount(), "failed structure unchanged")
	s.Equal(7, good.AtomCount())

	s.Require().Len(s.notifier.notes, 1)
	s.Equal(NotificationError, s.notifier.notes[0].Level)
	s.Equal(EngineFailureMessage, s.notifier.notes[0].Message)
	s.Equal("bad", s.notifier.notes[0].Structure)
	s.True(s.logger.HasMessage("error", "reduce failed"))
}

func (s *ServiceSuite) TestAddHydrogens_UnreadableIsLoggedNotNotified() {
	water := s.parse("water", "HETATM    5  O   HOH A 101      20.000  20.000  20.000  1.00 30.00           O  \n")

	_, batch := s.service.AddHydrogens(context.Background(), []*structure.Structure{water}, reduce.DefaultOptions())

	s.Equal(domain.OutcomeUnreadable, batch.Structures[0].Run.Outcome)
	s.Empty(s.notifier.notes)
	s.True(s.logger.HasMessage("error", "could not read the PDB generated by reduce"))
	s.Equal(1, water.AtomCount())
}

func (s *ServiceSuite) TestAddHydrogens_SecondPassAddsNothing() {
	st := s.parse("pep", peptide)
	s.service.AddHydrogens(context.Background(), []*structure.Structure{st}, reduce.DefaultOptions())
	s.Require().Equal(7, st.AtomCount())

	// An engine that finds nothing new reports no hydrogens.
	quiet := &quietRunner{}
	engine, err := reduce.NewEngine(reduce.Config{Executable: "reduce", Dictionary: "dict"}, quiet, nil)
	s.Require().NoError(err)
	svc, err := NewService(engine, domain.NewReconciler(0, nil), nil, WithConfig(ServiceConfig{WorkDir: s.T().TempDir()}))
	s.Require().NoError(err)

	_, batch := svc.AddHydrogens(context.Background(), []*structure.Structure{st}, reduce.DefaultOptions())
	s.Equal(domain.OutcomeUnreadable, batch.Structures[0].Run.Outcome)
	s.Equal(7, st.AtomCount())
}

func (s *ServiceSuite) TestAddHydrogens_CanceledContext() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, batch := s.service.AddHydrogens(ctx, []*structure.Structure{s.parse("a", peptide), s.parse("b", peptide)}, reduce.Options{})

	s.Equal(2, batch.Count(domain.OutcomeCanceled))
	s.Equal(0, s.runner.calls)
	s.Len(s.runs.runs, 2, "canceled runs are still recorded")
}

// cancelingRunner cancels the batch while the engine is running.
type cancelingRunner struct{ cancel context.CancelFunc }

func (r cancelingRunner) Run(ctx context.Context, _ reduce.Invocation) (*reduce.RunResult, error) {
	r.cancel()
	<-ctx.Done()
	return &reduce.RunResult{ExitCode: -1}, ctx.Err()
}

func (s *ServiceSuite) TestAddHydrogens_CanceledDuringRunIsNotEngineFailure() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine, err := reduce.NewEngine(reduce.Config{Executable: "reduce", Dictionary: "dict"}, cancelingRunner{cancel: cancel}, s.logger)
	s.Require().NoError(err)
	svc, err := NewService(engine, domain.NewReconciler(0, s.logger), s.logger,
		WithNotifier(s.notifier),
		WithConfig(ServiceConfig{WorkDir: s.T().TempDir()}),
	)
	s.Require().NoError(err)

	st := s.parse("pep", peptide)
	_, batch := svc.AddHydrogens(ctx, []*structure.Structure{st}, reduce.Options{})

	run := batch.Structures[0].Run
	s.Equal(domain.OutcomeCanceled, run.Outcome)
	s.NotEqual("PRT_001", run.ErrorCode)
	s.Empty(s.notifier.notes)
	s.False(s.logger.HasMessage("error", "reduce failed"))
	s.Equal(5, st.AtomCount())
}

func (s *ServiceSuite) TestAddHydrogens_CollaboratorFailuresAreContained() {
	s.runs.err = errors.New("db down")
	s.notifier.err = errors.New("broker down")
	s.runner.exitCode = map[string]int{"GLY": -1}

	_, batch := s.service.AddHydrogens(context.Background(), []*structure.Structure{s.parse("pep", peptide)}, reduce.Options{})

	s.Equal(domain.OutcomeEngineFailure, batch.Structures[0].Run.Outcome)
	s.True(s.logger.HasMessage("warn", "run not recorded"))
	s.True(s.logger.HasMessage("warn", "notification not delivered"))
}

func (s *ServiceSuite) TestProtonatePDB() {
	res, err := s.service.ProtonatePDB(context.Background(), "upload", []byte(peptide), reduce.DefaultOptions())
	s.Require().NoError(err)
	s.Equal(2, res.Run.Added)

	back, err := pdb.Parse(bytes.NewReader(res.PDB), "back")
	s.Require().NoError(err)
	s.Equal(7, back.AtomCount())
	s.Equal(0, len(back.NewAtomIndices()))
}

func (s *ServiceSuite) TestProtonatePDB_Errors() {
	_, err := s.service.ProtonatePDB(context.Background(), "junk", []byte("ATOM  broken"), reduce.Options{})
	s.True(apperrors.IsCode(err, apperrors.ErrCodeStructureParse))

	_, err = s.service.ProtonatePDB(context.Background(), "empty", []byte("REMARK\n"), reduce.Options{})
	s.True(apperrors.IsCode(err, apperrors.ErrCodeStructureParse))

	s.runner.exitCode = map[string]int{"GLY": -1}
	res, err := s.service.ProtonatePDB(context.Background(), "pep", []byte(peptide), reduce.Options{})
	s.True(apperrors.IsCode(err, apperrors.ErrCodeEngineFailure))
	s.Require().NotNil(res)
	s.Equal(domain.OutcomeEngineFailure, res.Run.Outcome)
}

func (s *ServiceSuite) TestProtonatePDB_UnreadableReturnsDocumentUnchanged() {
	water := "HETATM    5  O   HOH A 101      20.000  20.000  20.000  1.00 30.00           O  \n"
	res, err := s.service.ProtonatePDB(context.Background(), "water", []byte(water), reduce.Options{})
	s.Require().NoError(err)
	s.Equal(domain.OutcomeUnreadable, res.Run.Outcome)
	s.Contains(string(res.PDB), "HOH")
}

const ligand = `HETATM    1  N1  LIG A 201      10.000  10.000  10.000  1.00 20.00           N  
HETATM    2  C1  LIG A 201      11.470  10.000  10.000  1.00 20.00           C  
CONECT    1    2
CONECT    2    1
END
`

// renumberedRunner answers like the engine does: atoms renumbered in output
// order with the new hydrogen between the ligand's heavy atoms.
type renumberedRunner struct{}

func (renumberedRunner) Run(context.Context, reduce.Invocation) (*reduce.RunResult, error) {
	out := strings.Join([]string{
		"USER  MOD reduce stand-in",
		"HETATM    1  N1  LIG A 201      10.000  10.000  10.000  1.00 20.00           N  ",
		"HETATM    2  H1  LIG A 201       9.500  10.866  10.000  1.00  0.00           H     new",
		"HETATM    3  C1  LIG A 201      11.470  10.000  10.000  1.00 20.00           C  ",
		"CONECT    1    3",
		"END",
	}, "\n") + "\n"
	return &reduce.RunResult{Stdout: []byte(out)}, nil
}

func (s *ServiceSuite) TestProtonatePDB_LigandSerialsAndConectStayConsistent() {
	engine, err := reduce.NewEngine(reduce.Config{Executable: "reduce", Dictionary: "dict"}, renumberedRunner{}, nil)
	s.Require().NoError(err)
	svc, err := NewService(engine, domain.NewReconciler(0, nil), nil, WithConfig(ServiceConfig{WorkDir: s.T().TempDir()}))
	s.Require().NoError(err)

	res, err := svc.ProtonatePDB(context.Background(), "lig", []byte(ligand), reduce.DefaultOptions())
	s.Require().NoError(err)
	s.Require().Equal(1, res.Run.Added)

	back, err := pdb.Parse(bytes.NewReader(res.PDB), "back")
	s.Require().NoError(err)
	s.Require().Equal(3, back.AtomCount())

	seen := map[int]bool{}
	for _, a := range back.Atoms() {
		s.False(seen[a.Serial], "serial %d written twice", a.Serial)
		seen[a.Serial] = true
	}

	pairs := map[string]bool{}
	for _, b := range back.Bonds() {
		a1, a2 := b.Atoms()
		pairs[a1.Name+"-"+a2.Name] = true
		pairs[a2.Name+"-"+a1.Name] = true
	}
	s.Equal(2, back.BondCount())
	s.True(pairs["N1-C1"], "ligand bond kept")
	s.True(pairs["N1-H1"], "hydrogen bonded to its partner")
	s.False(pairs["C1-H1"])
}

type quietRunner struct{}

func (quietRunner) Run(context.Context, reduce.Invocation) (*reduce.RunResult, error) {
	return &reduce.RunResult{Stdout: []byte(peptide)}, nil
}

func TestNewService_Validation(t *testing.T) {
	_, err := NewService(nil, domain.NewReconciler(0, nil), nil)
	assert.Error(t, err)
	engine, err := reduce.NewEngine(reduce.Config{Executable: "e", Dictionary: "d"}, &hydrogenatingRunner{}, nil)
	require.NoError(t, err)
	_, err = NewService(engine, nil, nil)
	assert.Error(t, err)
}

//Personal.AI order the ending
