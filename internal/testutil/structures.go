package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyIP-Protonate/internal/domain/structure"
)

// AtomDef describes one atom of a test structure.  Consecutive defs with the
// same chain, residue name and sequence number share a residue.
type AtomDef struct {
	Chain   string
	Residue string
	Seq     int

	Serial int
	Name   string
	Symbol string
	Pos    structure.Vec3

	structure.Presentation
	IsNew bool
}

// BuildStructure assembles a structure from defs, failing the test on any
// construction error.
func BuildStructure(tb testing.TB, name string, defs ...AtomDef) *structure.Structure {
	tb.Helper()
	s := structure.New(name)
	var (
		cur     *structure.Residue
		curKey  [3]interface{}
		started bool
	)
	for _, d := range defs {
		key := [3]interface{}{d.Chain, d.Residue, d.Seq}
		if !started || key != curKey {
			cur = s.AddResidue(d.Residue, d.Seq, d.Chain, "")
			curKey, started = key, true
		}
		a, err := structure.NewAtom(structure.AtomSpec{
			Serial:       d.Serial,
			Name:         d.Name,
			Symbol:       d.Symbol,
			Position:     d.Pos,
			Presentation: d.Presentation,
			IsNew:        d.IsNew,
		})
		require.NoError(tb, err)
		require.NoError(tb, cur.AddAtom(a))
	}
	return s
}

// Bond links the atoms at iteration indices i and j and registers the bond on
// the residue of the first.
func Bond(tb testing.TB, s *structure.Structure, i, j int) *structure.Bond {
	tb.Helper()
	atoms := s.Atoms()
	b, err := structure.NewBond(structure.CovalentSingle, atoms[i], atoms[j])
	require.NoError(tb, err)
	require.NoError(tb, atoms[i].Residue().AddBond(b))
	return b
}

// Lysine returns a two-atom fragment of chain A residue LYS 12 whose atoms
// are rendered as sticks and carry crystallographic values, convenient as an
// original structure.
func Lysine(tb testing.TB) *structure.Structure {
	tb.Helper()
	meta := structure.Presentation{
		DisplayMode: structure.DisplayBall,
		Selected:    true,
		BFactor:     22.5,
		Occupancy:   0.75,
	}
	return BuildStructure(tb, "lys",
		AtomDef{Chain: "A", Residue: "LYS", Seq: 12, Serial: 1, Name: "CE", Symbol: "C", Pos: structure.Vec3{X: 8.5, Y: 10, Z: 10}, Presentation: meta},
		AtomDef{Chain: "A", Residue: "LYS", Seq: 12, Serial: 2, Name: "NZ", Symbol: "N", Pos: structure.Vec3{X: 10, Y: 10, Z: 10}, Presentation: meta},
	)
}

//Personal.AI order the ending
