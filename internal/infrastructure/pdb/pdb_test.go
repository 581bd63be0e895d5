package pdb

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/KeyIP-Protonate/internal/domain/structure"
	"github.com/turtacn/KeyIP-Protonate/pkg/errors"
)

const (
	lineN   = "ATOM      1  N   LYS A  12      10.000  10.000  10.000  1.00 15.50           N  "
	lineCA  = "ATOM      2  CA  LYS A  12      11.458  10.000  10.000  1.00 16.00           C  "
	lineNew = "ATOM      0  H   LYS A  12       9.500  10.866  10.000  1.00  0.00           H     new"
	lineHOH = "HETATM    3  O   HOH A 101      20.000  20.000  20.000  0.50 30.00           O  "
	lineZN  = "HETATM    4 ZN    ZN A 201       5.000   5.000   5.000  1.00 25.00          ZN  "
)

func sample() string {
	return strings.Join([]string{
		"HEADER    TEST",
		lineN,
		lineCA,
		lineNew,
		lineHOH,
		lineZN,
		"CONECT    4    3",
		"CONECT    3    4",
		"CONECT    4   99",
		"END",
	}, "\n") + "\n"
}

func TestParse_AtomsResiduesAndOrder(t *testing.T) {
	s, err := Parse(strings.NewReader(sample()), "sample")
	require.NoError(t, err)

	assert.Equal(t, "sample", s.Name)
	require.Len(t, s.Residues(), 3)
	lys := s.Residues()[0]
	assert.Equal(t, "LYS", lys.Name)
	assert.Equal(t, 12, lys.Serial)
	assert.Equal(t, "A", lys.Chain)

	atoms := s.Atoms()
	require.Len(t, atoms, 5)
	assert.Equal(t, []string{"N", "CA", "H", "O", "ZN"},
		[]string{atoms[0].Name, atoms[1].Name, atoms[2].Name, atoms[3].Name, atoms[4].Name})

	n := atoms[0]
	assert.Equal(t, 1, n.Serial)
	assert.Equal(t, "N", n.Symbol)
	assert.Equal(t, structure.Vec3{X: 10, Y: 10, Z: 10}, n.Position)
	assert.Equal(t, 15.5, n.BFactor)
	assert.Equal(t, 1.0, n.Occupancy)
	assert.False(t, n.IsHet)

	water := atoms[3]
	assert.True(t, water.IsHet)
	assert.Equal(t, 0.5, water.Occupancy)
	assert.Equal(t, "Zn", atoms[4].Symbol)
}

func TestParse_NewMarkerIsCarried(t *testing.T) {
	s, err := Parse(strings.NewReader(sample()), "sample")
	require.NoError(t, err)

	assert.Equal(t, []int{2}, s.NewAtomIndices())
	h := s.Atoms()[2]
	assert.True(t, h.IsNew)
	assert.Equal(t, "", h.Charge)
	assert.Same(t, s.Residues()[0], h.Residue(), "engine hydrogens stay in their residue")
}

func TestParse_ConectDeduplicatedAndUnknownIgnored(t *testing.T) {
	s, err := Parse(strings.NewReader(sample()), "sample")
	require.NoError(t, err)

	bonds := s.Bonds()
	require.Len(t, bonds, 1)
	a1, a2 := bonds[0].Atoms()
	assert.Equal(t, 4, a1.Serial)
	assert.Equal(t, 3, a2.Serial)
	assert.Equal(t, structure.CovalentSingle, bonds[0].Kind)
}

func TestParse_StopsAtFirstModel(t *testing.T) {
	in := strings.Join([]string{"MODEL        1", lineN, "ENDMDL", "MODEL        2", lineCA, "ENDMDL"}, "\n")
	s, err := Parse(strings.NewReader(in), "nmr")
	require.NoError(t, err)
	assert.Equal(t, 1, s.AtomCount())
}

func TestParse_Errors(t *testing.T) {
	cases := map[string]string{
		"short record":   "ATOM      1  N   LYS A  12      10.000",
		"bad coordinate": strings.Replace(lineN, "10.000  10.000", "10.0x0  10.000", 1),
		"bad serial":     strings.Replace(lineN, "    1", "   x1", 1),
		"lonely conect":  "CONECT    4",
		"garbage conect": "CONECT    4  abc",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(in), "bad")
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ErrCodeStructureParse))
			assert.Contains(t, err.Error(), "bad:1")
		})
	}
}

func TestParse_Empty(t *testing.T) {
	s, err := Parse(strings.NewReader("REMARK nothing here\n"), "empty")
	require.NoError(t, err)
	assert.Equal(t, 0, s.AtomCount())
}

func TestIsNewRecord(t *testing.T) {
	assert.True(t, IsNewRecord(lineNew))
	assert.True(t, IsNewRecord(lineNew+"\n"))
	assert.True(t, IsNewRecord(lineNew+"\r\n"))
	assert.False(t, IsNewRecord(lineN))
	// Long enough but no marker.
	assert.False(t, IsNewRecord(lineN+"   old"))
	// Marker present but too short.
	assert.False(t, IsNewRecord("ATOM new"))
	// Exactly 84 characters of content qualifies.
	assert.True(t, IsNewRecord(lineN+" new"))
	assert.False(t, IsNewRecord(lineN+"new"))
}

func TestFilterRecords(t *testing.T) {
	out := "USER  MOD reduce.3.24\r\n" + lineN + "\r\n" + "REMARK 1\n" + lineHOH + "\nCONECT    3    4\nTER\nEND\n"
	assert.Equal(t, []string{lineN, lineHOH, "CONECT    3    4"}, FilterRecords(out))
	assert.Empty(t, FilterRecords(""))
}

func TestInferElement(t *testing.T) {
	cases := []struct {
		raw   string
		isHet bool
		want  string
	}{
		{" CA ", false, "C"},
		{"CA  ", false, "C"},
		{"CA  ", true, "CA"},
		{"FE  ", true, "FE"},
		{"1HB ", false, "H"},
		{"C1  ", true, "C"},
		{"    ", false, ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, inferElement(tc.raw, tc.isHet), "%q het=%v", tc.raw, tc.isHet)
	}
}

func TestWrite_RoundTrip(t *testing.T) {
	s, err := Parse(strings.NewReader(sample()), "sample")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, s))

	// The engine hydrogen has serial 0, so every atom is renumbered.
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Equal(t, []string{
		lineN,
		lineCA,
		strings.Replace(strings.TrimSuffix(lineNew, "   new"), "ATOM      0", "ATOM      3", 1),
		"TER",
		strings.Replace(lineHOH, "HETATM    3", "HETATM    4", 1),
		strings.Replace(lineZN, "HETATM    4", "HETATM    5", 1),
		"CONECT    4    5",
		"CONECT    5    4",
		"END",
	}, lines)

	again, err := Parse(strings.NewReader(buf.String()), "again")
	require.NoError(t, err)
	assert.Equal(t, s.AtomCount(), again.AtomCount())
	assert.Equal(t, s.BondCount(), again.BondCount())
	for i, a := range s.Atoms() {
		b := again.Atoms()[i]
		assert.Equal(t, a.Key(), b.Key())
		assert.Equal(t, a.Symbol, b.Symbol)
		assert.False(t, b.IsNew)
	}
}

func TestWrite_KeepsUniqueSerials(t *testing.T) {
	in := strings.Join([]string{lineN, lineCA, lineHOH, lineZN, "CONECT    3    4", "END"}, "\n")
	s, err := Parse(strings.NewReader(in), "kept")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, s))
	assert.Contains(t, buf.String(), lineHOH)
	assert.Contains(t, buf.String(), lineZN)
	assert.Contains(t, buf.String(), "CONECT    3    4\n")
	assert.Contains(t, buf.String(), "CONECT    4    3\n")
}

func TestWrite_DuplicateSerialsAreRenumbered(t *testing.T) {
	s, err := Parse(strings.NewReader(sample()), "dup")
	require.NoError(t, err)
	atoms := s.Atoms()
	// A grafted hydrogen carrying the serial of an existing HETATM atom.
	atoms[2].Serial = 4
	zn := atoms[4]
	b, err := structure.NewBond(structure.CovalentSingle, zn, atoms[2])
	require.NoError(t, err)
	require.NoError(t, zn.Residue().AddBond(b))

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, s))

	back, err := Parse(strings.NewReader(buf.String()), "back")
	require.NoError(t, err)
	seen := map[int]bool{}
	for i, a := range back.Atoms() {
		assert.Equal(t, i+1, a.Serial)
		assert.False(t, seen[a.Serial])
		seen[a.Serial] = true
	}
	require.Equal(t, 2, back.BondCount())
	pairs := map[string]bool{}
	for _, bond := range back.Bonds() {
		a1, a2 := bond.Atoms()
		pairs[a1.Name+"-"+a2.Name] = true
		pairs[a2.Name+"-"+a1.Name] = true
	}
	assert.True(t, pairs["O-ZN"])
	assert.True(t, pairs["ZN-H"])
	assert.Contains(t, buf.String(), "CONECT    5    3    4\n")
}

func TestWrite_ColumnOverflow(t *testing.T) {
	cases := map[string]func(s *structure.Structure){
		"residue number too large": func(s *structure.Structure) { s.Residues()[1].Serial = 10000 },
		"residue number too small": func(s *structure.Structure) { s.Residues()[1].Serial = -1000 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			s, err := Parse(strings.NewReader(sample()), "wide")
			require.NoError(t, err)
			mutate(s)

			var buf bytes.Buffer
			err = Write(&buf, s)
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ErrCodeStructureWrite))
			assert.Zero(t, buf.Len(), "nothing written on overflow")
		})
	}
}

func TestWrite_LargeSerialsAreRenumbered(t *testing.T) {
	s, err := Parse(strings.NewReader(sample()), "wide")
	require.NoError(t, err)
	for i, a := range s.Atoms() {
		a.Serial = 100000 + i
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, s))
	assert.True(t, strings.HasPrefix(buf.String(), lineN+"\n"))
	assert.NotContains(t, buf.String(), "100000")
}

func TestAssignSerials_TooManyAtoms(t *testing.T) {
	atoms := make([]*structure.Atom, maxSerial+1)
	_, err := assignSerials("huge", atoms)
	assert.True(t, errors.IsCode(err, errors.ErrCodeStructureWrite))
}

func TestWrite_AllConect(t *testing.T) {
	s, err := Parse(strings.NewReader(sample()), "sample")
	require.NoError(t, err)
	atoms := s.Atoms()
	b, err := structure.NewBond(structure.CovalentSingle, atoms[0], atoms[1])
	require.NoError(t, err)
	require.NoError(t, atoms[0].Residue().AddBond(b))

	var plain, all bytes.Buffer
	require.NoError(t, Write(&plain, s))
	require.NoError(t, WriteWithOptions(&all, s, WriteOptions{AllConect: true}))

	assert.NotContains(t, plain.String(), "CONECT    1    2")
	assert.Contains(t, all.String(), "CONECT    1    2")
	assert.Contains(t, all.String(), "CONECT    2    1")
}

func TestWriteFileAndParseFile(t *testing.T) {
	s, err := Parse(strings.NewReader(sample()), "sample")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "nested", "out.pdb")
	require.NoError(t, WriteFile(path, s))

	back, err := ParseFile(path, "out")
	require.NoError(t, err)
	assert.Equal(t, 5, back.AtomCount())

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing.pdb"), "missing")
	assert.True(t, errors.IsCode(err, errors.ErrCodeStructureParse))
}

func TestWriteLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.pdb")
	require.NoError(t, WriteLines(path, []string{lineN, lineNew}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, lineN+"\n"+lineNew+"\n", string(raw))
}

//Personal.AI order the ending
