package pdb

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/turtacn/KeyIP-Protonate/internal/domain/structure"
	"github.com/turtacn/KeyIP-Protonate/pkg/errors"
)

// conectPerLine is the number of bonded serials a CONECT record can carry.
const conectPerLine = 4

// Fixed-column limits of the serial and residue sequence fields.
const (
	maxSerial = 99999
	minResSeq = -999
	maxResSeq = 9999
)

// WriteOptions tunes Write.
type WriteOptions struct {
	// AllConect emits CONECT records for every bond instead of only those
	// touching a HETATM atom.
	AllConect bool
}

// Write serialises s as ATOM/HETATM records in iteration order, a TER record
// after each polymer chain, CONECT records and a closing END.
//
// Atom serials are written as stored when they are positive and unique;
// otherwise every atom is renumbered from 1 in iteration order.  CONECT
// records always use the serials written on the atom records.  A value that
// does not fit its column yields ErrCodeStructureWrite and nothing is written.
func Write(w io.Writer, s *structure.Structure) error {
	return WriteWithOptions(w, s, WriteOptions{})
}

// WriteWithOptions is Write with explicit options.
func WriteWithOptions(w io.Writer, s *structure.Structure, opts WriteOptions) error {
	atoms := s.Atoms()
	serials, err := assignSerials(s.Name, atoms)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	for i, a := range atoms {
		bw.WriteString(formatAtom(a, serials[a]))
		bw.WriteByte('\n')
		if endsChain(atoms, i) {
			bw.WriteString(RecordTer)
			bw.WriteByte('\n')
		}
	}

	for _, line := range conectLines(s, serials, opts.AllConect) {
		bw.WriteString(line)
		bw.WriteByte('\n')
	}
	bw.WriteString(RecordEnd)
	bw.WriteByte('\n')

	if err := bw.Flush(); err != nil {
		return errors.Wrap(err, errors.ErrCodeStructureWrite, "failed to write PDB stream").
			WithDetail(s.Name)
	}
	return nil
}

// WriteFile writes s to path, creating parent directories as needed.
func WriteFile(path string, s *structure.Structure) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, errors.ErrCodeStructureWrite, "failed to create output directory").
			WithDetail(path)
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStructureWrite, "failed to create PDB file").
			WithDetail(path)
	}
	if err := Write(f, s); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, errors.ErrCodeStructureWrite, "failed to close PDB file").
			WithDetail(path)
	}
	return nil
}

// WriteLines writes raw record lines to path, one per line.
func WriteLines(path string, lines []string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStructureWrite, "failed to create record file").
			WithDetail(path)
	}
	bw := bufio.NewWriter(f)
	for _, l := range lines {
		bw.WriteString(l)
		bw.WriteByte('\n')
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return errors.Wrap(err, errors.ErrCodeStructureWrite, "failed to write record file").
			WithDetail(path)
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, errors.ErrCodeStructureWrite, "failed to close record file").
			WithDetail(path)
	}
	return nil
}

// assignSerials maps every atom to the serial it is written with.
func assignSerials(name string, atoms []*structure.Atom) (map[*structure.Atom]int, error) {
	if len(atoms) > maxSerial {
		return nil, errors.New(errors.ErrCodeStructureWrite, "too many atoms for PDB serial numbers").
			WithDetail(fmt.Sprintf("%s: %d atoms", name, len(atoms)))
	}
	serials := make(map[*structure.Atom]int, len(atoms))
	seen := make(map[int]bool, len(atoms))
	keep := true
	for _, a := range atoms {
		if r := a.Residue(); r != nil && (r.Serial < minResSeq || r.Serial > maxResSeq) {
			return nil, errors.New(errors.ErrCodeStructureWrite, "residue sequence number does not fit the PDB format").
				WithDetail(fmt.Sprintf("%s: %s %s%d", name, r.Name, r.Chain, r.Serial))
		}
		if a.Serial <= 0 || a.Serial > maxSerial || seen[a.Serial] {
			keep = false
		}
		seen[a.Serial] = true
		serials[a] = a.Serial
	}
	if !keep {
		for i, a := range atoms {
			serials[a] = i + 1
		}
	}
	return serials, nil
}

func formatAtom(a *structure.Atom, serial int) string {
	record := RecordAtom
	if a.IsHet {
		record = RecordHetatm
	}
	var resName, chain, icode string
	var resSeq int
	if r := a.Residue(); r != nil {
		resName, chain, icode, resSeq = r.Name, r.Chain, r.InsertionCode, r.Serial
	}
	return fmt.Sprintf("%-6s%5d %-4s%1s%3s %1s%4d%1s   %8.3f%8.3f%8.3f%6.2f%6.2f          %2s%2s",
		record,
		serial,
		alignName(a.Name, a.Symbol),
		a.AltLoc,
		resName,
		chain,
		resSeq,
		icode,
		a.Position.X, a.Position.Y, a.Position.Z,
		a.Occupancy,
		a.BFactor,
		strings.ToUpper(a.Symbol),
		a.Charge,
	)
}

// alignName places one-letter element names in column 14 as the format
// requires; four-character names and two-letter elements start in column 13.
func alignName(name, symbol string) string {
	if len(name) < 4 && len(symbol) == 1 {
		return " " + name
	}
	return name
}

// endsChain reports whether atoms[i] is the last polymer atom of its chain.
func endsChain(atoms []*structure.Atom, i int) bool {
	a := atoms[i]
	if a.IsHet {
		return false
	}
	chain := a.Residue().Chain
	for _, next := range atoms[i+1:] {
		if next.IsHet {
			continue
		}
		return next.Residue().Chain != chain
	}
	return true
}

func conectLines(s *structure.Structure, serialOf map[*structure.Atom]int, all bool) []string {
	partners := make(map[*structure.Atom][]int)
	var origins []*structure.Atom
	add := func(a *structure.Atom, serial int) {
		if _, ok := partners[a]; !ok {
			origins = append(origins, a)
		}
		partners[a] = append(partners[a], serial)
	}
	for _, b := range s.Bonds() {
		a1, a2 := b.Atoms()
		if !all && !a1.IsHet && !a2.IsHet {
			continue
		}
		add(a1, serialOf[a2])
		add(a2, serialOf[a1])
	}
	sort.SliceStable(origins, func(i, j int) bool { return serialOf[origins[i]] < serialOf[origins[j]] })

	var lines []string
	for _, a := range origins {
		serials := partners[a]
		sort.Ints(serials)
		for start := 0; start < len(serials); start += conectPerLine {
			end := start + conectPerLine
			if end > len(serials) {
				end = len(serials)
			}
			var sb strings.Builder
			fmt.Fprintf(&sb, "%-6s%5d", RecordConect, serialOf[a])
			for _, n := range serials[start:end] {
				fmt.Fprintf(&sb, "%5d", n)
			}
			lines = append(lines, sb.String())
		}
	}
	return lines
}

//Personal.AI order the ending
