package pdb

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode"

	"github.com/turtacn/KeyIP-Protonate/internal/domain/structure"
	"github.com/turtacn/KeyIP-Protonate/pkg/errors"
)

// maxLineLength bounds a single record; real records are under 100 bytes.
const maxLineLength = 64 * 1024

type residueKey struct {
	chain   string
	seq     int
	icode   string
	resName string
}

type bondPair [2]int

func orderedPair(a, b int) bondPair {
	if a > b {
		a, b = b, a
	}
	return bondPair{a, b}
}

// reader holds the state of one Parse call.
type reader struct {
	name     string
	s        *structure.Structure
	current  *structure.Residue
	curKey   residueKey
	bySerial map[int]*structure.Atom
	seen     map[bondPair]struct{}
	conects  [][]int
	conLines []int
}

// Parse reads ATOM, HETATM and CONECT records from r into a new structure
// named name.  Atoms are appended in record order, so the iteration index of
// each atom equals its position among the ATOM/HETATM records.  Records that
// satisfy IsNewRecord produce atoms with IsNew set.
func Parse(r io.Reader, name string) (*structure.Structure, error) {
	p := &reader{
		name:     name,
		s:        structure.New(name),
		bySerial: make(map[int]*structure.Atom),
		seen:     make(map[bondPair]struct{}),
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxLineLength)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		switch recordName(line) {
		case RecordAtom, RecordHetatm:
			if err := p.atom(line, lineNo); err != nil {
				return nil, err
			}
		case RecordConect:
			serials, err := parseConect(line)
			if err != nil {
				return nil, p.errorf(lineNo, "malformed CONECT record: %v", err)
			}
			p.conects = append(p.conects, serials)
			p.conLines = append(p.conLines, lineNo)
		case RecordEndmdl:
			// First model only.
			return p.finish()
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStructureParse, "failed to read PDB stream").
			WithDetail(name)
	}
	return p.finish()
}

// ParseFile opens path and parses it, naming the structure after the file.
func ParseFile(path, name string) (*structure.Structure, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStructureParse, "failed to open PDB file").
			WithDetail(path)
	}
	defer f.Close()
	return Parse(f, name)
}

func (p *reader) errorf(lineNo int, format string, args ...interface{}) error {
	return errors.Newf(errors.ErrCodeStructureParse, format, args...).
		WithDetail(fmt.Sprintf("%s:%d", p.name, lineNo))
}

func (p *reader) atom(line string, lineNo int) error {
	if len(line) < minAtomLength {
		return p.errorf(lineNo, "atom record shorter than %d columns", minAtomLength)
	}

	serial, err := parseIntField(field(line, colSerial))
	if err != nil {
		return p.errorf(lineNo, "invalid atom serial: %v", err)
	}
	resSeq, err := parseIntField(field(line, colResSeq))
	if err != nil {
		return p.errorf(lineNo, "invalid residue sequence number: %v", err)
	}

	var pos structure.Vec3
	for i, col := range []span{colX, colY, colZ} {
		v, err := strconv.ParseFloat(strings.TrimSpace(field(line, col)), 64)
		if err != nil {
			return p.errorf(lineNo, "invalid coordinate: %v", err)
		}
		switch i {
		case 0:
			pos.X = v
		case 1:
			pos.Y = v
		default:
			pos.Z = v
		}
	}

	occupancy, err := parseFloatField(field(line, colOccupancy), 1.0)
	if err != nil {
		return p.errorf(lineNo, "invalid occupancy: %v", err)
	}
	bfactor, err := parseFloatField(field(line, colBFactor), 0)
	if err != nil {
		return p.errorf(lineNo, "invalid temperature factor: %v", err)
	}

	isHet := recordName(line) == RecordHetatm
	rawName := field(line, colName)
	symbol := strings.TrimSpace(field(line, colElement))
	if symbol == "" || !isAlpha(symbol) {
		symbol = inferElement(rawName, isHet)
	}
	charge := field(line, colCharge)
	if IsNewRecord(line) {
		// Engine-added atoms carry no formal charge.
		charge = ""
	}

	a, err := structure.NewAtom(structure.AtomSpec{
		Serial:   serial,
		Name:     rawName,
		Symbol:   symbol,
		AltLoc:   field(line, colAltLoc),
		Charge:   charge,
		Position: pos,
		Presentation: structure.Presentation{
			DisplayMode: structure.DisplayStick,
			IsHet:       isHet,
			BFactor:     bfactor,
			Occupancy:   occupancy,
		},
		IsNew: IsNewRecord(line),
	})
	if err != nil {
		return p.errorf(lineNo, "invalid atom: %v", err)
	}

	key := residueKey{
		chain:   strings.TrimSpace(field(line, colChain)),
		seq:     resSeq,
		icode:   strings.TrimSpace(field(line, colICode)),
		resName: strings.TrimSpace(field(line, colResName)),
	}
	if p.current == nil || key != p.curKey {
		p.current = p.s.AddResidue(key.resName, key.seq, key.chain, key.icode)
		p.curKey = key
	}
	if err := p.current.AddAtom(a); err != nil {
		return p.errorf(lineNo, "%v", err)
	}
	p.bySerial[serial] = a
	return nil
}

// finish resolves CONECT records once every atom is known.  Serials that do
// not name an atom are ignored.
func (p *reader) finish() (*structure.Structure, error) {
	for i, serials := range p.conects {
		origin, ok := p.bySerial[serials[0]]
		if !ok {
			continue
		}
		for _, other := range serials[1:] {
			target, ok := p.bySerial[other]
			if !ok || target == origin {
				continue
			}
			pair := orderedPair(serials[0], other)
			if _, dup := p.seen[pair]; dup {
				continue
			}
			p.seen[pair] = struct{}{}
			b, err := structure.NewBond(structure.CovalentSingle, origin, target)
			if err != nil {
				return nil, p.errorf(p.conLines[i], "%v", err)
			}
			if err := origin.Residue().AddBond(b); err != nil {
				return nil, p.errorf(p.conLines[i], "%v", err)
			}
		}
	}
	return p.s, nil
}

func parseConect(line string) ([]int, error) {
	var serials []int
	for _, col := range colConect {
		raw := strings.TrimSpace(field(line, col))
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, err
		}
		serials = append(serials, n)
	}
	if len(serials) < 2 {
		return nil, fmt.Errorf("need an origin and at least one partner, got %d serials", len(serials))
	}
	return serials, nil
}

// parseIntField parses a right-justified integer column; blank means zero.
func parseIntField(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func parseFloatField(raw string, def float64) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	return strconv.ParseFloat(raw, 64)
}

// inferElement derives an element symbol from the 4-column atom name field
// when the element columns are blank.  Element symbols are right-justified in
// columns 13-14, so a name starting with a blank or digit has a one-letter
// element in its second column.  Two-letter elements only occur on HETATM
// records.
func inferElement(rawName string, isHet bool) string {
	padded := (rawName + "    ")[:4]
	first, second := rune(padded[0]), rune(padded[1])
	switch {
	case first == ' ' || unicode.IsDigit(first):
		if unicode.IsLetter(second) {
			return string(second)
		}
	case isHet && unicode.IsLetter(second) && !unicode.IsDigit(second):
		return string(first) + string(second)
	case unicode.IsLetter(first):
		return string(first)
	}
	for _, c := range strings.TrimSpace(rawName) {
		if unicode.IsLetter(c) {
			return string(c)
		}
	}
	return ""
}

func isAlpha(s string) bool {
	for _, c := range s {
		if !unicode.IsLetter(c) {
			return false
		}
	}
	return true
}

//Personal.AI order the ending
