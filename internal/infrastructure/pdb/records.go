// Package pdb reads and writes the fixed-width PDB interchange format used to
// exchange structures with the protonation engine.
//
// Only the records the pipeline needs are understood: ATOM, HETATM, CONECT,
// TER, END and the MODEL/ENDMDL pair (the first model is read, the rest are
// ignored).  Column positions follow the wwPDB v3.3 layout.
package pdb

import (
	"strings"
)

// Record names.
const (
	RecordAtom   = "ATOM"
	RecordHetatm = "HETATM"
	RecordConect = "CONECT"
	RecordTer    = "TER"
	RecordEnd    = "END"
	RecordModel  = "MODEL"
	RecordEndmdl = "ENDMDL"
)

// newMarker is the trailing token the engine appends to the records of atoms
// it introduced.
const newMarker = "new"

// newRecordMinLength is the shortest line (without terminator) that can carry
// the marker; the standard 80 columns plus the marker field.
const newRecordMinLength = 84

// ─────────────────────────────────────────────────────────────────────────────
// Column layout (zero-based, half-open)
// ─────────────────────────────────────────────────────────────────────────────

type span struct{ from, to int }

var (
	colRecord    = span{0, 6}
	colSerial    = span{6, 11}
	colName      = span{12, 16}
	colAltLoc    = span{16, 17}
	colResName   = span{17, 20}
	colChain     = span{21, 22}
	colResSeq    = span{22, 26}
	colICode     = span{26, 27}
	colX         = span{30, 38}
	colY         = span{38, 46}
	colZ         = span{46, 54}
	colOccupancy = span{54, 60}
	colBFactor   = span{60, 66}
	colElement   = span{76, 78}
	colCharge    = span{78, 80}

	// CONECT: origin serial followed by up to four bonded serials.
	colConect = []span{{6, 11}, {11, 16}, {16, 21}, {21, 26}, {26, 31}}
)

// minAtomLength is the shortest ATOM/HETATM line that still carries all three
// coordinates.
const minAtomLength = 54

// field returns the column range of line, or "" when the line is too short.
// Lines shorter than the range end are read up to their end.
func field(line string, s span) string {
	if len(line) <= s.from {
		return ""
	}
	to := s.to
	if to > len(line) {
		to = len(line)
	}
	return line[s.from:to]
}

// recordName returns the trimmed record name of line.
func recordName(line string) string {
	return strings.TrimSpace(field(line, colRecord))
}

// IsStructuralRecord reports whether line starts with ATOM, HETATM or CONECT.
func IsStructuralRecord(line string) bool {
	return strings.HasPrefix(line, RecordAtom) ||
		strings.HasPrefix(line, RecordHetatm) ||
		strings.HasPrefix(line, RecordConect)
}

// IsNewRecord reports whether line flags an atom the engine introduced: at
// least 84 characters of content ending with the token "new".  A trailing
// line terminator is ignored.
func IsNewRecord(line string) bool {
	line = strings.TrimRight(line, "\r\n")
	return len(line) >= newRecordMinLength && strings.HasSuffix(line, newMarker)
}

// FilterRecords splits engine output into lines and keeps only the
// structural records, in order.
func FilterRecords(output string) []string {
	var kept []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if IsStructuralRecord(line) {
			kept = append(kept, line)
		}
	}
	return kept
}

//Personal.AI order the ending
