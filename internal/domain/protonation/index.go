// Package protonation grafts engine-placed hydrogens onto the structure they
// were computed for.
//
// The engine works on a serialised copy, so its output is a second,
// independent graph.  Atoms of the two graphs are matched by PositionKey
// only: each new hydrogen's heavy partner is found in the engine graph and
// resolved back to the original through a PositionIndex.
package protonation

import "github.com/turtacn/KeyIP-Protonate/internal/domain/structure"

// PositionIndex maps position keys to the atoms of one structure.
type PositionIndex map[structure.PositionKey]*structure.Atom

// NewPositionIndex indexes every atom of s.  When two atoms share a key the
// later one in iteration order wins.
func NewPositionIndex(s *structure.Structure) PositionIndex {
	atoms := s.Atoms()
	idx := make(PositionIndex, len(atoms))
	for _, a := range atoms {
		idx[a.Key()] = a
	}
	return idx
}

// Lookup returns the atom at p's key.
func (idx PositionIndex) Lookup(p structure.Vec3) (*structure.Atom, bool) {
	a, ok := idx[structure.KeyOf(p)]
	return a, ok
}

//Personal.AI order the ending
