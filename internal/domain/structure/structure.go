// Package structure implements the in-memory molecular graph that the
// protonation pipeline reads and mutates: structures made of residues, which
// own atoms and bonds.
//
// Atom iteration order is residue insertion order, then atom insertion order
// within each residue.  Parsers append in file order so that the iteration
// index of an atom equals its record index.
package structure

import "sync"

// Structure is a mutable molecular graph.
type Structure struct {
	Name string

	mu        sync.Mutex
	residues  []*Residue
	atomCount int
}

// New returns an empty structure.
func New(name string) *Structure {
	return &Structure{Name: name}
}

// Lock acquires exclusive access for graph mutation.
func (s *Structure) Lock() { s.mu.Lock() }

// Unlock releases the lock taken by Lock.
func (s *Structure) Unlock() { s.mu.Unlock() }

// AddResidue appends a new empty residue.
func (s *Structure) AddResidue(name string, serial int, chain, insertionCode string) *Residue {
	r := &Residue{
		Name:          name,
		Serial:        serial,
		Chain:         chain,
		InsertionCode: insertionCode,
		structure:     s,
	}
	s.residues = append(s.residues, r)
	return r
}

// Residues returns the residues in insertion order.
func (s *Structure) Residues() []*Residue {
	out := make([]*Residue, len(s.residues))
	copy(out, s.residues)
	return out
}

// Atoms returns every atom in iteration order.
func (s *Structure) Atoms() []*Atom {
	out := make([]*Atom, 0, s.atomCount)
	for _, r := range s.residues {
		out = append(out, r.atoms...)
	}
	return out
}

// AtomCount returns the number of atoms in the structure.
func (s *Structure) AtomCount() int { return s.atomCount }

// Bonds returns the union of every residue's bonds.
func (s *Structure) Bonds() []*Bond {
	var out []*Bond
	for _, r := range s.residues {
		out = append(out, r.bonds...)
	}
	return out
}

// BondCount returns the number of bonds registered across all residues.
func (s *Structure) BondCount() int {
	n := 0
	for _, r := range s.residues {
		n += len(r.bonds)
	}
	return n
}

// Contains reports whether a belongs to this structure.
func (s *Structure) Contains(a *Atom) bool {
	return a != nil && a.residue != nil && a.residue.structure == s
}

// NewAtomIndices returns, in ascending order, the iteration indices of atoms
// flagged IsNew.
func (s *Structure) NewAtomIndices() []int {
	var out []int
	i := 0
	for _, r := range s.residues {
		for _, a := range r.atoms {
			if a.IsNew {
				out = append(out, i)
			}
			i++
		}
	}
	return out
}

//Personal.AI order the ending
