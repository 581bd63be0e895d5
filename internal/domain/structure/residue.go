package structure

import (
	"fmt"

	"github.com/turtacn/KeyIP-Protonate/pkg/errors"
)

// Residue is the container into which atoms and bonds are inserted.
type Residue struct {
	Name          string
	Serial        int
	Chain         string
	InsertionCode string

	atoms     []*Atom
	bonds     []*Bond
	structure *Structure
}

// Structure returns the owning structure.
func (r *Residue) Structure() *Structure { return r.structure }

// Atoms returns the residue's atoms in insertion order.
func (r *Residue) Atoms() []*Atom {
	out := make([]*Atom, len(r.atoms))
	copy(out, r.atoms)
	return out
}

// Bonds returns the bonds registered on this residue.
func (r *Residue) Bonds() []*Bond {
	out := make([]*Bond, len(r.bonds))
	copy(out, r.bonds)
	return out
}

// Label renders "<chain>:<name><serial><icode>".
func (r *Residue) Label() string {
	return fmt.Sprintf("%s:%s%d%s", r.Chain, r.Name, r.Serial, r.InsertionCode)
}

// AddAtom appends a to the residue and sets its back-reference.  An atom may
// belong to one residue only.  Callers mutating a shared structure must hold
// its lock.
func (r *Residue) AddAtom(a *Atom) error {
	if a == nil {
		return errors.New(errors.ErrCodeValidation, "cannot add nil atom")
	}
	if a.residue != nil {
		return errors.New(errors.ErrCodeConflict, "atom already belongs to a residue").
			WithDetail(a.Label())
	}
	a.residue = r
	r.atoms = append(r.atoms, a)
	if r.structure != nil {
		r.structure.atomCount++
	}
	return nil
}

// AddBond registers b on the residue.  Both endpoints must already belong to
// the residue's structure, so a bond can never link two graphs.
func (r *Residue) AddBond(b *Bond) error {
	if b == nil {
		return errors.New(errors.ErrCodeValidation, "cannot add nil bond")
	}
	for _, a := range b.atoms {
		if a.residue == nil || a.residue.structure != r.structure {
			return errors.New(errors.ErrCodeConflict, "bond endpoint outside residue's structure").
				WithDetail(a.Label())
		}
	}
	r.bonds = append(r.bonds, b)
	return nil
}

//Personal.AI order the ending
