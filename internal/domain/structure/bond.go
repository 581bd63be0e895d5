package structure

import (
	"fmt"

	"github.com/turtacn/KeyIP-Protonate/pkg/errors"
)

// BondKind is the order or type of a bond.
type BondKind int

const (
	CovalentSingle BondKind = iota
	CovalentDouble
	CovalentTriple
	Aromatic
	UnknownBond
)

func (k BondKind) String() string {
	switch k {
	case CovalentSingle:
		return "single"
	case CovalentDouble:
		return "double"
	case CovalentTriple:
		return "triple"
	case Aromatic:
		return "aromatic"
	default:
		return "unknown"
	}
}

// Bond is an edge between two distinct atoms.
type Bond struct {
	Kind  BondKind
	atoms [2]*Atom
}

// NewBond returns a bond of kind between a1 and a2.
func NewBond(kind BondKind, a1, a2 *Atom) (*Bond, error) {
	if a1 == nil || a2 == nil {
		return nil, errors.New(errors.ErrCodeValidation, "bond endpoints must not be nil")
	}
	if a1 == a2 {
		return nil, errors.New(errors.ErrCodeValidation, "bond endpoints must be distinct").
			WithDetail(fmt.Sprintf("serial=%d", a1.Serial))
	}
	return &Bond{Kind: kind, atoms: [2]*Atom{a1, a2}}, nil
}

// Atoms returns both endpoints in construction order.
func (b *Bond) Atoms() (*Atom, *Atom) { return b.atoms[0], b.atoms[1] }

// Contains reports whether a is an endpoint of b.
func (b *Bond) Contains(a *Atom) bool { return b.atoms[0] == a || b.atoms[1] == a }

// Other returns the endpoint opposite a, or nil when a is not an endpoint.
func (b *Bond) Other(a *Atom) *Atom {
	switch a {
	case b.atoms[0]:
		return b.atoms[1]
	case b.atoms[1]:
		return b.atoms[0]
	}
	return nil
}

// Length returns the distance between the endpoints.
func (b *Bond) Length() float64 {
	return Distance(b.atoms[0].Position, b.atoms[1].Position)
}

//Personal.AI order the ending
