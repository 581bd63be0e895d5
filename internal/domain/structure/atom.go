package structure

import (
	"fmt"
	"strings"

	"github.com/turtacn/KeyIP-Protonate/pkg/errors"
)

// HydrogenSymbol is the element symbol of hydrogen.
const HydrogenSymbol = "H"

// DisplayMode is the rendering style of an atom.
type DisplayMode int

const (
	DisplaySphere DisplayMode = iota
	DisplayBall
	DisplayStick
)

func (m DisplayMode) String() string {
	switch m {
	case DisplaySphere:
		return "sphere"
	case DisplayBall:
		return "ball"
	case DisplayStick:
		return "stick"
	default:
		return fmt.Sprintf("DisplayMode(%d)", int(m))
	}
}

// Presentation is the per-atom rendering and crystallographic state that a
// newly placed hydrogen inherits from its bonding partner.
type Presentation struct {
	DisplayMode DisplayMode
	Selected    bool
	IsHet       bool
	BFactor     float64
	Occupancy   float64
}

// AtomSpec carries every field required to construct an Atom.
type AtomSpec struct {
	Serial   int
	Name     string
	Symbol   string
	AltLoc   string
	Charge   string
	Position Vec3

	Presentation Presentation

	// IsNew marks an atom the protonation engine introduced.
	IsNew bool
}

// Atom is a node of the molecular graph.  Atoms are created with NewAtom and
// receive their residue back-reference when added to a Residue.
type Atom struct {
	Serial   int
	Name     string
	Symbol   string
	AltLoc   string
	Charge   string
	Position Vec3
	Presentation
	IsNew bool

	residue *Residue
}

// NewAtom validates spec and returns a detached atom.  The element symbol is
// normalised to its conventional capitalisation ("CL" → "Cl").
func NewAtom(spec AtomSpec) (*Atom, error) {
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return nil, errors.New(errors.ErrCodeValidation, "atom name must not be empty").
			WithDetail(fmt.Sprintf("serial=%d", spec.Serial))
	}
	symbol := NormalizeSymbol(spec.Symbol)
	if symbol == "" {
		return nil, errors.New(errors.ErrCodeValidation, "atom symbol must not be empty").
			WithDetail(fmt.Sprintf("serial=%d name=%s", spec.Serial, name))
	}
	if !spec.Position.IsFinite() {
		return nil, errors.New(errors.ErrCodeValidation, "atom position must be finite").
			WithDetail(fmt.Sprintf("serial=%d name=%s", spec.Serial, name))
	}
	return &Atom{
		Serial:       spec.Serial,
		Name:         name,
		Symbol:       symbol,
		AltLoc:       strings.TrimSpace(spec.AltLoc),
		Charge:       strings.TrimSpace(spec.Charge),
		Position:     spec.Position,
		Presentation: spec.Presentation,
		IsNew:        spec.IsNew,
	}, nil
}

// Spec returns the fields of a as an AtomSpec, suitable for building a copy.
func (a *Atom) Spec() AtomSpec {
	return AtomSpec{
		Serial:       a.Serial,
		Name:         a.Name,
		Symbol:       a.Symbol,
		AltLoc:       a.AltLoc,
		Charge:       a.Charge,
		Position:     a.Position,
		Presentation: a.Presentation,
		IsNew:        a.IsNew,
	}
}

// Residue returns the owning residue, or nil for a detached atom.
func (a *Atom) Residue() *Residue { return a.residue }

// IsHydrogen reports whether the atom's element is hydrogen.
func (a *Atom) IsHydrogen() bool { return a.Symbol == HydrogenSymbol }

// Key returns the PositionKey of the atom's current position.
func (a *Atom) Key() PositionKey { return KeyOf(a.Position) }

// Label renders "<chain>:<resname><seq><icode>:<atom>", e.g. "A:LYS12:NZ".
func (a *Atom) Label() string {
	if a.residue == nil {
		return fmt.Sprintf("?:%s#%d", a.Name, a.Serial)
	}
	return a.residue.Label() + ":" + a.Name
}

// NormalizeSymbol upper-cases the first letter of an element symbol and
// lower-cases the rest.
func NormalizeSymbol(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

//Personal.AI order the ending
