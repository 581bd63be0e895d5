package protonation

import (
	"github.com/turtacn/KeyIP-Protonate/internal/domain/structure"
	"github.com/turtacn/KeyIP-Protonate/pkg/errors"
)

// Addition is one hydrogen grafted onto the original structure.
type Addition struct {
	// Index is the hydrogen's atom index in the engine structure.
	Index int

	Hydrogen *structure.Atom
	Partner  *structure.Atom
	Bond     *structure.Bond
	Distance float64
}

// Skip is one hydrogen left out, with the reason code.
type Skip struct {
	Index    int
	Serial   int
	Label    string
	Reason   errors.ErrorCode
	Distance float64
}

// Report summarises one reconciliation.
type Report struct {
	Requested int
	Added     []Addition
	Skipped   []Skip
}

// AddedCount returns the number of grafted hydrogens.
func (r *Report) AddedCount() int { return len(r.Added) }

// SkippedCount returns the number of hydrogens left out.
func (r *Report) SkippedCount() int { return len(r.Skipped) }

// SkippedBy counts skips per reason.
func (r *Report) SkippedBy() map[errors.ErrorCode]int {
	out := make(map[errors.ErrorCode]int)
	for _, s := range r.Skipped {
		out[s.Reason]++
	}
	return out
}

func (r *Report) skip(index int, h *structure.Atom, reason errors.ErrorCode, d float64) {
	s := Skip{Index: index, Reason: reason, Distance: d}
	if h != nil {
		s.Serial = h.Serial
		s.Label = h.Label()
	}
	r.Skipped = append(r.Skipped, s)
}

//Personal.AI order the ending
