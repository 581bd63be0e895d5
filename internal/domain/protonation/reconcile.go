package protonation

import (
	"math"

	"github.com/turtacn/KeyIP-Protonate/internal/domain/structure"
	"github.com/turtacn/KeyIP-Protonate/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-Protonate/pkg/errors"
)

// DefaultMaxBondDistance is the longest hydrogen to heavy atom distance, in
// Ångström, accepted as a bond.
const DefaultMaxBondDistance = 2.0

// Reconciler grafts engine hydrogens onto original structures.
type Reconciler struct {
	maxBondDistance float64
	logger          logging.Logger
}

// NewReconciler returns a Reconciler accepting partners up to maxBondDistance
// (inclusive).  A non-positive distance selects DefaultMaxBondDistance.
func NewReconciler(maxBondDistance float64, logger logging.Logger) *Reconciler {
	if maxBondDistance <= 0 {
		maxBondDistance = DefaultMaxBondDistance
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Reconciler{maxBondDistance: maxBondDistance, logger: logger}
}

// MaxBondDistance returns the configured bonding cutoff.
func (r *Reconciler) MaxBondDistance() float64 { return r.maxBondDistance }

// ReconcileStructures indexes original and reconciles in one call.
func (r *Reconciler) ReconcileStructures(original, reparsed *structure.Structure, hydrogens []int) *Report {
	original.Lock()
	index := NewPositionIndex(original)
	original.Unlock()
	return r.Reconcile(original, index, reparsed, hydrogens)
}

// Reconcile grafts the hydrogens at the given atom indices of reparsed onto
// original.  index must have been built over original before the engine ran.
//
// For each hydrogen the nearest non-hydrogen atom of its own residue in
// reparsed is taken as partner; the pair is bonded in reparsed, the partner
// is resolved to an original atom by position key, and a copy of the
// hydrogen carrying the original atom's presentation is inserted into that
// atom's residue together with a bond to it.  Hydrogens without a partner
// within range or whose partner has no counterpart are skipped.  Existing
// atoms and bonds of original are never modified.
func (r *Reconciler) Reconcile(original *structure.Structure, index PositionIndex, reparsed *structure.Structure, hydrogens []int) *Report {
	report := &Report{Requested: len(hydrogens)}
	log := r.logger.With(logging.Structure(original.Name))
	log.Debug("matching atoms", logging.Int("hydrogens", len(hydrogens)))

	original.Lock()
	defer original.Unlock()

	atoms := reparsed.Atoms()
	for _, i := range hydrogens {
		if i < 0 || i >= len(atoms) {
			log.Warn("hydrogen index outside engine structure", logging.Int("index", i))
			report.skip(i, nil, errors.ErrCodeUnreadableOutput, 0)
			continue
		}
		h := atoms[i]
		h.Symbol = structure.HydrogenSymbol

		partner, d := closestHeavyAtom(h)
		if partner == nil {
			log.Debug("no heavy atom in residue", logging.Atom("hydrogen", h.Label()))
			report.skip(i, h, errors.ErrCodeNoPartnerFound, 0)
			continue
		}
		if d > r.maxBondDistance {
			log.Debug("nearest heavy atom too far",
				logging.Atom("hydrogen", h.Label()),
				logging.Atom("heavy", partner.Label()),
				logging.Float64("distance", d))
			report.skip(i, h, errors.ErrCodePartnerTooFar, d)
			continue
		}

		engineBond, err := structure.NewBond(structure.CovalentSingle, h, partner)
		if err == nil {
			err = partner.Residue().AddBond(engineBond)
		}
		if err != nil {
			log.Error("cannot bond hydrogen in engine structure", logging.Atom("hydrogen", h.Label()), logging.Err(err))
			report.skip(i, h, errors.GetCode(err), d)
			continue
		}

		source, ok := index.Lookup(partner.Position)
		if !ok {
			log.Warn("hydrogen partner not found in original structure",
				logging.Atom("hydrogen", h.Label()),
				logging.Atom("heavy", partner.Label()),
				logging.String("key", partner.Key().String()))
			report.skip(i, h, errors.ErrCodeOrphanPartner, d)
			continue
		}

		added, bond, err := graft(h, source, engineBond.Kind)
		if err != nil {
			log.Error("cannot graft hydrogen", logging.Atom("hydrogen", h.Label()), logging.Err(err))
			report.skip(i, h, errors.GetCode(err), d)
			continue
		}
		report.Added = append(report.Added, Addition{
			Index:    i,
			Hydrogen: added,
			Partner:  source,
			Bond:     bond,
			Distance: d,
		})
	}

	log.Debug("matching done",
		logging.Int("added", report.AddedCount()),
		logging.Int("skipped", report.SkippedCount()))
	return report
}

// closestHeavyAtom scans h's residue for the nearest atom that is neither h
// nor a hydrogen.
func closestHeavyAtom(h *structure.Atom) (*structure.Atom, float64) {
	res := h.Residue()
	if res == nil {
		return nil, 0
	}
	var best *structure.Atom
	bestD := math.Inf(1)
	for _, a := range res.Atoms() {
		if a == h || a.IsHydrogen() {
			continue
		}
		if d := structure.Distance(a.Position, h.Position); d < bestD {
			best, bestD = a, d
		}
	}
	return best, bestD
}

// graft inserts a copy of h bonded to source into source's residue.  The copy
// keeps h's identity and position and takes source's presentation.
func graft(h, source *structure.Atom, kind structure.BondKind) (*structure.Atom, *structure.Bond, error) {
	spec := h.Spec()
	spec.Presentation = source.Presentation
	spec.IsNew = false

	atom, err := structure.NewAtom(spec)
	if err != nil {
		return nil, nil, err
	}
	bond, err := structure.NewBond(kind, source, atom)
	if err != nil {
		return nil, nil, err
	}
	res := source.Residue()
	if err := res.AddAtom(atom); err != nil {
		return nil, nil, err
	}
	if err := res.AddBond(bond); err != nil {
		return nil, nil, err
	}
	return atom, bond, nil
}

//Personal.AI order the ending
