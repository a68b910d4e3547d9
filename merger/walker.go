package merger

import (
	"dag-ledger/dag"
	"dag-ledger/models"
)

// ConflictSource lists the blocks to leave out when merging the given parents.
type ConflictSource interface {
	ConflictsBetween(parents []models.Hash) ([]models.Hash, error)
}

// Walker iterates a branch from a block down to genesis like dag.ChainWalker, except that at every
// multi-parent block it yields the merge of that block's parents, top first, before carrying on
// below their common ancestor. Skipped runs come out as one gap per timeslot.
type Walker struct {
	merger *Merger
	source ConflictSource

	chain   *dag.ChainWalker
	buffer  []models.Slot
	current models.Slot
	err     error
}

// Walk returns a merging walker starting at from. source may be nil, in which case nothing is left
// out of the nested merges.
func (m *Merger) Walk(from models.Hash, source ConflictSource) (*Walker, error) {
	chain, err := m.dag.Walk(from)
	if err != nil {
		return nil, err
	}
	return &Walker{merger: m, source: source, chain: chain}, nil
}

func (w *Walker) Next() bool {
	if w.err != nil {
		return false
	}
	if len(w.buffer) > 0 {
		w.current = w.buffer[0]
		w.buffer = w.buffer[1:]
		return true
	}
	if !w.chain.Next() {
		return false
	}
	slot := w.chain.Slot()
	if slot.IsOccupied() && slot.Block.Block.IsMerge() {
		if err := w.splice(slot.Block); err != nil {
			w.err = err
			return false
		}
	}
	w.current = slot
	return true
}

func (w *Walker) splice(block *models.SignedBlock) error {
	parents := block.Block.PrevHashes()
	var conflicts []models.Hash
	if w.source != nil {
		var err error
		if conflicts, err = w.source.ConflictsBetween(parents); err != nil {
			return err
		}
	}
	seq, err := w.merger.Merge(parents, conflicts)
	if err != nil {
		return err
	}
	for i := len(seq.slots) - 1; i >= 1; i-- {
		w.buffer = append(w.buffer, expand(seq.slots[i])...)
	}
	// The common ancestor comes from the chain so that its own parents get merged when it has several.
	chain, err := w.merger.dag.Walk(seq.slots[0].Hash())
	if err != nil {
		return err
	}
	w.chain = chain
	return nil
}

func (w *Walker) Slot() models.Slot {
	return w.current
}

// Err returns the error that stopped the walk, if any.
func (w *Walker) Err() error {
	return w.err
}

// Collect drains the walker.
func (w *Walker) Collect() ([]models.Slot, error) {
	var slots []models.Slot
	for w.Next() {
		slots = append(slots, w.Slot())
	}
	return slots, w.err
}

// expand turns a skipped slot into its gaps, highest timeslot first.
func expand(slot models.Slot) []models.Slot {
	if !slot.IsSkipped() {
		return []models.Slot{slot}
	}
	gaps := make([]models.Slot, 0, slot.Backstep)
	for n := slot.Last(); n >= slot.Number; n-- {
		gaps = append(gaps, models.Gap(n))
	}
	return gaps
}
