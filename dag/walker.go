package dag

import "dag-ledger/models"

// ChainWalker iterates one branch of a DAG from a block down to genesis, always following the first
// parent. Every timeslot without a block on that branch is yielded as a gap.
//
//	w, _ := d.Walk(tip)
//	for w.Next() {
//		slot := w.Slot()
//	}
type ChainWalker struct {
	dag *DAG

	pending       *models.SignedBlock
	pendingNumber int
	cursor        int
	lower         int
	current       models.Slot
}

// Walk returns a walker over every timeslot from the block at from down to genesis.
func (d *DAG) Walk(from models.Hash) (*ChainWalker, error) {
	number, err := d.BlockNumber(from)
	if err != nil {
		return nil, err
	}
	return d.WalkRound(from, 0, number)
}

// WalkRound returns a walker restricted to the timeslot window [lower, upper]. Blocks above upper are
// passed over without being yielded, and iteration stops once the branch drops below lower.
func (d *DAG) WalkRound(from models.Hash, lower, upper int) (*ChainWalker, error) {
	block, err := d.Block(from)
	if err != nil {
		return nil, err
	}
	w := &ChainWalker{
		dag:           d,
		pending:       block,
		pendingNumber: d.numberByHash[from],
		cursor:        upper,
		lower:         lower,
	}
	for w.pending != nil && w.pendingNumber > upper {
		w.advance()
	}
	return w, nil
}

func (w *ChainWalker) advance() {
	parents := w.pending.Block.PrevHashes()
	if len(parents) == 0 {
		w.pending = nil
		return
	}
	w.pending = w.dag.blocksByHash[parents[0]]
	w.pendingNumber = w.dag.numberByHash[parents[0]]
}

// Next moves to the next timeslot and reports whether there is one.
func (w *ChainWalker) Next() bool {
	if w.cursor < w.lower || w.cursor < 0 {
		return false
	}
	if w.pending == nil {
		// Past genesis there is nothing left to report.
		return false
	}
	if w.pendingNumber == w.cursor {
		w.current = models.Occupied(w.cursor, w.pending)
		w.advance()
	} else {
		w.current = models.Gap(w.cursor)
	}
	w.cursor--
	return true
}

// Slot returns the slot Next moved to.
func (w *ChainWalker) Slot() models.Slot {
	return w.current
}

// Collect drains the walker.
func (w *ChainWalker) Collect() []models.Slot {
	var slots []models.Slot
	for w.Next() {
		slots = append(slots, w.Slot())
	}
	return slots
}
