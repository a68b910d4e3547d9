package finality

import (
	"dag-ledger/dag"
	"dag-ledger/models"
)

// Calculator measures the confirmations a block has actually received in a DAG.
type Calculator struct {
	dag    *dag.DAG
	params Params
}

func NewCalculator(d *dag.DAG, params Params) *Calculator {
	return &Calculator{dag: d, params: params}
}

// Zeta walks back from every tip and scores the way down to hash: +1 for every RunLength
// consecutive blocks and -1 for every RunLength consecutive gaps. It returns the best score among
// the tips whose first-parent chain reaches hash, or 0 when none does.
func (c *Calculator) Zeta(hash models.Hash) (int, error) {
	target, err := c.dag.BlockNumber(hash)
	if err != nil {
		return 0, err
	}
	best, reached := 0, false
	for _, tip := range c.dag.Tips() {
		top, _ := c.dag.BlockNumber(tip)
		w, err := c.dag.WalkRound(tip, target, top)
		if err != nil {
			return 0, err
		}
		zeta, hits, misses, found := 0, 0, 0, false
		for w.Next() {
			slot := w.Slot()
			if slot.IsOccupied() {
				if slot.Block.Hash() == hash {
					found = true
					break
				}
				misses = 0
				hits++
				if hits == c.params.RunLength {
					zeta++
					hits = 0
				}
				continue
			}
			hits = 0
			misses++
			if misses == c.params.RunLength {
				zeta--
				misses = 0
			}
		}
		if found && (!reached || zeta > best) {
			best, reached = zeta, true
		}
	}
	return best, nil
}

// Confirmations returns the largest number of real blocks built after hash on any branch that
// holds hash at its timeslot, looking at most ZetaMax timeslots ahead.
func (c *Calculator) Confirmations(hash models.Hash) (int, error) {
	number, err := c.dag.BlockNumber(hash)
	if err != nil {
		return 0, err
	}
	best := 0
	for _, tip := range c.dag.BranchesInRange(number+1, number+c.params.ZetaMax+1) {
		top, _ := c.dag.BlockNumber(tip)
		w, err := c.dag.WalkRound(tip, number, top)
		if err != nil {
			return 0, err
		}
		count := 0
		for w.Next() {
			slot := w.Slot()
			if slot.Number == number {
				if slot.IsOccupied() && slot.Block.Hash() == hash && count > best {
					best = count
				}
				break
			}
			if slot.IsOccupied() {
				count++
			}
		}
	}
	return best, nil
}

// SkipConfirmations returns the confirmations of an empty run lying behind anchor: the anchor
// itself counts as one.
func (c *Calculator) SkipConfirmations(anchor models.Hash) (int, error) {
	confirmations, err := c.Confirmations(anchor)
	if err != nil {
		return 0, err
	}
	return confirmations + 1, nil
}
