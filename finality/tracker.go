package finality

import (
	"dag-ledger/logger"
	"dag-ledger/models"

	"go.uber.org/zap"
)

// Ledger is the part of a DAG the tracker reads.
type Ledger interface {
	Block(hash models.Hash) (*models.SignedBlock, error)
	BlockNumber(hash models.Hash) (int, error)
}

// Tracker assigns every admitted block a confirmation requirement in [ZetaMin, ZetaMax].
//
// A block one timeslot after a parent inherits the highest requirement among such parents, raised by
// one when that parent closes a run of RunLength consecutive blocks of equal requirement. A block
// following a skip of S timeslots gets the requirement of the nearest unbroken ancestor lowered by
// S / RunLength.
type Tracker struct {
	ledger       Ledger
	params       Params
	requirements map[models.Hash]int
}

func NewTracker(ledger Ledger, params Params) *Tracker {
	return &Tracker{
		ledger:       ledger,
		params:       params,
		requirements: make(map[models.Hash]int),
	}
}

// OnBlockAdmitted implements dag.Listener.
func (t *Tracker) OnBlockAdmitted(number int, block *models.SignedBlock) {
	requirement := t.compute(number, block)
	t.requirements[block.Hash()] = requirement
	logger.Logger.Debug("Confirmation requirement",
		zap.String("hash", block.Hash().String()),
		zap.Int("timeslot", number),
		zap.Int("requirement", requirement))
}

// RequirementFor returns the stored requirement of a block. Unknown blocks get ZetaMax.
func (t *Tracker) RequirementFor(hash models.Hash) int {
	if requirement, ok := t.requirements[hash]; ok {
		return requirement
	}
	return t.params.ZetaMax
}

// RequirementForSkip evaluates the requirement of an empty run of backstep timeslots lying behind
// anchor, without storing anything. A backstep that fits in what is left of the anchor's current run
// reuses the anchor's requirement; the excess raises it by one per RunLength, plus one for the
// anchor's own place in the run.
func (t *Tracker) RequirementForSkip(anchor models.Hash, backstep int) int {
	requirement := t.RequirementFor(anchor)
	leftover := t.params.RunLength - t.runPosition(anchor)
	if backstep <= leftover {
		return requirement
	}
	excess := backstep - leftover
	return t.params.clamp(requirement + excess/t.params.RunLength + 1)
}

func (t *Tracker) compute(number int, block *models.SignedBlock) int {
	parents := block.Block.PrevHashes()
	if len(parents) == 0 {
		return t.params.ZetaMax
	}

	best, found := 0, false
	for _, parent := range parents {
		if t.number(parent) != number-1 {
			continue
		}
		v := t.RequirementFor(parent)
		if t.runPosition(parent) == t.params.RunLength {
			v++
		}
		if !found || v > best {
			best, found = v, true
		}
	}
	if found {
		return t.params.clamp(best)
	}

	for _, parent := range parents {
		skip := number - t.number(parent) - 1
		v := t.RequirementFor(t.nearestUnbroken(parent)) - skip/t.params.RunLength
		if !found || v > best {
			best, found = v, true
		}
	}
	return t.params.clamp(best)
}

func (t *Tracker) number(hash models.Hash) int {
	n, err := t.ledger.BlockNumber(hash)
	if err != nil {
		logger.Logger.Error("Requirement lookup on unknown block", zap.String("hash", hash.String()), zap.Error(err))
		return -1
	}
	return n
}

func (t *Tracker) parents(hash models.Hash) []models.Hash {
	block, err := t.ledger.Block(hash)
	if err != nil {
		return nil
	}
	return block.Block.PrevHashes()
}

// consecutiveParent returns a parent exactly one timeslot behind hash whose requirement is value.
func (t *Tracker) consecutiveParent(hash models.Hash, value int) (models.Hash, bool) {
	number := t.number(hash)
	for _, parent := range t.parents(hash) {
		if t.number(parent) == number-1 && t.RequirementFor(parent) == value {
			return parent, true
		}
	}
	return models.ZeroHash, false
}

// runPosition returns how many blocks, up to RunLength, the run of consecutive equal-requirement
// blocks ending at hash holds.
func (t *Tracker) runPosition(hash models.Hash) int {
	value := t.RequirementFor(hash)
	position := 1
	cur := hash
	for position < t.params.RunLength {
		next, ok := t.consecutiveParent(cur, value)
		if !ok {
			break
		}
		cur = next
		position++
	}
	return position
}

// nearestUnbroken walks first parents from hash to the first block that directly follows one of its
// parents, or to genesis.
func (t *Tracker) nearestUnbroken(hash models.Hash) models.Hash {
	cur := hash
	for {
		parents := t.parents(cur)
		if len(parents) == 0 {
			return cur
		}
		number := t.number(cur)
		for _, parent := range parents {
			if t.number(parent) == number-1 {
				return cur
			}
		}
		cur = parents[0]
	}
}
