// Package conflicts detects equivocation: more than one block signed by the same validator within
// one epoch.
package conflicts

import (
	"dag-ledger/dag"
	"dag-ledger/logger"
	"dag-ledger/models"

	"go.uber.org/zap"
)

// Attributor tells which validator produced a block and in which epoch. ok is false for blocks that
// cannot be attributed, such as genesis.
type Attributor interface {
	Attribute(number int, block *models.SignedBlock) (epoch int, validator string, ok bool)
}

type signerKey struct {
	epoch     int
	validator string
}

// Watcher records every attributable admission, indexed by epoch and validator.
type Watcher struct {
	dag        *dag.DAG
	attributor Attributor

	bySigner map[signerKey][]models.Hash
	signerOf map[models.Hash]signerKey
}

func NewWatcher(d *dag.DAG, attributor Attributor) *Watcher {
	return &Watcher{
		dag:        d,
		attributor: attributor,
		bySigner:   make(map[signerKey][]models.Hash),
		signerOf:   make(map[models.Hash]signerKey),
	}
}

// OnBlockAdmitted implements dag.Listener.
func (w *Watcher) OnBlockAdmitted(number int, block *models.SignedBlock) {
	epoch, validator, ok := w.attributor.Attribute(number, block)
	if !ok {
		return
	}
	key := signerKey{epoch: epoch, validator: validator}
	w.bySigner[key] = append(w.bySigner[key], block.Hash())
	w.signerOf[block.Hash()] = key
	if n := len(w.bySigner[key]); n > 1 {
		logger.Logger.Warn("Equivocation",
			zap.String("validator", validator),
			zap.Int("epoch", epoch),
			zap.String("hash", block.Hash().String()),
			zap.Int("blocks", n))
	}
}

// ConflictsFor returns every block its signer produced in the same epoch, itself included, or nil
// when the signer produced only this one.
func (w *Watcher) ConflictsFor(hash models.Hash) []models.Hash {
	key, ok := w.signerOf[hash]
	if !ok || len(w.bySigner[key]) < 2 {
		return nil
	}
	return append([]models.Hash(nil), w.bySigner[key]...)
}

// FindConflictsInBetween classifies the equivocations among the blocks above the common ancestor of
// tips, up to the highest tip. A group with a member at or below the ancestor is settled history
// and all its members in range are explicit. Every other group is a candidate, left for the longest
// chain to decide.
func (w *Watcher) FindConflictsInBetween(tips []models.Hash) (explicit []models.Hash, candidates [][]models.Hash, err error) {
	ca, err := w.dag.CommonAncestor(tips)
	if err != nil {
		return nil, nil, err
	}
	caNumber, _ := w.dag.BlockNumber(ca)
	top := caNumber
	for _, tip := range tips {
		if n, _ := w.dag.BlockNumber(tip); n > top {
			top = n
		}
	}

	var order []signerKey
	inRange := make(map[signerKey][]models.Hash)
	for n := caNumber + 1; n <= top; n++ {
		for _, block := range w.dag.BlocksAt(n) {
			key, ok := w.signerOf[block.Hash()]
			if !ok || len(w.bySigner[key]) < 2 {
				continue
			}
			if _, seen := inRange[key]; !seen {
				order = append(order, key)
			}
			inRange[key] = append(inRange[key], block.Hash())
		}
	}

	for _, key := range order {
		group := inRange[key]
		if w.settled(key, caNumber) {
			explicit = append(explicit, group...)
			continue
		}
		if len(group) > 1 {
			candidates = append(candidates, group)
		}
	}
	w.dag.SortByNumber(explicit)
	return explicit, candidates, nil
}

func (w *Watcher) settled(key signerKey, caNumber int) bool {
	for _, hash := range w.bySigner[key] {
		if n, err := w.dag.BlockNumber(hash); err == nil && n <= caNumber {
			return true
		}
	}
	return false
}

// FilterOutLongestChainConflicts resolves candidate groups against chosen: the members chosen
// descends from are kept, every other member becomes an explicit conflict.
func (w *Watcher) FilterOutLongestChainConflicts(candidates [][]models.Hash, chosen models.Hash) []models.Hash {
	var explicit []models.Hash
	for _, group := range candidates {
		for _, hash := range group {
			if !w.dag.IsAncestor(hash, chosen) {
				explicit = append(explicit, hash)
			}
		}
	}
	return explicit
}

// ConflictsBetween returns what a merge of parents must leave out, resolving candidates in favour of
// the first parent. It lets a Watcher drive a merger.Walker.
func (w *Watcher) ConflictsBetween(parents []models.Hash) ([]models.Hash, error) {
	if len(parents) == 0 {
		return nil, nil
	}
	explicit, candidates, err := w.FindConflictsInBetween(parents)
	if err != nil {
		return nil, err
	}
	return append(explicit, w.FilterOutLongestChainConflicts(candidates, parents[0])...), nil
}
