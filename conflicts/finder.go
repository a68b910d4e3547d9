package conflicts

import (
	"crypto/rand"
	"io"
	"math/big"

	"dag-ledger/dag"
	"dag-ledger/logger"
	"dag-ledger/models"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Finder picks one canonical tip among several by chain length and reports everything off its
// ancestry as conflicting. Unlike the Watcher it knows nothing about validators or epochs.
type Finder struct {
	dag  *dag.DAG
	rand io.Reader
}

func NewFinder(d *dag.DAG) *Finder {
	return &Finder{dag: d, rand: rand.Reader}
}

// Find returns the tip with the most blocks on its first-parent chain above the common ancestor of
// tips, and every block between the ancestor and the highest tip that the chosen tip does not
// descend from. Ties are broken at random: any of the tied tips is an equally valid choice.
func (f *Finder) Find(tips []models.Hash) (models.Hash, []models.Hash, error) {
	ca, err := f.dag.CommonAncestor(tips)
	if err != nil {
		return models.ZeroHash, nil, err
	}
	caNumber, _ := f.dag.BlockNumber(ca)

	best := -1
	var longest []models.Hash
	top := caNumber
	for _, tip := range dedupe(tips) {
		number, _ := f.dag.BlockNumber(tip)
		if number > top {
			top = number
		}
		length, err := f.chainLength(tip, caNumber)
		if err != nil {
			return models.ZeroHash, nil, err
		}
		switch {
		case length > best:
			best, longest = length, []models.Hash{tip}
		case length == best:
			longest = append(longest, tip)
		}
	}
	if err := f.shuffle(longest); err != nil {
		return models.ZeroHash, nil, err
	}
	chosen := longest[0]

	var conflicts []models.Hash
	for n := caNumber + 1; n <= top; n++ {
		for _, block := range f.dag.BlocksAt(n) {
			if !f.dag.IsAncestor(block.Hash(), chosen) {
				conflicts = append(conflicts, block.Hash())
			}
		}
	}
	logger.Logger.Debug("Chose canonical tip",
		zap.String("tip", chosen.String()),
		zap.Int("length", best),
		zap.Int("tied", len(longest)),
		zap.Int("conflicts", len(conflicts)))
	return chosen, conflicts, nil
}

func (f *Finder) chainLength(tip models.Hash, caNumber int) (int, error) {
	top, err := f.dag.BlockNumber(tip)
	if err != nil {
		return 0, err
	}
	w, err := f.dag.WalkRound(tip, caNumber+1, top)
	if err != nil {
		return 0, err
	}
	length := 0
	for w.Next() {
		if w.Slot().IsOccupied() {
			length++
		}
	}
	return length, nil
}

func (f *Finder) shuffle(hashes []models.Hash) error {
	for i := len(hashes) - 1; i > 0; i-- {
		j, err := rand.Int(f.rand, big.NewInt(int64(i+1)))
		if err != nil {
			return errors.Wrap(err, "shuffling tied tips")
		}
		k := j.Int64()
		hashes[i], hashes[k] = hashes[k], hashes[i]
	}
	return nil
}

func dedupe(hashes []models.Hash) []models.Hash {
	seen := make(map[models.Hash]struct{}, len(hashes))
	unique := make([]models.Hash, 0, len(hashes))
	for _, hash := range hashes {
		if _, ok := seen[hash]; !ok {
			seen[hash] = struct{}{}
			unique = append(unique, hash)
		}
	}
	models.SortHashes(unique)
	return unique
}
