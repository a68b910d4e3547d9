package merger_test

import (
	"fmt"
	"math/rand"
	"testing"

	"dag-ledger/dag/dagtest"
	"dag-ledger/merger"
	"dag-ledger/models"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticConflicts []models.Hash

func (s staticConflicts) ConflictsBetween([]models.Hash) ([]models.Hash, error) {
	return s, nil
}

type failingConflicts struct{}

func (failingConflicts) ConflictsBetween([]models.Hash) ([]models.Hash, error) {
	return nil, errors.New("boom")
}

func TestMergingWalkSplicesMerges(t *testing.T) {
	b, m := newTracked(t)
	a := b.Add(1, b.Genesis)
	left := b.Add(2, a)
	right := b.Add(2, a)
	joined := b.Add(3, left, right)
	top := b.Add(5, joined)

	w, err := m.Walk(top, nil)
	require.NoError(t, err)
	slots, err := w.Collect()
	require.NoError(t, err)

	require.Len(t, slots, 7)
	assert.Equal(t, top, slots[0].Hash())
	assert.True(t, slots[1].IsGap())
	assert.Equal(t, 4, slots[1].Number)
	assert.Equal(t, joined, slots[2].Hash())
	assert.ElementsMatch(t, []models.Hash{left, right}, []models.Hash{slots[3].Hash(), slots[4].Hash()})
	assert.Equal(t, a, slots[5].Hash())
	assert.Equal(t, b.Genesis, slots[6].Hash())
}

func TestMergingWalkLeavesOutConflicts(t *testing.T) {
	b, m := newTracked(t)
	a := b.Add(1, b.Genesis)
	left := b.Add(2, a)
	right := b.Add(2, a)
	joined := b.Add(3, left, right)

	w, err := m.Walk(joined, staticConflicts{right})
	require.NoError(t, err)
	slots, err := w.Collect()
	require.NoError(t, err)

	var hashes []models.Hash
	for _, s := range slots {
		hashes = append(hashes, s.Hash())
	}
	assert.Equal(t, []models.Hash{joined, left, a, b.Genesis}, hashes)
}

func TestMergingWalkExpandsSkips(t *testing.T) {
	b := dagtest.New(t)
	m := merger.New(b.DAG, fixedOracle(100))
	a := b.Add(1, b.Genesis)
	late := b.Add(4, a)
	early := b.Add(2, a)
	joined := b.Add(5, late, early)

	w, err := m.Walk(joined, nil)
	require.NoError(t, err)
	slots, err := w.Collect()
	require.NoError(t, err)

	for _, s := range slots {
		assert.False(t, s.IsSkipped())
	}
	var gaps []int
	for _, s := range slots {
		if s.IsGap() {
			gaps = append(gaps, s.Number)
		}
	}
	assert.Equal(t, []int{3, 2}, gaps)
	assert.Equal(t, b.Genesis, slots[len(slots)-1].Hash())
}

func TestMergingWalkStopsOnConflictError(t *testing.T) {
	b, m := newTracked(t)
	a := b.Add(1, b.Genesis)
	joined := b.Add(3, b.Add(2, a), b.Add(2, a))

	w, err := m.Walk(joined, failingConflicts{})
	require.NoError(t, err)
	_, err = w.Collect()
	assert.EqualError(t, err, "boom")
}

func TestMergingWalkMergesAMultiParentAncestor(t *testing.T) {
	b, m := newTracked(t)
	a := b.Add(1, b.Genesis)
	p := b.Add(2, a)
	q := b.Add(2, a)
	inner := b.Add(3, p, q)
	x := b.Add(4, inner)
	y := b.Add(4, inner)
	outer := b.Add(5, x, y)

	w, err := m.Walk(outer, nil)
	require.NoError(t, err)
	slots, err := w.Collect()
	require.NoError(t, err)

	require.Len(t, slots, 8)
	assert.Equal(t, outer, slots[0].Hash())
	assert.ElementsMatch(t, []models.Hash{x, y}, []models.Hash{slots[1].Hash(), slots[2].Hash()})
	assert.Equal(t, inner, slots[3].Hash())
	assert.ElementsMatch(t, []models.Hash{p, q}, []models.Hash{slots[4].Hash(), slots[5].Hash()})
	assert.Equal(t, a, slots[6].Hash())
	assert.Equal(t, b.Genesis, slots[7].Hash())
}

func TestMergingWalkYieldsEveryAncestorOnce(t *testing.T) {
	for seed := int64(1); seed <= 40; seed++ {
		t.Run(fmt.Sprintf("seed %d", seed), func(t *testing.T) {
			b, m := newTracked(t)
			all := randomDAG(b, rand.New(rand.NewSource(seed)), 25)

			for _, tip := range b.DAG.Tips() {
				var want []models.Hash
				for _, h := range all {
					if b.DAG.IsAncestor(h, tip) {
						want = append(want, h)
					}
				}
				w, err := m.Walk(tip, nil)
				require.NoError(t, err)
				slots, err := w.Collect()
				require.NoError(t, err)
				var got []models.Hash
				for _, s := range slots {
					if s.IsOccupied() {
						got = append(got, s.Hash())
					}
				}
				assert.ElementsMatch(t, want, got)
			}
		})
	}
}
