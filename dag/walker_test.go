package dag_test

import (
	"testing"

	"dag-ledger/dag/dagtest"
	"dag-ledger/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func describe(slots []models.Slot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		if s.IsOccupied() {
			out[i] = s.Block.Hash().Short()
		} else {
			out[i] = "-"
		}
	}
	return out
}

func TestWalkYieldsGapsAndFollowsFirstParent(t *testing.T) {
	b := dagtest.New(t)
	a := b.Add(1, b.Genesis)
	side := b.Add(2, a)
	c := b.Add(4, a, side)

	w, err := b.DAG.Walk(c)
	require.NoError(t, err)
	slots := w.Collect()

	require.Len(t, slots, 5)
	assert.Equal(t, []string{c.Short(), "-", "-", a.Short(), b.Genesis.Short()}, describe(slots))
	assert.Equal(t, 4, slots[0].Number)
	assert.Equal(t, 3, slots[1].Number)
	assert.True(t, slots[2].IsGap(), "second parent is never walked")
	assert.Equal(t, 0, slots[4].Number)
	assert.False(t, w.Next(), "walk ends after genesis")
}

func TestWalkRoundWindow(t *testing.T) {
	b := dagtest.New(t)
	chain := b.Chain(b.Genesis, 1, 2, 4, 7, 8)

	w, err := b.DAG.WalkRound(chain[4], 2, 6)
	require.NoError(t, err)
	slots := w.Collect()

	var numbers []int
	for _, s := range slots {
		numbers = append(numbers, s.Number)
	}
	assert.Equal(t, []int{6, 5, 4, 3, 2}, numbers)
	assert.Equal(t, []string{"-", "-", chain[2].Short(), "-", chain[1].Short()}, describe(slots))
}

func TestWalkRoundBelowStart(t *testing.T) {
	b := dagtest.New(t)
	a := b.Add(1, b.Genesis)

	w, err := b.DAG.WalkRound(a, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"-", "-", a.Short(), b.Genesis.Short()}, describe(w.Collect()))
}
