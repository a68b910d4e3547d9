package finality_test

import (
	"math/rand"
	"testing"

	"dag-ledger/dag"
	"dag-ledger/dag/dagtest"
	"dag-ledger/finality"
	"dag-ledger/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTracked(t *testing.T, params finality.Params) (*dagtest.Builder, *finality.Tracker) {
	var tracker *finality.Tracker
	b := dagtest.New(t, func(d *dag.DAG) {
		tracker = finality.NewTracker(d, params)
		d.Subscribe(tracker)
	})
	return b, tracker
}

func TestRequirementDropsAfterSkips(t *testing.T) {
	b, tracker := newTracked(t, finality.Params{ZetaMin: 1, ZetaMax: 5, RunLength: 3})
	assert.Equal(t, 5, tracker.RequirementFor(b.Genesis))

	first := b.Add(1, b.Genesis)
	assert.Equal(t, 5, tracker.RequirementFor(first))

	// four empty timeslots: 5 - 4/3
	afterSkip := b.Add(6, first)
	assert.Equal(t, 4, tracker.RequirementFor(afterSkip))

	// eight more empty timeslots, measured against the last unbroken block: 5 - 8/3
	afterLongSkip := b.Add(15, afterSkip)
	assert.Equal(t, 3, tracker.RequirementFor(afterLongSkip))
}

func TestRequirementRisesAfterRuns(t *testing.T) {
	b, tracker := newTracked(t, finality.Params{ZetaMin: 2, ZetaMax: 10, RunLength: 3})
	first := b.Add(1, b.Genesis)
	chain := b.Chain(first, 11, 12, 13, 14, 15, 16, 17)

	var got []int
	for _, h := range chain {
		got = append(got, tracker.RequirementFor(h))
	}
	assert.Equal(t, []int{7, 7, 7, 8, 8, 8, 9}, got)
}

func TestRequirementTakesBestConsecutiveParent(t *testing.T) {
	b, tracker := newTracked(t, finality.Params{ZetaMin: 2, ZetaMax: 10, RunLength: 3})
	first := b.Add(1, b.Genesis)
	low := b.Add(11, first)
	high := b.Add(11, b.Add(10, b.Add(9, first)))
	require.Less(t, tracker.RequirementFor(low), tracker.RequirementFor(high))

	// high closes a run of three equal requirements, low does not
	merged := b.Add(12, low, high)
	assert.Equal(t, tracker.RequirementFor(high)+1, tracker.RequirementFor(merged))
}

func TestRequirementForSkip(t *testing.T) {
	b, tracker := newTracked(t, finality.Params{ZetaMin: 2, ZetaMax: 10, RunLength: 3})
	first := b.Add(1, b.Genesis)
	chain := b.Chain(first, 11, 12, 13, 14)
	runEnd, runStart := chain[2], chain[3]
	require.Equal(t, 7, tracker.RequirementFor(runEnd))
	require.Equal(t, 8, tracker.RequirementFor(runStart))

	// runStart opens a new run, two slots of slack remain
	assert.Equal(t, 8, tracker.RequirementForSkip(runStart, 1))
	assert.Equal(t, 8, tracker.RequirementForSkip(runStart, 2))
	assert.Equal(t, 9, tracker.RequirementForSkip(runStart, 3))
	assert.Equal(t, 10, tracker.RequirementForSkip(runStart, 5))
	assert.Equal(t, 10, tracker.RequirementForSkip(runStart, 50), "clamped")

	// runEnd closes its run, there is no slack
	assert.Equal(t, 8, tracker.RequirementForSkip(runEnd, 1))
	assert.Equal(t, 10, tracker.RequirementForSkip(models.HashBytes([]byte("unknown")), 1))
}

func TestRequirementAlwaysWithinBounds(t *testing.T) {
	params := finality.Params{ZetaMin: 2, ZetaMax: 6, RunLength: 3}
	b, tracker := newTracked(t, params)
	rng := rand.New(rand.NewSource(7))

	hashes := []models.Hash{b.Genesis}
	numbers := map[models.Hash]int{b.Genesis: 0}
	for i := 0; i < 300; i++ {
		parent := hashes[rng.Intn(len(hashes))]
		parents := []models.Hash{parent}
		if rng.Intn(4) == 0 {
			other := hashes[rng.Intn(len(hashes))]
			if other != parent {
				parents = append(parents, other)
			}
		}
		top := 0
		for _, p := range parents {
			if numbers[p] > top {
				top = numbers[p]
			}
		}
		number := top + 1 + rng.Intn(5)
		h := b.Add(number, parents...)
		hashes = append(hashes, h)
		numbers[h] = number
	}

	for _, h := range hashes {
		r := tracker.RequirementFor(h)
		assert.GreaterOrEqual(t, r, params.ZetaMin)
		assert.LessOrEqual(t, r, params.ZetaMax)
		for backstep := 1; backstep < 8; backstep++ {
			s := tracker.RequirementForSkip(h, backstep)
			assert.GreaterOrEqual(t, s, params.ZetaMin)
			assert.LessOrEqual(t, s, params.ZetaMax)
		}
	}
}

func TestParamsValidate(t *testing.T) {
	assert.NoError(t, finality.DefaultParams().Validate())
	assert.Error(t, finality.Params{ZetaMin: 0, ZetaMax: 3, RunLength: 3}.Validate())
	assert.Error(t, finality.Params{ZetaMin: 4, ZetaMax: 3, RunLength: 3}.Validate())
	assert.Error(t, finality.Params{ZetaMin: 1, ZetaMax: 3, RunLength: 0}.Validate())
}
