// Package merger turns several branches of a DAG into one deterministic linear sequence.
package merger

import (
	"sort"

	"dag-ledger/dag"
	"dag-ledger/logger"
	"dag-ledger/models"

	mapset "github.com/deckarep/golang-set"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// RequirementOracle tells how many confirmations a sequence entry needs before it is immutable.
type RequirementOracle interface {
	RequirementFor(hash models.Hash) int
	RequirementForSkip(anchor models.Hash, backstep int) int
}

// Merger merges branches of one DAG. It keeps no state between calls.
type Merger struct {
	dag    *dag.DAG
	oracle RequirementOracle
}

func New(d *dag.DAG, oracle RequirementOracle) *Merger {
	return &Merger{dag: d, oracle: oracle}
}

// job is one pending merge: the parents of owner, or the caller's tips for the root job.
type job struct {
	owner models.Hash
	tips  []models.Hash
}

type branch struct {
	tip   models.Hash
	slots []models.Slot
	// slack is the number of real entries after each entry minus its requirement.
	slack    []int
	occupied int
}

// Merge linearizes the branches ending at tips, leaving out every block listed in conflicts. The
// result starts with the common ancestor of the tips and holds every other block reachable from a
// tip above it, except conflicts, exactly once.
//
// Multi-parent blocks met on the way are merged first. Pending merges are kept on an explicit
// stack and each result is remembered for the rest of the call, so deep nesting costs no recursion.
func (m *Merger) Merge(tips []models.Hash, conflicts []models.Hash) (*Sequence, error) {
	if len(tips) == 0 {
		return nil, errors.Wrap(dag.ErrNoCommonAncestor, "no tips to merge")
	}
	excluded := mapset.NewThreadUnsafeSet()
	for _, hash := range conflicts {
		excluded.Add(hash)
	}

	memo := make(map[models.Hash]*Sequence)
	stack := []job{{tips: tips}}
	for {
		top := stack[len(stack)-1]
		seq, missing, err := m.mergeOnce(top.tips, excluded, memo)
		if err != nil {
			return nil, err
		}
		if missing != nil {
			stack = append(stack, job{owner: missing.Hash(), tips: missing.Block.PrevHashes()})
			continue
		}
		stack = stack[:len(stack)-1]
		if len(stack) == 0 {
			logger.Logger.Debug("Merged branches",
				zap.Int("tips", len(tips)),
				zap.Int("conflicts", len(conflicts)),
				zap.Int("nested", len(memo)),
				zap.Int("length", seq.Len()))
			return seq, nil
		}
		memo[top.owner] = seq
	}
}

// mergeOnce merges tips assuming every nested merge they need is in memo. Otherwise it returns the
// first multi-parent block whose merge is still missing.
func (m *Merger) mergeOnce(tips []models.Hash, excluded mapset.Set, memo map[models.Hash]*Sequence) (*Sequence, *models.SignedBlock, error) {
	unique := dedupe(tips)
	caHash, err := m.dag.CommonAncestor(unique)
	if err != nil {
		return nil, nil, err
	}
	ca, err := m.dag.Block(caHash)
	if err != nil {
		return nil, nil, err
	}
	caNumber, _ := m.dag.BlockNumber(caHash)

	branches := make([]*branch, 0, len(unique))
	for _, tip := range unique {
		if tip == caHash {
			continue
		}
		slots, missing, err := m.flatten(tip, caHash, memo)
		if err != nil || missing != nil {
			return nil, missing, err
		}
		branches = append(branches, m.newBranch(tip, collapse(slots)))
	}
	sort.SliceStable(branches, func(i, j int) bool {
		if branches[i].occupied != branches[j].occupied {
			return branches[i].occupied > branches[j].occupied
		}
		return branches[i].tip.Less(branches[j].tip)
	})

	out := &output{present: mapset.NewThreadUnsafeSet(), excluded: excluded}
	out.slots = append(out.slots, models.Occupied(caNumber, ca))
	out.present.Add(out.slots[0].Key())
	if len(branches) == 0 {
		return newSequence(out.slots), nil, nil
	}

	base := branches[0]
	point := base.mergePoint()
	for _, slot := range base.slots[:point] {
		// frozen history is copied as is
		if out.present.Add(slot.Key()) {
			out.slots = append(out.slots, slot)
		}
	}

	offsets := make([]int, len(branches))
	offsets[0] = point
	for k, b := range branches[1:] {
		offsets[k+1] = commonPrefix(base.slots, b.slots)
	}

	for k, b := range branches {
		for i := offsets[k]; i < len(b.slots); i++ {
			if !b.mutable(i) {
				out.add(b.slots[i])
			}
		}
	}
	for k, b := range branches {
		for i := offsets[k]; i < len(b.slots); i++ {
			out.add(b.slots[i])
		}
	}
	return newSequence(out.slots), nil, nil
}

// flatten lists the slots of the branch from tip down to the common ancestor ca in ascending
// order, with every multi-parent block preceded by its own merge. Blocks that are ca or one of its
// ancestors are settled history and left out; every other block reachable from tip is kept, even
// when its timeslot is at or below the one of ca.
func (m *Merger) flatten(tip, ca models.Hash, memo map[models.Hash]*Sequence) ([]models.Slot, *models.SignedBlock, error) {
	caNumber, err := m.dag.BlockNumber(ca)
	if err != nil {
		return nil, nil, err
	}
	settled := func(hash models.Hash) bool {
		return m.dag.IsAncestor(hash, ca)
	}
	w, err := m.dag.Walk(tip)
	if err != nil {
		return nil, nil, err
	}

	var reversed []models.Slot
	for w.Next() {
		slot := w.Slot()
		if slot.IsOccupied() && settled(slot.Hash()) {
			break
		}
		reversed = append(reversed, slot)
		if !slot.IsOccupied() || !slot.Block.Block.IsMerge() {
			continue
		}
		sub, ok := memo[slot.Hash()]
		if !ok {
			return nil, slot.Block, nil
		}
		for i := len(sub.slots) - 1; i >= 1; i-- {
			if keep(sub.slots[i], caNumber, settled) {
				reversed = append(reversed, sub.slots[i])
			}
		}
		anchor := sub.slots[0]
		if settled(anchor.Hash()) {
			break
		}
		if w, err = m.dag.Walk(anchor.Hash()); err != nil {
			return nil, nil, err
		}
	}

	slots := make([]models.Slot, len(reversed))
	for i, slot := range reversed {
		slots[len(reversed)-1-i] = slot
	}
	return slots, nil, nil
}

func (m *Merger) newBranch(tip models.Hash, slots []models.Slot) *branch {
	b := &branch{tip: tip, slots: slots, slack: make([]int, len(slots))}
	for i := len(slots) - 1; i >= 0; i-- {
		b.slack[i] = b.occupied - m.requirement(slots[i])
		if slots[i].IsOccupied() {
			b.occupied++
		}
	}
	return b
}

func (m *Merger) requirement(slot models.Slot) int {
	switch slot.Kind {
	case models.SlotOccupied:
		return m.oracle.RequirementFor(slot.Hash())
	case models.SlotSkipped:
		return m.oracle.RequirementForSkip(slot.Anchor, slot.Backstep)
	}
	return 0
}

// mutable reports whether entry i has fewer real entries after it than it requires.
func (b *branch) mutable(i int) bool {
	return b.slack[i] < 0
}

// mergePoint returns the index of the first mutable entry, or the length when all are immutable.
func (b *branch) mergePoint() int {
	for i := range b.slots {
		if b.mutable(i) {
			return i
		}
	}
	return len(b.slots)
}

type output struct {
	slots    []models.Slot
	present  mapset.Set
	excluded mapset.Set
}

func (o *output) add(slot models.Slot) {
	if slot.IsOccupied() && o.excluded.Contains(slot.Hash()) {
		return
	}
	if o.present.Add(slot.Key()) {
		o.slots = append(o.slots, slot)
	}
}

// collapse replaces every run of gaps by one skipped slot anchored at the real block after it.
func collapse(slots []models.Slot) []models.Slot {
	out := make([]models.Slot, 0, len(slots))
	for i := 0; i < len(slots); {
		if !slots[i].IsGap() {
			out = append(out, slots[i])
			i++
			continue
		}
		j := i
		for j < len(slots) && slots[j].IsGap() {
			j++
		}
		if j < len(slots) && slots[j].IsOccupied() {
			out = append(out, models.Skipped(slots[j].Hash(), slots[i].Number, j-i))
		} else {
			out = append(out, slots[i:j]...)
		}
		i = j
	}
	return out
}

// keep reports whether an entry of a nested merge belongs above the common ancestor. Blocks and
// skips are judged by ancestry, bare gaps by timeslot.
func keep(slot models.Slot, caNumber int, settled func(models.Hash) bool) bool {
	switch slot.Kind {
	case models.SlotOccupied:
		return !settled(slot.Hash())
	case models.SlotSkipped:
		return !settled(slot.Anchor)
	}
	return slot.Number > caNumber
}

func dedupe(hashes []models.Hash) []models.Hash {
	seen := make(map[models.Hash]struct{}, len(hashes))
	unique := make([]models.Hash, 0, len(hashes))
	for _, hash := range hashes {
		if _, ok := seen[hash]; ok {
			continue
		}
		seen[hash] = struct{}{}
		unique = append(unique, hash)
	}
	models.SortHashes(unique)
	return unique
}
