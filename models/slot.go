package models

import "fmt"

// SlotKind tells what occupies one position of a walked or merged sequence.
type SlotKind uint8

const (
	// SlotGap is a timeslot with no block on the walked branch.
	SlotGap SlotKind = iota
	// SlotOccupied holds a real block.
	SlotOccupied
	// SlotSkipped stands for a run of consecutive gaps collapsed into one placeholder. It is never
	// admitted into a DAG.
	SlotSkipped
)

// Slot is one position of a walked or merged sequence.
//
// For an occupied slot Number is the block's timeslot. For a gap it is the empty timeslot. For a
// skipped slot it is the first timeslot of the collapsed run, which covers Backstep timeslots and
// lies directly behind the real block Anchor.
type Slot struct {
	Kind     SlotKind
	Number   int
	Block    *SignedBlock
	Anchor   Hash
	Backstep int
}

// SlotKey identifies a slot for deduplication.
type SlotKey struct {
	Kind     SlotKind
	Hash     Hash
	Number   int
	Backstep int
}

func Occupied(number int, block *SignedBlock) Slot {
	return Slot{Kind: SlotOccupied, Number: number, Block: block}
}

func Gap(number int) Slot {
	return Slot{Kind: SlotGap, Number: number}
}

func Skipped(anchor Hash, first, backstep int) Slot {
	return Slot{Kind: SlotSkipped, Number: first, Anchor: anchor, Backstep: backstep}
}

func (s Slot) IsOccupied() bool { return s.Kind == SlotOccupied }
func (s Slot) IsGap() bool      { return s.Kind == SlotGap }
func (s Slot) IsSkipped() bool  { return s.Kind == SlotSkipped }

// Hash returns the block hash of an occupied slot and the zero hash otherwise.
func (s Slot) Hash() Hash {
	if s.Kind != SlotOccupied {
		return ZeroHash
	}
	return s.Block.Hash()
}

// Last returns the highest timeslot covered by the slot.
func (s Slot) Last() int {
	if s.Kind == SlotSkipped {
		return s.Number + s.Backstep - 1
	}
	return s.Number
}

// Covers reports whether the slot stands for the given timeslot.
func (s Slot) Covers(number int) bool {
	return number >= s.Number && number <= s.Last()
}

func (s Slot) Key() SlotKey {
	switch s.Kind {
	case SlotOccupied:
		return SlotKey{Kind: s.Kind, Hash: s.Block.Hash()}
	case SlotSkipped:
		return SlotKey{Kind: s.Kind, Hash: s.Anchor, Backstep: s.Backstep}
	}
	return SlotKey{Kind: s.Kind, Number: s.Number}
}

func (s Slot) String() string {
	switch s.Kind {
	case SlotOccupied:
		return fmt.Sprintf("%d:%s", s.Number, s.Block.Hash().Short())
	case SlotSkipped:
		return fmt.Sprintf("skip(%s,%d)", s.Anchor.Short(), s.Backstep)
	}
	return fmt.Sprintf("%d:gap", s.Number)
}
