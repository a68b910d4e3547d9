package merger

import (
	"encoding/binary"

	"dag-ledger/models"
)

// Sequence is the linear order produced by a merge. Its first slot is the common ancestor of the
// merged tips.
type Sequence struct {
	slots []models.Slot
}

func newSequence(slots []models.Slot) *Sequence {
	return &Sequence{slots: slots}
}

// Slots returns a copy of every slot, skipped placeholders included.
func (s *Sequence) Slots() []models.Slot {
	return append([]models.Slot(nil), s.slots...)
}

func (s *Sequence) Len() int { return len(s.slots) }

func (s *Sequence) At(i int) models.Slot { return s.slots[i] }

// Size counts the slots holding a real block.
func (s *Sequence) Size() int {
	return countOccupied(s.slots)
}

// Blocks returns the real blocks in order.
func (s *Sequence) Blocks() []*models.SignedBlock {
	blocks := make([]*models.SignedBlock, 0, len(s.slots))
	for _, slot := range s.slots {
		if slot.IsOccupied() {
			blocks = append(blocks, slot.Block)
		}
	}
	return blocks
}

// Hashes returns the hashes of the real blocks in order.
func (s *Sequence) Hashes() []models.Hash {
	hashes := make([]models.Hash, 0, len(s.slots))
	for _, slot := range s.slots {
		if slot.IsOccupied() {
			hashes = append(hashes, slot.Hash())
		}
	}
	return hashes
}

// Diff returns what other holds after the longest prefix it shares with s.
func (s *Sequence) Diff(other *Sequence) []models.Slot {
	n := commonPrefix(s.slots, other.slots)
	return append([]models.Slot(nil), other.slots[n:]...)
}

// ConfirmationsAt counts the later blocks acknowledging slot i: a positive acknowledgment of its
// block, or for an empty slot, a negative acknowledgment of one of its timeslots.
func (s *Sequence) ConfirmationsAt(i int) int {
	target := s.slots[i]
	count := 0
	for _, later := range s.slots[i+1:] {
		if later.IsOccupied() && acknowledges(later.Block, target) {
			count++
		}
	}
	return count
}

// Digest hashes the order of the sequence. Two replicas agree on an order iff their digests match.
func (s *Sequence) Digest() models.Hash {
	var buf []byte
	for _, slot := range s.slots {
		key := slot.Key()
		buf = append(buf, byte(key.Kind))
		buf = append(buf, key.Hash[:]...)
		buf = binary.AppendVarint(buf, int64(key.Number))
		buf = binary.AppendVarint(buf, int64(key.Backstep))
	}
	return models.HashBytes(buf)
}

func acknowledges(block *models.SignedBlock, target models.Slot) bool {
	for _, tx := range block.Block.SystemTxs() {
		if target.IsOccupied() {
			if ack, ok := tx.(models.BlockAcknowledger); ok && ack.AcknowledgesBlock(target.Hash()) {
				return true
			}
			continue
		}
		if nack, ok := tx.(models.SlotAcknowledger); ok {
			for n := target.Number; n <= target.Last(); n++ {
				if nack.AcknowledgesTimeslot(n) {
					return true
				}
			}
		}
	}
	return false
}

func commonPrefix(a, b []models.Slot) int {
	n := 0
	for n < len(a) && n < len(b) && a[n].Key() == b[n].Key() {
		n++
	}
	return n
}

func countOccupied(slots []models.Slot) int {
	n := 0
	for _, slot := range slots {
		if slot.IsOccupied() {
			n++
		}
	}
	return n
}
