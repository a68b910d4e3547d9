package models_test

import (
	"encoding/json"
	"testing"

	"dag-ledger/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinylib/msgp/msgp"
)

func newBlock(t *testing.T, timestamp int64, parents []models.Hash, txs ...models.SystemTx) *models.Block {
	t.Helper()
	b, err := models.NewBlock(timestamp, parents, txs)
	require.NoError(t, err)
	return b
}

func TestBlockHashIsStable(t *testing.T) {
	parent := models.HashBytes([]byte("parent"))
	a := newBlock(t, 3, []models.Hash{parent}, &models.Payload{Data: []byte("x")})
	b := newBlock(t, 3, []models.Hash{parent}, &models.Payload{Data: []byte("x")})
	assert.Equal(t, a.Hash(), b.Hash())

	c := newBlock(t, 4, []models.Hash{parent}, &models.Payload{Data: []byte("x")})
	assert.NotEqual(t, a.Hash(), c.Hash())
	d := newBlock(t, 3, []models.Hash{parent}, &models.Payload{Data: []byte("y")})
	assert.NotEqual(t, a.Hash(), d.Hash())
}

func TestBlockCopiesInputs(t *testing.T) {
	parents := []models.Hash{models.HashBytes([]byte("p"))}
	b := newBlock(t, 1, parents)
	parents[0] = models.ZeroHash
	assert.NotEqual(t, models.ZeroHash, b.PrevHashes()[0])
}

func TestSignedBlockRoundTrip(t *testing.T) {
	parents := []models.Hash{models.HashBytes([]byte("left")), models.HashBytes([]byte("right"))}
	block := newBlock(t, 7, parents,
		&models.Payload{Data: []byte("hello")},
		&models.PositiveAck{Block: parents[0]},
		&models.NegativeAck{Timeslot: 6},
	)
	signed := models.NewSignedBlock(block, []byte{1, 2, 3})

	packed, err := signed.MarshalMsg(nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(packed), signed.Msgsize())

	got, rest, err := models.UnpackSignedBlock(packed)
	require.NoError(t, err)
	assert.Empty(t, rest)
	assert.Equal(t, signed.Hash(), got.Hash())
	assert.Equal(t, []byte{1, 2, 3}, got.Signature)
	assert.Equal(t, int64(7), got.Block.Timestamp())
	assert.Equal(t, parents, got.Block.PrevHashes())
	assert.True(t, got.Block.IsMerge())

	txs := got.Block.SystemTxs()
	require.Len(t, txs, 3)
	assert.Equal(t, models.TxPayload, txs[0].Kind())
	ack, ok := txs[1].(models.BlockAcknowledger)
	require.True(t, ok)
	assert.True(t, ack.AcknowledgesBlock(parents[0]))
	assert.False(t, ack.AcknowledgesBlock(parents[1]))
	nack, ok := txs[2].(models.SlotAcknowledger)
	require.True(t, ok)
	assert.True(t, nack.AcknowledgesTimeslot(6))
}

func TestUnpackRejectsGarbage(t *testing.T) {
	_, _, err := models.UnpackSignedBlock([]byte{0x91, 0x01})
	assert.Error(t, err)
	_, _, err = models.UnpackSignedBlock(nil)
	assert.Error(t, err)
}

func TestHashText(t *testing.T) {
	h := models.HashBytes([]byte("text"))
	parsed, err := models.HashFromString(h.String())
	require.NoError(t, err)
	assert.Equal(t, h, parsed)
	assert.Len(t, h.Short(), 8)

	_, err = models.HashFromString("abcd")
	assert.Error(t, err)
	_, err = models.HashFromString("not hex")
	assert.Error(t, err)

	data, err := json.Marshal(map[string]models.Hash{"h": h})
	require.NoError(t, err)
	var back map[string]models.Hash
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, h, back["h"])
}

func TestSortHashes(t *testing.T) {
	a, b, c := models.HashBytes([]byte("a")), models.HashBytes([]byte("b")), models.HashBytes([]byte("c"))
	hashes := []models.Hash{a, b, c}
	models.SortHashes(hashes)
	for i := 1; i < len(hashes); i++ {
		assert.True(t, hashes[i-1].Less(hashes[i]))
	}
}

func TestSlotKinds(t *testing.T) {
	block := models.NewSignedBlock(newBlock(t, 5, nil), nil)
	occupied := models.Occupied(5, block)
	assert.True(t, occupied.IsOccupied())
	assert.Equal(t, block.Hash(), occupied.Hash())
	assert.True(t, occupied.Covers(5))

	gap := models.Gap(4)
	assert.True(t, gap.IsGap())
	assert.Equal(t, models.ZeroHash, gap.Hash())
	assert.NotEqual(t, gap.Key(), models.Gap(3).Key())

	skip := models.Skipped(block.Hash(), 2, 3)
	assert.True(t, skip.IsSkipped())
	assert.Equal(t, 4, skip.Last())
	assert.True(t, skip.Covers(2))
	assert.True(t, skip.Covers(4))
	assert.False(t, skip.Covers(5))
	assert.Equal(t, skip.Key(), models.Skipped(block.Hash(), 2, 3).Key())
	assert.NotEqual(t, skip.Key(), models.Skipped(block.Hash(), 3, 2).Key())
}

func TestUnpackRejectsOversizedCounts(t *testing.T) {
	// a parent count of 0x0fffffff with nothing behind it
	_, _, err := models.UnpackSignedBlock([]byte{0x92, 0x93, 0x00, 0xdd, 0x0f, 0xff, 0xff, 0xff})
	assert.ErrorIs(t, err, msgp.ErrShortBytes)

	// no parents, then a transaction count of 0x0fffffff
	_, _, err = models.UnpackBlock([]byte{0x93, 0x00, 0x90, 0xdd, 0x0f, 0xff, 0xff, 0xff})
	assert.ErrorIs(t, err, msgp.ErrShortBytes)
}

func TestTxHashesFollowSystemTxs(t *testing.T) {
	ack := &models.PositiveAck{Block: models.HashBytes([]byte("acked"))}
	nack := &models.NegativeAck{Timeslot: 3}
	block := newBlock(t, 4, nil, ack, nack)

	want := make([]models.Hash, 0, 2)
	for _, tx := range []models.SystemTx{ack, nack} {
		h, err := models.TxHash(tx)
		require.NoError(t, err)
		want = append(want, h)
	}
	assert.Equal(t, want, block.TxHashes())
	assert.NotEqual(t, want[0], want[1])
}
