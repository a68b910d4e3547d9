package models

import (
	"github.com/pkg/errors"
	"github.com/tinylib/msgp/msgp"
)

// Block is an immutable ledger entry. Its hash is computed once, from the packed form, when the
// block is built.
type Block struct {
	timestamp  int64
	prevHashes []Hash
	systemTxs  []SystemTx
	txHashes   []Hash
	hash       Hash
}

// NewBlock builds a block and fixes its hash. A block without parents is a genesis block; a block with
// more than one parent is a merge point.
func NewBlock(timestamp int64, prevHashes []Hash, txs []SystemTx) (*Block, error) {
	blk := &Block{
		timestamp:  timestamp,
		prevHashes: append([]Hash(nil), prevHashes...),
		systemTxs:  append([]SystemTx(nil), txs...),
	}
	packed, err := blk.MarshalMsg(nil)
	if err != nil {
		return nil, errors.Wrap(err, "packing block")
	}
	blk.hash = HashBytes(packed)
	blk.txHashes = make([]Hash, len(blk.systemTxs))
	for i, tx := range blk.systemTxs {
		if blk.txHashes[i], err = TxHash(tx); err != nil {
			return nil, err
		}
	}
	return blk, nil
}

func (b *Block) Hash() Hash       { return b.hash }
func (b *Block) Timestamp() int64 { return b.timestamp }

// PrevHashes returns the ordered parent hashes. The slice must not be modified.
func (b *Block) PrevHashes() []Hash { return b.prevHashes }

// SystemTxs returns the ordered transactions. The slice must not be modified.
func (b *Block) SystemTxs() []SystemTx { return b.systemTxs }

// TxHashes returns the hash of every transaction, in the order of SystemTxs.
func (b *Block) TxHashes() []Hash { return b.txHashes }

func (b *Block) IsGenesis() bool { return len(b.prevHashes) == 0 }
func (b *Block) IsMerge() bool   { return len(b.prevHashes) > 1 }

// MarshalMsg implements msgp.Marshaler
func (b *Block) MarshalMsg(bts []byte) (o []byte, err error) {
	o = msgp.Require(bts, b.Msgsize())
	// array header, size 3
	o = append(o, 0x93)
	o = msgp.AppendInt64(o, b.timestamp)
	o = msgp.AppendArrayHeader(o, uint32(len(b.prevHashes)))
	for i := range b.prevHashes {
		o = msgp.AppendBytes(o, b.prevHashes[i][:])
	}
	o = msgp.AppendArrayHeader(o, uint32(len(b.systemTxs)))
	for _, tx := range b.systemTxs {
		o, err = appendTx(o, tx)
		if err != nil {
			return
		}
	}
	return
}

// Msgsize returns an upper bound estimate of the number of bytes occupied by the serialized message
func (b *Block) Msgsize() (s int) {
	s = 1 + msgp.Int64Size + msgp.ArrayHeaderSize + len(b.prevHashes)*(msgp.BytesPrefixSize+HashSize) + msgp.ArrayHeaderSize
	for _, tx := range b.systemTxs {
		s += msgp.ArrayHeaderSize + msgp.Uint8Size + tx.Msgsize()
	}
	return
}

// Smallest packed parent hash (bin8 header) and transaction ([kind, body] with a one byte body).
const (
	minPackedHash = 2 + HashSize
	minPackedTx   = 3
)

// UnpackBlock reads a packed block and returns the remaining bytes.
func UnpackBlock(bts []byte) (*Block, []byte, error) {
	sz, bts, err := msgp.ReadArrayHeaderBytes(bts)
	if err != nil {
		return nil, bts, err
	}
	if sz != 3 {
		return nil, bts, msgp.ArrayError{Wanted: 3, Got: sz}
	}
	timestamp, bts, err := msgp.ReadInt64Bytes(bts)
	if err != nil {
		return nil, bts, err
	}
	nprev, bts, err := msgp.ReadArrayHeaderBytes(bts)
	if err != nil {
		return nil, bts, err
	}
	if uint64(nprev)*minPackedHash > uint64(len(bts)) {
		return nil, bts, errors.Wrapf(msgp.ErrShortBytes, "%d parents in %d bytes", nprev, len(bts))
	}
	prev := make([]Hash, nprev)
	for i := range prev {
		bts, err = msgp.ReadExactBytes(bts, prev[i][:])
		if err != nil {
			return nil, bts, err
		}
	}
	ntx, bts, err := msgp.ReadArrayHeaderBytes(bts)
	if err != nil {
		return nil, bts, err
	}
	if uint64(ntx)*minPackedTx > uint64(len(bts)) {
		return nil, bts, errors.Wrapf(msgp.ErrShortBytes, "%d transactions in %d bytes", ntx, len(bts))
	}
	txs := make([]SystemTx, ntx)
	for i := range txs {
		txs[i], bts, err = readTx(bts)
		if err != nil {
			return nil, bts, err
		}
	}
	blk, err := NewBlock(timestamp, prev, txs)
	return blk, bts, err
}

// SignedBlock wraps a block with a signature over its hash.
type SignedBlock struct {
	Block     *Block
	Signature []byte
}

func NewSignedBlock(block *Block, signature []byte) *SignedBlock {
	return &SignedBlock{Block: block, Signature: append([]byte(nil), signature...)}
}

func (sb *SignedBlock) Hash() Hash { return sb.Block.Hash() }

// MarshalMsg implements msgp.Marshaler
func (sb *SignedBlock) MarshalMsg(b []byte) (o []byte, err error) {
	o = msgp.Require(b, sb.Msgsize())
	// array header, size 2
	o = append(o, 0x92)
	o, err = sb.Block.MarshalMsg(o)
	if err != nil {
		return
	}
	o = msgp.AppendBytes(o, sb.Signature)
	return
}

// Msgsize returns an upper bound estimate of the number of bytes occupied by the serialized message
func (sb *SignedBlock) Msgsize() int {
	return 1 + sb.Block.Msgsize() + msgp.BytesPrefixSize + len(sb.Signature)
}

// UnpackSignedBlock reads a packed signed block and returns the remaining bytes.
func UnpackSignedBlock(bts []byte) (*SignedBlock, []byte, error) {
	sz, bts, err := msgp.ReadArrayHeaderBytes(bts)
	if err != nil {
		return nil, bts, err
	}
	if sz != 2 {
		return nil, bts, msgp.ArrayError{Wanted: 2, Got: sz}
	}
	blk, bts, err := UnpackBlock(bts)
	if err != nil {
		return nil, bts, errors.Wrap(err, "unpacking block")
	}
	sig, bts, err := msgp.ReadBytesBytes(bts, nil)
	if err != nil {
		return nil, bts, err
	}
	return &SignedBlock{Block: blk, Signature: sig}, bts, nil
}
