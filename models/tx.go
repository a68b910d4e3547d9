package models

import (
	"github.com/pkg/errors"
	"github.com/tinylib/msgp/msgp"
)

// TxKind tags the concrete type of a packed system transaction.
type TxKind uint8

const (
	TxPayload TxKind = iota + 1
	TxPositiveAck
	TxNegativeAck
)

func (k TxKind) String() string {
	switch k {
	case TxPayload:
		return "payload"
	case TxPositiveAck:
		return "positive_ack"
	case TxNegativeAck:
		return "negative_ack"
	}
	return "unknown"
}

// SystemTx is a protocol transaction carried inside a block. The ordering core treats it as opaque
// except through BlockAcknowledger and SlotAcknowledger.
type SystemTx interface {
	msgp.Marshaler
	msgp.Sizer
	Kind() TxKind
}

// BlockAcknowledger is implemented by transactions that positively acknowledge a block.
type BlockAcknowledger interface {
	AcknowledgesBlock(h Hash) bool
}

// SlotAcknowledger is implemented by transactions that state a timeslot was left empty.
type SlotAcknowledger interface {
	AcknowledgesTimeslot(number int) bool
}

// Payload is an opaque application transaction.
type Payload struct {
	Data []byte
}

// PositiveAck acknowledges the block with the given hash.
type PositiveAck struct {
	Block Hash
}

// NegativeAck acknowledges that no block was seen at Timeslot.
type NegativeAck struct {
	Timeslot int
}

func (p *Payload) Kind() TxKind     { return TxPayload }
func (a *PositiveAck) Kind() TxKind { return TxPositiveAck }
func (n *NegativeAck) Kind() TxKind { return TxNegativeAck }

func (a *PositiveAck) AcknowledgesBlock(h Hash) bool {
	return a.Block == h
}

func (n *NegativeAck) AcknowledgesTimeslot(number int) bool {
	return n.Timeslot == number
}

// MarshalMsg implements msgp.Marshaler
func (p *Payload) MarshalMsg(b []byte) (o []byte, err error) {
	o = msgp.Require(b, p.Msgsize())
	o = msgp.AppendBytes(o, p.Data)
	return
}

// UnmarshalMsg implements msgp.Unmarshaler
func (p *Payload) UnmarshalMsg(bts []byte) (o []byte, err error) {
	p.Data, bts, err = msgp.ReadBytesBytes(bts, p.Data)
	if err != nil {
		return
	}
	o = bts
	return
}

// Msgsize returns an upper bound estimate of the number of bytes occupied by the serialized message
func (p *Payload) Msgsize() int {
	return msgp.BytesPrefixSize + len(p.Data)
}

// MarshalMsg implements msgp.Marshaler
func (a *PositiveAck) MarshalMsg(b []byte) (o []byte, err error) {
	o = msgp.Require(b, a.Msgsize())
	o = msgp.AppendBytes(o, a.Block[:])
	return
}

// UnmarshalMsg implements msgp.Unmarshaler
func (a *PositiveAck) UnmarshalMsg(bts []byte) (o []byte, err error) {
	bts, err = msgp.ReadExactBytes(bts, a.Block[:])
	if err != nil {
		return
	}
	o = bts
	return
}

// Msgsize returns an upper bound estimate of the number of bytes occupied by the serialized message
func (a *PositiveAck) Msgsize() int {
	return msgp.BytesPrefixSize + HashSize
}

// MarshalMsg implements msgp.Marshaler
func (n *NegativeAck) MarshalMsg(b []byte) (o []byte, err error) {
	o = msgp.Require(b, n.Msgsize())
	o = msgp.AppendInt(o, n.Timeslot)
	return
}

// UnmarshalMsg implements msgp.Unmarshaler
func (n *NegativeAck) UnmarshalMsg(bts []byte) (o []byte, err error) {
	n.Timeslot, bts, err = msgp.ReadIntBytes(bts)
	if err != nil {
		return
	}
	o = bts
	return
}

// Msgsize returns an upper bound estimate of the number of bytes occupied by the serialized message
func (n *NegativeAck) Msgsize() int {
	return msgp.IntSize
}

// TxHash returns the digest of the packed transaction, kind tag included.
func TxHash(tx SystemTx) (Hash, error) {
	packed, err := appendTx(nil, tx)
	if err != nil {
		return ZeroHash, errors.Wrapf(err, "packing %s transaction", tx.Kind())
	}
	return HashBytes(packed), nil
}

// appendTx packs tx as [kind, body].
func appendTx(b []byte, tx SystemTx) ([]byte, error) {
	o := msgp.AppendArrayHeader(b, 2)
	o = msgp.AppendUint8(o, uint8(tx.Kind()))
	return tx.MarshalMsg(o)
}

func readTx(bts []byte) (SystemTx, []byte, error) {
	sz, bts, err := msgp.ReadArrayHeaderBytes(bts)
	if err != nil {
		return nil, bts, err
	}
	if sz != 2 {
		return nil, bts, msgp.ArrayError{Wanted: 2, Got: sz}
	}
	kind, bts, err := msgp.ReadUint8Bytes(bts)
	if err != nil {
		return nil, bts, err
	}
	var tx interface {
		SystemTx
		msgp.Unmarshaler
	}
	switch TxKind(kind) {
	case TxPayload:
		tx = &Payload{}
	case TxPositiveAck:
		tx = &PositiveAck{}
	case TxNegativeAck:
		tx = &NegativeAck{}
	default:
		return nil, bts, errors.Errorf("unknown system transaction kind %d", kind)
	}
	bts, err = tx.UnmarshalMsg(bts)
	if err != nil {
		return nil, bts, err
	}
	return tx, bts, nil
}
