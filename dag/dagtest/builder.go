// Package dagtest builds DAG fixtures for tests.
package dagtest

import (
	"encoding/binary"
	"testing"

	"dag-ledger/dag"
	"dag-ledger/models"
	"dag-ledger/repository"

	"github.com/stretchr/testify/require"
)

// Builder admits blocks into a fresh in-memory DAG and fails the test on any admission error.
type Builder struct {
	t       testing.TB
	DAG     *dag.DAG
	Genesis models.Hash
	nonce   uint64
}

// New creates a DAG, runs setup (typically subscribing listeners) and admits a genesis block at
// timeslot 0.
func New(t testing.TB, setup ...func(d *dag.DAG)) *Builder {
	t.Helper()
	b := &Builder{t: t, DAG: dag.New(repository.NewMemoryStore())}
	for _, f := range setup {
		f(b.DAG)
	}
	b.Genesis = b.Add(0)
	return b
}

// NewBlock builds an unadmitted signed block. Each call yields a distinct hash.
func (b *Builder) NewBlock(number int, parents []models.Hash, txs ...models.SystemTx) *models.SignedBlock {
	b.t.Helper()
	b.nonce++
	nonce := make([]byte, 8)
	binary.BigEndian.PutUint64(nonce, b.nonce)
	txs = append([]models.SystemTx{&models.Payload{Data: nonce}}, txs...)
	blk, err := models.NewBlock(int64(number), parents, txs)
	require.NoError(b.t, err)
	return models.NewSignedBlock(blk, nil)
}

// Add admits a new block at number on top of parents and returns its hash.
func (b *Builder) Add(number int, parents ...models.Hash) models.Hash {
	b.t.Helper()
	return b.AddTxs(number, parents, nil)
}

// AddTxs admits a new block carrying txs.
func (b *Builder) AddTxs(number int, parents []models.Hash, txs []models.SystemTx) models.Hash {
	b.t.Helper()
	block := b.NewBlock(number, parents, txs...)
	b.Admit(number, block)
	return block.Hash()
}

// Admit admits an already built block.
func (b *Builder) Admit(number int, block *models.SignedBlock) {
	b.t.Helper()
	require.NoError(b.t, b.DAG.Admit(number, block))
}

// Chain admits one block per number, each on top of the previous, starting from parent. It returns
// the hashes in admission order.
func (b *Builder) Chain(parent models.Hash, numbers ...int) []models.Hash {
	b.t.Helper()
	hashes := make([]models.Hash, 0, len(numbers))
	for _, n := range numbers {
		parent = b.Add(n, parent)
		hashes = append(hashes, parent)
	}
	return hashes
}
