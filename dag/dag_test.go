package dag_test

import (
	"testing"

	"dag-ledger/dag"
	"dag-ledger/dag/dagtest"
	"dag-ledger/models"
	"dag-ledger/repository"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	numbers []int
	hashes  []models.Hash
}

func (r *recordingListener) OnBlockAdmitted(number int, block *models.SignedBlock) {
	r.numbers = append(r.numbers, number)
	r.hashes = append(r.hashes, block.Hash())
}

func TestAdmitIndexesBlock(t *testing.T) {
	listener := &recordingListener{}
	b := dagtest.New(t, func(d *dag.DAG) { d.Subscribe(listener) })
	a := b.Add(1, b.Genesis)

	number, err := b.DAG.BlockNumber(a)
	require.NoError(t, err)
	assert.Equal(t, 1, number)

	links, err := b.DAG.Links(a)
	require.NoError(t, err)
	assert.Equal(t, []models.Hash{b.Genesis}, links)

	assert.Equal(t, []models.Hash{a}, b.DAG.Tips())
	assert.Equal(t, []int{0, 1}, listener.numbers)
	assert.Equal(t, []models.Hash{b.Genesis, a}, listener.hashes)
	assert.Len(t, b.DAG.BlocksAt(0), 1)
	assert.Equal(t, 2, b.DAG.Len())

	genesis, ok := b.DAG.Genesis()
	require.True(t, ok)
	assert.Equal(t, b.Genesis, genesis)
}

func TestAdmitRejectsDuplicateHash(t *testing.T) {
	b := dagtest.New(t)
	block := b.NewBlock(1, []models.Hash{b.Genesis})
	require.NoError(t, b.DAG.Admit(1, block))

	err := b.DAG.Admit(1, block)
	assert.True(t, errors.Is(err, dag.ErrDuplicateHash), "got %v", err)
	assert.Len(t, b.DAG.BlocksAt(1), 1)
}

func TestAdmitRejectsDanglingParent(t *testing.T) {
	b := dagtest.New(t)
	listener := &recordingListener{}
	b.DAG.Subscribe(listener)

	unknown := models.HashBytes([]byte("nope"))
	err := b.DAG.Admit(1, b.NewBlock(1, []models.Hash{b.Genesis, unknown}))
	assert.True(t, errors.Is(err, dag.ErrDanglingParent), "got %v", err)
	assert.Empty(t, listener.numbers)
	assert.Equal(t, []models.Hash{b.Genesis}, b.DAG.Tips())
	assert.Empty(t, b.DAG.BlocksAt(1))
}

func TestAdmitRejectsBadGenesisAndTimeslot(t *testing.T) {
	b := dagtest.New(t)

	err := b.DAG.Admit(3, b.NewBlock(3, nil))
	assert.True(t, errors.Is(err, dag.ErrInvalidGenesis), "got %v", err)

	a := b.Add(2, b.Genesis)
	err = b.DAG.Admit(2, b.NewBlock(2, []models.Hash{a}))
	assert.True(t, errors.Is(err, dag.ErrInvalidTimeslot), "got %v", err)

	fresh := dag.New(repository.NewMemoryStore())
	err = fresh.Admit(1, b.NewBlock(1, nil))
	assert.True(t, errors.Is(err, dag.ErrInvalidGenesis), "got %v", err)
}

func TestLookupUnknownHash(t *testing.T) {
	b := dagtest.New(t)
	unknown := models.HashBytes([]byte("unknown"))

	_, err := b.DAG.BlockNumber(unknown)
	assert.True(t, errors.Is(err, dag.ErrNotFound))
	_, err = b.DAG.Links(unknown)
	assert.True(t, errors.Is(err, dag.ErrNotFound))
	_, err = b.DAG.CommonAncestor([]models.Hash{b.Genesis, unknown})
	assert.True(t, errors.Is(err, dag.ErrNotFound))
}

func TestTipsTrackFrontier(t *testing.T) {
	b := dagtest.New(t)
	a := b.Add(1, b.Genesis)
	b1 := b.Add(2, a)
	b2 := b.Add(2, a)
	assert.ElementsMatch(t, []models.Hash{b1, b2}, b.DAG.Tips())

	c := b.Add(3, b2)
	assert.ElementsMatch(t, []models.Hash{b1, c}, b.DAG.Tips())
	assert.Equal(t, c, b.DAG.Tips()[0], "highest timeslot first")

	m := b.Add(4, c, b1)
	assert.Equal(t, []models.Hash{m}, b.DAG.Tips())
	assert.Len(t, b.DAG.BlocksAt(2), 2)
}

func TestTransactionsIndexed(t *testing.T) {
	b := dagtest.New(t)
	ack := &models.PositiveAck{Block: b.Genesis}
	b.AddTxs(1, []models.Hash{b.Genesis}, []models.SystemTx{ack})

	hash, err := models.TxHash(ack)
	require.NoError(t, err)
	tx, ok := b.DAG.Transaction(hash)
	require.True(t, ok)
	assert.Equal(t, models.TxPositiveAck, tx.Kind())
}

func TestIsAncestorFollowsAllParents(t *testing.T) {
	b := dagtest.New(t)
	a := b.Add(1, b.Genesis)
	left := b.Add(2, a)
	right := b.Add(2, a)
	rightChild := b.Add(3, right)
	merge := b.Add(4, left, rightChild)

	assert.True(t, b.DAG.IsAncestor(right, merge), "reachable through second parent")
	assert.True(t, b.DAG.IsAncestor(b.Genesis, merge))
	assert.True(t, b.DAG.IsAncestor(merge, merge))
	assert.False(t, b.DAG.IsAncestor(left, rightChild))
	assert.False(t, b.DAG.IsAncestor(merge, a))
}

func TestCommonAncestor(t *testing.T) {
	b := dagtest.New(t)
	a := b.Add(1, b.Genesis)
	b1 := b.Add(2, a)
	b2 := b.Add(2, a)
	c := b.Add(3, b2)
	far := b.Chain(b1, 5, 9)

	ancestor, err := b.DAG.CommonAncestor([]models.Hash{b1, c})
	require.NoError(t, err)
	assert.Equal(t, a, ancestor)

	ancestor, err = b.DAG.CommonAncestor([]models.Hash{far[1], c})
	require.NoError(t, err)
	assert.Equal(t, a, ancestor)

	ancestor, err = b.DAG.CommonAncestor([]models.Hash{far[1], b1})
	require.NoError(t, err)
	assert.Equal(t, b1, ancestor)

	ancestor, err = b.DAG.CommonAncestor([]models.Hash{c})
	require.NoError(t, err)
	assert.Equal(t, c, ancestor)

	_, err = b.DAG.CommonAncestor(nil)
	assert.True(t, errors.Is(err, dag.ErrNoCommonAncestor))
}

func TestBranchesInRange(t *testing.T) {
	b := dagtest.New(t)
	a := b.Add(1, b.Genesis)
	b1 := b.Add(2, a)
	b2 := b.Add(2, a)
	c := b.Add(3, b2)
	d := b.Add(5, c, b1)

	assert.ElementsMatch(t, []models.Hash{b1, c}, b.DAG.BranchesInRange(1, 4))
	assert.Equal(t, []models.Hash{d}, b.DAG.BranchesInRange(1, 6))
	assert.ElementsMatch(t, []models.Hash{b1, b2}, b.DAG.BranchesInRange(2, 3))
	assert.Empty(t, b.DAG.BranchesInRange(4, 5))
	assert.Equal(t, []models.Hash{d}, b.DAG.BranchesInRange(4, 100))
}
