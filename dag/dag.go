package dag

import (
	"sort"

	"dag-ledger/logger"
	"dag-ledger/models"
	"dag-ledger/repository"

	mapset "github.com/deckarep/golang-set"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Listener is notified synchronously after every successful admission.
type Listener interface {
	OnBlockAdmitted(number int, block *models.SignedBlock)
}

// DAG indexes admitted blocks by hash and by timeslot and tracks the current tips.
//
// A DAG is not safe for concurrent use. The owner serializes access to one instance.
type DAG struct {
	store repository.BlockStore

	blocksByHash       map[models.Hash]*models.SignedBlock
	blocksByNumber     map[int][]*models.SignedBlock
	numberByHash       map[models.Hash]int
	tops               map[models.Hash]*models.SignedBlock
	referenced         map[models.Hash]struct{}
	transactionsByHash map[models.Hash]models.SystemTx

	listeners []Listener

	genesis    models.Hash
	hasGenesis bool
	maxNumber  int
}

// New creates an empty DAG that writes admitted block content to store.
func New(store repository.BlockStore) *DAG {
	return &DAG{
		store:              store,
		blocksByHash:       make(map[models.Hash]*models.SignedBlock),
		blocksByNumber:     make(map[int][]*models.SignedBlock),
		numberByHash:       make(map[models.Hash]int),
		tops:               make(map[models.Hash]*models.SignedBlock),
		referenced:         make(map[models.Hash]struct{}),
		transactionsByHash: make(map[models.Hash]models.SystemTx),
	}
}

// Subscribe registers a listener. Listeners run in subscription order.
func (d *DAG) Subscribe(l Listener) {
	d.listeners = append(d.listeners, l)
}

// Admit adds a signed block at the given timeslot. Either every index is updated and every listener
// has run when Admit returns nil, or nothing changed.
func (d *DAG) Admit(number int, block *models.SignedBlock) error {
	hash := block.Hash()
	if err := d.validate(number, block); err != nil {
		logger.Logger.Warn("Rejected block",
			zap.String("hash", hash.String()), zap.Int("timeslot", number), zap.Error(err))
		return err
	}
	if err := d.store.PutBlock(block); err != nil {
		return errors.Wrapf(err, "storing block %s", hash)
	}

	d.blocksByHash[hash] = block
	d.blocksByNumber[number] = append(d.blocksByNumber[number], block)
	d.numberByHash[hash] = number
	for _, parent := range block.Block.PrevHashes() {
		delete(d.tops, parent)
		d.referenced[parent] = struct{}{}
	}
	if _, ok := d.referenced[hash]; !ok {
		d.tops[hash] = block
	}
	txHashes := block.Block.TxHashes()
	for i, tx := range block.Block.SystemTxs() {
		d.transactionsByHash[txHashes[i]] = tx
	}
	if block.Block.IsGenesis() {
		d.genesis = hash
		d.hasGenesis = true
	}
	if number > d.maxNumber {
		d.maxNumber = number
	}

	logger.Logger.Debug("Admitted block",
		zap.String("hash", hash.String()),
		zap.Int("timeslot", number),
		zap.Int("parents", len(block.Block.PrevHashes())),
		zap.Int("tips", len(d.tops)))

	for _, l := range d.listeners {
		l.OnBlockAdmitted(number, block)
	}
	return nil
}

func (d *DAG) validate(number int, block *models.SignedBlock) error {
	hash := block.Hash()
	if _, ok := d.blocksByHash[hash]; ok {
		return errors.Wrapf(ErrDuplicateHash, "block %s", hash)
	}
	parents := block.Block.PrevHashes()
	if len(parents) == 0 {
		if d.hasGenesis {
			return errors.Wrapf(ErrInvalidGenesis, "block %s has no parents but genesis %s exists", hash, d.genesis)
		}
		if number != 0 {
			return errors.Wrapf(ErrInvalidGenesis, "genesis %s at timeslot %d", hash, number)
		}
		return nil
	}
	for _, parent := range parents {
		parentNumber, ok := d.numberByHash[parent]
		if !ok {
			return errors.Wrapf(ErrDanglingParent, "parent %s of block %s", parent, hash)
		}
		if parentNumber >= number {
			return errors.Wrapf(ErrInvalidTimeslot, "block %s at timeslot %d has parent %s at timeslot %d",
				hash, number, parent, parentNumber)
		}
	}
	return nil
}

func (d *DAG) Has(hash models.Hash) bool {
	_, ok := d.blocksByHash[hash]
	return ok
}

func (d *DAG) Block(hash models.Hash) (*models.SignedBlock, error) {
	block, ok := d.blocksByHash[hash]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "hash %s", hash)
	}
	return block, nil
}

// BlockNumber returns the timeslot a block was admitted at.
func (d *DAG) BlockNumber(hash models.Hash) (int, error) {
	number, ok := d.numberByHash[hash]
	if !ok {
		return 0, errors.Wrapf(ErrNotFound, "hash %s", hash)
	}
	return number, nil
}

// Links returns the parent hashes of a block.
func (d *DAG) Links(hash models.Hash) ([]models.Hash, error) {
	block, err := d.Block(hash)
	if err != nil {
		return nil, err
	}
	return append([]models.Hash(nil), block.Block.PrevHashes()...), nil
}

// BlocksAt returns the blocks admitted at a timeslot in admission order. More than one means a fork.
func (d *DAG) BlocksAt(number int) []*models.SignedBlock {
	return append([]*models.SignedBlock(nil), d.blocksByNumber[number]...)
}

// Tips returns the blocks no other block references, highest timeslot first, then by hash.
func (d *DAG) Tips() []models.Hash {
	tips := make([]models.Hash, 0, len(d.tops))
	for hash := range d.tops {
		tips = append(tips, hash)
	}
	sort.Slice(tips, func(i, j int) bool {
		ni, nj := d.numberByHash[tips[i]], d.numberByHash[tips[j]]
		if ni != nj {
			return ni > nj
		}
		return tips[i].Less(tips[j])
	})
	return tips
}

func (d *DAG) Transaction(hash models.Hash) (models.SystemTx, bool) {
	tx, ok := d.transactionsByHash[hash]
	return tx, ok
}

func (d *DAG) Genesis() (models.Hash, bool) {
	return d.genesis, d.hasGenesis
}

// MaxNumber returns the highest timeslot any block was admitted at.
func (d *DAG) MaxNumber() int {
	return d.maxNumber
}

func (d *DAG) Len() int {
	return len(d.blocksByHash)
}

// IsAncestor reports whether ancestor is reachable from descendant by following zero or more parent
// edges, over every parent and not only the first.
func (d *DAG) IsAncestor(ancestor, descendant models.Hash) bool {
	ancestorNumber, ok := d.numberByHash[ancestor]
	if !ok || !d.Has(descendant) {
		return false
	}
	visited := mapset.NewThreadUnsafeSet()
	stack := []models.Hash{descendant}
	for len(stack) > 0 {
		hash := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if hash == ancestor {
			return true
		}
		if !visited.Add(hash) {
			continue
		}
		for _, parent := range d.blocksByHash[hash].Block.PrevHashes() {
			if d.numberByHash[parent] >= ancestorNumber {
				stack = append(stack, parent)
			}
		}
	}
	return false
}

type lockstepBranch struct {
	cursor  models.Hash
	number  int
	done    bool
	visited mapset.Set
}

// CommonAncestor walks the first-parent chains of every hash back in lockstep, one timeslot at a
// time, and returns the first block every branch has visited.
func (d *DAG) CommonAncestor(hashes []models.Hash) (models.Hash, error) {
	if len(hashes) == 0 {
		return models.ZeroHash, errors.Wrap(ErrNoCommonAncestor, "no branches given")
	}
	branches := make([]*lockstepBranch, 0, len(hashes))
	t := -1
	for _, hash := range hashes {
		number, err := d.BlockNumber(hash)
		if err != nil {
			return models.ZeroHash, err
		}
		branches = append(branches, &lockstepBranch{cursor: hash, number: number, visited: mapset.NewThreadUnsafeSet()})
		if number > t {
			t = number
		}
	}

	for t >= 0 {
		var fresh []models.Hash
		next := -1
		for _, b := range branches {
			if !b.done && b.number == t {
				b.visited.Add(b.cursor)
				fresh = append(fresh, b.cursor)
				parents := d.blocksByHash[b.cursor].Block.PrevHashes()
				if len(parents) == 0 {
					b.done = true
				} else {
					b.cursor = parents[0]
					b.number = d.numberByHash[b.cursor]
				}
			}
			if !b.done && b.number > next {
				next = b.number
			}
		}
		for _, hash := range fresh {
			if visitedByAll(branches, hash) {
				return hash, nil
			}
		}
		t = next
	}
	return models.ZeroHash, errors.Wrapf(ErrNoCommonAncestor, "%d branches", len(hashes))
}

func visitedByAll(branches []*lockstepBranch, hash models.Hash) bool {
	for _, b := range branches {
		if !b.visited.Contains(hash) {
			return false
		}
	}
	return true
}

// BranchesInRange collects every block admitted in the half-open timeslot range [start, end), drops
// the ones referenced as a parent by another block of the range and returns the rest, ordered by
// timeslot then hash.
func (d *DAG) BranchesInRange(start, end int) []models.Hash {
	if start < 0 {
		start = 0
	}
	if end > d.maxNumber+1 {
		end = d.maxNumber + 1
	}
	inRange := make(map[models.Hash]*models.SignedBlock)
	for n := start; n < end; n++ {
		for _, block := range d.blocksByNumber[n] {
			inRange[block.Hash()] = block
		}
	}
	remaining := make(map[models.Hash]struct{}, len(inRange))
	for hash := range inRange {
		remaining[hash] = struct{}{}
	}
	for _, block := range inRange {
		for _, parent := range block.Block.PrevHashes() {
			delete(remaining, parent)
		}
	}
	branches := make([]models.Hash, 0, len(remaining))
	for hash := range remaining {
		branches = append(branches, hash)
	}
	d.SortByNumber(branches)
	return branches
}

// SortByNumber sorts admitted hashes by timeslot, then by hash.
func (d *DAG) SortByNumber(hashes []models.Hash) {
	sort.Slice(hashes, func(i, j int) bool {
		ni, nj := d.numberByHash[hashes[i]], d.numberByHash[hashes[j]]
		if ni != nj {
			return ni < nj
		}
		return hashes[i].Less(hashes[j])
	})
}
