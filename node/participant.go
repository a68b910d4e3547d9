// Package node wires one replica of the ledger: a DAG and every component reading it, guarded as a
// unit.
package node

import (
	"sort"
	"sync"

	"dag-ledger/conflicts"
	"dag-ledger/dag"
	"dag-ledger/finality"
	"dag-ledger/logger"
	"dag-ledger/merger"
	"dag-ledger/models"
	"dag-ledger/repository"
	"dag-ledger/validators"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrNoKey is returned by Produce on a participant that does not sign blocks.
var ErrNoKey = errors.New("participant has no signing key")

// ErrNoRegistry is returned by New without a validator registry.
var ErrNoRegistry = errors.New("participant needs a validator registry")

type Config struct {
	Params   finality.Params
	Store    repository.BlockStore
	Registry *validators.Registry
	// Key is optional. Without it the participant only follows.
	Key *validators.Key
}

type orphan struct {
	number int
	block  *models.SignedBlock
}

// Participant owns one DAG. Every method takes the participant's lock, so a DAG is only ever
// touched by one goroutine at a time.
type Participant struct {
	mu sync.Mutex

	key      *validators.Key
	dag      *dag.DAG
	tracker  *finality.Tracker
	calc     *finality.Calculator
	watcher  *conflicts.Watcher
	merger   *merger.Merger
	finder   *conflicts.Finder
	rotation *validators.Rotation
	orphans  map[models.Hash]orphan
}

// New builds a participant around genesis. Blocks already in the store are admitted again, in
// timestamp order, with their timestamp as timeslot.
func New(cfg Config, genesis *models.SignedBlock) (*Participant, error) {
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}
	if cfg.Registry == nil {
		return nil, ErrNoRegistry
	}
	if cfg.Store == nil {
		cfg.Store = repository.NewMemoryStore()
	}
	d := dag.New(cfg.Store)
	tracker := finality.NewTracker(d, cfg.Params)
	watcher := conflicts.NewWatcher(d, cfg.Registry)
	d.Subscribe(tracker)
	d.Subscribe(watcher)

	rotation, err := validators.NewRotation(cfg.Registry, genesis.Hash())
	if err != nil {
		return nil, err
	}
	p := &Participant{
		key:      cfg.Key,
		dag:      d,
		tracker:  tracker,
		calc:     finality.NewCalculator(d, cfg.Params),
		watcher:  watcher,
		merger:   merger.New(d, tracker),
		finder:   conflicts.NewFinder(d),
		rotation: rotation,
		orphans:  make(map[models.Hash]orphan),
	}
	if err := d.Admit(0, genesis); err != nil {
		return nil, errors.Wrap(err, "admitting genesis")
	}
	if err := p.restore(cfg.Store); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Participant) restore(store repository.BlockStore) error {
	stored, err := store.AllBlocks()
	if err != nil {
		return errors.Wrap(err, "loading stored blocks")
	}
	sort.Slice(stored, func(i, j int) bool {
		ti, tj := stored[i].Block.Timestamp(), stored[j].Block.Timestamp()
		if ti != tj {
			return ti < tj
		}
		return stored[i].Hash().Less(stored[j].Hash())
	})
	restored := 0
	for _, block := range stored {
		if p.dag.Has(block.Hash()) {
			continue
		}
		if err := p.receive(int(block.Block.Timestamp()), block); err != nil {
			logger.Logger.Warn("Skipped stored block", zap.String("hash", block.Hash().String()), zap.Error(err))
			continue
		}
		restored++
	}
	if restored > 0 {
		logger.Logger.Info("Restored blocks from store", zap.Int("blocks", restored), zap.Int("orphans", len(p.orphans)))
	}
	return nil
}

// ID returns the participant's validator id, or "" for a follower.
func (p *Participant) ID() string {
	if p.key == nil {
		return ""
	}
	return p.key.ID()
}

// Admit adds a block and reports every structural violation.
func (p *Participant) Admit(number int, block *models.SignedBlock) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.dag.Admit(number, block); err != nil {
		return err
	}
	p.adoptOrphans()
	return nil
}

// Receive takes a block off the network. Blocks already held are ignored and blocks whose parents
// are not all known wait in the orphan pool until they are.
func (p *Participant) Receive(number int, block *models.SignedBlock) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.receive(number, block)
}

func (p *Participant) receive(number int, block *models.SignedBlock) error {
	hash := block.Hash()
	if p.dag.Has(hash) {
		return nil
	}
	if _, ok := p.orphans[hash]; ok {
		return nil
	}
	if p.missingParent(block) {
		p.orphans[hash] = orphan{number: number, block: block}
		logger.Logger.Debug("Orphan block", zap.String("hash", hash.String()), zap.Int("timeslot", number))
		return nil
	}
	if err := p.dag.Admit(number, block); err != nil {
		return err
	}
	p.adoptOrphans()
	return nil
}

func (p *Participant) missingParent(block *models.SignedBlock) bool {
	for _, parent := range block.Block.PrevHashes() {
		if !p.dag.Has(parent) {
			return true
		}
	}
	return false
}

// adoptOrphans admits every orphan whose parents have arrived, lowest timeslot first, until no
// more can be admitted.
func (p *Participant) adoptOrphans() {
	for {
		var ready []orphan
		for _, o := range p.orphans {
			if !p.missingParent(o.block) {
				ready = append(ready, o)
			}
		}
		if len(ready) == 0 {
			return
		}
		sort.Slice(ready, func(i, j int) bool {
			if ready[i].number != ready[j].number {
				return ready[i].number < ready[j].number
			}
			return ready[i].block.Hash().Less(ready[j].block.Hash())
		})
		for _, o := range ready {
			delete(p.orphans, o.block.Hash())
			if err := p.dag.Admit(o.number, o.block); err != nil {
				logger.Logger.Warn("Dropped orphan", zap.String("hash", o.block.Hash().String()), zap.Error(err))
			}
		}
	}
}

// Orphans returns how many received blocks still wait for a parent.
func (p *Participant) Orphans() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.orphans)
}

// Produce signs and admits a block at number on top of every current tip.
func (p *Participant) Produce(number int, txs ...models.SystemTx) (*models.SignedBlock, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.key == nil {
		return nil, ErrNoKey
	}
	block, err := models.NewBlock(int64(number), p.dag.Tips(), txs)
	if err != nil {
		return nil, err
	}
	signed := p.key.Sign(block)
	if err := p.dag.Admit(number, signed); err != nil {
		return nil, err
	}
	return signed, nil
}

// Leader returns who produces the block of a timeslot.
func (p *Participant) Leader(number int) string {
	return p.rotation.Leader(number)
}

func (p *Participant) Tips() []models.Hash {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dag.Tips()
}

func (p *Participant) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dag.Len()
}

func (p *Participant) Genesis() models.Hash {
	p.mu.Lock()
	defer p.mu.Unlock()
	genesis, _ := p.dag.Genesis()
	return genesis
}

func (p *Participant) Block(hash models.Hash) (*models.SignedBlock, int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	block, err := p.dag.Block(hash)
	if err != nil {
		return nil, 0, err
	}
	number, _ := p.dag.BlockNumber(hash)
	return block, number, nil
}

func (p *Participant) Links(hash models.Hash) ([]models.Hash, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dag.Links(hash)
}

// Requirement returns the confirmation requirement of a known block.
func (p *Participant) Requirement(hash models.Hash) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.dag.Has(hash) {
		return 0, errors.Wrapf(dag.ErrNotFound, "hash %s", hash)
	}
	return p.tracker.RequirementFor(hash), nil
}

// SkipRequirement returns the requirement of backstep empty timeslots behind anchor.
func (p *Participant) SkipRequirement(anchor models.Hash, backstep int) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.dag.Has(anchor) {
		return 0, errors.Wrapf(dag.ErrNotFound, "hash %s", anchor)
	}
	return p.tracker.RequirementForSkip(anchor, backstep), nil
}

func (p *Participant) Zeta(hash models.Hash) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calc.Zeta(hash)
}

func (p *Participant) Confirmations(hash models.Hash) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calc.Confirmations(hash)
}

func (p *Participant) SkipConfirmations(anchor models.Hash) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calc.SkipConfirmations(anchor)
}

func (p *Participant) ConflictsFor(hash models.Hash) ([]models.Hash, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.dag.Has(hash) {
		return nil, errors.Wrapf(dag.ErrNotFound, "hash %s", hash)
	}
	return p.watcher.ConflictsFor(hash), nil
}

func (p *Participant) FindConflicts(tips []models.Hash) ([]models.Hash, [][]models.Hash, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.watcher.FindConflictsInBetween(tips)
}

// LongestChain picks a canonical tip among tips, see conflicts.Finder.
func (p *Participant) LongestChain(tips []models.Hash) (models.Hash, []models.Hash, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.finder.Find(tips)
}

func (p *Participant) Merge(tips, exclude []models.Hash) (*merger.Sequence, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.merger.Merge(tips, exclude)
}

// Walk collects a merging walk from hash, leaving out what the watcher reports between the parents
// of every multi-parent block.
func (p *Participant) Walk(hash models.Hash) ([]models.Slot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, err := p.merger.Walk(hash, p.watcher)
	if err != nil {
		return nil, err
	}
	return w.Collect()
}

// Order merges the whole DAG from genesis to every tip, leaving out every equivocation not on the
// chain of the highest tip.
func (p *Participant) Order() (*merger.Sequence, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	genesis, _ := p.dag.Genesis()
	tips := append(p.dag.Tips(), genesis)
	exclude, err := p.watcher.ConflictsBetween(tips)
	if err != nil {
		return nil, err
	}
	return p.merger.Merge(tips, exclude)
}
