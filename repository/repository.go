package repository

import (
	"sync"

	"dag-ledger/db"
	"dag-ledger/models"

	"github.com/pkg/errors"
)

// ErrBlockNotFound is returned when a hash is not present in the store.
var ErrBlockNotFound = errors.New("block not found")

// ErrHashMismatch is returned when stored content does not hash to its key.
var ErrHashMismatch = errors.New("stored block does not match its hash")

// BlockStore holds raw content-addressed blocks. It has no notion of parents, tips or ordering.
type BlockStore interface {
	PutBlock(block *models.SignedBlock) error
	GetBlock(hash models.Hash) (*models.SignedBlock, error)
	HasBlock(hash models.Hash) (bool, error)
	AllBlocks() ([]*models.SignedBlock, error)
}

// MemoryStore keeps blocks in a map.
type MemoryStore struct {
	mu     sync.RWMutex
	blocks map[models.Hash]*models.SignedBlock
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blocks: make(map[models.Hash]*models.SignedBlock)}
}

func (m *MemoryStore) PutBlock(block *models.SignedBlock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks[block.Hash()] = block
	return nil
}

func (m *MemoryStore) GetBlock(hash models.Hash) (*models.SignedBlock, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	block, ok := m.blocks[hash]
	if !ok {
		return nil, errors.Wrapf(ErrBlockNotFound, "hash %s", hash)
	}
	return block, nil
}

func (m *MemoryStore) HasBlock(hash models.Hash) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blocks[hash]
	return ok, nil
}

func (m *MemoryStore) AllBlocks() ([]*models.SignedBlock, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	blocks := make([]*models.SignedBlock, 0, len(m.blocks))
	for _, block := range m.blocks {
		blocks = append(blocks, block)
	}
	return blocks, nil
}

var blockPrefix = []byte("block:")

// LevelDBStore implements BlockStore using LevelDB as the storage backend. Values are the msgp
// packed form of the signed block.
type LevelDBStore struct {
	db *db.LevelDB
}

// NewLevelDBStore creates and returns a new LevelDBStore instance
func NewLevelDBStore(ldb *db.LevelDB) *LevelDBStore {
	return &LevelDBStore{db: ldb}
}

func blockKey(hash models.Hash) []byte {
	return append(append([]byte(nil), blockPrefix...), hash[:]...)
}

// PutBlock stores a signed block under its hash
func (r *LevelDBStore) PutBlock(block *models.SignedBlock) error {
	data, err := block.MarshalMsg(nil)
	if err != nil {
		return errors.Wrapf(err, "packing block %s", block.Hash())
	}
	return r.db.Put(blockKey(block.Hash()), data)
}

// GetBlock retrieves a signed block by its hash
func (r *LevelDBStore) GetBlock(hash models.Hash) (*models.SignedBlock, error) {
	data, err := r.db.Get(blockKey(hash))
	if err == db.ErrNotFound {
		return nil, errors.Wrapf(ErrBlockNotFound, "hash %s", hash)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading block %s", hash)
	}
	block, _, err := models.UnpackSignedBlock(data)
	if err != nil {
		return nil, errors.Wrapf(err, "unpacking block %s", hash)
	}
	if block.Hash() != hash {
		return nil, errors.Wrapf(ErrHashMismatch, "key %s, content %s", hash, block.Hash())
	}
	return block, nil
}

func (r *LevelDBStore) HasBlock(hash models.Hash) (bool, error) {
	return r.db.Has(blockKey(hash))
}

// AllBlocks retrieves every stored block
func (r *LevelDBStore) AllBlocks() ([]*models.SignedBlock, error) {
	iter := r.db.NewIterator(blockPrefix)
	defer iter.Release()

	var blocks []*models.SignedBlock
	for iter.Next() {
		block, _, err := models.UnpackSignedBlock(iter.Value())
		if err != nil {
			return nil, errors.Wrapf(err, "unpacking block at key %x", iter.Key())
		}
		blocks = append(blocks, block)
	}
	return blocks, iter.Error()
}
