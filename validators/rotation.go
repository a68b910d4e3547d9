package validators

import (
	"encoding/binary"
	"sort"

	"dag-ledger/models"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
)

const rotationCacheSize = 64

// Rotation assigns each timeslot a leader. The order of an epoch is a permutation of the validator
// set derived from the epoch seed, so every replica sharing the genesis block agrees on it.
//
// Computed orders are cached per Rotation, keyed by epoch seed. Rotations never share a cache.
type Rotation struct {
	registry *Registry
	genesis  models.Hash
	orders   *lru.Cache
}

func NewRotation(registry *Registry, genesis models.Hash) (*Rotation, error) {
	cache, err := lru.New(rotationCacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "creating rotation cache")
	}
	return &Rotation{registry: registry, genesis: genesis, orders: cache}, nil
}

// Seed returns the seed of an epoch.
func (r *Rotation) Seed(epoch int) models.Hash {
	buf := append([]byte(nil), r.genesis[:]...)
	buf = binary.AppendVarint(buf, int64(epoch))
	return models.HashBytes(buf)
}

// Order returns the validator ids of an epoch in production order.
func (r *Rotation) Order(epoch int) []string {
	seed := r.Seed(epoch)
	if cached, ok := r.orders.Get(seed); ok {
		return append([]string(nil), cached.([]string)...)
	}
	ids := r.registry.IDs()
	ranks := make(map[string]models.Hash, len(ids))
	for _, id := range ids {
		ranks[id] = models.HashBytes(append(append([]byte(nil), seed[:]...), id...))
	}
	sort.Slice(ids, func(i, j int) bool {
		return ranks[ids[i]].Less(ranks[ids[j]])
	})
	r.orders.Add(seed, ids)
	return append([]string(nil), ids...)
}

// Leader returns the id of the validator producing the block of a timeslot.
func (r *Rotation) Leader(number int) string {
	order := r.Order(r.registry.Epoch(number))
	return order[number%len(order)]
}

// Cached reports how many epoch orders this rotation holds.
func (r *Rotation) Cached() int {
	return r.orders.Len()
}
