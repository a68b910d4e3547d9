package validators

import (
	"crypto/ed25519"

	"dag-ledger/models"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
)

const signerCacheSize = 4096

// ErrNoValidators is returned when a registry is built from an empty set.
var ErrNoValidators = errors.New("validator set is empty")

// Registry is the fixed validator set. It recovers who signed a block and which epoch the block
// belongs to. An epoch lasts one timeslot per validator, so an honest validator signs at most one
// block per epoch.
type Registry struct {
	keys        []ed25519.PublicKey
	ids         []string
	epochLength int
	signers     *lru.Cache
}

func NewRegistry(keys []ed25519.PublicKey) (*Registry, error) {
	if len(keys) == 0 {
		return nil, ErrNoValidators
	}
	cache, err := lru.New(signerCacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "creating signer cache")
	}
	r := &Registry{epochLength: len(keys), signers: cache}
	for _, key := range keys {
		r.keys = append(r.keys, key)
		r.ids = append(r.ids, ID(key))
	}
	return r, nil
}

// IDs returns the validator ids in registration order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.ids...)
}

func (r *Registry) Epoch(number int) int {
	return number / r.epochLength
}

func (r *Registry) EpochLength() int {
	return r.epochLength
}

// Signer returns the id of the validator whose key verifies the block's signature.
func (r *Registry) Signer(block *models.SignedBlock) (string, bool) {
	hash := block.Hash()
	if id, ok := r.signers.Get(hash); ok {
		return id.(string), true
	}
	if len(block.Signature) != ed25519.SignatureSize {
		return "", false
	}
	for i, key := range r.keys {
		if ed25519.Verify(key, hash[:], block.Signature) {
			r.signers.Add(hash, r.ids[i])
			return r.ids[i], true
		}
	}
	return "", false
}

// Attribute implements conflicts.Attributor.
func (r *Registry) Attribute(number int, block *models.SignedBlock) (int, string, bool) {
	if block.Block.IsGenesis() {
		return 0, "", false
	}
	id, ok := r.Signer(block)
	if !ok {
		return 0, "", false
	}
	return r.Epoch(number), id, true
}
