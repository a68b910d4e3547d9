// Package validators signs blocks, recovers their signers and rotates block production among a
// fixed validator set.
package validators

import (
	"crypto/ed25519"
	"encoding/hex"

	"dag-ledger/models"
)

// Key is one validator's signing key.
type Key struct {
	private ed25519.PrivateKey
	public  ed25519.PublicKey
}

// NewKey derives a key from an arbitrary seed phrase. The same phrase always gives the same key.
func NewKey(seed []byte) *Key {
	h := models.HashBytes(seed)
	private := ed25519.NewKeyFromSeed(h[:])
	return &Key{private: private, public: private.Public().(ed25519.PublicKey)}
}

func (k *Key) Public() ed25519.PublicKey { return k.public }

// ID is the hex form of the public key, the name a validator goes by everywhere else.
func (k *Key) ID() string { return ID(k.public) }

// Sign signs the block hash.
func (k *Key) Sign(block *models.Block) *models.SignedBlock {
	hash := block.Hash()
	return models.NewSignedBlock(block, ed25519.Sign(k.private, hash[:]))
}

func ID(public ed25519.PublicKey) string {
	return hex.EncodeToString(public)
}
