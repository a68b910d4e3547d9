package validators_test

import (
	"crypto/ed25519"
	"fmt"
	"testing"

	"dag-ledger/models"
	"dag-ledger/validators"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keys(n int) ([]*validators.Key, []ed25519.PublicKey) {
	var ks []*validators.Key
	var pubs []ed25519.PublicKey
	for i := 0; i < n; i++ {
		k := validators.NewKey([]byte(fmt.Sprintf("validator-%d", i)))
		ks = append(ks, k)
		pubs = append(pubs, k.Public())
	}
	return ks, pubs
}

func block(t *testing.T, timestamp int64, parents ...models.Hash) *models.Block {
	b, err := models.NewBlock(timestamp, parents, []models.SystemTx{&models.Payload{Data: []byte("x")}})
	require.NoError(t, err)
	return b
}

func TestKeyIsDeterministic(t *testing.T) {
	a := validators.NewKey([]byte("seed"))
	b := validators.NewKey([]byte("seed"))
	c := validators.NewKey([]byte("other"))
	assert.Equal(t, a.ID(), b.ID())
	assert.NotEqual(t, a.ID(), c.ID())
}

func TestRegistryRecoversSigner(t *testing.T) {
	ks, pubs := keys(3)
	registry, err := validators.NewRegistry(pubs)
	require.NoError(t, err)

	genesis := block(t, 0)
	signed := ks[1].Sign(block(t, 12, genesis.Hash()))

	id, ok := registry.Signer(signed)
	require.True(t, ok)
	assert.Equal(t, ks[1].ID(), id)

	// cached on the second lookup
	id, ok = registry.Signer(signed)
	require.True(t, ok)
	assert.Equal(t, ks[1].ID(), id)

	epoch, validator, ok := registry.Attribute(12, signed)
	require.True(t, ok)
	assert.Equal(t, 4, epoch)
	assert.Equal(t, ks[1].ID(), validator)

	_, _, ok = registry.Attribute(0, models.NewSignedBlock(genesis, nil))
	assert.False(t, ok, "genesis is never attributed")

	stranger := validators.NewKey([]byte("stranger")).Sign(block(t, 3, genesis.Hash()))
	_, ok = registry.Signer(stranger)
	assert.False(t, ok)

	unsigned := models.NewSignedBlock(block(t, 4, genesis.Hash()), []byte("short"))
	_, ok = registry.Signer(unsigned)
	assert.False(t, ok)
}

func TestRegistryRejectsEmptySet(t *testing.T) {
	_, err := validators.NewRegistry(nil)
	assert.ErrorIs(t, err, validators.ErrNoValidators)
}

func TestRotationAgreesAcrossInstances(t *testing.T) {
	_, pubs := keys(4)
	registry, err := validators.NewRegistry(pubs)
	require.NoError(t, err)
	genesis := block(t, 0).Hash()

	first, err := validators.NewRotation(registry, genesis)
	require.NoError(t, err)
	second, err := validators.NewRotation(registry, genesis)
	require.NoError(t, err)

	for n := 0; n < 20; n++ {
		assert.Equal(t, first.Leader(n), second.Leader(n), "timeslot %d", n)
	}
	assert.ElementsMatch(t, registry.IDs(), first.Order(2))
	assert.Equal(t, 5, first.Cached())
	assert.Equal(t, 5, second.Cached())

	third, err := validators.NewRotation(registry, genesis)
	require.NoError(t, err)
	assert.Equal(t, 0, third.Cached(), "caches are never shared")
}

func TestRotationVisitsEveryValidatorInAnEpoch(t *testing.T) {
	_, pubs := keys(3)
	registry, err := validators.NewRegistry(pubs)
	require.NoError(t, err)
	rotation, err := validators.NewRotation(registry, block(t, 0).Hash())
	require.NoError(t, err)

	seen := map[string]bool{}
	for n := 3; n < 6; n++ {
		seen[rotation.Leader(n)] = true
	}
	assert.Len(t, seen, 3)
}
