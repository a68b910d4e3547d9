package models

import (
	"bytes"
	"encoding/hex"
	"sort"

	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

// HashSize is the size of a block or transaction digest.
const HashSize = blake2b.Size256

// Hash identifies a block or a system transaction by the blake2b-256 digest of its packed form.
type Hash [HashSize]byte

// ZeroHash is the hash value with every byte set to zero.
var ZeroHash Hash

// HashBytes returns the digest of data.
func HashBytes(data []byte) Hash {
	return blake2b.Sum256(data)
}

// HashFromString parses a hex encoded hash.
func HashFromString(s string) (Hash, error) {
	var h Hash
	raw, err := hex.DecodeString(s)
	if err != nil {
		return h, errors.Wrapf(err, "decoding hash %q", s)
	}
	if len(raw) != HashSize {
		return h, errors.Errorf("hash %q has %d bytes, want %d", s, len(raw), HashSize)
	}
	copy(h[:], raw)
	return h, nil
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Short returns the first eight hex characters, for log lines.
func (h Hash) Short() string {
	return h.String()[:8]
}

func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// Less orders hashes by their bytes.
func (h Hash) Less(other Hash) bool {
	return bytes.Compare(h[:], other[:]) < 0
}

// MarshalText encodes the hash as hex so it reads well in JSON.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := HashFromString(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// SortHashes sorts hashes in place by their bytes.
func SortHashes(hashes []Hash) {
	sort.Slice(hashes, func(i, j int) bool { return hashes[i].Less(hashes[j]) })
}

// HashStrings renders hashes as hex strings.
func HashStrings(hashes []Hash) []string {
	out := make([]string, len(hashes))
	for i, h := range hashes {
		out[i] = h.String()
	}
	return out
}
