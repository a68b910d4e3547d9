package dag

import "github.com/pkg/errors"

// Admission errors. They indicate a faulty block producer: a correct producer only builds on blocks
// it has already admitted.
var (
	ErrDuplicateHash   = errors.New("block hash already admitted")
	ErrDanglingParent  = errors.New("parent block is unknown")
	ErrInvalidGenesis  = errors.New("invalid genesis block")
	ErrInvalidTimeslot = errors.New("block timeslot does not follow its parents")
)

// Lookup errors. Callers are expected to query only hashes obtained from the same DAG.
var (
	ErrNotFound         = errors.New("block not found in dag")
	ErrNoCommonAncestor = errors.New("branches have no common ancestor")
)
