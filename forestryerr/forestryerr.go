// Package forestryerr defines the error sentinels shared by the trie,
// proof, and store packages.
package forestryerr

import "errors"

var (
	// ErrStoreUnavailable means the backing store failed an operation.
	// Trie state is consistent if no mutation step had committed
	// in-memory yet; undefined otherwise, so the caller should reload.
	ErrStoreUnavailable = errors.New("forestry: store unavailable")

	// ErrConcurrentMutation means a second mutation was started on a
	// handle while one was already in flight. Fatal for the handle.
	ErrConcurrentMutation = errors.New("forestry: concurrent mutation on trie handle")

	// ErrCorruptNode means a fetched blob failed to decode, or its
	// decoded hash did not match the key it was stored under.
	ErrCorruptNode = errors.New("forestry: corrupt node")

	// ErrInvariantViolation means a branch with fewer than two children
	// was observed, or two distinct keys hashed to the same path.
	ErrInvariantViolation = errors.New("forestry: invariant violation")

	// ErrProofMalformed means a proof step list has the wrong shape
	// (empty when it shouldn't be, wrong neighbor lengths, etc).
	// Verify never returns this: it returns a non-matching hash instead.
	// It is exposed for callers that want to reject malformed proofs
	// before attempting verification.
	ErrProofMalformed = errors.New("forestry: malformed proof")

	// ErrKeyNotFound names a missing key. No store or trie operation in
	// this module returns it: store lookups and Get report a missing key
	// with ok=false instead.
	ErrKeyNotFound = errors.New("forestry: key not found")
)
