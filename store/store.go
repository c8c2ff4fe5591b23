// Package store defines the backing key/value interface the trie engine
// pages nodes through, modeled on go-ethereum's ethdb.KeyValueStore
// narrowed to content-addressed (hash-keyed) blobs.
package store

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// RootKey is the reserved storage key holding the current root hash. It
// must never be used as a node hash key; no check is made for a node
// hash equal to it.
var RootKey = common.HexToHash("0x5f5f726f6f745f5f") // "__root__" padded, never a real blake2b digest in practice

// Op is a single operation within a Batch: Put when Value is non-nil,
// Delete when it is nil.
type Op struct {
	Key   common.Hash
	Value []byte // nil means delete
}

// Store is the backing key/value contract the trie and its paging layer
// depend on. Every method is a suspension point in the spec's
// asynchronous model; Go expresses that as a blocking call that accepts a
// context for cancellation rather than true async/await.
type Store interface {
	// Get returns the blob stored under hash, or ok=false if absent.
	Get(ctx context.Context, hash common.Hash) (data []byte, ok bool, err error)

	// Put stores data under hash. Put is idempotent: storing the same
	// hash twice with the same bytes is a no-op from the caller's view.
	Put(ctx context.Context, hash common.Hash, data []byte) error

	// Delete removes hash from the store. Deleting an absent key is not
	// an error.
	Delete(ctx context.Context, hash common.Hash) error

	// Exists reports whether hash is present without fetching its value.
	Exists(ctx context.Context, hash common.Hash) (bool, error)

	// Batch applies ops as a single atomic group.
	Batch(ctx context.Context, ops []Op) error
}
