// Package forestry is the top-level convenience wrapper over trie.Trie,
// bundling a trie handle together with its store and offering the
// spec's "forest" operations (New, Load, Get, Insert, Delete, Prove,
// Save) behind a single type, the way mpt.New does for the underlying
// Merkle Patricia Trie this package generalizes.
package forestry

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/SundaeSwap-finance/merkle-patricia-forestry/proof"
	"github.com/SundaeSwap-finance/merkle-patricia-forestry/store"
	"github.com/SundaeSwap-finance/merkle-patricia-forestry/trie"
)

// Trie is a Merkle Patricia Forestry handle: an authenticated key/value
// store over a radix-16 Patricia trie, paged against a store.Store.
type Trie struct {
	t *trie.Trie
}

// New returns a handle onto a new, empty forest backed by s.
func New(s store.Store) *Trie {
	return &Trie{t: trie.New(s)}
}

// Load reads the persisted root from s and returns a handle onto the
// forest it names, or a new empty forest if s has no root pointer yet.
func Load(ctx context.Context, s store.Store) (*Trie, error) {
	t, err := trie.Load(ctx, s)
	if err != nil {
		return nil, err
	}
	return &Trie{t: t}, nil
}

// Root returns the forest's current root hash.
func (f *Trie) Root() common.Hash {
	return f.t.Hash()
}

// Get looks up key, returning ok=false if absent.
func (f *Trie) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	return f.t.Get(ctx, key)
}

// Insert adds or replaces key/value.
func (f *Trie) Insert(ctx context.Context, key, value []byte) error {
	return f.t.Insert(ctx, key, value)
}

// Delete removes key, a no-op if it is absent.
func (f *Trie) Delete(ctx context.Context, key []byte) error {
	return f.t.Delete(ctx, key)
}

// FetchChildren materializes every hash reference within depth levels of
// the root, readying the forest for a Save that writes every touched
// node in one pass.
func (f *Trie) FetchChildren(ctx context.Context, depth int) error {
	return f.t.FetchChildren(ctx, depth)
}

// Save persists every in-memory node not already in the store and
// updates the root pointer. Idempotent.
func (f *Trie) Save(ctx context.Context) error {
	return f.t.Save(ctx)
}

// Prove builds a proof of key's inclusion or absence in the forest.
func (f *Trie) Prove(ctx context.Context, key []byte) (proof.Proof, error) {
	return proof.Prove(ctx, f.t, key)
}
