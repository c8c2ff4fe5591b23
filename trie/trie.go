// Package trie implements the Merkle Patricia Forestry's mutation
// algorithms (Insert, Delete, Get, ChildAt) and its paging layer
// (FetchChildren, Save, Load), expressed as transformations over the node
// model in package node.
package trie

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/semaphore"

	"github.com/SundaeSwap-finance/merkle-patricia-forestry/forestryerr"
	"github.com/SundaeSwap-finance/merkle-patricia-forestry/nibble"
	"github.com/SundaeSwap-finance/merkle-patricia-forestry/node"
	"github.com/SundaeSwap-finance/merkle-patricia-forestry/store"
)

// Trie is a handle onto a Merkle Patricia Forestry: an in-memory working
// set of nodes rooted at root, backed by a store.Store for paging. At
// most one mutation may be in flight per handle (spec section 5); a second one
// started before the first resolves is a fatal ErrConcurrentMutation.
type Trie struct {
	root  node.Ref
	store store.Store
	guard *semaphore.Weighted
}

// New returns a handle onto a new, empty trie backed by s.
func New(s store.Store) *Trie {
	return &Trie{root: node.EmptyRef, store: s, guard: semaphore.NewWeighted(1)}
}

// Load reads the root pointer from s and returns a handle onto the trie
// it names. The returned trie's root is a hash reference (or EmptyRef if
// no root pointer is stored); nothing else is fetched eagerly.
func Load(ctx context.Context, s store.Store) (*Trie, error) {
	data, ok, err := s.Get(ctx, store.RootKey)
	if err != nil {
		return nil, fmt.Errorf("%w: loading root pointer: %v", forestryerr.ErrStoreUnavailable, err)
	}
	if !ok {
		return New(s), nil
	}
	if len(data) != 32 {
		return nil, fmt.Errorf("%w: root pointer has %d bytes, want 32", forestryerr.ErrCorruptNode, len(data))
	}
	var root common.Hash
	copy(root[:], data)
	if root == node.EmptyHash {
		return New(s), nil
	}
	return &Trie{root: node.HashRef(node.KindEmpty, root, 0), store: s, guard: semaphore.NewWeighted(1)}, nil
}

// Hash returns the trie's current root hash; the all-zero hash for an
// empty trie.
func (t *Trie) Hash() common.Hash {
	return t.root.HashOf()
}

// acquireMutation enforces the single in-flight-mutation rule with a
// non-blocking acquire: a second mutation attempted while one is active
// fails fast instead of queuing, per spec section 5.
func (t *Trie) acquireMutation() error {
	if !t.guard.TryAcquire(1) {
		return forestryerr.ErrConcurrentMutation
	}
	return nil
}

func (t *Trie) releaseMutation() {
	t.guard.Release(1)
}

// materialize resolves ref to a loaded *node.Node, fetching and decoding
// it from the store if necessary, and verifying the decoded hash matches
// the reference (ErrCorruptNode otherwise). depth is the number of
// nibbles consumed from the root to reach ref's position, needed to
// recompute a leaf's Suffix (not itself part of the persisted encoding).
func (t *Trie) materialize(ctx context.Context, ref node.Ref, depth int) (*node.Node, error) {
	if ref.IsEmpty() {
		return nil, nil
	}
	if ref.Loaded() {
		return ref.Node, nil
	}
	blob, ok, err := t.store.Get(ctx, ref.Hash)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching node %s: %v", forestryerr.ErrStoreUnavailable, ref.Hash, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: node %s referenced but absent from store", forestryerr.ErrCorruptNode, ref.Hash)
	}
	n, err := node.Decode(blob)
	if err != nil {
		return nil, err
	}
	if n.Kind == node.KindLeaf {
		path := nibble.KeyPath(n.Key)
		if depth > len(path) {
			return nil, fmt.Errorf("%w: leaf depth %d exceeds path length", forestryerr.ErrInvariantViolation, depth)
		}
		n.Suffix = path[depth:]
	}
	if got := n.Hash(); got != ref.Hash {
		return nil, fmt.Errorf("%w: node stored under %s decodes to hash %s", forestryerr.ErrCorruptNode, ref.Hash, got)
	}
	return n, nil
}

// Get looks up key and returns its value, or ok=false if absent. It is a
// paging read: any hash-referenced node on the path is materialized from
// the store.
func (t *Trie) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	path := nibble.KeyPath(key)
	return t.get(ctx, t.root, path, 0, key)
}

func (t *Trie) get(ctx context.Context, ref node.Ref, path nibble.Nibbles, depth int, key []byte) ([]byte, bool, error) {
	if ref.IsEmpty() {
		return nil, false, nil
	}
	n, err := t.materialize(ctx, ref, depth)
	if err != nil {
		return nil, false, err
	}
	switch n.Kind {
	case node.KindLeaf:
		if bytes.Equal(n.Key, key) {
			return n.Value, true, nil
		}
		return nil, false, nil
	case node.KindBranch:
		remaining := path[depth:]
		q := nibble.CommonPrefixLen(n.Prefix, remaining)
		if q != len(n.Prefix) || q == len(remaining) {
			return nil, false, nil
		}
		selector := remaining[q]
		return t.get(ctx, n.Children[selector], path, depth+q+1, key)
	default:
		return nil, false, fmt.Errorf("%w: unexpected node kind %d", forestryerr.ErrInvariantViolation, n.Kind)
	}
}

// ChildAt follows pathPrefix nibble-by-nibble from the root, respecting
// branch prefixes, and returns the node found there (materializing
// references along the way), or nil if the prefix runs past a leaf or
// into an Empty slot.
func (t *Trie) ChildAt(ctx context.Context, pathPrefix nibble.Nibbles) (*node.Node, error) {
	return t.childAt(ctx, t.root, pathPrefix, 0)
}

func (t *Trie) childAt(ctx context.Context, ref node.Ref, pathPrefix nibble.Nibbles, depth int) (*node.Node, error) {
	if ref.IsEmpty() {
		return nil, nil
	}
	n, err := t.materialize(ctx, ref, depth)
	if err != nil {
		return nil, err
	}
	if depth >= len(pathPrefix) {
		return n, nil
	}
	if n.Kind != node.KindBranch {
		return nil, nil
	}
	remaining := pathPrefix[depth:]
	q := nibble.CommonPrefixLen(n.Prefix, remaining)
	if q != len(n.Prefix) || q == len(remaining) {
		if q == len(remaining) && q == len(n.Prefix) {
			return n, nil
		}
		return nil, nil
	}
	selector := remaining[q]
	return t.childAt(ctx, n.Children[selector], pathPrefix, depth+q+1)
}

// Insert adds key/value to the trie, or replaces key's value if already
// present. It returns ErrConcurrentMutation if another mutation is
// already in flight on this handle.
func (t *Trie) Insert(ctx context.Context, key, value []byte) error {
	if err := t.acquireMutation(); err != nil {
		return err
	}
	defer t.releaseMutation()

	path := nibble.KeyPath(key)
	newRoot, err := t.insert(ctx, t.root, path, 0, key, value)
	if err != nil {
		return err
	}
	t.root = newRoot
	return nil
}

func (t *Trie) insert(ctx context.Context, ref node.Ref, path nibble.Nibbles, depth int, key, value []byte) (node.Ref, error) {
	remaining := path[depth:]

	if ref.IsEmpty() {
		return node.InlineRef(node.NewLeaf(key, value, remaining)), nil
	}

	n, err := t.materialize(ctx, ref, depth)
	if err != nil {
		return node.Ref{}, err
	}

	switch n.Kind {
	case node.KindLeaf:
		if bytes.Equal(n.Key, key) {
			return node.InlineRef(node.NewLeaf(key, value, n.Suffix)), nil
		}
		p := nibble.CommonPrefixLen(n.Suffix, remaining)
		if p == len(n.Suffix) && p == len(remaining) {
			return node.Ref{}, fmt.Errorf("%w: keys %x and %x share a 64-nibble path", forestryerr.ErrInvariantViolation, n.Key, key)
		}
		branchPrefix := n.Suffix[:p]
		existingNibble, newNibble := n.Suffix[p], remaining[p]
		var children [16]node.Ref
		children[existingNibble] = node.InlineRef(node.NewLeaf(n.Key, n.Value, n.Suffix[p+1:]))
		children[newNibble] = node.InlineRef(node.NewLeaf(key, value, remaining[p+1:]))
		return node.InlineRef(node.NewBranch(branchPrefix, children)), nil

	case node.KindBranch:
		q := nibble.CommonPrefixLen(n.Prefix, remaining)
		if q == len(n.Prefix) {
			if q == len(remaining) {
				return node.Ref{}, fmt.Errorf("%w: path exhausted inside a branch", forestryerr.ErrInvariantViolation)
			}
			selector := remaining[q]
			newChild, err := t.insert(ctx, n.Children[selector], path, depth+q+1, key, value)
			if err != nil {
				return node.Ref{}, err
			}
			newChildren := n.Children
			newChildren[selector] = newChild
			return node.InlineRef(node.NewBranch(n.Prefix, newChildren)), nil
		}

		// The incoming key diverges inside the branch's prefix: split.
		newParentPrefix := n.Prefix[:q]
		demotedPrefix := n.Prefix[q+1:]
		demoted := node.NewBranch(demotedPrefix, n.Children)
		newLeaf := node.NewLeaf(key, value, remaining[q+1:])

		var children [16]node.Ref
		children[n.Prefix[q]] = node.InlineRef(demoted)
		children[remaining[q]] = node.InlineRef(newLeaf)
		return node.InlineRef(node.NewBranch(newParentPrefix, children)), nil

	default:
		return node.Ref{}, fmt.Errorf("%w: unexpected node kind %d", forestryerr.ErrInvariantViolation, n.Kind)
	}
}

// Delete removes key from the trie. Deleting a key that is not present is
// a no-op: the trie is returned unchanged, not an error.
func (t *Trie) Delete(ctx context.Context, key []byte) error {
	if err := t.acquireMutation(); err != nil {
		return err
	}
	defer t.releaseMutation()

	path := nibble.KeyPath(key)
	newRoot, found, err := t.delete(ctx, t.root, path, 0, key)
	if err != nil {
		return err
	}
	if found {
		t.root = newRoot
	}
	return nil
}

func (t *Trie) delete(ctx context.Context, ref node.Ref, path nibble.Nibbles, depth int, key []byte) (node.Ref, bool, error) {
	if ref.IsEmpty() {
		return ref, false, nil
	}
	remaining := path[depth:]

	n, err := t.materialize(ctx, ref, depth)
	if err != nil {
		return node.Ref{}, false, err
	}

	switch n.Kind {
	case node.KindLeaf:
		if !bytes.Equal(n.Key, key) {
			return ref, false, nil
		}
		return node.EmptyRef, true, nil

	case node.KindBranch:
		q := nibble.CommonPrefixLen(n.Prefix, remaining)
		if q != len(n.Prefix) || q == len(remaining) {
			return ref, false, nil
		}
		selector := remaining[q]
		newChild, found, err := t.delete(ctx, n.Children[selector], path, depth+q+1, key)
		if err != nil {
			return node.Ref{}, false, err
		}
		if !found {
			return ref, false, nil
		}

		newChildren := n.Children
		newChildren[selector] = newChild

		nonEmpty, soleIdx := 0, -1
		for i, c := range newChildren {
			if !c.IsEmpty() {
				nonEmpty++
				soleIdx = i
			}
		}

		switch {
		case nonEmpty >= 2:
			return node.InlineRef(node.NewBranch(n.Prefix, newChildren)), true, nil

		case nonEmpty == 1:
			collapsed, err := t.collapse(ctx, n.Prefix, byte(soleIdx), newChildren[soleIdx], depth+len(n.Prefix)+1)
			if err != nil {
				return node.Ref{}, false, err
			}
			return collapsed, true, nil

		default:
			// Only reachable when n was the root of a two-item trie and
			// the sibling was also just removed; guarded per spec section 4.4.
			return node.EmptyRef, true, nil
		}

	default:
		return node.Ref{}, false, fmt.Errorf("%w: unexpected node kind %d", forestryerr.ErrInvariantViolation, n.Kind)
	}
}

// collapse merges a branch that has been reduced to a single child: the
// child's prefix/suffix is extended on the front with parentPrefix ‖
// selector ‖ (nothing else, the child keeps its own remaining shape).
func (t *Trie) collapse(ctx context.Context, parentPrefix nibble.Nibbles, selector byte, child node.Ref, childDepth int) (node.Ref, error) {
	n, err := t.materialize(ctx, child, childDepth)
	if err != nil {
		return node.Ref{}, err
	}
	prepend := make(nibble.Nibbles, 0, len(parentPrefix)+1)
	prepend = append(prepend, parentPrefix...)
	prepend = append(prepend, selector)

	switch n.Kind {
	case node.KindLeaf:
		newSuffix := append(append(nibble.Nibbles(nil), prepend...), n.Suffix...)
		return node.InlineRef(node.NewLeaf(n.Key, n.Value, newSuffix)), nil
	case node.KindBranch:
		newPrefix := append(append(nibble.Nibbles(nil), prepend...), n.Prefix...)
		return node.InlineRef(node.NewBranch(newPrefix, n.Children)), nil
	default:
		return node.Ref{}, fmt.Errorf("%w: unexpected node kind %d during collapse", forestryerr.ErrInvariantViolation, n.Kind)
	}
}

// FetchChildren materializes every hash reference within depth levels of
// the root by calling the store. depth=0 is a no-op.
func (t *Trie) FetchChildren(ctx context.Context, depth int) error {
	newRoot, err := t.fetchChildren(ctx, t.root, 0, depth)
	if err != nil {
		return err
	}
	t.root = newRoot
	return nil
}

func (t *Trie) fetchChildren(ctx context.Context, ref node.Ref, pathDepth, remaining int) (node.Ref, error) {
	if ref.IsEmpty() || remaining <= 0 {
		return ref, nil
	}
	n, err := t.materialize(ctx, ref, pathDepth)
	if err != nil {
		return node.Ref{}, err
	}
	if n.Kind != node.KindBranch {
		return node.InlineRef(n), nil
	}
	newChildren := n.Children
	childDepth := pathDepth + len(n.Prefix) + 1
	for i, c := range newChildren {
		if c.IsEmpty() {
			continue
		}
		loaded, err := t.fetchChildren(ctx, c, childDepth, remaining-1)
		if err != nil {
			return node.Ref{}, err
		}
		newChildren[i] = loaded
	}
	return node.InlineRef(node.NewBranch(n.Prefix, newChildren)), nil
}

// Save performs a post-order traversal: every loaded child whose hash is
// not yet present in the store is written, then replaced in its parent
// with a hash reference. The root is written last under the reserved
// root-pointer key. Save is idempotent: a second call with no
// intervening mutation writes nothing new.
func (t *Trie) Save(ctx context.Context) error {
	if err := t.acquireMutation(); err != nil {
		return err
	}
	defer t.releaseMutation()

	newRoot, err := t.save(ctx, t.root)
	if err != nil {
		return err
	}
	t.root = newRoot

	rootHash := t.root.HashOf()
	if err := t.store.Put(ctx, store.RootKey, rootHash.Bytes()); err != nil {
		return fmt.Errorf("%w: writing root pointer: %v", forestryerr.ErrStoreUnavailable, err)
	}
	return nil
}

func (t *Trie) save(ctx context.Context, ref node.Ref) (node.Ref, error) {
	if ref.IsEmpty() || !ref.Loaded() {
		return ref, nil
	}
	n := ref.Node

	if n.Kind == node.KindBranch {
		newChildren := n.Children
		for i, c := range newChildren {
			saved, err := t.save(ctx, c)
			if err != nil {
				return node.Ref{}, err
			}
			newChildren[i] = saved
		}
		n = node.NewBranch(n.Prefix, newChildren)
	}

	hash := n.Hash()
	exists, err := t.store.Exists(ctx, hash)
	if err != nil {
		return node.Ref{}, fmt.Errorf("%w: %v", forestryerr.ErrStoreUnavailable, err)
	}
	if !exists {
		blob, err := node.Encode(n)
		if err != nil {
			return node.Ref{}, err
		}
		if err := t.store.Put(ctx, hash, blob); err != nil {
			return node.Ref{}, fmt.Errorf("%w: writing node %s: %v", forestryerr.ErrStoreUnavailable, hash, err)
		}
		log.Debug("forestry: persisted node", "hash", hash, "kind", n.Kind)
	}
	return node.HashRef(n.Kind, hash, n.Size()), nil
}

