// Package node implements the three node shapes of a Merkle Patricia
// Forestry trie (Empty, Leaf, Branch), their hashing scheme, and their
// canonical on-disk encoding. It owns the shape invariants: a branch never
// has fewer than two non-empty children, and every hash is a pure
// function of subtree content.
package node

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"

	"github.com/SundaeSwap-finance/merkle-patricia-forestry/forestryerr"
	"github.com/SundaeSwap-finance/merkle-patricia-forestry/nibble"
)

// EmptyHash is the sentinel root hash of an empty (sub-)trie: 32 zero
// bytes. It is never produced by the hash oracle itself.
var EmptyHash = common.Hash{}

// Kind discriminates the three node shapes.
type Kind uint8

const (
	KindEmpty Kind = iota
	KindLeaf
	KindBranch
)

// Ref is a child slot: Empty, a fully materialized Node, or a hash
// reference awaiting materialization from the store. Node is set when the
// child is loaded (see Loaded); otherwise Hash identifies it. A reference
// decoded from the store carries KindEmpty until it is materialized, so
// emptiness is judged by Node and Hash, not by Kind.
type Ref struct {
	Kind Kind
	Node *Node // set iff Kind != KindEmpty and the child is loaded
	Hash common.Hash
	Size uint64 // item count below; display-only, may be stale (see DESIGN.md)
}

// EmptyRef is the zero-value Empty child slot.
var EmptyRef = Ref{Kind: KindEmpty, Hash: EmptyHash}

// IsEmpty reports whether the slot is the Empty shape: no loaded node and
// the all-zero hash.
func (r Ref) IsEmpty() bool { return r.Node == nil && r.Hash == EmptyHash }

// Loaded reports whether the slot holds a materialized Node in memory.
func (r Ref) Loaded() bool { return r.Node != nil }

// HashOf returns the slot's hash without requiring materialization.
func (r Ref) HashOf() common.Hash {
	if r.Loaded() {
		return r.Node.Hash()
	}
	return r.Hash
}

// InlineRef wraps a materialized node as a loaded child slot.
func InlineRef(n *Node) Ref {
	if n == nil {
		return EmptyRef
	}
	return Ref{Kind: n.Kind, Node: n, Hash: n.Hash(), Size: n.Size()}
}

// HashRef builds an unmaterialized child slot pointing at a stored node.
func HashRef(kind Kind, hash common.Hash, size uint64) Ref {
	return Ref{Kind: kind, Hash: hash, Size: size}
}

// Node is one of Empty, Leaf, or Branch. The zero Node is never used
// directly: Empty sub-tries are represented as EmptyRef child slots or a
// nil *Node at the trie root, never as a *Node with KindEmpty.
type Node struct {
	Kind Kind

	// Leaf fields.
	Key    []byte // the original key, byte-for-byte
	Value  []byte
	Suffix nibble.Nibbles // remaining path nibbles below the parent branch

	// Branch fields.
	Prefix   nibble.Nibbles // 0..62 nibbles shared by every descendant
	Children [16]Ref

	hash    common.Hash
	hashSet bool
}

// NewLeaf builds a leaf node for key/value with the given suffix (the
// portion of H(key) below the parent branch).
func NewLeaf(key, value []byte, suffix nibble.Nibbles) *Node {
	return &Node{Kind: KindLeaf, Key: key, Value: value, Suffix: append(nibble.Nibbles(nil), suffix...)}
}

// NewBranch builds a branch node with the given prefix and children. It
// does not itself enforce invariant I1 (>=2 non-empty children): callers
// in package trie are responsible for never constructing a degenerate
// branch, and for collapsing one should it arise from a delete.
func NewBranch(prefix nibble.Nibbles, children [16]Ref) *Node {
	return &Node{Kind: KindBranch, Prefix: append(nibble.Nibbles(nil), prefix...), Children: children}
}

// NonEmptyChildren counts the branch's non-Empty slots. Panics if called
// on a non-branch.
func (n *Node) NonEmptyChildren() int {
	n.mustBeBranch()
	count := 0
	for _, c := range n.Children {
		if !c.IsEmpty() {
			count++
		}
	}
	return count
}

// SoleChild returns the single non-Empty slot's nibble index and ref,
// assuming exactly one exists. Panics if called on a non-branch or if the
// count isn't exactly one; callers must check NonEmptyChildren first.
func (n *Node) SoleChild() (int, Ref) {
	n.mustBeBranch()
	idx, found, count := -1, Ref{}, 0
	for i, c := range n.Children {
		if !c.IsEmpty() {
			idx, found = i, c
			count++
		}
	}
	if count != 1 {
		panic(fmt.Sprintf("node: SoleChild called with %d non-empty children", count))
	}
	return idx, found
}

func (n *Node) mustBeBranch() {
	if n.Kind != KindBranch {
		panic("node: operation requires a branch node")
	}
}

// Size returns the number of leaves in the subtree rooted at n. For a
// loaded branch it sums its children; for a leaf it is 1.
func (n *Node) Size() uint64 {
	if n == nil {
		return 0
	}
	switch n.Kind {
	case KindLeaf:
		return 1
	case KindBranch:
		var total uint64
		for _, c := range n.Children {
			if c.IsEmpty() {
				continue
			}
			if c.Loaded() {
				total += c.Node.Size()
			} else {
				total += c.Size
			}
		}
		return total
	default:
		return 0
	}
}

// InvalidateHash clears the memoized hash after a mutation; the next Hash
// call recomputes it.
func (n *Node) InvalidateHash() {
	n.hashSet = false
}

// Hash returns the node's hash per the scheme below, memoizing it. Hash is
// a pure function of subtree content (invariant I5): recomputation after
// InvalidateHash always yields the same value for the same content.
//
//   - Leaf:   H(H(key) ‖ H(value))
//   - Branch: H(packedPrefix ‖ merkleOf16(childHashes))
func (n *Node) Hash() common.Hash {
	if n == nil {
		return EmptyHash
	}
	if n.hashSet {
		return n.hash
	}
	switch n.Kind {
	case KindLeaf:
		path := nibble.Sum(n.Key)
		valueHash := nibble.Sum(n.Value)
		n.hash = nibble.Sum(append(append([]byte(nil), path.Bytes()...), valueHash.Bytes()...))
	case KindBranch:
		var childHashes [16]common.Hash
		for i, c := range n.Children {
			childHashes[i] = c.HashOf()
		}
		root := MerkleRootOf16(childHashes)
		count, packed := nibble.PackPrefix(n.Prefix)
		buf := make([]byte, 0, 1+len(packed)+32)
		buf = append(buf, count)
		buf = append(buf, packed...)
		buf = append(buf, root.Bytes()...)
		n.hash = nibble.Sum(buf)
	default:
		n.hash = EmptyHash
	}
	n.hashSet = true
	return n.hash
}

// LeafHash computes a leaf hash directly from a key and value, without
// constructing a Node. The proof engine uses this to build the inclusion
// target hash.
func LeafHash(key, value []byte) common.Hash {
	path := nibble.Sum(key)
	valueHash := nibble.Sum(value)
	return nibble.Sum(append(append([]byte(nil), path.Bytes()...), valueHash.Bytes()...))
}

// BranchHashFromChildRoot recomputes a branch's hash given its prefix and
// the already-combined Merkle-of-16 root of its children. The proof
// engine's verifier uses this to walk steps bottom-up without ever
// materializing sibling subtrees.
func BranchHashFromChildRoot(prefix nibble.Nibbles, childrenRoot common.Hash) common.Hash {
	count, packed := nibble.PackPrefix(prefix)
	buf := make([]byte, 0, 1+len(packed)+32)
	buf = append(buf, count)
	buf = append(buf, packed...)
	buf = append(buf, childrenRoot.Bytes()...)
	return nibble.Sum(buf)
}

// MerkleRootOf16 reduces 16 slot hashes to one root via a fixed 4-level
// binary Merkle tree, combining sibling pairs with H(a ‖ b). This is the
// "sparse Merkle-of-16" that makes a single-nibble proof step cost only 4
// neighbor hashes (128 bytes) instead of 15 full siblings.
func MerkleRootOf16(leaves [16]common.Hash) common.Hash {
	level := leaves[:]
	for len(level) > 1 {
		next := make([]common.Hash, len(level)/2)
		for i := range next {
			next[i] = combine(level[2*i], level[2*i+1])
		}
		level = next
	}
	return level[0]
}

func combine(a, b common.Hash) common.Hash {
	buf := make([]byte, 0, 64)
	buf = append(buf, a.Bytes()...)
	buf = append(buf, b.Bytes()...)
	return nibble.Sum(buf)
}

// CombinePair is the pairwise combinator H(a ‖ b) used throughout the
// Merkle-of-16 reduction. Exported for the proof engine, which rebuilds
// partial Merkle-of-16 trees from a handful of neighbor hashes.
func CombinePair(a, b common.Hash) common.Hash {
	return combine(a, b)
}

// ChildrenRoot returns the Merkle-of-16 root over a branch's own children,
// without folding in the branch's prefix. The proof engine's Fork step
// records exactly this value for a demoted branch, since a demoted
// branch's children are untouched by the demotion (only its prefix
// shrinks).
func (n *Node) ChildrenRoot() common.Hash {
	n.mustBeBranch()
	var hashes [16]common.Hash
	for i, c := range n.Children {
		hashes[i] = c.HashOf()
	}
	return MerkleRootOf16(hashes)
}

// AuditPathOf16 returns the 4 sibling hashes (one per level) needed to
// reconstruct MerkleRootOf16(leaves) given only leaves[index], for index
// in [0,15]. This is the proof engine's "neighbors" for a Branch step.
func AuditPathOf16(leaves [16]common.Hash, index int) [4]common.Hash {
	var path [4]common.Hash
	level := leaves[:]
	idx := index
	for l := 0; l < 4; l++ {
		path[l] = level[idx^1]
		next := make([]common.Hash, len(level)/2)
		for i := range next {
			next[i] = combine(level[2*i], level[2*i+1])
		}
		level = next
		idx /= 2
	}
	return path
}

// RootFromAuditPath16 rebuilds a Merkle-of-16 root given the hash at
// index and its 4-level audit path, the inverse of AuditPathOf16.
func RootFromAuditPath16(leaf common.Hash, index int, path [4]common.Hash) common.Hash {
	h := leaf
	idx := index
	for l := 0; l < 4; l++ {
		if idx%2 == 0 {
			h = combine(h, path[l])
		} else {
			h = combine(path[l], h)
		}
		idx /= 2
	}
	return h
}

// LeafHashFromPathAndValueHash computes a leaf's hash directly from its
// already-hashed path and value, without the original key or value bytes
// in hand. The proof engine's Leaf step carries exactly these two fields
// for a neighbor leaf.
func LeafHashFromPathAndValueHash(path, valueHash common.Hash) common.Hash {
	return nibble.Sum(append(append([]byte(nil), path.Bytes()...), valueHash.Bytes()...))
}

// --- canonical persisted encoding ---

const (
	tagLeaf   byte = 0x00
	tagBranch byte = 0x01
)

// Encode serializes a non-Empty node to its canonical byte form. Encoding
// is deterministic: the same node always produces the same bytes.
func Encode(n *Node) ([]byte, error) {
	if n == nil {
		return nil, fmt.Errorf("node: cannot encode an empty node")
	}
	var buf bytes.Buffer
	switch n.Kind {
	case KindLeaf:
		buf.WriteByte(tagLeaf)
		writeVarintBytes(&buf, n.Key)
		writeVarintBytes(&buf, n.Value)
	case KindBranch:
		buf.WriteByte(tagBranch)
		count, packed := nibble.PackPrefix(n.Prefix)
		buf.WriteByte(count)
		buf.Write(packed)

		var bitmap uint16
		var hashes [][]byte
		for i, c := range n.Children {
			if c.IsEmpty() {
				continue
			}
			bitmap |= 1 << uint(i)
			h := c.HashOf()
			hashes = append(hashes, h.Bytes())
		}
		var bitmapBytes [2]byte
		binary.LittleEndian.PutUint16(bitmapBytes[:], bitmap)
		buf.Write(bitmapBytes[:])
		for _, h := range hashes {
			buf.Write(h)
		}
	default:
		return nil, fmt.Errorf("node: cannot encode node of kind %d", n.Kind)
	}
	return buf.Bytes(), nil
}

func writeVarintBytes(buf *bytes.Buffer, data []byte) {
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(data)))
	buf.Write(lenBuf[:n])
	buf.Write(data)
}

// Decode parses a canonical byte form back into a Node whose Children (for
// a branch) are hash references, not materialized. The caller is
// responsible for materializing them via the store as needed.
func Decode(data []byte) (*Node, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty node encoding", forestryerr.ErrCorruptNode)
	}
	r := bytes.NewReader(data)
	tag, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", forestryerr.ErrCorruptNode, err)
	}
	switch tag {
	case tagLeaf:
		key, err := readVarintBytes(r)
		if err != nil {
			return nil, fmt.Errorf("%w: leaf key: %v", forestryerr.ErrCorruptNode, err)
		}
		value, err := readVarintBytes(r)
		if err != nil {
			return nil, fmt.Errorf("%w: leaf value: %v", forestryerr.ErrCorruptNode, err)
		}
		if r.Len() != 0 {
			return nil, fmt.Errorf("%w: trailing bytes after leaf", forestryerr.ErrCorruptNode)
		}
		path := nibble.KeyPath(key)
		return &Node{Kind: KindLeaf, Key: key, Value: value, Suffix: path}, nil

	case tagBranch:
		count, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("%w: branch prefix count: %v", forestryerr.ErrCorruptNode, err)
		}
		packed := make([]byte, (int(count)+1)/2)
		if _, err := io.ReadFull(r, packed); err != nil {
			return nil, fmt.Errorf("%w: branch packed prefix: %v", forestryerr.ErrCorruptNode, err)
		}
		prefix, err := nibble.UnpackPrefix(count, packed)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", forestryerr.ErrCorruptNode, err)
		}
		var bitmapBytes [2]byte
		if _, err := io.ReadFull(r, bitmapBytes[:]); err != nil {
			return nil, fmt.Errorf("%w: branch bitmap: %v", forestryerr.ErrCorruptNode, err)
		}
		bitmap := binary.LittleEndian.Uint16(bitmapBytes[:])

		n := &Node{Kind: KindBranch, Prefix: prefix}
		for i := 0; i < 16; i++ {
			if bitmap&(1<<uint(i)) == 0 {
				n.Children[i] = EmptyRef
				continue
			}
			var h common.Hash
			if _, err := io.ReadFull(r, h[:]); err != nil {
				return nil, fmt.Errorf("%w: branch child %d hash: %v", forestryerr.ErrCorruptNode, i, err)
			}
			n.Children[i] = HashRef(KindEmpty, h, 0) // kind resolved on materialization
		}
		if r.Len() != 0 {
			return nil, fmt.Errorf("%w: trailing bytes after branch", forestryerr.ErrCorruptNode)
		}
		return n, nil

	default:
		return nil, fmt.Errorf("%w: unknown node tag 0x%02x", forestryerr.ErrCorruptNode, tag)
	}
}

func readVarintBytes(r *bytes.Reader) ([]byte, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
	}
	return buf, nil
}
