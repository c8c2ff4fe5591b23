// Package proof implements the Merkle Patricia Forestry's proof engine:
// walking the same path as trie.Get but recording, at each branch, the
// Merkle neighbors needed to reconstruct that branch's root from a single
// child; serializing/parsing the resulting proof; and verifying it in
// both inclusion and exclusion modes.
//
// A single proof simultaneously witnesses inclusion of (key, value) at
// one root and exclusion of key at a second root differing by exactly
// that one key: Verify(key, value, true) and Verify(key, value, false)
// reconstruct the two respective roots from the same step list.
package proof

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/SundaeSwap-finance/merkle-patricia-forestry/forestryerr"
	"github.com/SundaeSwap-finance/merkle-patricia-forestry/nibble"
	"github.com/SundaeSwap-finance/merkle-patricia-forestry/node"
)

// StepKind discriminates the three proof step shapes.
type StepKind uint8

const (
	StepBranch StepKind = iota
	StepFork
	StepLeaf
)

// Step is one level of the root-to-target walk. Skip is the number of
// prefix nibbles consumed at this level before the nibble that actually
// selects or diverges; it is never stored explicitly alongside the
// selecting nibble itself, because the verifier already knows the key
// being proven and can derive it from the key's own path.
type Step struct {
	Kind StepKind
	Skip int

	// StepBranch: the 4-level Merkle-of-16 audit path from the child on
	// the proven path up to this branch's children root. Exactly 128
	// bytes (4 neighbor hashes).
	Neighbors [4]common.Hash

	// StepFork: the single extant subtree diverging inside this branch's
	// prefix — the nibble it would occupy after a hypothetical split, its
	// remaining prefix after that split, and its own children's root.
	ForkNibble byte
	ForkPrefix nibble.Nibbles
	ForkRoot   common.Hash

	// StepLeaf: the neighbor leaf found where the queried key's leaf
	// would have been, identified by its full path and its value's hash
	// (not the raw key/value, which the verifier need not learn).
	NeighborKeyPath   common.Hash
	NeighborValueHash common.Hash
}

// Proof is the ordered list of steps from the root down to the queried
// key's location, root-first.
type Proof struct {
	Steps []Step
}

// childAt is the minimal read surface the proof engine needs from a
// trie handle: the node found by following a nibble path from the root,
// materializing references along the way. trie.Trie satisfies this.
type childAt interface {
	ChildAt(ctx context.Context, pathPrefix nibble.Nibbles) (*node.Node, error)
}

// Prove walks t from the root along key's path and records the proof of
// its presence or absence. It always succeeds for a well-formed trie: a
// missing key yields a valid exclusion proof, not an error.
func Prove(ctx context.Context, t childAt, key []byte) (Proof, error) {
	path := nibble.KeyPath(key)
	var steps []Step
	depth := 0

	for {
		current, err := t.ChildAt(ctx, path[:depth])
		if err != nil {
			return Proof{}, err
		}
		if current == nil {
			// Empty slot: absence is already witnessed by the trailing
			// Branch step(s) recorded so far.
			return Proof{Steps: steps}, nil
		}

		switch current.Kind {
		case node.KindLeaf:
			if bytes.Equal(current.Key, key) {
				// Inclusion: the target leaf itself is not a step, the
				// verifier plugs its hash in directly.
				return Proof{Steps: steps}, nil
			}
			remaining := path[depth:]
			p := nibble.CommonPrefixLen(current.Suffix, remaining)
			steps = append(steps, Step{
				Kind:              StepLeaf,
				Skip:              p,
				NeighborKeyPath:   nibble.Sum(current.Key),
				NeighborValueHash: nibble.Sum(current.Value),
			})
			return Proof{Steps: steps}, nil

		case node.KindBranch:
			remaining := path[depth:]
			q := nibble.CommonPrefixLen(current.Prefix, remaining)
			if q == len(current.Prefix) {
				selector := remaining[q]
				var leaves [16]common.Hash
				for i, c := range current.Children {
					leaves[i] = c.HashOf()
				}
				steps = append(steps, Step{
					Kind:      StepBranch,
					Skip:      len(current.Prefix),
					Neighbors: node.AuditPathOf16(leaves, int(selector)),
				})
				depth += q + 1
				continue
			}
			steps = append(steps, Step{
				Kind:       StepFork,
				Skip:       q,
				ForkNibble: current.Prefix[q],
				ForkPrefix: append(nibble.Nibbles(nil), current.Prefix[q+1:]...),
				ForkRoot:   current.ChildrenRoot(),
			})
			return Proof{Steps: steps}, nil

		default:
			return Proof{}, fmt.Errorf("%w: unexpected node kind %d", forestryerr.ErrInvariantViolation, current.Kind)
		}
	}
}

// Verify reconstructs the root hash implied by p for key, plugging in
// either the inclusion leaf hash of (key, value) or the empty-slot
// sentinel, depending on includingItem. Without the item, a final Leaf or
// Fork step yields the neighbor subtree's own hash, since that subtree
// alone occupies the position while key is absent. Verification is total:
// it never errors, it returns a hash that either matches a known root or
// doesn't.
func (p Proof) Verify(key, value []byte, includingItem bool) common.Hash {
	path := nibble.KeyPath(key)

	depths := make([]int, len(p.Steps))
	d := 0
	for i, s := range p.Steps {
		if s.Skip < 0 || s.Skip > nibble.MaxPrefixLength {
			return common.Hash{} // malformed: skip out of range
		}
		depths[i] = d
		d += s.Skip + 1
	}

	var target common.Hash
	if includingItem {
		target = node.LeafHash(key, value)
	} else {
		target = node.EmptyHash
	}

	for i := len(p.Steps) - 1; i >= 0; i-- {
		s := p.Steps[i]
		depth := depths[i]
		if depth+s.Skip >= len(path) {
			return common.Hash{} // malformed: cannot index the key's own path
		}
		ownNibble := path[depth+s.Skip]
		prefix := path[depth : depth+s.Skip]

		switch s.Kind {
		case StepBranch:
			childrenRoot := node.RootFromAuditPath16(target, int(ownNibble), s.Neighbors)
			target = node.BranchHashFromChildRoot(prefix, childrenRoot)

		case StepFork:
			if s.ForkNibble > 15 || len(s.ForkPrefix) > nibble.MaxPrefixLength {
				return common.Hash{}
			}
			if !includingItem {
				full := append(append(append(nibble.Nibbles(nil), prefix...), s.ForkNibble), s.ForkPrefix...)
				if len(full) > nibble.MaxPrefixLength {
					return common.Hash{}
				}
				target = node.BranchHashFromChildRoot(full, s.ForkRoot)
				break
			}
			var children [16]common.Hash
			children[s.ForkNibble] = node.BranchHashFromChildRoot(s.ForkPrefix, s.ForkRoot)
			children[ownNibble] = target
			target = node.BranchHashFromChildRoot(prefix, node.MerkleRootOf16(children))

		case StepLeaf:
			if !includingItem {
				target = node.LeafHashFromPathAndValueHash(s.NeighborKeyPath, s.NeighborValueHash)
				break
			}
			neighborNibble, ok := nthNibbleOfPath(s.NeighborKeyPath, depth+s.Skip)
			if !ok {
				return common.Hash{}
			}
			var children [16]common.Hash
			children[neighborNibble] = node.LeafHashFromPathAndValueHash(s.NeighborKeyPath, s.NeighborValueHash)
			children[ownNibble] = target
			target = node.BranchHashFromChildRoot(prefix, node.MerkleRootOf16(children))

		default:
			return common.Hash{}
		}
	}
	return target
}

func nthNibbleOfPath(path common.Hash, index int) (byte, bool) {
	if index < 0 || index >= nibble.PathLength {
		return 0, false
	}
	b := path[index/2]
	if index%2 == 0 {
		return b >> 4, true
	}
	return b & 0x0f, true
}
