// Package nibble provides the byte/nibble conversions and the blake2b-256
// hash oracle that the trie and proof packages build on. A key's path is
// H(key) read as 64 hex nibbles, most significant nibble first; nibble
// paths are how the trie routes keys to branches and leaves.
package nibble

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/blake2b"
)

// PathLength is the number of nibbles in a key's path (32 hash bytes, two
// nibbles per byte).
const PathLength = 64

// MaxPrefixLength is the largest nibble count a branch prefix can carry in
// the persisted/hashed encoding's single length byte, and is also bounded
// by there being at most PathLength-2 nibbles left for a prefix once the
// root and the selecting nibble are accounted for.
const MaxPrefixLength = PathLength - 2

// Nibbles is a sequence of 4-bit values in [0,15], most significant first.
type Nibbles []byte

// Sum returns the blake2b-256 digest of data. This is the hash oracle H
// referenced throughout the package: it is the only place a cryptographic
// hash function is invoked from scratch (leaf/branch hashing in package
// node compose further calls to it).
func Sum(data []byte) common.Hash {
	return common.Hash(blake2b.Sum256(data))
}

// KeyPath returns the 64-nibble path of a key, i.e. H(key) split into
// nibbles.
func KeyPath(key []byte) Nibbles {
	return BytesToNibbles(Sum(key).Bytes())
}

// BytesToNibbles expands each byte into two nibbles, high nibble first.
func BytesToNibbles(b []byte) Nibbles {
	n := make(Nibbles, len(b)*2)
	for i, v := range b {
		n[i*2] = v >> 4
		n[i*2+1] = v & 0x0f
	}
	return n
}

// NibblesToBytes packs an even-length nibble sequence back into bytes. It
// panics on an odd-length input: callers that may have an odd remainder
// must go through PackPrefix instead, which defines the padding rule.
func NibblesToBytes(n Nibbles) []byte {
	if len(n)%2 != 0 {
		panic("nibble: NibblesToBytes on odd-length nibble sequence")
	}
	b := make([]byte, len(n)/2)
	for i := range b {
		b[i] = n[i*2]<<4 | n[i*2+1]
	}
	return b
}

// CommonPrefixLen returns the length of the longest common prefix of a and
// b, measured in nibbles.
func CommonPrefixLen(a, b Nibbles) int {
	max := len(a)
	if len(b) < max {
		max = len(b)
	}
	i := 0
	for i < max && a[i] == b[i] {
		i++
	}
	return i
}

// PackPrefix encodes a branch prefix as a length byte plus packed bytes,
// high nibble first. An odd-length prefix is left-justified in its final
// byte with a trailing zero nibble; the length byte is what disambiguates
// that trailing zero from a real nibble on unpack. This is the encoding
// used both for persisted branch nodes and for the bytes hashed into
// a branch's hash.
func PackPrefix(n Nibbles) (count byte, packed []byte) {
	if len(n) > MaxPrefixLength {
		panic(fmt.Sprintf("nibble: prefix length %d exceeds maximum %d", len(n), MaxPrefixLength))
	}
	count = byte(len(n))
	padded := n
	if len(padded)%2 != 0 {
		padded = make(Nibbles, len(n)+1)
		copy(padded, n)
		padded[len(n)] = 0
	}
	packed = NibblesToBytes(padded)
	return count, packed
}

// UnpackPrefix reverses PackPrefix: given the nibble count and the packed
// bytes, it recovers the original (unpadded) nibble sequence.
func UnpackPrefix(count byte, packed []byte) (Nibbles, error) {
	expectedBytes := (int(count) + 1) / 2
	if len(packed) != expectedBytes {
		return nil, fmt.Errorf("nibble: packed prefix has %d bytes, want %d for count %d", len(packed), expectedBytes, count)
	}
	full := BytesToNibbles(packed)
	return full[:count], nil
}
