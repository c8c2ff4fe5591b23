package proof

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/SundaeSwap-finance/merkle-patricia-forestry/forestryerr"
	"github.com/SundaeSwap-finance/merkle-patricia-forestry/nibble"
)

// jsonStep mirrors Step for JSON, with byte fields as lowercase hex
// (common.Hash already marshals that way; raw byte slices go through
// hexutil.Bytes, go-ethereum's own answer to the same convention).
type jsonStep struct {
	Type      string         `json:"type"`
	Skip      int            `json:"skip"`
	Neighbors *hexutil.Bytes `json:"neighbors,omitempty"`
	Neighbor  *jsonNeighbor  `json:"neighbor,omitempty"`
}

type jsonNeighbor struct {
	Nibble    *int           `json:"nibble,omitempty"`
	Prefix    *hexutil.Bytes `json:"prefix,omitempty"`
	Root      *common.Hash   `json:"root,omitempty"`
	KeyPath   *common.Hash   `json:"key_path,omitempty"`
	ValueHash *common.Hash   `json:"value_hash,omitempty"`
}

func (k StepKind) String() string {
	switch k {
	case StepBranch:
		return "branch"
	case StepFork:
		return "fork"
	case StepLeaf:
		return "leaf"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the proof as the ordered step list described in the
// spec: type tag, skip, and a type-appropriate neighbor payload.
func (p Proof) MarshalJSON() ([]byte, error) {
	out := make([]jsonStep, len(p.Steps))
	for i, s := range p.Steps {
		js := jsonStep{Type: s.Kind.String(), Skip: s.Skip}
		switch s.Kind {
		case StepBranch:
			var flat hexutil.Bytes
			for _, h := range s.Neighbors {
				flat = append(flat, h.Bytes()...)
			}
			js.Neighbors = &flat
		case StepFork:
			nibbleVal := int(s.ForkNibble)
			_, packed := nibble.PackPrefix(s.ForkPrefix)
			prefixBytes := hexutil.Bytes(append([]byte{byte(len(s.ForkPrefix))}, packed...))
			root := s.ForkRoot
			js.Neighbor = &jsonNeighbor{Nibble: &nibbleVal, Prefix: &prefixBytes, Root: &root}
		case StepLeaf:
			keyPath, valueHash := s.NeighborKeyPath, s.NeighborValueHash
			js.Neighbor = &jsonNeighbor{KeyPath: &keyPath, ValueHash: &valueHash}
		}
		out[i] = js
	}
	return json.Marshal(out)
}

// UnmarshalJSON parses a proof previously produced by MarshalJSON.
// Malformed step shapes (wrong neighbor lengths, an unknown type tag)
// yield ErrProofMalformed rather than a generic JSON error, so callers
// can distinguish "not a proof at all" from "valid JSON, wrong shape".
func (p *Proof) UnmarshalJSON(data []byte) error {
	var in []jsonStep
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	steps := make([]Step, len(in))
	for i, js := range in {
		s := Step{Skip: js.Skip}
		switch js.Type {
		case "branch":
			if js.Neighbors == nil || len(*js.Neighbors) != 128 {
				return fmt.Errorf("%w: branch step %d has %d neighbor bytes, want 128", forestryerr.ErrProofMalformed, i, neighborLen(js.Neighbors))
			}
			s.Kind = StepBranch
			for j := 0; j < 4; j++ {
				copy(s.Neighbors[j][:], (*js.Neighbors)[j*32:(j+1)*32])
			}
		case "fork":
			if js.Neighbor == nil || js.Neighbor.Nibble == nil || js.Neighbor.Prefix == nil || js.Neighbor.Root == nil {
				return fmt.Errorf("%w: fork step %d missing neighbor fields", forestryerr.ErrProofMalformed, i)
			}
			if len(*js.Neighbor.Prefix) < 1 {
				return fmt.Errorf("%w: fork step %d has empty prefix payload", forestryerr.ErrProofMalformed, i)
			}
			raw := *js.Neighbor.Prefix
			count, packed := raw[0], raw[1:]
			prefix, err := nibble.UnpackPrefix(count, packed)
			if err != nil {
				return fmt.Errorf("%w: fork step %d: %v", forestryerr.ErrProofMalformed, i, err)
			}
			s.Kind = StepFork
			s.ForkNibble = byte(*js.Neighbor.Nibble)
			s.ForkPrefix = prefix
			s.ForkRoot = *js.Neighbor.Root
		case "leaf":
			if js.Neighbor == nil || js.Neighbor.KeyPath == nil || js.Neighbor.ValueHash == nil {
				return fmt.Errorf("%w: leaf step %d missing neighbor fields", forestryerr.ErrProofMalformed, i)
			}
			s.Kind = StepLeaf
			s.NeighborKeyPath = *js.Neighbor.KeyPath
			s.NeighborValueHash = *js.Neighbor.ValueHash
		default:
			return fmt.Errorf("%w: unknown step type %q", forestryerr.ErrProofMalformed, js.Type)
		}
		steps[i] = s
	}
	p.Steps = steps
	return nil
}

func neighborLen(b *hexutil.Bytes) int {
	if b == nil {
		return 0
	}
	return len(*b)
}
