package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
)

// Fingerprint is the fixed-length content key derived from one invocation.
// Equal invocations (same target, same serialized arguments, same relevant
// state) always produce the same fingerprint; that invariant is the
// correctness contract the whole cache depends on.
type Fingerprint [sha256.Size]byte

// Hex returns the lowercase hex form used by store layouts.
func (f Fingerprint) Hex() string {
	return hex.EncodeToString(f[:])
}

func (f Fingerprint) String() string {
	return f.Hex()
}

// statelessMarker occupies the state segment when state does not participate
// in the key, so that stateless and stateful fingerprints for the same
// arguments can never coincide.
var statelessMarker = []byte("_stateless")

// Generator derives fingerprints from invocations. It is a pure function of
// its inputs: no wall clock, no randomness, no object addresses.
type Generator struct {
	codec Codec
}

// NewGenerator creates a fingerprint generator backed by the given codec.
func NewGenerator(codec Codec) *Generator {
	return &Generator{codec: codec}
}

// Fingerprint computes the content key for one invocation. stateSum is the
// serialized pre-call state digest when state-sensitivity is enabled for the
// target, nil otherwise. Arguments the codec cannot serialize surface as
// *UnrepresentableArgumentError.
func (g *Generator) Fingerprint(target Target, inv Invocation, stateSum []byte) (Fingerprint, error) {
	h := sha256.New()

	writeSegment(h, []byte(target.Owner))
	writeSegment(h, []byte(target.Method))

	writeCount(h, len(inv.Args))
	for i, arg := range inv.Args {
		data, err := g.encode(arg)
		if err != nil {
			return Fingerprint{}, &UnrepresentableArgumentError{
				Target:   target.Key(),
				Position: i,
				Err:      err,
			}
		}
		writeSegment(h, data)
	}

	keys := inv.SortedKwargs()
	writeCount(h, len(keys))
	for _, k := range keys {
		data, err := g.encode(inv.Kwargs[k])
		if err != nil {
			return Fingerprint{}, &UnrepresentableArgumentError{
				Target:   target.Key(),
				Position: -1,
				Keyword:  k,
				Err:      err,
			}
		}
		writeSegment(h, []byte(k))
		writeSegment(h, data)
	}

	if stateSum != nil {
		writeSegment(h, stateSum)
	} else {
		writeSegment(h, statelessMarker)
	}

	var fp Fingerprint
	copy(fp[:], h.Sum(nil))
	return fp, nil
}

// encode produces the canonical byte form of one argument. Values are
// normalized first so the codec's map ordering guarantee (sorted keys,
// map[string]any only) covers every map and struct shape an argument can
// carry; without the walk, equal invocations could hash differently.
func (g *Generator) encode(v any) ([]byte, error) {
	safe, err := canonicalize(v, map[uintptr]struct{}{})
	if err != nil {
		return nil, err
	}
	return g.codec.Marshal(safe)
}

// writeSegment frames each component with its length so that adjacent
// segments can never be reassociated ("ab"+"c" vs "a"+"bc").
func writeSegment(h hash.Hash, data []byte) {
	writeCount(h, len(data))
	h.Write(data)
}

func writeCount(h hash.Hash, n int) {
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(n))
	h.Write(lenBuf[:])
}
