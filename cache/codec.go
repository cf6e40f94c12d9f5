package cache

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec turns values into bytes and back. Implementations must be
// deterministic enough to fingerprint: encoding the same value twice yields
// identical bytes, including map-heavy values.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// msgpackCodec is the default codec. Map keys are sorted during encoding so
// the output is stable across runs, which the fingerprint generator depends
// on.
type msgpackCodec struct{}

// NewMsgpackCodec creates the default msgpack-backed codec.
func NewMsgpackCodec() Codec {
	return msgpackCodec{}
}

func (msgpackCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (msgpackCodec) Unmarshal(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}
