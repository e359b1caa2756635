package transform

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// Codec is the structured-value serializer contract. The serializer itself
// is an external collaborator (spec §1); the core only needs these two
// functions and a flag bit (FlagCodec) to remember that a value went
// through one.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte) (any, error)
}

// gobEnvelope carries the encoded value plus its type information, making
// gob a self-describing "generic" codec (Design Notes: "the default codec
// for generic callers is a tagged self-describing format").
type gobEnvelope struct {
	V any
}

func init() {
	for _, v := range []any{
		"", 0, int64(0), float64(0), false, []byte(nil),
		[]any(nil), map[string]any(nil),
	} {
		gob.Register(v)
	}
}

// GobCodec is the default Codec, built on stdlib encoding/gob. It supports
// strings, int, int64, float64, bools, byte slices, and generic
// slices/maps of those. Another Codec can be set through Options.Codec;
// memcache.New does not expose that option and always uses GobCodec.
type GobCodec struct{}

// Encode implements Codec.
func (GobCodec) Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&gobEnvelope{V: v}); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode implements Codec.
func (GobCodec) Decode(data []byte) (any, error) {
	var env gobEnvelope
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&env); err != nil {
		return nil, fmt.Errorf("gob decode: %w", err)
	}
	return env.V, nil
}
