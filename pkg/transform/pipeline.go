package transform

import (
	"fmt"
	"unicode/utf8"
)

// Options configures a Pipeline; it is a direct projection of the relevant
// config.Config fields (spec §6).
type Options struct {
	Codec             Codec // default transform.GobCodec{} if nil
	UTF8              bool
	CompressThreshold int // -1 disables
	CompressRatio     float64
	CompressAlgo      string
}

// Pipeline applies and reverses the flag-word transform for stored values.
type Pipeline struct {
	codec      Codec
	utf8       bool
	threshold  int
	ratio      float64
	algo       Algo
	compressOK bool // false if CompressAlgo was unknown (warn + disable)
}

// New builds a Pipeline from opts. An unknown CompressAlgo is a ConfigError
// condition that this layer resolves by disabling compression rather than
// failing construction (spec §7: "unknown compress algorithm ⇒ warn and
// disable compression"); the caller-visible warning is the returned bool.
func New(opts Options) (*Pipeline, bool) {
	codec := opts.Codec
	if codec == nil {
		codec = GobCodec{}
	}

	p := &Pipeline{
		codec:     codec,
		utf8:      opts.UTF8,
		threshold: opts.CompressThreshold,
		ratio:     opts.CompressRatio,
	}

	if opts.CompressThreshold < 0 {
		return p, true
	}

	algo, ok := Lookup(opts.CompressAlgo)
	if !ok {
		return p, false
	}
	p.algo = algo
	p.compressOK = true
	return p, true
}

// Store applies the flag-word transform to a value being written, per spec
// §4.5: structured-encode, then UTF-8 transcode, then compress-if-worth-it.
func (p *Pipeline) Store(value any) (data []byte, flags uint32, err error) {
	var flagBits uint32

	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
		if p.utf8 {
			if !utf8.Valid(data) {
				return nil, 0, &TransformError{Op: "utf8-encode", Err: fmt.Errorf("string is not valid UTF-8")}
			}
			flagBits |= FlagUTF8
		}
	default:
		data, err = p.codec.Encode(value)
		if err != nil {
			return nil, 0, &TransformError{Op: "codec-encode", Err: err}
		}
		flagBits |= FlagCodec
	}

	if p.compressOK && p.threshold >= 0 && len(data) >= p.threshold {
		compressed, cerr := p.algo.Compress(data)
		// A value exactly at the threshold is considered; one byte
		// shorter is not (spec §8 boundary behavior) — enforced by the
		// >= comparison above, evaluated once per Store call.
		if cerr == nil && float64(len(compressed)) <= p.ratio*float64(len(data)) {
			data = compressed
			flagBits |= FlagCompressed
		}
		// A compression failure or a poor ratio both fall through to
		// shipping the raw bytes with b1 clear — compression is a policy
		// decision, never a hard error (spec §4.5 rationale, §8 invariant
		// 4).
	}

	return data, flagBits, nil
}

// Fetch reverses the flag-word transform, in bit order b1 -> b2 -> b0 (spec
// §4.5). A failure here is a TransformError scoped to this one value; it
// must never be allowed to affect sibling keys in the same batch.
func (p *Pipeline) Fetch(data []byte, flags uint32) (any, error) {
	if flags&FlagCompressed != 0 {
		if !p.compressOK {
			return nil, &TransformError{Op: "decompress", Err: fmt.Errorf("no compress algo configured")}
		}
		decompressed, err := p.algo.Decompress(data)
		if err != nil {
			return nil, &TransformError{Op: "decompress", Err: err}
		}
		data = decompressed
	}

	if flags&FlagCodec != 0 {
		v, err := p.codec.Decode(data)
		if err != nil {
			return nil, &TransformError{Op: "codec-decode", Err: err}
		}
		return v, nil
	}

	if flags&FlagUTF8 != 0 {
		if !utf8.Valid(data) {
			return nil, &TransformError{Op: "utf8-decode", Err: fmt.Errorf("value is not valid UTF-8")}
		}
		return string(data), nil
	}

	return data, nil
}
