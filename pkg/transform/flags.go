// Package transform implements the value transform pipeline (spec component
// C5): applying and reversing the flag-word bits that travel with every
// stored value — structured-value encoding, compression, and UTF-8 text
// marking — so a fetch is stateless with respect to the current client's
// configuration (spec §4.5).
package transform

// Flag bits carried in the wire protocol's flags field (spec §4.5).
const (
	// FlagCodec (b0) marks the value as codec-encoded rather than a raw
	// byte string.
	FlagCodec uint32 = 1 << 0
	// FlagCompressed (b1) marks the value as compressed.
	FlagCompressed uint32 = 1 << 1
	// FlagUTF8 (b2) marks the value as UTF-8 text.
	FlagUTF8 uint32 = 1 << 2
)

// TransformError reports a single-value compression or codec failure. It
// never affects the connection or other keys in the same batch (spec §4.5,
// §7).
type TransformError struct {
	Op  string
	Err error
}

func (e *TransformError) Error() string { return "transform: " + e.Op + ": " + e.Err.Error() }
func (e *TransformError) Unwrap() error { return e.Err }
