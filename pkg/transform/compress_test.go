package transform

import (
	"bytes"
	"strings"
	"testing"
)

func TestCompressRegistryRoundTrip(t *testing.T) {
	payload := []byte(strings.Repeat("the quick brown fox jumps over the lazy dog ", 20))

	for _, name := range []string{"gzip", "snappy", "lz4", "zstd"} {
		name := name
		t.Run(name, func(t *testing.T) {
			algo, ok := Lookup(name)
			if !ok {
				t.Fatalf("Lookup(%q) not found", name)
			}
			compressed, err := algo.Compress(payload)
			if err != nil {
				t.Fatalf("Compress: %v", err)
			}
			decompressed, err := algo.Decompress(compressed)
			if err != nil {
				t.Fatalf("Decompress: %v", err)
			}
			if !bytes.Equal(decompressed, payload) {
				t.Fatalf("round trip mismatch for %s", name)
			}
		})
	}
}

func TestLookupUnknownAlgo(t *testing.T) {
	if _, ok := Lookup("rot13"); ok {
		t.Fatal("expected Lookup to fail for an unregistered algorithm")
	}
}
