package transform

import (
	"bytes"
	"strings"
	"testing"
)

func TestStoreFetchRawBytes(t *testing.T) {
	p, ok := New(Options{CompressThreshold: -1})
	if !ok {
		t.Fatal("New reported unhonored options")
	}

	data, flags, err := p.Store([]byte("hello world"))
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if flags != 0 {
		t.Fatalf("flags = %d, want 0 for raw bytes with no compression", flags)
	}

	got, err := p.Fetch(data, flags)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	gotBytes, ok := got.([]byte)
	if !ok || !bytes.Equal(gotBytes, []byte("hello world")) {
		t.Fatalf("Fetch() = %v, want %q", got, "hello world")
	}
}

func TestStoreFetchString(t *testing.T) {
	p, _ := New(Options{CompressThreshold: -1})

	data, flags, err := p.Store("plain string")
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if flags&FlagUTF8 != 0 {
		t.Fatalf("FlagUTF8 should not be set when Options.UTF8 is false")
	}

	got, err := p.Fetch(data, flags)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if _, ok := got.([]byte); !ok {
		t.Fatalf("without UTF8 option, Fetch should return []byte, got %T", got)
	}
}

func TestStoreFetchUTF8String(t *testing.T) {
	p, _ := New(Options{CompressThreshold: -1, UTF8: true})

	data, flags, err := p.Store("plain string")
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if flags&FlagUTF8 == 0 {
		t.Fatalf("expected FlagUTF8 set")
	}

	got, err := p.Fetch(data, flags)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if s, ok := got.(string); !ok || s != "plain string" {
		t.Fatalf("Fetch() = %v, want %q", got, "plain string")
	}
}

func TestStoreRejectsInvalidUTF8(t *testing.T) {
	p, _ := New(Options{CompressThreshold: -1, UTF8: true})
	_, _, err := p.Store(string([]byte{0xff, 0xfe}))
	if err == nil {
		t.Fatal("expected TransformError for invalid UTF-8")
	}
}

func TestStoreFetchCodecValue(t *testing.T) {
	p, _ := New(Options{CompressThreshold: -1})

	data, flags, err := p.Store(int64(42))
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if flags&FlagCodec == 0 {
		t.Fatalf("expected FlagCodec set for a non-string/[]byte value")
	}

	got, err := p.Fetch(data, flags)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if v, ok := got.(int64); !ok || v != 42 {
		t.Fatalf("Fetch() = %v, want int64(42)", got)
	}
}

func TestCompressionThresholdBoundary(t *testing.T) {
	payload := strings.Repeat("a", 100)

	p, _ := New(Options{CompressThreshold: 100, CompressRatio: 0.8, CompressAlgo: "gzip"})
	_, flags, err := p.Store(payload)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if flags&FlagCompressed == 0 {
		t.Fatalf("value exactly at threshold should be considered for compression")
	}

	pBelow, _ := New(Options{CompressThreshold: 101, CompressRatio: 0.8, CompressAlgo: "gzip"})
	_, flagsBelow, err := pBelow.Store(payload)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if flagsBelow&FlagCompressed != 0 {
		t.Fatalf("value one byte under threshold should not be compressed")
	}
}

func TestCompressionSkippedOnPoorRatio(t *testing.T) {
	// Random-looking short data rarely compresses well; use a tiny ratio
	// budget that nothing can satisfy to force the fallback path.
	p, _ := New(Options{CompressThreshold: 0, CompressRatio: 0.01, CompressAlgo: "gzip"})
	data, flags, err := p.Store([]byte("x"))
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if flags&FlagCompressed != 0 {
		t.Fatalf("compression should have been skipped for a poor ratio")
	}
	if !bytes.Equal(data, []byte("x")) {
		t.Fatalf("data should be unmodified when compression is skipped")
	}
}

func TestUnknownCompressAlgoDisablesCompression(t *testing.T) {
	p, ok := New(Options{CompressThreshold: 0, CompressRatio: 0.8, CompressAlgo: "does-not-exist"})
	if ok {
		t.Fatal("expected New to report an unhonored option for an unknown algo")
	}

	data, flags, err := p.Store([]byte("some value that would otherwise compress fine fine fine"))
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if flags&FlagCompressed != 0 {
		t.Fatalf("compression should be disabled when the configured algo is unknown")
	}
	if !bytes.Equal(data, []byte("some value that would otherwise compress fine fine fine")) {
		t.Fatalf("data should pass through unmodified")
	}
}

func TestFetchDecompressWithoutAlgoConfigured(t *testing.T) {
	p, _ := New(Options{CompressThreshold: -1})
	_, err := p.Fetch([]byte("garbage"), FlagCompressed)
	if err == nil {
		t.Fatal("expected TransformError when no compress algo is configured")
	}
}
