package transform

import (
	"bytes"
	"compress/gzip"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4"
)

// Algo is a named compress/decompress pair, the "global algorithm
// registry" of the Design Notes — a name -> (compress_fn, decompress_fn)
// mapping constructed once at façade start. Unknown names warn and disable
// compression, matching source behavior.
type Algo struct {
	Compress   func([]byte) ([]byte, error)
	Decompress func([]byte) ([]byte, error)
}

// DefaultAlgo is the compress_algo default (spec §6).
const DefaultAlgo = "gzip"

var registry = map[string]Algo{
	"gzip":   {Compress: gzipCompress, Decompress: gzipDecompress},
	"snappy": {Compress: snappyCompress, Decompress: snappyDecompress},
	"lz4":    {Compress: lz4Compress, Decompress: lz4Decompress},
	"zstd":   {Compress: zstdCompress, Decompress: zstdDecompress},
}

// Lookup returns the registered Algo for name.
func Lookup(name string) (Algo, bool) {
	a, ok := registry[name]
	return a, ok
}

func gzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gzipDecompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func snappyCompress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func snappyDecompress(data []byte) ([]byte, error) {
	return snappy.Decode(nil, data)
}

func lz4Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func lz4Decompress(data []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(data))
	return io.ReadAll(r)
}

func zstdCompress(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

func zstdDecompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}
