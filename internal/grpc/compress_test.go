package grpc

import (
	"bytes"
	"testing"
)

func TestCompressorsRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("turn frame "), 64)
	for _, name := range []string{"gzip", "zstd", "snappy", "identity"} {
		compressor, ok := CompressorFor(name)
		if !ok {
			t.Fatalf("compressor %q not found", name)
		}
		if compressor.Name() != name {
			t.Fatalf("unexpected compressor name %q for %q", compressor.Name(), name)
		}
		compressed, err := compressor.Compress(payload)
		if err != nil {
			t.Fatalf("%s compress: %v", name, err)
		}
		if len(compressed) == 0 {
			t.Fatalf("%s compressed payload empty", name)
		}
		decompressed, err := compressor.Decompress(compressed)
		if err != nil {
			t.Fatalf("%s decompress: %v", name, err)
		}
		if !bytes.Equal(decompressed, payload) {
			t.Fatalf("%s round trip mismatch", name)
		}
	}
}

func TestCompressorForDefaultsAndUnknown(t *testing.T) {
	if compressor, ok := CompressorFor(""); !ok || compressor.Name() != "gzip" {
		t.Fatalf("expected gzip as the default compressor")
	}
	if compressor, ok := CompressorFor(" ZSTD "); !ok || compressor.Name() != "zstd" {
		t.Fatalf("expected names to be normalised")
	}
	if _, ok := CompressorFor("brotli"); ok {
		t.Fatalf("expected an unknown codec to be rejected")
	}
}

func TestDecompressEmpty(t *testing.T) {
	for _, compressor := range []Compressor{NewGZIPCompressor(), NewZstdCompressor(), NewSnappyCompressor()} {
		if _, err := compressor.Decompress(nil); err == nil {
			t.Fatalf("%s: expected error for empty payload", compressor.Name())
		}
	}
}
