package sealbackup

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// Compress gzips b. The transform is lossless: Decompress(Compress(b))
// always equals b.
func Compress(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip writer: %w", err)
	}
	if _, err := zw.Write(b); err != nil {
		zw.Close()
		return nil, fmt.Errorf("failed to compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish compression: %w", err)
	}
	return buf.Bytes(), nil
}

// maxDecompressedSize bounds the output of Decompress (1 GiB)
const maxDecompressedSize = 1 << 30

// Decompress reverses Compress. Output larger than 1 GiB is an error.
func Decompress(b []byte) ([]byte, error) {
	return decompressLimit(b, maxDecompressedSize)
}

func decompressLimit(b []byte, limit int64) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(io.LimitReader(zr, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress: %w", err)
	}
	if int64(len(out)) > limit {
		return nil, fmt.Errorf("decompressed payload exceeds %d bytes", limit)
	}
	return out, nil
}

// maybeCompress is a pass-through when compression is disabled
func maybeCompress(enabled bool, b []byte) ([]byte, error) {
	if !enabled {
		return b, nil
	}
	return Compress(b)
}

// maybeDecompress reverses maybeCompress according to the envelope flag
func maybeDecompress(compressed bool, b []byte) ([]byte, error) {
	if !compressed {
		return b, nil
	}
	return Decompress(b)
}
