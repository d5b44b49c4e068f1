package snapshot

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

// compression is picked by file extension
const (
	extZstd   = ".zst"
	extBrotli = ".br"
)

func compressionOf(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == extZstd || ext == extBrotli {
		return ext
	}
	return ""
}

// implements io.WriteCloser over a compressing writer.
// Close flushes the compressor but doesn't close the underlying writer
type compressWriter struct {
	w     io.Writer
	close func() error
}

func (cw *compressWriter) Write(p []byte) (int, error) {
	return cw.w.Write(p)
}

func (cw *compressWriter) Close() error {
	if cw.close == nil {
		return nil
	}
	return cw.close()
}

func zstdNewWriter(dst io.Writer) (*zstd.Encoder, error) {
	// snapshots are small, best compression is fast enough
	return zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
}

func newCompressWriter(dst io.Writer, path string) (*compressWriter, error) {
	switch compressionOf(path) {
	case extZstd:
		zw, err := zstdNewWriter(dst)
		if err != nil {
			return nil, err
		}
		return &compressWriter{w: zw, close: zw.Close}, nil
	case extBrotli:
		bw := brotli.NewWriterLevel(dst, brotli.BestCompression)
		return &compressWriter{w: bw, close: bw.Close}, nil
	}
	return &compressWriter{w: dst}, nil
}

// newDecompressReader returns reader of uncompressed data and a function
// that releases the decompressor
func newDecompressReader(src io.Reader, path string) (io.Reader, func(), error) {
	switch compressionOf(path) {
	case extZstd:
		zr, err := zstd.NewReader(src)
		if err != nil {
			return nil, nil, err
		}
		return zr, zr.Close, nil
	case extBrotli:
		return brotli.NewReader(src), func() {}, nil
	}
	return src, func() {}, nil
}
