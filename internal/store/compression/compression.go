// Package compression implements the Compressor interface the
// HashedObjectStore uses to shrink object blobs before they hit the
// durable backend (lz4 for speed; zstd added since DataDog/zstd is a
// pack dependency with no other home in this rewrite).
package compression

import (
	"fmt"

	"github.com/DataDog/zstd"
	"github.com/pierrec/lz4"
)

type Compressor interface {
	Name() string
	Compress(data []byte, level int) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

func Get(name string) (Compressor, error) {
	switch name {
	case "", "none":
		return &NoCompressor{}, nil
	case "lz4":
		return &LZ4Compressor{}, nil
	case "zstd":
		return &ZstdCompressor{}, nil
	default:
		return nil, fmt.Errorf("compression: unknown compressor %q", name)
	}
}

type NoCompressor struct{}

func (c *NoCompressor) Name() string { return "none" }
func (c *NoCompressor) Compress(data []byte, _ int) ([]byte, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}
func (c *NoCompressor) Decompress(data []byte) ([]byte, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

type LZ4Compressor struct{}

func (c *LZ4Compressor) Name() string { return "lz4" }

func (c *LZ4Compressor) Compress(data []byte, _ int) ([]byte, error) {
	if len(data) == 0 {
		return []byte{}, nil
	}
	compressed := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if n == 0 {
		// Incompressible input: lz4 signals this by writing nothing.
		return append([]byte{0}, data...), nil
	}
	return append([]byte{1}, compressed[:n]...), nil
}

func (c *LZ4Compressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return []byte{}, nil
	}
	flag, body := data[0], data[1:]
	if flag == 0 {
		out := make([]byte, len(body))
		copy(out, body)
		return out, nil
	}
	for bufSize := len(body) * 2; bufSize <= len(body)*20+64; bufSize *= 2 {
		out := make([]byte, bufSize)
		n, err := lz4.UncompressBlock(body, out)
		if err == nil {
			return out[:n], nil
		}
	}
	return nil, fmt.Errorf("lz4 decompress: exhausted buffer growth")
}

// ZstdCompressor backs the "zstd" compressor option for objects where the
// higher ratio is worth the extra CPU (large account-state leaves).
type ZstdCompressor struct{}

func (c *ZstdCompressor) Name() string { return "zstd" }

func (c *ZstdCompressor) Compress(data []byte, level int) ([]byte, error) {
	if level <= 0 {
		level = zstd.DefaultCompression
	}
	out, err := zstd.CompressLevel(nil, data, level)
	if err != nil {
		return nil, fmt.Errorf("zstd compress: %w", err)
	}
	return out, nil
}

func (c *ZstdCompressor) Decompress(data []byte) ([]byte, error) {
	out, err := zstd.Decompress(nil, data)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return out, nil
}
