package cache

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/lucas-albers-lz4/respimg/pkg/codec"
	"github.com/pierrec/lz4/v4"
)

// Compression selects how disk entries are compressed.
type Compression uint8

const (
	// CompressionAuto stores already-compressed image formats as-is and uses LZ4
	// for everything else.
	CompressionAuto Compression = iota
	CompressionNone
	CompressionLZ4
	CompressionZstd
)

// on-disk tags, the first byte of every entry file
const (
	tagNone byte = 0
	tagLZ4  byte = 1
	tagZstd byte = 2
)

var errIncompressible = errors.New("data is incompressible")

func (c Compression) String() string {
	switch c {
	case CompressionAuto:
		return "auto"
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCompression parses a compression name as used on the command line.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "auto":
		return CompressionAuto, nil
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown cache compression %q", name)
	}
}

func (c Compression) tagFor(format string) byte {
	switch c {
	case CompressionNone:
		return tagNone
	case CompressionLZ4:
		return tagLZ4
	case CompressionZstd:
		return tagZstd
	}
	if codec.IsCompressed(format) {
		return tagNone
	}
	return tagLZ4
}

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("cache: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("cache: zstd decoder initialization failed: " + err.Error())
	}
}

// compress returns the compressed data and the tag actually used. Incompressible
// data falls back to tagNone.
func compress(data []byte, tag byte) ([]byte, byte, error) {
	var (
		out []byte
		err error
	)
	switch tag {
	case tagNone:
		return data, tagNone, nil
	case tagLZ4:
		out, err = compressLZ4(data)
	case tagZstd:
		out, err = compressZstd(data)
	default:
		return nil, 0, fmt.Errorf("unsupported compression tag: %d", tag)
	}
	if errors.Is(err, errIncompressible) {
		return data, tagNone, nil
	}
	return out, tag, err
}

func decompress(data []byte, tag byte, size int) ([]byte, error) {
	switch tag {
	case tagNone:
		if len(data) != size {
			return nil, fmt.Errorf("uncompressed entry: size %d does not match expected %d", len(data), size)
		}
		return data, nil
	case tagLZ4:
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(data, out)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if n != size {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", n, size)
		}
		return out, nil
	case tagZstd:
		out, err := zstdDecoder.DecodeAll(data, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(out) != size {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(out), size)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	out := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, out, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// zero means lz4 judged the block incompressible
	if n == 0 || n >= len(data) {
		return nil, errIncompressible
	}
	return out[:n], nil
}

func compressZstd(data []byte) ([]byte, error) {
	out := zstdEncoder.EncodeAll(data, nil)
	if len(out) >= len(data) {
		return nil, errIncompressible
	}
	return out, nil
}
