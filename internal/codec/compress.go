package codec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies the compression algorithm of a framed payload.
// The values are persisted; changing them breaks stored journals.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionLZ4  Compression = 1
	CompressionZstd Compression = 2
)

func (c Compression) String() string {
	switch c {
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

// ParseCompression parses the name returned by Compression.String.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression: %q", name)
	}
}

// errIncompressible signals that compression would not shrink the payload.
var errIncompressible = errors.New("incompressible")

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("codec: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("codec: zstd decoder initialization failed: " + err.Error())
	}
}

// Compressor frames payloads, compressing those at or above Threshold bytes.
type Compressor struct {
	Algorithm Compression
	Threshold int
}

// Frame returns the framed form of data:
//
//	tag (1 byte) | uncompressed length (uvarint) | body
//
// Payloads below the threshold, or that do not shrink, are stored with
// CompressionNone.
func (c Compressor) Frame(data []byte) ([]byte, error) {
	tag := c.Algorithm
	if len(data) < c.Threshold {
		tag = CompressionNone
	}

	body := data
	if tag != CompressionNone {
		compressed, err := compress(tag, data)
		switch {
		case errors.Is(err, errIncompressible):
			tag = CompressionNone
		case err != nil:
			return nil, err
		default:
			body = compressed
		}
	}

	out := make([]byte, 1, 1+binary.MaxVarintLen64+len(body))
	out[0] = byte(tag)
	out = binary.AppendUvarint(out, uint64(len(data)))
	return append(out, body...), nil
}

// Unframe reverses Frame.
func Unframe(framed []byte) ([]byte, error) {
	if len(framed) == 0 {
		return nil, fmt.Errorf("unframe: empty payload")
	}
	tag := Compression(framed[0])
	size, n := binary.Uvarint(framed[1:])
	if n <= 0 {
		return nil, fmt.Errorf("unframe: invalid length header")
	}
	body := framed[1+n:]

	switch tag {
	case CompressionNone:
		if uint64(len(body)) != size {
			return nil, fmt.Errorf("unframe: size %d does not match expected %d", len(body), size)
		}
		out := make([]byte, len(body))
		copy(out, body)
		return out, nil
	case CompressionLZ4:
		out := make([]byte, size)
		read, err := lz4.UncompressBlock(body, out)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if uint64(read) != size {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, size)
		}
		return out, nil
	case CompressionZstd:
		out, err := zstdDecoder.DecodeAll(body, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if uint64(len(out)) != size {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(out), size)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unframe: unsupported compression tag %d", tag)
	}
}

func compress(tag Compression, data []byte) ([]byte, error) {
	switch tag {
	case CompressionLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(data)))
		written, err := lz4.CompressBlock(data, dst, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		if written == 0 || written >= len(data) {
			return nil, errIncompressible
		}
		return dst[:written], nil
	case CompressionZstd:
		out := zstdEncoder.EncodeAll(data, nil)
		if len(out) >= len(data) {
			return nil, errIncompressible
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}
