package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	B string `cbor:"2,keyasint"`
	A int    `cbor:"1,keyasint"`
}

func TestMarshal_Deterministic(t *testing.T) {
	first, err := Marshal(map[string]int{"z": 1, "a": 2, "m": 3})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := Marshal(map[string]int{"m": 3, "a": 2, "z": 1})
		require.NoError(t, err)
		assert.Equal(t, first, again, "map encoding must not depend on insertion order")
	}
}

func TestUnmarshal_IgnoresUnknownFields(t *testing.T) {
	data, err := Marshal(map[int]any{1: 7, 2: "x", 9: true})
	require.NoError(t, err)

	var got sample
	require.NoError(t, Unmarshal(data, &got))
	assert.Equal(t, sample{A: 7, B: "x"}, got)
}

func TestCompressor_SmallPayloadStaysUncompressed(t *testing.T) {
	c := Compressor{Algorithm: CompressionZstd, Threshold: 64}
	framed, err := c.Frame([]byte("tiny"))
	require.NoError(t, err)
	assert.Equal(t, byte(CompressionNone), framed[0])

	out, err := Unframe(framed)
	require.NoError(t, err)
	assert.Equal(t, []byte("tiny"), out)
}

func TestCompressor_Algorithms(t *testing.T) {
	payload := bytes.Repeat([]byte("journal entry payload "), 200)

	for _, alg := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd} {
		t.Run(alg.String(), func(t *testing.T) {
			c := Compressor{Algorithm: alg, Threshold: 16}
			framed, err := c.Frame(payload)
			require.NoError(t, err)
			assert.Equal(t, byte(alg), framed[0])
			if alg != CompressionNone {
				assert.Less(t, len(framed), len(payload))
			}

			out, err := Unframe(framed)
			require.NoError(t, err)
			assert.Equal(t, payload, out)
		})
	}
}

func TestUnframe_Errors(t *testing.T) {
	_, err := Unframe(nil)
	assert.Error(t, err)

	_, err = Unframe([]byte{byte(CompressionNone), 5, 'a'})
	assert.Error(t, err, "length mismatch must be detected")

	_, err = Unframe([]byte{42, 1, 'a'})
	assert.Error(t, err, "unknown tag must be rejected")
}

func TestParseCompression(t *testing.T) {
	for _, name := range []string{"none", "lz4", "zstd"} {
		c, err := ParseCompression(name)
		require.NoError(t, err)
		assert.Equal(t, name, c.String())
	}
	_, err := ParseCompression("brotli")
	assert.Error(t, err)
}
