package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type sample struct {
	B string `json:"b"`
	A string `json:"a"`
}

func TestEncodeDeterministic(t *testing.T) {
	v := sample{B: "x", A: "y"}
	data1, h1, err := Encode(KindFile, v)
	require.NoError(t, err)
	data2, h2, err := Encode(KindFile, v)
	require.NoError(t, err)
	require.Equal(t, data1, data2)
	require.Equal(t, h1, h2)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	v := sample{B: "x", A: "y"}
	data, _, err := Encode(KindFile, v)
	require.NoError(t, err)

	kind, body, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, KindFile, kind)

	var out sample
	require.NoError(t, DecodeInto(data, KindFile, &out))
	require.Equal(t, v, out)
	_ = body
}

func TestDecodeUnknownKind(t *testing.T) {
	data := append([]byte{byte(len("bogus"))}, "bogus"...)
	data = append(data, '{', '}')
	_, _, err := Decode(data)
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestBlobSmall(t *testing.T) {
	payload := []byte("hello world")
	data, h, err := EncodeBlob(payload)
	require.NoError(t, err)
	require.NoError(t, VerifyHash(data, h))

	out, err := DecodeBlob(data)
	require.NoError(t, err)
	require.Equal(t, payload, out)
}

func TestBlobRawThreshold(t *testing.T) {
	payload := make([]byte, rawBlobThreshold+1)
	for i := range payload {
		payload[i] = byte(i)
	}
	data, h, err := EncodeBlob(payload)
	require.NoError(t, err)
	require.NoError(t, VerifyHash(data, h))

	out, err := DecodeBlob(data)
	require.NoError(t, err)
	require.Equal(t, payload, out)
}

func TestVerifyHashMismatch(t *testing.T) {
	data, h, err := EncodeBlob([]byte("abc"))
	require.NoError(t, err)
	h[0] ^= 0xff
	require.ErrorIs(t, VerifyHash(data, h), ErrCorrupt)
}

func TestParseHashRoundTrip(t *testing.T) {
	_, h, err := EncodeBlob([]byte("abc"))
	require.NoError(t, err)
	parsed, err := ParseHash(h.String())
	require.NoError(t, err)
	require.Equal(t, h, parsed)
}
