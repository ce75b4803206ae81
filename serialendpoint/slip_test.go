package serialendpoint

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	cases := [][]byte{
		[]byte("hello"),
		{},
		{0xC0, 0xDB, 0xC0, 0xDB, 0x01},
		bytes.Repeat([]byte{0xAA}, 300),
	}

	for _, payload := range cases {
		buf := &bytes.Buffer{}
		require.NoError(t, newFrameWriter(buf).WriteFrame(payload))

		got, err := newFrameReader(buf).ReadFrame()
		require.NoError(t, err)
		assert.Equal(t, payload, got)
	}
}

func TestFrameReaderResyncsPastCorruption(t *testing.T) {
	badBuf := &bytes.Buffer{}
	require.NoError(t, newFrameWriter(badBuf).WriteFrame([]byte("payload")))
	corrupted := badBuf.Bytes()
	// Invert one byte inside the payload region, leaving the CRC untouched.
	corrupted[2] ^= 0xFF

	goodBuf := &bytes.Buffer{}
	require.NoError(t, newFrameWriter(goodBuf).WriteFrame([]byte("recovered")))

	// A good frame follows the corrupted one on the wire; the corrupted
	// frame must be dropped and the reader must resync onto it rather
	// than failing the whole stream.
	stream := append(append([]byte(nil), corrupted...), goodBuf.Bytes()...)

	fr := newFrameReader(bytes.NewReader(stream))
	got, err := fr.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte("recovered"), got)
}

func TestFrameWriterStuffsReservedBytes(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, newFrameWriter(buf).WriteFrame([]byte{slipEnd, slipEsc}))

	encoded := buf.Bytes()
	// Only the opening and closing delimiters may be a bare 0xC0.
	for i := 1; i < len(encoded)-1; i++ {
		if encoded[i] == slipEnd {
			t.Fatalf("unescaped END byte at offset %d", i)
		}
	}
}
