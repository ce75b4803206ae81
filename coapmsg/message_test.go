package coapmsg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	cases := []*Message{
		{Version: 1, Type: CON, Code: GET, MessageID: 0x1234, Token: []byte{0x73}},
		{Version: 1, Type: ACK, Code: Content, MessageID: 0x1, Token: []byte{1, 2, 3, 4}, Payload: []byte("OK")},
		{Version: 1, Type: NON, Code: POST, MessageID: 0xffff, Token: nil,
			Options: Options{{Number: URIPath, Value: []byte("sensors")}, {Number: URIPath, Value: []byte("temp")}}},
		{Version: 1, Type: RST, Code: Empty, MessageID: 42},
	}

	for _, m := range cases {
		raw, err := m.Bytes()
		require.NoError(t, err)

		got, err := Parse(raw)
		require.NoError(t, err)

		assert.Equal(t, m.Type, got.Type)
		assert.Equal(t, m.Code, got.Code)
		assert.Equal(t, m.MessageID, got.MessageID)
		assert.Equal(t, m.Token, got.Token)
		assert.Equal(t, m.Payload, got.Payload)
		assert.ElementsMatch(t, m.Options, got.Options)
	}
}

func TestRoundTripPreservesOptionOrderWithinSameNumber(t *testing.T) {
	m := &Message{
		Version: 1, Type: CON, Code: GET, MessageID: 7,
		Options: Options{
			{Number: URIPath, Value: []byte("a")},
			{Number: URIPath, Value: []byte("b")},
			{Number: URIPath, Value: []byte("c")},
		},
	}
	raw, err := m.Bytes()
	require.NoError(t, err)

	got, err := Parse(raw)
	require.NoError(t, err)
	require.Len(t, got.Options, 3)
	assert.Equal(t, []byte("a"), got.Options[0].Value)
	assert.Equal(t, []byte("b"), got.Options[1].Value)
	assert.Equal(t, []byte("c"), got.Options[2].Value)
}

func TestParseRejectsTruncationPrefixes(t *testing.T) {
	m := &Message{
		Version: 1, Type: CON, Code: PUT, MessageID: 0xabcd,
		Token:   []byte{1, 2, 3, 4},
		Options: Options{{Number: URIPath, Value: []byte("a-long-enough-path-segment")}},
		Payload: []byte("some payload bytes"),
	}
	raw, err := m.Bytes()
	require.NoError(t, err)

	for n := 0; n < len(raw); n++ {
		_, err := Parse(raw[:n])
		assert.Error(t, err, "prefix of length %d should not parse", n)
	}

	// The full message must still parse.
	_, err = Parse(raw)
	assert.NoError(t, err)
}

func TestParseShortHeader(t *testing.T) {
	_, err := Parse([]byte{0x40, 0x01, 0x00})
	assert.Equal(t, ErrShortHeader, err)
}

func TestParseBadVersion(t *testing.T) {
	_, err := Parse([]byte{0x00, 0x01, 0x00, 0x00})
	assert.Equal(t, ErrBadVersion, err)
}

func TestParseBadTokenLength(t *testing.T) {
	// version=1, type=CON, TKL=9 (nibble value 9 > 8)
	_, err := Parse([]byte{0x49, 0x01, 0x00, 0x00})
	assert.Equal(t, ErrBadTokenLength, err)
}

func TestParsePartialSucceedsOnValidPrefixRegardlessOfFullParse(t *testing.T) {
	// TKL=9 is invalid for a full parse, but ParsePartial only looks at
	// the first 4 bytes.
	raw := []byte{0x49, 0x01, 0x12, 0x34}
	typ, id, err := ParsePartial(raw)
	require.NoError(t, err)
	assert.Equal(t, CON, typ)
	assert.Equal(t, uint16(0x1234), id)

	_, err = Parse(raw)
	assert.Error(t, err)
}

func TestParsePartialRequiresFourBytes(t *testing.T) {
	_, _, err := ParsePartial([]byte{0x40, 0x01, 0x00})
	assert.Equal(t, ErrShortHeader, err)
}

func TestOptionDeltaEncodingMatchesRFCTable(t *testing.T) {
	// RFC 7252 section 3.1: 0-12 are literal nibbles, 13 adds one
	// extension byte holding value-13, 14 adds two holding value-269.
	// 65804 (65535+269) is the largest encodable delta.
	table := []struct {
		value, nibble, ext, extLen int
	}{
		{0, 0, 0, 0},
		{12, 12, 0, 0},
		{13, 13, 0, 1},
		{269, 14, 0, 2},
		{270, 14, 1, 2},
		{65804, 14, 65535, 2},
	}
	for _, tc := range table {
		nibble, ext, extLen := encodeField(tc.value)
		assert.Equal(t, tc.nibble, nibble, "nibble for %d", tc.value)
		assert.Equal(t, tc.ext, ext, "extension for %d", tc.value)
		assert.Equal(t, tc.extLen, extLen, "extension length for %d", tc.value)
	}

	// Option numbers are 16 bit, so the round trip stops at 65535.
	numbers := []OptionNumber{0, 12, 13, 269, 270, 65535}
	m := &Message{Version: 1, Type: CON, Code: GET, MessageID: 1}
	for _, n := range numbers {
		m.Options.Add(n, []byte{0x01})
	}

	raw, err := m.Bytes()
	require.NoError(t, err)

	got, err := Parse(raw)
	require.NoError(t, err)
	require.Len(t, got.Options, len(numbers))
	for i, n := range numbers {
		assert.Equal(t, n, got.Options[i].Number)
	}
}

func TestParseMissingPayloadAfterMarker(t *testing.T) {
	raw := []byte{0x40, 0x01, 0x00, 0x00, 0xff}
	_, err := Parse(raw)
	assert.Equal(t, ErrMissingPayloadAfterMarker, err)
}

func TestParseEmptyMessageMustBeExactlyFourBytes(t *testing.T) {
	// Code 0.00 (Empty) with a trailing byte is malformed.
	raw := []byte{0x40, 0x00, 0x00, 0x00, 0x01}
	_, err := Parse(raw)
	assert.Equal(t, ErrMalformedEmptyMessage, err)
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, NewEmpty(ACK, 5).IsEmpty())
	m := &Message{Code: GET, Token: []byte{1}}
	assert.False(t, m.IsEmpty())
}
