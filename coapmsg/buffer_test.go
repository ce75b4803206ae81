package coapmsg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorReadWithinBounds(t *testing.T) {
	c := newCursor([]byte{0x01, 0x02, 0x03, 0x04, 0xaa, 0xbb})

	b, err := c.readByte()
	require.NoError(t, err)
	assert.Equal(t, byte(0x01), b)

	v, err := c.readUint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0203), v)

	rest, err := c.readBytes(2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x04, 0xaa}, rest)

	assert.Equal(t, []byte{0xbb}, c.rest())
}

func TestCursorReadPastEndFails(t *testing.T) {
	c := newCursor([]byte{0x01})
	_, err := c.readUint16()
	assert.Equal(t, ErrBufferTooShort, err)

	_, err = c.readBytes(5)
	assert.Equal(t, ErrBufferTooShort, err)
}

func TestWriteCursorRespectsCapacity(t *testing.T) {
	w := newWriteCursor(2)
	require.NoError(t, w.writeByte(1))
	require.NoError(t, w.writeByte(2))
	assert.Equal(t, ErrBufferTooShort, w.writeByte(3))
}
