package handshake

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatPayloadTruncationBoundary(t *testing.T) {
	const capacity = 16

	tests := []struct {
		name          string
		text          string
		wantN         int
		wantTruncated bool
	}{
		{"short", "abc", 3, false},
		{"capacity minus one", strings.Repeat("x", capacity-1), capacity - 1, false},
		{"capacity", strings.Repeat("x", capacity), capacity - 1, true},
		{"overflow", strings.Repeat("x", 3*capacity), capacity - 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := bytes.Repeat([]byte{0xFF}, capacity+4)
			n, truncated := FormatPayload(buf[:capacity], "%s", tt.text)

			assert.Equal(t, tt.wantN, n)
			assert.Equal(t, tt.wantTruncated, truncated)
			assert.Equal(t, byte(0), buf[n], "NUL terminated")
			assert.Equal(t, tt.text[:n], CString(buf[:capacity]))
			assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF}, buf[capacity:], "nothing written past capacity")
		})
	}
}

func TestFormatPayloadClearsStaleTail(t *testing.T) {
	buf := make([]byte, 32)
	FormatPayload(buf, "%s", "a much longer first payload")
	FormatPayload(buf, "%d", 7)

	assert.Equal(t, "7", CString(buf))
	assert.Equal(t, make([]byte, 31), buf[1:])
}

func TestFormatPayloadEmptyBuffer(t *testing.T) {
	n, truncated := FormatPayload(nil, "%d", 1)
	assert.Equal(t, 0, n)
	assert.True(t, truncated)
}

func TestDefaultFormats(t *testing.T) {
	buf := make([]byte, InitiatorBufferSize)
	FormatPayload(buf, DefaultInitiatorFormat, 7)
	assert.Equal(t, "initiator count: 7", CString(buf))

	buf = make([]byte, ResponderBufferSize)
	FormatPayload(buf, DefaultResponderFormat, 42)
	assert.Equal(t, "measurement = 42", CString(buf))
}

func TestCStringWithoutNul(t *testing.T) {
	assert.Equal(t, "abc", CString([]byte("abc")))
	assert.Equal(t, "", CString([]byte{0, 'a'}))
}

func TestNewTransactionBuffersDoNotAlias(t *testing.T) {
	tx := NewTransaction(ResponderBufferSize, TransferSize)
	assert.Equal(t, TransferSize*8, tx.LengthBits)
	assert.Equal(t, TransferSize, tx.Bytes())

	tx.FillRx(Sentinel)
	for i := range tx.Tx {
		tx.Tx[i] = 0x11
	}
	assert.Equal(t, bytes.Repeat([]byte{Sentinel}, ResponderBufferSize), tx.Rx)

	clamped := NewTransaction(4, 10)
	assert.Equal(t, 32, clamped.LengthBits)
}
