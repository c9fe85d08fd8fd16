package handshake

import (
	"bytes"
	"fmt"
)

// Default payload formats.
const (
	DefaultInitiatorFormat = "initiator count: %d"
	DefaultResponderFormat = "measurement = %d"
)

// FormatPayload formats into buf with snprintf semantics: at most len(buf)-1 bytes
// of text followed by a NUL, the remainder zeroed. truncated reports that the full
// text needed len(buf) bytes or more. n is the number of text bytes written.
func FormatPayload(buf []byte, format string, args ...any) (n int, truncated bool) {
	if len(buf) == 0 {
		return 0, true
	}
	text := fmt.Sprintf(format, args...)
	n = copy(buf[:len(buf)-1], text)
	clear(buf[n:])
	return n, len(text) >= len(buf)
}

// CString returns the bytes of buf up to the first NUL, or all of buf if it holds
// none.
func CString(buf []byte) string {
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		return string(buf[:i])
	}
	return string(buf)
}
