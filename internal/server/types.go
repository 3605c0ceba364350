// Package server defines the echo reply format and utility helpers that
// are reused across client and hub logic.
package server

import (
	"bytes"
	"strings"
)

// replacementChar stands in for every invalid UTF-8 sequence in a reply.
var replacementChar = []byte("\uFFFD")

// Reply builds the text frame echoed back for payload. Valid UTF-8 is copied
// verbatim; each run of invalid bytes, as a binary frame may carry, becomes
// U+FFFD so the reply is always a legal text frame. An empty payload yields
// the prefix alone.
func Reply(prefix string, payload []byte) []byte {
	text := bytes.ToValidUTF8(payload, replacementChar)
	reply := make([]byte, 0, len(prefix)+len(text))
	reply = append(reply, prefix...)
	return append(reply, text...)
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset by peer")
}
