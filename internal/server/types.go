package server

import (
	"errors"
	"net"
	"strings"
)

var (
	// ErrConnClosed is returned when sending to a client that is closing or closed.
	ErrConnClosed = errors.New("server: connection closed")
	// ErrSendBufferFull is returned when a client's outbound queue has no room.
	ErrSendBufferFull = errors.New("server: send buffer full")
)

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil || errors.Is(err, net.ErrClosed) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
