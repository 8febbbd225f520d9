// Package runtime maintains the WebSocket connection to the remote agent
// runtime: request/response RPCs for the coordinator, and an event stream
// that feeds approval deltas and agent state into the rest of the process.
package runtime

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/coder/websocket"
)

// Sentinel errors for the runtime package.
var (
	ErrNotConnected = errors.New("runtime: not connected")
	ErrDisconnected = errors.New("runtime: connection lost before response")
	ErrHelloRejected = errors.New("runtime: hello rejected")
)

// IsDisconnect reports whether err means the connection dropped with the
// request outcome unknown, as opposed to the runtime rejecting the request.
func IsDisconnect(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotConnected) || errors.Is(err, ErrDisconnected) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, context.Canceled) {
		return true
	}
	return websocket.CloseStatus(err) != -1
}
