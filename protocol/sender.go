// File: protocol/sender.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"github.com/momentics/hioload-session/api"
)

var _ api.ProtocolSender = Sender{}

// Sender is the default api.ProtocolSender. It runs the protocol
// handler's transform, when there is a handler, and hands the result to
// the transport.
type Sender struct{}

// NewSender returns the default sender.
func NewSender() Sender { return Sender{} }

// Send implements api.ProtocolSender. A payload the handler refuses closes
// the transport with api.CloseProtocolError.
func (Sender) Send(sock api.SocketSession, handler api.ProtocolHandler, segments [][]byte) {
	if handler != nil {
		out, err := handler.Transform(segments)
		if err != nil {
			sock.Close(api.CloseProtocolError)
			return
		}
		segments = out
	}
	sock.Send(segments)
}

// TrySend implements api.ProtocolSender. A payload the handler refuses is
// reported as not accepted.
func (Sender) TrySend(sock api.SocketSession, handler api.ProtocolHandler, segments [][]byte) bool {
	if handler != nil {
		out, err := handler.Transform(segments)
		if err != nil {
			return false
		}
		segments = out
	}
	return sock.TrySend(segments)
}
