// File: packet/line.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package packet

import "github.com/momentics/hioload-session/api"

var _ api.ProtocolHandler = (*LineHandler)(nil)

// LineHandler terminates every outbound message so that stream clients
// can split replies the same way requests are split.
type LineHandler struct {
	terminator []byte
}

// NewLineHandler returns a handler appending terminator, or
// DefaultTerminator when empty.
func NewLineHandler(terminator string) *LineHandler {
	if terminator == "" {
		terminator = DefaultTerminator
	}
	return &LineHandler{terminator: []byte(terminator)}
}

// Transform implements api.ProtocolHandler.
func (h *LineHandler) Transform(segments [][]byte) ([][]byte, error) {
	out := make([][]byte, 0, len(segments)+1)
	out = append(out, segments...)
	return append(out, h.terminator), nil
}

// Close implements api.ProtocolHandler. There is no closing handshake.
func (h *LineHandler) Close(ch api.RawChannel, reason api.CloseReason) {
	ch.InternalClose(reason)
}
