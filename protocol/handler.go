// File: protocol/handler.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// FrameHandler frames outbound payloads and performs the closing
// handshake before the transport goes away.

package protocol

import (
	"fmt"

	"go.uber.org/atomic"

	"github.com/momentics/hioload-session/api"
)

var _ api.ProtocolHandler = (*FrameHandler)(nil)

// FrameHandler is a per-session api.ProtocolHandler.
type FrameHandler struct {
	opcode  byte
	closing atomic.Bool
}

// HandlerOption customizes a FrameHandler.
type HandlerOption func(*FrameHandler)

// WithBinaryFrames sends binary instead of text frames.
func WithBinaryFrames() HandlerOption {
	return func(h *FrameHandler) {
		h.opcode = OpcodeBinary
	}
}

// NewFrameHandler creates a handler sending text frames.
func NewFrameHandler(opts ...HandlerOption) *FrameHandler {
	h := &FrameHandler{opcode: OpcodeText}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Transform prepends a frame header; payload segments are passed through
// without copying. Nothing is sent once the closing handshake started.
func (h *FrameHandler) Transform(segments [][]byte) ([][]byte, error) {
	if h.closing.Load() {
		return nil, fmt.Errorf("%w: closing handshake in progress", api.ErrTransportClosed)
	}
	n := 0
	for _, s := range segments {
		n += len(s)
	}
	if n > MaxFramePayload {
		return nil, fmt.Errorf("%w: frame payload of %d bytes", api.ErrRequestTooLarge, n)
	}
	out := make([][]byte, 0, len(segments)+1)
	out = append(out, AppendFrameHeader(make([]byte, 0, MaxFrameHeaderLen), h.opcode, n))
	return append(out, segments...), nil
}

// Close queues a close frame with the status mapped from reason, once,
// then closes the transport. The frame is dropped when the send queue is
// full so a peer that stopped reading cannot hold the close.
func (h *FrameHandler) Close(ch api.RawChannel, reason api.CloseReason) {
	if h.closing.CAS(false, true) {
		_ = ch.InternalTrySend([][]byte{EncodeCloseFrame(CloseCodeFor(reason), reason.String())})
	}
	ch.InternalClose(reason)
}

// Closing reports whether Close was called.
func (h *FrameHandler) Closing() bool {
	return h.closing.Load()
}
