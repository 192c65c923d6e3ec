// File: api/handler.go
// Package api defines protocol handler and sender contracts.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// RawChannel is the send/close pair that bypasses the protocol handler and
// talks to the transport directly. Only protocol handlers receive one.
type RawChannel interface {
	InternalSend(segments [][]byte)
	InternalTrySend(segments [][]byte) bool
	InternalClose(reason CloseReason)
}

// ProtocolHandler intercepts outbound payloads and session closes for
// protocols that need framing or encryption.
type ProtocolHandler interface {
	// Transform converts application segments into wire segments.
	Transform(segments [][]byte) ([][]byte, error)

	// Close closes the session. The handler decides whether and when to
	// call ch.InternalClose, typically after emitting a close frame.
	Close(ch RawChannel, reason CloseReason)
}

// ProtocolSender is the server-wide outbound path shared by all sessions.
type ProtocolSender interface {
	Send(sock SocketSession, handler ProtocolHandler, segments [][]byte)
	TrySend(sock SocketSession, handler ProtocolHandler, segments [][]byte) bool
}

// TextEncoder encodes a string message to bytes.
type TextEncoder interface {
	EncodeString(s string) ([]byte, error)
}

// TextEncoderFunc adapts a function to TextEncoder.
type TextEncoderFunc func(s string) ([]byte, error)

// EncodeString implements TextEncoder.
func (f TextEncoderFunc) EncodeString(s string) ([]byte, error) { return f(s) }
