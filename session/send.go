// File: session/send.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Outbound path. Every write goes through the server's protocol sender so
// an attached protocol handler can frame it.

package session

import (
	"github.com/momentics/hioload-session/api"
)

// Send writes data, blocking until the transport accepts it. It is a no-op
// once the session is closed.
func (s *AppSession[P, K]) Send(data []byte) {
	s.SendSegments([][]byte{data})
}

// SendRange writes data[offset:offset+length]. An out of range request is
// logged and dropped.
func (s *AppSession[P, K]) SendRange(data []byte, offset, length int) {
	seg, ok := s.slice(data, offset, length)
	if !ok {
		return
	}
	s.SendSegments([][]byte{seg})
}

// SendSegments writes the segments as one message, in order.
func (s *AppSession[P, K]) SendSegments(segments [][]byte) {
	if !s.Connected() {
		return
	}
	s.sender().Send(s.sock, s.handler, segments)
}

// TrySend writes data if the transport can take it without blocking.
// It returns false when the session is closed or the send queue is full.
func (s *AppSession[P, K]) TrySend(data []byte) bool {
	return s.TrySendSegments([][]byte{data})
}

// TrySendRange is the non-blocking form of SendRange.
func (s *AppSession[P, K]) TrySendRange(data []byte, offset, length int) bool {
	seg, ok := s.slice(data, offset, length)
	if !ok {
		return false
	}
	return s.TrySendSegments([][]byte{seg})
}

// TrySendSegments is the non-blocking form of SendSegments.
func (s *AppSession[P, K]) TrySendSegments(segments [][]byte) bool {
	if s.Connected() && s.sender().TrySend(s.sock, s.handler, segments) {
		return true
	}
	s.metrics().SendRejected()
	return false
}

func (s *AppSession[P, K]) slice(data []byte, offset, length int) ([]byte, bool) {
	if offset < 0 || length < 0 || offset > len(data) || length > len(data)-offset {
		s.Logger().Warningf("session %s: send range [%d:+%d] outside %d bytes", s.id, offset, length, len(data))
		return nil, false
	}
	return data[offset : offset+length], true
}

func (s *AppSession[P, K]) sender() api.ProtocolSender {
	if snd := s.server.Sender(); snd != nil {
		return snd
	}
	return directSender{}
}

// directSender applies the protocol handler transform and writes straight
// to the transport.
type directSender struct{}

func (directSender) Send(sock api.SocketSession, h api.ProtocolHandler, segments [][]byte) {
	if h != nil {
		out, err := h.Transform(segments)
		if err != nil {
			sock.Close(api.ReasonForError(err))
			return
		}
		segments = out
	}
	sock.Send(segments)
}

func (directSender) TrySend(sock api.SocketSession, h api.ProtocolHandler, segments [][]byte) bool {
	if h != nil {
		out, err := h.Transform(segments)
		if err != nil {
			return false
		}
		segments = out
	}
	return sock.TrySend(segments)
}
