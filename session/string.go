// File: session/string.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// String-keyed session for line protocols.

package session

import (
	"fmt"

	"github.com/momentics/hioload-session/api"
	"github.com/momentics/hioload-session/packet"
)

// UnknownRequestPrefix starts the reply to a request without a command.
const UnknownRequestPrefix = "Unknown request: "

// StringServer is a server for string-keyed sessions.
type StringServer = Server[*packet.StringPackage, string]

// StringHooks are hooks for string-keyed sessions.
type StringHooks = Hooks[*packet.StringPackage, string]

// StringSession adds text send helpers to a string-keyed session.
type StringSession struct {
	*AppSession[*packet.StringPackage, string]
}

// NewStringSession creates a session that answers unknown requests with
// "Unknown request: <key>". Options may replace that behavior.
func NewStringSession(opts ...Option[*packet.StringPackage, string]) *StringSession {
	base := []Option[*packet.StringPackage, string]{
		WithHooks(StringHooks{HandleUnknownRequest: echoUnknownRequest}),
	}
	return &StringSession{AppSession: New(append(base, opts...)...)}
}

// Strings wraps s with the text helpers.
func Strings(s *AppSession[*packet.StringPackage, string]) *StringSession {
	return &StringSession{AppSession: s}
}

func echoUnknownRequest(s *AppSession[*packet.StringPackage, string], pkg *packet.StringPackage) {
	Strings(s).SendString(UnknownRequestPrefix + pkg.Key())
}

// SendString encodes message and sends it.
func (s *StringSession) SendString(message string) {
	data, ok := s.encode(message)
	if !ok {
		return
	}
	s.Send(data)
}

// Sendf formats, encodes and sends a message.
func (s *StringSession) Sendf(format string, args ...any) {
	s.SendString(fmt.Sprintf(format, args...))
}

// TrySendString is the non-blocking form of SendString.
func (s *StringSession) TrySendString(message string) bool {
	data, ok := s.encode(message)
	if !ok {
		return false
	}
	return s.TrySend(data)
}

// encode uses the server text encoder when it has one, else the session
// charset.
func (s *StringSession) encode(message string) ([]byte, bool) {
	var enc api.TextEncoder
	if s.server != nil {
		enc = s.server.TextEncoder()
	}
	var (
		data []byte
		err  error
	)
	if enc != nil {
		data, err = enc.EncodeString(message)
	} else {
		data, err = s.Charset().NewEncoder().Bytes([]byte(message))
	}
	if err != nil {
		s.Logger().Warningf("session %s: encode: %v", s.id, err)
		return nil, false
	}
	return data, true
}
