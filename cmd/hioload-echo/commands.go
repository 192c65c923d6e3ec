package main

import (
	"context"
	"strconv"
	"time"

	"github.com/momentics/hioload-session/command"
	"github.com/momentics/hioload-session/packet"
	"github.com/momentics/hioload-session/session"
	"github.com/momentics/hioload-session/transport/ws"
)

// commandTimeout bounds a single command.
const commandTimeout = 5 * time.Second

// newCommands registers the demo command set.
func newCommands() *command.StringRegistry {
	reg := command.NewStringRegistry()
	reg.Use(
		command.Logging[*packet.StringPackage, string](),
		command.Timeout[*packet.StringPackage, string](commandTimeout),
	)
	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}
	must(reg.Register("ECHO", command.String(echo)))
	must(reg.Register("ADD", command.String(arithmetic(func(a, b int64) int64 { return a + b }, 0))))
	must(reg.Register("MULT", command.String(arithmetic(func(a, b int64) int64 { return a * b }, 1))))
	must(reg.Register("QUIT", command.String(quit)))
	return reg
}

func echo(_ context.Context, s *session.StringSession, pkg *packet.StringPackage) error {
	s.SendString(pkg.Body)
	return nil
}

// arithmetic folds the integer parameters with op, starting from the
// identity element.
func arithmetic(op func(a, b int64) int64, identity int64) command.StringHandlerFunc {
	return func(_ context.Context, s *session.StringSession, pkg *packet.StringPackage) error {
		result := identity
		for _, p := range pkg.Parameters {
			v, err := strconv.ParseInt(p, 10, 64)
			if err != nil {
				s.SendString("ERR not a number: " + p)
				return nil
			}
			result = op(result, v)
		}
		s.SendString(strconv.FormatInt(result, 10))
		return nil
	}
}

func quit(_ context.Context, s *session.StringSession, _ *packet.StringPackage) error {
	s.SendString("BYE")
	s.Close()
	return nil
}

// newLineSession terminates replies on stream transports. WebSocket
// messages are already delimited.
func newLineSession() *session.AppSession[*packet.StringPackage, string] {
	return session.NewStringSession(session.WithHooks(session.StringHooks{
		OnInit: func(s *session.AppSession[*packet.StringPackage, string]) {
			if _, ok := s.SocketSession().(*ws.Session); !ok {
				s.SetProtocolHandler(packet.NewLineHandler(""))
			}
		},
	})).AppSession
}
