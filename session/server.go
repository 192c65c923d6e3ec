// File: session/server.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Capability contracts a session expects from its server.

package session

import (
	"context"

	"golang.org/x/text/encoding"

	"github.com/momentics/hioload-session/api"
	"github.com/momentics/hioload-session/control"
)

// Logger is the logging surface sessions use.
type Logger = api.Logger

// CommandExecutor runs the command registered for a package key.
// Unknown keys must be routed to s.HandleUnknownRequest.
type CommandExecutor[P api.Package[K], K comparable] interface {
	ExecuteCommand(ctx context.Context, s *AppSession[P, K], pkg P) error
}

// Server is shared by every session and must be safe for concurrent use.
type Server[P api.Package[K], K comparable] interface {
	api.ServerInfo
	CommandExecutor[P, K]

	DefaultCharset() encoding.Encoding
	// TextEncoder may return nil; sessions then encode with their charset.
	TextEncoder() api.TextEncoder
	ReceiveFilterFactory() api.ReceiveFilterFactory[P]
	Sender() api.ProtocolSender
	Logger() Logger
}

// OrderedDispatcher is implemented by servers that run commands on a
// shared worker pool instead of the transport's read goroutine.
type OrderedDispatcher interface {
	Executor() api.OrderedExecutor
}

// MetricsProvider is implemented by servers exporting session metrics.
type MetricsProvider interface {
	Metrics() *control.Metrics
}

// SessionObserver is notified after a session's OnSessionClosed hook ran.
type SessionObserver[P api.Package[K], K comparable] interface {
	SessionClosed(s *AppSession[P, K], reason api.CloseReason)
}
