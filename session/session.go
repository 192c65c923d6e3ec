// File: session/session.go
// Package session
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Core application session: per-connection state, lifecycle and close path.

package session

import (
	"context"
	"net"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/atomic"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"

	"github.com/momentics/hioload-session/api"
	"github.com/momentics/hioload-session/control"
)

const tracerName = "github.com/momentics/hioload-session/session"

// itemsCapacity is the initial size hint of the per-session store.
const itemsCapacity = 10

var _ api.AppSession = (*AppSession[*nopPackage, string])(nil)
var _ api.SessionInfo = (*AppSession[*nopPackage, string])(nil)
var _ api.ThreadExecutingContext = (*AppSession[*nopPackage, string])(nil)
var _ api.PackageHandler[*nopPackage] = (*AppSession[*nopPackage, string])(nil)

// AppSession is one logical client connection. It is owned by exactly one
// transport and holds non-owning references to its server and the
// optional protocol handler.
//
// The command cursor and the item store belong to the goroutine that
// dispatches this session's packages and are not locked.
type AppSession[P api.Package[K], K comparable] struct {
	ThreadAffinity

	id      string
	server  Server[P, K]
	sock    api.SocketSession
	handler api.ProtocolHandler
	hooks   Hooks[P, K]
	tracer  trace.Tracer

	// ctx is handed to every command and cancelled once the transport
	// is gone.
	ctx    context.Context
	cancel context.CancelFunc

	startTime  time.Time
	lastActive atomic.Int64
	connected  atomic.Bool

	prevCommand    K
	currentCommand K

	charset  encoding.Encoding
	items    map[any]any
	pipeline *Pipeline[P]
}

// New creates an uninitialized session.
func New[P api.Package[K], K comparable](opts ...Option[P, K]) *AppSession[P, K] {
	s := &AppSession[P, K]{
		tracer: otel.Tracer(tracerName),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	for _, o := range opts {
		o(s)
	}
	return s
}

// Initialize binds the session to its server and transport. It must be
// called exactly once.
func (s *AppSession[P, K]) Initialize(server Server[P, K], sock api.SocketSession) {
	s.server = server
	s.charset = server.DefaultCharset()
	s.sock = sock
	s.id = sock.SessionID()
	now := time.Now()
	s.startTime = now
	s.lastActive.Store(now.UnixNano())
	s.connected.Store(true)
	sock.Initialize(s)
	if s.hooks.OnInit != nil {
		s.hooks.OnInit(s)
	}
}

// StartSession is called by the transport once it is ready for traffic.
func (s *AppSession[P, K]) StartSession() {
	if s.hooks.OnSessionStarted != nil {
		s.hooks.OnSessionStarted(s)
	}
}

// Close closes the session with api.CloseServerClosing.
func (s *AppSession[P, K]) Close() {
	s.CloseWith(api.CloseServerClosing)
}

// CloseWith closes the session. With a protocol handler attached the
// handler owns the close; otherwise the transport is closed directly.
// Closing an already closed session is a no-op.
func (s *AppSession[P, K]) CloseWith(reason api.CloseReason) {
	if s.sock == nil {
		return
	}
	if h := s.handler; h != nil {
		h.Close(rawChannel[P, K]{s: s}, reason)
		return
	}
	s.sock.Close(reason)
}

// TransportClosed is invoked by the transport exactly once when the
// connection is gone.
func (s *AppSession[P, K]) TransportClosed(reason api.CloseReason) {
	if !s.connected.CAS(true, false) {
		return
	}
	s.cancel()
	if d, ok := s.server.(OrderedDispatcher); ok {
		if ex := d.Executor(); ex != nil {
			ex.Unbind(s)
		}
	}
	if s.hooks.OnSessionClosed != nil {
		s.hooks.OnSessionClosed(s, reason)
	}
	if obs, ok := s.server.(SessionObserver[P, K]); ok {
		obs.SessionClosed(s, reason)
	}
}

// HandleException is called with every error a command produced.
func (s *AppSession[P, K]) HandleException(err error) {
	if s.hooks.HandleException != nil {
		s.hooks.HandleException(s, err)
		return
	}
	s.Logger().Errorf("session %s: %v", s.id, err)
	s.CloseWith(api.CloseApplicationError)
}

// HandleUnknownRequest is called for packages without a registered command.
func (s *AppSession[P, K]) HandleUnknownRequest(pkg P) {
	if s.hooks.HandleUnknownRequest != nil {
		s.hooks.HandleUnknownRequest(s, pkg)
	}
}

// Context is cancelled when the session closes. Commands receive a
// context derived from it.
func (s *AppSession[P, K]) Context() context.Context { return s.ctx }

// SessionID returns the transport-assigned identifier.
func (s *AppSession[P, K]) SessionID() string { return s.id }

// Server returns the owning server.
func (s *AppSession[P, K]) Server() Server[P, K] { return s.server }

// SocketSession returns the transport handle.
func (s *AppSession[P, K]) SocketSession() api.SocketSession { return s.sock }

// Connected reports whether the session is between Initialize and close.
func (s *AppSession[P, K]) Connected() bool { return s.connected.Load() }

// StartTime returns when Initialize ran.
func (s *AppSession[P, K]) StartTime() time.Time { return s.startTime }

// LastActiveTime returns the time of the latest inbound activity.
func (s *AppSession[P, K]) LastActiveTime() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

// SetLastActiveTime records inbound activity.
func (s *AppSession[P, K]) SetLastActiveTime(t time.Time) {
	s.lastActive.Store(t.UnixNano())
}

// Charset returns the text encoding of the session.
func (s *AppSession[P, K]) Charset() encoding.Encoding {
	if s.charset == nil {
		return unicode.UTF8
	}
	return s.charset
}

// SetCharset overrides the server default for this session.
func (s *AppSession[P, K]) SetCharset(cs encoding.Encoding) { s.charset = cs }

// PrevCommand returns the key dispatched before the current one.
func (s *AppSession[P, K]) PrevCommand() K { return s.prevCommand }

// CurrentCommand returns the key being or last dispatched.
func (s *AppSession[P, K]) CurrentCommand() K { return s.currentCommand }

// Items returns the per-session store, creating it on first use.
func (s *AppSession[P, K]) Items() map[any]any {
	if s.items == nil {
		s.items = make(map[any]any, itemsCapacity)
	}
	return s.items
}

// ProtocolHandler returns the attached protocol handler, if any.
func (s *AppSession[P, K]) ProtocolHandler() api.ProtocolHandler { return s.handler }

// SetProtocolHandler attaches h. Call it before the transport starts,
// typically from OnInit.
func (s *AppSession[P, K]) SetProtocolHandler(h api.ProtocolHandler) { s.handler = h }

// LocalAddr returns the local endpoint.
func (s *AppSession[P, K]) LocalAddr() net.Addr { return s.sock.LocalAddr() }

// RemoteAddr returns the remote endpoint.
func (s *AppSession[P, K]) RemoteAddr() net.Addr { return s.sock.RemoteAddr() }

// Security returns the transport security mode.
func (s *AppSession[P, K]) Security() api.SecurityMode { return s.sock.Security() }

// SetSecurity changes the transport security mode.
func (s *AppSession[P, K]) SetSecurity(mode api.SecurityMode) { s.sock.SetSecurity(mode) }

// Logger returns the server logger.
func (s *AppSession[P, K]) Logger() Logger {
	if s.server != nil {
		if l := s.server.Logger(); l != nil {
			return l
		}
	}
	return api.NopLogger{}
}

func (s *AppSession[P, K]) metrics() *control.Metrics {
	if mp, ok := s.server.(MetricsProvider); ok {
		return mp.Metrics()
	}
	return nil
}

// rawChannel is the handler-bypassing send/close pair handed to
// protocol handlers.
type rawChannel[P api.Package[K], K comparable] struct {
	s *AppSession[P, K]
}

func (c rawChannel[P, K]) InternalSend(segments [][]byte) {
	c.s.sock.Send(segments)
}

func (c rawChannel[P, K]) InternalTrySend(segments [][]byte) bool {
	return c.s.sock.TrySend(segments)
}

func (c rawChannel[P, K]) InternalClose(reason api.CloseReason) {
	c.s.sock.Close(reason)
}

// nopPackage backs the compile-time interface checks.
type nopPackage struct{}

func (*nopPackage) Key() string { return "" }
