// File: server/server.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// AppServer owns listeners, live sessions and the shared services every
// session reaches through session.Server.

package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/logger"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/text/encoding"

	"github.com/momentics/hioload-session/api"
	"github.com/momentics/hioload-session/control"
	"github.com/momentics/hioload-session/internal/concurrency"
	"github.com/momentics/hioload-session/pool"
	"github.com/momentics/hioload-session/session"
	"github.com/momentics/hioload-session/transport/tcp"
)

// Logger is the logging surface of the server and its sessions.
type Logger = api.Logger

type state int

const (
	stateIdle state = iota
	stateRunning
	stateStopped
)

// AppServer accepts connections and creates one session per connection.
type AppServer[P api.Package[K], K comparable] struct {
	cfg      Config
	commands session.CommandExecutor[P, K]
	filters  api.ReceiveFilterFactory[P]

	charset    encoding.Encoding
	encoder    api.TextEncoder
	sender     api.ProtocolSender
	logger     Logger
	logCloser  io.Closer
	metrics    *control.Metrics
	probes     *control.DebugProbes
	executor   *concurrency.OrderedExecutor
	newSession func() *session.AppSession[P, K]
	tlsConfig  *tls.Config
	buffers    *pool.BytePool
	sessions   *registry[P, K]

	mu        sync.Mutex // guards state and listeners
	state     state
	listeners []*tcp.Listener
	stop      chan struct{}
	wg        sync.WaitGroup
}

var (
	_ session.Server[*nopPackage, string]          = (*AppServer[*nopPackage, string])(nil)
	_ session.OrderedDispatcher                    = (*AppServer[*nopPackage, string])(nil)
	_ session.MetricsProvider                      = (*AppServer[*nopPackage, string])(nil)
	_ session.SessionObserver[*nopPackage, string] = (*AppServer[*nopPackage, string])(nil)
)

// New builds a server dispatching packages produced by filters to
// commands. The configuration is validated here; nothing listens until
// Start.
func New[P api.Package[K], K comparable](commands session.CommandExecutor[P, K], filters api.ReceiveFilterFactory[P], opts ...Option[P, K]) (*AppServer[P, K], error) {
	if commands == nil || filters == nil {
		return nil, fmt.Errorf("%w: server needs commands and a receive filter factory", api.ErrInvalidArgument)
	}
	s := &AppServer[P, K]{
		cfg:      DefaultConfig(),
		commands: commands,
		filters:  filters,
		stop:     make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}
	s.charset, _ = s.cfg.Charset()
	if s.logger == nil {
		l, err := s.defaultLogger()
		if err != nil {
			return nil, err
		}
		s.logger = l
	}
	if s.metrics == nil {
		s.metrics = control.NewMetrics(control.WithConstLabels(prometheus.Labels{"server": s.cfg.Name}))
	}
	if s.newSession == nil {
		s.newSession = func() *session.AppSession[P, K] { return session.New[P, K]() }
	}
	if s.cfg.Workers > 0 {
		s.executor = concurrency.NewOrderedExecutor(s.cfg.Workers, concurrency.WithPanicHandler(func(r any) {
			s.logger.Errorf("%s: worker recovered: %v", s.cfg.Name, r)
		}))
	}
	s.buffers = pool.NewBytePool(s.cfg.ReceiveBufferSize)
	s.sessions = newRegistry[P, K](defaultShards, s.cfg.MaxConnectionNumber)
	s.registerProbes()
	return s, nil
}

func (s *AppServer[P, K]) registerProbes() {
	s.probes = control.NewDebugProbes()
	s.probes.RegisterProbe("server.name", func() any { return s.cfg.Name })
	s.probes.RegisterProbe("server.running", func() any { return s.Running() })
	s.probes.RegisterProbe("server.sessions", func() any { return s.SessionCount() })
	s.probes.RegisterProbe("server.addrs", func() any {
		var out []string
		for _, a := range s.Addrs() {
			out = append(out, a.String())
		}
		return out
	})
	s.probes.RegisterProbe("pool.buffers", func() any { return s.buffers.Stats() })
	if s.executor != nil {
		s.probes.RegisterProbe("executor", func() any { return s.executor.Stats() })
	}
}

func (s *AppServer[P, K]) defaultLogger() (Logger, error) {
	if s.cfg.LogFile == "" {
		return logger.Init(s.cfg.Name, s.cfg.Verbose, false, io.Discard), nil
	}
	f, err := os.OpenFile(s.cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o660)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	l := logger.Init(s.cfg.Name, s.cfg.Verbose, false, f)
	s.logCloser = multiCloser{l, f}
	return l, nil
}

// Name implements api.ServerInfo.
func (s *AppServer[P, K]) Name() string { return s.cfg.Name }

// MaxRequestLength implements api.ServerInfo.
func (s *AppServer[P, K]) MaxRequestLength() int { return s.cfg.MaxRequestLength }

func (s *AppServer[P, K]) DefaultCharset() encoding.Encoding                 { return s.charset }
func (s *AppServer[P, K]) TextEncoder() api.TextEncoder                      { return s.encoder }
func (s *AppServer[P, K]) ReceiveFilterFactory() api.ReceiveFilterFactory[P] { return s.filters }
func (s *AppServer[P, K]) Sender() api.ProtocolSender                        { return s.sender }
func (s *AppServer[P, K]) Logger() Logger                                    { return s.logger }
func (s *AppServer[P, K]) Metrics() *control.Metrics                         { return s.metrics }
func (s *AppServer[P, K]) Probes() *control.DebugProbes                      { return s.probes }

// Config returns the active configuration.
func (s *AppServer[P, K]) Config() Config { return s.cfg }

// ExecuteCommand implements session.CommandExecutor.
func (s *AppServer[P, K]) ExecuteCommand(ctx context.Context, sess *session.AppSession[P, K], pkg P) error {
	return s.commands.ExecuteCommand(ctx, sess, pkg)
}

// Executor implements session.OrderedDispatcher. It is nil unless
// Config.Workers > 0.
func (s *AppServer[P, K]) Executor() api.OrderedExecutor {
	if s.executor == nil {
		return nil
	}
	return s.executor
}

// Accept creates a session for a transport produced outside the server's
// own listeners, e.g. a WebSocket upgrade. The transport is closed when
// it cannot be served.
func (s *AppServer[P, K]) Accept(sock api.SocketSession) error {
	if !s.Running() {
		sock.Close(api.CloseServerShutdown)
		return fmt.Errorf("%w: server %s is not running", api.ErrTransportClosed, s.cfg.Name)
	}
	sess := s.newSession()
	sess.Initialize(s, sock)
	if err := s.sessions.add(sess); err != nil {
		s.logger.Warningf("%s: rejecting %s: %v", s.cfg.Name, sock.RemoteAddr(), err)
		sock.Close(api.CloseServerClosing)
		return err
	}
	s.metrics.SessionOpened()
	s.logger.Infof("%s: session %s connected from %s (%s)", s.cfg.Name, sess.SessionID(), sock.RemoteAddr(), sock.Security())
	sock.Start()
	return nil
}

// SessionClosed implements session.SessionObserver.
func (s *AppServer[P, K]) SessionClosed(sess *session.AppSession[P, K], reason api.CloseReason) {
	if !s.sessions.remove(sess) {
		return
	}
	s.metrics.SessionClosed(reason)
	s.logger.Infof("%s: session %s closed: %s", s.cfg.Name, sess.SessionID(), reason)
}

// GetSession returns a live session by id.
func (s *AppServer[P, K]) GetSession(id string) (*session.AppSession[P, K], bool) {
	return s.sessions.get(id)
}

// SessionCount returns the number of live sessions.
func (s *AppServer[P, K]) SessionCount() int {
	return s.sessions.len()
}

// Sessions returns a snapshot of the live sessions.
func (s *AppServer[P, K]) Sessions() []*session.AppSession[P, K] {
	return s.sessions.snapshot()
}

// Running reports whether Start succeeded and Stop was not called.
func (s *AppServer[P, K]) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateRunning
}

// Start opens the configured listeners and starts the idle sweeper.
func (s *AppServer[P, K]) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case stateRunning:
		return api.ErrServerRunning
	case stateStopped:
		return fmt.Errorf("%w: server %s was stopped", api.ErrTransportClosed, s.cfg.Name)
	}
	for _, lc := range s.cfg.Listeners {
		l, err := s.listen(lc)
		if err != nil {
			for _, opened := range s.listeners {
				_ = opened.Close()
			}
			s.listeners = nil
			return err
		}
		s.listeners = append(s.listeners, l)
	}
	for _, l := range s.listeners {
		s.logger.Infof("%s: listening on %s (tls=%t)", s.cfg.Name, l.Addr(), l.Secure())
		s.wg.Add(1)
		go func(l *tcp.Listener) {
			defer s.wg.Done()
			l.Serve(s.serveConn)
		}(l)
	}
	if s.cfg.ClearIdleSession {
		s.wg.Add(1)
		go s.sweepLoop()
	}
	s.state = stateRunning
	return nil
}

func (s *AppServer[P, K]) listen(lc ListenerConfig) (*tcp.Listener, error) {
	mode, err := api.ParseSecurityMode(lc.Security)
	if err != nil {
		return nil, err
	}
	var tlsCfg *tls.Config
	if mode == api.SecurityTLS {
		if tlsCfg, err = s.tlsFor(lc); err != nil {
			return nil, err
		}
	}
	return tcp.Listen(tcp.ListenerConfig{Addr: lc.Address, TLS: tlsCfg, Logger: s.logger})
}

func (s *AppServer[P, K]) tlsFor(lc ListenerConfig) (*tls.Config, error) {
	if s.tlsConfig != nil {
		return s.tlsConfig, nil
	}
	cert, err := tls.LoadX509KeyPair(lc.CertFile, lc.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load certificate for %s: %w", lc.Address, err)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}, nil
}

func (s *AppServer[P, K]) serveConn(conn net.Conn) {
	sock := tcp.New(conn,
		tcp.WithSendQueueSize(s.cfg.SendingQueueSize),
		tcp.WithBufferPool(s.buffers),
		tcp.WithTimeouts(0, s.cfg.SendTimeOut),
		tcp.WithLogger(s.logger),
	)
	_ = s.Accept(sock)
}

// Addrs returns the bound addresses of the running listeners.
func (s *AppServer[P, K]) Addrs() []net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]net.Addr, 0, len(s.listeners))
	for _, l := range s.listeners {
		out = append(out, l.Addr())
	}
	return out
}

func (s *AppServer[P, K]) sweepLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.ClearIdleSessionInterval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			if n := s.ClearIdleSessions(now); n > 0 {
				s.logger.Infof("%s: closed %d idle sessions", s.cfg.Name, n)
			}
		case <-s.stop:
			return
		}
	}
}

// ClearIdleSessions closes sessions without inbound activity for longer
// than IdleSessionTimeOut, measured at now, with api.CloseTimeOut.
func (s *AppServer[P, K]) ClearIdleSessions(now time.Time) int {
	n := 0
	for _, sess := range s.sessions.snapshot() {
		if now.Sub(sess.LastActiveTime()) > s.cfg.IdleSessionTimeOut {
			sess.CloseWith(api.CloseTimeOut)
			n++
		}
	}
	return n
}

// Stop closes the listeners, closes every session with
// api.CloseServerShutdown and releases the worker pool. It waits for the
// accept loops and the sweeper to exit.
func (s *AppServer[P, K]) Stop() error {
	s.mu.Lock()
	if s.state != stateRunning {
		s.mu.Unlock()
		return nil
	}
	s.state = stateStopped
	listeners := s.listeners
	s.listeners = nil
	s.mu.Unlock()

	close(s.stop)
	var firstErr error
	for _, l := range listeners {
		if err := l.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.wg.Wait()
	for _, sess := range s.sessions.snapshot() {
		sess.CloseWith(api.CloseServerShutdown)
	}
	if s.executor != nil {
		s.executor.Close()
	}
	s.logger.Infof("%s: stopped", s.cfg.Name)
	if s.logCloser != nil {
		_ = s.logCloser.Close()
	}
	return firstErr
}

// multiCloser closes the google logger before its file.
type multiCloser struct {
	l *logger.Logger
	f *os.File
}

func (c multiCloser) Close() error {
	c.l.Close()
	return c.f.Close()
}

type nopPackage struct{}

func (*nopPackage) Key() string { return "" }
