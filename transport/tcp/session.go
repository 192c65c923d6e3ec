// File: transport/tcp/session.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Session is the api.SocketSession over a stream net.Conn: one read loop
// feeding the pipeline from pooled buffers and one write loop draining a
// bounded send queue with scatter writes.

package tcp

import (
	"crypto/tls"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"github.com/momentics/hioload-session/api"
	"github.com/momentics/hioload-session/pool"
)

const (
	// DefaultSendQueueSize bounds the messages waiting for the writer.
	DefaultSendQueueSize = 256

	// DefaultCloseFlushTimeout bounds how long queued messages are
	// flushed once the session closes.
	DefaultCloseFlushTimeout = time.Second

	// maxBatch caps the messages merged into one scatter write.
	maxBatch = 64
)

var _ api.SocketSession = (*Session)(nil)
var _ api.BufferRecycler = (*Session)(nil)

// Config holds per-connection settings.
type Config struct {
	SendQueueSize     int
	ReceiveBufferSize int
	ReadTimeout       time.Duration // zero disables
	WriteTimeout      time.Duration // zero disables
	CloseFlushTimeout time.Duration
	Pool              *pool.BytePool
	Logger            api.Logger
}

// Option customizes Config.
type Option func(*Config)

// WithSendQueueSize sets the send queue capacity.
func WithSendQueueSize(n int) Option {
	return func(c *Config) { c.SendQueueSize = n }
}

// WithReceiveBufferSize sets the read buffer size used without a pool.
func WithReceiveBufferSize(n int) Option {
	return func(c *Config) { c.ReceiveBufferSize = n }
}

// WithTimeouts sets read and write deadlines.
func WithTimeouts(read, write time.Duration) Option {
	return func(c *Config) {
		c.ReadTimeout = read
		c.WriteTimeout = write
	}
}

// WithBufferPool shares a receive buffer pool between connections.
func WithBufferPool(p *pool.BytePool) Option {
	return func(c *Config) { c.Pool = p }
}

// WithLogger sets the logger.
func WithLogger(l api.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// Session is a TCP or TLS connection.
type Session struct {
	id   string
	conn net.Conn
	cfg  Config
	app  api.AppSession

	security  atomic.Int32
	connected atomic.Bool
	reason    atomic.Int32

	mu      sync.Mutex // guards started and closing
	started bool
	closing bool

	sendQueue chan [][]byte
	closed    chan struct{}
	closeFlag atomic.Bool
	done      chan struct{}
}

// New wraps conn. TLS connections start in api.SecurityTLS mode.
func New(conn net.Conn, opts ...Option) *Session {
	cfg := Config{
		SendQueueSize:     DefaultSendQueueSize,
		ReceiveBufferSize: pool.DefaultBufferSize,
		CloseFlushTimeout: DefaultCloseFlushTimeout,
	}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = DefaultSendQueueSize
	}
	if cfg.Pool == nil {
		cfg.Pool = pool.NewBytePool(cfg.ReceiveBufferSize)
	}
	if cfg.Logger == nil {
		cfg.Logger = api.NopLogger{}
	}
	s := &Session{
		id:        uuid.NewString(),
		conn:      conn,
		cfg:       cfg,
		sendQueue: make(chan [][]byte, cfg.SendQueueSize),
		closed:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	if _, ok := conn.(*tls.Conn); ok {
		s.security.Store(int32(api.SecurityTLS))
	}
	s.connected.Store(true)
	return s
}

func (s *Session) SessionID() string    { return s.id }
func (s *Session) LocalAddr() net.Addr  { return s.conn.LocalAddr() }
func (s *Session) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }
func (s *Session) Connected() bool      { return s.connected.Load() }

// Conn returns the underlying connection.
func (s *Session) Conn() net.Conn { return s.conn }

// Security implements api.SocketSession.
func (s *Session) Security() api.SecurityMode {
	return api.SecurityMode(s.security.Load())
}

// SetSecurity implements api.SocketSession.
func (s *Session) SetSecurity(mode api.SecurityMode) {
	s.security.Store(int32(mode))
}

// Initialize implements api.SocketSession.
func (s *Session) Initialize(app api.AppSession) {
	s.app = app
}

// Start builds the pipeline, starts both loops and signals the
// application session.
func (s *Session) Start() {
	s.mu.Lock()
	if s.app == nil || s.started || s.closing {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()
	pipeline := s.app.CreatePipelineProcessor()
	go s.writeLoop()
	s.app.StartSession()
	go s.readLoop(pipeline)
}

// Done is closed once the connection is released.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// CloseReason returns the reason of the close, api.CloseUnknown while open.
func (s *Session) CloseReason() api.CloseReason {
	return api.CloseReason(s.reason.Load())
}

func (s *Session) readLoop(pipeline api.PipelineProcessor) {
	for {
		buf := s.cfg.Pool.GetBuffer()
		if s.cfg.ReadTimeout > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}
		n, err := s.conn.Read(buf)
		if n > 0 {
			s.app.SetLastActiveTime(time.Now())
			if perr := pipeline.Process(buf[:n]); perr != nil {
				s.cfg.Logger.Warningf("tcp %s: rejecting input from %s: %v", s.id, s.conn.RemoteAddr(), perr)
				s.Close(api.ReasonForError(perr))
				return
			}
		} else {
			s.cfg.Pool.PutBuffer(buf)
		}
		if err != nil {
			if s.Connected() {
				s.Close(api.ReasonForError(err))
			}
			return
		}
	}
}

func (s *Session) writeLoop() {
	defer close(s.done)
	defer s.conn.Close()
	batch := make(net.Buffers, 0, maxBatch)
	for {
		select {
		case segs := <-s.sendQueue:
			batch = s.collect(append(batch[:0], segs...))
			if err := s.write(batch, s.cfg.WriteTimeout); err != nil {
				s.cfg.Logger.Warningf("tcp %s: write: %v", s.id, err)
				s.Close(api.ReasonForError(err))
				return
			}
		case <-s.closed:
			s.flush(batch[:0])
			return
		}
	}
}

// collect appends queued messages to batch without blocking.
func (s *Session) collect(batch net.Buffers) net.Buffers {
	for i := 1; i < maxBatch; i++ {
		select {
		case segs := <-s.sendQueue:
			batch = append(batch, segs...)
		default:
			return batch
		}
	}
	return batch
}

// flush writes what was queued before close, bounded by CloseFlushTimeout.
func (s *Session) flush(batch net.Buffers) {
	for {
		select {
		case segs := <-s.sendQueue:
			batch = append(batch, segs...)
		default:
			if len(batch) > 0 {
				_ = s.write(batch, s.cfg.CloseFlushTimeout)
			}
			return
		}
	}
}

func (s *Session) write(batch net.Buffers, timeout time.Duration) error {
	if timeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	_, err := batch.WriteTo(s.conn)
	return err
}

// Send implements api.SocketSession. Segments must not be modified after
// the call.
func (s *Session) Send(segments [][]byte) {
	if !s.Connected() {
		return
	}
	select {
	case s.sendQueue <- segments:
	case <-s.closed:
	}
}

// TrySend implements api.SocketSession.
func (s *Session) TrySend(segments [][]byte) bool {
	if !s.Connected() {
		return false
	}
	select {
	case s.sendQueue <- segments:
		return true
	default:
		return false
	}
}

// Close implements api.SocketSession. The first call notifies the
// application session synchronously; the connection is released by the
// writer after a bounded flush.
func (s *Session) Close(reason api.CloseReason) {
	if !s.closeFlag.CAS(false, true) {
		return
	}
	s.reason.Store(int32(reason))
	s.connected.Store(false)
	s.mu.Lock()
	s.closing = true
	started := s.started
	s.mu.Unlock()
	close(s.closed)
	if started {
		// unblock a read loop waiting on an idle peer and bound a
		// write stuck on a peer that stopped reading
		_ = s.conn.SetReadDeadline(time.Now())
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.CloseFlushTimeout))
	} else {
		_ = s.conn.Close()
		close(s.done)
	}
	if s.app != nil {
		s.app.TransportClosed(reason)
	}
}

// RecycleBuffer implements api.BufferRecycler.
func (s *Session) RecycleBuffer(buf []byte) {
	s.cfg.Pool.PutBuffer(buf)
}
