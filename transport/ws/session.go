// File: transport/ws/session.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Session is the api.SocketSession over a gorilla WebSocket connection.
// Every queued send becomes one WebSocket message and every inbound
// message is fed to the pipeline followed by the message terminator.

package ws

import (
	"bytes"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/atomic"

	"github.com/momentics/hioload-session/api"
	"github.com/momentics/hioload-session/protocol"
)

const (
	// DefaultSendQueueSize bounds the messages waiting for the writer.
	DefaultSendQueueSize = 256

	// DefaultCloseFlushTimeout bounds the flush of queued messages and
	// the close message once the session closes.
	DefaultCloseFlushTimeout = time.Second

	// DefaultTerminator is appended to inbound messages so that line
	// oriented filters see one request per message.
	DefaultTerminator = "\r\n"
)

var _ api.SocketSession = (*Session)(nil)

// Config holds per-connection settings.
type Config struct {
	SendQueueSize     int
	MaxMessageSize    int64         // zero disables
	ReadTimeout       time.Duration // zero disables
	WriteTimeout      time.Duration // zero disables
	CloseFlushTimeout time.Duration
	MessageType       int
	Terminator        []byte
	Logger            api.Logger
}

// Option customizes Config.
type Option func(*Config)

// WithSendQueueSize sets the send queue capacity.
func WithSendQueueSize(n int) Option {
	return func(c *Config) { c.SendQueueSize = n }
}

// WithMaxMessageSize limits inbound message size.
func WithMaxMessageSize(n int64) Option {
	return func(c *Config) { c.MaxMessageSize = n }
}

// WithTimeouts sets read and write deadlines.
func WithTimeouts(read, write time.Duration) Option {
	return func(c *Config) {
		c.ReadTimeout = read
		c.WriteTimeout = write
	}
}

// WithBinaryMessages sends binary instead of text messages.
func WithBinaryMessages() Option {
	return func(c *Config) { c.MessageType = websocket.BinaryMessage }
}

// WithTerminator replaces the terminator appended to inbound messages.
// An empty terminator feeds messages unchanged.
func WithTerminator(t string) Option {
	return func(c *Config) { c.Terminator = []byte(t) }
}

// WithLogger sets the logger.
func WithLogger(l api.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// Session is one WebSocket connection.
type Session struct {
	id   string
	conn *websocket.Conn
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

// New wraps an established connection.
func New(conn *websocket.Conn, opts ...Option) *Session {
	cfg := Config{
		SendQueueSize:     DefaultSendQueueSize,
		CloseFlushTimeout: DefaultCloseFlushTimeout,
		MessageType:       websocket.TextMessage,
		Terminator:        []byte(DefaultTerminator),
	}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = DefaultSendQueueSize
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
	if cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	s.connected.Store(true)
	return s
}

func (s *Session) SessionID() string    { return s.id }
func (s *Session) LocalAddr() net.Addr  { return s.conn.LocalAddr() }
func (s *Session) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }
func (s *Session) Connected() bool      { return s.connected.Load() }

// Conn returns the underlying WebSocket connection.
func (s *Session) Conn() *websocket.Conn { return s.conn }

func (s *Session) Security() api.SecurityMode {
	return api.SecurityMode(s.security.Load())
}

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
		if s.cfg.ReadTimeout > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			if s.Connected() {
				s.Close(reasonForReadError(err))
			}
			return
		}
		s.app.SetLastActiveTime(time.Now())
		if len(s.cfg.Terminator) > 0 && !bytes.HasSuffix(msg, s.cfg.Terminator) {
			msg = append(msg, s.cfg.Terminator...)
		}
		if perr := pipeline.Process(msg); perr != nil {
			s.cfg.Logger.Warningf("ws %s: rejecting message from %s: %v", s.id, s.conn.RemoteAddr(), perr)
			s.Close(api.ReasonForError(perr))
			return
		}
	}
}

// reasonForReadError maps a close message from the peer to its reason.
func reasonForReadError(err error) api.CloseReason {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		if ce.Code == websocket.CloseAbnormalClosure {
			return api.CloseSocketError
		}
		if r := protocol.ReasonForCloseCode(uint16(ce.Code)); r != api.CloseUnknown {
			return r
		}
		return api.CloseClientClosing
	}
	if errors.Is(err, websocket.ErrReadLimit) {
		return api.CloseProtocolError
	}
	return api.ReasonForError(err)
}

func (s *Session) writeLoop() {
	defer close(s.done)
	defer s.conn.Close()
	for {
		select {
		case segs := <-s.sendQueue:
			if err := s.write(segs, s.cfg.WriteTimeout); err != nil {
				s.cfg.Logger.Warningf("ws %s: write: %v", s.id, err)
				s.Close(api.ReasonForError(err))
				return
			}
		case <-s.closed:
			s.flush()
			return
		}
	}
}

// flush writes what was queued before close and the close message.
func (s *Session) flush() {
	deadline := time.Now().Add(s.cfg.CloseFlushTimeout)
	for {
		select {
		case segs := <-s.sendQueue:
			if err := s.write(segs, time.Until(deadline)); err != nil {
				return
			}
		default:
			s.writeClose(deadline)
			return
		}
	}
}

func (s *Session) write(segs [][]byte, timeout time.Duration) error {
	if timeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	w, err := s.conn.NextWriter(s.cfg.MessageType)
	if err != nil {
		return err
	}
	for _, seg := range segs {
		if _, err := w.Write(seg); err != nil {
			_ = w.Close()
			return err
		}
	}
	return w.Close()
}

func (s *Session) writeClose(deadline time.Time) {
	reason := s.CloseReason()
	code := protocol.CloseCodeFor(reason)
	if code == protocol.CloseAbnormalClosure {
		// the connection is already broken
		return
	}
	msg := websocket.FormatCloseMessage(int(code), reason.String())
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, deadline)
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
// application session synchronously; the writer flushes the queue, sends
// the close message and releases the connection.
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
		_ = s.conn.UnderlyingConn().SetWriteDeadline(time.Now().Add(s.cfg.CloseFlushTimeout))
	} else {
		s.writeClose(time.Now().Add(s.cfg.CloseFlushTimeout))
		_ = s.conn.Close()
		close(s.done)
	}
	if s.app != nil {
		s.app.TransportClosed(reason)
	}
}
