// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake socket session for testing.
// Provides predictable, controllable behavior for the transport contract.

package fake

import (
	"bytes"
	"net"
	"sync"
	"time"

	"github.com/momentics/hioload-session/api"
)

var _ api.SocketSession = (*Socket)(nil)
var _ api.BufferRecycler = (*Socket)(nil)

// Socket is an in-memory api.SocketSession that records every write and
// close.
type Socket struct {
	mu        sync.Mutex
	id        string
	local     net.Addr
	remote    net.Addr
	security  api.SecurityMode
	app       api.AppSession
	pipeline  api.PipelineProcessor
	sent      [][]byte
	closed    bool
	reasons   []api.CloseReason
	closeHits int
	rejectTry bool
	recycled  int
	started   bool
}

// NewSocket creates a connected fake socket.
func NewSocket(id string) *Socket {
	return &Socket{
		id:     id,
		local:  &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 2012},
		remote: &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000},
	}
}

func (s *Socket) SessionID() string    { return s.id }
func (s *Socket) LocalAddr() net.Addr  { return s.local }
func (s *Socket) RemoteAddr() net.Addr { return s.remote }

// Connected implements api.SocketSession.
func (s *Socket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// Security implements api.SocketSession.
func (s *Socket) Security() api.SecurityMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.security
}

// SetSecurity implements api.SocketSession.
func (s *Socket) SetSecurity(mode api.SecurityMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.security = mode
}

// Initialize implements api.SocketSession.
func (s *Socket) Initialize(app api.AppSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.app = app
}

// Start builds the pipeline and signals the application session.
func (s *Socket) Start() {
	s.mu.Lock()
	app := s.app
	s.started = true
	s.mu.Unlock()
	if app == nil {
		return
	}
	p := app.CreatePipelineProcessor()
	s.mu.Lock()
	s.pipeline = p
	s.mu.Unlock()
	app.StartSession()
}

// Feed pushes inbound bytes through the pipeline the way a read loop
// would. A pipeline error closes the socket with the mapped reason.
func (s *Socket) Feed(data []byte) error {
	s.mu.Lock()
	p, app := s.pipeline, s.app
	s.mu.Unlock()
	if p == nil {
		return api.ErrTransportClosed
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	if err := p.Process(buf); err != nil {
		s.Close(api.ReasonForError(err))
		return err
	}
	if app != nil {
		app.SetLastActiveTime(time.Now())
	}
	return nil
}

// Send implements api.SocketSession. Writes after close are dropped.
func (s *Socket) Send(segments [][]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.sent = append(s.sent, bytes.Join(segments, nil))
}

// TrySend implements api.SocketSession.
func (s *Socket) TrySend(segments [][]byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.rejectTry {
		return false
	}
	s.sent = append(s.sent, bytes.Join(segments, nil))
	return true
}

// Close implements api.SocketSession. Only the first call reaches the
// application session.
func (s *Socket) Close(reason api.CloseReason) {
	s.mu.Lock()
	s.closeHits++
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.reasons = append(s.reasons, reason)
	app := s.app
	s.mu.Unlock()
	if app != nil {
		app.TransportClosed(reason)
	}
}

// RecycleBuffer implements api.BufferRecycler.
func (s *Socket) RecycleBuffer([]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recycled++
}

// RejectTrySend makes TrySend report a full queue.
func (s *Socket) RejectTrySend(reject bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectTry = reject
}

// Sent returns a copy of every accepted write, one entry per call.
func (s *Socket) Sent() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.sent))
	copy(out, s.sent)
	return out
}

// SentStrings returns Sent as strings.
func (s *Socket) SentStrings() []string {
	sent := s.Sent()
	out := make([]string, len(sent))
	for i, b := range sent {
		out[i] = string(b)
	}
	return out
}

// CloseReasons returns the reasons of effective closes. It holds at most
// one entry.
func (s *Socket) CloseReasons() []api.CloseReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]api.CloseReason(nil), s.reasons...)
}

// CloseCalls counts every Close call, repeated ones included.
func (s *Socket) CloseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeHits
}

// Recycled counts RecycleBuffer calls.
func (s *Socket) Recycled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recycled
}

// Started reports whether Start ran.
func (s *Socket) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}
