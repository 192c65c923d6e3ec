// File: api/transport.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Transport-side contracts: the socket session that performs raw byte I/O
// and the narrow view of the application session it carries.

package api

import (
	"net"
	"time"
)

// SocketSession is the live connection object performing raw byte I/O.
// Implementations must be safe for concurrent Send/TrySend/Close.
type SocketSession interface {
	// SessionID returns the transport-assigned identifier.
	SessionID() string

	LocalAddr() net.Addr
	RemoteAddr() net.Addr

	// Connected reports whether the connection is still usable.
	Connected() bool

	// Security returns the transport security mode.
	Security() SecurityMode
	// SetSecurity changes the transport security mode.
	SetSecurity(mode SecurityMode)

	// Initialize binds the transport to its application session.
	// Called once from the application session's Initialize.
	Initialize(app AppSession)

	// Start launches I/O loops and signals the application session that
	// traffic may flow.
	Start()

	// Send enqueues segments, blocking while the outbound queue is full.
	// It is a no-op once the connection is closed.
	Send(segments [][]byte)

	// TrySend enqueues segments without blocking.
	TrySend(segments [][]byte) bool

	// Close tears the connection down; repeated calls are no-ops.
	Close(reason CloseReason)
}

// AppSession is what a transport sees of the application session.
type AppSession interface {
	SessionID() string

	// CreatePipelineProcessor builds the per-connection pipeline.
	CreatePipelineProcessor() PipelineProcessor

	// StartSession is called once the transport is ready for traffic.
	StartSession()

	// SetLastActiveTime records inbound activity.
	SetLastActiveTime(t time.Time)

	// TransportClosed is called exactly once when the transport closes.
	TransportClosed(reason CloseReason)
}

// PipelineProcessor turns raw bytes into packages and delivers them.
type PipelineProcessor interface {
	// Process consumes data. A returned error means the connection must
	// be closed; use ReasonForError to pick the reason.
	Process(data []byte) error
}

// BufferRecycler is implemented by transports that pool receive buffers.
type BufferRecycler interface {
	RecycleBuffer(buf []byte)
}
