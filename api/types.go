// File: api/types.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Shared API-level type declarations and constants.

package api

// CloseReason enumerates why a session ended.
type CloseReason int

const (
	CloseUnknown CloseReason = iota
	CloseServerShutdown
	CloseClientClosing
	CloseServerClosing
	CloseApplicationError
	CloseSocketError
	CloseTimeOut
	CloseProtocolError
	CloseInternalError
)

func (r CloseReason) String() string {
	switch r {
	case CloseServerShutdown:
		return "server shutdown"
	case CloseClientClosing:
		return "client closing"
	case CloseServerClosing:
		return "server closing"
	case CloseApplicationError:
		return "application error"
	case CloseSocketError:
		return "socket error"
	case CloseTimeOut:
		return "timeout"
	case CloseProtocolError:
		return "protocol error"
	case CloseInternalError:
		return "internal error"
	default:
		return "unknown"
	}
}

// SecurityMode describes the transport security of a connection.
type SecurityMode int

const (
	SecurityNone SecurityMode = iota
	SecurityTLS
)

func (m SecurityMode) String() string {
	if m == SecurityTLS {
		return "tls"
	}
	return "none"
}

// ParseSecurityMode maps a config value to a SecurityMode.
func ParseSecurityMode(s string) (SecurityMode, error) {
	switch s {
	case "", "none":
		return SecurityNone, nil
	case "tls":
		return SecurityTLS, nil
	default:
		return SecurityNone, NewError(ErrCodeInvalidArgument, "unknown security mode").WithContext("mode", s)
	}
}
