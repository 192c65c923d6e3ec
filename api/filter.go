// File: api/filter.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package and receive-filter contracts used by the pipeline.

package api

import (
	"net"

	"golang.org/x/text/encoding"
)

// Package is one fully parsed request unit.
type Package[K comparable] interface {
	Key() K
}

// PackageHandler consumes parsed packages in delivery order.
type PackageHandler[P any] interface {
	HandlePackage(pkg P)
}

// ServerInfo is the part of a server visible to receive filters.
type ServerInfo interface {
	Name() string
	MaxRequestLength() int
}

// SessionInfo is the part of a session visible to receive filters.
type SessionInfo interface {
	SessionID() string
	Charset() encoding.Encoding
}

// ReceiveFilter turns a byte stream into packages. A filter is bound to
// one connection and is never used concurrently.
type ReceiveFilter[P any] interface {
	// Filter consumes data entirely. Incomplete input is retained
	// (copied) until later calls complete it; data may be reused by the
	// caller once Filter returns.
	Filter(data []byte) ([]P, error)

	// Buffered returns the number of retained bytes not yet parsed.
	Buffered() int

	// Reset drops retained state.
	Reset()
}

// ReceiveFilterFactory creates one filter per connection.
type ReceiveFilterFactory[P any] interface {
	CreateFilter(server ServerInfo, session SessionInfo, remote net.Addr) ReceiveFilter[P]
}

// ReceiveFilterFactoryFunc adapts a function to ReceiveFilterFactory.
type ReceiveFilterFactoryFunc[P any] func(server ServerInfo, session SessionInfo, remote net.Addr) ReceiveFilter[P]

// CreateFilter implements ReceiveFilterFactory.
func (f ReceiveFilterFactoryFunc[P]) CreateFilter(server ServerInfo, session SessionInfo, remote net.Addr) ReceiveFilter[P] {
	return f(server, session, remote)
}
