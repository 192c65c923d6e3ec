// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Listener wraps a TCP (optionally TLS) listening socket and runs the
// accept loop.

package tcp

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/atomic"

	"github.com/momentics/hioload-session/api"
)

// ListenerConfig holds configuration for the TCP listener.
type ListenerConfig struct {
	Network string      // "tcp", "tcp4" or "tcp6"; defaults to "tcp"
	Addr    string      // TCP address to bind (e.g., ":2012")
	TLS     *tls.Config // enables TLS when set
	Logger  api.Logger
}

// Listener accepts connections.
type Listener struct {
	ln     net.Listener
	cfg    ListenerConfig
	closed atomic.Bool
}

// Listen opens the listening socket.
func Listen(cfg ListenerConfig) (*Listener, error) {
	if cfg.Network == "" {
		cfg.Network = "tcp"
	}
	if cfg.Logger == nil {
		cfg.Logger = api.NopLogger{}
	}
	ln, err := net.Listen(cfg.Network, cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("tcp listen %s: %w", cfg.Addr, err)
	}
	if cfg.TLS != nil {
		ln = tls.NewListener(ln, cfg.TLS)
	}
	return &Listener{ln: ln, cfg: cfg}, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Secure reports whether accepted connections use TLS.
func (l *Listener) Secure() bool { return l.cfg.TLS != nil }

// Serve runs the accept loop, handing every connection to handler on the
// accepting goroutine. Accept errors are retried with backoff until Close.
func (l *Listener) Serve(handler func(net.Conn)) {
	var delay time.Duration
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if l.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			delay *= 2
			if delay == 0 {
				delay = 5 * time.Millisecond
			}
			if delay > time.Second {
				delay = time.Second
			}
			l.cfg.Logger.Warningf("tcp accept on %s: %v; retrying in %s", l.Addr(), err, delay)
			time.Sleep(delay)
			continue
		}
		delay = 0
		handler(conn)
	}
}

// Close stops the accept loop.
func (l *Listener) Close() error {
	if !l.closed.CAS(false, true) {
		return nil
	}
	return l.ln.Close()
}
