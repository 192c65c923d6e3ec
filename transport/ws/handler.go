// File: transport/ws/handler.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// HTTP upgrade entry point and client dialer.

package ws

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/momentics/hioload-session/api"
)

// AcceptFunc takes ownership of an upgraded session. It returns an error
// when the session cannot be served; the handler then closes it.
type AcceptFunc func(sock *Session) error

// Handler upgrades HTTP requests to WebSocket sessions.
type Handler struct {
	upgrader websocket.Upgrader
	accept   AcceptFunc
	opts     []Option
	logger   api.Logger
}

// NewHandler creates a handler passing every upgraded connection to
// accept. opts apply to every session.
func NewHandler(accept AcceptFunc, opts ...Option) *Handler {
	h := &Handler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		accept: accept,
		opts:   opts,
		logger: api.NopLogger{},
	}
	var cfg Config
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.Logger != nil {
		h.logger = cfg.Logger
	}
	return h
}

// SetCheckOrigin replaces the origin check. The gorilla default rejects
// cross-origin requests.
func (h *Handler) SetCheckOrigin(fn func(r *http.Request) bool) {
	h.upgrader.CheckOrigin = fn
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error
		h.logger.Warningf("ws: upgrade from %s: %v", r.RemoteAddr, err)
		return
	}
	sock := New(conn, h.opts...)
	if r.TLS != nil {
		sock.SetSecurity(api.SecurityTLS)
	}
	if err := h.accept(sock); err != nil {
		h.logger.Warningf("ws: rejecting %s: %v", r.RemoteAddr, err)
		sock.Close(api.CloseServerClosing)
	}
}

// Dial opens a client session to url.
func Dial(ctx context.Context, url string, opts ...Option) (*Session, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	sock := New(conn, opts...)
	if strings.HasPrefix(url, "wss://") {
		sock.SetSecurity(api.SecurityTLS)
	}
	return sock, nil
}
