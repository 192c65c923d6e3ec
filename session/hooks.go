// File: session/hooks.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package session

import (
	"go.opentelemetry.io/otel/trace"

	"github.com/momentics/hioload-session/api"
)

// Hooks are the session extension points. A nil hook keeps the default
// behavior: no-op for the lifecycle hooks and HandleUnknownRequest,
// log-and-close for HandleException.
type Hooks[P api.Package[K], K comparable] struct {
	OnInit               func(s *AppSession[P, K])
	OnSessionStarted     func(s *AppSession[P, K])
	OnSessionClosed      func(s *AppSession[P, K], reason api.CloseReason)
	HandleException      func(s *AppSession[P, K], err error)
	HandleUnknownRequest func(s *AppSession[P, K], pkg P)
}

// merge overlays the non-nil hooks of o.
func (h *Hooks[P, K]) merge(o Hooks[P, K]) {
	if o.OnInit != nil {
		h.OnInit = o.OnInit
	}
	if o.OnSessionStarted != nil {
		h.OnSessionStarted = o.OnSessionStarted
	}
	if o.OnSessionClosed != nil {
		h.OnSessionClosed = o.OnSessionClosed
	}
	if o.HandleException != nil {
		h.HandleException = o.HandleException
	}
	if o.HandleUnknownRequest != nil {
		h.HandleUnknownRequest = o.HandleUnknownRequest
	}
}

// Option customizes a session at construction.
type Option[P api.Package[K], K comparable] func(*AppSession[P, K])

// WithHooks installs hooks; later options override earlier ones per hook.
func WithHooks[P api.Package[K], K comparable](h Hooks[P, K]) Option[P, K] {
	return func(s *AppSession[P, K]) {
		s.hooks.merge(h)
	}
}

// WithProtocolHandler attaches a protocol handler.
func WithProtocolHandler[P api.Package[K], K comparable](h api.ProtocolHandler) Option[P, K] {
	return func(s *AppSession[P, K]) {
		s.handler = h
	}
}

// WithTracer replaces the tracer used for per-command spans.
func WithTracer[P api.Package[K], K comparable](t trace.Tracer) Option[P, K] {
	return func(s *AppSession[P, K]) {
		s.tracer = t
	}
}
