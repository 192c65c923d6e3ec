// File: server/options.go
// Package server defines functional options for the AppServer.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"crypto/tls"

	"github.com/momentics/hioload-session/api"
	"github.com/momentics/hioload-session/control"
	"github.com/momentics/hioload-session/session"
)

// Option customizes server initialization.
type Option[P api.Package[K], K comparable] func(*AppServer[P, K])

// WithConfig replaces DefaultConfig.
func WithConfig[P api.Package[K], K comparable](cfg Config) Option[P, K] {
	return func(s *AppServer[P, K]) {
		s.cfg = cfg
	}
}

// WithLogger replaces the google/logger based default logger.
func WithLogger[P api.Package[K], K comparable](l Logger) Option[P, K] {
	return func(s *AppServer[P, K]) {
		s.logger = l
	}
}

// WithMetrics shares a metrics collector, e.g. one registered with the
// process-wide Prometheus registry.
func WithMetrics[P api.Package[K], K comparable](m *control.Metrics) Option[P, K] {
	return func(s *AppServer[P, K]) {
		s.metrics = m
	}
}

// WithSender replaces the direct transport send path.
func WithSender[P api.Package[K], K comparable](snd api.ProtocolSender) Option[P, K] {
	return func(s *AppServer[P, K]) {
		s.sender = snd
	}
}

// WithTextEncoder sets the encoder used for text replies.
func WithTextEncoder[P api.Package[K], K comparable](enc api.TextEncoder) Option[P, K] {
	return func(s *AppServer[P, K]) {
		s.encoder = enc
	}
}

// WithSessionFactory sets how accepted connections get their session,
// e.g. with hooks or a protocol handler attached.
func WithSessionFactory[P api.Package[K], K comparable](fn func() *session.AppSession[P, K]) Option[P, K] {
	return func(s *AppServer[P, K]) {
		s.newSession = fn
	}
}

// WithTLSConfig sets the TLS configuration of "tls" listeners instead
// of loading their certificate files.
func WithTLSConfig[P api.Package[K], K comparable](cfg *tls.Config) Option[P, K] {
	return func(s *AppServer[P, K]) {
		s.tlsConfig = cfg
	}
}
