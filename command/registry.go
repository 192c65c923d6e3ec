// File: command/registry.go
// Package command routes packages to handlers registered by key.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package command

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/momentics/hioload-session/api"
	"github.com/momentics/hioload-session/packet"
	"github.com/momentics/hioload-session/session"
)

// Handler executes one command.
type Handler[P api.Package[K], K comparable] interface {
	Execute(ctx context.Context, s *session.AppSession[P, K], pkg P) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc[P api.Package[K], K comparable] func(ctx context.Context, s *session.AppSession[P, K], pkg P) error

// Execute implements Handler.
func (f HandlerFunc[P, K]) Execute(ctx context.Context, s *session.AppSession[P, K], pkg P) error {
	return f(ctx, s, pkg)
}

// Middleware wraps a handler.
type Middleware[P api.Package[K], K comparable] func(next Handler[P, K]) Handler[P, K]

var _ session.CommandExecutor[*packet.StringPackage, string] = (*Registry[*packet.StringPackage, string])(nil)

// Registry maps keys to handlers. It is safe for concurrent use; handlers
// are normally registered before the server starts.
type Registry[P api.Package[K], K comparable] struct {
	mu         sync.RWMutex
	handlers   map[K]Handler[P, K]
	middleware []Middleware[P, K]
}

// NewRegistry creates an empty registry.
func NewRegistry[P api.Package[K], K comparable]() *Registry[P, K] {
	return &Registry[P, K]{handlers: make(map[K]Handler[P, K])}
}

// Register binds h to key. A key can be registered once.
func (r *Registry[P, K]) Register(key K, h Handler[P, K]) error {
	if h == nil {
		return fmt.Errorf("%w: nil handler for %v", api.ErrInvalidArgument, key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[key]; ok {
		return fmt.Errorf("%w: command %v", api.ErrAlreadyExists, key)
	}
	r.handlers[key] = h
	return nil
}

// RegisterFunc registers a function handler.
func (r *Registry[P, K]) RegisterFunc(key K, fn func(ctx context.Context, s *session.AppSession[P, K], pkg P) error) error {
	if fn == nil {
		return fmt.Errorf("%w: nil handler for %v", api.ErrInvalidArgument, key)
	}
	return r.Register(key, HandlerFunc[P, K](fn))
}

// Use appends middleware. The first added is the outermost.
func (r *Registry[P, K]) Use(mw ...Middleware[P, K]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, mw...)
}

// Lookup returns the handler bound to key.
func (r *Registry[P, K]) Lookup(key K) (Handler[P, K], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[key]
	return h, ok
}

// Len returns the number of registered commands.
func (r *Registry[P, K]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Keys lists the registered keys in formatted order.
func (r *Registry[P, K]) Keys() []K {
	r.mu.RLock()
	keys := make([]K, 0, len(r.handlers))
	for k := range r.handlers {
		keys = append(keys, k)
	}
	r.mu.RUnlock()
	sort.Slice(keys, func(i, j int) bool {
		return fmt.Sprint(keys[i]) < fmt.Sprint(keys[j])
	})
	return keys
}

// ExecuteCommand implements session.CommandExecutor. Unknown keys go to
// the session's HandleUnknownRequest and are not errors.
func (r *Registry[P, K]) ExecuteCommand(ctx context.Context, s *session.AppSession[P, K], pkg P) error {
	r.mu.RLock()
	h, ok := r.handlers[pkg.Key()]
	mw := r.middleware
	r.mu.RUnlock()
	if !ok {
		s.HandleUnknownRequest(pkg)
		return nil
	}
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h.Execute(ctx, s, pkg)
}

// Logging logs every command with its duration and outcome.
func Logging[P api.Package[K], K comparable]() Middleware[P, K] {
	return func(next Handler[P, K]) Handler[P, K] {
		return HandlerFunc[P, K](func(ctx context.Context, s *session.AppSession[P, K], pkg P) error {
			start := time.Now()
			err := next.Execute(ctx, s, pkg)
			if err != nil {
				s.Logger().Warningf("session %s: command %v failed after %s: %v", s.SessionID(), pkg.Key(), time.Since(start), err)
				return err
			}
			s.Logger().Infof("session %s: command %v done in %s", s.SessionID(), pkg.Key(), time.Since(start))
			return nil
		})
	}
}

// Timeout bounds the context handed to the command.
func Timeout[P api.Package[K], K comparable](d time.Duration) Middleware[P, K] {
	return func(next Handler[P, K]) Handler[P, K] {
		return HandlerFunc[P, K](func(ctx context.Context, s *session.AppSession[P, K], pkg P) error {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next.Execute(ctx, s, pkg)
		})
	}
}
