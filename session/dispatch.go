// File: session/dispatch.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package session

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// HandlePackage dispatches one package to the server's command executor.
// Failures, panics included, never escape: they are handed to
// HandleException. Packages arriving after close are dropped.
func (s *AppSession[P, K]) HandlePackage(pkg P) {
	if !s.Connected() {
		return
	}
	key := pkg.Key()
	s.prevCommand = s.currentCommand
	s.currentCommand = key

	ctx, span := s.tracer.Start(s.ctx, "session.command",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("session.id", s.id),
			attribute.String("command.key", fmt.Sprint(key)),
		))
	defer span.End()

	err := s.executeCommand(ctx, pkg)
	m := s.metrics()
	if err == nil {
		m.CommandExecuted(true)
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	m.CommandExecuted(false)
	s.handleException(err)
}

func (s *AppSession[P, K]) executeCommand(ctx context.Context, pkg P) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("command %v panicked: %v", pkg.Key(), r)
		}
	}()
	return s.server.ExecuteCommand(ctx, s, pkg)
}

// handleException runs HandleException without letting a faulty hook
// take down the dispatching goroutine.
func (s *AppSession[P, K]) handleException(err error) {
	defer func() {
		if r := recover(); r != nil {
			s.Logger().Errorf("session %s: exception handler panicked: %v", s.id, r)
		}
	}()
	s.HandleException(err)
}
