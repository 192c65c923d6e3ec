// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities.

package api

import (
	"errors"
	"fmt"
	"io"
	"net"
)

// Common errors used across the library.
var (
	ErrTransportClosed  = fmt.Errorf("transport is closed")
	ErrInvalidArgument  = fmt.Errorf("invalid argument")
	ErrAlreadyExists    = fmt.Errorf("resource already exists")
	ErrNotFound         = fmt.Errorf("resource not found")
	ErrRequestTooLarge  = fmt.Errorf("request exceeds max request length")
	ErrClientClosing    = fmt.Errorf("client requested close")
	ErrUnknownCommand   = fmt.Errorf("unknown command")
	ErrExecutorClosed   = fmt.Errorf("executor is closed")
	ErrServerRunning    = fmt.Errorf("server already running")
	ErrTooManySessions  = fmt.Errorf("max connection number reached")
	ErrProtocolViolated = fmt.Errorf("protocol violation")
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidArgument
	ErrCodeResourceExhausted
	ErrCodeTimeout
	ErrCodeNotSupported
	ErrCodeAlreadyExists
	ErrCodeNotFound
	ErrCodeInternal
)

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (context: %+v)", e.Message, e.Context)
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// ReasonForError maps an error reported by a pipeline or transport read
// to the reason the session should be closed with.
func ReasonForError(err error) CloseReason {
	var netErr net.Error
	switch {
	case err == nil:
		return CloseUnknown
	case errors.Is(err, ErrClientClosing), errors.Is(err, io.EOF):
		return CloseClientClosing
	case errors.Is(err, ErrRequestTooLarge), errors.Is(err, ErrProtocolViolated):
		return CloseProtocolError
	case errors.Is(err, ErrTransportClosed), errors.Is(err, net.ErrClosed), errors.Is(err, io.ErrUnexpectedEOF):
		return CloseSocketError
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			return CloseTimeOut
		}
		return CloseSocketError
	default:
		var apiErr *Error
		if errors.As(err, &apiErr) && apiErr.Code == ErrCodeTimeout {
			return CloseTimeOut
		}
		return CloseProtocolError
	}
}
