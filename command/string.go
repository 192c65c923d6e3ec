// File: command/string.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package command

import (
	"context"

	"github.com/momentics/hioload-session/packet"
	"github.com/momentics/hioload-session/session"
)

// StringRegistry routes line-protocol commands.
type StringRegistry = Registry[*packet.StringPackage, string]

// StringHandlerFunc is a line-protocol command working on the text
// helpers of the session.
type StringHandlerFunc func(ctx context.Context, s *session.StringSession, pkg *packet.StringPackage) error

// NewStringRegistry creates a registry for line-protocol commands.
func NewStringRegistry() *StringRegistry {
	return NewRegistry[*packet.StringPackage, string]()
}

// String adapts fn to a Handler.
func String(fn StringHandlerFunc) Handler[*packet.StringPackage, string] {
	return HandlerFunc[*packet.StringPackage, string](
		func(ctx context.Context, s *session.AppSession[*packet.StringPackage, string], pkg *packet.StringPackage) error {
			return fn(ctx, session.Strings(s), pkg)
		})
}
