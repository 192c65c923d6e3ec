// File: api/logger.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Logger is the leveled logging surface shared by sessions, transports
// and servers. *logger.Logger from github.com/google/logger satisfies it.
type Logger interface {
	Infof(format string, v ...any)
	Warningf(format string, v ...any)
	Errorf(format string, v ...any)
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Infof(string, ...any)    {}
func (NopLogger) Warningf(string, ...any) {}
func (NopLogger) Errorf(string, ...any)   {}
