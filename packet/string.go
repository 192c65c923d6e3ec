// File: packet/string.go
// Package packet provides text request packages and the receive filters
// that produce them.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package packet

import "strings"

// StringPackage is a text request: a command key, the raw body that
// followed it and the body split into whitespace-separated parameters.
type StringPackage struct {
	Command    string
	Body       string
	Parameters []string
}

// NewStringPackage builds a StringPackage.
func NewStringPackage(command, body string, parameters []string) *StringPackage {
	return &StringPackage{Command: command, Body: body, Parameters: parameters}
}

// Key returns the command key.
func (p *StringPackage) Key() string {
	return p.Command
}

// ParseCommandLine splits "KEY rest of line" at the first space.
func ParseCommandLine(line string) *StringPackage {
	key, body, found := strings.Cut(line, " ")
	if !found {
		return NewStringPackage(key, "", nil)
	}
	return NewStringPackage(key, body, strings.Fields(body))
}
