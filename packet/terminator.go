// File: packet/terminator.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Terminator-delimited text receive filter.

package packet

import (
	"bytes"
	"fmt"
	"net"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"

	"github.com/momentics/hioload-session/api"
)

// DefaultTerminator separates requests of the line protocol.
const DefaultTerminator = "\r\n"

var _ api.ReceiveFilter[*StringPackage] = (*TerminatorFilter)(nil)

// TerminatorFilter splits the stream on a terminator and parses every
// non-empty line as a command line, decoded with the session charset.
type TerminatorFilter struct {
	terminator []byte
	session    api.SessionInfo
	maxLength  int
	buf        []byte
}

// NewTerminatorFilter creates a filter. maxLength <= 0 disables the per-line limit.
func NewTerminatorFilter(terminator []byte, session api.SessionInfo, maxLength int) *TerminatorFilter {
	if len(terminator) == 0 {
		terminator = []byte(DefaultTerminator)
	}
	return &TerminatorFilter{
		terminator: terminator,
		session:    session,
		maxLength:  maxLength,
	}
}

// Filter implements api.ReceiveFilter.
func (f *TerminatorFilter) Filter(data []byte) ([]*StringPackage, error) {
	f.buf = append(f.buf, data...)
	var out []*StringPackage
	start := 0
	for {
		i := bytes.Index(f.buf[start:], f.terminator)
		if i < 0 {
			break
		}
		line := f.buf[start : start+i]
		start += i + len(f.terminator)
		if f.maxLength > 0 && len(line) > f.maxLength {
			f.Reset()
			return out, fmt.Errorf("%w: line of %d bytes", api.ErrRequestTooLarge, len(line))
		}
		if len(line) == 0 {
			continue
		}
		text, err := f.charset().NewDecoder().Bytes(line)
		if err != nil {
			f.Reset()
			return out, fmt.Errorf("%w: %v", api.ErrProtocolViolated, err)
		}
		out = append(out, ParseCommandLine(string(text)))
	}
	f.buf = append(f.buf[:0], f.buf[start:]...)
	return out, nil
}

// Buffered implements api.ReceiveFilter.
func (f *TerminatorFilter) Buffered() int {
	return len(f.buf)
}

// Reset implements api.ReceiveFilter.
func (f *TerminatorFilter) Reset() {
	f.buf = f.buf[:0]
}

func (f *TerminatorFilter) charset() encoding.Encoding {
	if f.session != nil {
		if cs := f.session.Charset(); cs != nil {
			return cs
		}
	}
	return unicode.UTF8
}

// TerminatorFilterFactory creates one TerminatorFilter per connection.
type TerminatorFilterFactory struct {
	terminator []byte
}

// NewTerminatorFilterFactory returns a factory using terminator, or
// DefaultTerminator when empty.
func NewTerminatorFilterFactory(terminator string) *TerminatorFilterFactory {
	if terminator == "" {
		terminator = DefaultTerminator
	}
	return &TerminatorFilterFactory{terminator: []byte(terminator)}
}

// CreateFilter implements api.ReceiveFilterFactory.
func (ff *TerminatorFilterFactory) CreateFilter(server api.ServerInfo, session api.SessionInfo, _ net.Addr) api.ReceiveFilter[*StringPackage] {
	maxLength := 0
	if server != nil {
		maxLength = server.MaxRequestLength()
	}
	return NewTerminatorFilter(ff.terminator, session, maxLength)
}
