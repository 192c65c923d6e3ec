// File: protocol/filter.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// FrameFilter turns inbound frames into command line packages.

package protocol

import (
	"fmt"
	"net"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"

	"github.com/momentics/hioload-session/api"
	"github.com/momentics/hioload-session/packet"
)

var _ api.ReceiveFilter[*packet.StringPackage] = (*FrameFilter)(nil)

// FrameFilter decodes data frames, reassembling fragmented messages, and
// parses every message as a command line. Ping and pong frames are
// consumed silently; a close frame ends filtering with api.ErrClientClosing.
type FrameFilter struct {
	session   api.SessionInfo
	maxLength int

	buf        []byte
	fragments  []byte
	inFragment bool
}

// NewFrameFilter creates a filter. maxLength <= 0 selects MaxFramePayload.
func NewFrameFilter(session api.SessionInfo, maxLength int) *FrameFilter {
	if maxLength <= 0 {
		maxLength = MaxFramePayload
	}
	return &FrameFilter{session: session, maxLength: maxLength}
}

// Filter implements api.ReceiveFilter.
func (f *FrameFilter) Filter(data []byte) ([]*packet.StringPackage, error) {
	f.buf = append(f.buf, data...)
	var out []*packet.StringPackage
	start := 0
	for {
		frame, n, err := DecodeFrameFromBytes(f.buf[start:], int64(f.maxLength))
		if err != nil {
			f.Reset()
			return out, err
		}
		if frame == nil {
			break
		}
		start += n

		var message []byte
		switch frame.Opcode {
		case OpcodePing, OpcodePong:
			continue
		case OpcodeClose:
			code, _ := ParseClosePayload(frame.Payload)
			f.Reset()
			return out, fmt.Errorf("%w: close status %d", api.ErrClientClosing, code)
		case OpcodeText, OpcodeBinary:
			if f.inFragment {
				f.Reset()
				return out, fmt.Errorf("%w: new message inside fragmented message", api.ErrProtocolViolated)
			}
			if !frame.IsFinal {
				f.inFragment = true
				f.fragments = append(f.fragments[:0], frame.Payload...)
				continue
			}
			message = frame.Payload
		case OpcodeContinuation:
			if !f.inFragment {
				f.Reset()
				return out, fmt.Errorf("%w: continuation without message", api.ErrProtocolViolated)
			}
			if len(f.fragments)+len(frame.Payload) > f.maxLength {
				size := len(f.fragments) + len(frame.Payload)
				f.Reset()
				return out, fmt.Errorf("%w: message of %d bytes", api.ErrRequestTooLarge, size)
			}
			f.fragments = append(f.fragments, frame.Payload...)
			if !frame.IsFinal {
				continue
			}
			message = f.fragments
			f.fragments = nil
			f.inFragment = false
		default:
			f.Reset()
			return out, fmt.Errorf("%w: opcode %#x", api.ErrProtocolViolated, frame.Opcode)
		}

		text, err := f.charset().NewDecoder().Bytes(message)
		if err != nil {
			f.Reset()
			return out, fmt.Errorf("%w: %v", api.ErrProtocolViolated, err)
		}
		line := strings.TrimRight(string(text), "\r\n")
		if line == "" {
			continue
		}
		out = append(out, packet.ParseCommandLine(line))
	}
	f.buf = append(f.buf[:0], f.buf[start:]...)
	return out, nil
}

// Buffered implements api.ReceiveFilter. The header of the frame being
// received is not counted.
func (f *FrameFilter) Buffered() int {
	n := len(f.buf) - MaxFrameHeaderLen
	if n < 0 {
		n = 0
	}
	return n + len(f.fragments)
}

// Reset implements api.ReceiveFilter.
func (f *FrameFilter) Reset() {
	f.buf = f.buf[:0]
	f.fragments = nil
	f.inFragment = false
}

func (f *FrameFilter) charset() encoding.Encoding {
	if f.session != nil {
		if cs := f.session.Charset(); cs != nil {
			return cs
		}
	}
	return unicode.UTF8
}

// FrameFilterFactory creates one FrameFilter per connection.
type FrameFilterFactory struct{}

// CreateFilter implements api.ReceiveFilterFactory.
func (FrameFilterFactory) CreateFilter(server api.ServerInfo, session api.SessionInfo, _ net.Addr) api.ReceiveFilter[*packet.StringPackage] {
	maxLength := 0
	if server != nil {
		maxLength = server.MaxRequestLength()
	}
	return NewFrameFilter(session, maxLength)
}
