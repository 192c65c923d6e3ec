// File: protocol/frame_codec.go
// Package protocol implements a frame codec with frame size enforcement.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Frames use the WebSocket wire layout so both raw TCP and upgraded HTTP
// connections can carry them.

package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/momentics/hioload-session/api"
)

// MaxFramePayload defines the maximum allowed payload size for a single frame.
const MaxFramePayload = 1 << 20 // 1 MiB

// Frame is one decoded frame.
type Frame struct {
	IsFinal    bool
	Opcode     byte
	Masked     bool
	PayloadLen int64
	MaskKey    [4]byte
	Payload    []byte // owned copy, unmasked
}

// IsControl reports whether the frame is a control frame.
func (f *Frame) IsControl() bool {
	return f.Opcode&0x08 != 0
}

// DecodeFrameFromBytes parses one frame from raw, enforcing maxPayload
// (MaxFramePayload when <= 0). It returns the frame and the consumed
// byte count; an incomplete frame yields (nil, 0, nil).
func DecodeFrameFromBytes(raw []byte, maxPayload int64) (*Frame, int, error) {
	if maxPayload <= 0 {
		maxPayload = MaxFramePayload
	}
	if len(raw) < 2 {
		return nil, 0, nil // Incomplete
	}
	fin := raw[0]&FinBit != 0
	if raw[0]&0x70 != 0 {
		return nil, 0, fmt.Errorf("%w: reserved bits set", api.ErrProtocolViolated)
	}
	opcode := raw[0] & 0x0F
	masked := raw[1]&MaskBit != 0
	length := int64(raw[1] & 0x7F)
	offset := 2

	switch length {
	case 126:
		if len(raw) < offset+2 {
			return nil, 0, nil // Incomplete
		}
		length = int64(binary.BigEndian.Uint16(raw[offset:]))
		offset += 2
	case 127:
		if len(raw) < offset+8 {
			return nil, 0, nil // Incomplete
		}
		u := binary.BigEndian.Uint64(raw[offset:])
		if u > uint64(maxPayload) {
			return nil, 0, fmt.Errorf("%w: frame payload of %d bytes", api.ErrRequestTooLarge, u)
		}
		length = int64(u)
		offset += 8
	}

	if length > maxPayload {
		return nil, 0, fmt.Errorf("%w: frame payload of %d bytes", api.ErrRequestTooLarge, length)
	}
	if opcode&0x08 != 0 && (length > MaxControlPayloadLen || !fin) {
		return nil, 0, fmt.Errorf("%w: malformed control frame", api.ErrProtocolViolated)
	}

	var maskKey [4]byte
	if masked {
		if len(raw) < offset+4 {
			return nil, 0, nil // Incomplete
		}
		copy(maskKey[:], raw[offset:offset+4])
		offset += 4
	}

	totalLen := offset + int(length)
	if len(raw) < totalLen {
		return nil, 0, nil // Incomplete
	}

	payload := make([]byte, length)
	copy(payload, raw[offset:totalLen])
	if masked {
		maskBytes(payload, maskKey)
	}

	return &Frame{
		IsFinal:    fin,
		Opcode:     opcode,
		Masked:     masked,
		PayloadLen: length,
		MaskKey:    maskKey,
		Payload:    payload,
	}, totalLen, nil
}

// AppendFrameHeader appends an unmasked final frame header for a payload
// of n bytes.
func AppendFrameHeader(dst []byte, opcode byte, n int) []byte {
	b0 := byte(FinBit) | (opcode & 0x0F)
	switch {
	case n <= 125:
		return append(dst, b0, byte(n))
	case n <= 0xFFFF:
		dst = append(dst, b0, 126)
		return binary.BigEndian.AppendUint16(dst, uint16(n))
	default:
		dst = append(dst, b0, 127)
		return binary.BigEndian.AppendUint64(dst, uint64(n))
	}
}

// EncodeFrame serializes a final frame. With a mask key the payload is
// masked in the output; the input is never modified.
func EncodeFrame(dst []byte, opcode byte, payload []byte, maskKey *[4]byte) ([]byte, error) {
	if int64(len(payload)) > MaxFramePayload {
		return nil, fmt.Errorf("%w: frame payload of %d bytes", api.ErrRequestTooLarge, len(payload))
	}
	start := len(dst)
	dst = AppendFrameHeader(dst, opcode, len(payload))
	if maskKey == nil {
		return append(dst, payload...), nil
	}
	dst[start+1] |= MaskBit
	dst = append(dst, maskKey[:]...)
	p := len(dst)
	dst = append(dst, payload...)
	maskBytes(dst[p:], *maskKey)
	return dst, nil
}

// EncodeCloseFrame builds a close frame carrying code and a text reason
// truncated to fit a control frame.
func EncodeCloseFrame(code uint16, text string) []byte {
	payload := binary.BigEndian.AppendUint16(make([]byte, 0, MaxControlPayloadLen), code)
	if limit := MaxControlPayloadLen - 2; len(text) > limit {
		text = text[:limit]
	}
	payload = append(payload, text...)
	out, _ := EncodeFrame(nil, OpcodeClose, payload, nil)
	return out
}

// ParseClosePayload extracts the status code and text of a close frame.
func ParseClosePayload(payload []byte) (uint16, string) {
	if len(payload) < 2 {
		return CloseNoStatusRcvd, ""
	}
	return binary.BigEndian.Uint16(payload), string(payload[2:])
}

// maskBytes applies XOR on buf using key.
func maskBytes(buf []byte, key [4]byte) {
	for i := range buf {
		buf[i] ^= key[i%4]
	}
}
