// Package protocol
// Author: momentics <momentics@gmail.com>
//
// Frame protocol constants and close status mapping.

package protocol

import "github.com/momentics/hioload-session/api"

const (
	// Control opcodes (>=0x8)
	OpcodeContinuation = 0x0
	OpcodeText         = 0x1
	OpcodeBinary       = 0x2
	OpcodeClose        = 0x8
	OpcodePing         = 0x9
	OpcodePong         = 0xA

	// Frame limit settings
	MaxControlPayloadLen = 125
	MaxFrameHeaderLen    = 14 // for extended payloads with masking

	// Bit masks
	FinBit  = 0x80
	MaskBit = 0x80

	// Close codes
	CloseNormalClosure      = 1000
	CloseGoingAway          = 1001
	CloseProtocolError      = 1002
	CloseUnsupportedData    = 1003
	CloseNoStatusRcvd       = 1005
	CloseAbnormalClosure    = 1006
	CloseInvalidPayloadData = 1007
	ClosePolicyViolation    = 1008
	CloseMessageTooBig      = 1009
	CloseMissingExtension   = 1010
	CloseInternalServerErr  = 1011
)

// CloseCodeFor maps a session close reason to a close status code.
func CloseCodeFor(reason api.CloseReason) uint16 {
	switch reason {
	case api.CloseServerShutdown:
		return CloseGoingAway
	case api.CloseClientClosing, api.CloseServerClosing:
		return CloseNormalClosure
	case api.CloseApplicationError, api.CloseInternalError:
		return CloseInternalServerErr
	case api.CloseTimeOut:
		return ClosePolicyViolation
	case api.CloseProtocolError:
		return CloseProtocolError
	default:
		return CloseAbnormalClosure
	}
}

// ReasonForCloseCode maps a received close status to a close reason.
func ReasonForCloseCode(code uint16) api.CloseReason {
	switch code {
	case CloseNormalClosure, CloseGoingAway, CloseNoStatusRcvd:
		return api.CloseClientClosing
	case CloseProtocolError, CloseUnsupportedData, CloseInvalidPayloadData, CloseMessageTooBig:
		return api.CloseProtocolError
	case CloseInternalServerErr:
		return api.CloseInternalError
	case ClosePolicyViolation:
		return api.CloseTimeOut
	default:
		return api.CloseUnknown
	}
}
