//go:build !linux

// File: internal/concurrency/pin.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

// PinCurrentThread is a no-op outside Linux.
func PinCurrentThread(cpuID int) error { return nil }
