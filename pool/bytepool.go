// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import (
	"sync"

	"go.uber.org/atomic"
)

// DefaultBufferSize is the receive buffer size used when none is configured.
const DefaultBufferSize = 4096

// BytePool hands out fixed-size receive buffers.
type BytePool struct {
	pool sync.Pool
	size int

	gets    atomic.Int64
	puts    atomic.Int64
	dropped atomic.Int64
}

// NewBytePool creates a pool of size-byte buffers. size <= 0 selects
// DefaultBufferSize.
func NewBytePool(size int) *BytePool {
	if size <= 0 {
		size = DefaultBufferSize
	}
	bp := &BytePool{size: size}
	bp.pool.New = func() any {
		buf := make([]byte, size)
		return &buf
	}
	return bp
}

// Size returns the buffer size.
func (b *BytePool) Size() int { return b.size }

// GetBuffer returns a buffer of Size bytes.
func (b *BytePool) GetBuffer() []byte {
	b.gets.Inc()
	return (*b.pool.Get().(*[]byte))[:b.size]
}

// PutBuffer returns buf to the pool. Buffers too small for reuse are
// left to the GC.
func (b *BytePool) PutBuffer(buf []byte) {
	if cap(buf) < b.size {
		b.dropped.Inc()
		return
	}
	b.puts.Inc()
	buf = buf[:b.size]
	b.pool.Put(&buf)
}

// Stats exposes pool accounting.
func (b *BytePool) Stats() map[string]int64 {
	return map[string]int64{
		"gets":    b.gets.Load(),
		"puts":    b.puts.Load(),
		"dropped": b.dropped.Load(),
	}
}
