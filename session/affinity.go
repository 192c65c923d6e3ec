// File: session/affinity.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Lock-free thread-affinity hint consulted by worker pool schedulers.

package session

import (
	"math"

	"go.uber.org/atomic"
	"golang.org/x/sys/cpu"

	"github.com/momentics/hioload-session/api"
)

// MaxPreferredThreadID is the ceiling Increment saturates at.
const MaxPreferredThreadID = math.MaxInt32

var _ api.ThreadExecutingContext = (*ThreadAffinity)(nil)

// ThreadAffinity is a scheduling hint, not a thread assignment. All
// updates go through compare-and-swap; the value never drops below zero.
type ThreadAffinity struct {
	_  cpu.CacheLinePad
	id atomic.Int64
	_  cpu.CacheLinePad
}

// PreferredThreadID returns the current hint.
func (a *ThreadAffinity) PreferredThreadID() int {
	return int(a.id.Load())
}

// SetPreferredThreadID overwrites the hint, clamped to [0, MaxPreferredThreadID].
func (a *ThreadAffinity) SetPreferredThreadID(id int) {
	a.id.Store(clampHint(int64(id)))
}

// Increment raises the hint by delta, saturating at MaxPreferredThreadID.
func (a *ThreadAffinity) Increment(delta int) {
	for {
		cur := a.id.Load()
		if a.id.CAS(cur, shiftHint(cur, int64(delta))) {
			return
		}
	}
}

// Decrement lowers the hint by delta with a floor of zero.
func (a *ThreadAffinity) Decrement(delta int) {
	d := int64(delta)
	for {
		cur := a.id.Load()
		next := int64(MaxPreferredThreadID)
		if d != math.MinInt64 {
			next = shiftHint(cur, -d)
		}
		if a.id.CAS(cur, next) {
			return
		}
	}
}

// shiftHint returns cur+delta bounded to [0, MaxPreferredThreadID]
// without overflowing. cur must already be in range.
func shiftHint(cur, delta int64) int64 {
	switch {
	case delta > MaxPreferredThreadID-cur:
		return MaxPreferredThreadID
	case delta < -cur:
		return 0
	default:
		return cur + delta
	}
}

func clampHint(v int64) int64 {
	switch {
	case v < 0:
		return 0
	case v > MaxPreferredThreadID:
		return MaxPreferredThreadID
	default:
		return v
	}
}
