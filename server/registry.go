// File: server/registry.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Sharded, thread-safe session registry with a connection limit.

package server

import (
	"hash/fnv"
	"sync"

	"go.uber.org/atomic"

	"github.com/momentics/hioload-session/api"
	"github.com/momentics/hioload-session/session"
)

const defaultShards = 16

// registry stores live sessions by id.
type registry[P api.Package[K], K comparable] struct {
	shards []*registryShard[P, K]
	mask   uint32
	count  atomic.Int64
	limit  int64
}

type registryShard[P api.Package[K], K comparable] struct {
	mu       sync.RWMutex
	sessions map[string]*session.AppSession[P, K]
}

// newRegistry constructs a registry with shardCount shards, rounded up to
// a power of two. limit <= 0 disables the connection limit.
func newRegistry[P api.Package[K], K comparable](shardCount, limit int) *registry[P, K] {
	if shardCount <= 0 {
		shardCount = defaultShards
	}
	n := nextPowerOfTwo(uint32(shardCount))
	shards := make([]*registryShard[P, K], n)
	for i := range shards {
		shards[i] = &registryShard[P, K]{sessions: make(map[string]*session.AppSession[P, K])}
	}
	return &registry[P, K]{shards: shards, mask: n - 1, limit: int64(limit)}
}

func (r *registry[P, K]) shard(id string) *registryShard[P, K] {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return r.shards[h.Sum32()&r.mask]
}

// add registers s unless the limit is reached or the id is taken.
func (r *registry[P, K]) add(s *session.AppSession[P, K]) error {
	if n := r.count.Inc(); r.limit > 0 && n > r.limit {
		r.count.Dec()
		return api.ErrTooManySessions
	}
	sh := r.shard(s.SessionID())
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.sessions[s.SessionID()]; ok {
		r.count.Dec()
		return api.ErrAlreadyExists
	}
	sh.sessions[s.SessionID()] = s
	return nil
}

// remove drops s; removing an unknown or replaced session is a no-op.
func (r *registry[P, K]) remove(s *session.AppSession[P, K]) bool {
	sh := r.shard(s.SessionID())
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if cur, ok := sh.sessions[s.SessionID()]; ok && cur == s {
		delete(sh.sessions, s.SessionID())
		r.count.Dec()
		return true
	}
	return false
}

func (r *registry[P, K]) get(id string) (*session.AppSession[P, K], bool) {
	sh := r.shard(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	s, ok := sh.sessions[id]
	return s, ok
}

func (r *registry[P, K]) len() int {
	return int(r.count.Load())
}

// snapshot copies the live sessions so that callers may close them
// without holding shard locks.
func (r *registry[P, K]) snapshot() []*session.AppSession[P, K] {
	out := make([]*session.AppSession[P, K], 0, r.len())
	for _, sh := range r.shards {
		sh.mu.RLock()
		for _, s := range sh.sessions {
			out = append(out, s)
		}
		sh.mu.RUnlock()
	}
	return out
}

// nextPowerOfTwo returns the next power-of-two >= v.
func nextPowerOfTwo(v uint32) uint32 {
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v++
	return v
}
