// File: internal/concurrency/executor.go
// Package concurrency implements an ordered task executor with session affinity.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// OrderedExecutor runs tasks on a fixed set of workers. Every context is
// bound to one worker on its first submit and stays there until Unbind,
// so the tasks of one context run one at a time in submission order while
// unrelated contexts run in parallel.

package concurrency

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/eapache/queue"
	"go.uber.org/atomic"

	"github.com/momentics/hioload-session/api"
)

var _ api.OrderedExecutor = (*OrderedExecutor)(nil)

// TaskFunc is a unit of work to execute.
type TaskFunc func()

// PanicHandler receives values recovered from panicking tasks.
type PanicHandler func(recovered any)

// Option customizes an OrderedExecutor.
type Option func(*OrderedExecutor)

// WithPanicHandler installs a handler for recovered task panics.
func WithPanicHandler(h PanicHandler) Option {
	return func(e *OrderedExecutor) {
		e.onPanic = h
	}
}

// WithCPUPinning locks every worker to its own OS thread and CPU.
func WithCPUPinning(enabled bool) Option {
	return func(e *OrderedExecutor) {
		e.pin = enabled
	}
}

// OrderedExecutor is a fixed pool of FIFO workers.
type OrderedExecutor struct {
	workers []*worker
	closed  atomic.Bool
	wg      sync.WaitGroup
	onPanic PanicHandler
	pin     bool

	mu    sync.Mutex // protects binding decisions and load
	load  []int      // bound contexts per worker
	next  int        // round-robin tie breaker
	bound atomic.Int64

	// statistics
	totalTasks     atomic.Int64
	completedTasks atomic.Int64
}

// NewOrderedExecutor starts numWorkers workers. If numWorkers <= 0,
// defaults to runtime.NumCPU().
func NewOrderedExecutor(numWorkers int, opts ...Option) *OrderedExecutor {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	e := &OrderedExecutor{
		workers: make([]*worker, numWorkers),
		load:    make([]int, numWorkers),
	}
	for _, o := range opts {
		o(e)
	}
	for i := range e.workers {
		w := &worker{
			id:       i,
			executor: e,
			tasks:    queue.New(),
			signal:   make(chan struct{}, 1),
			stopCh:   make(chan struct{}),
		}
		e.workers[i] = w
		e.wg.Add(1)
		go w.run()
	}
	return e
}

// Submit enqueues task on the worker ctx is bound to, binding it first if
// needed. A nil ctx picks a worker round-robin without binding.
func (e *OrderedExecutor) Submit(ctx api.ThreadExecutingContext, task func()) error {
	if e.closed.Load() {
		return api.ErrExecutorClosed
	}
	if task == nil {
		return fmt.Errorf("%w: nil task", api.ErrInvalidArgument)
	}
	w := e.workers[e.bind(ctx)]
	if !w.push(task) {
		return api.ErrExecutorClosed
	}
	e.totalTasks.Inc()
	return nil
}

// bind returns the worker index for ctx. The hint stored in ctx is the
// worker index plus one; zero means unbound.
func (e *OrderedExecutor) bind(ctx api.ThreadExecutingContext) int {
	n := len(e.workers)
	if ctx != nil {
		if hint := ctx.PreferredThreadID(); hint > 0 && hint <= n {
			return hint - 1
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if ctx == nil {
		e.next = (e.next + 1) % n
		return e.next
	}
	hint := ctx.PreferredThreadID()
	if hint > 0 && hint <= n {
		return hint - 1
	}
	if hint > n {
		// Bound by a larger pool; drop the stale hint.
		ctx.Decrement(hint)
	}
	best := e.next
	for i := 1; i < n; i++ {
		j := (e.next + i) % n
		if e.load[j] < e.load[best] {
			best = j
		}
	}
	e.next = (best + 1) % n
	e.load[best]++
	e.bound.Inc()
	ctx.Increment(best + 1)
	return best
}

// Unbind releases the worker association of ctx. Tasks already queued
// still run on their worker.
func (e *OrderedExecutor) Unbind(ctx api.ThreadExecutingContext) {
	if ctx == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	hint := ctx.PreferredThreadID()
	if hint <= 0 {
		return
	}
	if hint <= len(e.workers) && e.load[hint-1] > 0 {
		e.load[hint-1]--
		e.bound.Dec()
	}
	ctx.Decrement(hint)
}

// NumWorkers returns the number of workers.
func (e *OrderedExecutor) NumWorkers() int {
	return len(e.workers)
}

// Close stops accepting tasks, lets workers drain their queues and waits
// for them to exit.
func (e *OrderedExecutor) Close() {
	if !e.closed.CAS(false, true) {
		return
	}
	for _, w := range e.workers {
		w.stop()
	}
	e.wg.Wait()
}

// Stats returns basic executor metrics.
func (e *OrderedExecutor) Stats() map[string]int64 {
	total := e.totalTasks.Load()
	completed := e.completedTasks.Load()
	return map[string]int64{
		"total_tasks":     total,
		"completed_tasks": completed,
		"pending_tasks":   total - completed,
		"bound_contexts":  e.bound.Load(),
		"num_workers":     int64(e.NumWorkers()),
	}
}

// worker owns one FIFO queue.
type worker struct {
	id       int
	executor *OrderedExecutor

	mu      sync.Mutex
	tasks   *queue.Queue
	stopped bool
	signal  chan struct{}
	stopCh  chan struct{}
}

func (w *worker) push(task TaskFunc) bool {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return false
	}
	w.tasks.Add(task)
	w.mu.Unlock()
	select {
	case w.signal <- struct{}{}:
	default:
	}
	return true
}

func (w *worker) pop() (TaskFunc, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.tasks.Length() == 0 {
		return nil, false
	}
	return w.tasks.Remove().(TaskFunc), true
}

func (w *worker) stop() {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()
	close(w.stopCh)
}

// run is the main loop for a worker.
func (w *worker) run() {
	defer w.executor.wg.Done()
	if w.executor.pin {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		_ = PinCurrentThread(w.id % runtime.NumCPU())
	}
	for {
		if task, ok := w.pop(); ok {
			w.executeTask(task)
			continue
		}
		select {
		case <-w.signal:
		case <-w.stopCh:
			// drain what was accepted before stop
			for {
				task, ok := w.pop()
				if !ok {
					return
				}
				w.executeTask(task)
			}
		}
	}
}

// executeTask runs the task and updates statistics, recovering from panics.
func (w *worker) executeTask(task TaskFunc) {
	defer func() {
		if r := recover(); r != nil && w.executor.onPanic != nil {
			w.executor.onPanic(r)
		}
		w.executor.completedTasks.Inc()
	}()
	task()
}
