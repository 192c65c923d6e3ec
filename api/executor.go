// Package api
// Author: momentics
//
// Executor contracts for ordered task dispatch on a shared worker pool.

package api

// ThreadExecutingContext carries the scheduling hint a worker pool uses to
// keep one session's work on the same worker.
type ThreadExecutingContext interface {
	PreferredThreadID() int
	SetPreferredThreadID(id int)
	Increment(delta int)
	Decrement(delta int)
}

// OrderedExecutor runs tasks on a shared pool while keeping the tasks of
// one context in submission order.
type OrderedExecutor interface {
	// Submit schedules task for the given context.
	Submit(ctx ThreadExecutingContext, task func()) error

	// Unbind releases the worker association of ctx.
	Unbind(ctx ThreadExecutingContext)

	// NumWorkers returns the number of worker routines.
	NumWorkers() int
}
