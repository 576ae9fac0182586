// Package frame provides a one-shot frame callback queue. The UI host
// flushes it once per frame on the main thread; callbacks that want to keep
// running re-request themselves.
package frame

import (
	"sync"
	"time"
)

// Handle identifies a requested callback. The zero Handle is never issued.
type Handle uint64

// Callback receives the host's timestamp for the frame being flushed.
type Callback func(now time.Duration)

// Queue holds callbacks waiting for the next frame.
type Queue struct {
	mu      sync.Mutex
	next    Handle
	pending map[Handle]Callback
	order   []Handle
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{pending: make(map[Handle]Callback)}
}

// RequestFrame schedules fn to run on the next Run. It is safe to call from
// any goroutine, including from inside a running callback, in which case fn
// runs on the following frame.
func (q *Queue) RequestFrame(fn Callback) Handle {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.next++
	h := q.next
	q.pending[h] = fn
	q.order = append(q.order, h)
	return h
}

// CancelFrame removes a pending callback. Cancelling an unknown or already
// run handle does nothing.
func (q *Queue) CancelFrame(h Handle) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.pending, h)
}

// Pending returns the number of callbacks waiting to run.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Run invokes every callback requested before this call, in request order.
// A callback cancelled by an earlier callback in the same flush is skipped.
func (q *Queue) Run(now time.Duration) int {
	q.mu.Lock()
	batch := q.order
	q.order = nil
	q.mu.Unlock()

	ran := 0
	for _, h := range batch {
		q.mu.Lock()
		fn, ok := q.pending[h]
		delete(q.pending, h)
		q.mu.Unlock()

		if !ok {
			continue
		}
		fn(now)
		ran++
	}
	return ran
}
