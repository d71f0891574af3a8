package runner

import (
	"context"
	"sync"
	"time"
)

// token is one scheduled request slot.
type token struct{}

// workQueue buffers tokens between the scheduler and the workers.
// Every pushed token must be acked once a worker is done with it so
// DrainWait can observe the queue going idle.
type workQueue struct {
	ch      chan token
	pending sync.WaitGroup
}

func newWorkQueue(capacity int) *workQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &workQueue{ch: make(chan token, capacity)}
}

// Push enqueues a token, blocking while the queue is full.
func (q *workQueue) Push(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.pending.Add(1)
	select {
	case q.ch <- token{}:
		return nil
	case <-ctx.Done():
		q.pending.Done()
		return ctx.Err()
	}
}

// Pop waits up to timeout for a token. It reports false on timeout or when
// ctx is done.
func (q *workQueue) Pop(ctx context.Context, timeout time.Duration) (token, bool) {
	// Fast path so a busy queue never pays for a timer.
	select {
	case tok := <-q.ch:
		return tok, true
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case tok := <-q.ch:
		return tok, true
	case <-timer.C:
		return token{}, false
	case <-ctx.Done():
		return token{}, false
	}
}

// Ack marks a popped token as handled.
func (q *workQueue) Ack() {
	q.pending.Done()
}

// DrainWait blocks until every pushed token has been acked or ctx is done.
func (q *workQueue) DrainWait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		q.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len reports the number of tokens waiting for a worker.
func (q *workQueue) Len() int {
	return len(q.ch)
}

// Cap reports the queue capacity.
func (q *workQueue) Cap() int {
	return cap(q.ch)
}
