package arena

import (
	"context"
	"sync"
)

// writeQueue runs a session's store writes one at a time in submission order, off the
// session goroutine. enqueue never blocks.
type writeQueue struct {
	mu      sync.Mutex
	pending []func()
	closed  bool
	wake    chan struct{}
	done    chan struct{}
}

func newWriteQueue() *writeQueue {
	q := &writeQueue{wake: make(chan struct{}, 1), done: make(chan struct{})}
	go q.run()
	return q
}

func (q *writeQueue) enqueue(job func()) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.pending = append(q.pending, job)
	q.mu.Unlock()
	q.signal()
	return true
}

func (q *writeQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *writeQueue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		jobs := q.pending
		q.pending = nil
		closed := q.closed
		q.mu.Unlock()

		for _, job := range jobs {
			job()
		}
		if len(jobs) > 0 {
			continue
		}
		if closed {
			return
		}
		<-q.wake
	}
}

// flush waits until every job queued before it has run.
func (q *writeQueue) flush(ctx context.Context) error {
	reached := make(chan struct{})
	if !q.enqueue(func() { close(reached) }) {
		<-q.done
		return nil
	}
	select {
	case <-reached:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close stops accepting jobs and waits for the queued ones to finish.
func (q *writeQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
	<-q.done
}
