// Package queue provides a blocking message queue.
package queue

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
)

// Errors
var (
	ErrCanceled = errors.New("canceled while waiting")
	ErrClosed   = errors.New("queue is closed")
)

// Queue is an unbounded FIFO queue with a blocking Receive.
//
// Send never blocks. The queue grows without limit when producers outpace
// consumers, so it is only suitable for producers that pace themselves.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T

	// notify holds at most one pending wake-up for receivers.
	notify chan struct{}

	closed    chan struct{}
	closeOnce sync.Once
}

// New creates an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{
		items:  make([]T, 0),
		notify: make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

// Send appends v to the queue and wakes one waiting receiver.
func (q *Queue[T]) Send(v T) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, v)
	q.signalLocked()
}

// Receive removes and returns the oldest value, blocking until one is available.
// Values sent before Close are still returned after it; once the queue is
// closed and empty Receive returns ErrClosed.
func (q *Queue[T]) Receive(ctx context.Context) (T, error) {
	var zero T
	for {
		q.mu.Lock()
		if v, ok := q.popLocked(); ok {
			q.mu.Unlock()
			return v, nil
		}
		if q.isClosed() {
			q.mu.Unlock()
			return zero, ErrClosed
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-q.closed:
		case <-ctx.Done():
			return zero, errors.Mark(ctx.Err(), ErrCanceled)
		}
	}
}

// TryReceive removes and returns the oldest value without blocking.
func (q *Queue[T]) TryReceive() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

// Len returns the number of buffered values.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close wakes all blocked receivers. It is safe to call more than once.
func (q *Queue[T]) Close() {
	q.closeOnce.Do(func() {
		close(q.closed)
	})
}

// popLocked removes the head of the queue.
// Must be called with lock held.
func (q *Queue[T]) popLocked() (T, bool) {
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}

	v := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]

	// Pass the wake-up on to the next receiver
	if len(q.items) > 0 {
		q.signalLocked()
	}
	return v, true
}

// signalLocked records a pending wake-up without blocking.
// Must be called with lock held.
func (q *Queue[T]) signalLocked() {
	select {
	case q.notify <- struct{}{}:
	default:
		// A wake-up is already pending
	}
}

func (q *Queue[T]) isClosed() bool {
	select {
	case <-q.closed:
		return true
	default:
		return false
	}
}
