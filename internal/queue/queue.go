// Package queue is the bounded FIFO hand-off between goroutines that encode
// outbound PDUs and the single goroutine that writes them to the transport.
package queue

import (
	"context"
	"errors"
	"sync"
)

// DefaultCapacity matches the write channel depth used by the writer.
const DefaultCapacity = 256

// ErrClosed is returned by Push after Close, and by Pop once a closed queue
// has drained.
var ErrClosed = errors.New("queue closed")

// Queue is a strict FIFO of byte slices. Any number of goroutines may Push;
// one goroutine is expected to Pop.
type Queue struct {
	ch     chan []byte
	done   chan struct{}
	mu     sync.Mutex
	closed bool
}

// New returns a queue holding at most capacity items.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{
		ch:   make(chan []byte, capacity),
		done: make(chan struct{}),
	}
}

// Push enqueues p, blocking while the queue is full. The item channel is
// never closed, so a Push racing Close returns ErrClosed instead of panicking.
func (q *Queue) Push(ctx context.Context, p []byte) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.mu.Unlock()

	select {
	case q.ch <- p:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pop dequeues the oldest item, blocking until one is available. After
// Close, remaining items are still returned before ErrClosed.
func (q *Queue) Pop(ctx context.Context) ([]byte, error) {
	select {
	case p := <-q.ch:
		return p, nil
	default:
	}
	select {
	case p := <-q.ch:
		return p, nil
	case <-q.done:
		select {
		case p := <-q.ch:
			return p, nil
		default:
			return nil, ErrClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryPop dequeues without blocking.
func (q *Queue) TryPop() ([]byte, bool) {
	select {
	case p := <-q.ch:
		return p, true
	default:
		return nil, false
	}
}

// Len returns the number of queued items.
func (q *Queue) Len() int { return len(q.ch) }

// Close stops accepting new items. Idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
}
