package link

import (
	"context"
	"sync"
)

// eventQueue is an unbounded FIFO of loop events. Posting never blocks, so
// transport callbacks cannot stall behind a busy loop.
type eventQueue struct {
	mu     sync.Mutex
	events []func()
	wake   chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{wake: make(chan struct{}, 1)}
}

func (q *eventQueue) push(fn func()) {
	q.mu.Lock()
	q.events = append(q.events, fn)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *eventQueue) drain() []func() {
	q.mu.Lock()
	defer q.mu.Unlock()
	events := q.events
	q.events = nil
	return events
}

// run executes queued events in order until Close.
func (m *Manager) run() {
	for {
		select {
		case <-m.done:
			return
		case <-m.queue.wake:
			for _, fn := range m.queue.drain() {
				fn()
			}
		}
	}
}

// post queues fn on the loop without waiting.
func (m *Manager) post(fn func()) {
	m.queue.push(fn)
}

// do runs fn on the loop and waits for its result.
func (m *Manager) do(ctx context.Context, fn func() error) error {
	select {
	case <-m.done:
		return ErrClosed
	default:
	}

	result := make(chan error, 1)
	m.post(func() { result <- fn() })

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrClosed
	}
}
