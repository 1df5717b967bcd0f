package qbus

import (
	"sync"
	"sync/atomic"
)

// Queue is a named FIFO of pending messages.
type Queue struct {
	name string

	mu      sync.Mutex
	pending []*Message

	// deliverMu is held by the single delivery loop of this queue.
	// It is separate from mu so handlers never run under the queue lock.
	deliverMu sync.Mutex

	published atomic.Uint64
	consumed  atomic.Uint64
	failed    atomic.Uint64
}

func newQueue(name string) *Queue {
	return &Queue{name: name}
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

// Enqueue appends msg to the tail. It never blocks on consumers and never fails.
func (q *Queue) Enqueue(msg *Message) {
	q.mu.Lock()
	q.pending = append(q.pending, msg)
	q.mu.Unlock()
	q.published.Add(1)
}

// EnqueueBatch appends msgs contiguously.
func (q *Queue) EnqueueBatch(msgs ...*Message) {
	if len(msgs) == 0 {
		return
	}
	q.mu.Lock()
	q.pending = append(q.pending, msgs...)
	q.mu.Unlock()
	q.published.Add(uint64(len(msgs)))
}

// Dequeue removes and returns the oldest pending message, or ErrEmpty.
func (q *Queue) Dequeue() (*Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil, ErrEmpty
	}
	msg := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	if len(q.pending) == 0 {
		// release the backing array once drained
		q.pending = nil
	}
	return msg, nil
}

// Len reports the number of pending messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// QueueStats is a point-in-time view of a queue.
type QueueStats struct {
	Name      string
	Pending   int
	Published uint64
	Consumed  uint64
	Failed    uint64
}

// Stats returns the queue counters.
func (q *Queue) Stats() QueueStats {
	return QueueStats{
		Name:      q.name,
		Pending:   q.Len(),
		Published: q.published.Load(),
		Consumed:  q.consumed.Load(),
		Failed:    q.failed.Load(),
	}
}
