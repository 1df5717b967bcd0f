package qbus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// ObserverPool fans events out to observers on a fixed set of goroutines so
// that publish and delivery never wait on an observer. When the buffer is full
// the event is dropped and counted.
type ObserverPool struct {
	mu     sync.RWMutex // guards closed and sends on events
	closed bool
	events chan *Event

	workers int
	wg      sync.WaitGroup

	dropped   atomic.Uint64
	processed atomic.Uint64
	inflight  atomic.Int64
}

// NewObserverPool starts workers goroutines reading from a buffer of
// bufferSize events. Non-positive values fall back to 4 and 1024.
func NewObserverPool(workers, bufferSize int) *ObserverPool {
	if workers < 1 {
		workers = 4
	}
	if bufferSize < 1 {
		bufferSize = 1024
	}

	op := &ObserverPool{
		events:  make(chan *Event, bufferSize),
		workers: workers,
	}
	for range workers {
		op.wg.Go(op.run)
	}
	return op
}

// Notify hands e to the pool for the given observers and returns at once.
func (op *ObserverPool) Notify(e Event, observers []Observer) {
	if len(observers) == 0 {
		return
	}
	e.observers = observers

	op.mu.RLock()
	defer op.mu.RUnlock()
	if op.closed {
		return
	}

	op.inflight.Add(1)
	select {
	case op.events <- &e:
	default:
		op.inflight.Add(-1)
		op.dropped.Add(1)
	}
}

// run consumes events until Close shuts the channel and the buffer is empty.
func (op *ObserverPool) run() {
	for e := range op.events {
		op.deliver(e)
	}
}

func (op *ObserverPool) deliver(e *Event) {
	defer op.inflight.Add(-1)
	for _, obs := range e.observers {
		if obs != nil {
			safeNotify(obs, *e)
		}
	}
	op.processed.Add(1)
}

// safeNotify shields the worker from a panicking observer.
func safeNotify(obs Observer, e Event) {
	defer func() { _ = recover() }()
	obs.OnEvent(e)
}

// Flush blocks until every event accepted so far has been delivered, or ctx ends.
func (op *ObserverPool) Flush(ctx context.Context) error {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for op.inflight.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Close stops accepting events, lets the workers finish the buffer and waits
// for them up to timeout. Later calls are no-ops.
func (op *ObserverPool) Close(timeout time.Duration) error {
	op.mu.Lock()
	if op.closed {
		op.mu.Unlock()
		return nil
	}
	op.closed = true
	close(op.events)
	op.mu.Unlock()

	done := make(chan struct{})
	go func() {
		op.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrObserverPoolShutdownTimeout
	}
}

// Stats returns a snapshot of the pool counters.
func (op *ObserverPool) Stats() PoolStats {
	return PoolStats{
		Dropped:      op.dropped.Load(),
		Processed:    op.processed.Load(),
		ActiveEvents: len(op.events),
		Workers:      op.workers,
		BufferSize:   cap(op.events),
	}
}
