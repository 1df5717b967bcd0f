package qbus

import (
	"sort"
	"sync"
)

// invokeFunc delivers one dequeued message to its handler and records the outcome.
type invokeFunc func(q *Queue, h Handler, msg *Message)

// Dispatcher owns the queue table and moves messages from queues to bound handlers.
//
// At most one delivery loop runs per queue at a time (Queue.deliverMu), which keeps
// FIFO order and the single-consumer contract. Handlers run outside the queue lock,
// so a handler may publish back into its own queue.
type Dispatcher struct {
	mu     sync.RWMutex
	queues map[string]*Queue

	registry *Registry
	gate     func() bool
	invoke   invokeFunc
	async    bool
	created  func(q *Queue)

	spawnMu sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

func newDispatcher(reg *Registry, gate func() bool, invoke invokeFunc, async bool) *Dispatcher {
	return &Dispatcher{
		queues:   make(map[string]*Queue),
		registry: reg,
		gate:     gate,
		invoke:   invoke,
		async:    async,
	}
}

// Queue returns the queue for name if it exists.
func (d *Dispatcher) Queue(name string) (*Queue, bool) {
	d.mu.RLock()
	q, ok := d.queues[name]
	d.mu.RUnlock()
	return q, ok
}

// ensureQueue returns the queue for name, creating it on first use.
func (d *Dispatcher) ensureQueue(name string) *Queue {
	if q, ok := d.Queue(name); ok {
		return q
	}

	d.mu.Lock()
	// double-check after acquiring the write lock
	if q, ok := d.queues[name]; ok {
		d.mu.Unlock()
		return q
	}
	q := newQueue(name)
	d.queues[name] = q
	d.mu.Unlock()

	if d.created != nil {
		d.created(q)
	}
	return q
}

// Queues returns every queue, sorted by name.
func (d *Dispatcher) Queues() []*Queue {
	d.mu.RLock()
	out := make([]*Queue, 0, len(d.queues))
	for _, q := range d.queues {
		out = append(out, q)
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// Route enqueues msg on its destination queue and schedules delivery.
func (d *Dispatcher) Route(msg *Message) *Queue {
	q := d.ensureQueue(msg.queue)
	q.Enqueue(msg)
	d.schedule(q)
	return q
}

// RouteBatch enqueues msgs contiguously on queue and schedules delivery.
func (d *Dispatcher) RouteBatch(queue string, msgs []*Message) *Queue {
	q := d.ensureQueue(queue)
	q.EnqueueBatch(msgs...)
	d.schedule(q)
	return q
}

// schedule starts delivery for q if the bus is running and a handler is bound.
func (d *Dispatcher) schedule(q *Queue) {
	if !d.ready(q) {
		return
	}
	if !d.async {
		d.Drain(q)
		return
	}

	d.spawnMu.Lock()
	if d.closing {
		d.spawnMu.Unlock()
		return
	}
	d.wg.Add(1)
	d.spawnMu.Unlock()

	go func() {
		defer d.wg.Done()
		d.Drain(q)
	}()
}

// Drain delivers pending messages of q to its handler in FIFO order until the
// queue is empty, the bus stops or the handler is unbound. If another loop
// already owns the queue it returns immediately; that loop picks up the rest.
// It returns the number of messages handed to the handler.
func (d *Dispatcher) Drain(q *Queue) int {
	delivered := 0
	for {
		if !q.deliverMu.TryLock() {
			return delivered
		}
		delivered += d.drainLocked(q)
		q.deliverMu.Unlock()

		// A publisher may have enqueued after our last Dequeue but failed
		// TryLock while we still held it; re-check before leaving.
		if !d.ready(q) {
			return delivered
		}
	}
}

func (d *Dispatcher) drainLocked(q *Queue) int {
	n := 0
	for {
		h, msg, ok := d.registry.claim(q, d.gate)
		if !ok {
			return n
		}
		d.invoke(q, h, msg)
		n++
	}
}

func (d *Dispatcher) ready(q *Queue) bool {
	if !d.gate() || q.Len() == 0 {
		return false
	}
	_, ok := d.registry.Lookup(q.name)
	return ok
}

// wait blocks until every background delivery loop has returned.
// No new loops are spawned afterwards.
func (d *Dispatcher) wait() {
	d.spawnMu.Lock()
	d.closing = true
	d.spawnMu.Unlock()
	d.wg.Wait()
}
