package qbus

import (
	"sync"
)

// binding ties one handler to one queue name.
type binding struct {
	token   uint64
	queue   string
	handler Handler
}

// Registry tracks which handler is bound to which queue. One handler per queue.
type Registry struct {
	mu       sync.RWMutex
	bindings map[string]*binding
	seq      uint64
}

// NewRegistry returns an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{bindings: make(map[string]*binding)}
}

// Register binds h to queue. It fails with ErrAlreadyBound when the queue
// already has a handler; the existing binding is left untouched.
func (r *Registry) Register(queue string, h Handler) (uint64, error) {
	if queue == "" {
		return 0, ErrInvalidDestination
	}
	if h == nil {
		return 0, ErrInvalidHandler
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.bindings[queue]; ok {
		return 0, ErrAlreadyBound
	}
	r.seq++
	r.bindings[queue] = &binding{token: r.seq, queue: queue, handler: h}
	return r.seq, nil
}

// Unregister removes the binding for queue. No-op if none exists.
func (r *Registry) Unregister(queue string) {
	r.mu.Lock()
	delete(r.bindings, queue)
	r.mu.Unlock()
}

// unregisterToken removes the binding only if it is still the one identified
// by token, so a stale subscription never unbinds a newer handler.
func (r *Registry) unregisterToken(queue string, token uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bindings[queue]
	if !ok || b.token != token {
		return false
	}
	delete(r.bindings, queue)
	return true
}

// Lookup returns the handler bound to queue.
func (r *Registry) Lookup(queue string) (Handler, bool) {
	r.mu.RLock()
	b, ok := r.bindings[queue]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return b.handler, true
}

// claim hands out the next message of q together with its handler. The gate
// check, the binding lookup and the dequeue happen under the read lock, so once
// Unregister, unregisterToken or fence has returned no claim can still pick a
// message for a removed binding or a closed gate.
func (r *Registry) claim(q *Queue, open func() bool) (Handler, *Message, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !open() {
		return nil, nil, false
	}
	b, ok := r.bindings[q.name]
	if !ok {
		return nil, nil, false
	}
	msg, err := q.Dequeue()
	if err != nil {
		return nil, nil, false
	}
	return b.handler, msg, true
}

// fence runs f with every claim excluded.
func (r *Registry) fence(f func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f()
}

// Bound returns the names of all queues with a handler.
func (r *Registry) Bound() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.bindings))
	for name := range r.bindings {
		out = append(out, name)
	}
	return out
}

// Reset drops every binding.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.bindings = make(map[string]*binding)
	r.mu.Unlock()
}
