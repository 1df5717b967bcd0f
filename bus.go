package qbus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// Bus is the central Facade: it accepts publishes, owns queues and handler
// bindings, and gates dispatch with a Start/Stop lifecycle.
//
// A new Bus is Stopped: publishes are queued but no handler runs until Start.
type Bus struct {
	codec       Codec
	clock       xclock.Clock
	logger      *xlog.Logger
	middlewares []Middleware
	newID       func() string

	registry   *Registry
	dispatcher *Dispatcher

	stateMu sync.Mutex
	running atomic.Bool

	errCh         chan *HandlerError
	errorsDropped atomic.Uint64

	observerPool *ObserverPool
	observersMu  sync.RWMutex
	observers    []Observer

	baseCtx   context.Context
	metrics   *busMetrics
	closed    atomic.Bool
	closeOnce sync.Once
}

// busMetrics uses lock-free atomics for telemetry.
type busMetrics struct {
	publishCount atomic.Uint64
	consumeCount atomic.Uint64
	failCount    atomic.Uint64
	processingNs atomic.Int64
}

// Codec returns the configured codec (Strategy).
func (b *Bus) Codec() Codec { return b.codec }

// Start enables dispatch. Idempotent. Queues that already have both pending
// messages and a bound handler resume delivery.
func (b *Bus) Start() {
	if b.closed.Load() {
		return
	}
	b.stateMu.Lock()
	if b.running.Load() {
		b.stateMu.Unlock()
		return
	}
	b.running.Store(true)
	b.stateMu.Unlock()

	b.logger.Debug().Msg("qbus: started")
	b.notifyAsync(Event{Type: EventStarted})

	for _, q := range b.dispatcher.Queues() {
		b.dispatcher.schedule(q)
	}
}

// Stop disables dispatch. No handler call starts after Stop returns; pending
// messages stay queued and in-flight handlers run to completion.
func (b *Bus) Stop() {
	b.stateMu.Lock()
	if !b.running.Load() {
		b.stateMu.Unlock()
		return
	}
	// no delivery loop can claim a message once the fence returns
	b.registry.fence(func() { b.running.Store(false) })
	b.stateMu.Unlock()

	b.logger.Debug().Msg("qbus: stopped")
	b.notifyAsync(Event{Type: EventStopped})
}

// Running reports whether dispatch is active.
func (b *Bus) Running() bool { return b.running.Load() }

// Publish sends payload to queue as a new message and returns its id.
// It returns once the message is queued; it never waits for a handler.
func (b *Bus) Publish(ctx context.Context, queue string, payload []byte) (string, error) {
	if queue == "" {
		return "", ErrInvalidDestination
	}
	return b.Send(ctx, NewMessage(queue, payload))
}

// PublishValue encodes v with the bus codec and publishes it under name.
func (b *Bus) PublishValue(ctx context.Context, queue, name string, v any, meta map[string]string) (string, error) {
	if b.closed.Load() {
		return "", ErrBusClosed
	}
	if queue == "" {
		return "", ErrInvalidDestination
	}
	data, err := b.codec.Marshal(v)
	if err != nil {
		return "", err
	}
	return b.Send(ctx, NewMessage(queue, data, WithName(name), WithMetadata(meta)))
}

// Send routes a prepared message. An empty id is assigned by the bus.
func (b *Bus) Send(_ context.Context, msg *Message) (string, error) {
	if b.closed.Load() {
		return "", ErrBusClosed
	}
	if msg == nil || msg.queue == "" {
		return "", ErrInvalidDestination
	}

	id := msg.id
	if id == "" {
		id = b.newID()
	}
	m := msg.stamped(id, b.clock.Now())

	b.metrics.publishCount.Add(1)
	b.notifyAsync(Event{Type: EventPublished, Queue: m.queue, MessageID: m.id, Name: m.name})
	b.dispatcher.Route(m)
	return m.id, nil
}

// Subscribe binds handler to queue and immediately drains any pending
// messages to it, in order, before returning (when the bus is running and no
// other delivery loop owns the queue). Closing the returned Subscription, or
// cancelling ctx, unbinds the handler.
func (b *Bus) Subscribe(ctx context.Context, queue string, handler Handler) (Subscription, error) {
	if b.closed.Load() {
		return nil, ErrBusClosed
	}
	if queue == "" {
		return nil, ErrInvalidDestination
	}
	if handler == nil {
		return nil, ErrInvalidHandler
	}

	// Recovery wraps the handler itself; call() catches what middlewares raise.
	wh := Chain(RecoveryMiddleware()(handler), b.middlewares...)

	q := b.dispatcher.ensureQueue(queue)
	token, err := b.registry.Register(queue, wh)
	if err != nil {
		return nil, err
	}

	sub := &subscription{bus: b, queue: queue, token: token}
	if ctx != nil && ctx.Done() != nil {
		sub.stop = context.AfterFunc(ctx, sub.release)
	}

	b.notifyAsync(Event{Type: EventSubscribed, Queue: queue})
	b.dispatcher.Drain(q)
	return sub, nil
}

// Endpoint returns a send handle bound to queue.
func (b *Bus) Endpoint(queue string) (*SendEndpoint, error) {
	if b.closed.Load() {
		return nil, ErrBusClosed
	}
	if queue == "" {
		return nil, ErrInvalidDestination
	}
	return &SendEndpoint{bus: b, queue: queue}, nil
}

// PublishedCount returns how many messages were enqueued on queue.
func (b *Bus) PublishedCount(queue string) uint64 {
	if q, ok := b.dispatcher.Queue(queue); ok {
		return q.published.Load()
	}
	return 0
}

// ConsumedCount returns how many messages a handler processed successfully on queue.
func (b *Bus) ConsumedCount(queue string) uint64 {
	if q, ok := b.dispatcher.Queue(queue); ok {
		return q.consumed.Load()
	}
	return 0
}

// FailedCount returns how many handler invocations failed on queue.
func (b *Bus) FailedCount(queue string) uint64 {
	if q, ok := b.dispatcher.Queue(queue); ok {
		return q.failed.Load()
	}
	return 0
}

// PendingCount returns the number of messages waiting on queue.
func (b *Bus) PendingCount(queue string) int {
	if q, ok := b.dispatcher.Queue(queue); ok {
		return q.Len()
	}
	return 0
}

// HasQueue reports whether a queue with that name exists.
func (b *Bus) HasQueue(queue string) bool {
	_, ok := b.dispatcher.Queue(queue)
	return ok
}

// Queues returns a snapshot of every queue, sorted by name.
func (b *Bus) Queues() []QueueStats {
	qs := b.dispatcher.Queues()
	out := make([]QueueStats, 0, len(qs))
	for _, q := range qs {
		out = append(out, q.Stats())
	}
	return out
}

// Errors returns the channel on which handler failures are reported. When the
// buffer is full further failures are counted and dropped. It is never closed.
func (b *Bus) Errors() <-chan *HandlerError { return b.errCh }

// invoke runs one handler call outside any queue lock and records the outcome.
func (b *Bus) invoke(q *Queue, h Handler, msg *Message) {
	b.notifyAsync(Event{Type: EventConsumeStart, Queue: q.name, MessageID: msg.id, Name: msg.name})

	start := b.clock.Now()
	err := b.call(h, msg)
	duration := b.clock.Since(start)
	b.recordProcessingTime(duration.Nanoseconds())

	if err == nil {
		q.consumed.Add(1)
		b.metrics.consumeCount.Add(1)
		b.notifyAsync(Event{
			Type:      EventConsumed,
			Queue:     q.name,
			MessageID: msg.id,
			Name:      msg.name,
			Duration:  duration,
		})
		return
	}

	q.failed.Add(1)
	b.metrics.failCount.Add(1)
	herr := &HandlerError{Queue: q.name, MessageID: msg.id, Err: err}
	b.logger.Warn().
		Str("queue", q.name).
		Str("message_id", msg.id).
		Err(err).
		Msg("qbus: handler failed")
	b.notifyAsync(Event{
		Type:      EventHandlerFailure,
		Queue:     q.name,
		MessageID: msg.id,
		Name:      msg.name,
		Duration:  duration,
		Err:       herr,
	})
	b.reportError(herr)
}

// call is the dispatcher boundary: nothing a handler or middleware does escapes it.
func (b *Bus) call(h Handler, msg *Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	ctx := withDelivery(b.baseCtx, DeliveryInfo{Queue: msg.queue, MessageID: msg.id, Pending: b.PendingCount(msg.queue)})
	return h(ctx, msg)
}

func (b *Bus) reportError(herr *HandlerError) {
	select {
	case b.errCh <- herr:
	default:
		b.errorsDropped.Add(1)
		b.notifyAsync(Event{Type: EventErrorDropped, Queue: herr.Queue, MessageID: herr.MessageID, Err: herr})
	}
}

func (b *Bus) unsubscribe(queue string, token uint64) {
	if b.registry.unregisterToken(queue, token) {
		b.notifyAsync(Event{Type: EventUnsubscribed, Queue: queue})
	}
}

// GetMetrics returns current bus metrics.
func (b *Bus) GetMetrics() Metrics {
	qs := b.dispatcher.Queues()
	pending := 0
	for _, q := range qs {
		pending += q.Len()
	}
	return Metrics{
		Published:           b.metrics.publishCount.Load(),
		Consumed:            b.metrics.consumeCount.Load(),
		Failed:              b.metrics.failCount.Load(),
		Queues:              len(qs),
		Pending:             pending,
		ErrorsDropped:       b.errorsDropped.Load(),
		EventsDropped:       b.observerPool.Stats().Dropped,
		AvgProcessingTimeMs: float64(b.metrics.processingNs.Load()) / 1e6,
	}
}

// Health checks bus health for probes.
func (b *Bus) Health(_ context.Context) HealthStatus {
	if b.closed.Load() {
		return HealthStatus{
			Status:    "unhealthy",
			Timestamp: b.clock.Now(),
			Message:   "bus is closed",
		}
	}

	metrics := b.GetMetrics()
	status := "healthy"
	msg := ""

	// degraded if more than 5% of attempted deliveries failed
	attempted := metrics.Consumed + metrics.Failed
	if metrics.Failed > 0 && attempted > 0 {
		if float64(metrics.Failed)/float64(attempted) > 0.05 {
			status = "degraded"
			msg = "handler failure rate above 5%"
		}
	}
	if !b.running.Load() && msg == "" {
		msg = "dispatch stopped"
	}

	return HealthStatus{
		Status:    status,
		Running:   b.running.Load(),
		Metrics:   metrics,
		Timestamp: b.clock.Now(),
		Message:   msg,
	}
}

// Close stops dispatch, drops every binding and waits for background delivery
// loops to return. Pending messages are discarded with the bus.
func (b *Bus) Close(ctx context.Context) error {
	var closeErr error

	b.closeOnce.Do(func() {
		b.closed.Store(true)
		b.Stop()
		b.registry.Reset()

		done := make(chan struct{})
		go func() {
			b.dispatcher.wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			b.logger.Warn().Err(ctx.Err()).Msg("qbus: close interrupted while waiting for handlers")
			closeErr = ctx.Err()
		}

		if b.observerPool != nil {
			if err := b.observerPool.Close(5 * time.Second); err != nil {
				b.logger.Warn().Err(err).Msg("qbus: observer pool shutdown timeout")
				closeErr = err
			}
		}
	})

	return closeErr
}

// AddObserver registers an observer (thread-safe).
func (b *Bus) AddObserver(obs Observer) {
	if obs == nil {
		return
	}
	b.observersMu.Lock()
	b.observers = append(b.observers, obs)
	b.observersMu.Unlock()
}

// RemoveObserver removes an observer.
func (b *Bus) RemoveObserver(obs Observer) {
	if obs == nil {
		return
	}
	b.observersMu.Lock()
	defer b.observersMu.Unlock()

	for i, o := range b.observers {
		if o == obs {
			b.observers = append(b.observers[:i], b.observers[i+1:]...)
			break
		}
	}
}

// notifyAsync dispatches events through the observer pool (non-blocking).
func (b *Bus) notifyAsync(e Event) {
	if b.observerPool == nil {
		return
	}

	b.observersMu.RLock()
	if len(b.observers) == 0 {
		b.observersMu.RUnlock()
		return
	}
	observers := make([]Observer, len(b.observers))
	copy(observers, b.observers)
	b.observersMu.RUnlock()

	b.observerPool.Notify(e, observers)
}

// recordProcessingTime folds ns into an exponential moving average of
// handler latency.
func (b *Bus) recordProcessingTime(ns int64) {
	const alpha = 0.2
	for {
		current := b.metrics.processingNs.Load()
		next := ns
		if current != 0 {
			next = int64(float64(ns)*alpha + float64(current)*(1-alpha))
		}
		if b.metrics.processingNs.CompareAndSwap(current, next) {
			return
		}
	}
}

type subscription struct {
	bus   *Bus
	queue string
	token uint64
	once  sync.Once
	stop  func() bool
}

func (s *subscription) Queue() string { return s.queue }

// Close unbinds the handler. Future messages stay queued; an in-flight call
// is not interrupted.
func (s *subscription) Close() error {
	if s.stop != nil {
		s.stop()
	}
	s.release()
	return nil
}

func (s *subscription) release() {
	s.once.Do(func() { s.bus.unsubscribe(s.queue, s.token) })
}

// FlushEvents waits until every observer event emitted so far has been delivered.
func (b *Bus) FlushEvents(ctx context.Context) error {
	if b.observerPool == nil {
		return nil
	}
	return b.observerPool.Flush(ctx)
}
