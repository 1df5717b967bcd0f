package qbus

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// BusBuilder constructs Bus instances (Builder pattern).
type BusBuilder struct {
	codecName string
	codecInst Codec

	middlewares []Middleware
	observers   []Observer
	logger      *xlog.Logger
	clock       xclock.Clock
	idGen       func() string

	syncDispatch   bool
	errorBuffer    int
	poolWorkers    int
	poolBuffer     int
	handlerTimeout time.Duration
	autoStart      bool
}

// NewBusBuilder returns a new builder with sensible defaults.
func NewBusBuilder() *BusBuilder {
	return &BusBuilder{
		codecName:   "json",
		errorBuffer: 256,
		poolWorkers: 4,
		poolBuffer:  1024,
	}
}

func (bb *BusBuilder) WithCodec(name string) *BusBuilder {
	bb.codecName = name
	return bb
}

// WithCodecInstance accepts a ready Codec instance.
func (bb *BusBuilder) WithCodecInstance(c Codec) *BusBuilder {
	bb.codecInst = c
	return bb
}

func (bb *BusBuilder) WithMiddleware(mw ...Middleware) *BusBuilder {
	bb.middlewares = append(bb.middlewares, mw...)
	return bb
}

func (bb *BusBuilder) WithObserver(obs ...Observer) *BusBuilder {
	for _, o := range obs {
		if o != nil {
			bb.observers = append(bb.observers, o)
		}
	}
	return bb
}

func (bb *BusBuilder) WithLogger(l *xlog.Logger) *BusBuilder {
	bb.logger = l
	return bb
}

func (bb *BusBuilder) WithClock(c xclock.Clock) *BusBuilder {
	bb.clock = c
	return bb
}

// WithIDGenerator replaces uuid.NewString as the message id source.
func (bb *BusBuilder) WithIDGenerator(f func() string) *BusBuilder {
	bb.idGen = f
	return bb
}

// WithSyncDispatch makes publish deliver on the caller's goroutine instead of
// a background one. A publish from inside a handler is still only enqueued;
// the running delivery loop picks it up.
func (bb *BusBuilder) WithSyncDispatch(enabled bool) *BusBuilder {
	bb.syncDispatch = enabled
	return bb
}

// WithErrorBuffer sizes the channel returned by Bus.Errors.
func (bb *BusBuilder) WithErrorBuffer(n int) *BusBuilder {
	if n >= 0 {
		bb.errorBuffer = n
	}
	return bb
}

// WithObserverPool configures the async observer pool.
func (bb *BusBuilder) WithObserverPool(workers, bufferSize int) *BusBuilder {
	bb.poolWorkers = workers
	bb.poolBuffer = bufferSize
	return bb
}

// WithHandlerTimeout wraps every handler in TimeoutMiddleware(d).
func (bb *BusBuilder) WithHandlerTimeout(d time.Duration) *BusBuilder {
	if d > 0 {
		bb.handlerTimeout = d
	}
	return bb
}

// WithAutoStart returns a bus that is already Running.
func (bb *BusBuilder) WithAutoStart(enabled bool) *BusBuilder {
	bb.autoStart = enabled
	return bb
}

func (bb *BusBuilder) Build() (*Bus, error) {
	var cd Codec
	if bb.codecInst != nil {
		cd = bb.codecInst
	} else {
		var err error
		cd, err = NewCodec(bb.codecName)
		if err != nil {
			return nil, err
		}
	}

	clk := bb.clock
	if clk == nil {
		clk = xclock.Default()
	}
	lg := bb.logger
	if lg == nil {
		lg = xlog.Default()
	}
	idGen := bb.idGen
	if idGen == nil {
		idGen = uuid.NewString
	}

	mws := make([]Middleware, 0, len(bb.middlewares)+1)
	if bb.handlerTimeout > 0 {
		mws = append(mws, TimeoutMiddleware(bb.handlerTimeout))
	}
	mws = append(mws, bb.middlewares...)

	b := &Bus{
		codec:        cd,
		clock:        clk,
		logger:       lg,
		middlewares:  mws,
		newID:        idGen,
		registry:     NewRegistry(),
		errCh:        make(chan *HandlerError, bb.errorBuffer),
		observerPool: NewObserverPool(bb.poolWorkers, bb.poolBuffer),
		metrics:      &busMetrics{},
	}
	b.baseCtx = InjectAll(context.Background(), cd, lg, clk)
	b.dispatcher = newDispatcher(b.registry, b.running.Load, b.invoke, !bb.syncDispatch)
	b.dispatcher.created = func(q *Queue) {
		b.notifyAsync(Event{Type: EventQueueCreated, Queue: q.name})
	}

	// Logging observer first unless one was supplied.
	hasLoggingObserver := false
	for _, o := range bb.observers {
		if _, ok := o.(LoggingObserver); ok {
			hasLoggingObserver = true
			break
		}
	}
	if !hasLoggingObserver {
		b.AddObserver(LoggingObserver{Logger: lg})
	}
	for _, o := range bb.observers {
		b.AddObserver(o)
	}

	if bb.autoStart {
		b.Start()
	}
	return b, nil
}

// New constructs a Bus via Builder and returns a close func for convenience.
func New(init func(b *BusBuilder)) (*Bus, func() error, error) {
	b := NewBusBuilder()
	if init != nil {
		init(b)
	}
	bus, err := b.Build()
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() error { return bus.Close(context.Background()) }
	return bus, closeFn, nil
}
