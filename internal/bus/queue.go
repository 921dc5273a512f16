package bus

import (
	"context"
	"errors"
	"sync"

	"github.com/aatumaykin/shuttlewatch/internal/logger"
)

var (
	ErrQueueFull      = errors.New("queue is full")
	ErrAlreadyStarted = errors.New("message bus is already started")
	ErrNotStarted     = errors.New("message bus is not started")
)

// subscriberBuffer is the per-subscriber channel size.
const subscriberBuffer = 64

// topic is one direction of the bus: a bounded queue fanned out to subscribers.
type topic[T any] struct {
	name string
	ch   chan T
	subs map[int64]chan T
}

func newTopic[T any](name string, capacity int) *topic[T] {
	return &topic[T]{
		name: name,
		ch:   make(chan T, capacity),
		subs: make(map[int64]chan T),
	}
}

// MessageBus is an asynchronous queue for inbound and outbound messages.
type MessageBus struct {
	mu       sync.RWMutex
	logger   *logger.Logger
	capacity int
	ctx      context.Context
	cancel   context.CancelFunc
	started  bool
	wg       sync.WaitGroup

	inbound  *topic[InboundMessage]
	outbound *topic[OutboundMessage]

	subscriberID int64
}

// New creates a new MessageBus with the specified capacity for both queues
func New(capacity int, logger *logger.Logger) *MessageBus {
	if capacity <= 0 {
		capacity = 100
	}
	return &MessageBus{
		logger:   logger,
		capacity: capacity,
		inbound:  newTopic[InboundMessage]("inbound", capacity),
		outbound: newTopic[OutboundMessage]("outbound", capacity),
	}
}

// Start starts the distribution goroutines
func (mb *MessageBus) Start(ctx context.Context) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if mb.started {
		return ErrAlreadyStarted
	}

	mb.ctx, mb.cancel = context.WithCancel(ctx)
	mb.started = true

	mb.wg.Add(2)
	go distribute(mb, mb.inbound)
	go distribute(mb, mb.outbound)

	mb.logger.Info("message bus started", logger.Field{Key: "capacity", Value: mb.capacity})
	return nil
}

// Stop stops distribution and closes every subscriber channel. Messages still
// queued are dropped.
func (mb *MessageBus) Stop() error {
	mb.mu.Lock()
	if !mb.started {
		mb.mu.Unlock()
		return ErrNotStarted
	}
	mb.cancel()
	mb.started = false
	mb.mu.Unlock()

	mb.wg.Wait()

	mb.mu.Lock()
	closeSubscribers(mb.inbound)
	closeSubscribers(mb.outbound)
	mb.inbound = newTopic[InboundMessage]("inbound", mb.capacity)
	mb.outbound = newTopic[OutboundMessage]("outbound", mb.capacity)
	mb.mu.Unlock()

	mb.logger.Info("message bus stopped")
	return nil
}

// PublishInbound publishes an inbound message to the queue
func (mb *MessageBus) PublishInbound(msg InboundMessage) error {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	return publish(mb, mb.inbound, msg, msg.SessionID)
}

// PublishOutbound publishes an outbound message to the queue
func (mb *MessageBus) PublishOutbound(msg OutboundMessage) error {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	return publish(mb, mb.outbound, msg, msg.SessionID)
}

// SubscribeInbound subscribes to inbound messages. It returns nil when the bus
// is not started.
func (mb *MessageBus) SubscribeInbound(ctx context.Context) <-chan InboundMessage {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return subscribe(ctx, mb, mb.inbound)
}

// SubscribeOutbound subscribes to outbound messages. It returns nil when the
// bus is not started.
func (mb *MessageBus) SubscribeOutbound(ctx context.Context) <-chan OutboundMessage {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return subscribe(ctx, mb, mb.outbound)
}

// IsStarted returns true if the message bus is started
func (mb *MessageBus) IsStarted() bool {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	return mb.started
}

// publish must be called with mb.mu held for reading.
func publish[T any](mb *MessageBus, t *topic[T], msg T, sessionID string) error {
	if !mb.started {
		return ErrNotStarted
	}

	select {
	case t.ch <- msg:
		mb.logger.DebugCtx(mb.ctx, t.name+" message published",
			logger.Field{Key: "session_id", Value: sessionID})
		return nil
	default:
		mb.logger.WarnCtx(mb.ctx, t.name+" queue full",
			logger.Field{Key: "capacity", Value: cap(t.ch)})
		return ErrQueueFull
	}
}

// subscribe must be called with mb.mu held.
func subscribe[T any](ctx context.Context, mb *MessageBus, t *topic[T]) <-chan T {
	if !mb.started {
		return nil
	}

	ch := make(chan T, subscriberBuffer)
	mb.subscriberID++
	id := mb.subscriberID
	t.subs[id] = ch

	mb.logger.DebugCtx(ctx, t.name+" subscriber added",
		logger.Field{Key: "subscriber_id", Value: id})
	return ch
}

func distribute[T any](mb *MessageBus, t *topic[T]) {
	defer mb.wg.Done()
	for {
		select {
		case <-mb.ctx.Done():
			return
		case msg := <-t.ch:
			mb.mu.RLock()
			for _, ch := range t.subs {
				select {
				case ch <- msg:
				default:
					mb.logger.WarnCtx(mb.ctx, t.name+" subscriber channel full, skipping message")
				}
			}
			mb.mu.RUnlock()
		}
	}
}

func closeSubscribers[T any](t *topic[T]) {
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
}
