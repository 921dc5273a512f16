// Package notify delivers short status messages to the requester who owns a
// job. Delivery is fire-and-forget: implementations log failures and never
// return them to the caller.
package notify

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/aatumaykin/shuttlewatch/internal/bus"
	"github.com/aatumaykin/shuttlewatch/internal/logger"
)

// Handle identifies a delivered message so it can be replaced later. The zero
// value means nothing was delivered.
type Handle string

// Notifier sends messages to an owner.
type Notifier interface {
	Send(ctx context.Context, owner, text string) Handle
	Replace(ctx context.Context, owner string, h Handle, text string)
}

// Publisher is the part of the message bus the BusNotifier needs.
type Publisher interface {
	PublishOutbound(msg bus.OutboundMessage) error
}

// BusNotifier queues messages on the outbound bus for the transport.
type BusNotifier struct {
	publisher Publisher
	channel   bus.ChannelType
	logger    *logger.Logger
}

func NewBusNotifier(publisher Publisher, channel bus.ChannelType, log *logger.Logger) *BusNotifier {
	return &BusNotifier{publisher: publisher, channel: channel, logger: log}
}

func (n *BusNotifier) Send(ctx context.Context, owner, text string) Handle {
	id := uuid.NewString()
	msg := bus.NewOutboundMessage(n.channel, owner, text, id)
	if err := n.publisher.PublishOutbound(*msg); err != nil {
		n.logger.ErrorCtx(ctx, "failed to queue notification", err,
			logger.Field{Key: "owner", Value: owner})
		return ""
	}
	return Handle(id)
}

// Replace rewrites the message behind h. Without a handle it sends a new one.
func (n *BusNotifier) Replace(ctx context.Context, owner string, h Handle, text string) {
	if h == "" {
		n.Send(ctx, owner, text)
		return
	}
	msg := bus.NewEditMessage(n.channel, owner, text, uuid.NewString(), string(h))
	if err := n.publisher.PublishOutbound(*msg); err != nil {
		n.logger.ErrorCtx(ctx, "failed to queue notification edit", err,
			logger.Field{Key: "owner", Value: owner})
	}
}

// LogNotifier writes notifications to the log instead of delivering them.
type LogNotifier struct {
	logger *logger.Logger
}

func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{logger: log}
}

func (n *LogNotifier) Send(ctx context.Context, owner, text string) Handle {
	id := uuid.NewString()
	n.logger.InfoCtx(ctx, text,
		logger.Field{Key: "owner", Value: owner},
		logger.Field{Key: "handle", Value: id})
	return Handle(id)
}

func (n *LogNotifier) Replace(ctx context.Context, owner string, h Handle, text string) {
	n.logger.InfoCtx(ctx, text,
		logger.Field{Key: "owner", Value: owner},
		logger.Field{Key: "replaces", Value: string(h)})
}

// Message is one notification captured by a Recorder.
type Message struct {
	Owner    string
	Text     string
	Handle   Handle
	Replaces Handle
}

// Recorder keeps every notification in memory.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

func (r *Recorder) Send(ctx context.Context, owner, text string) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := Handle(uuid.NewString())
	r.messages = append(r.messages, Message{Owner: owner, Text: text, Handle: h})
	return h
}

func (r *Recorder) Replace(ctx context.Context, owner string, h Handle, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, Message{Owner: owner, Text: text, Replaces: h})
}

// Messages returns a copy of everything recorded so far.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// Texts returns the recorded texts in order.
func (r *Recorder) Texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	texts := make([]string, len(r.messages))
	for i, m := range r.messages {
		texts[i] = m.Text
	}
	return texts
}
