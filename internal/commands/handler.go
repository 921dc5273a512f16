// Package commands turns requester commands arriving on the inbound bus into
// scheduler calls and replies on the outbound bus.
package commands

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/aatumaykin/shuttlewatch/internal/bus"
	"github.com/aatumaykin/shuttlewatch/internal/job"
	"github.com/aatumaykin/shuttlewatch/internal/logger"
	"github.com/aatumaykin/shuttlewatch/internal/store"
	"github.com/google/uuid"
)

// Scheduler is the job control surface the commands drive.
type Scheduler interface {
	CreateJob(ctx context.Context, owner string, j job.Job) (job.Job, error)
	StopAll(owner string) (int, error)
	ListActive(owner string) []job.Job
	RemoveActive(owner string, position int) (job.Job, error)
}

// MessageBusInterface is where replies are published.
type MessageBusInterface interface {
	PublishOutbound(msg bus.OutboundMessage) error
}

// Handler handles requester commands and the button menu behind /start.
// Messages are handled one at a time.
type Handler struct {
	scheduler  Scheduler
	messageBus MessageBusInterface
	catalogue  *job.Catalogue
	logger     *logger.Logger
	now        func() time.Time
	location   *time.Location

	mu      sync.Mutex
	wizards map[string]*wizard
}

// Option configures a Handler.
type Option func(*Handler)

// WithLocation sets the timezone the date menu counts days in.
func WithLocation(loc *time.Location) Option {
	return func(h *Handler) {
		if loc != nil {
			h.location = loc
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

func NewHandler(scheduler Scheduler, messageBus MessageBusInterface, catalogue *job.Catalogue, log *logger.Logger, opts ...Option) *Handler {
	h := &Handler{
		scheduler:  scheduler,
		messageBus: messageBus,
		catalogue:  catalogue,
		logger:     log,
		now:        time.Now,
		location:   time.UTC,
		wizards:    make(map[string]*wizard),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run handles inbound messages until ctx ends or in is closed.
func (h *Handler) Run(ctx context.Context, in <-chan bus.InboundMessage) {
	h.logger.Info("command handler started")
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("command handler stopped")
			return
		case msg, ok := <-in:
			if !ok {
				h.logger.Info("inbound channel closed")
				return
			}
			if err := h.Handle(ctx, msg); err != nil {
				h.logger.ErrorCtx(ctx, "failed to handle command", err,
					logger.Field{Key: "session_id", Value: msg.SessionID})
			}
		}
	}
}

// Handle processes one message. The requester's user id is the job owner.
func (h *Handler) Handle(ctx context.Context, msg bus.InboundMessage) error {
	if msg.IsCallback() {
		return h.handleCallback(ctx, msg)
	}

	name, args := splitCommand(msg.Content)
	owner := msg.UserID

	h.logger.DebugCtx(ctx, "command received",
		logger.Field{Key: "command", Value: name},
		logger.Field{Key: "owner", Value: owner})

	switch name {
	case CommandStart:
		return h.startWizard(msg)
	case CommandHelp:
		return h.reply(msg, HelpText(h.catalogue))
	case CommandWatch:
		return h.handleWatch(ctx, msg, args)
	case CommandList:
		return h.reply(msg, ActiveList(h.scheduler.ListActive(owner)))
	case CommandStop:
		return h.handleStop(ctx, msg)
	case CommandRemove:
		return h.handleRemove(ctx, msg, args)
	default:
		return h.reply(msg, msgUnknownCommand)
	}
}

func (h *Handler) handleWatch(ctx context.Context, msg bus.InboundMessage, args []string) error {
	j, err := ParseWatchArgs(h.catalogue, args)
	if err != nil {
		return h.reply(msg, "❌ "+err.Error()+"\nUsage: "+WatchUsage)
	}

	stored, err := h.scheduler.CreateJob(ctx, msg.UserID, j)
	if err != nil {
		var verr *job.ValidationError
		if errors.As(err, &verr) {
			return h.reply(msg, "❌ "+verr.Error())
		}
		h.logger.ErrorCtx(ctx, "failed to create job", err,
			logger.Field{Key: "owner", Value: msg.UserID})
		return h.reply(msg, msgFailed)
	}
	return h.reply(msg, MonitoringSummary(stored))
}

func (h *Handler) handleStop(ctx context.Context, msg bus.InboundMessage) error {
	n, err := h.scheduler.StopAll(msg.UserID)
	switch {
	case errors.Is(err, store.ErrOwnerNotFound):
		return h.reply(msg, msgNothingToStop)
	case err != nil:
		h.logger.ErrorCtx(ctx, "failed to stop jobs", err,
			logger.Field{Key: "owner", Value: msg.UserID})
		return h.reply(msg, msgFailed)
	}
	h.logger.InfoCtx(ctx, "jobs stopped by requester",
		logger.Field{Key: "owner", Value: msg.UserID},
		logger.Field{Key: "count", Value: n})
	return h.reply(msg, msgStopped)
}

func (h *Handler) handleRemove(ctx context.Context, msg bus.InboundMessage, args []string) error {
	if len(args) != 1 {
		return h.reply(msg, msgRemoveUsage)
	}
	position, err := strconv.Atoi(args[0])
	if err != nil || position < 1 {
		return h.reply(msg, msgRemoveUsage)
	}

	_, err = h.scheduler.RemoveActive(msg.UserID, position)
	switch {
	case err == nil:
		return h.reply(msg, msgRemoved)
	case errors.Is(err, store.ErrOwnerNotFound):
		return h.reply(msg, msgNoPrompts)
	case errors.Is(err, store.ErrNoActiveJobs):
		return h.reply(msg, msgNoActive)
	case errors.Is(err, store.ErrInvalidPosition):
		return h.reply(msg, msgInvalidIndex)
	default:
		h.logger.ErrorCtx(ctx, "failed to remove job", err,
			logger.Field{Key: "owner", Value: msg.UserID})
		return h.reply(msg, msgFailed)
	}
}

func (h *Handler) reply(msg bus.InboundMessage, text string) error {
	out := bus.NewOutboundMessage(msg.ChannelType, msg.UserID, text, uuid.NewString())
	return h.messageBus.PublishOutbound(*out)
}
