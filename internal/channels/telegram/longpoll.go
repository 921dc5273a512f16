package telegram

import (
	"context"

	"github.com/aatumaykin/shuttlewatch/internal/logger"
	"github.com/mymmrac/telego"
)

// LongPollManager handles long polling for Telegram updates.
type LongPollManager struct {
	connector *Connector
	logger    *logger.Logger
}

func NewLongPollManager(connector *Connector, logger *logger.Logger) *LongPollManager {
	return &LongPollManager{
		connector: connector,
		logger:    logger,
	}
}

// Start polls for updates until ctx ends or the update channel closes.
func (lpm *LongPollManager) Start(ctx context.Context) {
	lpm.logger.Info("starting long polling for telegram updates")

	updates, err := lpm.connector.bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message", "callback_query"},
	})
	if err != nil {
		lpm.logger.ErrorCtx(ctx, "failed to start long polling", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			lpm.logger.Info("long polling stopped")
			return
		case update, ok := <-updates:
			if !ok {
				lpm.logger.Info("updates channel closed")
				return
			}
			if err := lpm.connector.updateHandler.Handle(ctx, update); err != nil {
				lpm.logger.ErrorCtx(ctx, "failed to handle update", err)
			}
		}
	}
}
