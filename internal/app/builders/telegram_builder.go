package builders

import (
	"context"
	"fmt"

	"github.com/aatumaykin/shuttlewatch/internal/bus"
	"github.com/aatumaykin/shuttlewatch/internal/channels/telegram"
	"github.com/aatumaykin/shuttlewatch/internal/config"
	"github.com/aatumaykin/shuttlewatch/internal/logger"
)

type TelegramBuilder struct {
	config     *config.Config
	logger     *logger.Logger
	messageBus *bus.MessageBus
	bot        telegram.BotInterface
}

func NewTelegramBuilder(cfg *config.Config, log *logger.Logger, mb *bus.MessageBus) *TelegramBuilder {
	return &TelegramBuilder{
		config:     cfg,
		logger:     log,
		messageBus: mb,
	}
}

// WithBot makes the connector use bot instead of dialing the Bot API.
func (b *TelegramBuilder) WithBot(bot telegram.BotInterface) *TelegramBuilder {
	b.bot = bot
	return b
}

// Build starts the connector. It returns nil when Telegram is disabled.
func (b *TelegramBuilder) Build(ctx context.Context) (*telegram.Connector, error) {
	if !b.config.Telegram.Enabled {
		return nil, nil
	}

	tg := telegram.New(b.config.Telegram, b.logger, b.messageBus)
	if b.bot != nil {
		tg.SetBot(b.bot)
	}
	if err := tg.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start telegram connector: %w", err)
	}
	return tg, nil
}
