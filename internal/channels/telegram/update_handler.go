package telegram

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aatumaykin/shuttlewatch/internal/bus"
	"github.com/aatumaykin/shuttlewatch/internal/logger"
	"github.com/mymmrac/telego"
)

const msgNotAuthorized = "Sorry, you are not authorized to use this bot."

// UpdateHandler turns Telegram updates into inbound bus messages.
type UpdateHandler struct {
	connector       *Connector
	logger          *logger.Logger
	bus             MessageBus
	callbackHandler *CallbackHandler
}

func NewUpdateHandler(connector *Connector, logger *logger.Logger, bus MessageBus) *UpdateHandler {
	return &UpdateHandler{
		connector:       connector,
		logger:          logger,
		bus:             bus,
		callbackHandler: NewCallbackHandler(connector, logger, bus),
	}
}

// Handle publishes text messages and button presses from whitelisted users.
// The chat id becomes the message's user id so replies and notifications go
// back to that chat.
func (uh *UpdateHandler) Handle(ctx context.Context, update telego.Update) error {
	if update.CallbackQuery != nil {
		return uh.callbackHandler.Handle(ctx, update.CallbackQuery)
	}

	msg := update.Message
	if msg == nil || msg.Text == "" || msg.From == nil {
		return nil
	}

	userID := strconv.FormatInt(msg.From.ID, 10)
	if !uh.connector.isAllowedUser(userID) {
		uh.logger.WarnCtx(ctx, "message blocked - user not in whitelist",
			logger.Field{Key: "user_id", Value: userID},
			logger.Field{Key: "username", Value: msg.From.Username})

		if msg.Chat.ID != 0 {
			_, err := uh.connector.bot.SendMessage(ctx, &telego.SendMessageParams{
				ChatID: telego.ChatID{ID: msg.Chat.ID},
				Text:   msgNotAuthorized,
			})
			if err != nil {
				uh.logger.ErrorCtx(ctx, "failed to send notification", err)
			}
		}
		return nil
	}

	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	inboundMsg := bus.NewInboundMessage(
		bus.ChannelTypeTelegram,
		chatID,
		msg.Text,
		map[string]any{
			"message_id": msg.MessageID,
			"from_id":    msg.From.ID,
			"chat_type":  msg.Chat.Type,
			"username":   msg.From.Username,
		},
	)
	if err := uh.bus.PublishInbound(*inboundMsg); err != nil {
		return fmt.Errorf("failed to publish inbound message: %w", err)
	}

	uh.logger.DebugCtx(ctx, "inbound message published",
		logger.Field{Key: "user_id", Value: userID},
		logger.Field{Key: "session_id", Value: inboundMsg.SessionID})
	return nil
}
