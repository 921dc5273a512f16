package telegram

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aatumaykin/shuttlewatch/internal/bus"
	"github.com/aatumaykin/shuttlewatch/internal/logger"
	"github.com/mymmrac/telego"
)

// CallbackHandler turns inline button presses into inbound bus messages.
type CallbackHandler struct {
	connector *Connector
	logger    *logger.Logger
	bus       MessageBus
}

func NewCallbackHandler(connector *Connector, logger *logger.Logger, bus MessageBus) *CallbackHandler {
	return &CallbackHandler{
		connector: connector,
		logger:    logger,
		bus:       bus,
	}
}

// Handle publishes the button data of a whitelisted user and answers the
// query so the client stops showing a spinner. The owner is the chat the
// buttons were posted in.
func (ch *CallbackHandler) Handle(ctx context.Context, query *telego.CallbackQuery) error {
	if query == nil {
		return nil
	}

	userID := strconv.FormatInt(query.From.ID, 10)
	if !ch.connector.isAllowedUser(userID) {
		ch.logger.WarnCtx(ctx, "callback query blocked - user not in whitelist",
			logger.Field{Key: "user_id", Value: userID},
			logger.Field{Key: "username", Value: query.From.Username})
		ch.answer(ctx, &telego.AnswerCallbackQueryParams{
			CallbackQueryID: query.ID,
			Text:            msgNotAuthorized,
			ShowAlert:       true,
		})
		return nil
	}

	owner := userID
	metadata := map[string]any{
		"message_type":      bus.MessageTypeCallback,
		"callback_query_id": query.ID,
		"from_id":           query.From.ID,
		"username":          query.From.Username,
	}
	if query.Message != nil {
		if chat := query.Message.GetChat(); chat.ID != 0 {
			owner = strconv.FormatInt(chat.ID, 10)
			metadata["chat_type"] = chat.Type
		}
		metadata["message_id"] = query.Message.GetMessageID()
	}

	inboundMsg := bus.NewInboundMessage(bus.ChannelTypeTelegram, owner, query.Data, metadata)
	if err := ch.bus.PublishInbound(*inboundMsg); err != nil {
		return fmt.Errorf("failed to publish inbound callback message: %w", err)
	}

	ch.answer(ctx, &telego.AnswerCallbackQueryParams{CallbackQueryID: query.ID})

	ch.logger.DebugCtx(ctx, "inbound callback message published",
		logger.Field{Key: "user_id", Value: userID},
		logger.Field{Key: "session_id", Value: inboundMsg.SessionID},
		logger.Field{Key: "callback_data", Value: query.Data})
	return nil
}

func (ch *CallbackHandler) answer(ctx context.Context, params *telego.AnswerCallbackQueryParams) {
	timeout := time.Duration(ch.connector.cfg.AnswerCallbackTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	answerCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := ch.connector.bot.AnswerCallbackQuery(answerCtx, params); err != nil {
		ch.logger.ErrorCtx(ctx, "failed to answer callback query", err,
			logger.Field{Key: "callback_query_id", Value: params.CallbackQueryID})
	}
}
