// Package telegram connects the message bus to a Telegram bot using telego.
//
// Features:
//   - Long polling for requester commands and inline button presses
//   - Whitelist-based user authorization
//   - Outbound delivery with retry and in-place edits of earlier messages
//   - Graceful shutdown handling
package telegram

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aatumaykin/shuttlewatch/internal/bus"
	"github.com/aatumaykin/shuttlewatch/internal/config"
	"github.com/aatumaykin/shuttlewatch/internal/logger"
	"github.com/aatumaykin/shuttlewatch/internal/retry"
	"github.com/mymmrac/telego"
)

// deliveredLimit bounds how many sent messages are remembered for edits.
const deliveredLimit = 4096

// MessageBus is the part of the bus the connector uses.
type MessageBus interface {
	PublishInbound(msg bus.InboundMessage) error
	SubscribeOutbound(ctx context.Context) <-chan bus.OutboundMessage
}

type delivered struct {
	chatID    int64
	messageID int
}

// Connector represents the Telegram bot connector
type Connector struct {
	cfg             config.TelegramConfig
	logger          *logger.Logger
	bus             MessageBus
	bot             BotInterface
	ctx             context.Context
	cancel          context.CancelFunc
	outboundCh      <-chan bus.OutboundMessage
	longPollManager *LongPollManager
	updateHandler   *UpdateHandler
	retry           retry.Config
	wg              sync.WaitGroup

	mu        sync.Mutex
	delivered map[string]delivered
	order     []string
}

// New creates a new Telegram connector
func New(cfg config.TelegramConfig, log *logger.Logger, msgBus MessageBus) *Connector {
	conn := &Connector{
		cfg:       cfg,
		logger:    log,
		bus:       msgBus,
		retry:     retry.Config{MaxAttempts: cfg.RetryAttempts},
		delivered: make(map[string]delivered),
	}
	conn.longPollManager = NewLongPollManager(conn, log)
	conn.updateHandler = NewUpdateHandler(conn, log, msgBus)
	return conn
}

// SetBot replaces the bot used by Start. Without it Start creates a telego
// bot from the configured token.
func (c *Connector) SetBot(bot BotInterface) {
	c.bot = bot
}

// Start initializes the bot, subscribes to outbound messages and starts long
// polling for commands.
func (c *Connector) Start(ctx context.Context) error {
	if !c.cfg.Enabled {
		c.logger.Info("telegram connector disabled in config")
		return nil
	}

	if c.bot == nil {
		if c.cfg.Token == "" {
			return fmt.Errorf("telegram token is required")
		}
		bot, err := telego.NewBot(c.cfg.Token)
		if err != nil {
			return fmt.Errorf("failed to initialize telegram bot: %w", err)
		}
		c.bot = NewBotAdapter(bot)
	}
	c.ctx, c.cancel = context.WithCancel(ctx)

	botUser, err := c.bot.GetMe(c.ctx)
	if err != nil {
		c.cancel()
		return fmt.Errorf("failed to get bot info: %w", err)
	}
	c.logger.Info("telegram bot initialized",
		logger.Field{Key: "bot_id", Value: botUser.ID},
		logger.Field{Key: "username", Value: botUser.Username})

	if err := c.registerCommands(); err != nil {
		c.logger.ErrorCtx(c.ctx, "failed to register bot commands", err)
	}

	c.outboundCh = c.bus.SubscribeOutbound(c.ctx)
	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.handleOutbound()
	}()
	go func() {
		defer c.wg.Done()
		c.longPollManager.Start(c.ctx)
	}()
	return nil
}

// Stop cancels polling and delivery and waits for both to exit.
func (c *Connector) Stop() error {
	c.logger.Info("stopping telegram connector")
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.logger.Info("telegram connector stopped gracefully")
	return nil
}

func (c *Connector) registerCommands() error {
	commands := &telego.SetMyCommandsParams{
		Commands: []telego.BotCommand{
			{Command: "start", Description: "Pick a departure to watch"},
			{Command: "watch", Description: "Watch a departure: <origin> <DD> <MMM> <YYYY> <HH:MM> <pax>"},
			{Command: "list", Description: "Show your active prompts"},
			{Command: "remove", Description: "Remove a prompt by its /list number"},
			{Command: "stop", Description: "Stop all your prompts"},
			{Command: "help", Description: "Show usage"},
		},
	}
	if err := c.bot.SetMyCommands(c.ctx, commands); err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}
	c.logger.Info("bot commands registered successfully")
	return nil
}

// isAllowedUser checks the whitelist. An empty whitelist allows everyone.
func (c *Connector) isAllowedUser(userID string) bool {
	if len(c.cfg.AllowedUsers) == 0 {
		return true
	}
	return slices.Contains(c.cfg.AllowedUsers, userID)
}

// handleOutbound delivers outbound Telegram messages until the context ends.
func (c *Connector) handleOutbound() {
	c.logger.Info("outbound message handler started")
	for {
		select {
		case <-c.ctx.Done():
			c.logger.Info("outbound message handler stopped")
			return
		case msg, ok := <-c.outboundCh:
			if !ok {
				c.logger.Info("outbound channel closed")
				return
			}
			if msg.ChannelType != bus.ChannelTypeTelegram {
				continue
			}
			if err := c.deliver(msg); err != nil {
				c.logger.ErrorCtx(c.ctx, "failed to deliver message", err,
					logger.Field{Key: "session_id", Value: msg.SessionID},
					logger.Field{Key: "correlation_id", Value: msg.CorrelationID})
			}
		}
	}
}

func (c *Connector) deliver(msg bus.OutboundMessage) error {
	chatID, err := extractChatID(msg.SessionID)
	if err != nil {
		return err
	}
	if msg.Type == bus.OutboundEdit {
		return c.editMessage(msg, chatID)
	}
	_, err = c.sendText(msg.CorrelationID, chatID, msg.Content, msg.InlineKeyboard)
	return err
}

// sendText posts a new message and remembers it under key for later edits.
func (c *Connector) sendText(key string, chatID int64, text string, keyboard *bus.InlineKeyboard) (int, error) {
	params := telego.SendMessageParams{
		ChatID: telego.ChatID{ID: chatID},
		Text:   text,
	}
	if markup := buildInlineKeyboard(keyboard); markup != nil {
		params.ReplyMarkup = markup
	}
	sent, err := retry.Do(c.ctx, c.retry, c.logger, func(ctx context.Context) (*telego.Message, error) {
		sendCtx, cancel := c.sendContext(ctx)
		defer cancel()
		m, err := c.bot.SendMessage(sendCtx, &params)
		return m, wrapAPIError("sendMessage", chatID, err)
	})
	if err != nil {
		return 0, err
	}
	c.remember(key, chatID, sent.MessageID)
	c.logger.DebugCtx(c.ctx, "message sent",
		logger.Field{Key: "chat_id", Value: chatID},
		logger.Field{Key: "message_id", Value: sent.MessageID})
	return sent.MessageID, nil
}

// editMessage rewrites the message published as msg.ReplaceID. When that
// message is unknown or cannot be edited a new one is posted in its place.
func (c *Connector) editMessage(msg bus.OutboundMessage, chatID int64) error {
	ref, ok := c.lookup(msg.ReplaceID)
	if ok && ref.chatID == chatID {
		_, err := retry.Do(c.ctx, c.retry, c.logger, func(ctx context.Context) (*telego.Message, error) {
			sendCtx, cancel := c.sendContext(ctx)
			defer cancel()
			m, err := c.bot.EditMessageText(sendCtx, &telego.EditMessageTextParams{
				ChatID:      telego.ChatID{ID: chatID},
				MessageID:   ref.messageID,
				Text:        msg.Content,
				ReplyMarkup: buildInlineKeyboard(msg.InlineKeyboard),
			})
			return m, wrapAPIError("editMessageText", chatID, err)
		})
		if err == nil || isNotModified(err) {
			return nil
		}
		c.logger.WarnCtx(c.ctx, "edit failed, sending a new message",
			logger.Field{Key: "chat_id", Value: chatID},
			logger.Field{Key: "error", Value: err.Error()})
	}

	// Later edits of the same handle go to the replacement.
	_, err := c.sendText(msg.ReplaceID, chatID, msg.Content, msg.InlineKeyboard)
	return err
}

// buildInlineKeyboard converts a bus keyboard to Telegram's markup.
func buildInlineKeyboard(keyboard *bus.InlineKeyboard) *telego.InlineKeyboardMarkup {
	if keyboard == nil || len(keyboard.Rows) == 0 {
		return nil
	}

	markup := &telego.InlineKeyboardMarkup{
		InlineKeyboard: make([][]telego.InlineKeyboardButton, len(keyboard.Rows)),
	}
	for i, row := range keyboard.Rows {
		buttons := make([]telego.InlineKeyboardButton, len(row))
		for j, button := range row {
			buttons[j] = telego.InlineKeyboardButton{
				Text:         button.Text,
				CallbackData: button.Data,
			}
		}
		markup.InlineKeyboard[i] = buttons
	}
	return markup
}

func (c *Connector) sendContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := time.Duration(c.cfg.SendTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

func (c *Connector) remember(key string, chatID int64, messageID int) {
	if key == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.delivered[key]; !exists {
		c.order = append(c.order, key)
	}
	c.delivered[key] = delivered{chatID: chatID, messageID: messageID}
	for len(c.order) > deliveredLimit {
		delete(c.delivered, c.order[0])
		c.order = c.order[1:]
	}
}

func (c *Connector) lookup(key string) (delivered, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.delivered[key]
	return d, ok
}

// extractChatID reads the chat id from a "telegram:<chat_id>" session id.
func extractChatID(sessionID string) (int64, error) {
	channel, id, ok := strings.Cut(sessionID, ":")
	if !ok {
		return 0, fmt.Errorf("invalid session ID format: expected 'channel:chat_id', got: %s", sessionID)
	}
	if channel != string(bus.ChannelTypeTelegram) {
		return 0, fmt.Errorf("session ID channel mismatch: expected %s, got %s", bus.ChannelTypeTelegram, channel)
	}
	chatID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat ID in session ID: %w", err)
	}
	return chatID, nil
}
