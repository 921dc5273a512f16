// Package bus carries requester messages between transports and the rest of
// the service: inbound commands from Telegram, outbound notifications and
// replies back to it.
package bus

import (
	"time"
)

// ChannelType represents the type of communication channel
type ChannelType string

const (
	ChannelTypeTelegram ChannelType = "telegram"
	ChannelTypeCLI      ChannelType = "cli"
)

// OutboundType tells the transport whether to post a new message or rewrite
// one it already delivered.
type OutboundType string

const (
	OutboundSend OutboundType = "send"
	OutboundEdit OutboundType = "edit"
)

// MessageTypeCallback marks an inbound message that carries the data of a
// pressed inline button instead of typed text.
const MessageTypeCallback = "callback"

// InlineButton is one button under a message. Data comes back as the content
// of a callback inbound message when the button is pressed.
type InlineButton struct {
	Text string `json:"text"`
	Data string `json:"data"`
}

// InlineKeyboard is a grid of buttons attached to an outbound message.
type InlineKeyboard struct {
	Rows [][]InlineButton `json:"rows"`
}

// InboundMessage represents a message received from an external channel
type InboundMessage struct {
	ChannelType ChannelType    `json:"channel_type"`
	UserID      string         `json:"user_id"`
	SessionID   string         `json:"session_id"`
	Content     string         `json:"content"`
	Timestamp   time.Time      `json:"timestamp"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// OutboundMessage represents a message to be sent to an external channel.
// For OutboundEdit, ReplaceID is the CorrelationID of the message to rewrite.
type OutboundMessage struct {
	ChannelType   ChannelType  `json:"channel_type"`
	Type          OutboundType `json:"type"`
	UserID        string       `json:"user_id"`
	SessionID     string       `json:"session_id"`
	Content       string       `json:"content"`
	CorrelationID string       `json:"correlation_id,omitempty"`
	ReplaceID     string       `json:"replace_id,omitempty"`
	// InlineKeyboard replaces any buttons on the message; nil removes them.
	InlineKeyboard *InlineKeyboard `json:"inline_keyboard,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}

// IsCallback reports whether msg came from a pressed inline button.
func (m InboundMessage) IsCallback() bool {
	t, _ := m.Metadata["message_type"].(string)
	return t == MessageTypeCallback
}

// SessionID builds the "<channel>:<user>" conversation key.
func SessionID(channelType ChannelType, userID string) string {
	return string(channelType) + ":" + userID
}

// NewInboundMessage creates a new InboundMessage with the current timestamp
func NewInboundMessage(channelType ChannelType, userID, content string, metadata map[string]any) *InboundMessage {
	return &InboundMessage{
		ChannelType: channelType,
		UserID:      userID,
		SessionID:   SessionID(channelType, userID),
		Content:     content,
		Timestamp:   time.Now(),
		Metadata:    metadata,
	}
}

// NewOutboundMessage creates a new message to post.
func NewOutboundMessage(channelType ChannelType, userID, content, correlationID string) *OutboundMessage {
	return &OutboundMessage{
		ChannelType:   channelType,
		Type:          OutboundSend,
		UserID:        userID,
		SessionID:     SessionID(channelType, userID),
		Content:       content,
		CorrelationID: correlationID,
		Timestamp:     time.Now(),
	}
}

// NewEditMessage creates a rewrite of the message published as replaceID.
func NewEditMessage(channelType ChannelType, userID, content, correlationID, replaceID string) *OutboundMessage {
	msg := NewOutboundMessage(channelType, userID, content, correlationID)
	msg.Type = OutboundEdit
	msg.ReplaceID = replaceID
	return msg
}
