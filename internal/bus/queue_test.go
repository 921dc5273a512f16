package bus

import (
	"context"
	"testing"
	"time"

	"github.com/aatumaykin/shuttlewatch/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestLogger(t *testing.T) *logger.Logger {
	log, err := logger.New(logger.Config{Level: "error", Format: "text", Output: "stdout"})
	require.NoError(t, err)
	return log
}

func TestMessageBus_Lifecycle(t *testing.T) {
	mb := New(10, createTestLogger(t))
	assert.False(t, mb.IsStarted())
	assert.ErrorIs(t, mb.Stop(), ErrNotStarted)

	require.NoError(t, mb.Start(context.Background()))
	assert.True(t, mb.IsStarted())
	assert.ErrorIs(t, mb.Start(context.Background()), ErrAlreadyStarted)

	require.NoError(t, mb.Stop())
	assert.False(t, mb.IsStarted())

	// A stopped bus can be started again.
	require.NoError(t, mb.Start(context.Background()))
	require.NoError(t, mb.Stop())
}

func TestMessageBus_PublishBeforeStart(t *testing.T) {
	mb := New(10, createTestLogger(t))
	assert.ErrorIs(t, mb.PublishOutbound(*NewOutboundMessage(ChannelTypeTelegram, "42", "hi", "c1")), ErrNotStarted)
	assert.ErrorIs(t, mb.PublishInbound(*NewInboundMessage(ChannelTypeTelegram, "42", "/list", nil)), ErrNotStarted)
	assert.Nil(t, mb.SubscribeOutbound(context.Background()))
}

func TestMessageBus_FanOut(t *testing.T) {
	mb := New(10, createTestLogger(t))
	require.NoError(t, mb.Start(context.Background()))
	defer mb.Stop()

	a := mb.SubscribeOutbound(context.Background())
	b := mb.SubscribeOutbound(context.Background())
	in := mb.SubscribeInbound(context.Background())

	msg := NewEditMessage(ChannelTypeTelegram, "42", "retrying (2)", "c2", "c1")
	require.NoError(t, mb.PublishOutbound(*msg))
	require.NoError(t, mb.PublishInbound(*NewInboundMessage(ChannelTypeTelegram, "42", "/list", nil)))

	for _, ch := range []<-chan OutboundMessage{a, b} {
		select {
		case got := <-ch:
			assert.Equal(t, OutboundEdit, got.Type)
			assert.Equal(t, "c1", got.ReplaceID)
			assert.Equal(t, "telegram:42", got.SessionID)
		case <-time.After(time.Second):
			t.Fatal("outbound message not delivered")
		}
	}

	select {
	case got := <-in:
		assert.Equal(t, "/list", got.Content)
	case <-time.After(time.Second):
		t.Fatal("inbound message not delivered")
	}
}

func TestMessageBus_QueueFull(t *testing.T) {
	mb := New(1, createTestLogger(t))
	// Started without distribution so the queue cannot drain.
	mb.started = true
	mb.ctx = context.Background()

	require.NoError(t, mb.PublishOutbound(*NewOutboundMessage(ChannelTypeTelegram, "1", "a", "")))
	assert.ErrorIs(t, mb.PublishOutbound(*NewOutboundMessage(ChannelTypeTelegram, "1", "b", "")), ErrQueueFull)
}

func TestMessageBus_StopClosesSubscribers(t *testing.T) {
	mb := New(10, createTestLogger(t))
	require.NoError(t, mb.Start(context.Background()))
	ch := mb.SubscribeOutbound(context.Background())
	require.NoError(t, mb.Stop())

	_, ok := <-ch
	assert.False(t, ok)
}

func TestNewOutboundMessage(t *testing.T) {
	msg := NewOutboundMessage(ChannelTypeTelegram, "42", "hello", "c1")
	assert.Equal(t, OutboundSend, msg.Type)
	assert.Empty(t, msg.ReplaceID)
	assert.False(t, msg.Timestamp.IsZero())
}
