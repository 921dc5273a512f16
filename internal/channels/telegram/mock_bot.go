package telegram

import (
	"context"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/mock"
)

// MockBot is a testify mock of BotInterface.
type MockBot struct {
	mock.Mock
}

func (m *MockBot) GetMe(ctx context.Context) (*telego.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*telego.User), args.Error(1)
}

func (m *MockBot) SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*telego.Message), args.Error(1)
}

func (m *MockBot) EditMessageText(ctx context.Context, params *telego.EditMessageTextParams) (*telego.Message, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*telego.Message), args.Error(1)
}

func (m *MockBot) AnswerCallbackQuery(ctx context.Context, params *telego.AnswerCallbackQueryParams) error {
	args := m.Called(ctx, params)
	return args.Error(0)
}

func (m *MockBot) SetMyCommands(ctx context.Context, params *telego.SetMyCommandsParams) error {
	args := m.Called(ctx, params)
	return args.Error(0)
}

func (m *MockBot) UpdatesViaLongPolling(ctx context.Context, params *telego.GetUpdatesParams, opts ...telego.LongPollingOption) (<-chan telego.Update, error) {
	args := m.Called(ctx, params, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(chan telego.Update), args.Error(1)
}

// NewMockBotSuccess returns a MockBot whose calls all succeed. Every
// expectation is optional.
func NewMockBotSuccess() *MockBot {
	mockBot := new(MockBot)
	mockBot.On("GetMe", mock.Anything).Return(&telego.User{
		ID:        123456789,
		FirstName: "Test",
		Username:  "test_bot",
	}, nil).Maybe()
	mockBot.On("SendMessage", mock.Anything, mock.Anything).Return(&telego.Message{MessageID: 1}, nil).Maybe()
	mockBot.On("EditMessageText", mock.Anything, mock.Anything).Return(&telego.Message{MessageID: 1}, nil).Maybe()
	mockBot.On("AnswerCallbackQuery", mock.Anything, mock.Anything).Return(nil).Maybe()
	mockBot.On("SetMyCommands", mock.Anything, mock.Anything).Return(nil).Maybe()
	return mockBot
}

// NewMockBotWithUpdates returns a MockBot whose long polling yields updates
// and then closes.
func NewMockBotWithUpdates(updates ...telego.Update) *MockBot {
	mockBot := NewMockBotSuccess()
	updateCh := make(chan telego.Update, len(updates))
	for _, update := range updates {
		updateCh <- update
	}
	close(updateCh)
	mockBot.On("UpdatesViaLongPolling", mock.Anything, mock.Anything, mock.Anything).Return(updateCh, nil)
	return mockBot
}
