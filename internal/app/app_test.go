package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/aatumaykin/shuttlewatch/internal/browser"
	"github.com/aatumaykin/shuttlewatch/internal/bus"
	"github.com/aatumaykin/shuttlewatch/internal/channels/telegram"
	"github.com/aatumaykin/shuttlewatch/internal/config"
	"github.com/aatumaykin/shuttlewatch/internal/ipc"
	"github.com/aatumaykin/shuttlewatch/internal/job"
	"github.com/aatumaykin/shuttlewatch/internal/logger"
	"github.com/aatumaykin/shuttlewatch/internal/store"
	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func createTestConfig(t *testing.T) *config.Config {
	t.Helper()

	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.Path = filepath.Join(dir, "jobs.json")
	cfg.Browser.ProfileDir = filepath.Join(dir, "profiles")
	cfg.Metrics.Enabled = false
	cfg.Telegram.Enabled = false
	cfg.MessageBus.Capacity = 100
	return cfg
}

// unavailableBrowser never opens a session, so runners sit in backoff.
func unavailableBrowser() *browser.FakeLauncher {
	return &browser.FakeLauncher{Next: func(int) (*browser.FakeSession, error) {
		return nil, errors.New("no browser in tests")
	}}
}

func mustJob(t *testing.T, origin string, date time.Time, slot string) job.Job {
	t.Helper()
	j, err := job.New(job.DefaultCatalogue(), origin, date, slot, 2)
	require.NoError(t, err)
	return j
}

func TestInitializeAndShutdown(t *testing.T) {
	cfg := createTestConfig(t)
	a := New(cfg, logger.NewNop(), WithLauncher(unavailableBrowser()))

	require.NoError(t, a.Initialize(context.Background()))
	assert.FileExists(t, ipc.GetPIDPath(cfg.Storage.Dir()))
	assert.Equal(t, 0, a.Resumed())

	require.NoError(t, a.Shutdown())
	assert.NoFileExists(t, ipc.GetPIDPath(cfg.Storage.Dir()))
	assert.NoError(t, a.Shutdown(), "second shutdown is a no-op")
}

func TestInitialize_ResumesActiveAndExpiresPastJobs(t *testing.T) {
	cfg := createTestConfig(t)

	s := store.Load(cfg.Storage.Path, logger.NewNop())
	future, err := s.Append("42", mustJob(t, "jb", time.Date(2099, time.March, 5, 0, 0, 0, 0, time.UTC), "08:45"))
	require.NoError(t, err)
	past, err := s.Append("42", mustJob(t, "woodlands", time.Date(2020, time.January, 2, 0, 0, 0, 0, time.UTC), "08:30"))
	require.NoError(t, err)

	a := New(cfg, logger.NewNop(), WithLauncher(unavailableBrowser()))
	require.NoError(t, a.Initialize(context.Background()))
	defer a.Shutdown()

	assert.Equal(t, 1, a.Resumed())
	assert.True(t, a.store.IsActive(future.ID))
	assert.False(t, a.store.IsActive(past.ID))
	assert.Equal(t, 1, a.scheduler.Running())
}

func TestInitialize_InvalidCatalogueReleasesPIDFile(t *testing.T) {
	cfg := createTestConfig(t)
	cfg.Target.Catalogue = filepath.Join(t.TempDir(), "missing.yaml")

	a := New(cfg, logger.NewNop(), WithLauncher(unavailableBrowser()))
	require.Error(t, a.Initialize(context.Background()))
	assert.NoFileExists(t, ipc.GetPIDPath(cfg.Storage.Dir()))
}

func TestMessageProcessing_WatchCommandStartsRunner(t *testing.T) {
	cfg := createTestConfig(t)
	a := New(cfg, logger.NewNop(), WithLauncher(unavailableBrowser()))
	require.NoError(t, a.Initialize(context.Background()))
	defer a.Shutdown()
	require.NoError(t, a.StartMessageProcessing(a.ctx))

	msg := bus.NewInboundMessage(bus.ChannelTypeCLI, "7", "/watch jb 05 Mar 2099 08:45 2", nil)
	require.NoError(t, a.messageBus.PublishInbound(*msg))

	assert.Eventually(t, func() bool {
		return len(a.store.ListActive("7")) == 1 && a.scheduler.Running() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStartMessageProcessing_RequiresInitialize(t *testing.T) {
	a := New(createTestConfig(t), logger.NewNop())
	assert.Error(t, a.StartMessageProcessing(context.Background()))
}

func TestRun_StartupMessageGoesToAdminChat(t *testing.T) {
	cfg := createTestConfig(t)
	cfg.Telegram.Enabled = true
	cfg.Telegram.Token = "123456:test-token-value"
	cfg.Telegram.AdminChat = "42"

	sent := make(chan string, 8)
	updates := make(chan telego.Update)
	close(updates)
	bot := new(telegram.MockBot)
	bot.On("GetMe", mock.Anything).Return(&telego.User{ID: 1, Username: "watch_bot"}, nil)
	bot.On("SetMyCommands", mock.Anything, mock.Anything).Return(nil)
	bot.On("UpdatesViaLongPolling", mock.Anything, mock.Anything, mock.Anything).Return(updates, nil)
	bot.On("SendMessage", mock.Anything, mock.MatchedBy(func(p *telego.SendMessageParams) bool {
		return p.ChatID.ID == 42
	})).Run(func(args mock.Arguments) {
		sent <- args.Get(1).(*telego.SendMessageParams).Text
	}).Return(&telego.Message{MessageID: 1}, nil)

	a := New(cfg, logger.NewNop(), WithLauncher(unavailableBrowser()), WithTelegramBot(bot))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	select {
	case text := <-sent:
		assert.Contains(t, text, "shuttlewatch started")
		assert.Contains(t, text, "Resumed jobs: 0")
	case <-time.After(2 * time.Second):
		t.Fatal("startup message was not sent")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.NoFileExists(t, ipc.GetPIDPath(cfg.Storage.Dir()))
}
