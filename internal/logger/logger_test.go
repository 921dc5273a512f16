package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Config(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "json stdout", config: Config{Level: "debug", Format: "json", Output: "stdout"}},
		{name: "text stderr", config: Config{Level: "info", Format: "text", Output: "stderr"}},
		{name: "discard", config: Config{Level: "warn", Format: "text", Output: "discard"}},
		{name: "invalid level", config: Config{Level: "loud", Format: "json", Output: "stdout"}, wantErr: true},
		{name: "invalid format", config: Config{Level: "info", Format: "xml", Output: "stdout"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := New(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, log)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, log)
		})
	}
}

func TestNew_FileOutputCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "shuttlewatch.log")

	log, err := New(Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	log.Info("hello", Field{Key: "k", Value: "v"})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
}

func TestLogger_WithAndError(t *testing.T) {
	var buf bytes.Buffer
	log := &Logger{slog: slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))}

	child := log.With(Field{Key: "job_id", Value: "abc"})
	child.Error("session failed", errors.New("boom"), Field{Key: "attempt", Value: 2})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "session failed", entry["msg"])
	assert.Equal(t, "abc", entry["job_id"])
	assert.Equal(t, "boom", entry["error"])
	assert.EqualValues(t, 2, entry["attempt"])
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := &Logger{slog: slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))}

	log.Debug("hidden")
	log.Info("hidden too")
	log.Warn("visible")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "visible")
}

func TestNewNop(t *testing.T) {
	log := NewNop()
	assert.NotPanics(t, func() {
		log.Info("nothing")
		log.Error("nothing", errors.New("x"))
	})
}
