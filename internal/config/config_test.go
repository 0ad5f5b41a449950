package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettings(t *testing.T) {
	t.Setenv("TELEGRAM_ENABLED", "true")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_NOTIFICATION_TYPES", "mentioned| replied ||liked")
	t.Setenv("FORUM_BASE_URL", "https://forum.example.com/")
	t.Setenv("SITE_TITLE", "Example")

	s, err := LoadSettings()
	require.NoError(t, err)

	assert.True(t, s.Enabled)
	assert.Equal(t, "123:abc", s.BotToken)
	assert.Equal(t, []string{"mentioned", "replied", "liked"}, s.NotificationTypes)
	assert.Equal(t, "https://forum.example.com", s.BaseURL)
	assert.True(t, s.AllowsType("replied"))
	assert.False(t, s.AllowsType("edited"))
}

func TestLoadSettingsInvalidFlag(t *testing.T) {
	t.Setenv("TELEGRAM_ENABLED", "sometimes")

	_, err := LoadSettings()
	assert.Error(t, err)
}

func TestLoadConfigValidation(t *testing.T) {
	t.Setenv("ENV_FILE", t.TempDir()+"/missing.env")
	t.Setenv("FORUM_BASE_URL", "https://forum.example.com")
	t.Setenv("FORUM_API_KEY", "key")
	t.Setenv("STORAGE_BACKEND", StorageMemory)
	t.Setenv("TELEGRAM_ENABLED", "true")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TELEGRAM_BOT_TOKEN")

	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, StorageMemory, cfg.StorageBackend)
	assert.Equal(t, TasksPool, cfg.TaskBackend)
	assert.Equal(t, ModeWebhook, cfg.UpdateMode)
	assert.Equal(t, 4, cfg.WorkerCount)
}

func TestChanged(t *testing.T) {
	base := &Settings{Enabled: true, BotToken: "a", BaseURL: "https://f"}

	assert.True(t, Changed(nil, base))
	assert.False(t, Changed(base, nil))
	assert.False(t, Changed(base, &Settings{Enabled: true, BotToken: "a", BaseURL: "https://f", SiteTitle: "x"}))
	assert.True(t, Changed(base, &Settings{Enabled: false, BotToken: "a", BaseURL: "https://f"}))
	assert.True(t, Changed(base, &Settings{Enabled: true, BotToken: "b", BaseURL: "https://f"}))
	assert.False(t, Changed(base, &Settings{Enabled: true, BotToken: "a", BaseURL: "https://moved"}))
}

func TestWatcherApply(t *testing.T) {
	live := NewLive(Settings{Enabled: false})
	var gotOld, gotNew *Settings
	w, err := NewWatcher("unused.env", live, func(_ context.Context, old, next *Settings) {
		gotOld, gotNew = old, next
	})
	require.NoError(t, err)
	w.reload = func(string) (*Settings, error) {
		return &Settings{Enabled: true, BotToken: "t"}, nil
	}

	w.apply(context.Background())

	require.NotNil(t, gotOld)
	require.NotNil(t, gotNew)
	assert.False(t, gotOld.Enabled)
	assert.True(t, gotNew.Enabled)
	assert.Same(t, gotNew, live.Snapshot())
}
