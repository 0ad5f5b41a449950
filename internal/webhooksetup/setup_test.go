package webhooksetup

import (
	"context"
	"errors"
	"strings"
	"testing"

	"forumgram-bridge/internal/config"
	"forumgram-bridge/internal/database"
	"forumgram-bridge/internal/database/memory"
	"forumgram-bridge/internal/tasks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRegistrar struct {
	mock.Mock
}

func (m *MockRegistrar) Reconfigure(token string) error {
	return m.Called(token).Error(0)
}

func (m *MockRegistrar) RegisterWebhook(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *MockRegistrar) DeleteWebhook(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type recordingQueue struct {
	tasks []tasks.Task
	err   error
}

func (q *recordingQueue) Enqueue(_ context.Context, task tasks.Task) error {
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *recordingQueue) Close() error { return nil }

func TestRunRotatesSecretAndRegisters(t *testing.T) {
	ctx := context.Background()
	client := new(MockRegistrar)
	store := memory.NewSettingsStore()

	task, err := NewTask(client, store, "https://forum.example.com/", config.ModeWebhook)
	require.NoError(t, err)

	var urls []string
	client.On("RegisterWebhook", ctx, mock.AnythingOfType("string")).Run(func(args mock.Arguments) {
		urls = append(urls, args.String(1))
	}).Return(nil).Twice()

	settings := &config.Settings{Enabled: true, BotToken: "123:abc"}
	require.NoError(t, task.Run(ctx, settings))
	first, err := store.GetSetting(ctx, database.SettingWebhookSecret)
	require.NoError(t, err)
	require.True(t, first.IsPresent())
	assert.Len(t, first.MustGet(), 32)

	require.NoError(t, task.Run(ctx, settings))
	second, err := store.GetSetting(ctx, database.SettingWebhookSecret)
	require.NoError(t, err)
	assert.NotEqual(t, first.MustGet(), second.MustGet())

	client.AssertExpectations(t)
	require.Len(t, urls, 2)
	assert.Equal(t, "https://forum.example.com/telegram/hook/"+first.MustGet(), urls[0])
	assert.Equal(t, "https://forum.example.com/telegram/hook/"+second.MustGet(), urls[1])
}

func TestRunDisabledIsNoop(t *testing.T) {
	client := new(MockRegistrar)
	store := memory.NewSettingsStore()
	task, err := NewTask(client, store, "https://forum.example.com", config.ModeWebhook)
	require.NoError(t, err)

	require.NoError(t, task.Run(context.Background(), &config.Settings{Enabled: false}))
	client.AssertNotCalled(t, "RegisterWebhook", mock.Anything, mock.Anything)

	secret, err := store.GetSetting(context.Background(), database.SettingWebhookSecret)
	require.NoError(t, err)
	assert.True(t, secret.IsAbsent())
}

func TestRunPollingDeletesWebhook(t *testing.T) {
	ctx := context.Background()
	client := new(MockRegistrar)
	task, err := NewTask(client, memory.NewSettingsStore(), "", config.ModePolling)
	require.NoError(t, err)

	client.On("DeleteWebhook", ctx).Return(nil).Once()
	require.NoError(t, task.Run(ctx, &config.Settings{Enabled: true}))
	client.AssertExpectations(t)
}

func TestRunRegistrationFailureKeepsPreviousSecret(t *testing.T) {
	ctx := context.Background()
	client := new(MockRegistrar)
	store := memory.NewSettingsStore()
	require.NoError(t, store.SetSetting(ctx, database.SettingWebhookSecret, "current"))
	task, err := NewTask(client, store, "https://forum.example.com", config.ModeWebhook)
	require.NoError(t, err)

	client.On("RegisterWebhook", ctx, mock.Anything).Return(errors.New("Unauthorized")).Once()
	err = task.Run(ctx, &config.Settings{Enabled: true})
	assert.ErrorContains(t, err, "failed to register webhook")

	secret, err := store.GetSetting(ctx, database.SettingWebhookSecret)
	require.NoError(t, err)
	assert.Equal(t, "current", secret.MustGet())
	client.AssertExpectations(t)
}

func TestNewTaskValidation(t *testing.T) {
	_, err := NewTask(nil, memory.NewSettingsStore(), "https://x", config.ModeWebhook)
	assert.Error(t, err)
	_, err = NewTask(new(MockRegistrar), nil, "https://x", config.ModeWebhook)
	assert.Error(t, err)
	_, err = NewTask(new(MockRegistrar), memory.NewSettingsStore(), "", config.ModeWebhook)
	assert.Error(t, err)
}

func TestNewSecret(t *testing.T) {
	a, err := NewSecret()
	require.NoError(t, err)
	b, err := NewSecret()
	require.NoError(t, err)
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
	assert.Empty(t, strings.Trim(a, "0123456789abcdef"))
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()

	t.Run("startup enqueues setup", func(t *testing.T) {
		client := new(MockRegistrar)
		queue := &recordingQueue{}
		r, err := NewReconciler(client, queue)
		require.NoError(t, err)

		client.On("Reconfigure", "123:abc").Return(nil).Once()
		enqueued, err := r.Reconcile(ctx, nil, &config.Settings{Enabled: true, BotToken: "123:abc"})
		require.NoError(t, err)
		assert.True(t, enqueued)
		require.Len(t, queue.tasks, 1)
		assert.Equal(t, tasks.KindSetupWebhook, queue.tasks[0].Kind)
		client.AssertExpectations(t)
	})

	t.Run("unrelated change is ignored", func(t *testing.T) {
		client := new(MockRegistrar)
		queue := &recordingQueue{}
		r, err := NewReconciler(client, queue)
		require.NoError(t, err)

		old := &config.Settings{Enabled: true, BotToken: "t", SiteTitle: "A"}
		next := &config.Settings{Enabled: true, BotToken: "t", SiteTitle: "B"}
		enqueued, err := r.Reconcile(ctx, old, next)
		require.NoError(t, err)
		assert.False(t, enqueued)
		assert.Empty(t, queue.tasks)
		client.AssertNotCalled(t, "Reconfigure", mock.Anything)
	})

	t.Run("disabling drops the token", func(t *testing.T) {
		client := new(MockRegistrar)
		queue := &recordingQueue{}
		r, err := NewReconciler(client, queue)
		require.NoError(t, err)

		client.On("Reconfigure", "").Return(nil).Once()
		_, err = r.Reconcile(ctx, &config.Settings{Enabled: true, BotToken: "t"}, &config.Settings{Enabled: false, BotToken: "t"})
		require.NoError(t, err)
		assert.Len(t, queue.tasks, 1)
		client.AssertExpectations(t)
	})

	t.Run("queue failure surfaces", func(t *testing.T) {
		client := new(MockRegistrar)
		r, err := NewReconciler(client, &recordingQueue{err: tasks.ErrQueueClosed})
		require.NoError(t, err)

		client.On("Reconfigure", "t2").Return(nil).Once()
		_, err = r.Reconcile(ctx, &config.Settings{Enabled: true, BotToken: "t"}, &config.Settings{Enabled: true, BotToken: "t2"})
		assert.ErrorIs(t, err, tasks.ErrQueueClosed)
	})
}
