package telegram

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"forumgram-bridge/pkg/telegoapi"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockBot is a mock implementing the telegoapi.BotAPI interface
type MockBot struct {
	mock.Mock
}

func (m *MockBot) SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error) {
	args := m.Called(ctx, params)
	if msg, ok := args.Get(0).(*telego.Message); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBot) SendMediaGroup(ctx context.Context, params *telego.SendMediaGroupParams) ([]telego.Message, error) {
	args := m.Called(ctx, params)
	if msgs, ok := args.Get(0).([]telego.Message); ok {
		return msgs, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBot) SendPhoto(ctx context.Context, params *telego.SendPhotoParams) (*telego.Message, error) {
	args := m.Called(ctx, params)
	if msg, ok := args.Get(0).(*telego.Message); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBot) SendAnimation(ctx context.Context, params *telego.SendAnimationParams) (*telego.Message, error) {
	args := m.Called(ctx, params)
	if msg, ok := args.Get(0).(*telego.Message); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBot) AnswerCallbackQuery(ctx context.Context, params *telego.AnswerCallbackQueryParams) error {
	args := m.Called(ctx, params)
	return args.Error(0)
}

func (m *MockBot) EditMessageReplyMarkup(ctx context.Context, params *telego.EditMessageReplyMarkupParams) (*telego.Message, error) {
	args := m.Called(ctx, params)
	if msg, ok := args.Get(0).(*telego.Message); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBot) SetWebhook(ctx context.Context, params *telego.SetWebhookParams) error {
	args := m.Called(ctx, params)
	return args.Error(0)
}

func (m *MockBot) DeleteWebhook(ctx context.Context, params *telego.DeleteWebhookParams) error {
	args := m.Called(ctx, params)
	return args.Error(0)
}

func (m *MockBot) UpdatesViaLongPolling(ctx context.Context, params *telego.GetUpdatesParams, _ ...telego.LongPollingOption) (<-chan telego.Update, error) {
	args := m.Called(ctx, params)
	if ch, ok := args.Get(0).(<-chan telego.Update); ok {
		return ch, args.Error(1)
	}
	return nil, args.Error(1)
}

var _ telegoapi.BotAPI = (*MockBot)(nil)

func writeTempFiles(t *testing.T, n int) []string {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, 0, n)
	for i := 0; i < n; i++ {
		p := filepath.Join(dir, string(rune('a'+i))+".jpg")
		require.NoError(t, os.WriteFile(p, []byte("jpeg"), 0o600))
		paths = append(paths, p)
	}
	return paths
}

func TestSendMessageUsesHTMLAndMarkup(t *testing.T) {
	bot := new(MockBot)
	client := NewWithAPI(bot, nil)
	markup := tu.InlineKeyboard(tu.InlineKeyboardRow(tu.InlineKeyboardButton("x").WithCallbackData("like:1")))

	bot.On("SendMessage", mock.Anything, mock.MatchedBy(func(p *telego.SendMessageParams) bool {
		return p.ChatID.ID == 42 &&
			p.Text == "<b>hi</b>" &&
			p.ParseMode == telego.ModeHTML &&
			p.LinkPreviewOptions != nil && p.LinkPreviewOptions.IsDisabled &&
			p.ReplyMarkup == markup
	})).Return(&telego.Message{MessageID: 7}, nil).Once()

	msg, err := client.SendMessage(context.Background(), 42, "<b>hi</b>", markup)
	require.NoError(t, err)
	assert.Equal(t, 7, msg.MessageID)
	bot.AssertExpectations(t)
}

func TestSendMessageWithoutMarkupLeavesReplyMarkupUnset(t *testing.T) {
	bot := new(MockBot)
	client := NewWithAPI(bot, nil)

	bot.On("SendMessage", mock.Anything, mock.MatchedBy(func(p *telego.SendMessageParams) bool {
		return p.ReplyMarkup == nil
	})).Return(&telego.Message{MessageID: 1}, nil).Once()

	_, err := client.SendMessage(context.Background(), 1, "plain", nil)
	require.NoError(t, err)
	bot.AssertExpectations(t)
}

func TestSendMessageFailureIsReturnedWithoutRetry(t *testing.T) {
	bot := new(MockBot)
	client := NewWithAPI(bot, nil)

	bot.On("SendMessage", mock.Anything, mock.Anything).Return(nil, errors.New("api: ok=false")).Once()

	_, err := client.SendMessage(context.Background(), 1, "x", nil)
	assert.Error(t, err)
	bot.AssertNumberOfCalls(t, "SendMessage", 1)
}

func TestSendMediaGroupBounds(t *testing.T) {
	bot := new(MockBot)
	client := NewWithAPI(bot, nil)

	_, err := client.SendMediaGroup(context.Background(), 1, writeTempFiles(t, 1))
	assert.Error(t, err)
	_, err = client.SendMediaGroup(context.Background(), 1, writeTempFiles(t, MaxMediaGroupSize+1))
	assert.Error(t, err)
	bot.AssertNotCalled(t, "SendMediaGroup", mock.Anything, mock.Anything)
}

func TestSendMediaGroupSendsAllPhotos(t *testing.T) {
	bot := new(MockBot)
	client := NewWithAPI(bot, nil)
	files := writeTempFiles(t, 3)

	bot.On("SendMediaGroup", mock.Anything, mock.MatchedBy(func(p *telego.SendMediaGroupParams) bool {
		return p.ChatID.ID == 5 && len(p.Media) == 3
	})).Return([]telego.Message{{MessageID: 1}, {MessageID: 2}, {MessageID: 3}}, nil).Once()

	msgs, err := client.SendMediaGroup(context.Background(), 5, files)
	require.NoError(t, err)
	assert.Len(t, msgs, 3)
	bot.AssertExpectations(t)
}

func TestSendMediaGroupMissingFile(t *testing.T) {
	bot := new(MockBot)
	client := NewWithAPI(bot, nil)

	_, err := client.SendMediaGroup(context.Background(), 5, []string{"/nope/a.jpg", "/nope/b.jpg"})
	assert.Error(t, err)
	bot.AssertNotCalled(t, "SendMediaGroup", mock.Anything, mock.Anything)
}

func TestAnswerCallbackAndEditControls(t *testing.T) {
	bot := new(MockBot)
	client := NewWithAPI(bot, nil)
	markup := tu.InlineKeyboard(tu.InlineKeyboardRow(tu.InlineKeyboardButton("y").WithURL("https://f/t/1/1")))

	bot.On("AnswerCallbackQuery", mock.Anything, mock.MatchedBy(func(p *telego.AnswerCallbackQueryParams) bool {
		return p.CallbackQueryID == "cb1" && p.Text == "Liked!"
	})).Return(nil).Once()
	bot.On("EditMessageReplyMarkup", mock.Anything, mock.MatchedBy(func(p *telego.EditMessageReplyMarkupParams) bool {
		return p.ChatID.ID == 9 && p.MessageID == 3 && p.ReplyMarkup == markup
	})).Return(&telego.Message{MessageID: 3}, nil).Once()

	require.NoError(t, client.AnswerCallback(context.Background(), "cb1", "Liked!"))
	require.NoError(t, client.EditControls(context.Background(), 9, 3, markup))
	bot.AssertExpectations(t)
}

func TestRegisterWebhook(t *testing.T) {
	bot := new(MockBot)
	client := NewWithAPI(bot, nil)

	bot.On("SetWebhook", mock.Anything, mock.MatchedBy(func(p *telego.SetWebhookParams) bool {
		return p.URL == "https://f/telegram/hook/abc" && len(p.AllowedUpdates) == 2
	})).Return(nil).Once()

	require.NoError(t, client.RegisterWebhook(context.Background(), "https://f/telegram/hook/abc"))
	bot.AssertExpectations(t)
}

func TestUnconfiguredClient(t *testing.T) {
	client := New(false)

	_, err := client.SendMessage(context.Background(), 1, "x", nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.ErrorIs(t, client.RegisterWebhook(context.Background(), "u"), ErrNotConfigured)
}

func TestReconfigure(t *testing.T) {
	first := new(MockBot)
	second := new(MockBot)
	created := 0
	client := NewWithAPI(nil, nil)
	client.newAPI = func(token string) (telegoapi.BotAPI, error) {
		created++
		if token == "one" {
			return first, nil
		}
		return second, nil
	}

	require.NoError(t, client.Reconfigure("one"))
	require.NoError(t, client.Reconfigure("one"))
	assert.Equal(t, 1, created)

	require.NoError(t, client.Reconfigure("two"))
	assert.Equal(t, 2, created)

	second.On("DeleteWebhook", mock.Anything, mock.Anything).Return(nil).Once()
	require.NoError(t, client.DeleteWebhook(context.Background()))
	second.AssertExpectations(t)
	first.AssertNotCalled(t, "DeleteWebhook", mock.Anything, mock.Anything)

	require.NoError(t, client.Reconfigure(""))
	assert.ErrorIs(t, client.DeleteWebhook(context.Background()), ErrNotConfigured)
}
