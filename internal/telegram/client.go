package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	"forumgram-bridge/pkg/telegoapi"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"go.uber.org/ratelimit"
)

// MaxMediaGroupSize is the largest number of items Telegram accepts in one sendMediaGroup call.
const MaxMediaGroupSize = 10

// minMediaGroupSize is the smallest media group Telegram accepts.
const minMediaGroupSize = 2

// ErrNotConfigured is returned when no bot token has been configured yet.
var ErrNotConfigured = errors.New("telegram client is not configured")

// allowedUpdates are the update kinds the bridge reacts to.
var allowedUpdates = []string{"message", "callback_query"}

// APIFactory builds a BotAPI for a token.
type APIFactory func(token string) (telegoapi.BotAPI, error)

// Client is a thin wrapper around the Telegram Bot API. Every method performs
// exactly one API request and never retries; a transport error or a non-ok
// response is returned to the caller as is.
type Client struct {
	mu      sync.RWMutex
	api     telegoapi.BotAPI
	token   string
	newAPI  APIFactory
	limiter ratelimit.Limiter
}

// New creates a client. The bot itself is created lazily by Reconfigure.
func New(debug bool) *Client {
	return &Client{
		newAPI:  DefaultFactory(debug),
		limiter: ratelimit.New(25),
	}
}

// NewWithAPI creates a client around an existing BotAPI, e.g. a mock.
func NewWithAPI(api telegoapi.BotAPI, limiter ratelimit.Limiter) *Client {
	if limiter == nil {
		limiter = ratelimit.NewUnlimited()
	}
	return &Client{
		api:     api,
		limiter: limiter,
		newAPI: func(string) (telegoapi.BotAPI, error) {
			return api, nil
		},
	}
}

// DefaultFactory returns a factory creating real telego bots.
func DefaultFactory(debug bool) APIFactory {
	return func(token string) (telegoapi.BotAPI, error) {
		if debug {
			return telego.NewBot(token, telego.WithDefaultDebugLogger())
		}
		return telego.NewBot(token, telego.WithDefaultLogger(false, false))
	}
}

// Reconfigure replaces the underlying bot when the token differs from the current one.
// An empty token unconfigures the client.
func (c *Client) Reconfigure(token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if token == c.token && (c.api != nil || token == "") {
		return nil
	}
	if token == "" {
		c.api = nil
		c.token = ""
		log.Println("[Telegram] Bot token cleared, client unconfigured")
		return nil
	}
	api, err := c.newAPI(token)
	if err != nil {
		return fmt.Errorf("failed to create telegram bot: %w", err)
	}
	c.api = api
	c.token = token
	log.Println("[Telegram] Bot client (re)configured")
	return nil
}

func (c *Client) bot() (telegoapi.BotAPI, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.api == nil {
		return nil, ErrNotConfigured
	}
	c.limiter.Take()
	return c.api, nil
}

// SendMessage sends an HTML formatted text message with link previews disabled.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, markup *telego.InlineKeyboardMarkup) (*telego.Message, error) {
	api, err := c.bot()
	if err != nil {
		return nil, err
	}
	params := tu.Message(tu.ID(chatID), text).
		WithParseMode(telego.ModeHTML).
		WithLinkPreviewOptions(&telego.LinkPreviewOptions{IsDisabled: true})
	if markup != nil {
		params = params.WithReplyMarkup(markup)
	}
	msg, err := api.SendMessage(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("sendMessage to chat %d: %w", chatID, err)
	}
	return msg, nil
}

// SendMediaGroup uploads between two and MaxMediaGroupSize local photos as one album.
// Telegram does not accept reply markup on media groups.
func (c *Client) SendMediaGroup(ctx context.Context, chatID int64, files []string) ([]telego.Message, error) {
	if len(files) < minMediaGroupSize || len(files) > MaxMediaGroupSize {
		return nil, fmt.Errorf("media group must contain %d to %d items, got %d", minMediaGroupSize, MaxMediaGroupSize, len(files))
	}
	api, err := c.bot()
	if err != nil {
		return nil, err
	}

	media := make([]telego.InputMedia, 0, len(files))
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()
		media = append(media, tu.MediaPhoto(tu.File(f)))
	}

	msgs, err := api.SendMediaGroup(ctx, tu.MediaGroup(tu.ID(chatID), media...))
	if err != nil {
		return nil, fmt.Errorf("sendMediaGroup to chat %d: %w", chatID, err)
	}
	return msgs, nil
}

// SendPhoto uploads a single local photo.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, path string, markup *telego.InlineKeyboardMarkup) (*telego.Message, error) {
	api, err := c.bot()
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	params := tu.Photo(tu.ID(chatID), tu.File(f))
	if markup != nil {
		params = params.WithReplyMarkup(markup)
	}
	msg, err := api.SendPhoto(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("sendPhoto to chat %d: %w", chatID, err)
	}
	return msg, nil
}

// SendAnimation uploads a single local animation (GIF).
func (c *Client) SendAnimation(ctx context.Context, chatID int64, path string, markup *telego.InlineKeyboardMarkup) (*telego.Message, error) {
	api, err := c.bot()
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	params := tu.Animation(tu.ID(chatID), tu.File(f))
	if markup != nil {
		params = params.WithReplyMarkup(markup)
	}
	msg, err := api.SendAnimation(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("sendAnimation to chat %d: %w", chatID, err)
	}
	return msg, nil
}

// AnswerCallback answers a callback query with a transient toast.
func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) error {
	api, err := c.bot()
	if err != nil {
		return err
	}
	if err := api.AnswerCallbackQuery(ctx, tu.CallbackQuery(callbackID).WithText(text)); err != nil {
		return fmt.Errorf("answerCallbackQuery %s: %w", callbackID, err)
	}
	return nil
}

// EditControls replaces the inline keyboard of a sent message.
func (c *Client) EditControls(ctx context.Context, chatID int64, messageID int, markup *telego.InlineKeyboardMarkup) error {
	api, err := c.bot()
	if err != nil {
		return err
	}
	_, err = api.EditMessageReplyMarkup(ctx, &telego.EditMessageReplyMarkupParams{
		ChatID:      tu.ID(chatID),
		MessageID:   messageID,
		ReplyMarkup: markup,
	})
	if err != nil {
		return fmt.Errorf("editMessageReplyMarkup %d/%d: %w", chatID, messageID, err)
	}
	return nil
}

// RegisterWebhook points Telegram at url for update delivery.
func (c *Client) RegisterWebhook(ctx context.Context, url string) error {
	api, err := c.bot()
	if err != nil {
		return err
	}
	err = api.SetWebhook(ctx, &telego.SetWebhookParams{
		URL:            url,
		AllowedUpdates: allowedUpdates,
	})
	if err != nil {
		return fmt.Errorf("setWebhook: %w", err)
	}
	return nil
}

// DeleteWebhook removes the webhook so updates can be fetched by long polling.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	api, err := c.bot()
	if err != nil {
		return err
	}
	if err := api.DeleteWebhook(ctx, &telego.DeleteWebhookParams{}); err != nil {
		return fmt.Errorf("deleteWebhook: %w", err)
	}
	return nil
}

// Updates starts long polling and returns the update channel. The channel is
// closed when ctx is done.
func (c *Client) Updates(ctx context.Context) (<-chan telego.Update, error) {
	api, err := c.bot()
	if err != nil {
		return nil, err
	}
	updates, err := api.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: allowedUpdates,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start long polling: %w", err)
	}
	return updates, nil
}
