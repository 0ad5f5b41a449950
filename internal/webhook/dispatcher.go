package webhook

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"html"
	"log"
	"strings"

	"forumgram-bridge/internal/config"
	"forumgram-bridge/internal/database"
	"forumgram-bridge/internal/database/models"
	"forumgram-bridge/internal/forum"
	"forumgram-bridge/internal/locales"
	"forumgram-bridge/internal/markup"

	"github.com/getsentry/sentry-go"
	"github.com/mymmrac/telego"
	"github.com/nicksnyder/go-i18n/v2/i18n"
)

// ErrUnauthorized is returned by Authenticate when the key does not match.
var ErrUnauthorized = errors.New("webhook key mismatch")

// Chat is the part of the Telegram client used for inbound updates.
type Chat interface {
	SendMessage(ctx context.Context, chatID int64, text string, markup *telego.InlineKeyboardMarkup) (*telego.Message, error)
	AnswerCallback(ctx context.Context, callbackID, text string) error
	EditControls(ctx context.Context, chatID int64, messageID int, markup *telego.InlineKeyboardMarkup) error
}

// Forum is the part of the forum client used for inbound updates.
type Forum interface {
	FindUser(ctx context.Context, id int64) (forum.User, error)
	FindPost(ctx context.Context, id int64) (forum.Post, error)
	CreateReply(ctx context.Context, user forum.User, topicID int64, replyToPostNumber int, raw string) (forum.Post, error)
	Like(ctx context.Context, user forum.User, postID int64) error
	Unlike(ctx context.Context, user forum.User, postID int64) error
	PostURL(post forum.Post) string
}

// Controls builds the inline keyboard for a post.
type Controls interface {
	Build(ctx context.Context, post forum.Post, user forum.User) *telego.InlineKeyboardMarkup
}

// DispatcherDeps holds the dependencies required by the Dispatcher.
type DispatcherDeps struct {
	Chat     Chat
	Forum    Forum
	Bindings database.ChatBindingLookup
	Links    database.MessageLinkStore
	Secrets  database.SettingsStore
	Controls Controls
	Debug    bool
}

// Dispatcher processes updates delivered by Telegram.
type Dispatcher struct {
	chat     Chat
	forum    Forum
	bindings database.ChatBindingLookup
	links    database.MessageLinkStore
	secrets  database.SettingsStore
	controls Controls
	debug    bool
}

// NewDispatcher creates a Dispatcher from its dependencies.
func NewDispatcher(deps DispatcherDeps) (*Dispatcher, error) {
	if deps.Chat == nil {
		return nil, fmt.Errorf("chat client cannot be nil")
	}
	if deps.Forum == nil {
		return nil, fmt.Errorf("forum client cannot be nil")
	}
	if deps.Bindings == nil {
		return nil, fmt.Errorf("binding lookup cannot be nil")
	}
	if deps.Links == nil {
		return nil, fmt.Errorf("message link store cannot be nil")
	}
	if deps.Secrets == nil {
		return nil, fmt.Errorf("settings store cannot be nil")
	}
	if deps.Controls == nil {
		return nil, fmt.Errorf("controls builder cannot be nil")
	}
	return &Dispatcher{
		chat:     deps.Chat,
		forum:    deps.Forum,
		bindings: deps.Bindings,
		links:    deps.Links,
		secrets:  deps.Secrets,
		controls: deps.Controls,
		debug:    deps.Debug,
	}, nil
}

// Authenticate checks key against the stored webhook secret. An unset
// secret never authenticates.
func (d *Dispatcher) Authenticate(ctx context.Context, key string) error {
	secret, err := d.secrets.GetSetting(ctx, database.SettingWebhookSecret)
	if err != nil {
		return fmt.Errorf("failed to load webhook secret: %w", err)
	}
	stored := secret.OrEmpty()
	if stored == "" || key == "" {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(key)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// Dispatch processes one authenticated update. Failures are turned into
// texts for the chat user and reported through the Outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, settings *config.Settings, update telego.Update) Outcome {
	switch {
	case update.Message != nil:
		return d.handleMessage(ctx, settings, update.Message)
	case update.CallbackQuery != nil:
		return d.handleCallback(ctx, update.CallbackQuery)
	default:
		if d.debug {
			log.Printf("[Dispatch Update:%d] Ignoring update without message or callback", update.UpdateID)
		}
		return Outcome{Kind: OutcomeIgnored, Path: PathNone}
	}
}

// resolveUser maps a chat to its bound forum user. Ambiguous bindings count
// as unresolved.
func (d *Dispatcher) resolveUser(ctx context.Context, logPrefix string, chatID int64) (forum.User, bool, error) {
	userID, err := d.bindings.UserIDFor(ctx, chatID)
	if err != nil {
		if errors.Is(err, database.ErrAmbiguousBinding) {
			log.Printf("%s Chat is bound to several users, treating as unlinked", logPrefix)
		}
		return forum.User{}, false, fmt.Errorf("resolve chat %d: %w", chatID, err)
	}
	if userID.IsAbsent() {
		return forum.User{}, false, nil
	}

	user, err := d.forum.FindUser(ctx, userID.MustGet())
	if err != nil {
		return forum.User{}, false, fmt.Errorf("load user %d: %w", userID.MustGet(), err)
	}
	return user, true, nil
}

func (d *Dispatcher) handleMessage(ctx context.Context, settings *config.Settings, msg *telego.Message) Outcome {
	chatID := msg.Chat.ID
	logPrefix := fmt.Sprintf("[Dispatch Message Chat:%d Msg:%d]", chatID, msg.MessageID)
	out := Outcome{Kind: OutcomeHandled, Path: PathMessage}

	user, resolved, err := d.resolveUser(ctx, logPrefix, chatID)
	if err != nil {
		d.degrade(&out, logPrefix, err)
	}

	localizer := d.localizerFor(user, resolved, msg.From)

	var text string
	if resolved {
		text = locales.GetMessage(localizer, "MsgKnownUser", map[string]interface{}{
			"Username":  html.EscapeString(user.Username),
			"SiteTitle": html.EscapeString(settings.SiteTitle),
		}, nil)
	} else {
		text = locales.GetMessage(localizer, "MsgInitialContact", map[string]interface{}{
			"SiteTitle": html.EscapeString(settings.SiteTitle),
			"ChatID":    chatID,
		}, nil)
	}

	if resolved && msg.ReplyToMessage != nil {
		text = d.reply(ctx, &out, logPrefix, localizer, user, msg)
	}

	out.Text = text
	if _, err := d.chat.SendMessage(ctx, chatID, text, nil); err != nil {
		d.degrade(&out, logPrefix, fmt.Errorf("send response: %w", err))
	}
	return out
}

// reply posts the message text as a forum reply to the post linked with the
// replied-to chat message, and returns the text to answer with.
func (d *Dispatcher) reply(ctx context.Context, out *Outcome, logPrefix string, localizer *i18n.Localizer, user forum.User, msg *telego.Message) string {
	ref := models.ChatMessageRef{ChatID: msg.Chat.ID, MessageID: msg.ReplyToMessage.MessageID}
	postID, err := d.links.Get(ctx, ref)
	if err != nil {
		if !errors.Is(err, database.ErrLinkNotFound) {
			d.degrade(out, logPrefix, fmt.Errorf("lookup link %s: %w", ref.Key(), err))
		}
		return locales.GetMessage(localizer, "MsgReplyError", nil, nil)
	}

	post, err := d.forum.FindPost(ctx, postID)
	if err != nil {
		if !errors.Is(err, forum.ErrNotFound) {
			d.degrade(out, logPrefix, fmt.Errorf("load post %d: %w", postID, err))
		}
		return locales.GetMessage(localizer, "MsgReplyError", nil, nil)
	}

	raw := msg.Text
	if raw == "" {
		raw = msg.Caption
	}

	created, err := d.forum.CreateReply(ctx, user, post.TopicID, post.PostNumber, raw)
	if err != nil {
		var verr *forum.ValidationError
		switch {
		case errors.As(err, &verr):
			log.Printf("%s Reply rejected by forum: %s", logPrefix, verr.Joined())
			return locales.GetMessage(localizer, "MsgReplyFailed", map[string]interface{}{
				"Errors": html.EscapeString(verr.Joined()),
			}, nil)
		case errors.Is(err, forum.ErrNotAuthorized):
			log.Printf("%s User %s may not reply in topic %d", logPrefix, user.Username, post.TopicID)
			return locales.GetMessage(localizer, "MsgReplyNotPermitted", nil, nil)
		default:
			d.degrade(out, logPrefix, fmt.Errorf("create reply: %w", err))
			return locales.GetMessage(localizer, "MsgReplyUnavailable", nil, nil)
		}
	}

	log.Printf("%s User %s replied to post %d with post %d", logPrefix, user.Username, post.ID, created.ID)
	return locales.GetMessage(localizer, "MsgReplySuccess", map[string]interface{}{
		"PostURL": html.EscapeString(d.forum.PostURL(created)),
	}, nil)
}

func (d *Dispatcher) handleCallback(ctx context.Context, query *telego.CallbackQuery) Outcome {
	chatID := query.From.ID
	messageID := 0
	if query.Message != nil {
		chatID = query.Message.GetChat().ID
		messageID = query.Message.GetMessageID()
	}
	logPrefix := fmt.Sprintf("[Dispatch Callback Chat:%d Msg:%d Data:%q]", chatID, messageID, query.Data)
	out := Outcome{Kind: OutcomeHandled, Path: PathCallback}

	user, resolved, err := d.resolveUser(ctx, logPrefix, chatID)
	if err != nil {
		d.degrade(&out, logPrefix, err)
	}
	localizer := d.localizerFor(user, resolved, &query.From)

	action := markup.ParseAction(query.Data)
	var (
		post     forum.Post
		havePost bool
		missing  bool
		text     string
	)

	switch {
	case !resolved:
		text = locales.GetMessage(localizer, "MsgErrorUnknownAction", nil, nil)
	case action.Verb == markup.VerbUnknown:
		text = locales.GetMessage(localizer, "MsgErrorUnknownAction", nil, nil)
		post, havePost, _ = d.findPost(ctx, &out, logPrefix, action.PostID)
	default:
		post, havePost, missing = d.findPost(ctx, &out, logPrefix, action.PostID)
		text = d.applyAction(ctx, &out, logPrefix, localizer, user, action, havePost, missing)
	}

	out.Text = text
	if err := d.chat.AnswerCallback(ctx, query.ID, text); err != nil {
		d.degrade(&out, logPrefix, fmt.Errorf("answer callback: %w", err))
	}

	if resolved && havePost && messageID != 0 {
		controls := d.controls.Build(ctx, post, user)
		if err := d.chat.EditControls(ctx, chatID, messageID, controls); err != nil {
			d.degrade(&out, logPrefix, fmt.Errorf("edit controls: %w", err))
		}
	}
	return out
}

// findPost loads the post a callback refers to. missing is set when the
// forum has no such post, as opposed to a failed lookup.
func (d *Dispatcher) findPost(ctx context.Context, out *Outcome, logPrefix string, postID int64) (post forum.Post, found, missing bool) {
	if postID <= 0 {
		return forum.Post{}, false, true
	}
	post, err := d.forum.FindPost(ctx, postID)
	if err != nil {
		if errors.Is(err, forum.ErrNotFound) {
			log.Printf("%s Post %d not found", logPrefix, postID)
			return forum.Post{}, false, true
		}
		d.degrade(out, logPrefix, fmt.Errorf("load post %d: %w", postID, err))
		return forum.Post{}, false, false
	}
	return post, true, false
}

func (d *Dispatcher) applyAction(ctx context.Context, out *Outcome, logPrefix string, localizer *i18n.Localizer, user forum.User, action markup.Action, havePost, missing bool) string {
	if missing {
		return locales.GetMessage(localizer, "MsgPostNotFound", nil, nil)
	}

	switch action.Verb {
	case markup.VerbLike:
		if !havePost {
			return locales.GetMessage(localizer, "MsgLikeFailed", nil, nil)
		}
		err := d.forum.Like(ctx, user, action.PostID)
		switch {
		case err == nil:
			log.Printf("%s User %s liked post %d", logPrefix, user.Username, action.PostID)
			return locales.GetMessage(localizer, "MsgLikeSuccess", nil, nil)
		case errors.Is(err, forum.ErrAlreadyActed):
			return locales.GetMessage(localizer, "MsgAlreadyLiked", nil, nil)
		case errors.Is(err, forum.ErrNotFound):
			return locales.GetMessage(localizer, "MsgPostNotFound", nil, nil)
		case errors.Is(err, forum.ErrNotAuthorized):
			return locales.GetMessage(localizer, "MsgLikeFailed", nil, nil)
		default:
			d.degrade(out, logPrefix, fmt.Errorf("like: %w", err))
			return locales.GetMessage(localizer, "MsgLikeFailed", nil, nil)
		}

	case markup.VerbUnlike:
		if !havePost {
			return locales.GetMessage(localizer, "MsgUnlikeFailed", nil, nil)
		}
		err := d.forum.Unlike(ctx, user, action.PostID)
		switch {
		case err == nil:
			log.Printf("%s User %s removed like from post %d", logPrefix, user.Username, action.PostID)
			return locales.GetMessage(localizer, "MsgUnlikeSuccess", nil, nil)
		case errors.Is(err, forum.ErrNotFound), errors.Is(err, forum.ErrNotAuthorized):
			log.Printf("%s Unlike refused: %v", logPrefix, err)
			return locales.GetMessage(localizer, "MsgUnlikeFailed", nil, nil)
		default:
			d.degrade(out, logPrefix, fmt.Errorf("unlike: %w", err))
			return locales.GetMessage(localizer, "MsgUnlikeFailed", nil, nil)
		}
	}
	return locales.GetMessage(localizer, "MsgErrorUnknownAction", nil, nil)
}

// localizerFor prefers the forum user's locale, then the Telegram client language.
func (d *Dispatcher) localizerFor(user forum.User, resolved bool, from *telego.User) *i18n.Localizer {
	if resolved && user.Locale != "" {
		return locales.LocalizerFor(user.Locale)
	}
	if from != nil && from.LanguageCode != "" {
		return locales.LocalizerFor(strings.ToLower(from.LanguageCode))
	}
	return locales.NewLocalizer()
}

func (d *Dispatcher) degrade(out *Outcome, logPrefix string, err error) {
	out.Kind = OutcomeDegraded
	out.Err = errors.Join(out.Err, err)
	log.Printf("%s %v", logPrefix, err)
	sentry.CaptureException(fmt.Errorf("%s %w", logPrefix, err))
}
