package notifications

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"forumgram-bridge/internal/config"
	"forumgram-bridge/internal/database"
	"forumgram-bridge/internal/database/models"
	"forumgram-bridge/internal/forum"
	"forumgram-bridge/internal/locales"
	"forumgram-bridge/internal/media"
	"forumgram-bridge/internal/telegram"

	"github.com/getsentry/sentry-go"
	"github.com/mymmrac/telego"
	"github.com/patrickmn/go-cache"
)

// Chat is the outbound part of the Telegram client used by the forwarder.
type Chat interface {
	SendMessage(ctx context.Context, chatID int64, text string, markup *telego.InlineKeyboardMarkup) (*telego.Message, error)
	SendMediaGroup(ctx context.Context, chatID int64, files []string) ([]telego.Message, error)
	SendPhoto(ctx context.Context, chatID int64, path string, markup *telego.InlineKeyboardMarkup) (*telego.Message, error)
	SendAnimation(ctx context.Context, chatID int64, path string, markup *telego.InlineKeyboardMarkup) (*telego.Message, error)
}

// Content loads the forum data a notification refers to.
type Content interface {
	FindUser(ctx context.Context, id int64) (forum.User, error)
	FindPostByNumber(ctx context.Context, topicID int64, number int) (forum.Post, error)
	UserURL(username string) string
}

// Controls builds the inline keyboard for a post.
type Controls interface {
	Build(ctx context.Context, post forum.Post, user forum.User) *telego.InlineKeyboardMarkup
}

// Normalizer converts media to a format Telegram accepts.
type Normalizer interface {
	Normalize(a media.Asset) (media.Asset, error)
}

// Skip reasons reported when nothing was delivered.
const (
	SkipDisabled     = "disabled"
	SkipNotLinked    = "not_linked"
	SkipTypeFiltered = "type_filtered"
	SkipDuplicate    = "duplicate"
	SkipLookupFailed = "lookup_failed"
	SkipInvalidEvent = "invalid_event"
)

// Report describes what a single Forward call delivered.
type Report struct {
	Skipped             string
	ChatID              int64
	PostID              int64
	TextMessageID       int
	PhotoMessageIDs     []int
	AnimationMessageIDs []int
	DroppedAssets       int
	Failures            []error
}

// Delivered reports whether at least one message reached the chat.
func (r Report) Delivered() bool {
	return r.TextMessageID != 0 || len(r.PhotoMessageIDs) > 0 || len(r.AnimationMessageIDs) > 0
}

// ForwarderDeps holds the dependencies required by the Forwarder.
type ForwarderDeps struct {
	Chat       Chat
	Bindings   database.ChatBindingLookup
	Links      database.MessageLinkStore
	Content    Content
	Controls   Controls
	Normalizer Normalizer
	PublicRoot string
	DedupTTL   time.Duration
	Debug      bool
}

// Forwarder delivers forum notifications to the recipient's Telegram chat.
// Text, photos and each animation are independent deliveries: a failure in
// one never prevents the others.
type Forwarder struct {
	chat       Chat
	bindings   database.ChatBindingLookup
	links      database.MessageLinkStore
	content    Content
	controls   Controls
	normalizer Normalizer
	publicRoot string
	dedup      *cache.Cache
	debug      bool
}

// NewForwarder creates a Forwarder from its dependencies.
func NewForwarder(deps ForwarderDeps) (*Forwarder, error) {
	if deps.Chat == nil {
		return nil, fmt.Errorf("chat client cannot be nil")
	}
	if deps.Bindings == nil {
		return nil, fmt.Errorf("binding lookup cannot be nil")
	}
	if deps.Links == nil {
		return nil, fmt.Errorf("message link store cannot be nil")
	}
	if deps.Content == nil {
		return nil, fmt.Errorf("content client cannot be nil")
	}
	if deps.Controls == nil {
		return nil, fmt.Errorf("controls builder cannot be nil")
	}
	if deps.Normalizer == nil {
		return nil, fmt.Errorf("media normalizer cannot be nil")
	}

	f := &Forwarder{
		chat:       deps.Chat,
		bindings:   deps.Bindings,
		links:      deps.Links,
		content:    deps.Content,
		controls:   deps.Controls,
		normalizer: deps.Normalizer,
		publicRoot: deps.PublicRoot,
		debug:      deps.Debug,
	}
	if deps.DedupTTL > 0 {
		f.dedup = cache.New(deps.DedupTTL, 2*deps.DedupTTL)
	}
	return f, nil
}

// Forward delivers ev using the given settings snapshot. It never returns an
// error: every failure is logged, reported to Sentry and listed in the Report.
func (f *Forwarder) Forward(ctx context.Context, settings *config.Settings, ev Event) Report {
	logPrefix := fmt.Sprintf("[Forward User:%d Topic:%d Post:%d Type:%s]", ev.UserID, ev.TopicID, ev.PostNumber, ev.NotificationType.Name())
	var report Report

	if settings == nil || !settings.Enabled {
		report.Skipped = SkipDisabled
		return report
	}
	if err := ev.Validate(); err != nil {
		log.Printf("%s Invalid event: %v", logPrefix, err)
		report.Skipped = SkipInvalidEvent
		report.Failures = append(report.Failures, err)
		return report
	}

	chatID, err := f.bindings.ChatIDFor(ctx, ev.UserID)
	if err != nil {
		f.fail(&report, logPrefix, "binding lookup", err)
		report.Skipped = SkipLookupFailed
		return report
	}
	if chatID.IsAbsent() {
		if f.debug {
			log.Printf("%s User has no linked chat", logPrefix)
		}
		report.Skipped = SkipNotLinked
		return report
	}
	report.ChatID = chatID.MustGet()

	if !settings.AllowsType(ev.NotificationType.Name()) {
		report.Skipped = SkipTypeFiltered
		return report
	}

	key := ev.DedupKey()
	if f.dedup != nil {
		if err := f.dedup.Add(key, struct{}{}, cache.DefaultExpiration); err != nil {
			log.Printf("%s Duplicate delivery within dedup window, skipping", logPrefix)
			report.Skipped = SkipDuplicate
			return report
		}
	}

	user, err := f.content.FindUser(ctx, ev.UserID)
	if err != nil {
		f.release(key)
		f.fail(&report, logPrefix, "user lookup", err)
		report.Skipped = SkipLookupFailed
		return report
	}
	post, err := f.content.FindPostByNumber(ctx, ev.TopicID, ev.PostNumber)
	if err != nil {
		f.release(key)
		f.fail(&report, logPrefix, "post lookup", err)
		report.Skipped = SkipLookupFailed
		return report
	}
	report.PostID = post.ID

	localizer := locales.LocalizerFor(user.Locale)
	text := Render(localizer, settings, ev, f.content.UserURL(ev.Username))

	photos, animations := f.collectMedia(&report, logPrefix, post)
	defer media.Cleanup(photos)

	markup := f.controls.Build(ctx, post, user)

	f.sendText(ctx, &report, logPrefix, text, markup, post.ID)
	f.sendPhotos(ctx, &report, logPrefix, photos, markup, post.ID)
	f.sendAnimations(ctx, &report, logPrefix, animations, markup, post.ID)

	log.Printf("%s Delivered to chat %d: text=%t photos=%d animations=%d dropped=%d failures=%d",
		logPrefix, report.ChatID, report.TextMessageID != 0, len(report.PhotoMessageIDs),
		len(report.AnimationMessageIDs), report.DroppedAssets, len(report.Failures))
	return report
}

func (f *Forwarder) collectMedia(report *Report, logPrefix string, post forum.Post) (photos, animations []media.Asset) {
	assets, err := media.Extract(post.Cooked, f.publicRoot)
	if err != nil {
		f.fail(report, logPrefix, "media extraction", err)
		return nil, nil
	}

	kept := make([]media.Asset, 0, len(assets))
	for _, a := range assets {
		normalized, err := f.normalizer.Normalize(a)
		if err != nil {
			report.DroppedAssets++
			log.Printf("%s Dropping %s %s: %v", logPrefix, a.Kind, a.Path, err)
			if !errors.Is(err, media.ErrUnsupportedFormat) {
				sentry.CaptureException(fmt.Errorf("%s media conversion: %w", logPrefix, err))
			}
			continue
		}
		kept = append(kept, normalized)
	}
	return media.Split(kept)
}

func (f *Forwarder) sendText(ctx context.Context, report *Report, logPrefix, text string, markup *telego.InlineKeyboardMarkup, postID int64) {
	msg, err := f.chat.SendMessage(ctx, report.ChatID, text, markup)
	if err != nil {
		f.fail(report, logPrefix, "send text", err)
		return
	}
	report.TextMessageID = msg.MessageID
	f.link(ctx, report, logPrefix, msg.MessageID, postID)
}

// sendPhotos sends photos as albums of at most telegram.MaxMediaGroupSize.
// A chunk of a single photo is sent with sendPhoto since albums need two items.
func (f *Forwarder) sendPhotos(ctx context.Context, report *Report, logPrefix string, photos []media.Asset, markup *telego.InlineKeyboardMarkup, postID int64) {
	for start := 0; start < len(photos); start += telegram.MaxMediaGroupSize {
		end := start + telegram.MaxMediaGroupSize
		if end > len(photos) {
			end = len(photos)
		}
		chunk := photos[start:end]

		if len(chunk) == 1 {
			msg, err := f.chat.SendPhoto(ctx, report.ChatID, chunk[0].Path, markup)
			if err != nil {
				f.fail(report, logPrefix, "send photo", err)
				continue
			}
			report.PhotoMessageIDs = append(report.PhotoMessageIDs, msg.MessageID)
			f.link(ctx, report, logPrefix, msg.MessageID, postID)
			continue
		}

		paths := make([]string, len(chunk))
		for i, p := range chunk {
			paths[i] = p.Path
		}
		msgs, err := f.chat.SendMediaGroup(ctx, report.ChatID, paths)
		if err != nil {
			f.fail(report, logPrefix, "send media group", err)
			continue
		}
		for _, m := range msgs {
			report.PhotoMessageIDs = append(report.PhotoMessageIDs, m.MessageID)
			f.link(ctx, report, logPrefix, m.MessageID, postID)
		}
	}
}

func (f *Forwarder) sendAnimations(ctx context.Context, report *Report, logPrefix string, animations []media.Asset, markup *telego.InlineKeyboardMarkup, postID int64) {
	for _, a := range animations {
		msg, err := f.chat.SendAnimation(ctx, report.ChatID, a.Path, markup)
		if err != nil {
			f.fail(report, logPrefix, "send animation "+a.Path, err)
			continue
		}
		report.AnimationMessageIDs = append(report.AnimationMessageIDs, msg.MessageID)
		f.link(ctx, report, logPrefix, msg.MessageID, postID)
	}
}

func (f *Forwarder) link(ctx context.Context, report *Report, logPrefix string, messageID int, postID int64) {
	ref := models.ChatMessageRef{ChatID: report.ChatID, MessageID: messageID}
	if err := f.links.Put(ctx, ref, postID); err != nil {
		f.fail(report, logPrefix, "link message", err)
	}
}

func (f *Forwarder) release(key string) {
	if f.dedup != nil {
		f.dedup.Delete(key)
	}
}

func (f *Forwarder) fail(report *Report, logPrefix, step string, err error) {
	report.Failures = append(report.Failures, fmt.Errorf("%s: %w", step, err))
	log.Printf("%s %s failed: %v", logPrefix, step, err)
	sentry.CaptureException(fmt.Errorf("%s %s: %w", logPrefix, step, err))
}
