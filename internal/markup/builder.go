package markup

import (
	"context"
	"fmt"
	"log"

	"forumgram-bridge/internal/forum"
	"forumgram-bridge/internal/locales"

	"github.com/getsentry/sentry-go"
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// LikeState answers whether a user likes a post and where the post lives.
type LikeState interface {
	HasLiked(ctx context.Context, user forum.User, postID int64) (bool, error)
	PostURL(post forum.Post) string
}

// Builder computes the inline controls attached to notification messages.
type Builder struct {
	state LikeState
}

// NewBuilder creates a Builder.
func NewBuilder(state LikeState) (*Builder, error) {
	if state == nil {
		return nil, fmt.Errorf("like state provider cannot be nil")
	}
	return &Builder{state: state}, nil
}

// Build returns one row with a like/unlike toggle reflecting the user's
// current like state and a link to the post. When the like state cannot be
// queried the Like button is shown.
func (b *Builder) Build(ctx context.Context, post forum.Post, user forum.User) *telego.InlineKeyboardMarkup {
	localizer := locales.LocalizerFor(user.Locale)

	liked, err := b.state.HasLiked(ctx, user, post.ID)
	if err != nil {
		log.Printf("[Markup Post:%d User:%d] Failed to query like state: %v", post.ID, user.ID, err)
		sentry.CaptureException(fmt.Errorf("markup like state post %d user %d: %w", post.ID, user.ID, err))
		liked = false
	}

	toggle := tu.InlineKeyboardButton(locales.GetMessage(localizer, "BtnLike", nil, nil)).
		WithCallbackData(Like(post.ID).Data())
	if liked {
		toggle = tu.InlineKeyboardButton(locales.GetMessage(localizer, "BtnUnlike", nil, nil)).
			WithCallbackData(Unlike(post.ID).Data())
	}
	view := tu.InlineKeyboardButton(locales.GetMessage(localizer, "BtnViewOnline", nil, nil)).
		WithURL(b.state.PostURL(post))

	return tu.InlineKeyboard(tu.InlineKeyboardRow(toggle, view))
}
