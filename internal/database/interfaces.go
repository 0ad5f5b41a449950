package database

import (
	"context"
	"errors"

	"forumgram-bridge/internal/database/models"

	"github.com/samber/mo"
)

var (
	// ErrLinkNotFound is returned when no post is linked to a chat message.
	ErrLinkNotFound = errors.New("message link not found")
	// ErrChatAlreadyBound is returned when a chat is already bound to another user.
	ErrChatAlreadyBound = errors.New("chat is already bound to another user")
	// ErrAmbiguousBinding is returned when a chat resolves to more than one user.
	ErrAmbiguousBinding = errors.New("chat is bound to more than one user")
)

// MessageLinkStore persists chat message -> post links used for threaded replies.
type MessageLinkStore interface {
	// Put links ref to postID. Repeating a put with the same arguments is a no-op;
	// a different postID overwrites the previous one.
	Put(ctx context.Context, ref models.ChatMessageRef, postID int64) error
	// Get returns the linked post ID or ErrLinkNotFound.
	Get(ctx context.Context, ref models.ChatMessageRef) (int64, error)
}

// ChatBindingLookup resolves forum users to chats and back.
type ChatBindingLookup interface {
	ChatIDFor(ctx context.Context, userID int64) (mo.Option[int64], error)
	// UserIDFor returns ErrAmbiguousBinding when several users share the chat.
	UserIDFor(ctx context.Context, chatID int64) (mo.Option[int64], error)
}

// ChatBindingStore is the writable side of the chat bindings.
type ChatBindingStore interface {
	ChatBindingLookup
	// Bind sets the user's chat. Returns ErrChatAlreadyBound when the chat
	// belongs to a different user.
	Bind(ctx context.Context, userID, chatID int64) error
	// Unbind removes the user's binding. Unbinding an unbound user is not an error.
	Unbind(ctx context.Context, userID int64) error
}

// SettingWebhookSecret is the settings key of the current webhook secret.
const SettingWebhookSecret = "telegram_webhook_secret"

// SettingsStore holds small persisted values owned by the bridge.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (mo.Option[string], error)
	SetSetting(ctx context.Context, key, value string) error
}
