package models

import (
	"strconv"
	"time"
)

// ChatMessageRef identifies a message sent by the bot. Telegram message IDs are
// only unique within a chat, so the chat is part of the key.
type ChatMessageRef struct {
	ChatID    int64
	MessageID int
}

// Key returns the storage key of the reference.
func (r ChatMessageRef) Key() string {
	return strconv.FormatInt(r.ChatID, 10) + ":" + strconv.Itoa(r.MessageID)
}

// MessageLink maps a chat message produced by a notification to the forum post it represents.
type MessageLink struct {
	ID        string    `bson:"_id"` // ChatMessageRef.Key()
	ChatID    int64     `bson:"chat_id"`
	MessageID int       `bson:"message_id"`
	PostID    int64     `bson:"post_id"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}
