package models

import "time"

// ChatBinding associates a forum user with the Telegram chat receiving their notifications.
type ChatBinding struct {
	UserID    int64     `bson:"user_id"`
	ChatID    int64     `bson:"chat_id"`
	BoundAt   time.Time `bson:"bound_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}
