package models

import "time"

// Setting is a small persisted key-value pair owned by the bridge (e.g. the webhook secret).
type Setting struct {
	Key       string    `bson:"_id"`
	Value     string    `bson:"value"`
	UpdatedAt time.Time `bson:"updated_at"`
}
