package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"forumgram-bridge/internal/database/models"

	"github.com/samber/mo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const settingsCollectionName = "settings"

// MongoSettingsRepository implements SettingsStore for MongoDB.
type MongoSettingsRepository struct {
	collection *mongo.Collection
}

// NewMongoSettingsRepository creates a new MongoDB settings repository.
func NewMongoSettingsRepository(db *mongo.Database) *MongoSettingsRepository {
	return &MongoSettingsRepository{collection: db.Collection(settingsCollectionName)}
}

// GetSetting returns the stored value for key, if any.
func (r *MongoSettingsRepository) GetSetting(ctx context.Context, key string) (mo.Option[string], error) {
	var s models.Setting
	err := r.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&s)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return mo.None[string](), nil
		}
		return mo.None[string](), fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return mo.Some(s.Value), nil
}

// SetSetting stores value under key.
func (r *MongoSettingsRepository) SetSetting(ctx context.Context, key, value string) error {
	update := bson.M{"$set": bson.M{"value": value, "updated_at": time.Now()}}
	if _, err := r.collection.UpdateOne(ctx, bson.M{"_id": key}, update, options.Update().SetUpsert(true)); err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	return nil
}
