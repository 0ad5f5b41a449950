package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"forumgram-bridge/internal/database/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const messageLinkCollectionName = "message_links"

// MongoMessageLinkRepository implements MessageLinkStore for MongoDB.
type MongoMessageLinkRepository struct {
	collection *mongo.Collection
	now        func() time.Time
}

// NewMongoMessageLinkRepository creates a new MongoDB message link repository.
func NewMongoMessageLinkRepository(db *mongo.Database) *MongoMessageLinkRepository {
	return &MongoMessageLinkRepository{
		collection: db.Collection(messageLinkCollectionName),
		now:        time.Now,
	}
}

// Put upserts the link for ref.
func (r *MongoMessageLinkRepository) Put(ctx context.Context, ref models.ChatMessageRef, postID int64) error {
	now := r.now()
	filter := bson.M{"_id": ref.Key()}
	update := bson.M{
		"$set": bson.M{
			"chat_id":    ref.ChatID,
			"message_id": ref.MessageID,
			"post_id":    postID,
			"updated_at": now,
		},
		"$setOnInsert": bson.M{"created_at": now},
	}

	if _, err := r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
		return fmt.Errorf("failed to upsert message link %s: %w", ref.Key(), err)
	}
	return nil
}

// Get returns the post linked to ref, or ErrLinkNotFound.
func (r *MongoMessageLinkRepository) Get(ctx context.Context, ref models.ChatMessageRef) (int64, error) {
	var link models.MessageLink
	err := r.collection.FindOne(ctx, bson.M{"_id": ref.Key()}).Decode(&link)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, ErrLinkNotFound
		}
		return 0, fmt.Errorf("failed to find message link %s: %w", ref.Key(), err)
	}
	return link.PostID, nil
}
