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

const chatBindingCollectionName = "chat_bindings"

// MongoChatBindingRepository implements ChatBindingStore for MongoDB.
type MongoChatBindingRepository struct {
	collection *mongo.Collection
	now        func() time.Time
}

// NewMongoChatBindingRepository creates a new MongoDB chat binding repository.
func NewMongoChatBindingRepository(db *mongo.Database) *MongoChatBindingRepository {
	return &MongoChatBindingRepository{
		collection: db.Collection(chatBindingCollectionName),
		now:        time.Now,
	}
}

// EnsureIndexes creates the unique indexes backing the one-chat-per-user and
// one-user-per-chat invariants.
func (r *MongoChatBindingRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true).SetName("ux_user_id")},
		{Keys: bson.D{{Key: "chat_id", Value: 1}}, Options: options.Index().SetUnique(true).SetName("ux_chat_id")},
	})
	if err != nil {
		return fmt.Errorf("failed to create chat binding indexes: %w", err)
	}
	return nil
}

// Bind sets the chat for userID, replacing any previous chat of that user.
func (r *MongoChatBindingRepository) Bind(ctx context.Context, userID, chatID int64) error {
	now := r.now()
	filter := bson.M{"user_id": userID}
	update := bson.M{
		"$set":         bson.M{"chat_id": chatID, "updated_at": now},
		"$setOnInsert": bson.M{"user_id": userID, "bound_at": now},
	}

	_, err := r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrChatAlreadyBound
		}
		return fmt.Errorf("failed to bind user %d to chat %d: %w", userID, chatID, err)
	}
	return nil
}

// Unbind removes the binding of userID.
func (r *MongoChatBindingRepository) Unbind(ctx context.Context, userID int64) error {
	if _, err := r.collection.DeleteOne(ctx, bson.M{"user_id": userID}); err != nil {
		return fmt.Errorf("failed to unbind user %d: %w", userID, err)
	}
	return nil
}

// ChatIDFor returns the chat bound to userID, if any.
func (r *MongoChatBindingRepository) ChatIDFor(ctx context.Context, userID int64) (mo.Option[int64], error) {
	var binding models.ChatBinding
	err := r.collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&binding)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return mo.None[int64](), nil
		}
		return mo.None[int64](), fmt.Errorf("failed to find binding for user %d: %w", userID, err)
	}
	return mo.Some(binding.ChatID), nil
}

// UserIDFor returns the user bound to chatID. Bindings written before the
// unique index existed may share a chat; that case is reported, not resolved.
func (r *MongoChatBindingRepository) UserIDFor(ctx context.Context, chatID int64) (mo.Option[int64], error) {
	cursor, err := r.collection.Find(ctx, bson.M{"chat_id": chatID}, options.Find().SetLimit(2))
	if err != nil {
		return mo.None[int64](), fmt.Errorf("failed to find binding for chat %d: %w", chatID, err)
	}
	defer cursor.Close(ctx)

	var bindings []models.ChatBinding
	if err := cursor.All(ctx, &bindings); err != nil {
		return mo.None[int64](), fmt.Errorf("failed to decode bindings for chat %d: %w", chatID, err)
	}

	switch len(bindings) {
	case 0:
		return mo.None[int64](), nil
	case 1:
		return mo.Some(bindings[0].UserID), nil
	default:
		return mo.None[int64](), ErrAmbiguousBinding
	}
}
