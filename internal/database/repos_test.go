package database

import (
	"context"
	"testing"

	"forumgram-bridge/internal/database/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestMessageLinkRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()
	ref := models.ChatMessageRef{ChatID: 100, MessageID: 7}

	mt.Run("put upserts by chat and message", func(mt *mtest.T) {
		repo := NewMongoMessageLinkRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))

		require.NoError(mt, repo.Put(ctx, ref, 55))

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, "update", evt.CommandName)
	})

	mt.Run("put twice keeps one resolvable mapping", func(mt *mtest.T) {
		repo := NewMongoMessageLinkRepository(mt.DB)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
			mtest.CreateCursorResponse(0, "test.message_links", mtest.FirstBatch, bson.D{
				{Key: "_id", Value: ref.Key()},
				{Key: "chat_id", Value: ref.ChatID},
				{Key: "message_id", Value: ref.MessageID},
				{Key: "post_id", Value: int64(55)},
			}),
		)

		require.NoError(mt, repo.Put(ctx, ref, 55))
		require.NoError(mt, repo.Put(ctx, ref, 55))
		postID, err := repo.Get(ctx, ref)
		require.NoError(mt, err)
		assert.Equal(mt, int64(55), postID)
	})

	mt.Run("get missing link", func(mt *mtest.T) {
		repo := NewMongoMessageLinkRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test.message_links", mtest.FirstBatch))

		_, err := repo.Get(ctx, ref)
		assert.ErrorIs(mt, err, ErrLinkNotFound)
	})

	mt.Run("put failure is wrapped", func(mt *mtest.T) {
		repo := NewMongoMessageLinkRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 1, Message: "boom"}))

		err := repo.Put(ctx, ref, 1)
		require.Error(mt, err)
		assert.Contains(mt, err.Error(), "100:7")
	})
}

func TestChatBindingRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("bind", func(mt *mtest.T) {
		repo := NewMongoChatBindingRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))

		assert.NoError(mt, repo.Bind(ctx, 1, 500))
	})

	mt.Run("bind to a taken chat", func(mt *mtest.T) {
		repo := NewMongoChatBindingRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error collection: test.chat_bindings index: ux_chat_id",
		}))

		assert.ErrorIs(mt, repo.Bind(ctx, 2, 500), ErrChatAlreadyBound)
	})

	mt.Run("chat id for bound user", func(mt *mtest.T) {
		repo := NewMongoChatBindingRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test.chat_bindings", mtest.FirstBatch, bson.D{
			{Key: "user_id", Value: int64(1)},
			{Key: "chat_id", Value: int64(500)},
		}))

		chatID, err := repo.ChatIDFor(ctx, 1)
		require.NoError(mt, err)
		assert.Equal(mt, int64(500), chatID.MustGet())
	})

	mt.Run("chat id for unbound user", func(mt *mtest.T) {
		repo := NewMongoChatBindingRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test.chat_bindings", mtest.FirstBatch))

		chatID, err := repo.ChatIDFor(ctx, 1)
		require.NoError(mt, err)
		assert.True(mt, chatID.IsAbsent())
	})

	mt.Run("user id for chat", func(mt *mtest.T) {
		repo := NewMongoChatBindingRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test.chat_bindings", mtest.FirstBatch, bson.D{
			{Key: "user_id", Value: int64(9)},
			{Key: "chat_id", Value: int64(500)},
		}))

		userID, err := repo.UserIDFor(ctx, 500)
		require.NoError(mt, err)
		assert.Equal(mt, int64(9), userID.MustGet())
	})

	mt.Run("user id for shared chat is ambiguous", func(mt *mtest.T) {
		repo := NewMongoChatBindingRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test.chat_bindings", mtest.FirstBatch,
			bson.D{{Key: "user_id", Value: int64(9)}, {Key: "chat_id", Value: int64(500)}},
			bson.D{{Key: "user_id", Value: int64(10)}, {Key: "chat_id", Value: int64(500)}},
		))

		userID, err := repo.UserIDFor(ctx, 500)
		assert.ErrorIs(mt, err, ErrAmbiguousBinding)
		assert.True(mt, userID.IsAbsent())
	})

	mt.Run("unbind", func(mt *mtest.T) {
		repo := NewMongoChatBindingRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))

		assert.NoError(mt, repo.Unbind(ctx, 1))
	})

	mt.Run("ensure indexes", func(mt *mtest.T) {
		repo := NewMongoChatBindingRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		assert.NoError(mt, repo.EnsureIndexes(ctx))
	})
}

func TestSettingsRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("missing setting", func(mt *mtest.T) {
		repo := NewMongoSettingsRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test.settings", mtest.FirstBatch))

		v, err := repo.GetSetting(ctx, "telegram_secret")
		require.NoError(mt, err)
		assert.True(mt, v.IsAbsent())
	})

	mt.Run("set then get", func(mt *mtest.T) {
		repo := NewMongoSettingsRepository(mt.DB)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
			mtest.CreateCursorResponse(0, "test.settings", mtest.FirstBatch, bson.D{
				{Key: "_id", Value: "telegram_secret"},
				{Key: "value", Value: "abc"},
			}),
		)

		require.NoError(mt, repo.SetSetting(ctx, "telegram_secret", "abc"))
		v, err := repo.GetSetting(ctx, "telegram_secret")
		require.NoError(mt, err)
		assert.Equal(mt, "abc", v.OrEmpty())
	})
}
