package markup

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"forumgram-bridge/internal/forum"
	"forumgram-bridge/internal/locales"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockLikeState struct {
	mock.Mock
}

func (m *MockLikeState) HasLiked(ctx context.Context, user forum.User, postID int64) (bool, error) {
	args := m.Called(ctx, user, postID)
	return args.Bool(0), args.Error(1)
}

func (m *MockLikeState) PostURL(post forum.Post) string {
	return fmt.Sprintf("https://forum.example.com/t/%d/%d", post.TopicID, post.PostNumber)
}

func TestMain(m *testing.M) {
	locales.MustInit("en")
	m.Run()
}

func TestParseAction(t *testing.T) {
	tests := []struct {
		data string
		want Action
	}{
		{"like:12", Action{Verb: VerbLike, PostID: 12}},
		{"unlike:12", Action{Verb: VerbUnlike, PostID: 12}},
		{"bookmark:12", Action{Verb: VerbUnknown, PostID: 12}},
		{"like:abc", Action{Verb: VerbUnknown}},
		{"like:-3", Action{Verb: VerbUnknown}},
		{"like", Action{Verb: VerbUnknown}},
		{"", Action{Verb: VerbUnknown}},
	}
	for _, tt := range tests {
		t.Run(tt.data, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseAction(tt.data))
		})
	}
	assert.Equal(t, Like(5), ParseAction(Like(5).Data()))
	assert.Equal(t, Unlike(5), ParseAction(Unlike(5).Data()))
}

func TestBuildReflectsLikeState(t *testing.T) {
	state := new(MockLikeState)
	b, err := NewBuilder(state)
	require.NoError(t, err)

	post := forum.Post{ID: 10, TopicID: 3, PostNumber: 4}
	alice := forum.User{ID: 1, Username: "alice"}
	bob := forum.User{ID: 2, Username: "bob"}
	state.On("HasLiked", mock.Anything, alice, int64(10)).Return(false, nil)
	state.On("HasLiked", mock.Anything, bob, int64(10)).Return(true, nil)

	kb := b.Build(context.Background(), post, alice)
	require.Len(t, kb.InlineKeyboard, 1)
	row := kb.InlineKeyboard[0]
	require.Len(t, row, 2)
	assert.Equal(t, "like:10", row[0].CallbackData)
	assert.Equal(t, "https://forum.example.com/t/3/4", row[1].URL)

	kb = b.Build(context.Background(), post, bob)
	assert.Equal(t, "unlike:10", kb.InlineKeyboard[0][0].CallbackData)
}

func TestBuildFallsBackToLike(t *testing.T) {
	state := new(MockLikeState)
	b, err := NewBuilder(state)
	require.NoError(t, err)
	state.On("HasLiked", mock.Anything, mock.Anything, int64(10)).Return(false, errors.New("forum down"))

	kb := b.Build(context.Background(), forum.Post{ID: 10}, forum.User{ID: 1})
	assert.Equal(t, "like:10", kb.InlineKeyboard[0][0].CallbackData)
}

func TestNewBuilderValidation(t *testing.T) {
	_, err := NewBuilder(nil)
	assert.Error(t, err)
}
