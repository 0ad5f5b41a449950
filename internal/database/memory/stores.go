// Package memory provides process-local implementations of the bridge stores.
// Data is lost on restart; it backs STORAGE_BACKEND=memory and tests.
package memory

import (
	"context"
	"sync"

	"forumgram-bridge/internal/database"
	"forumgram-bridge/internal/database/models"

	"github.com/samber/mo"
)

// MessageLinkStore keeps message links in a map.
type MessageLinkStore struct {
	mu    sync.RWMutex
	links map[models.ChatMessageRef]int64
}

// NewMessageLinkStore creates an empty link store.
func NewMessageLinkStore() *MessageLinkStore {
	return &MessageLinkStore{links: make(map[models.ChatMessageRef]int64)}
}

func (s *MessageLinkStore) Put(_ context.Context, ref models.ChatMessageRef, postID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[ref] = postID
	return nil
}

func (s *MessageLinkStore) Get(_ context.Context, ref models.ChatMessageRef) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	postID, ok := s.links[ref]
	if !ok {
		return 0, database.ErrLinkNotFound
	}
	return postID, nil
}

// Len returns the number of stored links.
func (s *MessageLinkStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.links)
}

// ChatBindingStore keeps bindings in two maps kept in sync.
type ChatBindingStore struct {
	mu         sync.RWMutex
	chatByUser map[int64]int64
	userByChat map[int64]int64
}

// NewChatBindingStore creates an empty binding store.
func NewChatBindingStore() *ChatBindingStore {
	return &ChatBindingStore{
		chatByUser: make(map[int64]int64),
		userByChat: make(map[int64]int64),
	}
}

func (s *ChatBindingStore) Bind(_ context.Context, userID, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if owner, ok := s.userByChat[chatID]; ok && owner != userID {
		return database.ErrChatAlreadyBound
	}
	if prev, ok := s.chatByUser[userID]; ok {
		delete(s.userByChat, prev)
	}
	s.chatByUser[userID] = chatID
	s.userByChat[chatID] = userID
	return nil
}

func (s *ChatBindingStore) Unbind(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if chatID, ok := s.chatByUser[userID]; ok {
		delete(s.userByChat, chatID)
		delete(s.chatByUser, userID)
	}
	return nil
}

func (s *ChatBindingStore) ChatIDFor(_ context.Context, userID int64) (mo.Option[int64], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if chatID, ok := s.chatByUser[userID]; ok {
		return mo.Some(chatID), nil
	}
	return mo.None[int64](), nil
}

func (s *ChatBindingStore) UserIDFor(_ context.Context, chatID int64) (mo.Option[int64], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if userID, ok := s.userByChat[chatID]; ok {
		return mo.Some(userID), nil
	}
	return mo.None[int64](), nil
}

// SettingsStore keeps settings in a map.
type SettingsStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewSettingsStore creates an empty settings store.
func NewSettingsStore() *SettingsStore {
	return &SettingsStore{values: make(map[string]string)}
}

func (s *SettingsStore) GetSetting(_ context.Context, key string) (mo.Option[string], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.values[key]; ok {
		return mo.Some(v), nil
	}
	return mo.None[string](), nil
}

func (s *SettingsStore) SetSetting(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

var (
	_ database.MessageLinkStore = (*MessageLinkStore)(nil)
	_ database.ChatBindingStore = (*ChatBindingStore)(nil)
	_ database.SettingsStore    = (*SettingsStore)(nil)
)
