// Package memory keeps users, chats and messages in process memory. It backs
// local runs without a database and the service-level tests.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/pac-chat/backend/internal/model/chat"
	"github.com/zhouzirui/pac-chat/backend/internal/store"
)

// Store implements store.Store with maps guarded by a RWMutex.
type Store struct {
	mu       sync.RWMutex
	users    map[string]chat.User
	chats    map[string]chat.Chat
	messages map[string][]chat.Message
	now      func() time.Time
}

var _ store.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		users:    make(map[string]chat.User),
		chats:    make(map[string]chat.Chat),
		messages: make(map[string][]chat.Message),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) FindUserByEmail(_ context.Context, email string) (chat.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[email]
	if !ok {
		return chat.User{}, store.NotFound("findUserByEmail", "user")
	}
	return user, nil
}

func (s *Store) CreateUser(_ context.Context, email string) (chat.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[email]; ok {
		return chat.User{}, &store.Error{Op: "createUser", Message: "email already registered", Err: store.ErrConflict}
	}

	user := chat.User{ID: newID(), Email: email}
	s.users[email] = user
	return user, nil
}

func (s *Store) CreateChat(_ context.Context, userID *string, title string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := chat.Chat{
		ID:        newID(),
		Title:     title,
		CreatedAt: s.now(),
	}
	if userID != nil {
		owner := *userID
		c.UserID = &owner
	}

	s.chats[c.ID] = c
	s.messages[c.ID] = make([]chat.Message, 0, 16)
	return c.ID, nil
}

func (s *Store) GetChat(_ context.Context, chatID string) (chat.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.chats[chatID]
	if !ok {
		return chat.Chat{}, store.NotFound("getChat", "chat")
	}
	return c, nil
}

func (s *Store) ListChats(_ context.Context, userID string) ([]chat.Chat, error) {
	return s.filterChats(userID, func(chat.Chat) bool { return true }), nil
}

func (s *Store) SearchChats(_ context.Context, userID, substring string) ([]chat.Chat, error) {
	needle := strings.ToLower(substring)
	return s.filterChats(userID, func(c chat.Chat) bool {
		return strings.Contains(strings.ToLower(c.Title), needle)
	}), nil
}

func (s *Store) filterChats(userID string, keep func(chat.Chat) bool) []chat.Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]chat.Chat, 0)
	for _, c := range s.chats {
		if c.UserID == nil || *c.UserID != userID || !keep(c) {
			continue
		}
		result = append(result, c)
	}

	slices.SortFunc(result, func(a, b chat.Chat) int {
		if cmp := b.CreatedAt.Compare(a.CreatedAt); cmp != 0 {
			return cmp
		}
		return strings.Compare(b.ID, a.ID)
	})
	return result
}

func (s *Store) GetMessages(_ context.Context, chatID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Unknown chats read as empty, matching a filtered select on the messages table.
	messages := s.messages[chatID]
	copied := make([]chat.Message, len(messages))
	copy(copied, messages)
	slices.SortStableFunc(copied, func(a, b chat.Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return copied, nil
}

func (s *Store) AddMessage(_ context.Context, chatID, content string, role chat.Role) error {
	if !role.Valid() {
		return store.InvalidRole("addMessage", string(role))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chats[chatID]; !ok {
		return store.NotFound("addMessage", "chat")
	}

	s.messages[chatID] = append(s.messages[chatID], chat.Message{
		ID:        newID(),
		ChatID:    chatID,
		Content:   content,
		Role:      role,
		CreatedAt: s.now(),
		Persisted: true,
	})
	return nil
}

func (s *Store) RenameChat(_ context.Context, chatID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chats[chatID]
	if !ok {
		return store.NotFound("renameChat", "chat")
	}
	c.Title = title
	s.chats[chatID] = c
	return nil
}

func (s *Store) DeleteChat(_ context.Context, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chats[chatID]; !ok {
		return store.NotFound("deleteChat", "chat")
	}
	delete(s.chats, chatID)
	delete(s.messages, chatID)
	return nil
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
