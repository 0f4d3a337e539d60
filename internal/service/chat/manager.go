package chat

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"

	"github.com/zhouzirui/pac-chat/backend/internal/model/chat"
	"github.com/zhouzirui/pac-chat/backend/internal/store"
)

// Manager owns the open sessions and the per-user chat list operations.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	deps     dependencies
}

// NewManager wires the session dependencies. A nil notifier gets a private one.
func NewManager(conversations store.Conversations, resolver Resolver, completer Completer, notifier *Notifier) (*Manager, error) {
	if conversations == nil {
		return nil, errors.New("conversation store is required")
	}
	if resolver == nil {
		return nil, errors.New("identity resolver is required")
	}
	if completer == nil {
		return nil, errors.New("completer is required")
	}
	if notifier == nil {
		notifier = NewNotifier()
	}
	return &Manager{
		sessions: make(map[string]*Session),
		deps: dependencies{
			conversations: conversations,
			resolver:      resolver,
			completer:     completer,
			notifier:      notifier,
		},
	}, nil
}

// Notifier returns the chat list event feed.
func (m *Manager) Notifier() *Notifier {
	return m.deps.notifier
}

// Open starts a session for email. With a chatID the session is bound to that
// chat and its stored history; otherwise it starts Empty. A chat that does not
// exist, or belongs to someone else, yields store.ErrNotFound.
func (m *Manager) Open(ctx context.Context, email, chatID string) (*Session, error) {
	email = strings.TrimSpace(email)
	session := newSession(email, m.deps)
	if chatID != "" {
		if _, err := m.chatFor(ctx, email, chatID); err != nil {
			return nil, err
		}
		if err := session.load(ctx, chatID); err != nil {
			log.Printf("[session] load chat=%s failed: %v", chatID, err)
			return nil, err
		}
	}

	m.mu.Lock()
	m.sessions[session.ID()] = session
	m.mu.Unlock()

	log.Printf("[session] opened session=%s chat=%q", session.ID(), chatID)
	return session, nil
}

// Get returns an open session.
func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Close tears a session down.
func (m *Manager) Close(sessionID string) error {
	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	session.Close()
	log.Printf("[session] closed session=%s", sessionID)
	return nil
}

// ListChats returns the user's chats, newest first.
func (m *Manager) ListChats(ctx context.Context, email string) ([]chat.Chat, error) {
	userID, err := m.owner(ctx, email)
	if err != nil {
		return nil, err
	}
	return m.deps.conversations.ListChats(ctx, userID)
}

// SearchChats filters the user's chats by title. A blank query lists everything.
func (m *Manager) SearchChats(ctx context.Context, email, query string) ([]chat.Chat, error) {
	userID, err := m.owner(ctx, email)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return m.deps.conversations.ListChats(ctx, userID)
	}
	return m.deps.conversations.SearchChats(ctx, userID, query)
}

// GetMessages returns the stored history of a chat, oldest first.
func (m *Manager) GetMessages(ctx context.Context, email, chatID string) ([]chat.Message, error) {
	if _, err := m.chatFor(ctx, email, chatID); err != nil {
		return nil, err
	}
	messages, err := m.deps.conversations.GetMessages(ctx, chatID)
	if err != nil {
		return nil, err
	}
	for i := range messages {
		messages[i].Persisted = true
	}
	return messages, nil
}

// RenameChat retitles a chat and tells list views to refresh.
func (m *Manager) RenameChat(ctx context.Context, email, chatID, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return invalid("title", "title must not be empty")
	}
	c, err := m.chatFor(ctx, email, chatID)
	if err != nil {
		return err
	}
	if err := m.deps.conversations.RenameChat(ctx, chatID, title); err != nil {
		return err
	}
	m.publish(EventChatRenamed, c, email)
	return nil
}

// DeleteChat removes a chat with its messages and closes every session bound to it.
func (m *Manager) DeleteChat(ctx context.Context, email, chatID string) error {
	c, err := m.chatFor(ctx, email, chatID)
	if err != nil {
		return err
	}
	if err := m.deps.conversations.DeleteChat(ctx, chatID); err != nil {
		return err
	}

	m.mu.Lock()
	for id, session := range m.sessions {
		if session.ChatID() == chatID {
			session.Close()
			delete(m.sessions, id)
			log.Printf("[session] closed session=%s after chat=%s was deleted", id, chatID)
		}
	}
	m.mu.Unlock()

	m.publish(EventChatDeleted, c, email)
	return nil
}

// chatFor loads a chat on behalf of email. Owned chats are only visible to
// their owner; anonymous chats to anyone holding the id.
func (m *Manager) chatFor(ctx context.Context, email, chatID string) (chat.Chat, error) {
	if chatID == "" {
		return chat.Chat{}, invalid("chatId", "chat id is required")
	}
	c, err := m.deps.conversations.GetChat(ctx, chatID)
	if err != nil {
		return chat.Chat{}, err
	}
	if c.UserID == nil {
		return c, nil
	}
	userID, err := m.owner(ctx, email)
	if err != nil {
		return chat.Chat{}, err
	}
	if userID != *c.UserID {
		log.Printf("[session] chat=%s requested by a user other than its owner", chatID)
		return chat.Chat{}, store.NotFound("getChat", "chat")
	}
	return c, nil
}

// publish sends a list refresh to the chat owner's feed. chatFor has already
// matched email to the owner, so anonymous chats publish with no email.
func (m *Manager) publish(kind EventKind, c chat.Chat, email string) {
	owner := ""
	if c.UserID != nil {
		owner = strings.TrimSpace(email)
	}
	m.deps.notifier.Publish(Event{Kind: kind, ChatID: c.ID, Email: owner})
}

func (m *Manager) owner(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", invalid("email", "email is required")
	}
	return m.deps.resolver.Resolve(ctx, email)
}
