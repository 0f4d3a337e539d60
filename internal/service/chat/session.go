package chat

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/pac-chat/backend/internal/model/chat"
	"github.com/zhouzirui/pac-chat/backend/internal/store"
)

// ResponseLanguageSuffix is appended to every prompt sent to the completion service.
const ResponseLanguageSuffix = " Give the response in Spanish."

// State is the session lifecycle: Empty until the first message creates a chat.
type State string

const (
	StateEmpty  State = "empty"
	StateActive State = "active"
)

// Completer turns a prompt into reply text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Resolver maps an email to a user id, creating the user on first sight.
type Resolver interface {
	Resolve(ctx context.Context, email string) (string, error)
}

type dependencies struct {
	conversations store.Conversations
	resolver      Resolver
	completer     Completer
	notifier      *Notifier
}

// Snapshot is a point-in-time copy of a session.
type Snapshot struct {
	ID                string         `json:"id"`
	ChatID            string         `json:"chatId,omitempty"`
	State             State          `json:"state"`
	PendingCompletion bool           `json:"pendingCompletion"`
	Messages          []chat.Message `json:"messages"`
}

// Session holds one open conversation: the chat it is bound to, its visible
// messages and whether a completion is in flight. At most one completion runs
// at a time.
type Session struct {
	id    string
	email string
	deps  dependencies

	mu         sync.Mutex
	chatID     string
	messages   []chat.Message
	pending    bool
	closed     bool
	generation uint64
}

func newSession(email string, deps dependencies) *Session {
	return &Session{
		id:       uuid.NewString(),
		email:    email,
		deps:     deps,
		messages: make([]chat.Message, 0, 16),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Email returns the owner email, empty for anonymous sessions.
func (s *Session) Email() string {
	return s.email
}

// ChatID returns the bound chat, or "" while the session is Empty.
func (s *Session) ChatID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatID
}

// load binds the session to an existing chat and replaces the visible history.
func (s *Session) load(ctx context.Context, chatID string) error {
	messages, err := s.deps.conversations.GetMessages(ctx, chatID)
	if err != nil {
		return err
	}
	for i := range messages {
		messages[i].Persisted = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatID = chatID
	s.messages = messages
	return nil
}

// Snapshot copies the current session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := StateEmpty
	if s.chatID != "" {
		state = StateActive
	}
	messages := make([]chat.Message, len(s.messages))
	copy(messages, s.messages)

	return Snapshot{
		ID:                s.id,
		ChatID:            s.chatID,
		State:             state,
		PendingCompletion: s.pending,
		Messages:          messages,
	}
}

// Submit sends text as the next user turn and waits for the reply.
//
// The first submission on an Empty session creates the chat, titled from text.
// A failed chat creation leaves the session Empty with nothing appended. Once
// the chat exists the user message stays visible even if persisting it fails;
// a failed completion returns the completer's error with the user message kept
// and no bot message added.
func (s *Session) Submit(ctx context.Context, text string) (chat.Message, error) {
	if strings.TrimSpace(text) == "" {
		return chat.Message{}, invalid("text", "message must not be empty")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return chat.Message{}, ErrSessionClosed
	}
	if s.pending {
		s.mu.Unlock()
		return chat.Message{}, ErrCompletionPending
	}
	s.pending = true
	gen := s.generation
	chatID := s.chatID
	s.mu.Unlock()

	if chatID == "" {
		created, err := s.createChat(ctx, gen, text)
		if err != nil {
			s.release(gen)
			return chat.Message{}, err
		}
		chatID = created
	}

	// Writes outlive a caller that hangs up after the reply.
	persistCtx := context.WithoutCancel(ctx)

	userMsg, ok := s.append(gen, chatID, text, chat.RoleUser)
	if !ok {
		return chat.Message{}, ErrSessionClosed
	}
	s.persist(persistCtx, gen, userMsg)

	reply, err := s.deps.completer.Complete(ctx, text+ResponseLanguageSuffix)
	if !s.current(gen) {
		log.Printf("[session] session=%s closed while completing, discarding reply", s.id)
		return chat.Message{}, ErrSessionClosed
	}
	if err != nil {
		s.release(gen)
		return chat.Message{}, err
	}

	botMsg, ok := s.append(gen, chatID, reply, chat.RoleBot)
	if !ok {
		return chat.Message{}, ErrSessionClosed
	}
	s.persist(persistCtx, gen, botMsg)
	s.release(gen)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range s.messages {
		if msg.ID == botMsg.ID {
			return msg, nil
		}
	}
	return botMsg, nil
}

// Close discards the session. A completion still in flight has no effect when
// it returns.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.pending = false
	s.generation++
}

func (s *Session) createChat(ctx context.Context, gen uint64, text string) (string, error) {
	var userID *string
	if s.email != "" {
		id, err := s.deps.resolver.Resolve(ctx, s.email)
		if err != nil {
			log.Printf("[session] session=%s resolve owner failed: %v", s.id, err)
			return "", fmt.Errorf("resolve chat owner: %w", err)
		}
		userID = &id
	}

	chatID, err := s.deps.conversations.CreateChat(ctx, userID, chat.TitleFromText(text))
	if err != nil {
		log.Printf("[session] session=%s create chat failed: %v", s.id, err)
		return "", err
	}

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		log.Printf("[session] session=%s closed before chat=%s was bound", s.id, chatID)
		return "", ErrSessionClosed
	}
	s.chatID = chatID
	s.mu.Unlock()

	log.Printf("[session] session=%s created chat=%s", s.id, chatID)
	s.deps.notifier.Publish(Event{Kind: EventChatCreated, ChatID: chatID, Email: s.email})
	return chatID, nil
}

func (s *Session) append(gen uint64, chatID, content string, role chat.Role) (chat.Message, bool) {
	msg := chat.Message{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Content:   content,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return chat.Message{}, false
	}
	s.messages = append(s.messages, msg)
	return msg, true
}

// persist writes msg to the store. Failures are logged and leave the message
// visible but unpersisted.
func (s *Session) persist(ctx context.Context, gen uint64, msg chat.Message) {
	if err := s.deps.conversations.AddMessage(ctx, msg.ChatID, msg.Content, msg.Role); err != nil {
		log.Printf("[session] session=%s persist %s message failed: %v", s.id, msg.Role, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return
	}
	for i := range s.messages {
		if s.messages[i].ID == msg.ID {
			s.messages[i].Persisted = true
			return
		}
	}
}

func (s *Session) release(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation == gen {
		s.pending = false
	}
}

func (s *Session) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation == gen
}
