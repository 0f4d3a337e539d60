// Package store defines the conversation persistence contract shared by the
// identity resolver and the chat service. Implementations are thin pass-throughs
// to a backing database: nothing is cached and nothing is retried.
package store

import (
	"context"

	"github.com/zhouzirui/pac-chat/backend/internal/model/chat"
)

// Users persists the owner records behind chats.
type Users interface {
	// FindUserByEmail returns ErrNotFound when no user has that email.
	FindUserByEmail(ctx context.Context, email string) (chat.User, error)
	// CreateUser returns ErrConflict when the email is already taken.
	CreateUser(ctx context.Context, email string) (chat.User, error)
}

// Conversations persists chats and their messages.
type Conversations interface {
	CreateChat(ctx context.Context, userID *string, title string) (string, error)
	// GetChat returns ErrNotFound when no chat has that id.
	GetChat(ctx context.Context, chatID string) (chat.Chat, error)
	// ListChats returns the user's chats, newest first.
	ListChats(ctx context.Context, userID string) ([]chat.Chat, error)
	// SearchChats matches substring case-insensitively against titles, newest first.
	SearchChats(ctx context.Context, userID, substring string) ([]chat.Chat, error)
	// GetMessages returns the chat's messages, oldest first.
	GetMessages(ctx context.Context, chatID string) ([]chat.Message, error)
	// AddMessage rejects roles other than chat.RoleUser and chat.RoleBot.
	AddMessage(ctx context.Context, chatID, content string, role chat.Role) error
	RenameChat(ctx context.Context, chatID, title string) error
	// DeleteChat removes the chat and, by cascade, all of its messages.
	DeleteChat(ctx context.Context, chatID string) error
}

// Store is the full remote CRUD surface.
type Store interface {
	Users
	Conversations
}
