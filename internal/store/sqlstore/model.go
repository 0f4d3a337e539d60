package sqlstore

import (
	"time"

	"github.com/zhouzirui/pac-chat/backend/internal/model/chat"
)

type userRow struct {
	ID    string `gorm:"primaryKey;type:varchar(36)"`
	Email string `gorm:"type:varchar(320);uniqueIndex;not null"`
}

func (userRow) TableName() string { return "users" }

type chatRow struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)"`
	UserID    *string   `gorm:"type:varchar(36);index:idx_chats_user_created,priority:1"`
	User      *userRow  `gorm:"foreignKey:UserID;constraint:OnDelete:SET NULL"`
	Title     string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null;index:idx_chats_user_created,priority:2"`
}

func (chatRow) TableName() string { return "chats" }

type messageRow struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)"`
	ChatID    string    `gorm:"type:varchar(36);not null;index:idx_messages_chat_created,priority:1"`
	Chat      *chatRow  `gorm:"foreignKey:ChatID;constraint:OnDelete:CASCADE"`
	Content   string    `gorm:"type:text;not null"`
	Role      string    `gorm:"type:varchar(16);not null"`
	CreatedAt time.Time `gorm:"not null;index:idx_messages_chat_created,priority:2"`
}

func (messageRow) TableName() string { return "messages" }

func (r userRow) toModel() chat.User {
	return chat.User{ID: r.ID, Email: r.Email}
}

func (r chatRow) toModel() chat.Chat {
	return chat.Chat{
		ID:        r.ID,
		UserID:    r.UserID,
		Title:     r.Title,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

func (r messageRow) toModel() chat.Message {
	role := chat.RoleUser
	if r.Role == string(chat.RoleBot) {
		role = chat.RoleBot
	}
	return chat.Message{
		ID:        r.ID,
		ChatID:    r.ChatID,
		Content:   r.Content,
		Role:      role,
		CreatedAt: r.CreatedAt.UTC(),
		Persisted: true,
	}
}
