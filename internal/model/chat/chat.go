package chat

import (
	"strings"
	"time"
	"unicode/utf8"
)

// MaxTitleRunes caps titles derived from the first user message.
const MaxTitleRunes = 80

// User is the persisted owner record resolved from an external account email.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Chat is a titled conversation. UserID is nil for chats created without an owner.
type Chat struct {
	ID        string    `json:"id"`
	UserID    *string   `json:"userId,omitempty"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

// TitleFromText derives a chat title from the first message of a conversation:
// whitespace is collapsed and the result is cut to MaxTitleRunes.
func TitleFromText(text string) string {
	title := strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(title) <= MaxTitleRunes {
		return title
	}
	runes := []rune(title)
	return strings.TrimSpace(string(runes[:MaxTitleRunes-1])) + "…"
}
