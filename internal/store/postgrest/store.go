// Package postgrest talks to a hosted PostgREST endpoint (for example a Supabase
// project) over HTTPS. The server owns the schema: a unique index on
// users.email and an ON DELETE CASCADE foreign key from messages to chats.
package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/pac-chat/backend/internal/model/chat"
	"github.com/zhouzirui/pac-chat/backend/internal/store"
)

const (
	defaultTimeout  = 30 * time.Second
	maxErrorBodyLen = 4 << 10

	tableUsers    = "users"
	tableChats    = "chats"
	tableMessages = "messages"
)

// Config describes the remote endpoint.
type Config struct {
	// BaseURL is the project URL, e.g. https://xyz.supabase.co.
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Store implements store.Store against the PostgREST REST dialect.
type Store struct {
	restURL    string
	apiKey     string
	httpClient *http.Client
}

var _ store.Store = (*Store)(nil)

// New builds a Store. httpClient may be nil.
func New(cfg Config, httpClient *http.Client) (*Store, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("postgrest: base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("postgrest: invalid base URL: %w", err)
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Store{
		restURL:    base + "/rest/v1",
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
	}, nil
}

type userRecord struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type chatRecord struct {
	ID        string    `json:"id"`
	UserID    *string   `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

type messageRecord struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	Content   string    `json:"content"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// apiError is the PostgREST error envelope.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (chat.User, error) {
	const op = "findUserByEmail"

	q := url.Values{}
	q.Set("select", "id,email")
	q.Set("email", "eq."+email)
	q.Set("limit", "1")

	var users []userRecord
	if err := s.do(ctx, op, http.MethodGet, tableUsers, q, nil, "", &users); err != nil {
		return chat.User{}, err
	}
	if len(users) == 0 {
		return chat.User{}, store.NotFound(op, "user")
	}
	return chat.User{ID: users[0].ID, Email: users[0].Email}, nil
}

func (s *Store) CreateUser(ctx context.Context, email string) (chat.User, error) {
	const op = "createUser"

	q := url.Values{}
	q.Set("select", "id,email")

	var users []userRecord
	body := map[string]string{"email": email}
	if err := s.do(ctx, op, http.MethodPost, tableUsers, q, body, "return=representation", &users); err != nil {
		return chat.User{}, err
	}
	if len(users) == 0 {
		return chat.User{}, &store.Error{Op: op, Message: "insert returned no row"}
	}
	return chat.User{ID: users[0].ID, Email: users[0].Email}, nil
}

func (s *Store) CreateChat(ctx context.Context, userID *string, title string) (string, error) {
	const op = "createChat"

	q := url.Values{}
	q.Set("select", "id")

	body := struct {
		UserID *string `json:"user_id"`
		Title  string  `json:"title"`
	}{UserID: userID, Title: title}

	var chats []chatRecord
	if err := s.do(ctx, op, http.MethodPost, tableChats, q, body, "return=representation", &chats); err != nil {
		return "", err
	}
	if len(chats) == 0 || chats[0].ID == "" {
		return "", &store.Error{Op: op, Message: "insert returned no row"}
	}
	return chats[0].ID, nil
}

// GetChat reports ids that are not UUIDs as missing, since chats.id is uuid typed.
func (s *Store) GetChat(ctx context.Context, chatID string) (chat.Chat, error) {
	const op = "getChat"
	if _, err := uuid.Parse(chatID); err != nil {
		return chat.Chat{}, store.NotFound(op, "chat")
	}

	q := url.Values{}
	q.Set("select", "*")
	q.Set("id", "eq."+chatID)
	q.Set("limit", "1")

	chats, err := s.selectChats(ctx, op, q)
	if err != nil {
		return chat.Chat{}, err
	}
	if len(chats) == 0 {
		return chat.Chat{}, store.NotFound(op, "chat")
	}
	return chats[0], nil
}

func (s *Store) ListChats(ctx context.Context, userID string) ([]chat.Chat, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("user_id", "eq."+userID)
	q.Set("order", "created_at.desc,id.desc")
	return s.selectChats(ctx, "listChats", q)
}

// SearchChats uses ilike; '*' is the PostgREST wildcard, so literal '%' and '_'
// are escaped for Postgres.
func (s *Store) SearchChats(ctx context.Context, userID, substring string) ([]chat.Chat, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("user_id", "eq."+userID)
	q.Set("title", "ilike.*"+escapeLike(substring)+"*")
	q.Set("order", "created_at.desc,id.desc")
	return s.selectChats(ctx, "searchChats", q)
}

func (s *Store) selectChats(ctx context.Context, op string, q url.Values) ([]chat.Chat, error) {
	var records []chatRecord
	if err := s.do(ctx, op, http.MethodGet, tableChats, q, nil, "", &records); err != nil {
		return nil, err
	}

	chats := make([]chat.Chat, 0, len(records))
	for _, r := range records {
		chats = append(chats, chat.Chat{
			ID:        r.ID,
			UserID:    r.UserID,
			Title:     r.Title,
			CreatedAt: r.CreatedAt.UTC(),
		})
	}
	return chats, nil
}

func (s *Store) GetMessages(ctx context.Context, chatID string) ([]chat.Message, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("chat_id", "eq."+chatID)
	q.Set("order", "created_at.asc,id.asc")

	var records []messageRecord
	if err := s.do(ctx, "getMessages", http.MethodGet, tableMessages, q, nil, "", &records); err != nil {
		return nil, err
	}

	messages := make([]chat.Message, 0, len(records))
	for _, r := range records {
		role := chat.RoleUser
		if r.Role == string(chat.RoleBot) {
			role = chat.RoleBot
		}
		messages = append(messages, chat.Message{
			ID:        r.ID,
			ChatID:    r.ChatID,
			Content:   r.Content,
			Role:      role,
			CreatedAt: r.CreatedAt.UTC(),
			Persisted: true,
		})
	}
	return messages, nil
}

func (s *Store) AddMessage(ctx context.Context, chatID, content string, role chat.Role) error {
	if !role.Valid() {
		return store.InvalidRole("addMessage", string(role))
	}

	body := map[string]string{
		"chat_id": chatID,
		"content": content,
		"role":    string(role),
	}
	return s.do(ctx, "addMessage", http.MethodPost, tableMessages, nil, body, "return=minimal", nil)
}

func (s *Store) RenameChat(ctx context.Context, chatID, title string) error {
	const op = "renameChat"

	q := url.Values{}
	q.Set("id", "eq."+chatID)
	q.Set("select", "id")

	var updated []chatRecord
	if err := s.do(ctx, op, http.MethodPatch, tableChats, q, map[string]string{"title": title}, "return=representation", &updated); err != nil {
		return err
	}
	if len(updated) == 0 {
		return store.NotFound(op, "chat")
	}
	return nil
}

func (s *Store) DeleteChat(ctx context.Context, chatID string) error {
	const op = "deleteChat"

	q := url.Values{}
	q.Set("id", "eq."+chatID)
	q.Set("select", "id")

	var deleted []chatRecord
	if err := s.do(ctx, op, http.MethodDelete, tableChats, q, nil, "return=representation", &deleted); err != nil {
		return err
	}
	if len(deleted) == 0 {
		return store.NotFound(op, "chat")
	}
	return nil
}

// do performs one request against /rest/v1/{table}. out may be nil.
func (s *Store) do(ctx context.Context, op, method, table string, query url.Values, body any, prefer string, out any) error {
	endpoint := s.restURL + "/" + table
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return store.Wrap(op, fmt.Errorf("encode request: %w", err))
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return store.Wrap(op, err)
	}
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		log.Printf("[postgrest] %s %s transport error: %v", method, table, err)
		return store.Unavailable(op, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			log.Printf("[postgrest] close body: %v", cerr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return s.responseError(op, resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return store.Wrap(op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (s *Store) responseError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))

	var apiErr apiError
	message := strings.TrimSpace(string(raw))
	if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.Message != "" {
		message = apiErr.Message
	}
	if message == "" {
		message = resp.Status
	}
	log.Printf("[postgrest] %s failed: status=%d code=%s message=%s", op, resp.StatusCode, apiErr.Code, message)

	switch {
	case resp.StatusCode == http.StatusConflict || apiErr.Code == "23505":
		return &store.Error{Op: op, Message: message, Err: store.ErrConflict}
	case resp.StatusCode == http.StatusNotFound:
		return &store.Error{Op: op, Message: message, Err: store.ErrNotFound}
	case resp.StatusCode == http.StatusBadGateway,
		resp.StatusCode == http.StatusServiceUnavailable,
		resp.StatusCode == http.StatusGatewayTimeout:
		return &store.Error{Op: op, Message: message, Err: store.ErrRemoteUnavailable}
	default:
		return &store.Error{Op: op, Message: fmt.Sprintf("status %d: %s", resp.StatusCode, message)}
	}
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
