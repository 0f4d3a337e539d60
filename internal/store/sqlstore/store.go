// Package sqlstore persists chats and messages in a relational database through
// gorm. Postgres is the production backend; sqlite serves local runs and tests.
package sqlstore

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/zhouzirui/pac-chat/backend/internal/model/chat"
	"github.com/zhouzirui/pac-chat/backend/internal/store"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	defaultSQLiteDSN = "file::memory:"
)

// Config selects the database backend.
type Config struct {
	Driver string
	DSN    string
	// SlowThreshold is the query duration above which gorm logs a warning.
	SlowThreshold time.Duration
}

// Store implements store.Store on top of gorm.
type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

// Open connects to the configured database. Call Migrate before first use.
func Open(cfg Config) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverPostgres:
		if cfg.DSN == "" {
			return nil, errors.New("sqlstore: postgres requires a DSN")
		}
		dialector = postgres.Open(cfg.DSN)
	case DriverSQLite, "":
		dialector = sqlite.Open(sqliteDSN(cfg.DSN))
	default:
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", cfg.Driver)
	}

	slow := cfg.SlowThreshold
	if slow <= 0 {
		slow = 200 * time.Millisecond
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.New(log.New(os.Stdout, "[sqlstore] ", log.LstdFlags), logger.Config{
			SlowThreshold:             slow,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", cfg.Driver, err)
	}

	if cfg.Driver != DriverPostgres {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("sqlstore: access sqlite pool: %w", err)
		}
		// One connection keeps an in-memory database alive and serialises writers.
		sqlDB.SetMaxOpenConns(1)
		if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			return nil, fmt.Errorf("sqlstore: enable foreign keys: %w", err)
		}
	}

	return &Store{db: db}, nil
}

// New wraps an existing gorm handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the users, chats and messages tables.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&userRow{}, &chatRow{}, &messageRow{}); err != nil {
		return fmt.Errorf("sqlstore: migrate: %w", err)
	}
	log.Println("[sqlstore] schema migrated")
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (chat.User, error) {
	const op = "findUserByEmail"

	var row userRow
	if err := s.db.WithContext(ctx).Where("email = ?", email).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return chat.User{}, store.NotFound(op, "user")
		}
		return chat.User{}, classify(op, err)
	}
	return row.toModel(), nil
}

func (s *Store) CreateUser(ctx context.Context, email string) (chat.User, error) {
	const op = "createUser"

	row := userRow{ID: newID(), Email: email}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "email"}}, DoNothing: true}).
		Create(&row)
	if res.Error != nil {
		return chat.User{}, classify(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return chat.User{}, &store.Error{Op: op, Message: "email already registered", Err: store.ErrConflict}
	}
	return row.toModel(), nil
}

func (s *Store) CreateChat(ctx context.Context, userID *string, title string) (string, error) {
	row := chatRow{
		ID:        newID(),
		UserID:    userID,
		Title:     title,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&row).Error; err != nil {
		return "", classify("createChat", err)
	}
	return row.ID, nil
}

func (s *Store) GetChat(ctx context.Context, chatID string) (chat.Chat, error) {
	const op = "getChat"

	var row chatRow
	if err := s.db.WithContext(ctx).Where("id = ?", chatID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return chat.Chat{}, store.NotFound(op, "chat")
		}
		return chat.Chat{}, classify(op, err)
	}
	return row.toModel(), nil
}

func (s *Store) ListChats(ctx context.Context, userID string) ([]chat.Chat, error) {
	var rows []chatRow
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, classify("listChats", err)
	}
	return toChats(rows), nil
}

func (s *Store) SearchChats(ctx context.Context, userID, substring string) ([]chat.Chat, error) {
	pattern := "%" + escapeLike(strings.ToLower(substring)) + "%"

	var rows []chatRow
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND LOWER(title) LIKE ? ESCAPE '\\'", userID, pattern).
		Order("created_at DESC").Order("id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, classify("searchChats", err)
	}
	return toChats(rows), nil
}

func (s *Store) GetMessages(ctx context.Context, chatID string) ([]chat.Message, error) {
	var rows []messageRow
	err := s.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at ASC").Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, classify("getMessages", err)
	}

	messages := make([]chat.Message, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, row.toModel())
	}
	return messages, nil
}

func (s *Store) AddMessage(ctx context.Context, chatID, content string, role chat.Role) error {
	if !role.Valid() {
		return store.InvalidRole("addMessage", string(role))
	}

	row := messageRow{
		ID:        newID(),
		ChatID:    chatID,
		Content:   content,
		Role:      string(role),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&row).Error; err != nil {
		return classify("addMessage", err)
	}
	return nil
}

func (s *Store) RenameChat(ctx context.Context, chatID, title string) error {
	const op = "renameChat"

	res := s.db.WithContext(ctx).Model(&chatRow{}).Where("id = ?", chatID).Update("title", title)
	if res.Error != nil {
		return classify(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return store.NotFound(op, "chat")
	}
	return nil
}

// DeleteChat relies on the messages.chat_id foreign key to cascade.
func (s *Store) DeleteChat(ctx context.Context, chatID string) error {
	const op = "deleteChat"

	res := s.db.WithContext(ctx).Where("id = ?", chatID).Delete(&chatRow{})
	if res.Error != nil {
		return classify(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return store.NotFound(op, "chat")
	}
	return nil
}

func toChats(rows []chatRow) []chat.Chat {
	chats := make([]chat.Chat, 0, len(rows))
	for _, row := range rows {
		chats = append(chats, row.toModel())
	}
	return chats
}

func classify(op string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, driver.ErrBadConn) {
		return store.Unavailable(op, err)
	}
	return store.Wrap(op, err)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func sqliteDSN(dsn string) string {
	if dsn == "" {
		dsn = defaultSQLiteDSN
	}
	if strings.Contains(dsn, "foreign_keys") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)"
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
