package chat_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	model "github.com/zhouzirui/pac-chat/backend/internal/model/chat"
	"github.com/zhouzirui/pac-chat/backend/internal/service/ai"
	chat "github.com/zhouzirui/pac-chat/backend/internal/service/chat"
	"github.com/zhouzirui/pac-chat/backend/internal/service/identity"
	"github.com/zhouzirui/pac-chat/backend/internal/store"
	"github.com/zhouzirui/pac-chat/backend/internal/store/memory"
)

const email = "ana@example.com"

type stubCompleter struct {
	mu      sync.Mutex
	prompts []string
	reply   string
	err     error
	started chan struct{}
	gate    chan struct{}
}

func (c *stubCompleter) Complete(_ context.Context, prompt string) (string, error) {
	c.mu.Lock()
	c.prompts = append(c.prompts, prompt)
	c.mu.Unlock()

	if c.started != nil {
		c.started <- struct{}{}
	}
	if c.gate != nil {
		<-c.gate
	}
	return c.reply, c.err
}

func (c *stubCompleter) calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.prompts...)
}

func blockingCompleter(reply string) *stubCompleter {
	return &stubCompleter{
		reply:   reply,
		started: make(chan struct{}, 1),
		gate:    make(chan struct{}),
	}
}

type faultyStore struct {
	*memory.Store
	createErr error
	addErr    error
}

func (f *faultyStore) CreateChat(ctx context.Context, userID *string, title string) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	return f.Store.CreateChat(ctx, userID, title)
}

func (f *faultyStore) AddMessage(ctx context.Context, chatID, content string, role model.Role) error {
	if f.addErr != nil {
		return f.addErr
	}
	return f.Store.AddMessage(ctx, chatID, content, role)
}

func newManager(t *testing.T, conversations store.Store, completer chat.Completer) *chat.Manager {
	t.Helper()
	mgr, err := chat.NewManager(conversations, identity.NewResolver(conversations), completer, chat.NewNotifier())
	require.NoError(t, err)
	return mgr
}

func waitEvent(t *testing.T, events <-chan chat.Event) chat.Event {
	t.Helper()
	select {
	case e := <-events:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for chat event")
		return chat.Event{}
	}
}

func TestSubmitFirstMessageCreatesChat(t *testing.T) {
	ctx := context.Background()
	db := memory.New()
	completer := &stubCompleter{reply: "Hola"}
	mgr := newManager(t, db, completer)
	events, cancel := mgr.Notifier().Subscribe()
	defer cancel()

	session, err := mgr.Open(ctx, email, "")
	require.NoError(t, err)
	require.Equal(t, chat.StateEmpty, session.Snapshot().State)

	reply, err := session.Submit(ctx, "Hello")
	require.NoError(t, err)
	require.Equal(t, "Hola", reply.Content)
	require.Equal(t, model.RoleBot, reply.Role)
	require.True(t, reply.Persisted)

	require.Equal(t, []string{"Hello Give the response in Spanish."}, completer.calls())

	snap := session.Snapshot()
	require.Equal(t, chat.StateActive, snap.State)
	require.False(t, snap.PendingCompletion)
	require.Len(t, snap.Messages, 2)
	require.Equal(t, model.RoleUser, snap.Messages[0].Role)
	require.Equal(t, "Hello", snap.Messages[0].Content)
	require.Equal(t, "Hola", snap.Messages[1].Content)
	for _, msg := range snap.Messages {
		require.True(t, msg.Persisted)
		require.Equal(t, snap.ChatID, msg.ChatID)
	}

	chats, err := mgr.ListChats(ctx, email)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	require.Equal(t, snap.ChatID, chats[0].ID)
	require.Equal(t, "Hello", chats[0].Title)

	stored, err := db.GetMessages(ctx, snap.ChatID)
	require.NoError(t, err)
	require.Len(t, stored, 2)

	e := waitEvent(t, events)
	require.Equal(t, chat.EventChatCreated, e.Kind)
	require.Equal(t, snap.ChatID, e.ChatID)
	require.Equal(t, email, e.Email)
}

func TestSubmitCompletionFailureKeepsUserMessage(t *testing.T) {
	ctx := context.Background()
	db := memory.New()
	mgr := newManager(t, db, &stubCompleter{err: &ai.CompletionError{Cause: errors.New("status 500")}})

	session, err := mgr.Open(ctx, email, "")
	require.NoError(t, err)

	_, err = session.Submit(ctx, "Hello")
	var completionErr *ai.CompletionError
	require.ErrorAs(t, err, &completionErr)

	snap := session.Snapshot()
	require.False(t, snap.PendingCompletion)
	require.Equal(t, chat.StateActive, snap.State)
	require.Len(t, snap.Messages, 1)
	require.Equal(t, model.RoleUser, snap.Messages[0].Role)

	stored, err := db.GetMessages(ctx, snap.ChatID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
}

func TestSubmitWhilePendingIsRejected(t *testing.T) {
	ctx := context.Background()
	completer := blockingCompleter("Hola")
	mgr := newManager(t, memory.New(), completer)

	session, err := mgr.Open(ctx, email, "")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := session.Submit(ctx, "Hello")
		done <- err
	}()
	<-completer.started

	_, err = session.Submit(ctx, "Otra pregunta")
	require.ErrorIs(t, err, chat.ErrCompletionPending)

	snap := session.Snapshot()
	require.True(t, snap.PendingCompletion)
	require.Len(t, snap.Messages, 1)

	close(completer.gate)
	require.NoError(t, <-done)
	require.Len(t, session.Snapshot().Messages, 2)
	require.Len(t, completer.calls(), 1)
}

func TestSubmitCreateChatFailureStaysEmpty(t *testing.T) {
	ctx := context.Background()
	db := &faultyStore{Store: memory.New(), createErr: store.Unavailable("create chat", errors.New("connection refused"))}
	completer := &stubCompleter{reply: "Hola"}
	mgr := newManager(t, db, completer)

	session, err := mgr.Open(ctx, email, "")
	require.NoError(t, err)

	_, err = session.Submit(ctx, "Hello")
	require.ErrorIs(t, err, store.ErrRemoteUnavailable)

	snap := session.Snapshot()
	require.Equal(t, chat.StateEmpty, snap.State)
	require.Empty(t, snap.ChatID)
	require.Empty(t, snap.Messages)
	require.False(t, snap.PendingCompletion)
	require.Empty(t, completer.calls())

	// The session stays usable once the store recovers.
	db.createErr = nil
	_, err = session.Submit(ctx, "Hello")
	require.NoError(t, err)
	require.Equal(t, chat.StateActive, session.Snapshot().State)
}

func TestSubmitPersistFailureKeepsMessagesVisible(t *testing.T) {
	ctx := context.Background()
	db := &faultyStore{Store: memory.New(), addErr: store.Unavailable("add message", errors.New("timeout"))}
	mgr := newManager(t, db, &stubCompleter{reply: "Hola"})

	session, err := mgr.Open(ctx, email, "")
	require.NoError(t, err)

	reply, err := session.Submit(ctx, "Hello")
	require.NoError(t, err)
	require.Equal(t, "Hola", reply.Content)
	require.False(t, reply.Persisted)

	snap := session.Snapshot()
	require.Len(t, snap.Messages, 2)
	for _, msg := range snap.Messages {
		require.False(t, msg.Persisted)
	}
	require.False(t, snap.PendingCompletion)
}

func TestCloseDiscardsLateReply(t *testing.T) {
	ctx := context.Background()
	db := memory.New()
	completer := blockingCompleter("Hola")
	mgr := newManager(t, db, completer)

	session, err := mgr.Open(ctx, email, "")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := session.Submit(ctx, "Hello")
		done <- err
	}()
	<-completer.started

	chatID := session.ChatID()
	require.NoError(t, mgr.Close(session.ID()))
	close(completer.gate)
	require.ErrorIs(t, <-done, chat.ErrSessionClosed)

	snap := session.Snapshot()
	require.Len(t, snap.Messages, 1)
	require.False(t, snap.PendingCompletion)

	stored, err := db.GetMessages(ctx, chatID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, model.RoleUser, stored[0].Role)

	_, err = session.Submit(ctx, "again")
	require.ErrorIs(t, err, chat.ErrSessionClosed)
}

func TestSubmitRejectsBlankText(t *testing.T) {
	completer := &stubCompleter{reply: "Hola"}
	mgr := newManager(t, memory.New(), completer)
	session, err := mgr.Open(context.Background(), email, "")
	require.NoError(t, err)

	_, err = session.Submit(context.Background(), "   ")
	var validation *chat.ValidationError
	require.ErrorAs(t, err, &validation)
	require.Equal(t, "text", validation.Field)
	require.Empty(t, session.Snapshot().Messages)
	require.Empty(t, completer.calls())
}

func TestAnonymousSessionCreatesUnownedChat(t *testing.T) {
	ctx := context.Background()
	db := memory.New()
	mgr := newManager(t, db, &stubCompleter{reply: "Hola"})

	session, err := mgr.Open(ctx, "", "")
	require.NoError(t, err)
	_, err = session.Submit(ctx, "Hello")
	require.NoError(t, err)

	stored, err := db.GetMessages(ctx, session.ChatID())
	require.NoError(t, err)
	require.Len(t, stored, 2)

	_, err = db.FindUserByEmail(ctx, "")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestOpenExistingChatLoadsHistory(t *testing.T) {
	ctx := context.Background()
	db := memory.New()
	mgr := newManager(t, db, &stubCompleter{reply: "Claro"})

	user, err := db.CreateUser(ctx, email)
	require.NoError(t, err)
	chatID, err := db.CreateChat(ctx, &user.ID, "Hello")
	require.NoError(t, err)
	require.NoError(t, db.AddMessage(ctx, chatID, "Hello", model.RoleUser))
	require.NoError(t, db.AddMessage(ctx, chatID, "Hola", model.RoleBot))

	session, err := mgr.Open(ctx, email, chatID)
	require.NoError(t, err)

	snap := session.Snapshot()
	require.Equal(t, chat.StateActive, snap.State)
	require.Equal(t, chatID, snap.ChatID)
	require.Len(t, snap.Messages, 2)
	require.True(t, snap.Messages[0].Persisted)

	_, err = session.Submit(ctx, "Y en inglés?")
	require.NoError(t, err)

	chats, err := mgr.ListChats(ctx, email)
	require.NoError(t, err)
	require.Len(t, chats, 1)

	stored, err := db.GetMessages(ctx, chatID)
	require.NoError(t, err)
	require.Len(t, stored, 4)
}

type hangUpCompleter struct {
	cancel context.CancelFunc
}

func (c hangUpCompleter) Complete(context.Context, string) (string, error) {
	c.cancel()
	return "Hola", nil
}

type ctxCheckingStore struct {
	*memory.Store
}

func (s ctxCheckingStore) AddMessage(ctx context.Context, chatID, content string, role model.Role) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Store.AddMessage(ctx, chatID, content, role)
}

func TestSubmitPersistsReplyAfterCallerHangsUp(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	db := ctxCheckingStore{Store: memory.New()}
	mgr := newManager(t, db, hangUpCompleter{cancel: cancel})

	session, err := mgr.Open(ctx, email, "")
	require.NoError(t, err)

	reply, err := session.Submit(ctx, "Hello")
	require.NoError(t, err)
	require.True(t, reply.Persisted)

	stored, err := db.GetMessages(context.Background(), session.ChatID())
	require.NoError(t, err)
	require.Len(t, stored, 2)
	require.Equal(t, "Hola", stored[1].Content)
}
