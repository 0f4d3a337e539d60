// Package storetest holds behaviour checks shared by every store.Store
// implementation.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/pac-chat/backend/internal/model/chat"
	"github.com/zhouzirui/pac-chat/backend/internal/store"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) store.Store

// Run exercises the store contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateUserConflict", func(t *testing.T) { testCreateUserConflict(t, newStore(t)) })
	t.Run("FindUserMissing", func(t *testing.T) { testFindUserMissing(t, newStore(t)) })
	t.Run("GetChat", func(t *testing.T) { testGetChat(t, newStore(t)) })
	t.Run("AddMessageUnknownRole", func(t *testing.T) { testAddMessageUnknownRole(t, newStore(t)) })
	t.Run("ListChatsNewestFirst", func(t *testing.T) { testListChatsNewestFirst(t, newStore(t)) })
	t.Run("SearchChatsCaseInsensitive", func(t *testing.T) { testSearchChats(t, newStore(t)) })
	t.Run("SearchChatsLiteralWildcards", func(t *testing.T) { testSearchChatsLiteralWildcards(t, newStore(t)) })
	t.Run("MessagesOldestFirst", func(t *testing.T) { testMessagesOldestFirst(t, newStore(t)) })
	t.Run("RenameChat", func(t *testing.T) { testRenameChat(t, newStore(t)) })
	t.Run("DeleteChatCascades", func(t *testing.T) { testDeleteChatCascades(t, newStore(t)) })
	t.Run("AnonymousChat", func(t *testing.T) { testAnonymousChat(t, newStore(t)) })
}

func newUser(t *testing.T, s store.Store, email string) string {
	t.Helper()
	user, err := s.CreateUser(context.Background(), email)
	require.NoError(t, err)
	require.NotEmpty(t, user.ID)
	return user.ID
}

func newChat(t *testing.T, s store.Store, userID, title string) string {
	t.Helper()
	id, err := s.CreateChat(context.Background(), &userID, title)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	return id
}

func testCreateUserConflict(t *testing.T, s store.Store) {
	ctx := context.Background()
	id := newUser(t, s, "ana@example.com")

	_, err := s.CreateUser(ctx, "ana@example.com")
	require.ErrorIs(t, err, store.ErrConflict)
	var se *store.Error
	require.ErrorAs(t, err, &se)

	found, err := s.FindUserByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	require.Equal(t, id, found.ID)
	require.Equal(t, "ana@example.com", found.Email)
}

func testFindUserMissing(t *testing.T, s store.Store) {
	_, err := s.FindUserByEmail(context.Background(), "nobody@example.com")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testListChatsNewestFirst(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := newUser(t, s, "owner@example.com")
	other := newUser(t, s, "other@example.com")

	first := newChat(t, s, owner, "first")
	second := newChat(t, s, owner, "second")
	third := newChat(t, s, owner, "third")
	newChat(t, s, other, "not mine")

	chats, err := s.ListChats(ctx, owner)
	require.NoError(t, err)
	require.Len(t, chats, 3)
	require.Equal(t, []string{third, second, first}, chatIDs(chats))
	for _, c := range chats {
		require.NotNil(t, c.UserID)
		require.Equal(t, owner, *c.UserID)
		require.False(t, c.CreatedAt.IsZero())
	}
}

func testGetChat(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := newUser(t, s, "get@example.com")
	chatID := newChat(t, s, owner, "Recetas")

	c, err := s.GetChat(ctx, chatID)
	require.NoError(t, err)
	require.Equal(t, chatID, c.ID)
	require.Equal(t, "Recetas", c.Title)
	require.NotNil(t, c.UserID)
	require.Equal(t, owner, *c.UserID)

	_, err = s.GetChat(ctx, "00000000-0000-0000-0000-000000000000")
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetChat(ctx, "no-such-chat")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.DeleteChat(ctx, chatID))
	_, err = s.GetChat(ctx, chatID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testAddMessageUnknownRole(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := newUser(t, s, "role@example.com")
	chatID := newChat(t, s, owner, "roles")

	err := s.AddMessage(ctx, chatID, "hi", chat.Role("system"))
	var se *store.Error
	require.ErrorAs(t, err, &se)
	require.Equal(t, "addMessage", se.Op)

	messages, err := s.GetMessages(ctx, chatID)
	require.NoError(t, err)
	require.Empty(t, messages)
}

func testSearchChats(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := newUser(t, s, "search@example.com")

	a := newChat(t, s, owner, "Foo fighters")
	newChat(t, s, owner, "bar")
	c := newChat(t, s, owner, "a BIG fOo")

	chats, err := s.SearchChats(ctx, owner, "foo")
	require.NoError(t, err)
	require.Equal(t, []string{c, a}, chatIDs(chats))
}

func testSearchChatsLiteralWildcards(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := newUser(t, s, "wild@example.com")

	percent := newChat(t, s, owner, "100% done")
	newChat(t, s, owner, "100 done")

	chats, err := s.SearchChats(ctx, owner, "0%")
	require.NoError(t, err)
	require.Equal(t, []string{percent}, chatIDs(chats))
}

func testMessagesOldestFirst(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := newUser(t, s, "msgs@example.com")
	chatID := newChat(t, s, owner, "hello")

	require.NoError(t, s.AddMessage(ctx, chatID, "one", chat.RoleUser))
	require.NoError(t, s.AddMessage(ctx, chatID, "two", chat.RoleBot))
	require.NoError(t, s.AddMessage(ctx, chatID, "three", chat.RoleUser))

	messages, err := s.GetMessages(ctx, chatID)
	require.NoError(t, err)
	require.Len(t, messages, 3)

	contents := make([]string, 0, len(messages))
	for i, m := range messages {
		contents = append(contents, m.Content)
		require.Equal(t, chatID, m.ChatID)
		require.True(t, m.Persisted)
		if i > 0 {
			require.False(t, m.CreatedAt.Before(messages[i-1].CreatedAt), "created_at must not decrease")
		}
	}
	require.Equal(t, []string{"one", "two", "three"}, contents)
	require.Equal(t, chat.RoleBot, messages[1].Role)
}

func testRenameChat(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := newUser(t, s, "rename@example.com")
	chatID := newChat(t, s, owner, "Old")

	require.NoError(t, s.RenameChat(ctx, chatID, "New Title"))

	chats, err := s.ListChats(ctx, owner)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	require.Equal(t, "New Title", chats[0].Title)

	require.ErrorIs(t, s.RenameChat(ctx, "00000000-0000-0000-0000-000000000000", "x"), store.ErrNotFound)
}

func testDeleteChatCascades(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := newUser(t, s, "delete@example.com")
	doomed := newChat(t, s, owner, "doomed")
	kept := newChat(t, s, owner, "kept")

	require.NoError(t, s.AddMessage(ctx, doomed, "bye", chat.RoleUser))
	require.NoError(t, s.AddMessage(ctx, doomed, "adiós", chat.RoleBot))
	require.NoError(t, s.AddMessage(ctx, kept, "stay", chat.RoleUser))

	require.NoError(t, s.DeleteChat(ctx, doomed))

	messages, err := s.GetMessages(ctx, doomed)
	require.NoError(t, err)
	require.Empty(t, messages)

	messages, err = s.GetMessages(ctx, kept)
	require.NoError(t, err)
	require.Len(t, messages, 1)

	chats, err := s.ListChats(ctx, owner)
	require.NoError(t, err)
	require.Equal(t, []string{kept}, chatIDs(chats))

	require.ErrorIs(t, s.DeleteChat(ctx, doomed), store.ErrNotFound)
}

func testAnonymousChat(t *testing.T, s store.Store) {
	ctx := context.Background()
	chatID, err := s.CreateChat(ctx, nil, "anonymous")
	require.NoError(t, err)
	require.NoError(t, s.AddMessage(ctx, chatID, "hi", chat.RoleUser))

	messages, err := s.GetMessages(ctx, chatID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
}

func chatIDs(chats []chat.Chat) []string {
	ids := make([]string, 0, len(chats))
	for _, c := range chats {
		ids = append(ids, c.ID)
	}
	return ids
}
