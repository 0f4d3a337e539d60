package chat_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	chat "github.com/zhouzirui/pac-chat/backend/internal/service/chat"
)

func TestNotifierFanOut(t *testing.T) {
	n := chat.NewNotifier()
	first, cancelFirst := n.Subscribe()
	second, cancelSecond := n.Subscribe()
	defer cancelSecond()

	n.Publish(chat.Event{Kind: chat.EventChatCreated, ChatID: "c1"})
	require.Equal(t, "c1", waitEvent(t, first).ChatID)
	require.Equal(t, "c1", waitEvent(t, second).ChatID)

	cancelFirst()
	cancelFirst()
	_, open := <-first
	require.False(t, open)

	n.Publish(chat.Event{Kind: chat.EventChatDeleted, ChatID: "c2"})
	require.Equal(t, chat.EventChatDeleted, waitEvent(t, second).Kind)
}

func TestNotifierDropsWhenSubscriberLags(t *testing.T) {
	n := chat.NewNotifier()
	events, cancel := n.Subscribe()
	defer cancel()

	for range 100 {
		n.Publish(chat.Event{Kind: chat.EventChatRenamed, ChatID: "c1"})
	}
	require.Equal(t, 16, len(events))
}
