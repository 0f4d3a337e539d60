package chat

import (
	"log"
	"sync"
)

// EventKind names a change to a user's chat list.
type EventKind string

const (
	EventChatCreated EventKind = "chat.created"
	EventChatRenamed EventKind = "chat.renamed"
	EventChatDeleted EventKind = "chat.deleted"
)

// Event tells list views to refresh.
type Event struct {
	Kind   EventKind `json:"kind"`
	ChatID string    `json:"chatId"`
	// Email of the user whose list changed; empty for anonymous chats.
	Email string `json:"-"`
}

const subscriberBuffer = 16

// Notifier fans events out to subscribers. Slow subscribers miss events rather
// than block publishers.
type Notifier struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
}

// NewNotifier returns a Notifier with no subscribers.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[int]chan Event)}
}

// Subscribe registers a listener. The returned cancel func closes the channel.
func (n *Notifier) Subscribe() (<-chan Event, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	ch := make(chan Event, subscriberBuffer)
	n.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			delete(n.subs, id)
			close(ch)
		})
	}
}

// Publish delivers e to every current subscriber without blocking.
func (n *Notifier) Publish(e Event) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for id, ch := range n.subs {
		select {
		case ch <- e:
		default:
			log.Printf("[notifier] subscriber %d lagging, dropped %s for chat=%s", id, e.Kind, e.ChatID)
		}
	}
}
