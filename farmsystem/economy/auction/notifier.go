package auction

import (
	"log/slog"
	"sync"
)

const subscriberBuffer = 16

// Notifier fans auction events out to topic subscribers. Publishing is
// fire and forget: a subscriber whose buffer is full loses the event
// rather than blocking the bidding path.
type Notifier struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string]map[uint64]chan Event
}

func NewNotifier() *Notifier {
	return &Notifier{
		subs: make(map[string]map[uint64]chan Event),
	}
}

// Subscribe registers interest in a topic. The returned cancel func must
// be called to release the subscription; after cancel the channel is
// closed.
func (n *Notifier) Subscribe(topic string) (<-chan Event, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	id := n.nextID
	ch := make(chan Event, subscriberBuffer)

	if n.subs[topic] == nil {
		n.subs[topic] = make(map[uint64]chan Event)
	}
	n.subs[topic][id] = ch

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if subs, ok := n.subs[topic]; ok {
			if c, ok := subs[id]; ok {
				delete(subs, id)
				close(c)
			}
			if len(subs) == 0 {
				delete(n.subs, topic)
			}
		}
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber of every topic it maps
// to. Slow subscribers are skipped.
func (n *Notifier) Publish(event Event) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for _, topic := range event.Topics() {
		for _, ch := range n.subs[topic] {
			select {
			case ch <- event:
			default:
				slog.Warn("Dropping auction event for slow subscriber",
					slog.String("topic", topic),
					slog.String("kind", string(event.Kind)),
					slog.String("auction_code", event.AuctionCode))
			}
		}
	}
}

// SubscriberCount reports active subscriptions on a topic.
func (n *Notifier) SubscriberCount(topic string) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs[topic])
}
