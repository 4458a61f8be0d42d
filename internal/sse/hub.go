// Package sse fans hit events out to live stream subscribers.
package sse

import (
	"sync"

	"github.com/YannKr/countersignal/internal/metrics"
)

// TopicHits carries every hit; CampaignTopic narrows to one campaign.
const TopicHits = "hits"

func CampaignTopic(campaignID string) string {
	return "campaign:" + campaignID
}

type Event struct {
	Type string // "hit"
	Data string // JSON
}

const subscriberBuffer = 16

// Hub is an in-memory topic broker. A subscriber that falls behind loses
// events rather than stalling the callback path.
type Hub struct {
	mu     sync.Mutex
	topics map[string]map[chan Event]struct{}
}

func New() *Hub {
	return &Hub{topics: make(map[string]map[chan Event]struct{})}
}

// Subscribe returns the event channel for topic and a cancel func that
// closes it. Cancel is idempotent.
func (h *Hub) Subscribe(topic string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	subs := h.topics[topic]
	if subs == nil {
		subs = make(map[chan Event]struct{})
		h.topics[topic] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.topics[topic], ch)
			if len(h.topics[topic]) == 0 {
				delete(h.topics, topic)
			}
			close(ch)
		})
	}
}

// Publish never blocks. Closing happens under the same lock, so a send never
// races a cancel.
func (h *Hub) Publish(topic string, event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.topics[topic] {
		select {
		case ch <- event:
		default:
			metrics.StreamDropped.Inc()
		}
	}
}

func (h *Hub) Subscribers(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics[topic])
}
