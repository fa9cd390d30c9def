package chat

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/wenhua-ai/xiaowen/backend/internal/model/chat"
)

// DefaultSubscriberBuffer is the per-subscriber event backlog.
const DefaultSubscriberBuffer = 256

type subscriber struct {
	ch chan chat.Event
}

// Hub fans session events out to subscribers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscriber]struct{}
	buffer int
}

// NewHub creates a hub whose subscribers buffer up to buffer events each.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &Hub{
		subs:   make(map[string]map[*subscriber]struct{}),
		buffer: buffer,
	}
}

// Subscribe registers a listener for sessionID. Calling the returned function
// removes it and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe(sessionID string) (<-chan chat.Event, func()) {
	sub := &subscriber{ch: make(chan chat.Event, h.buffer)}

	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[*subscriber]struct{})
	}
	h.subs[sessionID][sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if set, ok := h.subs[sessionID]; ok {
				delete(set, sub)
				if len(set) == 0 {
					delete(h.subs, sessionID)
				}
			}
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Publish delivers ev without blocking. A subscriber whose backlog is full
// misses the event.
func (h *Hub) Publish(ev chat.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[ev.SessionID] {
		select {
		case sub.ch <- ev:
		default:
			log.Warn().
				Str("component", "hub").
				Str("session", ev.SessionID).
				Str("event", string(ev.Type)).
				Msg("subscriber backlog full, dropping event")
		}
	}
}
