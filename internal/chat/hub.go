package chat

import "sync"

// Event is one realtime update pushed to chat stream subscribers.
type Event struct {
	Type       string `json:"type"` // "message", "delta", "final", "error"
	MessageID  string `json:"messageId"`
	AnalysisID string `json:"analysisId"`
	Sender     string `json:"sender,omitempty"`
	Text       string `json:"text,omitempty"`
	IsError    bool   `json:"isError,omitempty"`
}

const subscriberBuffer = 64

// Hub fans chat events out to in-process SSE subscribers, keyed by analysis.
// Slow subscribers drop events rather than blocking the publisher; the
// persisted log remains the source of truth.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan Event]struct{})}
}

// Subscribe registers a listener for one analysis. The returned cancel
// function must be called when the listener goes away.
func (h *Hub) Subscribe(analysisID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	if h.subs[analysisID] == nil {
		h.subs[analysisID] = make(map[chan Event]struct{})
	}
	h.subs[analysisID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[analysisID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, analysisID)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers an event to all current subscribers of the analysis.
func (h *Hub) Publish(evt Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[evt.AnalysisID] {
		select {
		case ch <- evt:
		default:
		}
	}
}
