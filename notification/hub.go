package notification

import (
	"sync"
)

const NOTIFICATION_ALL string = "all"

// Progress describes a running mailbox sync.
type Progress struct {
	ClientKey      string `json:"client_key"`
	Attempt        int    `json:"attempt"`
	ProcessedCount int    `json:"processed_count"`
	PendingCount   int    `json:"pending_count"`
	DroppedCount   int    `json:"dropped_count"`
	ElapsedInSec   int    `json:"elapsed_in_sec"`
	Done           bool   `json:"done"`
}

// Hub fans progress updates out to subscribers keyed by client. Publishing
// never blocks: updates for a slow subscriber are dropped.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]map[chan Progress]struct{}
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]map[chan Progress]struct{})}
}

var defaultHub = NewHub()

func Default() *Hub {
	return defaultHub
}

// Subscribe returns a channel of updates for clientKey and a function that
// releases it. NOTIFICATION_ALL receives every update.
func (h *Hub) Subscribe(clientKey string) (<-chan Progress, func()) {
	ch := make(chan Progress, 16)
	h.mu.Lock()
	if h.subscribers[clientKey] == nil {
		h.subscribers[clientKey] = make(map[chan Progress]struct{})
	}
	h.subscribers[clientKey][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subscribers[clientKey], ch)
			if len(h.subscribers[clientKey]) == 0 {
				delete(h.subscribers, clientKey)
			}
			close(ch)
		})
	}
}

func (h *Hub) Publish(progress Progress) {
	h.mu.Lock()
	defer h.mu.Unlock()
	pushToSubscribers(h.subscribers[progress.ClientKey], progress)
	if progress.ClientKey != NOTIFICATION_ALL {
		pushToSubscribers(h.subscribers[NOTIFICATION_ALL], progress)
	}
}

func pushToSubscribers(subscribers map[chan Progress]struct{}, progress Progress) {
	for ch := range subscribers {
		select {
		case ch <- progress:
		default:
		}
	}
}
