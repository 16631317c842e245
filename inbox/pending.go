package inbox

import (
	"sync"

	"github.com/askanium/gcleaner-backend/collect"
)

// PendingQueue holds candidates whose detail fetch was rate limited so a
// later call can pick them up instead of listing again.
type PendingQueue interface {
	Take(userID int64) []collect.Candidate
	Put(userID int64, candidates []collect.Candidate)
}

type MemoryQueue struct {
	mu      sync.Mutex
	pending map[int64][]collect.Candidate
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{pending: make(map[int64][]collect.Candidate)}
}

func (q *MemoryQueue) Take(userID int64) []collect.Candidate {
	q.mu.Lock()
	defer q.mu.Unlock()
	candidates := q.pending[userID]
	delete(q.pending, userID)
	return candidates
}

// Put appends candidates, skipping ids already queued for the user.
func (q *MemoryQueue) Put(userID int64, candidates []collect.Candidate) {
	if len(candidates) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	seen := make(map[string]bool, len(q.pending[userID]))
	for _, c := range q.pending[userID] {
		seen[c.ID] = true
	}
	for _, c := range candidates {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		q.pending[userID] = append(q.pending[userID], c)
	}
}

func (q *MemoryQueue) Len(userID int64) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending[userID])
}
