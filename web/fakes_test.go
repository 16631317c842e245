package web

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/askanium/gcleaner-backend/collect"
	"github.com/askanium/gcleaner-backend/db"
	"google.golang.org/api/gmail/v1"
)

func init() {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

type fakeGateway struct {
	email      string
	listed     []collect.Candidate
	messages   map[string]*gmail.Message
	listErr    error
	fetchErr   error
	modifyErr  error
	modified   []collect.ModifyRequest
	labels     []*gmail.Label
	profileErr error
}

func (g *fakeGateway) ListCandidateIDs(ctx context.Context, labelIDs []string, since string) ([]collect.Candidate, error) {
	if g.listErr != nil {
		return []collect.Candidate{}, g.listErr
	}
	return g.listed, nil
}

func (g *fakeGateway) FetchDetails(ctx context.Context, candidates []collect.Candidate) ([]collect.BatchResult, error) {
	if g.fetchErr != nil {
		return nil, g.fetchErr
	}
	results := make([]collect.BatchResult, 0, len(candidates))
	for i, c := range candidates {
		results = append(results, collect.BatchResult{Index: i, Message: g.messages[c.ID]})
	}
	return results, nil
}

func (g *fakeGateway) ApplyLabelChanges(ctx context.Context, req collect.ModifyRequest) error {
	if g.modifyErr != nil {
		return g.modifyErr
	}
	g.modified = append(g.modified, req)
	return nil
}

func (g *fakeGateway) ListRemoteLabels(ctx context.Context) ([]*gmail.Label, error) {
	return g.labels, nil
}

func (g *fakeGateway) Profile(ctx context.Context) (string, error) {
	return g.email, g.profileErr
}

type memoryStore struct {
	mu         sync.Mutex
	users      map[string]db.User
	labels     map[string]collect.Label
	locked     map[string]db.LockedMarker
	ledger     []db.ModificationBatch
	checkpoint *time.Time
	saved      int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users:  make(map[string]db.User),
		labels: make(map[string]collect.Label),
		locked: make(map[string]db.LockedMarker),
	}
}

func (s *memoryStore) GetOrCreateUser(ctx context.Context, email string) (db.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[email]; ok {
		return u, false, nil
	}
	u := db.User{ID: int64(len(s.users) + 1), Email: email, CreatedOn: time.Now().UTC()}
	s.users[email] = u
	return u, true, nil
}

func (s *memoryStore) GetUser(ctx context.Context, id int64) (db.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return db.User{}, fmt.Errorf("failed to get user %d: %w", id, sql.ErrNoRows)
}

func (s *memoryStore) ListModifications(ctx context.Context, userID int64) ([]db.ModificationBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]db.ModificationBatch{}, s.ledger...), nil
}

func (s *memoryStore) ListLabels(ctx context.Context, userID int64) ([]collect.Label, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	labels := []collect.Label{}
	for _, l := range s.labels {
		labels = append(labels, l)
	}
	return labels, nil
}

func (s *memoryStore) UpsertLabels(ctx context.Context, userID int64, labels []collect.Label) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range labels {
		s.labels[l.RemoteID] = l
	}
	return nil
}

func (s *memoryStore) UpsertLockedMarker(ctx context.Context, marker db.LockedMarker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locked[marker.GoogleID] = marker
	return nil
}

func (s *memoryStore) ListLockedIDs(ctx context.Context, userID int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := []string{}
	for id, m := range s.locked {
		if m.Locked {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *memoryStore) RecordModification(ctx context.Context, userID int64, count int, action string) (db.ModificationBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := db.ModificationBatch{ID: int64(len(s.ledger) + 1), UserID: userID, Count: count, Action: action, CreatedOn: time.Now().UTC()}
	s.ledger = append(s.ledger, batch)
	return batch, nil
}

func (s *memoryStore) GetCheckpoint(ctx context.Context, userID int64) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.checkpoint == nil {
		return time.Time{}, false, nil
	}
	return *s.checkpoint, true, nil
}

func (s *memoryStore) AdvanceCheckpoint(ctx context.Context, userID int64, latest time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.checkpoint == nil || latest.After(*s.checkpoint) {
		s.checkpoint = &latest
	}
	return nil
}

func (s *memoryStore) SaveMessages(ctx context.Context, userID int64, messages []collect.NormalizedMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved += len(messages)
	return nil
}

func (s *memoryStore) CountUnreadMessages(ctx context.Context, userID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved, nil
}

func lockedMarker(id string) db.LockedMarker {
	return db.LockedMarker{UserID: 1, GoogleID: id, ThreadID: "t-" + id, Locked: true}
}
