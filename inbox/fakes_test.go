package inbox

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/askanium/gcleaner-backend/collect"
	"github.com/askanium/gcleaner-backend/db"
	"github.com/askanium/gcleaner-backend/notification"
	"google.golang.org/api/gmail/v1"
)

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeGateway struct {
	listed     []collect.Candidate
	listSince  []string
	listLabels [][]string
	listErr    error

	// fetch answers the n-th (zero based) FetchDetails call.
	fetch      func(call int, candidates []collect.Candidate) ([]collect.BatchResult, error)
	fetchCalls [][]collect.Candidate

	modifyErr error
	modified  []collect.ModifyRequest

	remoteLabels []*gmail.Label
	labelCalls   int
}

func (g *fakeGateway) ListCandidateIDs(ctx context.Context, labelIDs []string, since string) ([]collect.Candidate, error) {
	g.listSince = append(g.listSince, since)
	g.listLabels = append(g.listLabels, labelIDs)
	if g.listErr != nil {
		return []collect.Candidate{}, g.listErr
	}
	return g.listed, nil
}

func (g *fakeGateway) FetchDetails(ctx context.Context, candidates []collect.Candidate) ([]collect.BatchResult, error) {
	call := len(g.fetchCalls)
	g.fetchCalls = append(g.fetchCalls, candidates)
	return g.fetch(call, candidates)
}

func (g *fakeGateway) ApplyLabelChanges(ctx context.Context, req collect.ModifyRequest) error {
	if g.modifyErr != nil {
		return g.modifyErr
	}
	g.modified = append(g.modified, req)
	return nil
}

func (g *fakeGateway) ListRemoteLabels(ctx context.Context) ([]*gmail.Label, error) {
	g.labelCalls++
	return g.remoteLabels, nil
}

func (g *fakeGateway) Profile(ctx context.Context) (string, error) {
	return "me@email.com", nil
}

type fakeStore struct {
	labels     map[string]collect.Label
	locked     map[string]db.LockedMarker
	ledger     []db.ModificationBatch
	ledgerErr  error
	checkpoint *time.Time
	advanced   []time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{labels: make(map[string]collect.Label), locked: make(map[string]db.LockedMarker)}
}

func (s *fakeStore) ListLabels(ctx context.Context, userID int64) ([]collect.Label, error) {
	labels := make([]collect.Label, 0, len(s.labels))
	for _, l := range s.labels {
		labels = append(labels, l)
	}
	return labels, nil
}

func (s *fakeStore) UpsertLabels(ctx context.Context, userID int64, labels []collect.Label) error {
	for _, l := range labels {
		s.labels[l.RemoteID] = l
	}
	return nil
}

func (s *fakeStore) UpsertLockedMarker(ctx context.Context, marker db.LockedMarker) error {
	s.locked[marker.GoogleID] = marker
	return nil
}

func (s *fakeStore) ListLockedIDs(ctx context.Context, userID int64) ([]string, error) {
	var ids []string
	for id, m := range s.locked {
		if m.Locked {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *fakeStore) RecordModification(ctx context.Context, userID int64, count int, action string) (db.ModificationBatch, error) {
	if s.ledgerErr != nil {
		return db.ModificationBatch{}, s.ledgerErr
	}
	batch := db.ModificationBatch{ID: int64(len(s.ledger) + 1), UserID: userID, Count: count, Action: action, CreatedOn: time.Now().UTC()}
	s.ledger = append(s.ledger, batch)
	return batch, nil
}

func (s *fakeStore) GetCheckpoint(ctx context.Context, userID int64) (time.Time, bool, error) {
	if s.checkpoint == nil {
		return time.Time{}, false, nil
	}
	return *s.checkpoint, true, nil
}

func (s *fakeStore) AdvanceCheckpoint(ctx context.Context, userID int64, latest time.Time) error {
	s.advanced = append(s.advanced, latest)
	if s.checkpoint == nil || latest.After(*s.checkpoint) {
		s.checkpoint = &latest
	}
	return nil
}

type fakeMessages struct {
	saved []collect.NormalizedMessage
}

func (m *fakeMessages) SaveMessages(ctx context.Context, userID int64, messages []collect.NormalizedMessage) error {
	m.saved = append(m.saved, messages...)
	return nil
}

func (m *fakeMessages) CountUnreadMessages(ctx context.Context, userID int64) (int, error) {
	return len(m.saved), nil
}

type fakeArchiver struct {
	archived []db.ModificationBatch
}

func (a *fakeArchiver) Archive(ctx context.Context, principal collect.Principal, batch db.ModificationBatch) error {
	a.archived = append(a.archived, batch)
	return nil
}

type recordingPublisher struct {
	mu      sync.Mutex
	updates []notification.Progress
}

func (p *recordingPublisher) Publish(progress notification.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, progress)
}

type recordingSleeper struct {
	sleeps []time.Duration
}

func (r *recordingSleeper) backoff() Backoff {
	return Backoff{
		Initial: time.Second,
		Max:     16 * time.Second,
		Sleep: func(ctx context.Context, d time.Duration) error {
			r.sleeps = append(r.sleeps, d)
			return ctx.Err()
		},
	}
}

// rawMessage builds a provider message carrying a From header.
func rawMessage(id string, internalDate int64, labelIDs ...string) *gmail.Message {
	return &gmail.Message{
		Id:           id,
		ThreadId:     "t-" + id,
		LabelIds:     labelIDs,
		Snippet:      "snippet " + id,
		InternalDate: internalDate,
		Payload: &gmail.MessagePart{Headers: []*gmail.MessagePartHeader{
			{Name: "From", Value: "Google <no-reply@accounts.google.com>"},
			{Name: "Subject", Value: "subject " + id},
		}},
	}
}

func ok(index int, msg *gmail.Message) collect.BatchResult {
	return collect.BatchResult{Index: index, Message: msg}
}

func failure(index int, err error) collect.BatchResult {
	return collect.BatchResult{Index: index, Err: err}
}

// echo answers every candidate successfully, in submission order.
func echo(candidates []collect.Candidate) []collect.BatchResult {
	results := make([]collect.BatchResult, 0, len(candidates))
	for i, c := range candidates {
		results = append(results, ok(i, rawMessage(c.ID, 1552991481000, collect.LabelUnread)))
	}
	return results
}
