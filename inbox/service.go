package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/askanium/gcleaner-backend/collect"
	"github.com/askanium/gcleaner-backend/db"
	"github.com/askanium/gcleaner-backend/notification"
	"google.golang.org/api/gmail/v1"
)

const checkpointDateFormat = "2006-01-02"

type LabelStore interface {
	ListLabels(ctx context.Context, userID int64) ([]collect.Label, error)
	UpsertLabels(ctx context.Context, userID int64, labels []collect.Label) error
}

type LockStore interface {
	UpsertLockedMarker(ctx context.Context, marker db.LockedMarker) error
	ListLockedIDs(ctx context.Context, userID int64) ([]string, error)
}

type Ledger interface {
	RecordModification(ctx context.Context, userID int64, count int, action string) (db.ModificationBatch, error)
}

type CheckpointStore interface {
	GetCheckpoint(ctx context.Context, userID int64) (time.Time, bool, error)
	AdvanceCheckpoint(ctx context.Context, userID int64, latest time.Time) error
}

// Store is the persistence the engine needs. *db.Store implements it.
type Store interface {
	LabelStore
	LockStore
	Ledger
	CheckpointStore
}

// MessageStore keeps normalized message metadata locally.
type MessageStore interface {
	SaveMessages(ctx context.Context, userID int64, messages []collect.NormalizedMessage) error
	CountUnreadMessages(ctx context.Context, userID int64) (int, error)
}

// Archiver receives every ledger record after it is written.
type Archiver interface {
	Archive(ctx context.Context, principal collect.Principal, batch db.ModificationBatch) error
}

type Publisher interface {
	Publish(progress notification.Progress)
}

type LockRequest struct {
	GoogleID string `json:"google_id"`
	ThreadID string `json:"thread_id"`
	Locked   bool   `json:"locked"`
}

type UnreadCount struct {
	Gmail int  `json:"gmail"`
	Local *int `json:"local,omitempty"`
}

// Service synchronizes one principal's unread mailbox against a remote
// gateway and applies bulk changes to it.
type Service struct {
	principal collect.Principal
	gateway   collect.Gateway
	store     Store
	pending   PendingQueue
	backoff   Backoff
	messages  MessageStore
	archiver  Archiver
	progress  Publisher
	logger    *slog.Logger
}

type Option func(*Service)

func WithPendingQueue(q PendingQueue) Option {
	return func(s *Service) { s.pending = q }
}

func WithBackoff(b Backoff) Option {
	return func(s *Service) { s.backoff = b }
}

func WithMessageStore(m MessageStore) Option {
	return func(s *Service) { s.messages = m }
}

func WithArchiver(a Archiver) Option {
	return func(s *Service) { s.archiver = a }
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.progress = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(principal collect.Principal, gateway collect.Gateway, store Store, opts ...Option) *Service {
	s := &Service{
		principal: principal,
		gateway:   gateway,
		store:     store,
		pending:   NewMemoryQueue(),
		backoff:   NewBackoff(time.Second, 16),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("user_id", principal.ID)
	return s
}

// syncRun is the state of one RetrieveUnreadEmails invocation.
type syncRun struct {
	catalog map[string]collect.Label
	locked  map[string]bool
	healed  map[string]bool
	dropped int
}

// RetrieveUnreadEmails lists unread messages newer than the checkpoint,
// fetches their metadata in one batch and retries rate limited items with
// exponential backoff. Items still failing when the backoff is exhausted
// are kept for the next call.
func (s *Service) RetrieveUnreadEmails(ctx context.Context) ([]collect.NormalizedMessage, error) {
	start := time.Now()
	result := []collect.NormalizedMessage{}

	candidates := s.pending.Take(s.principal.ID)
	if len(candidates) > 0 {
		s.logger.Info("Retrying previously rate limited messages", "count", len(candidates))
	} else {
		since, err := s.sinceDate(ctx)
		if err != nil {
			return nil, err
		}
		candidates, err = s.gateway.ListCandidateIDs(ctx, []string{collect.LabelUnread}, since)
		if err != nil {
			return nil, err
		}
	}
	if len(candidates) == 0 {
		s.publish(0, result, nil, 0, start, true)
		return result, nil
	}

	run, err := s.newRun(ctx)
	if err != nil {
		s.pending.Put(s.principal.ID, candidates)
		return nil, err
	}

	delay := s.backoff.Initial
	for attempt := 1; ; attempt++ {
		parsed, failed, err := s.fetchAttempt(ctx, run, candidates)
		if err != nil {
			s.pending.Put(s.principal.ID, candidates)
			s.publish(attempt, result, candidates, run.dropped, start, true)
			return result, err
		}
		result = append(result, parsed...)
		s.persist(ctx, parsed)

		if len(failed) == 0 {
			s.publish(attempt, result, nil, run.dropped, start, true)
			break
		}
		if !s.backoff.Next(delay) {
			s.logger.Warn("Backoff exhausted, keeping messages for a later call",
				"attempts", attempt,
				"pending", len(failed))
			s.pending.Put(s.principal.ID, failed)
			s.publish(attempt, result, failed, run.dropped, start, true)
			break
		}
		s.publish(attempt, result, failed, run.dropped, start, false)
		s.logger.Info("Rate limited while fetching messages, retrying",
			"attempt", attempt,
			"pending", len(failed),
			"delay", delay)
		if err := s.backoff.wait(ctx, delay); err != nil {
			s.pending.Put(s.principal.ID, failed)
			return result, err
		}
		delay *= 2
		candidates = failed
	}

	s.logger.Debug("Finished retrieving unread emails",
		"count", len(result),
		"dropped", run.dropped,
		"elapsed", time.Since(start))
	return result, nil
}

func (s *Service) sinceDate(ctx context.Context) (string, error) {
	latest, found, err := s.store.GetCheckpoint(ctx, s.principal.ID)
	if err != nil {
		return "", fmt.Errorf("failed to determine sync checkpoint: %w", err)
	}
	if !found {
		return "", nil
	}
	return latest.UTC().Format(checkpointDateFormat), nil
}

func (s *Service) newRun(ctx context.Context) (*syncRun, error) {
	run := &syncRun{locked: make(map[string]bool), healed: make(map[string]bool)}
	if err := s.reloadCatalog(ctx, run); err != nil {
		return nil, err
	}
	ids, err := s.store.ListLockedIDs(ctx, s.principal.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load locked messages: %w", err)
	}
	for _, id := range ids {
		run.locked[id] = true
	}
	return run, nil
}

func (s *Service) reloadCatalog(ctx context.Context, run *syncRun) error {
	labels, err := s.store.ListLabels(ctx, s.principal.ID)
	if err != nil {
		return fmt.Errorf("failed to load label catalog: %w", err)
	}
	run.catalog = make(map[string]collect.Label, len(labels))
	for _, l := range labels {
		run.catalog[l.RemoteID] = l
	}
	return nil
}

// fetchAttempt runs one batch fetch. Results come back in arrival order;
// rate limited items are returned as failed, other per item errors are
// dropped.
func (s *Service) fetchAttempt(ctx context.Context, run *syncRun, candidates []collect.Candidate) ([]collect.NormalizedMessage, []collect.Candidate, error) {
	results, err := s.gateway.FetchDetails(ctx, candidates)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch message details: %w", err)
	}

	parsed := make([]collect.NormalizedMessage, 0, len(results))
	var failed []collect.Candidate
	for _, r := range results {
		if r.Err != nil {
			if collect.IsRetryable(r.Err) {
				failed = append(failed, candidates[r.Index])
				continue
			}
			// TODO: surface non rate limit fetch failures to the caller instead of dropping them.
			run.dropped++
			s.logger.Error("Failed to fetch message, skipping",
				"message_id", candidates[r.Index].ID,
				"error", r.Err)
			continue
		}
		msg := collect.ParseMessage(r.Message, s.principal)
		s.healLabelDrift(ctx, run, msg.LabelIDs)
		s.enrich(run, &msg)
		parsed = append(parsed, msg)
	}
	return parsed, failed, nil
}

// healLabelDrift refreshes the catalog once per unknown label id.
func (s *Service) healLabelDrift(ctx context.Context, run *syncRun, labelIDs []string) {
	for _, id := range labelIDs {
		if _, known := run.catalog[id]; known || run.healed[id] {
			continue
		}
		run.healed[id] = true
		s.logger.Info("Unknown label found, refreshing catalog", "label_id", id)
		if err := s.UpdateLabels(ctx); err != nil {
			s.logger.Error("Failed to refresh labels", "label_id", id, "error", err)
			continue
		}
		if err := s.reloadCatalog(ctx, run); err != nil {
			s.logger.Error("Failed to reload labels", "label_id", id, "error", err)
		}
	}
}

func (s *Service) enrich(run *syncRun, msg *collect.NormalizedMessage) {
	labels := make([]collect.Label, 0, len(msg.LabelIDs))
	for _, id := range msg.LabelIDs {
		if l, ok := run.catalog[id]; ok {
			labels = append(labels, l)
		}
	}
	msg.Labels = labels
	msg.Locked = run.locked[msg.RemoteID]
}

func (s *Service) persist(ctx context.Context, parsed []collect.NormalizedMessage) {
	if len(parsed) == 0 {
		return
	}
	var latest time.Time
	for _, m := range parsed {
		if m.Timestamp.After(latest) {
			latest = m.Timestamp
		}
	}
	if err := s.store.AdvanceCheckpoint(ctx, s.principal.ID, latest); err != nil {
		s.logger.Error("Failed to advance sync checkpoint", "latest", latest, "error", err)
	}
	if s.messages == nil {
		return
	}
	if err := s.messages.SaveMessages(ctx, s.principal.ID, parsed); err != nil {
		s.logger.Error("Failed to save messages", "count", len(parsed), "error", err)
	}
}

func (s *Service) publish(attempt int, result []collect.NormalizedMessage, pending []collect.Candidate, dropped int, start time.Time, done bool) {
	if s.progress == nil {
		return
	}
	s.progress.Publish(notification.Progress{
		ClientKey:      strconv.FormatInt(s.principal.ID, 10),
		Attempt:        attempt,
		ProcessedCount: len(result),
		PendingCount:   len(pending),
		DroppedCount:   dropped,
		ElapsedInSec:   int(time.Since(start).Seconds()),
		Done:           done,
	})
}

// RetrieveNrOfUnreadEmails counts remote unread messages newer than the
// checkpoint. Local is set when message persistence is enabled.
func (s *Service) RetrieveNrOfUnreadEmails(ctx context.Context) (UnreadCount, error) {
	since, err := s.sinceDate(ctx)
	if err != nil {
		return UnreadCount{}, err
	}
	candidates, err := s.gateway.ListCandidateIDs(ctx, []string{collect.LabelUnread}, since)
	if err != nil {
		return UnreadCount{}, err
	}
	count := UnreadCount{Gmail: len(candidates)}
	if s.messages != nil {
		local, err := s.messages.CountUnreadMessages(ctx, s.principal.ID)
		if err != nil {
			return UnreadCount{}, fmt.Errorf("failed to count local messages: %w", err)
		}
		count.Local = &local
	}
	return count, nil
}

// UpdateLabels upserts every remote label into the catalog. Labels that
// disappeared remotely are kept.
func (s *Service) UpdateLabels(ctx context.Context) error {
	remote, err := s.gateway.ListRemoteLabels(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch remote labels: %w", err)
	}
	labels := make([]collect.Label, 0, len(remote))
	for _, r := range remote {
		if r == nil {
			continue
		}
		labels = append(labels, labelFromRemote(r))
	}
	if err := s.store.UpsertLabels(ctx, s.principal.ID, labels); err != nil {
		return fmt.Errorf("failed to save labels: %w", err)
	}
	return nil
}

func labelFromRemote(r *gmail.Label) collect.Label {
	l := collect.Label{RemoteID: r.Id, Name: r.Name, Kind: collect.LabelKindUser}
	if r.Type == string(collect.LabelKindSystem) {
		l.Kind = collect.LabelKindSystem
	}
	if r.Color != nil {
		l.TextColor = r.Color.TextColor
		l.BackgroundColor = r.Color.BackgroundColor
	}
	return l
}

// ModifyEmails applies label changes remotely and records a ledger entry
// when the provider accepts them. A rejected request writes nothing and
// returns the *collect.ProviderError. A ledger write failure is logged only.
func (s *Service) ModifyEmails(ctx context.Context, req collect.ModifyRequest) error {
	if err := s.gateway.ApplyLabelChanges(ctx, req); err != nil {
		var providerErr *collect.ProviderError
		if errors.As(err, &providerErr) {
			s.logger.Warn("Provider rejected modification",
				"count", len(req.IDs),
				"code", providerErr.Code,
				"message", providerErr.Message)
			return err
		}
		return fmt.Errorf("failed to apply label changes: %w", err)
	}

	batch, err := s.store.RecordModification(ctx, s.principal.ID, len(req.IDs), Classify(req))
	if err != nil {
		s.logger.Error("Failed to record modification",
			"count", len(req.IDs),
			"action", Classify(req),
			"error", err)
		return nil
	}
	if s.archiver != nil {
		if err := s.archiver.Archive(ctx, s.principal, batch); err != nil {
			s.logger.Error("Failed to archive modification", "batch_id", batch.ID, "error", err)
		}
	}
	return nil
}

// Classify names the ledger action for a modify request.
func Classify(req collect.ModifyRequest) string {
	for _, id := range req.AddLabelIDs {
		if id == collect.LabelTrash {
			return db.ActionTrash
		}
	}
	return db.ActionOther
}

// LockEmail records the lock state of a message. No remote call is made.
func (s *Service) LockEmail(ctx context.Context, req LockRequest) error {
	marker := db.LockedMarker{
		UserID:   s.principal.ID,
		GoogleID: req.GoogleID,
		ThreadID: req.ThreadID,
		Locked:   req.Locked,
	}
	if err := s.store.UpsertLockedMarker(ctx, marker); err != nil {
		return fmt.Errorf("failed to lock message %s: %w", req.GoogleID, err)
	}
	return nil
}
