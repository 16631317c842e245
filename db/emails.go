package db

import (
	"context"
	"fmt"

	"github.com/askanium/gcleaner-backend/collect"
	"github.com/lib/pq"
)

// SaveMessages upserts normalized message metadata. Bodies are never stored.
func (s *Store) SaveMessages(ctx context.Context, userID int64, messages []collect.NormalizedMessage) error {
	if len(messages) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin message transaction: %w", err)
	}
	upsert := `insert into emails
			(user_id, google_id, thread_id, subject, snippet, sender_name, sender_email, sender_domain,
				receiver, delivered_to, list_unsubscribe, date, labels)
		values
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		on conflict (user_id, google_id) do update set
			labels = excluded.labels`
	for _, m := range messages {
		var sender collect.Actor
		if m.Sender != nil {
			sender = *m.Sender
		}
		_, err := tx.ExecContext(ctx, upsert, userID, m.RemoteID, m.ThreadID, substr(m.Subject, 2000), substr(m.Snippet, 2000),
			substr(sender.Name, 254), substr(sender.Email, 254), substr(sender.Domain, 254),
			substr(m.Receiver, 254), substr(m.DeliveredTo, 254), substr(m.ListUnsubscribe, 2000),
			m.Timestamp.UTC(), pq.Array(m.LabelIDs))
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to save message %s for user %d: %w", m.RemoteID, userID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit messages for user %d: %w", userID, err)
	}
	return nil
}

// CountUnreadMessages counts stored messages still carrying the UNREAD label.
func (s *Store) CountUnreadMessages(ctx context.Context, userID int64) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `select count(*) from emails where user_id = $1 and $2 = any(labels)`, userID, collect.LabelUnread)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages for user %d: %w", userID, err)
	}
	return count, nil
}

// substr truncates s to at most end runes.
func substr(s string, end int) string {
	if len(s) <= end {
		return s
	}
	counter := 0
	for i := range s {
		if counter == end {
			return s[:i]
		}
		counter++
	}
	return s
}
