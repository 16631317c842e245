package db

import (
	"context"
	"fmt"
)

// UpsertLockedMarker stores the lock state of a message. The last write wins.
func (s *Store) UpsertLockedMarker(ctx context.Context, marker LockedMarker) error {
	upsert := `insert into locked_emails
			(user_id, google_id, thread_id, locked, updated_on)
		values
			($1, $2, $3, $4, current_timestamp)
		on conflict (user_id, google_id) do update set
			thread_id = excluded.thread_id,
			locked = excluded.locked,
			updated_on = excluded.updated_on`
	_, err := s.db.ExecContext(ctx, upsert, marker.UserID, marker.GoogleID, marker.ThreadID, marker.Locked)
	if err != nil {
		return fmt.Errorf("failed to save lock for message %s (user=%d): %w", marker.GoogleID, marker.UserID, err)
	}
	return nil
}

// ListLockedIDs returns the remote ids of currently locked messages.
func (s *Store) ListLockedIDs(ctx context.Context, userID int64) ([]string, error) {
	ids := []string{}
	err := s.db.SelectContext(ctx, &ids, `select google_id from locked_emails where user_id = $1 and locked`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list locked messages for user %d: %w", userID, err)
	}
	return ids, nil
}
