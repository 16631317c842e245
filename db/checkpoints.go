package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetCheckpoint returns the timestamp of the newest message seen for the user.
func (s *Store) GetCheckpoint(ctx context.Context, userID int64) (time.Time, bool, error) {
	var latest time.Time
	err := s.db.GetContext(ctx, &latest, `select latest_message_at from sync_checkpoints where user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get sync checkpoint for user %d: %w", userID, err)
	}
	return latest.UTC(), true, nil
}

// AdvanceCheckpoint moves the checkpoint forward. An older timestamp never
// replaces a newer one.
func (s *Store) AdvanceCheckpoint(ctx context.Context, userID int64, latest time.Time) error {
	upsert := `insert into sync_checkpoints
			(user_id, latest_message_at)
		values
			($1, $2)
		on conflict (user_id) do update set
			latest_message_at = greatest(sync_checkpoints.latest_message_at, excluded.latest_message_at)`
	_, err := s.db.ExecContext(ctx, upsert, userID, latest.UTC())
	if err != nil {
		return fmt.Errorf("failed to advance sync checkpoint for user %d: %w", userID, err)
	}
	return nil
}
