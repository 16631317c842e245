package db

import (
	"context"
	"fmt"

	"github.com/askanium/gcleaner-backend/collect"
)

func (s *Store) ListLabels(ctx context.Context, userID int64) ([]collect.Label, error) {
	query := `select google_id, name, type, text_color, background_color
		from labels
		where user_id = $1
		order by id`
	labels := []collect.Label{}
	err := s.db.SelectContext(ctx, &labels, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list labels for user %d: %w", userID, err)
	}
	return labels, nil
}

// UpsertLabels inserts or updates every label keyed by (user, google_id).
// Labels missing from the input are left untouched.
func (s *Store) UpsertLabels(ctx context.Context, userID int64, labels []collect.Label) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin label transaction: %w", err)
	}
	upsert := `insert into labels
			(user_id, google_id, name, type, text_color, background_color)
		values
			($1, $2, $3, $4, $5, $6)
		on conflict (user_id, google_id) do update set
			name = excluded.name,
			type = excluded.type,
			text_color = excluded.text_color,
			background_color = excluded.background_color`
	for _, l := range labels {
		_, err := tx.ExecContext(ctx, upsert, userID, l.RemoteID, l.Name, string(l.Kind), l.TextColor, l.BackgroundColor)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to upsert label %s for user %d: %w", l.RemoteID, userID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit labels for user %d: %w", userID, err)
	}
	return nil
}
