package db

import (
	"context"
	"fmt"
)

// RecordModification appends a ledger entry for a successful bulk change.
func (s *Store) RecordModification(ctx context.Context, userID int64, count int, action string) (ModificationBatch, error) {
	insert_row := `insert into modifications
			(user_id, count, action, created_on)
		values
			($1, $2, $3, current_timestamp)
		returning id, user_id, count, action, created_on`
	var batch ModificationBatch
	err := s.db.QueryRowxContext(ctx, insert_row, userID, count, action).StructScan(&batch)
	if err != nil {
		return ModificationBatch{}, fmt.Errorf("failed to record modification for user %d: %w", userID, err)
	}
	return batch, nil
}

func (s *Store) ListModifications(ctx context.Context, userID int64) ([]ModificationBatch, error) {
	query := `select id, user_id, count, action, created_on
		from modifications
		where user_id = $1
		order by created_on desc, id desc`
	batches := []ModificationBatch{}
	err := s.db.SelectContext(ctx, &batches, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list modifications for user %d: %w", userID, err)
	}
	return batches, nil
}
