package db

import (
	"context"
	"fmt"
)

// GetOrCreateUser returns the user owning email, creating it on first login.
func (s *Store) GetOrCreateUser(ctx context.Context, email string) (User, bool, error) {
	upsert := `insert into users
			(email, created_on)
		values
			($1, current_timestamp)
		on conflict (email) do update set email = excluded.email
		returning id, email, created_on, (xmax = 0) as created`
	var row struct {
		User
		Created bool `db:"created"`
	}
	err := s.db.QueryRowxContext(ctx, upsert, email).StructScan(&row)
	if err != nil {
		return User{}, false, fmt.Errorf("failed to get or create user %s: %w", email, err)
	}
	return row.User, row.Created, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (User, error) {
	var user User
	err := s.db.GetContext(ctx, &user, `select id, email, created_on from users where id = $1`, id)
	if err != nil {
		return User{}, fmt.Errorf("failed to get user %d: %w", id, err)
	}
	return user, nil
}
