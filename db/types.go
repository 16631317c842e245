package db

import (
	"time"
)

const (
	ActionTrash = "trash"
	ActionOther = "other"
)

type User struct {
	ID        int64     `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	CreatedOn time.Time `db:"created_on" json:"created_on"`
}

// LockedMarker records that a user shielded a message from bulk actions.
type LockedMarker struct {
	UserID   int64  `db:"user_id" json:"-"`
	GoogleID string `db:"google_id" json:"google_id"`
	ThreadID string `db:"thread_id" json:"thread_id"`
	Locked   bool   `db:"locked" json:"locked"`
}

// ModificationBatch is one entry of the append-only modification ledger.
type ModificationBatch struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Count     int       `db:"count" json:"count"`
	Action    string    `db:"action" json:"action"`
	CreatedOn time.Time `db:"created_on" json:"created_on"`
}
