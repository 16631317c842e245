package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/askanium/gcleaner-backend/constants"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const schemaVersion = 1

// Store is the postgres backed persistence for users, labels, locked
// markers, the modification ledger, sync checkpoints and message metadata.
type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// SetupDatabase opens the connection described by the db_* flags and runs migrations.
func SetupDatabase() (*Store, error) {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s "+
		"password=%s dbname=%s sslmode=disable",
		constants.DbHost, constants.DbPort, constants.DbUser, constants.DbPassword, constants.DbName)

	db, err := sqlx.Open("postgres", psqlInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	err = db.Ping()
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("Successfully connected to database")

	store := NewStore(db)
	if err := store.Migrate(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}
	return store, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate creates the schema when the version table is missing.
func (s *Store) Migrate(ctx context.Context) error {
	var count int
	has_table_query := `select count(*)
		from information_schema.tables
		where table_name = $1`
	err := s.db.GetContext(ctx, &count, has_table_query, "version")
	if err != nil {
		return fmt.Errorf("failed to check for version table: %w", err)
	}
	if count > 0 {
		var version int
		err := s.db.GetContext(ctx, &version, `select id from version limit 1`)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to read schema version: %w", err)
		}
		if version >= schemaVersion {
			return nil
		}
	}
	return s.migrateV1(ctx)
}

func (s *Store) migrateV1(ctx context.Context) error {
	statements := []struct {
		name string
		sql  string
	}{
		{"users", create_users_table},
		{"labels", create_labels_table},
		{"locked_emails", create_locked_emails_table},
		{"modifications", create_modifications_table},
		{"sync_checkpoints", create_sync_checkpoints_table},
		{"emails", create_emails_table},
		{"version", create_version_table},
	}

	for _, stmt := range statements {
		_, err := s.db.ExecContext(ctx, stmt.sql)
		if err != nil {
			return fmt.Errorf("failed to create table %s: %w", stmt.name, err)
		}
		slog.Info("Created table", "table", stmt.name)
	}

	_, err := s.db.ExecContext(ctx, `delete from version`)
	if err != nil {
		return fmt.Errorf("failed to reset version: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `insert into version (id) values ($1)`, schemaVersion)
	if err != nil {
		return fmt.Errorf("failed to insert version: %w", err)
	}
	return nil
}

const create_users_table string = `CREATE TABLE IF NOT EXISTS users (
		  id serial PRIMARY KEY,
		  email VARCHAR(254) NOT NULL UNIQUE,
		  created_on TIMESTAMP NOT NULL
		)`

const create_labels_table string = `CREATE TABLE IF NOT EXISTS labels (
		  id serial PRIMARY KEY,
		  user_id INT NOT NULL,
		  google_id VARCHAR(200) NOT NULL,
		  name VARCHAR(200) NOT NULL,
		  type VARCHAR(10) NOT NULL,
		  text_color VARCHAR(7) NOT NULL DEFAULT '',
		  background_color VARCHAR(7) NOT NULL DEFAULT '',
		  UNIQUE (user_id, google_id),
		  FOREIGN KEY (user_id)
		    REFERENCES users (id)
		)`

const create_locked_emails_table string = `CREATE TABLE IF NOT EXISTS locked_emails (
		  id serial PRIMARY KEY,
		  user_id INT NOT NULL,
		  google_id VARCHAR(200) NOT NULL,
		  thread_id VARCHAR(200) NOT NULL,
		  locked boolean NOT NULL DEFAULT true,
		  updated_on TIMESTAMP NOT NULL,
		  UNIQUE (user_id, google_id),
		  FOREIGN KEY (user_id)
		    REFERENCES users (id)
		)`

const create_modifications_table string = `CREATE TABLE IF NOT EXISTS modifications (
		  id serial PRIMARY KEY,
		  user_id INT NOT NULL,
		  count INT NOT NULL,
		  action VARCHAR(20) NOT NULL,
		  created_on TIMESTAMP NOT NULL,
		  FOREIGN KEY (user_id)
		    REFERENCES users (id)
		)`

const create_sync_checkpoints_table string = `CREATE TABLE IF NOT EXISTS sync_checkpoints (
		  user_id INT PRIMARY KEY,
		  latest_message_at TIMESTAMP NOT NULL,
		  FOREIGN KEY (user_id)
		    REFERENCES users (id)
		)`

const create_emails_table string = `CREATE TABLE IF NOT EXISTS emails (
		  id serial PRIMARY KEY,
		  user_id INT NOT NULL,
		  google_id VARCHAR(200) NOT NULL,
		  thread_id VARCHAR(200) NOT NULL,
		  subject VARCHAR(2000),
		  snippet VARCHAR(2000),
		  sender_name VARCHAR(254),
		  sender_email VARCHAR(254),
		  sender_domain VARCHAR(254),
		  receiver VARCHAR(254),
		  delivered_to VARCHAR(254),
		  list_unsubscribe VARCHAR(2000),
		  date TIMESTAMP NOT NULL,
		  labels TEXT[],
		  UNIQUE (user_id, google_id),
		  FOREIGN KEY (user_id)
		    REFERENCES users (id)
		)`

const create_version_table string = `CREATE TABLE IF NOT EXISTS version (
		  id INT NOT NULL
		)`
