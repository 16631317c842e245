package db

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/askanium/gcleaner-backend/collect"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return NewStore(sqlx.NewDb(sqlDB, "postgres")), mock
}

func TestMigrateCreatesSchema(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("from information_schema.tables").WithArgs("version").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	for _, table := range []string{"users", "labels", "locked_emails", "modifications", "sync_checkpoints", "emails", "version"} {
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS " + table).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectExec("delete from version").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("insert into version").WithArgs(schemaVersion).WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateSkipsCurrentSchema(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("from information_schema.tables").WithArgs("version").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("select id from version").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(schemaVersion))

	require.NoError(t, store.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrCreateUser(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2019, 3, 19, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery("insert into users").WithArgs("me@email.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "created_on", "created"}).
			AddRow(7, "me@email.com", created, true))

	user, isNew, err := store.GetOrCreateUser(context.Background(), "me@email.com")

	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, User{ID: 7, Email: "me@email.com", CreatedOn: created}, user)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUser(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2019, 3, 19, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery("from users where id").WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "created_on"}).AddRow(7, "me@email.com", created))
	mock.ExpectQuery("from users where id").WithArgs(int64(8)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "created_on"}))

	user, err := store.GetUser(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, User{ID: 7, Email: "me@email.com", CreatedOn: created}, user)

	_, err = store.GetUser(context.Background(), 8)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertLabels(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("insert into labels").WithArgs(int64(1), "INBOX", "INBOX", "system", "", "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into labels").WithArgs(int64(1), "Label_35", "Custom Label", "user", "#222", "#ddd").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.UpsertLabels(context.Background(), 1, []collect.Label{
		{RemoteID: "INBOX", Name: "INBOX", Kind: collect.LabelKindSystem},
		{RemoteID: "Label_35", Name: "Custom Label", Kind: collect.LabelKindUser, TextColor: "#222", BackgroundColor: "#ddd"},
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertLabelsRollsBackOnError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("insert into labels").WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	err := store.UpsertLabels(context.Background(), 1, []collect.Label{{RemoteID: "INBOX", Name: "INBOX", Kind: collect.LabelKindSystem}})

	assert.ErrorContains(t, err, "INBOX")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListLabels(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("from labels").WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"google_id", "name", "type", "text_color", "background_color"}).
			AddRow("UNREAD", "UNREAD", "system", "", "").
			AddRow("Label_35", "Custom Label", "user", "#222", "#ddd"))

	labels, err := store.ListLabels(context.Background(), 1)

	require.NoError(t, err)
	assert.Equal(t, []collect.Label{
		{RemoteID: "UNREAD", Name: "UNREAD", Kind: collect.LabelKindSystem},
		{RemoteID: "Label_35", Name: "Custom Label", Kind: collect.LabelKindUser, TextColor: "#222", BackgroundColor: "#ddd"},
	}, labels)
}

func TestLockedMarkers(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("insert into locked_emails").WithArgs(int64(1), "m1", "t1", true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("select google_id from locked_emails").WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"google_id"}).AddRow("m1"))

	require.NoError(t, store.UpsertLockedMarker(context.Background(), LockedMarker{UserID: 1, GoogleID: "m1", ThreadID: "t1", Locked: true}))
	ids, err := store.ListLockedIDs(context.Background(), 1)

	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordAndListModifications(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	columns := []string{"id", "user_id", "count", "action", "created_on"}

	mock.ExpectQuery("insert into modifications").WithArgs(int64(7), 3, ActionTrash).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(11, 7, 3, ActionTrash, now))
	mock.ExpectQuery("from modifications").WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(11, 7, 3, ActionTrash, now))

	batch, err := store.RecordModification(context.Background(), 7, 3, ActionTrash)
	require.NoError(t, err)
	assert.Equal(t, ModificationBatch{ID: 11, UserID: 7, Count: 3, Action: ActionTrash, CreatedOn: now}, batch)

	batches, err := store.ListModifications(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, []ModificationBatch{batch}, batches)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckpoint(t *testing.T) {
	store, mock := newMockStore(t)
	latest := time.Date(2019, 3, 19, 10, 31, 21, 0, time.UTC)

	mock.ExpectQuery("from sync_checkpoints").WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"latest_message_at"}))
	mock.ExpectExec("greatest").WithArgs(int64(1), latest).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("from sync_checkpoints").WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"latest_message_at"}).AddRow(latest))

	_, found, err := store.GetCheckpoint(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.AdvanceCheckpoint(context.Background(), 1, latest))

	got, found, err := store.GetCheckpoint(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, latest, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveMessages(t *testing.T) {
	store, mock := newMockStore(t)
	ts := time.Date(2019, 3, 19, 10, 31, 21, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("insert into emails").
		WithArgs(int64(1), "m1", "t1", "Hi", "snippet", "Google", "no-reply@accounts.google.com", "accounts.google.com",
			"me@email.com", "", "", ts, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery("select count").WithArgs(int64(1), collect.LabelUnread).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	err := store.SaveMessages(context.Background(), 1, []collect.NormalizedMessage{{
		RemoteID:  "m1",
		ThreadID:  "t1",
		Subject:   "Hi",
		Snippet:   "snippet",
		Sender:    &collect.Actor{Name: "Google", Email: "no-reply@accounts.google.com", Domain: "accounts.google.com"},
		Receiver:  "me@email.com",
		Timestamp: ts,
		LabelIDs:  []string{collect.LabelUnread},
	}})
	require.NoError(t, err)

	count, err := store.CountUnreadMessages(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubstr(t *testing.T) {
	assert.Equal(t, "abc", substr("abc", 5))
	assert.Equal(t, "ab", substr("abc", 2))
	assert.Equal(t, "żó", substr("żółw", 2))
}
