package session

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func newPostgresStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	store := NewPostgresStore(sqlx.NewDb(db, "postgres"), time.Hour)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	return store, mock
}

func TestPostgresStoreGet(t *testing.T) {
	ctx := context.Background()
	store, mock := newPostgresStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(pgSelect)).
		WithArgs(int64(10), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"data"}).
			AddRow([]byte(`{"user_id":10,"scene":"auto_verify","changing_spreadsheet":true}`)))

	got, err := store.Get(ctx, 10)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Scene != "auto_verify" || !got.ChangingSpreadsheet || got.UserID != 10 {
		t.Fatalf("unexpected session %+v", got)
	}

	mock.ExpectQuery(regexp.QuoteMeta(pgSelect)).
		WithArgs(int64(11), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"data"}))
	got, err = store.Get(ctx, 11)
	if err != nil {
		t.Fatalf("Get absent: %v", err)
	}
	if !got.IsDefault() {
		t.Fatalf("expected default, got %+v", got)
	}

	mock.ExpectQuery(regexp.QuoteMeta(pgSelect)).
		WithArgs(int64(12), sqlmock.AnyArg()).
		WillReturnError(errors.New("connection refused"))
	if _, err := store.Get(ctx, 12); !errors.Is(err, ErrBackend) {
		t.Fatalf("expected ErrBackend, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresStoreSetDeletePurge(t *testing.T) {
	ctx := context.Background()
	store, mock := newPostgresStore(t)
	expires := store.now().Add(time.Hour)

	mock.ExpectExec(regexp.QuoteMeta(pgUpsert)).
		WithArgs(int64(5), sqlmock.AnyArg(), expires).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.Set(ctx, Session{UserID: 5, Scene: "setup-spreadsheet"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	mock.ExpectExec(regexp.QuoteMeta(pgDelete)).
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.Delete(ctx, 5); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	mock.ExpectExec(regexp.QuoteMeta(pgPurge)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	n, err := store.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if n != 3 {
		t.Fatalf("purged %d rows, want 3", n)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
