package store

import (
	"context"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestLastBlockMissingCursor(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	mock.ExpectQuery(regexp.QuoteMeta("SELECT last_block")).
		WithArgs(int64(143), "0xabc").
		WillReturnRows(sqlmock.NewRows([]string{"last_block"}))

	last, found, err := st.LastBlock(context.Background(), 143, "0xabc")
	if err != nil {
		t.Fatalf("LastBlock: %v", err)
	}
	if found || last != 0 {
		t.Fatalf("expected no cursor, got %d found=%v", last, found)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAdvanceCursor(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO indexer_state")).
		WithArgs(int64(143), "0xabc", int64(500), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := st.AdvanceCursor(context.Background(), 143, "0xabc", "identity", 500); err != nil {
		t.Fatalf("AdvanceCursor: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAdvanceCursorRejectsRegression(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	// The monotonic guard matches zero rows when the stored cursor is ahead.
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO indexer_state")).
		WithArgs(int64(143), "0xabc", int64(100), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = st.AdvanceCursor(context.Background(), 143, "0xabc", "identity", 100)
	if !errors.Is(err, ErrCursorRegression) {
		t.Fatalf("expected ErrCursorRegression, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
