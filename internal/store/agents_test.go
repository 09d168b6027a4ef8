package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
)

func TestUpsertAgentApplied(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO agents")).
		WithArgs(int64(1), int64(143), "0xowner", sqlmock.AnyArg(), false, true,
			int64(100), int32(2), sqlmock.AnyArg(), "0xtx").
		WillReturnResult(sqlmock.NewResult(0, 1))

	applied, err := st.UpsertAgent(context.Background(), NewAgent{
		AgentID: 1, ChainID: 143, Owner: "0xowner", URI: "https://a.example/1.json",
		Active: true, BlockNumber: 100, LogIndex: 2,
		BlockTime: time.Now(), TxHash: "0xtx",
	})
	if err != nil {
		t.Fatalf("UpsertAgent: %v", err)
	}
	if !applied {
		t.Fatal("expected write to apply")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpsertAgentStaleDiscarded(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	// Provenance guard matches zero rows when the stored row is newer.
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO agents")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	applied, err := st.UpsertAgent(context.Background(), NewAgent{
		AgentID: 1, ChainID: 143, Owner: "0xowner",
		BlockNumber: 50, LogIndex: 0, TxHash: "0xold",
	})
	if err != nil {
		t.Fatalf("UpsertAgent: %v", err)
	}
	if applied {
		t.Fatal("stale write must not report applied")
	}
}

func TestInsertFeedbackDuplicateDropped(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO feedbacks")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := st.InsertFeedback(context.Background(), NewFeedback{
		AgentID: 7, ChainID: 143, ClientAddress: "0xclient", FeedbackIndex: 3,
		Value: decimal.NewFromInt(450), ValueDecimals: 2,
		BlockNumber: 10, TxHash: "0xtx",
	})
	if err != nil {
		t.Fatalf("InsertFeedback: %v", err)
	}
	if inserted {
		t.Fatal("duplicate feedback must not report inserted")
	}
}

func TestRevokeFeedback(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	mock.ExpectExec(regexp.QuoteMeta("UPDATE feedbacks")).
		WithArgs(int64(7), int64(143), "0xclient", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	found, err := st.RevokeFeedback(context.Background(), 7, 143, "0xclient", 3)
	if err != nil {
		t.Fatalf("RevokeFeedback: %v", err)
	}
	if !found {
		t.Fatal("expected feedback to be found")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
