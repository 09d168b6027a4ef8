package indexer

import (
	"context"
	"io"
	"log"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"

	"github.com/moltlabs/molt-indexer/internal/store"
)

const testIdentityAddr = "0x8004a169fb4a3325136eb29fa0ceb6d2e539a432"

type recordingEnricher struct {
	jobs []string
}

func (r *recordingEnricher) Enqueue(agentID, chainID int64, uri string) {
	r.jobs = append(r.jobs, uri)
}

func newTestApplier(t *testing.T) (*Applier, sqlmock.Sqlmock, *recordingEnricher) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	enricher := &recordingEnricher{}
	logger := log.New(io.Discard, "", 0)
	a := NewApplier(store.New(db), 143, "monad", testIdentityAddr, enricher, logger)
	return a, mock, enricher
}

func prov(block int64, idx int32) base {
	return base{Provenance{BlockNumber: block, LogIndex: idx, TxHash: "0xtx"}}
}

func TestApplyRegisteredUpsertsAndEnqueues(t *testing.T) {
	a, mock, enricher := newTestApplier(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO agents")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO activity_log")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ev := RegisteredEvent{
		base: prov(100, 0), AgentID: 1, Owner: "0xowner", AgentURI: "https://a.example/1.json",
	}
	if err := a.Apply(context.Background(), ev); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(enricher.jobs) != 1 || enricher.jobs[0] != "https://a.example/1.json" {
		t.Fatalf("enricher jobs: %v", enricher.jobs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestApplyRegisteredStaleSkipsActivity(t *testing.T) {
	a, mock, enricher := newTestApplier(t)

	// Zero rows from the provenance guard: no activity, no enrichment.
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO agents")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ev := RegisteredEvent{base: prov(50, 0), AgentID: 1, Owner: "0xowner", AgentURI: "https://old"}
	if err := a.Apply(context.Background(), ev); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(enricher.jobs) != 0 {
		t.Fatalf("stale event must not enqueue enrichment: %v", enricher.jobs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestApplyBoughtDuplicateIsNoop(t *testing.T) {
	a, mock, _ := newTestApplier(t)

	// Status guard matches nothing, and the row is already Sold: a
	// redelivered event, not a violation.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE listings")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM listings")).
		WithArgs(int64(143), int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("Sold"))

	ev := BoughtEvent{base: prov(200, 1), ListingID: 9, Buyer: "0xbuyer", Price: decimal.NewFromInt(100)}
	if err := a.Apply(context.Background(), ev); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestApplyBoughtOnCancelledIsViolation(t *testing.T) {
	a, mock, _ := newTestApplier(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE listings")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM listings")).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("Cancelled"))

	ev := BoughtEvent{base: prov(200, 1), ListingID: 9, Buyer: "0xbuyer", Price: decimal.NewFromInt(100)}
	// Violations are counted and dropped, never returned as errors: the
	// batch must keep moving.
	if err := a.Apply(context.Background(), ev); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestApplyBidKeepsHistoryOnLowBid(t *testing.T) {
	a, mock, _ := newTestApplier(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO auction_bids")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE auctions")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM auctions")).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("Active"))

	ev := BidPlacedEvent{base: prov(300, 2), AuctionID: 5, Bidder: "0xbidder", Amount: decimal.NewFromInt(10)}
	if err := a.Apply(context.Background(), ev); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestApplyListedOnIdentityTokenWritesAgentActivity(t *testing.T) {
	a, mock, _ := newTestApplier(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO listings")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO activity_log")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ev := ListedEvent{
		base: prov(400, 0), ListingID: 12, Seller: "0xseller",
		NFTContract: testIdentityAddr, TokenID: decimal.NewFromInt(7),
		PaymentToken: "0xtoken", Price: decimal.NewFromInt(1000),
	}
	if err := a.Apply(context.Background(), ev); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestApplyListedOnOtherCollectionSkipsAgentActivity(t *testing.T) {
	a, mock, _ := newTestApplier(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO listings")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ev := ListedEvent{
		base: prov(400, 0), ListingID: 13, Seller: "0xseller",
		NFTContract: "0x9999999999999999999999999999999999999999", TokenID: decimal.NewFromInt(7),
		PaymentToken: "0xtoken", Price: decimal.NewFromInt(1000),
	}
	if err := a.Apply(context.Background(), ev); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestApplyFeedbackRevokedMissingIsViolation(t *testing.T) {
	a, mock, _ := newTestApplier(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE feedbacks")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ev := FeedbackRevokedEvent{base: prov(500, 0), AgentID: 7, Client: "0xclient", FeedbackIndex: 2}
	if err := a.Apply(context.Background(), ev); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
