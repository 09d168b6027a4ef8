package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/moltlabs/molt-indexer/internal/store"
)

func setupStore(t *testing.T, ctx context.Context) *store.Store {
	t.Helper()

	pgC, err := tcPostgres.RunContainer(ctx,
		tcPostgres.WithDatabase("molt"),
		tcPostgres.WithUsername("molt"),
		tcPostgres.WithPassword("molt"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp")),
	)
	if err != nil {
		t.Fatalf("postgres container: %v", err)
	}
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	dsn, err := pgC.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	m, err := migrate.New("file://../../migrations", dsn)
	if err != nil {
		t.Fatalf("migrate init: %v", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		t.Fatalf("migrate up: %v", err)
	}

	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		t.Fatalf("store init: %v", err)
	}
	t.Cleanup(func() { _ = st.DB.Close() })
	return st
}

func TestStoreProjectionLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	st := setupStore(t, ctx)
	bt := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	// Register, then deliver an older write: the newer row must survive.
	applied, err := st.UpsertAgent(ctx, store.NewAgent{
		AgentID: 1, ChainID: 143, Owner: "0xaaa", URI: "https://agents.example/v2.json",
		Active: true, BlockNumber: 200, LogIndex: 1, BlockTime: bt, TxHash: "0xnew",
	})
	if err != nil || !applied {
		t.Fatalf("first upsert: applied=%v err=%v", applied, err)
	}
	applied, err = st.UpsertAgent(ctx, store.NewAgent{
		AgentID: 1, ChainID: 143, Owner: "0xaaa", URI: "https://agents.example/v1.json",
		Active: true, BlockNumber: 100, LogIndex: 0, BlockTime: bt, TxHash: "0xold",
	})
	if err != nil {
		t.Fatalf("stale upsert: %v", err)
	}
	if applied {
		t.Fatal("stale upsert must not apply")
	}
	agent, err := st.GetAgent(ctx, 1, 143)
	if err != nil {
		t.Fatalf("get agent: %v", err)
	}
	if agent == nil || agent.URI == nil || *agent.URI != "https://agents.example/v2.json" {
		t.Fatalf("stale write clobbered agent: %+v", agent)
	}

	// Redelivered feedback is dropped on the idempotence key.
	fb := store.NewFeedback{
		AgentID: 1, ChainID: 143, ClientAddress: "0xclient", FeedbackIndex: 0,
		Value: decimal.NewFromInt(450), ValueDecimals: 2, Tag1: "quality",
		BlockNumber: 210, LogIndex: 0, BlockTime: bt, TxHash: "0xfb",
	}
	if inserted, err := st.InsertFeedback(ctx, fb); err != nil || !inserted {
		t.Fatalf("insert feedback: inserted=%v err=%v", inserted, err)
	}
	if inserted, err := st.InsertFeedback(ctx, fb); err != nil || inserted {
		t.Fatalf("duplicate feedback: inserted=%v err=%v", inserted, err)
	}
}

func TestStoreCursorMonotonic(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	st := setupStore(t, ctx)

	if _, found, err := st.LastBlock(ctx, 143, "0xabc"); err != nil || found {
		t.Fatalf("fresh cursor: found=%v err=%v", found, err)
	}
	if err := st.AdvanceCursor(ctx, 143, "0xabc", "identity", 500); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if err := st.AdvanceCursor(ctx, 143, "0xabc", "identity", 500); err != nil {
		t.Fatalf("same-block advance: %v", err)
	}
	err := st.AdvanceCursor(ctx, 143, "0xabc", "identity", 400)
	if !errors.Is(err, store.ErrCursorRegression) {
		t.Fatalf("expected ErrCursorRegression, got %v", err)
	}
	last, found, err := st.LastBlock(ctx, 143, "0xabc")
	if err != nil || !found || last != 500 {
		t.Fatalf("cursor after regression: last=%d found=%v err=%v", last, found, err)
	}
}

func TestStoreListingStateMachine(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	st := setupStore(t, ctx)
	bt := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	applied, err := st.UpsertListing(ctx, store.NewListing{
		ChainID: 143, ListingID: 9, Seller: "0xseller",
		NFTContract: "0xnft", TokenID: decimal.NewFromInt(7),
		PaymentToken: "0xtoken", Price: decimal.NewFromInt(1000),
		BlockNumber: 300, LogIndex: 0, BlockTime: bt, TxHash: "0xlist",
	})
	if err != nil || !applied {
		t.Fatalf("upsert listing: applied=%v err=%v", applied, err)
	}

	applied, err = st.CloseListing(ctx, 143, 9, "Sold", "0xbuyer", decimal.NewFromInt(1000), 310, 0, "0xbuy")
	if err != nil || !applied {
		t.Fatalf("close listing: applied=%v err=%v", applied, err)
	}

	// A second close of any kind finds no Active row.
	applied, err = st.CloseListing(ctx, 143, 9, "Cancelled", "", decimal.Zero, 320, 0, "0xcancel")
	if err != nil {
		t.Fatalf("re-close: %v", err)
	}
	if applied {
		t.Fatal("closed listing must not transition again")
	}
	status, found, err := st.EntityStatus(ctx, "listings", "listing_id", 143, 9)
	if err != nil || !found || status != "Sold" {
		t.Fatalf("status: %q found=%v err=%v", status, found, err)
	}
}

func TestStoreBidMonotonic(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	st := setupStore(t, ctx)
	bt := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	applied, err := st.UpsertAuction(ctx, store.NewAuction{
		ChainID: 143, AuctionID: 5, Seller: "0xseller",
		NFTContract: "0xnft", TokenID: decimal.NewFromInt(7),
		PaymentToken: "0xtoken", StartPrice: decimal.NewFromInt(100),
		StartTime: bt, EndTime: bt.Add(24 * time.Hour),
		BlockNumber: 400, LogIndex: 0, BlockTime: bt, TxHash: "0xauction",
	})
	if err != nil || !applied {
		t.Fatalf("upsert auction: applied=%v err=%v", applied, err)
	}

	raised, err := st.UpdateAuctionHighBid(ctx, 143, 5, "0xalice", decimal.NewFromInt(150), 410, 0)
	if err != nil || !raised {
		t.Fatalf("first bid: raised=%v err=%v", raised, err)
	}
	raised, err = st.UpdateAuctionHighBid(ctx, 143, 5, "0xbob", decimal.NewFromInt(120), 420, 0)
	if err != nil {
		t.Fatalf("low bid: %v", err)
	}
	if raised {
		t.Fatal("lower bid must not raise the high bid")
	}

	auction, err := st.GetAuction(ctx, 143, 5)
	if err != nil {
		t.Fatalf("get auction: %v", err)
	}
	if auction == nil || auction.HighestBidder == nil || *auction.HighestBidder != "0xalice" {
		t.Fatalf("high bidder: %+v", auction)
	}
}
