package store

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
)

func TestCloseListingOnlyActive(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	// Already-closed listings match zero rows under the status guard.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE listings")).
		WithArgs(int64(143), int64(9), "Sold", sqlmock.AnyArg(), sqlmock.AnyArg(),
			int64(200), int32(1), "0xtx").
		WillReturnResult(sqlmock.NewResult(0, 0))

	applied, err := st.CloseListing(context.Background(), 143, 9, "Sold", "0xbuyer",
		decimal.NewFromInt(100), 200, 1, "0xtx")
	if err != nil {
		t.Fatalf("CloseListing: %v", err)
	}
	if applied {
		t.Fatal("closed listing must not re-close")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCloseListingNilSoldPriceOnCancel(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	mock.ExpectExec(regexp.QuoteMeta("UPDATE listings")).
		WithArgs(int64(143), int64(9), "Cancelled", nil, nil, int64(200), int32(1), "0xtx").
		WillReturnResult(sqlmock.NewResult(0, 1))

	applied, err := st.CloseListing(context.Background(), 143, 9, "Cancelled", "",
		decimal.Zero, 200, 1, "0xtx")
	if err != nil {
		t.Fatalf("CloseListing: %v", err)
	}
	if !applied {
		t.Fatal("expected cancel to apply")
	}
}

func TestUpdateAuctionHighBidMonotonic(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	// A bid at or below the stored high matches zero rows.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE auctions")).
		WithArgs(int64(143), int64(5), "0xbidder", "50", int64(300), int32(0)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	raised, err := st.UpdateAuctionHighBid(context.Background(), 143, 5, "0xbidder",
		decimal.NewFromInt(50), 300, 0)
	if err != nil {
		t.Fatalf("UpdateAuctionHighBid: %v", err)
	}
	if raised {
		t.Fatal("lower bid must not raise the high bid")
	}
}

func TestInsertAuctionBidDuplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO auction_bids")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := st.InsertAuctionBid(context.Background(), NewAuctionBid{
		ChainID: 143, AuctionID: 5, Bidder: "0xbidder",
		Amount: decimal.NewFromInt(50), BlockNumber: 300, TxHash: "0xtx",
	})
	if err != nil {
		t.Fatalf("InsertAuctionBid: %v", err)
	}
	if inserted {
		t.Fatal("redelivered bid must be dropped")
	}
}

func TestEntityStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM listings")).
		WithArgs(int64(143), int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("Sold"))

	status, found, err := st.EntityStatus(context.Background(), "listings", "listing_id", 143, 9)
	if err != nil {
		t.Fatalf("EntityStatus: %v", err)
	}
	if !found || status != "Sold" {
		t.Fatalf("got %q found=%v", status, found)
	}
}

func TestUpsertMarketplaceConfigPartial(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	fee := int32(250)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO marketplace_config")).
		WithArgs(int64(143), &fee, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := st.UpsertMarketplaceConfig(context.Background(), 143, &fee, nil); err != nil {
		t.Fatalf("UpsertMarketplaceConfig: %v", err)
	}
}
