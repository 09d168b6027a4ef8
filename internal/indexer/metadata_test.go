package indexer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/moltlabs/molt-indexer/internal/store"
)

func TestResolveURI(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"ipfs://QmHash/card.json", "https://ipfs.io/ipfs/QmHash/card.json"},
		{"https://agents.example/1.json", "https://agents.example/1.json"},
		{"http://agents.example/1.json", "http://agents.example/1.json"},
		{"ftp://agents.example/1.json", ""},
		{"", ""},
	}
	for _, c := range cases {
		if got := resolveURI(c.in); got != c.want {
			t.Fatalf("resolveURI(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeCategories(t *testing.T) {
	got := normalizeCategories([]string{" DeFi ", "", "TRADING", "ai"})
	want := []string{"defi", "trading", "ai"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestFetchAppliesAgentCard(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"name": "Oracle Agent",
			"description": "price feeds",
			"categories": ["DeFi", "Analytics"],
			"x402_support": true,
			"unknown_field": 1
		}`))
	}))
	defer srv.Close()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE agents")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	m := NewMetadataEnricher(store.New(db), 1, 1, 5*time.Second, 1<<20)
	err = m.fetch(context.Background(), fetchJob{agentID: 1, chainID: 143, uri: srv.URL})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestFetchRejectsNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	m := NewMetadataEnricher(store.New(db), 1, 1, 5*time.Second, 1<<20)
	if err := m.fetch(context.Background(), fetchJob{uri: srv.URL}); err == nil {
		t.Fatal("expected error on 404")
	}
}

func TestFetchRejectsUnsupportedScheme(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	m := NewMetadataEnricher(store.New(db), 1, 1, 5*time.Second, 1<<20)
	if err := m.fetch(context.Background(), fetchJob{uri: "ftp://nope"}); err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}
