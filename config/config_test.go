package config

import "testing"

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{User: "molt", Password: "secret", Host: "db", DBName: "indexer"}
	got := p.DSN()
	want := "postgres://molt:secret@db:5432/indexer?sslmode=disable"
	if got != want {
		t.Fatalf("DSN: got %s want %s", got, want)
	}

	p.URL = "postgres://explicit"
	if p.DSN() != "postgres://explicit" {
		t.Fatalf("explicit url must win, got %s", p.DSN())
	}
}

func TestMarketplaceStartFallback(t *testing.T) {
	c := ChainConfig{StartBlock: 1000}
	if c.MarketplaceStart() != 1000 {
		t.Fatalf("expected registry start fallback, got %d", c.MarketplaceStart())
	}
	c.MarketplaceStartBlock = 2000
	if c.MarketplaceStart() != 2000 {
		t.Fatalf("expected marketplace start, got %d", c.MarketplaceStart())
	}
}

func TestChainConfigValidate(t *testing.T) {
	c := ChainConfig{
		ChainID:           143,
		RPCURL:            "https://rpc.monad.xyz",
		IdentityAddress:   "0x8004A169FB4a3325136EB29fA0ceB6D2e539a432",
		ReputationAddress: "0x8004BAa17C55a88189AE136b182e5fdA19dE9b63",
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("valid chain rejected: %v", err)
	}
	c.RPCURL = ""
	if err := c.Validate(); err == nil {
		t.Fatal("missing rpc_url must fail validation")
	}
}

func TestDefaultChains(t *testing.T) {
	chains := DefaultChains()
	if len(chains) != 2 {
		t.Fatalf("expected 2 chains, got %d", len(chains))
	}
	if chains[0].ChainID != 143 || chains[1].ChainID != 10143 {
		t.Fatalf("chain ids: %d, %d", chains[0].ChainID, chains[1].ChainID)
	}
	for _, c := range chains {
		if c.IdentityAddress == "" || c.ReputationAddress == "" {
			t.Fatalf("chain %d missing registry addresses", c.ChainID)
		}
		if c.StartBlock == 0 {
			t.Fatalf("chain %d missing start block", c.ChainID)
		}
	}
}

func TestIndexerConfigValidate(t *testing.T) {
	cfg := IndexerConfig{PollInterval: 1, MaxBatchBlocks: 100}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	cfg.MaxBatchBlocks = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("zero max_batch_blocks must fail validation")
	}
}
