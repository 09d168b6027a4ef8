package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/moltlabs/molt-indexer/config"
	"github.com/moltlabs/molt-indexer/internal/indexer"
	"github.com/moltlabs/molt-indexer/internal/store"
)

// Run wires the whole service: migrations, store, indexer loops and the
// read-only query API. Blocks until the listener stops.
func Run(cfg *config.Config, addr string) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	if err := Migrate("file://migrations", cfg.Storage.Postgres.DSN(), "up", 0); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	ctx := context.Background()
	st, err := store.NewWithDSN(ctx, cfg.Storage.Postgres.DSN())
	if err != nil {
		return err
	}

	cache, err := initCache(ctx, cfg.Storage.Redis, cfg.Server.CacheTTL)
	if err != nil {
		return err
	}

	var enricher *indexer.MetadataEnricher
	if cfg.Indexer.Enabled {
		m := cfg.Indexer.Metadata
		enricher = indexer.NewMetadataEnricher(st, m.Workers, m.QueueSize, m.FetchTimeout, m.MaxBodyBytes)
		enricher.Start(ctx)

		ix := indexer.New(cfg.Indexer, st, enricher)
		if err := ix.Start(ctx, cfg.Chains); err != nil {
			return fmt.Errorf("start indexer: %w", err)
		}
	}

	identities := make(map[int64]string, len(cfg.Chains))
	for _, ch := range cfg.Chains {
		identities[ch.ChainID] = ch.IdentityAddress
	}

	api := e.Group("/api/v1")
	ah := &AgentsHandler{Store: st, Cache: cache, Identities: identities}
	ah.Register(api)
	mh := &MarketplaceHandler{Store: st, Cache: cache}
	mh.Register(api)
	sh := &StatsHandler{Store: st, Cache: cache}
	sh.Register(api)

	if addr == "" {
		addr = cfg.Server.Address
		if addr == "" {
			addr = ":10002"
		}
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}
