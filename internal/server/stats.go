package server

import (
	"fmt"

	"github.com/labstack/echo/v4"

	"github.com/moltlabs/molt-indexer/internal/store"
)

// StatsHandler serves platform-wide aggregate counters.
type StatsHandler struct {
	Store *store.Store
	Cache *Cache
}

func (h *StatsHandler) Register(g *echo.Group) {
	g.GET("/stats", h.platform)
}

func (h *StatsHandler) platform(c echo.Context) error {
	chainID := optInt64(c, "chain_id")
	key := fmt.Sprintf("stats:%v", deref(chainID))
	return respondCached(c, h.Cache, key, func() (interface{}, error) {
		return h.Store.GetPlatformStats(c.Request().Context(), chainID)
	})
}
