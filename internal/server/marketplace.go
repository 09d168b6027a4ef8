package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/moltlabs/molt-indexer/internal/store"
)

// MarketplaceHandler serves the marketplace read API.
type MarketplaceHandler struct {
	Store *store.Store
	Cache *Cache
}

func (h *MarketplaceHandler) Register(g *echo.Group) {
	m := g.Group("/marketplace")
	m.GET("/listings", h.listings)
	m.GET("/offers", h.offers)
	m.GET("/collection-offers", h.collectionOffers)
	m.GET("/auctions", h.auctions)
	m.GET("/auctions/:chain_id/:auction_id", h.auction)
	m.GET("/dutch-auctions", h.dutchAuctions)
	m.GET("/bundles", h.bundles)
	m.GET("/portfolio/:address", h.portfolio)
	m.GET("/config/:chain_id", h.config)
	m.GET("/stats", h.stats)
}

func marketFilter(c echo.Context) store.MarketFilter {
	return store.MarketFilter{
		ChainID:     optInt64(c, "chain_id"),
		Status:      optStr(c, "status"),
		Seller:      lowerOpt(optStr(c, "seller")),
		NFTContract: lowerOpt(optStr(c, "nft_contract")),
		TokenID:     optStr(c, "token_id"),
		Sort:        c.QueryParam("sort"),
		Limit:       limitParam(c, 50, 200),
		Offset:      offsetParam(c),
	}
}

func (h *MarketplaceHandler) listings(c echo.Context) error {
	f := marketFilter(c)
	key := fmt.Sprintf("mkt:listings:%v:%v:%v:%v:%s:%d:%d",
		deref(f.ChainID), derefs(f.Status), derefs(f.Seller), derefs(f.NFTContract), f.Sort, f.Limit, f.Offset)
	return respondCached(c, h.Cache, key, func() (interface{}, error) {
		items, total, err := h.Store.ListListings(c.Request().Context(), f)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"listings": emptyOr(items), "total": total}, nil
	})
}

func (h *MarketplaceHandler) offers(c echo.Context) error {
	// offerer filters through the seller param slot
	f := marketFilter(c)
	if o := lowerOpt(optStr(c, "offerer")); o != nil {
		f.Seller = o
	}
	out, err := h.Store.ListOffers(c.Request().Context(), f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"offers": emptyOr(out)})
}

func (h *MarketplaceHandler) collectionOffers(c echo.Context) error {
	f := marketFilter(c)
	if o := lowerOpt(optStr(c, "offerer")); o != nil {
		f.Seller = o
	}
	out, err := h.Store.ListCollectionOffers(c.Request().Context(), f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"collection_offers": emptyOr(out)})
}

func (h *MarketplaceHandler) auctions(c echo.Context) error {
	out, err := h.Store.ListAuctions(c.Request().Context(), marketFilter(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"auctions": emptyOr(out)})
}

func (h *MarketplaceHandler) auction(c echo.Context) error {
	chainID, err := strconv.ParseInt(c.Param("chain_id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid chain_id")
	}
	auctionID, err := strconv.ParseInt(c.Param("auction_id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid auction_id")
	}
	a, err := h.Store.GetAuction(c.Request().Context(), chainID, auctionID)
	if err != nil {
		return err
	}
	if a == nil {
		return echo.NewHTTPError(http.StatusNotFound, "auction not found")
	}
	return c.JSON(http.StatusOK, a)
}

func (h *MarketplaceHandler) dutchAuctions(c echo.Context) error {
	out, err := h.Store.ListDutchAuctions(c.Request().Context(), marketFilter(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"dutch_auctions": emptyOr(out)})
}

func (h *MarketplaceHandler) bundles(c echo.Context) error {
	out, err := h.Store.ListBundles(c.Request().Context(), marketFilter(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"bundles": emptyOr(out)})
}

func (h *MarketplaceHandler) portfolio(c echo.Context) error {
	address := strings.ToLower(c.Param("address"))
	if address == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "address required")
	}
	p, err := h.Store.GetPortfolio(c.Request().Context(), optInt64(c, "chain_id"), address)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *MarketplaceHandler) config(c echo.Context) error {
	chainID, err := strconv.ParseInt(c.Param("chain_id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid chain_id")
	}
	cfg, err := h.Store.GetMarketplaceConfig(c.Request().Context(), chainID)
	if err != nil {
		return err
	}
	if cfg == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no config for chain")
	}
	return c.JSON(http.StatusOK, cfg)
}

func (h *MarketplaceHandler) stats(c echo.Context) error {
	chainID := optInt64(c, "chain_id")
	key := fmt.Sprintf("mkt:stats:%v", deref(chainID))
	return respondCached(c, h.Cache, key, func() (interface{}, error) {
		return h.Store.GetMarketplaceStats(c.Request().Context(), chainID)
	})
}

func lowerOpt(v *string) *string {
	if v == nil {
		return nil
	}
	l := strings.ToLower(*v)
	return &l
}
