package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/moltlabs/molt-indexer/internal/store"
)

// AgentsHandler serves the agent registry read API. Identities maps chain id
// to the identity registry address, for resolving an agent's market entries.
type AgentsHandler struct {
	Store      *store.Store
	Cache      *Cache
	Identities map[int64]string
}

func (h *AgentsHandler) Register(g *echo.Group) {
	g.GET("/agents", h.list)
	g.GET("/agents/:chain_id/:agent_id", h.get)
	g.GET("/agents/:chain_id/:agent_id/feedbacks", h.feedbacks)
	g.GET("/agents/:chain_id/:agent_id/reputation-history", h.reputationHistory)
	g.GET("/agents/:chain_id/:agent_id/activities", h.activities)
	g.GET("/agents/:chain_id/:agent_id/marketplace", h.market)
	g.GET("/leaderboard", h.leaderboard)
	g.GET("/activities", h.globalActivities)
}

func (h *AgentsHandler) list(c echo.Context) error {
	f := store.AgentFilter{
		ChainID:  optInt64(c, "chain_id"),
		Search:   optStr(c, "search"),
		Category: optStr(c, "category"),
		Sort:     c.QueryParam("sort"),
		Limit:    limitParam(c, 50, 200),
		Offset:   offsetParam(c),
	}
	key := fmt.Sprintf("agents:%v:%v:%v:%s:%d:%d",
		deref(f.ChainID), derefs(f.Search), derefs(f.Category), f.Sort, f.Limit, f.Offset)
	return respondCached(c, h.Cache, key, func() (interface{}, error) {
		items, total, err := h.Store.ListAgents(c.Request().Context(), f)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"agents": items, "total": total}, nil
	})
}

func (h *AgentsHandler) get(c echo.Context) error {
	chainID, agentID, err := pathIDs(c)
	if err != nil {
		return err
	}
	agent, err := h.Store.GetAgent(c.Request().Context(), agentID, chainID)
	if err != nil {
		return err
	}
	if agent == nil {
		return echo.NewHTTPError(http.StatusNotFound, "agent not found")
	}
	return c.JSON(http.StatusOK, agent)
}

func (h *AgentsHandler) feedbacks(c echo.Context) error {
	chainID, agentID, err := pathIDs(c)
	if err != nil {
		return err
	}
	out, err := h.Store.AgentFeedbacks(c.Request().Context(), agentID, chainID, c.QueryParam("range"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"feedbacks": emptyOr(out)})
}

func (h *AgentsHandler) reputationHistory(c echo.Context) error {
	chainID, agentID, err := pathIDs(c)
	if err != nil {
		return err
	}
	out, err := h.Store.ReputationHistory(c.Request().Context(), agentID, chainID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"history": emptyOr(out)})
}

func (h *AgentsHandler) activities(c echo.Context) error {
	chainID, agentID, err := pathIDs(c)
	if err != nil {
		return err
	}
	out, err := h.Store.AgentActivities(c.Request().Context(), agentID, chainID,
		c.QueryParam("category"), limitParam(c, 50, 200))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"activities": emptyOr(out)})
}

func (h *AgentsHandler) market(c echo.Context) error {
	chainID, agentID, err := pathIDs(c)
	if err != nil {
		return err
	}
	identity, ok := h.Identities[chainID]
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown chain")
	}
	out, err := h.Store.GetAgentMarket(c.Request().Context(), chainID, strings.ToLower(identity), agentID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AgentsHandler) leaderboard(c echo.Context) error {
	chainID := optInt64(c, "chain_id")
	category := optStr(c, "category")
	limit := limitParam(c, 100, 500)
	key := fmt.Sprintf("leaderboard:%v:%v:%d", deref(chainID), derefs(category), limit)
	return respondCached(c, h.Cache, key, func() (interface{}, error) {
		entries, err := h.Store.Leaderboard(c.Request().Context(), chainID, category, limit)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"leaderboard": emptyOr(entries)}, nil
	})
}

func (h *AgentsHandler) globalActivities(c echo.Context) error {
	out, err := h.Store.GlobalActivities(c.Request().Context(), optInt64(c, "chain_id"),
		c.QueryParam("category"), limitParam(c, 50, 200))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"activities": emptyOr(out)})
}

func pathIDs(c echo.Context) (chainID, agentID int64, err error) {
	chainID, err = strconv.ParseInt(c.Param("chain_id"), 10, 64)
	if err != nil {
		return 0, 0, echo.NewHTTPError(http.StatusBadRequest, "invalid chain_id")
	}
	agentID, err = strconv.ParseInt(c.Param("agent_id"), 10, 64)
	if err != nil {
		return 0, 0, echo.NewHTTPError(http.StatusBadRequest, "invalid agent_id")
	}
	return chainID, agentID, nil
}

func optInt64(c echo.Context, name string) *int64 {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

func optStr(c echo.Context, name string) *string {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil
	}
	return &raw
}

func limitParam(c echo.Context, def, max int64) int64 {
	raw := c.QueryParam("limit")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}

func offsetParam(c echo.Context) int64 {
	v, err := strconv.ParseInt(c.QueryParam("offset"), 10, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// emptyOr keeps list responses as [] instead of null.
func emptyOr[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

func deref(v *int64) interface{} {
	if v == nil {
		return ""
	}
	return *v
}

func derefs(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
