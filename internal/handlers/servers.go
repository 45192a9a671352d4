package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"discord-insight-go/internal/models"
	"discord-insight-go/internal/query"
)

const (
	defaultDays  = 30
	defaultLimit = 10
)

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_id",
			Message: "Invalid " + name + " parameter",
			Code:    http.StatusBadRequest,
		})
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// GetServers returns all tracked servers
func (h *Handlers) GetServers(c *gin.Context) {
	servers, err := h.queries.AllServers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch servers",
			Code:    http.StatusInternalServerError,
		})
		return
	}
	c.JSON(http.StatusOK, servers)
}

// GetServerSummary returns cached activity totals for a server
func (h *Handlers) GetServerSummary(c *gin.Context) {
	serverID, ok := parseInt64Param(c, "id")
	if !ok {
		return
	}
	days := queryInt(c, "days", defaultDays)

	params := map[string]interface{}{"server_id": serverID, "days": days}
	raw, err := h.cache.GetOrCompute(c.Request.Context(), "server_activity", params, h.config.Cache.TTL(), func(ctx context.Context) (interface{}, error) {
		return h.queries.ServerSummary(ctx, serverID, query.LastDays(days))
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "query_error",
			Message: "Failed to compute server summary",
			Code:    http.StatusInternalServerError,
		})
		return
	}
	c.Data(http.StatusOK, "application/json", raw)
}

// GetTopUsers returns the most active users in a server
func (h *Handlers) GetTopUsers(c *gin.Context) {
	serverID, ok := parseInt64Param(c, "id")
	if !ok {
		return
	}
	days := queryInt(c, "days", defaultDays)
	limit := queryInt(c, "limit", defaultLimit)

	users, err := h.queries.TopContributors(c.Request.Context(), serverID, query.LastDays(days), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "query_error",
			Message: "Failed to fetch top users",
			Code:    http.StatusInternalServerError,
		})
		return
	}
	c.JSON(http.StatusOK, users)
}

// GetTopChannels returns the most active channels in a server
func (h *Handlers) GetTopChannels(c *gin.Context) {
	serverID, ok := parseInt64Param(c, "id")
	if !ok {
		return
	}
	days := queryInt(c, "days", defaultDays)
	limit := queryInt(c, "limit", defaultLimit)

	channels, err := h.queries.TopChannels(c.Request.Context(), serverID, query.LastDays(days), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "query_error",
			Message: "Failed to fetch top channels",
			Code:    http.StatusInternalServerError,
		})
		return
	}
	c.JSON(http.StatusOK, channels)
}

// GetServerHealth returns month-over-month membership changes for a server
func (h *Handlers) GetServerHealth(c *gin.Context) {
	serverID, ok := parseInt64Param(c, "id")
	if !ok {
		return
	}
	changes, err := h.queries.ServerHealth(c.Request.Context(), serverID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "query_error",
			Message: "Failed to fetch server health",
			Code:    http.StatusInternalServerError,
		})
		return
	}
	c.JSON(http.StatusOK, changes)
}

// GetChannelHistory returns one page of channel history in creation order.
// The response carries a cursor the client passes back to fetch the next page.
func (h *Handlers) GetChannelHistory(c *gin.Context) {
	serverID, ok := parseInt64Param(c, "id")
	if !ok {
		return
	}
	channelID, ok := parseInt64Param(c, "channel_id")
	if !ok {
		return
	}
	days := queryInt(c, "days", defaultDays)
	chunkSize := queryInt(c, "chunk_size", 0)

	pager := h.queries.ChannelHistory(serverID, channelID, query.LastDays(days), chunkSize)
	if c.Query("include_deleted") == "true" {
		pager.IncludeDeleted()
	}
	if after := c.Query("after"); after != "" {
		cursor, err := query.ParseCursor(after)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "invalid_cursor",
				Message: "Invalid after parameter",
				Code:    http.StatusBadRequest,
			})
			return
		}
		pager.Resume(cursor)
	}

	messages, err := pager.Next(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "query_error",
			Message: "Failed to fetch channel history",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	resp := gin.H{"messages": messages}
	if len(messages) > 0 {
		resp["cursor"] = pager.Cursor().String()
	}
	c.JSON(http.StatusOK, resp)
}
