package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"discord-insight-go/internal/models"
	"discord-insight-go/internal/query"
)

// GetUsersAcrossServers returns users active in at least min_servers servers
func (h *Handlers) GetUsersAcrossServers(c *gin.Context) {
	minServers := queryInt(c, "min_servers", 2)

	users, err := h.queries.UsersAcrossServers(c.Request.Context(), minServers)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "query_error",
			Message: "Failed to fetch cross-server users",
			Code:    http.StatusInternalServerError,
		})
		return
	}
	c.JSON(http.StatusOK, users)
}

// GetUserMessages returns one user's messages with server/channel context,
// newest first. Without a days parameter the full history is returned.
func (h *Handlers) GetUserMessages(c *gin.Context) {
	userID, ok := parseInt64Param(c, "id")
	if !ok {
		return
	}

	var w *query.Window
	if days := queryInt(c, "days", 0); days > 0 {
		window := query.LastDays(days)
		w = &window
	}

	messages, err := h.queries.UserMessageContext(c.Request.Context(), userID, w)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "query_error",
			Message: "Failed to fetch user messages",
			Code:    http.StatusInternalServerError,
		})
		return
	}
	c.JSON(http.StatusOK, messages)
}

// FindUsers looks up users by current or historical username
func (h *Handlers) FindUsers(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "validation_error",
			Message: "Missing name parameter",
			Code:    http.StatusBadRequest,
		})
		return
	}

	users, err := h.queries.FindUsers(c.Request.Context(), name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "query_error",
			Message: "Failed to find users",
			Code:    http.StatusInternalServerError,
		})
		return
	}
	c.JSON(http.StatusOK, users)
}
