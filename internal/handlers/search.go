package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"discord-insight-go/internal/models"
	"discord-insight-go/internal/query"
)

// SearchMessages runs a substring search over message content
func (h *Handlers) SearchMessages(c *gin.Context) {
	term := c.Query("q")
	if term == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "validation_error",
			Message: "Missing q parameter",
			Code:    http.StatusBadRequest,
		})
		return
	}

	opts := query.SearchOptions{
		Limit:          queryInt(c, "limit", 100),
		IncludeDeleted: c.Query("include_deleted") == "true",
	}
	if raw := c.Query("server_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "invalid_id",
				Message: "Invalid server_id parameter",
				Code:    http.StatusBadRequest,
			})
			return
		}
		opts.ServerID = &id
	}

	results, err := h.queries.SearchMessages(c.Request.Context(), term, opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "query_error",
			Message: "Failed to search messages",
			Code:    http.StatusInternalServerError,
		})
		return
	}
	c.JSON(http.StatusOK, results)
}
