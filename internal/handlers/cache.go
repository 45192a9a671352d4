package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"discord-insight-go/internal/models"
)

type invalidateRequest struct {
	QueryType string                 `json:"query_type" binding:"required"`
	Params    map[string]interface{} `json:"params"`
}

// InvalidateCache drops cached results for a query type, or for one exact
// parameter set when params is given.
func (h *Handlers) InvalidateCache(c *gin.Context) {
	var req invalidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid request body",
			Code:    http.StatusBadRequest,
		})
		return
	}

	var err error
	if req.Params != nil {
		err = h.cache.Invalidate(c.Request.Context(), req.QueryType, req.Params)
	} else {
		err = h.cache.InvalidateType(c.Request.Context(), req.QueryType)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to invalidate cache",
			Code:    http.StatusInternalServerError,
		})
		return
	}
	c.Status(http.StatusNoContent)
}
