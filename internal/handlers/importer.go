package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"discord-insight-go/internal/importer"
	"discord-insight-go/internal/models"
)

type importRunRequest struct {
	Path   string `json:"path"`
	DryRun bool   `json:"dry_run"`
}

// RunImport imports export files from a path, defaulting to the configured
// input directory. With dry_run set, files are parsed and validated but
// nothing is written.
func (h *Handlers) RunImport(c *gin.Context) {
	var req importRunRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "validation_error",
				Message: "Invalid request body",
				Code:    http.StatusBadRequest,
			})
			return
		}
	}
	path := req.Path
	if path == "" {
		path = h.config.Importer.InputDir
	}

	var (
		stats importer.Stats
		err   error
	)
	if req.DryRun {
		stats, err = h.importer.DryRun(path)
	} else {
		stats, err = h.importer.ImportPath(c.Request.Context(), path)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "import_error",
			Message: err.Error(),
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, models.ImportRunResponse{
		Files:   stats.Files,
		New:     stats.New,
		Updated: stats.Updated,
		Skipped: stats.Skipped,
		Errors:  stats.Errors,
	})
}
