package server

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"discord-insight-go/internal/handlers"
)

// SetupRouter builds the gin engine with recovery, request logging and all
// application routes attached.
func SetupRouter(h *handlers.Handlers) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())
	h.SetupRoutes(router)
	return router
}

func requestLogger() gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		line := fmt.Sprintf("%s %s %s -> %d in %s from %s",
			param.TimeStamp.Format(time.RFC3339),
			param.Method,
			param.Path,
			param.StatusCode,
			param.Latency,
			param.ClientIP,
		)
		if param.ErrorMessage != "" {
			line += " error=" + param.ErrorMessage
		}
		return line + "\n"
	})
}
