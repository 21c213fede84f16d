package middleware

import (
	"context"
	"strings"
	"time"

	"nullbr-search-service/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Metrics returns a middleware that records API metrics. A nil recorder
// disables it.
func Metrics(metrics *repository.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metrics == nil || !strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.Next()
			return
		}

		start := time.Now()

		c.Next()

		latency := float64(time.Since(start).Microseconds()) / 1000
		if err := metrics.RecordAPICall(context.Background(), routePath(c), c.Writer.Status(), latency); err != nil {
			log.Warn().Err(err).Msg("Failed to record metrics")
		}
	}
}

// routePath groups requests by route template, e.g. /api/v1/sessions/:userid
func routePath(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return "unmatched"
}
