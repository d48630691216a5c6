package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetStats returns queue depth, overdue count and engine counters.
func (h *Handlers) GetStats(c *gin.Context) {
	stats, err := h.scheduler.Stats(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to collect scheduler stats", "error", err)
		c.JSON(http.StatusServiceUnavailable, ErrorResponse("stats_failed", err.Error()))
		return
	}

	c.JSON(http.StatusOK, SuccessResponse("scheduler_stats", stats))
}
