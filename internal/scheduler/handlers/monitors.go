package handlers

import (
	"errors"
	"net/http"

	"PingTower/internal/scheduler/models"
	"PingTower/internal/scheduler/services"
	"PingTower/internal/scheduler/storage"
	"PingTower/pkg/urlutil"

	"github.com/gin-gonic/gin"
)

type intervalRequest struct {
	IntervalSeconds int  `json:"intervalSeconds"`
	Validate        bool `json:"validate"`
}

// bindInterval accepts an empty body as "no interval given".
func bindInterval(c *gin.Context) (intervalRequest, bool) {
	var req intervalRequest
	if c.Request.ContentLength == 0 {
		return req, true
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse("invalid_request", err.Error()))
		return req, false
	}
	return req, true
}

// GetMonitor returns the cached status and scheduling state of a monitor.
func (h *Handlers) GetMonitor(c *gin.Context) {
	id, ok := monitorID(c)
	if !ok {
		return
	}

	monitor, err := h.lifecycle.Monitor(c.Request.Context(), id)
	if errors.Is(err, storage.ErrMonitorNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse("not_found", "Monitor not found"))
		return
	}
	if err != nil {
		h.logger.Error("failed to get monitor", "monitor_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse("get_failed", "Failed to get monitor"))
		return
	}

	c.JSON(http.StatusOK, SuccessResponse("monitor_found", monitor))
}

// PutConfig stores the monitor definition the engine probes with.
func (h *Handlers) PutConfig(c *gin.Context) {
	id, ok := monitorID(c)
	if !ok {
		return
	}

	// omitted "enabled" means the monitor stays active
	cfg := models.MonitorConfig{Enabled: true}
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse("invalid_request", err.Error()))
		return
	}
	cfg.ID = id

	if err := cfg.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse("invalid_config", err.Error()))
		return
	}
	if err := urlutil.Validate(cfg.URL); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse("invalid_config", err.Error()))
		return
	}

	if err := h.configs.Save(c.Request.Context(), &cfg); err != nil {
		h.logger.Error("failed to save monitor config", "monitor_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse("save_failed", "Failed to save monitor config"))
		return
	}

	c.JSON(http.StatusOK, SuccessResponse("config_saved", gin.H{"monitor_id": id}))
}

// MonitorCreated schedules a new monitor. With validate set the stored config
// is probed first and the monitor is rejected unless the target is up.
func (h *Handlers) MonitorCreated(c *gin.Context) {
	id, ok := monitorID(c)
	if !ok {
		return
	}
	req, ok := bindInterval(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()

	if !req.Validate {
		if err := h.lifecycle.OnMonitorCreated(ctx, id, req.IntervalSeconds); err != nil {
			h.lifecycleError(c, id, "created", err)
			return
		}
		c.JSON(http.StatusCreated, SuccessResponse("monitor_scheduled", gin.H{"monitor_id": id}))
		return
	}

	outcome, err := h.lifecycle.ValidateAndCreate(ctx, id, req.IntervalSeconds)
	if errors.Is(err, services.ErrValidationFailed) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"success": false,
			"error":   "validation_failed",
			"message": err.Error(),
			"outcome": outcome,
		})
		return
	}
	if err != nil {
		h.lifecycleError(c, id, "created", err)
		return
	}

	c.JSON(http.StatusCreated, SuccessResponse("monitor_scheduled", gin.H{
		"monitor_id": id,
		"outcome":    outcome,
	}))
}

func (h *Handlers) MonitorUpdated(c *gin.Context) {
	id, ok := monitorID(c)
	if !ok {
		return
	}
	req, ok := bindInterval(c)
	if !ok {
		return
	}

	if err := h.lifecycle.OnMonitorUpdated(c.Request.Context(), id, req.IntervalSeconds); err != nil {
		h.lifecycleError(c, id, "updated", err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse("monitor_updated", gin.H{"monitor_id": id}))
}

func (h *Handlers) MonitorDeleted(c *gin.Context) {
	id, ok := monitorID(c)
	if !ok {
		return
	}

	if err := h.lifecycle.OnMonitorDeleted(c.Request.Context(), id); err != nil {
		h.lifecycleError(c, id, "deleted", err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse("monitor_removed", gin.H{"monitor_id": id}))
}

func (h *Handlers) EnableMonitor(c *gin.Context) {
	id, ok := monitorID(c)
	if !ok {
		return
	}

	if err := h.lifecycle.Enable(c.Request.Context(), id); err != nil {
		h.lifecycleError(c, id, "enable", err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse("monitor_enabled", gin.H{"monitor_id": id}))
}

func (h *Handlers) DisableMonitor(c *gin.Context) {
	id, ok := monitorID(c)
	if !ok {
		return
	}

	if err := h.lifecycle.Disable(c.Request.Context(), id); err != nil {
		h.lifecycleError(c, id, "disable", err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse("monitor_disabled", gin.H{"monitor_id": id}))
}

func (h *Handlers) lifecycleError(c *gin.Context, id int64, hook string, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidInterval):
		c.JSON(http.StatusBadRequest, ErrorResponse("invalid_interval", err.Error()))
	case errors.Is(err, urlutil.ErrInvalidURL):
		c.JSON(http.StatusBadRequest, ErrorResponse("invalid_url", err.Error()))
	case errors.Is(err, storage.ErrMonitorNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse("not_found", "Monitor config not found"))
	default:
		h.logger.Error("lifecycle hook failed", "hook", hook, "monitor_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse("lifecycle_failed", err.Error()))
	}
}
