package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"PingTower/internal/scheduler/dependencies"
	"PingTower/internal/scheduler/services"
	"PingTower/internal/scheduler/storage"

	"github.com/gin-gonic/gin"
)

type Handlers struct {
	scheduler *services.Scheduler
	lifecycle *services.LifecycleService
	configs   storage.MonitorConfigStore
	logger    *slog.Logger
}

func NewHandlers(container *dependencies.Container) *Handlers {
	return New(container.Scheduler, container.Lifecycle, container.Configs, container.Logger.With("component", "http"))
}

func New(scheduler *services.Scheduler, lifecycle *services.LifecycleService, configs storage.MonitorConfigStore, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		scheduler: scheduler,
		lifecycle: lifecycle,
		configs:   configs,
		logger:    logger,
	}
}

// monitorID parses the :id path parameter and writes a 400 when it is invalid.
func monitorID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse("invalid_id", "Monitor id must be a positive integer"))
		return 0, false
	}
	return id, true
}
