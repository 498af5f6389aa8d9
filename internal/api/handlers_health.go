// handlers_health.go - Health check handlers
package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version  string
	started  time.Time
	sessions SessionManager
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, sessions SessionManager) HealthHandler {
	return &HealthHandlerImpl{
		version:  version,
		started:  time.Now(),
		sessions: sessions,
	}
}

// HandleHealth returns server health status
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	resp := map[string]interface{}{
		"status":        "ok",
		"version":       h.version,
		"uptimeSeconds": int64(time.Since(h.started).Seconds()),
	}
	if h.sessions != nil {
		resp["sessions"] = h.sessions.Count()
	}
	return c.JSON(http.StatusOK, resp)
}
