package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// HealthHandler answers liveness and readiness checks from the platform
// (load balancer, orchestrator).
type HealthHandler struct {
	DB    *sql.DB
	Redis *redis.Client // nil when redis is not configured
}

// NewHealthHandler wires a HealthHandler. rdb may be nil.
func NewHealthHandler(db *sql.DB, rdb *redis.Client) *HealthHandler {
	return &HealthHandler{DB: db, Redis: rdb}
}

// Health reports that the process is up. It touches no dependency so a
// slow database never gets the process restarted.
func (h *HealthHandler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// Ready pings the database and, when configured, redis. Any failure is a
// 503 with the per-dependency result.
func (h *HealthHandler) Ready(c echo.Context) error {
	// Shorter than a typical check interval.
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := echo.Map{"db": "ok", "redis": "disabled"}
	if err := h.DB.PingContext(ctx); err != nil {
		checks["db"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if h.Redis != nil {
		if err := h.Redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			checks["redis"] = "ok"
		}
	}
	return c.JSON(status, checks)
}
