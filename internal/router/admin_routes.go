package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parking-lot-reservation/internal/handler"
	"github.com/iliyamo/parking-lot-reservation/internal/middleware"
	"github.com/iliyamo/parking-lot-reservation/internal/model"
)

// RegisterAdmin registers ADMIN endpoints under /v1/admin.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin),
	)
	// Account management.
	g.GET("/users", h.ListUsers)
	g.PATCH("/users/:id", h.PatchUser)
	// Booking overrides; transitions still go through the state machine.
	g.GET("/bookings", h.ListBookings)
	g.POST("/bookings/:id/transition", h.Transition)
	g.GET("/stats", h.Stats)
}
