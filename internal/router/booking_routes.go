package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parking-lot-reservation/internal/handler"
	"github.com/iliyamo/parking-lot-reservation/internal/middleware"
	"github.com/iliyamo/parking-lot-reservation/internal/model"
)

// RegisterBookings registers USER endpoints. Writes are rate limited per
// user when a limiter is given.
func RegisterBookings(e *echo.Echo, h *handler.BookingHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	// Order matters: JWTAuth must populate the role before RequireRole,
	// and the limiter keys on the authenticated user.
	mw := []echo.MiddlewareFunc{
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleUser),
	}
	if limit != nil {
		mw = append(mw, limit)
	}
	g := e.Group("/v1", mw...)

	// Lifecycle of a booking, in the order a driver uses them.
	g.POST("/bookings", h.Create)
	g.GET("/my-bookings", h.ListMine)
	g.GET("/bookings/:id", h.Get)
	g.GET("/bookings/:id/refund", h.RefundPreview)
	g.POST("/bookings/:id/cancel", h.Cancel)
	g.POST("/bookings/:id/pay", h.Pay)
	g.POST("/bookings/:id/extend", h.Extend)
	g.POST("/bookings/:id/rating", h.Rate)
}
