package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parking-lot-reservation/internal/handler"
	"github.com/iliyamo/parking-lot-reservation/internal/middleware"
	"github.com/iliyamo/parking-lot-reservation/internal/model"
)

// RegisterLandlord registers LANDLORD endpoints under /v1/landlord.
func RegisterLandlord(e *echo.Echo, h *handler.LandlordHandler, jwtSecret string) {
	g := e.Group(
		"/v1/landlord",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleLandlord),
	)

	// ---- Lots ----
	g.POST("/lots", h.CreateLot)
	g.GET("/lots", h.ListLots)
	g.GET("/lots/:id", h.GetLot)
	g.PUT("/lots/:id", h.ReplaceLot)
	g.PATCH("/lots/:id", h.PatchLot)
	g.DELETE("/lots/:id", h.DeleteLot)

	// ---- Slots ----
	g.POST("/lots/:id/slots", h.AddSlots)
	g.GET("/lots/:id/slots", h.ListSlots)

	// ---- Services ----
	g.POST("/lots/:id/services", h.AddService)
	g.PUT("/services/:id", h.UpdateService)
	g.DELETE("/services/:id", h.RetireService)

	// ---- Bookings ----
	g.GET("/lots/:id/bookings", h.LotBookings)
	g.GET("/lots/:id/bookings/export", h.ExportBookings)
	g.POST("/bookings/:id/entry", h.Entry)
	g.POST("/bookings/:id/exit", h.Exit)
	g.POST("/bookings/:id/collect", h.Collect)
}
