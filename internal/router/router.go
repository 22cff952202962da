package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/iliyamo/parking-lot-reservation/internal/handler"
	"github.com/iliyamo/parking-lot-reservation/internal/middleware"
	"github.com/iliyamo/parking-lot-reservation/internal/model"
)

// Handlers groups everything New mounts.
type Handlers struct {
	Health   *handler.HealthHandler
	Auth     *handler.AuthHandler
	Public   *handler.PublicHandler
	Bookings *handler.BookingHandler
	Landlord *handler.LandlordHandler
	Admin    *handler.AdminHandler
}

// Options carries the cross-cutting middleware. Cache and RateLimit may be
// nil, in which case the routes are mounted without them.
type Options struct {
	JWTSecret string
	Log       zerolog.Logger
	Cache     echo.MiddlewareFunc
	RateLimit echo.MiddlewareFunc
}

// New builds the Echo instance with every route of the API.
func New(h Handlers, opt Options) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(opt.Log))
	e.Use(middleware.Metrics())
	e.Use(echomw.Recover())

	RegisterRoutes(e, h.Health)
	RegisterAuth(e, h.Auth, opt.JWTSecret)
	RegisterPublic(e, h.Public, opt.Cache)
	RegisterBookings(e, h.Bookings, opt.JWTSecret, opt.RateLimit)
	RegisterLandlord(e, h.Landlord, opt.JWTSecret)
	RegisterAdmin(e, h.Admin, opt.JWTSecret)
	return e
}

// RegisterRoutes registers health checks and the prometheus scrape endpoint.
func RegisterRoutes(e *echo.Echo, h *handler.HealthHandler) {
	e.GET("/healthz", h.Health)
	e.GET("/readyz", h.Ready)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterAuth registers the token endpoints under /v1/auth and the profile
// endpoints, which accept any signed-in role.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)              // rotates the refresh token
	g.POST("/refresh-access", a.RefreshAccess) // keeps the refresh token
	g.POST("/logout", a.Logout)

	e.POST("/v1/logout", a.Logout)

	me := e.Group("/v1/me",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleUser, model.RoleLandlord, model.RoleAdmin),
	)
	me.GET("", a.Me)
	me.PATCH("", a.UpdateMe)
}

// RegisterPublic registers guest browsing. Reads go through the response
// cache when one is configured.
func RegisterPublic(e *echo.Echo, p *handler.PublicHandler, cache echo.MiddlewareFunc) {
	var mw []echo.MiddlewareFunc
	if cache != nil {
		mw = append(mw, cache)
	}
	e.GET("/v1/lots", p.SearchLots, mw...)
	e.GET("/v1/lots/:id", p.GetLot, mw...)
	e.GET("/v1/lots/:id/services", p.LotServices, mw...)
	e.GET("/v1/lots/:id/availability", p.Availability) // live, never cached
	e.POST("/v1/quote", p.Quote)
}
