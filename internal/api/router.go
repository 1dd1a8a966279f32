package api

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// RouterConfig carries the settings the router needs from main.
type RouterConfig struct {
	JWTSecret         string
	RequestsPerSecond float64
	Burst             int
}

// NewRouter builds the echo instance with all routes registered. Everything
// under /v1 except location browsing requires a bearer token.
func NewRouter(h *Handler, cfg RouterConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())

	e.GET("/healthz", h.Health)

	limit := RateLimit(cfg.RequestsPerSecond, cfg.Burst)
	v1 := e.Group("/v1")

	// Read-only location views are public; the limiter keys them by IP.
	public := v1.Group("", limit)
	public.GET("/locations", h.ListLocations)
	public.GET("/locations/:name/slots", h.AvailableSlots)
	public.GET("/locations/:name/occupancy", h.LocationOccupancy)
	public.GET("/locations/:name/occupancy.xlsx", h.LocationOccupancyXLSX)

	// Auth runs before the limiter so protected routes are keyed per owner.
	auth := v1.Group("", JWTAuth(cfg.JWTSecret), limit)
	auth.POST("/reservations", h.CreateReservation)
	auth.GET("/reservations", h.ListMyReservations)
	auth.GET("/reservations/:id", h.GetReservation)
	auth.PATCH("/reservations/:id", h.UpdateReservation)
	auth.DELETE("/reservations/:id", h.DeleteReservation)
	auth.POST("/reservations/:id/transition", h.TransitionReservation)
	auth.POST("/reservations/:id/complete", h.CompleteReservation)
	auth.GET("/locations/:name/reservations", h.ListLocationReservations)
	auth.POST("/admin/sweep", h.RunSweep)
	auth.PATCH("/admin/locations/:name", h.SetLocationActive)

	return e
}
