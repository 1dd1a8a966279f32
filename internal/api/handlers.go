// Package api is the HTTP surface over the reservation engine. Handlers
// bind JSON, call the engine and map its typed errors to status codes; no
// scheduling logic lives here.
package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"adsched/internal/booking"
	"adsched/internal/cache"
	"adsched/internal/models"
	"adsched/internal/report"
	"adsched/internal/slots"
	"adsched/internal/sweeper"
)

// LocationStore manages the known advertising locations.
type LocationStore interface {
	ListActiveLocations(ctx context.Context) ([]models.Location, error)
	GetLocationByName(ctx context.Context, name string) (*models.Location, error)
	SetLocationActive(ctx context.Context, name string, active bool) error
}

// Handler groups the engine components behind the HTTP routes.
type Handler struct {
	service   *booking.Service
	finder    *slots.Finder
	reporter  *report.Reporter
	sweeper   *sweeper.Sweeper
	locations LocationStore
	slotCache *cache.SlotCache
	logger    zerolog.Logger
}

// NewHandler wires a handler over the engine components.
func NewHandler(service *booking.Service, finder *slots.Finder, reporter *report.Reporter, sw *sweeper.Sweeper, locations LocationStore, slotCache *cache.SlotCache, logger zerolog.Logger) *Handler {
	return &Handler{
		service:   service,
		finder:    finder,
		reporter:  reporter,
		sweeper:   sw,
		locations: locations,
		slotCache: slotCache,
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

type reservationRequest struct {
	LocationName string    `json:"location_name"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Comment      string    `json:"comment"`
	Status       string    `json:"status,omitempty"`
}

// CreateReservation handles POST /v1/reservations.
func (h *Handler) CreateReservation(c echo.Context) error {
	var body reservationRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	r, err := h.service.Create(c.Request().Context(), booking.CreateParams{
		OwnerID:       ownerID(c),
		LocationName:  body.LocationName,
		Start:         body.Start,
		End:           body.End,
		Comment:       body.Comment,
		InitialStatus: body.Status,
	})
	if err != nil {
		return h.writeError(c, err)
	}
	h.slotCache.InvalidateLocation(c.Request().Context(), r.LocationName)
	return c.JSON(http.StatusCreated, r)
}

// GetReservation handles GET /v1/reservations/:id.
func (h *Handler) GetReservation(c echo.Context) error {
	r, err := h.service.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, r)
}

type reservationPatch struct {
	LocationName *string    `json:"location_name,omitempty"`
	Start        *time.Time `json:"start,omitempty"`
	End          *time.Time `json:"end,omitempty"`
	Comment      *string    `json:"comment,omitempty"`
}

// UpdateReservation handles PATCH /v1/reservations/:id.
func (h *Handler) UpdateReservation(c echo.Context) error {
	var body reservationPatch
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	ctx := c.Request().Context()
	// Best-effort lookup of the stored location so a move invalidates both
	// sides of the cache. NotFound falls through to the update's own 404.
	prev, err := h.service.Get(ctx, c.Param("id"))
	if err != nil && !errors.Is(err, booking.ErrNotFound) {
		h.logger.Debug().Err(err).Str("reservation_id", c.Param("id")).
			Msg("pre-update lookup failed, skipping old-location invalidation")
	}

	r, err := h.service.Update(ctx, c.Param("id"), ownerID(c), booking.UpdateParams{
		LocationName: body.LocationName,
		Start:        body.Start,
		End:          body.End,
		Comment:      body.Comment,
	})
	if err != nil {
		return h.writeError(c, err)
	}
	h.slotCache.InvalidateLocation(ctx, r.LocationName)
	if prev != nil && prev.LocationName != r.LocationName {
		// Moving to another location frees slots at the old one.
		h.slotCache.InvalidateLocation(ctx, prev.LocationName)
	}
	return c.JSON(http.StatusOK, r)
}

// DeleteReservation handles DELETE /v1/reservations/:id.
func (h *Handler) DeleteReservation(c echo.Context) error {
	r, err := h.service.Delete(c.Request().Context(), c.Param("id"), ownerID(c))
	if err != nil {
		return h.writeError(c, err)
	}
	h.slotCache.InvalidateLocation(c.Request().Context(), r.LocationName)
	return c.JSON(http.StatusOK, echo.Map{"deleted": r})
}

// TransitionReservation handles POST /v1/reservations/:id/transition.
func (h *Handler) TransitionReservation(c echo.Context) error {
	var body struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	ctx := c.Request().Context()
	res, err := h.service.Transition(ctx, c.Param("id"), models.Status(body.Status), ownerID(c))
	if err != nil {
		return h.writeError(c, err)
	}
	h.invalidateIfCompleted(ctx, c.Param("id"), res.New)
	return c.JSON(http.StatusOK, res)
}

// invalidateIfCompleted drops cached availability once a reservation stops
// blocking its slot.
func (h *Handler) invalidateIfCompleted(ctx context.Context, id string, status models.Status) {
	if status != models.StatusCompleted {
		return
	}
	if r, err := h.service.Get(ctx, id); err == nil {
		h.slotCache.InvalidateLocation(ctx, r.LocationName)
	}
}

// CompleteReservation handles POST /v1/reservations/:id/complete.
func (h *Handler) CompleteReservation(c echo.Context) error {
	ctx := c.Request().Context()
	res, err := h.service.Complete(ctx, c.Param("id"), ownerID(c))
	if err != nil {
		return h.writeError(c, err)
	}
	h.invalidateIfCompleted(ctx, c.Param("id"), res.New)
	return c.JSON(http.StatusOK, res)
}

// ListMyReservations handles GET /v1/reservations.
func (h *Handler) ListMyReservations(c echo.Context) error {
	out, err := h.service.ListByOwner(c.Request().Context(), ownerID(c))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"reservations": out})
}

// ListLocations handles GET /v1/locations.
func (h *Handler) ListLocations(c echo.Context) error {
	out, err := h.locations.ListActiveLocations(c.Request().Context())
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"locations": out})
}

// locationParam decodes the :name path segment; location names carry spaces.
func locationParam(c echo.Context) string {
	raw := c.Param("name")
	if name, err := url.PathUnescape(raw); err == nil {
		return name
	}
	return raw
}

// ListLocationReservations handles GET /v1/locations/:name/reservations.
func (h *Handler) ListLocationReservations(c echo.Context) error {
	out, err := h.service.ListByLocation(c.Request().Context(), locationParam(c))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"reservations": out})
}

// SetLocationActive handles PATCH /v1/admin/locations/:name. Deactivated
// locations disappear from browsing but their reservations stay untouched.
func (h *Handler) SetLocationActive(c echo.Context) error {
	var body struct {
		Active *bool `json:"active"`
	}
	if err := c.Bind(&body); err != nil || body.Active == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "active must be set"})
	}

	ctx := c.Request().Context()
	name := locationParam(c)
	loc, err := h.locations.GetLocationByName(ctx, name)
	if err != nil {
		return h.writeError(c, err)
	}
	if loc == nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "location not found"})
	}
	if err := h.locations.SetLocationActive(ctx, name, *body.Active); err != nil {
		return h.writeError(c, err)
	}
	loc.IsActive = *body.Active
	return c.JSON(http.StatusOK, loc)
}

// AvailableSlots handles GET /v1/locations/:name/slots?date=YYYY-MM-DD&minutes=60.
func (h *Handler) AvailableSlots(c echo.Context) error {
	location := locationParam(c)
	day, err := time.Parse("2006-01-02", c.QueryParam("date"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "date must be YYYY-MM-DD"})
	}
	minutes := 60
	if raw := c.QueryParam("minutes"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid minutes"})
		}
		minutes = parsed
	}

	ctx := c.Request().Context()
	if cached, ok := h.slotCache.Get(ctx, location, day, minutes); ok {
		return c.JSON(http.StatusOK, echo.Map{"slots": cached, "cached": true})
	}

	free, err := h.finder.AvailableSlots(ctx, location, day, minutes)
	if err != nil {
		return h.writeError(c, err)
	}
	h.slotCache.Set(ctx, location, day, minutes, free)
	return c.JSON(http.StatusOK, echo.Map{"slots": free})
}

// LocationOccupancy handles GET /v1/locations/:name/occupancy?from=...&to=...
func (h *Handler) LocationOccupancy(c echo.Context) error {
	from, to, err := parseRange(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	occ, err := h.reporter.LocationOccupancy(c.Request().Context(), locationParam(c), from, to)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, occ)
}

// LocationOccupancyXLSX handles GET /v1/locations/:name/occupancy.xlsx.
func (h *Handler) LocationOccupancyXLSX(c echo.Context) error {
	from, to, err := parseRange(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	data, err := h.reporter.ExportXLSX(c.Request().Context(), locationParam(c), from, to)
	if err != nil {
		return h.writeError(c, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="occupancy.xlsx"`)
	return c.Blob(http.StatusOK,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

// RunSweep handles POST /v1/admin/sweep, a manual auto-advance trigger.
func (h *Handler) RunSweep(c echo.Context) error {
	res, err := h.sweeper.Run(c.Request().Context(), time.Now())
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Health handles GET /healthz.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

func parseRange(c echo.Context) (time.Time, time.Time, error) {
	from, err := time.Parse("2006-01-02", c.QueryParam("from"))
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("from must be YYYY-MM-DD")
	}
	to, err := time.Parse("2006-01-02", c.QueryParam("to"))
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("to must be YYYY-MM-DD")
	}
	return from, to, nil
}

// writeError maps engine errors to transport responses. Conflict payloads
// carry the colliding reservations so the caller can see why the slot was
// rejected.
func (h *Handler) writeError(c echo.Context, err error) error {
	var (
		validationErr *booking.ValidationError
		conflictErr   *booking.ConflictError
		transitionErr *booking.TransitionError
	)
	switch {
	case errors.Is(err, booking.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
	case errors.Is(err, booking.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, booking.ErrAlreadyCompleted):
		return c.JSON(http.StatusConflict, echo.Map{
			"error": "reservation already completed",
			"code":  "already_completed",
		})
	case errors.As(err, &validationErr):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": validationErr.Error()})
	case errors.As(err, &conflictErr):
		return c.JSON(http.StatusConflict, echo.Map{
			"error":     "interval conflicts with existing reservations",
			"code":      "conflict",
			"conflicts": conflictErr.Conflicts,
		})
	case errors.As(err, &transitionErr):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{
			"error": transitionErr.Error(),
			"code":  "invalid_transition",
		})
	default:
		h.logger.Error().Err(err).Str("path", c.Path()).Msg("request failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}
