package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/parking-lot-reservation/internal/booking"
	"github.com/iliyamo/parking-lot-reservation/internal/model"
	"github.com/iliyamo/parking-lot-reservation/internal/repository"
	"github.com/iliyamo/parking-lot-reservation/internal/service"
)

const defaultRadiusKm = 5

// PublicHandler serves the unauthenticated lot browsing endpoints and the
// price preview.
type PublicHandler struct {
	Lots     *repository.LotRepo
	Slots    *repository.SlotRepo
	Services *repository.ServiceRepo
	Bookings *repository.BookingRepo
	Svc      *service.BookingService
	Log      zerolog.Logger
}

func NewPublicHandler(lots *repository.LotRepo, slots *repository.SlotRepo, services *repository.ServiceRepo,
	bookings *repository.BookingRepo, svc *service.BookingService, log zerolog.Logger) *PublicHandler {
	if lots == nil || slots == nil || services == nil || bookings == nil || svc == nil {
		panic("nil dependency passed to NewPublicHandler")
	}
	return &PublicHandler{Lots: lots, Slots: slots, Services: services, Bookings: bookings, Svc: svc, Log: log}
}

// SearchLots handles GET /v1/lots. lat and lng switch to a radius search
// ordered by distance.
func (h *PublicHandler) SearchLots(c echo.Context) error {
	page, ps := paging(c)
	q := repository.LotSearchQuery{
		Text:     strings.TrimSpace(c.QueryParam("q")),
		City:     strings.TrimSpace(c.QueryParam("city")),
		Page:     page,
		PageSize: ps,
	}
	if v := strings.ToLower(strings.TrimSpace(c.QueryParam("vehicle_type"))); v != "" {
		q.VehicleType = model.VehicleType(v)
		if !q.VehicleType.Valid() {
			return badRequest(c, "unknown vehicle_type")
		}
	}
	latRaw, lngRaw := c.QueryParam("lat"), c.QueryParam("lng")
	if latRaw != "" || lngRaw != "" {
		lat, errLat := strconv.ParseFloat(latRaw, 64)
		lng, errLng := strconv.ParseFloat(lngRaw, 64)
		if errLat != nil || errLng != nil || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
			return badRequest(c, "lat and lng must be valid coordinates")
		}
		radius := float64(defaultRadiusKm)
		if raw := c.QueryParam("radius_km"); raw != "" {
			r, err := strconv.ParseFloat(raw, 64)
			if err != nil || r <= 0 || r > 100 {
				return badRequest(c, "radius_km must be in (0, 100]")
			}
			radius = r
		}
		q.Near = &repository.GeoPoint{Lat: lat, Lng: lng}
		q.RadiusKm = radius
	}

	hits, total, err := h.Lots.Search(c.Request().Context(), q)
	if err != nil {
		return fail(c, h.Log, err)
	}
	out := make([]lotResponse, 0, len(hits))
	for _, hit := range hits {
		out = append(out, toLotHitResponse(hit, q.Near != nil))
	}
	return c.JSON(http.StatusOK, list(out, total, page, ps))
}

// GetLot handles GET /v1/lots/:id. Inactive lots are not found.
func (h *PublicHandler) GetLot(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid lot id")
	}
	l, err := h.activeLot(c, id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toLotResponse(l))
}

// LotServices handles GET /v1/lots/:id/services.
func (h *PublicHandler) LotServices(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid lot id")
	}
	if _, err := h.activeLot(c, id); err != nil {
		return fail(c, h.Log, err)
	}
	svcs, err := h.Services.ListByLot(c.Request().Context(), id, true)
	if err != nil {
		return fail(c, h.Log, err)
	}
	out := make([]serviceResponse, 0, len(svcs))
	for _, s := range svcs {
		out = append(out, toServiceResponse(s))
	}
	return c.JSON(http.StatusOK, echo.Map{"data": out})
}

// Availability handles GET /v1/lots/:id/availability?start&end. It reports
// free capacity for the window and which named slots are taken.
func (h *PublicHandler) Availability(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid lot id")
	}
	start, err := queryTime(c, "start")
	if err != nil {
		return badRequest(c, err.Error())
	}
	end, err := queryTime(c, "end")
	if err != nil {
		return badRequest(c, err.Error())
	}
	if start.IsZero() || end.IsZero() {
		return badRequest(c, "start and end are required")
	}
	if !end.After(start) {
		return fail(c, h.Log, booking.ErrInvalidWindow)
	}
	l, err := h.activeLot(c, id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	ctx := c.Request().Context()
	booked, taken, err := h.Bookings.Occupancy(ctx, id, start, end)
	if err != nil {
		return fail(c, h.Log, err)
	}
	slots, err := h.Slots.ListByLot(ctx, id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	takenSet := make(map[string]bool, len(taken))
	for _, code := range taken {
		takenSet[code] = true
	}
	type slotState struct {
		slotResponse
		Available bool `json:"available"`
	}
	states := make([]slotState, 0, len(slots))
	for _, s := range slots {
		states = append(states, slotState{slotResponse: toSlotResponse(s), Available: s.IsActive && !takenSet[s.Code]})
	}
	available := l.TotalSlots - booked
	if available < 0 {
		available = 0
	}
	return c.JSON(http.StatusOK, echo.Map{
		"lot_id":      l.ID,
		"start":       start,
		"end":         end,
		"total_slots": l.TotalSlots,
		"booked":      booked,
		"available":   available,
		"slots":       states,
	})
}

// Quote handles POST /v1/quote.
func (h *PublicHandler) Quote(c echo.Context) error {
	var req quoteRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.LotID == 0 {
		return badRequest(c, "lot_id is required")
	}
	vt := model.VehicleType(strings.ToLower(strings.TrimSpace(req.VehicleType)))
	if vt != "" && !vt.Valid() {
		return badRequest(c, "unknown vehicle_type")
	}
	q, err := h.Svc.Quote(c.Request().Context(), service.QuoteRequest{
		LotID:       req.LotID,
		StartTime:   req.StartTime.UTC(),
		EndTime:     req.EndTime.UTC(),
		VehicleType: vt,
		Services:    selections(req.Services),
		Discount:    req.Discount,
	})
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, q)
}

func (h *PublicHandler) activeLot(c echo.Context, id uint64) (*model.ParkingLot, error) {
	l, err := h.Lots.GetByID(c.Request().Context(), id)
	if err != nil {
		return nil, err
	}
	if !l.IsActive {
		return nil, repository.ErrNotFound
	}
	return l, nil
}
