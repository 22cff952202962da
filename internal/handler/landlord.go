package handler

import (
	"bytes"
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/parking-lot-reservation/internal/export"
	"github.com/iliyamo/parking-lot-reservation/internal/model"
	"github.com/iliyamo/parking-lot-reservation/internal/repository"
	"github.com/iliyamo/parking-lot-reservation/internal/service"
)

// LandlordHandler lets landlords manage their lots and operate the gates.
// Every lot-scoped call checks ownership first; foreign lots are 403.
type LandlordHandler struct {
	Lots     *repository.LotRepo
	Slots    *repository.SlotRepo
	Services *repository.ServiceRepo
	Bookings *repository.BookingRepo
	Svc      *service.BookingService
	Log      zerolog.Logger
	// Purge drops cached public responses after catalog writes. Optional.
	Purge func(ctx context.Context) error
}

// NewLandlordHandler panics on missing dependencies. Purge is left nil and
// set by the caller when a response cache is in front of the public routes.
func NewLandlordHandler(lots *repository.LotRepo, slots *repository.SlotRepo, services *repository.ServiceRepo,
	bookings *repository.BookingRepo, svc *service.BookingService, log zerolog.Logger) *LandlordHandler {
	if lots == nil || slots == nil || services == nil || bookings == nil || svc == nil {
		panic("nil dependency passed to NewLandlordHandler")
	}
	return &LandlordHandler{Lots: lots, Slots: slots, Services: services, Bookings: bookings, Svc: svc, Log: log}
}

// purge invalidates cached catalog responses. A failure only means stale
// reads until the cache TTL expires, so it is logged and the write stands.
func (h *LandlordHandler) purge(c echo.Context) {
	if h.Purge == nil {
		return
	}
	if err := h.Purge(c.Request().Context()); err != nil {
		h.Log.Warn().Err(err).Msg("cache purge failed")
	}
}

// ownedLot resolves :id to a lot owned by the caller. On failure the error
// response has already been written; callers check for a nil lot and
// return the error as is. A lot owned by someone else is 403 rather than
// 404 so landlords can tell a typo from a permissions problem.
func (h *LandlordHandler) ownedLot(c echo.Context) (*model.ParkingLot, uint64, error) {
	uid, err := getUserID(c)
	if err != nil {
		return nil, 0, unauthorized(c)
	}
	id, ok := paramID(c, "id")
	if !ok {
		return nil, 0, badRequest(c, "invalid lot id")
	}
	l, err := h.Lots.GetForOwner(c.Request().Context(), id, uid)
	if err != nil {
		return nil, 0, fail(c, h.Log, err)
	}
	return l, uid, nil
}

// CreateLot handles POST /v1/landlord/lots.
func (h *LandlordHandler) CreateLot(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req lotRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	// Defaults for fields a minimal request may omit. The night window only
	// matters once a night rate is set.
	l := &model.ParkingLot{OwnerID: uid, IsActive: true, NightStartHour: 22, NightEndHour: 6}
	if err := req.apply(l, true); err != nil {
		return badRequest(c, err.Error())
	}
	if err := h.Lots.Create(c.Request().Context(), l); err != nil {
		return fail(c, h.Log, err)
	}
	h.purge(c)
	return c.JSON(http.StatusCreated, toLotResponse(l))
}

// ListLots handles GET /v1/landlord/lots.
func (h *LandlordHandler) ListLots(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	lots, err := h.Lots.ListByOwner(c.Request().Context(), uid)
	if err != nil {
		return fail(c, h.Log, err)
	}
	out := make([]lotResponse, 0, len(lots))
	for _, l := range lots {
		out = append(out, toLotResponse(l))
	}
	return c.JSON(http.StatusOK, echo.Map{"data": out})
}

// GetLot handles GET /v1/landlord/lots/:id, inactive lots included.
func (h *LandlordHandler) GetLot(c echo.Context) error {
	l, _, err := h.ownedLot(c)
	if l == nil {
		return err
	}
	return c.JSON(http.StatusOK, toLotResponse(l))
}

// ReplaceLot handles PUT /v1/landlord/lots/:id.
func (h *LandlordHandler) ReplaceLot(c echo.Context) error { return h.updateLot(c, true) }

// PatchLot handles PATCH /v1/landlord/lots/:id.
func (h *LandlordHandler) PatchLot(c echo.Context) error { return h.updateLot(c, false) }

// updateLot backs both PUT and PATCH. full demands every required field;
// otherwise only the fields present in the body change.
func (h *LandlordHandler) updateLot(c echo.Context, full bool) error {
	l, _, err := h.ownedLot(c)
	if l == nil {
		return err
	}
	var req lotRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if err := req.apply(l, full); err != nil {
		return badRequest(c, err.Error())
	}
	if err := h.Lots.Update(c.Request().Context(), l); err != nil {
		return fail(c, h.Log, err)
	}
	h.purge(c)
	return c.JSON(http.StatusOK, toLotResponse(l))
}

// DeleteLot handles DELETE /v1/landlord/lots/:id. Lots with booking history
// are deactivated instead of removed; lots with live bookings are 409.
func (h *LandlordHandler) DeleteLot(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid lot id")
	}
	if err := h.Lots.Delete(c.Request().Context(), id, uid); err != nil {
		return fail(c, h.Log, err)
	}
	h.purge(c)
	return c.NoContent(http.StatusNoContent)
}

// AddSlots handles POST /v1/landlord/lots/:id/slots. Named slots may not
// outnumber the lot's total_slots.
func (h *LandlordHandler) AddSlots(c echo.Context) error {
	l, _, err := h.ownedLot(c)
	if l == nil {
		return err
	}
	var req slotsRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	slots, err := req.toModel()
	if err != nil {
		return badRequest(c, err.Error())
	}
	ctx := c.Request().Context()
	existing, err := h.Slots.ListByLot(ctx, l.ID)
	if err != nil {
		return fail(c, h.Log, err)
	}
	// Capacity is enforced from total_slots, so naming more slots than
	// that would let the map disagree with the counter.
	if len(existing)+len(slots) > l.TotalSlots {
		return badRequest(c, "lot has only "+strconv.Itoa(l.TotalSlots)+" slots")
	}
	if err := h.Slots.CreateMany(ctx, l.ID, slots); err != nil {
		return fail(c, h.Log, err)
	}
	out := make([]slotResponse, 0, len(slots))
	for i := range slots {
		slots[i].IsActive = true
		out = append(out, toSlotResponse(&slots[i]))
	}
	return c.JSON(http.StatusCreated, echo.Map{"data": out})
}

// ListSlots handles GET /v1/landlord/lots/:id/slots.
func (h *LandlordHandler) ListSlots(c echo.Context) error {
	l, _, err := h.ownedLot(c)
	if l == nil {
		return err
	}
	slots, err := h.Slots.ListByLot(c.Request().Context(), l.ID)
	if err != nil {
		return fail(c, h.Log, err)
	}
	out := make([]slotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, toSlotResponse(s))
	}
	return c.JSON(http.StatusOK, echo.Map{"data": out})
}

// AddService handles POST /v1/landlord/lots/:id/services.
func (h *LandlordHandler) AddService(c echo.Context) error {
	l, _, err := h.ownedLot(c)
	if l == nil {
		return err
	}
	var req serviceRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	s := &model.Service{LotID: l.ID, IsActive: true}
	if err := req.apply(s, true); err != nil {
		return badRequest(c, err.Error())
	}
	if err := h.Services.Create(c.Request().Context(), s); err != nil {
		return fail(c, h.Log, err)
	}
	h.purge(c)
	return c.JSON(http.StatusCreated, toServiceResponse(s))
}

// ownedService resolves :id to a service on a lot owned by the caller.
func (h *LandlordHandler) ownedService(c echo.Context) (*model.Service, error) {
	uid, err := getUserID(c)
	if err != nil {
		return nil, unauthorized(c)
	}
	id, ok := paramID(c, "id")
	if !ok {
		return nil, badRequest(c, "invalid service id")
	}
	ctx := c.Request().Context()
	s, err := h.Services.GetByID(ctx, id)
	if err != nil {
		return nil, fail(c, h.Log, err)
	}
	// Services carry no owner of their own; ownership comes from the lot.
	if _, err := h.Lots.GetForOwner(ctx, s.LotID, uid); err != nil {
		return nil, fail(c, h.Log, err)
	}
	return s, nil
}

// UpdateService handles PUT /v1/landlord/services/:id. Bookings keep the
// name and price they were made with.
func (h *LandlordHandler) UpdateService(c echo.Context) error {
	s, err := h.ownedService(c)
	if s == nil {
		return err
	}
	var req serviceRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if err := req.apply(s, false); err != nil {
		return badRequest(c, err.Error())
	}
	if err := h.Services.Update(c.Request().Context(), s); err != nil {
		return fail(c, h.Log, err)
	}
	h.purge(c)
	return c.JSON(http.StatusOK, toServiceResponse(s))
}

// RetireService handles DELETE /v1/landlord/services/:id. The row is kept
// inactive because past bookings reference it.
func (h *LandlordHandler) RetireService(c echo.Context) error {
	s, err := h.ownedService(c)
	if s == nil {
		return err
	}
	if err := h.Services.Retire(c.Request().Context(), s.ID); err != nil {
		return fail(c, h.Log, err)
	}
	h.purge(c)
	return c.NoContent(http.StatusNoContent)
}

// lotFilter reads the status, from and to query parameters shared by the
// booking list and its export.
func (h *LandlordHandler) lotFilter(c echo.Context, lotID uint64) (repository.BookingFilter, error) {
	statuses, err := statusFilter(c.QueryParam("status"))
	if err != nil {
		return repository.BookingFilter{}, err
	}
	from, err := queryTime(c, "from")
	if err != nil {
		return repository.BookingFilter{}, err
	}
	to, err := queryTime(c, "to")
	if err != nil {
		return repository.BookingFilter{}, err
	}
	return repository.BookingFilter{LotID: lotID, Statuses: statuses, From: from, To: to}, nil
}

// LotBookings handles GET /v1/landlord/lots/:id/bookings.
func (h *LandlordHandler) LotBookings(c echo.Context) error {
	l, _, err := h.ownedLot(c)
	if l == nil {
		return err
	}
	f, err := h.lotFilter(c, l.ID)
	if err != nil {
		return badRequest(c, err.Error())
	}
	f.Page, f.PageSize = paging(c)
	bs, total, err := h.Bookings.List(c.Request().Context(), f)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, list(toBookingResponses(bs), total, f.Page, f.PageSize))
}

// ExportBookings handles GET /v1/landlord/lots/:id/bookings/export and
// returns every matching booking as an xlsx attachment.
func (h *LandlordHandler) ExportBookings(c echo.Context) error {
	l, _, err := h.ownedLot(c)
	if l == nil {
		return err
	}
	f, err := h.lotFilter(c, l.ID)
	if err != nil {
		return badRequest(c, err.Error())
	}
	// No paging: the export holds every booking that matches.
	bs, _, err := h.Bookings.List(c.Request().Context(), f)
	if err != nil {
		return fail(c, h.Log, err)
	}
	var buf bytes.Buffer
	if err := export.WriteBookings(&buf, l.Name, bs); err != nil {
		return fail(c, h.Log, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		`attachment; filename="`+export.Filename(l.ID, h.Svc.Now())+`"`)
	return c.Blob(http.StatusOK, export.ContentType, buf.Bytes())
}

// gateRequest is the optional body of the gate endpoints.
type gateRequest struct {
	GateID string `json:"gate_id"`
}

// Entry handles POST /v1/landlord/bookings/:id/entry. The gate attendant
// scans the booking; the service checks that the caller owns its lot.
func (h *LandlordHandler) Entry(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req gateRequest
	_ = c.Bind(&req)
	b, err := h.Svc.CheckIn(c.Request().Context(), c.Param("id"), uid, req.GateID)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toBookingResponse(b))
}

// Exit handles POST /v1/landlord/bookings/:id/exit. Overtime past the
// booked end is priced on the way out.
func (h *LandlordHandler) Exit(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req gateRequest
	_ = c.Bind(&req)
	b, err := h.Svc.CheckOut(c.Request().Context(), c.Param("id"), uid, req.GateID)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toBookingResponse(b))
}

// Collect handles POST /v1/landlord/bookings/:id/collect.
func (h *LandlordHandler) Collect(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	b, err := h.Svc.Collect(c.Request().Context(), c.Param("id"), uid)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toBookingResponse(b))
}
