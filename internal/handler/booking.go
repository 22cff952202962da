package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/parking-lot-reservation/internal/model"
	"github.com/iliyamo/parking-lot-reservation/internal/repository"
	"github.com/iliyamo/parking-lot-reservation/internal/service"
)

// BookingHandler serves a user's own bookings. JWT and role checks are done
// by middleware; every lookup is scoped to the caller so foreign bookings
// read as not found.
type BookingHandler struct {
	Svc      *service.BookingService
	Bookings *repository.BookingRepo
	Log      zerolog.Logger
}

// NewBookingHandler panics on missing dependencies so a wiring mistake
// fails at startup rather than on the first request.
func NewBookingHandler(svc *service.BookingService, bookings *repository.BookingRepo, log zerolog.Logger) *BookingHandler {
	if svc == nil || bookings == nil {
		panic("nil dependency passed to NewBookingHandler")
	}
	return &BookingHandler{Svc: svc, Bookings: bookings, Log: log}
}

// Create handles POST /v1/bookings. The body names the lot, an optional
// slot code, the vehicle, the window and any add-on services. Times may
// carry any offset; they are stored in UTC. On success the booking is
// returned in pending state with its price snapshot, awaiting payment.
func (h *BookingHandler) Create(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req bookingRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	// Shape checks only; business rules live in the service.
	if req.LotID == 0 {
		return badRequest(c, "lot_id is required")
	}
	if req.StartTime.IsZero() || req.EndTime.IsZero() {
		return badRequest(c, "start_time and end_time are required")
	}
	b, err := h.Svc.Create(c.Request().Context(), service.CreateRequest{
		UserID:   uid,
		LotID:    req.LotID,
		SlotCode: req.SlotCode,
		Vehicle: model.Vehicle{
			Type:         model.VehicleType(strings.ToLower(strings.TrimSpace(req.Vehicle.Type))),
			LicensePlate: req.Vehicle.LicensePlate,
			Model:        strings.TrimSpace(req.Vehicle.Model),
			Color:        strings.TrimSpace(req.Vehicle.Color),
		},
		StartTime: req.StartTime.UTC(),
		EndTime:   req.EndTime.UTC(),
		Services:  selections(req.Services),
	})
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, toBookingResponse(b))
}

// ListMine handles GET /v1/my-bookings?status=&page=&page_size=. status is
// a comma separated list of booking states; newest bookings come first.
func (h *BookingHandler) ListMine(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	statuses, err := statusFilter(c.QueryParam("status"))
	if err != nil {
		return badRequest(c, err.Error())
	}
	page, ps := paging(c)
	bs, total, err := h.Bookings.List(c.Request().Context(), repository.BookingFilter{
		UserID: uid, Statuses: statuses, Page: page, PageSize: ps,
	})
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, list(toBookingResponses(bs), total, page, ps))
}

// Get handles GET /v1/bookings/:id.
func (h *BookingHandler) Get(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	b, err := h.Svc.Get(c.Request().Context(), c.Param("id"), uid)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toBookingResponse(b))
}

// RefundPreview handles GET /v1/bookings/:id/refund. It reports whether the
// caller may still cancel and how much would come back, without changing
// anything.
func (h *BookingHandler) RefundPreview(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	can, amount, err := h.Svc.RefundPreview(c.Request().Context(), c.Param("id"), uid)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"can_cancel": can, "refund_amount": amount})
}

// Cancel handles POST /v1/bookings/:id/cancel.
func (h *BookingHandler) Cancel(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	// The reason is optional, so a missing body is not an error.
	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.Bind(&body)
	b, err := h.Svc.Cancel(c.Request().Context(), c.Param("id"), uid, body.Reason)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toBookingResponse(b))
}

// Pay handles POST /v1/bookings/:id/pay with {"method": "..."}. Electronic
// methods complete at once; cash confirms the booking and waits for the
// landlord to collect at the gate.
func (h *BookingHandler) Pay(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var body struct {
		Method string `json:"method"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid body")
	}
	method := model.PaymentMethod(strings.ToLower(strings.TrimSpace(body.Method)))
	if method == "" {
		return badRequest(c, "method is required")
	}
	b, err := h.Svc.Pay(c.Request().Context(), c.Param("id"), uid, method)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toBookingResponse(b))
}

// Extend handles POST /v1/bookings/:id/extend with {"end_time": "..."}. Only
// a checked-in booking can be extended, and only forward in time.
func (h *BookingHandler) Extend(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var body struct {
		EndTime time.Time `json:"end_time"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid body")
	}
	if body.EndTime.IsZero() {
		return badRequest(c, "end_time is required")
	}
	b, err := h.Svc.Extend(c.Request().Context(), c.Param("id"), uid, body.EndTime)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toBookingResponse(b))
}

// Rate handles POST /v1/bookings/:id/rating.
func (h *BookingHandler) Rate(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var body struct {
		Score  int    `json:"score"`
		Review string `json:"review"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid body")
	}
	b, err := h.Svc.Rate(c.Request().Context(), c.Param("id"), uid, body.Score, body.Review)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toBookingResponse(b))
}
