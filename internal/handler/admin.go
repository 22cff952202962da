package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/parking-lot-reservation/internal/booking"
	"github.com/iliyamo/parking-lot-reservation/internal/model"
	"github.com/iliyamo/parking-lot-reservation/internal/repository"
	"github.com/iliyamo/parking-lot-reservation/internal/service"
)

// revenueStatuses count toward gross revenue in Stats.
var revenueStatuses = map[model.BookingStatus]bool{
	model.BookingConfirmed: true,
	model.BookingActive:    true,
	model.BookingExtended:  true,
	model.BookingCompleted: true,
}

// AdminHandler exposes user management, booking overrides and platform
// statistics.
type AdminHandler struct {
	Users    *repository.UserRepo
	Bookings *repository.BookingRepo
	Svc      *service.BookingService
	Log      zerolog.Logger
}

func NewAdminHandler(users *repository.UserRepo, bookings *repository.BookingRepo, svc *service.BookingService, log zerolog.Logger) *AdminHandler {
	if users == nil || bookings == nil || svc == nil {
		panic("nil dependency passed to NewAdminHandler")
	}
	return &AdminHandler{Users: users, Bookings: bookings, Svc: svc, Log: log}
}

// ListUsers handles GET /v1/admin/users.
func (h *AdminHandler) ListUsers(c echo.Context) error {
	page, ps := paging(c)
	users, total, err := h.Users.List(c.Request().Context(), page, ps)
	if err != nil {
		return fail(c, h.Log, err)
	}
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	return c.JSON(http.StatusOK, list(out, total, page, ps))
}

// PatchUser handles PATCH /v1/admin/users/:id for role and is_active.
func (h *AdminHandler) PatchUser(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid user id")
	}
	var req adminUserRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx := c.Request().Context()
	u, err := h.Users.GetByID(ctx, id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	if req.Role != nil {
		role := strings.ToUpper(strings.TrimSpace(*req.Role))
		switch role {
		case model.RoleUser, model.RoleLandlord, model.RoleAdmin:
			u.Role = role
		default:
			return badRequest(c, "role must be USER, LANDLORD or ADMIN")
		}
	}
	if req.IsActive != nil {
		u.IsActive = *req.IsActive
	}
	if err := h.Users.SetRoleAndActive(ctx, id, u.Role, u.IsActive); err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toUserResponse(u))
}

// ListBookings handles GET /v1/admin/bookings?status&from&to.
func (h *AdminHandler) ListBookings(c echo.Context) error {
	statuses, err := statusFilter(c.QueryParam("status"))
	if err != nil {
		return badRequest(c, err.Error())
	}
	from, err := queryTime(c, "from")
	if err != nil {
		return badRequest(c, err.Error())
	}
	to, err := queryTime(c, "to")
	if err != nil {
		return badRequest(c, err.Error())
	}
	page, ps := paging(c)
	bs, total, err := h.Bookings.List(c.Request().Context(), repository.BookingFilter{
		Statuses: statuses, From: from, To: to, Page: page, PageSize: ps,
	})
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, list(toBookingResponses(bs), total, page, ps))
}

// Transition handles POST /v1/admin/bookings/:id/transition with
// {"event": "...", "reason": "..."}.
func (h *AdminHandler) Transition(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var body struct {
		Event  string `json:"event"`
		Reason string `json:"reason"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid body")
	}
	ev, err := booking.ParseEvent(strings.ToLower(strings.TrimSpace(body.Event)))
	if err != nil {
		return badRequest(c, err.Error())
	}
	b, err := h.Svc.AdminTransition(c.Request().Context(), c.Param("id"), uid, ev, body.Reason)
	if err != nil {
		return fail(c, h.Log, err)
	}
	h.Log.Info().Str("booking_id", b.ID).Str("event", string(ev)).Uint64("admin_id", uid).Msg("admin transition")
	return c.JSON(http.StatusOK, toBookingResponse(b))
}

// Stats handles GET /v1/admin/stats.
func (h *AdminHandler) Stats(c echo.Context) error {
	ctx := c.Request().Context()
	totals, err := h.Bookings.Totals(ctx)
	if err != nil {
		return fail(c, h.Log, err)
	}
	refunded, err := h.Bookings.RefundedTotal(ctx)
	if err != nil {
		return fail(c, h.Log, err)
	}
	var count, revenue int64
	for _, t := range totals {
		count += t.Count
		if revenueStatuses[t.Status] {
			revenue += t.Amount
		}
	}
	if totals == nil {
		totals = []repository.StatusTotals{}
	}
	return c.JSON(http.StatusOK, echo.Map{
		"bookings":  count,
		"by_status": totals,
		"revenue":   revenue,
		"refunded":  refunded,
		"currency":  h.Svc.Calculator().Currency(),
	})
}
