package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/parking-lot-reservation/internal/booking"
	"github.com/iliyamo/parking-lot-reservation/internal/middleware"
	"github.com/iliyamo/parking-lot-reservation/internal/model"
	"github.com/iliyamo/parking-lot-reservation/internal/payment"
	"github.com/iliyamo/parking-lot-reservation/internal/repository"
	"github.com/iliyamo/parking-lot-reservation/internal/service"
)

// errorStatus maps domain errors to HTTP status codes. Entries are checked
// in order with errors.Is, so wrapped errors match too. Anything not listed
// is an internal error.
var errorStatus = []struct {
	err    error
	status int
}{
	{booking.ErrInvalidWindow, http.StatusBadRequest},
	{booking.ErrInvalidDiscount, http.StatusBadRequest},
	{booking.ErrUnknownLot, http.StatusNotFound},
	{booking.ErrUnknownService, http.StatusNotFound},
	{booking.ErrVehicleNotSupported, http.StatusUnprocessableEntity},
	{booking.ErrIllegalTransition, http.StatusConflict},
	{booking.ErrNotCancellable, http.StatusConflict},

	{repository.ErrNotFound, http.StatusNotFound},
	{repository.ErrForbidden, http.StatusForbidden},
	{repository.ErrConflict, http.StatusConflict},
	{repository.ErrSlotUnavailable, http.StatusConflict},
	{repository.ErrLotFull, http.StatusConflict},
	{repository.ErrConcurrentModification, http.StatusConflict},
	{repository.ErrEmailExists, http.StatusConflict},

	{service.ErrStartInPast, http.StatusBadRequest},
	{service.ErrInvalidVehicle, http.StatusBadRequest},
	{service.ErrInvalidRating, http.StatusBadRequest},
	{service.ErrUnknownSlot, http.StatusNotFound},
	{service.ErrAlreadyPaid, http.StatusConflict},
	{service.ErrNothingToCollect, http.StatusConflict},
	{service.ErrAlreadyRated, http.StatusConflict},

	{payment.ErrUnsupportedMethod, http.StatusBadRequest},
	{payment.ErrInvalidAmount, http.StatusBadRequest},
}

// statusOf returns the HTTP status for err, 500 when it is not a known
// domain error.
func statusOf(err error) int {
	for _, m := range errorStatus {
		if errors.Is(err, m.err) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}

// fail writes err as {"error": ...}. Unknown errors are logged and hidden
// behind a generic message.
func fail(c echo.Context, log zerolog.Logger, err error) error {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).
			Str("method", c.Request().Method).
			Str("path", c.Request().URL.Path).
			Msg("request failed")
		return c.JSON(status, echo.Map{"error": "internal error"})
	}
	return c.JSON(status, echo.Map{"error": err.Error()})
}

// badRequest writes a 400 with msg. It is used for input that never reached
// the service layer.
func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}

// getUserID extracts the user_id set by JWTAuth. JWTAuth stores a uint64;
// the other numeric and string forms are accepted so handlers can be
// exercised with a hand-built context. Zero is never a valid id.
func getUserID(c echo.Context) (uint64, error) {
	switch t := c.Get(middleware.CtxUserID).(type) {
	case uint64:
		if t != 0 {
			return t, nil
		}
	case int:
		if t > 0 {
			return uint64(t), nil
		}
	case int64:
		if t > 0 {
			return uint64(t), nil
		}
	case float64:
		if t > 0 {
			return uint64(t), nil
		}
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil && n != 0 {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

// unauthorized writes a 401. Behind JWTAuth this only happens when the
// context was not populated, which points at a routing mistake.
func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
}

// paramID parses a positive numeric path parameter.
func paramID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id != 0
}

// paging reads page and page_size with defaults 1 and 20, capped at 100.
func paging(c echo.Context) (int, int) {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	ps, _ := strconv.Atoi(c.QueryParam("page_size"))
	if ps < 1 {
		ps = 20
	}
	if ps > 100 {
		ps = 100
	}
	return page, ps
}

// statusFilter parses a comma separated status list such as
// "confirmed,no-show". Entries are case-insensitive and blanks are skipped;
// an empty result means no filter.
func statusFilter(raw string) ([]model.BookingStatus, error) {
	var out []model.BookingStatus
	for _, p := range strings.Split(raw, ",") {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		st := model.BookingStatus(p)
		if !booking.ValidStatus(st) {
			return nil, errors.New("unknown status: " + p)
		}
		out = append(out, st)
	}
	return out, nil
}

// queryTime parses an optional RFC3339 query parameter into UTC. A missing
// parameter yields the zero time, which the repositories treat as
// unbounded.
func queryTime(c echo.Context, name string) (time.Time, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errors.New(name + " must be RFC3339")
	}
	return t.UTC(), nil
}

// list wraps one page of items in the paginated envelope every list
// endpoint returns.
func list[T any](items []T, total int64, page, pageSize int) echo.Map {
	// Encode an empty page as [] rather than null.
	if items == nil {
		items = []T{}
	}
	return echo.Map{"data": items, "total": total, "page": page, "page_size": pageSize}
}
