package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/parking-lot-reservation/internal/booking"
	"github.com/iliyamo/parking-lot-reservation/internal/middleware"
	"github.com/iliyamo/parking-lot-reservation/internal/model"
	"github.com/iliyamo/parking-lot-reservation/internal/repository"
	"github.com/iliyamo/parking-lot-reservation/internal/service"
)

func ctxFor(target string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	return e.NewContext(req, httptest.NewRecorder())
}

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{booking.ErrInvalidWindow, http.StatusBadRequest},
		{fmt.Errorf("price: %w", booking.ErrUnknownService), http.StatusNotFound},
		{booking.ErrVehicleNotSupported, http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: cancel on completed", booking.ErrIllegalTransition), http.StatusConflict},
		{repository.ErrForbidden, http.StatusForbidden},
		{repository.ErrLotFull, http.StatusConflict},
		{service.ErrStartInPast, http.StatusBadRequest},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusOf(tc.err), tc.err.Error())
	}
}

func TestPaging(t *testing.T) {
	page, ps := paging(ctxFor("/x"))
	assert.Equal(t, 1, page)
	assert.Equal(t, 20, ps)

	page, ps = paging(ctxFor("/x?page=3&page_size=500"))
	assert.Equal(t, 3, page)
	assert.Equal(t, 100, ps)

	page, ps = paging(ctxFor("/x?page=-1&page_size=abc"))
	assert.Equal(t, 1, page)
	assert.Equal(t, 20, ps)
}

func TestStatusFilter(t *testing.T) {
	got, err := statusFilter(" Confirmed, no-show ,")
	require.NoError(t, err)
	assert.Equal(t, []model.BookingStatus{model.BookingConfirmed, model.BookingNoShow}, got)

	got, err = statusFilter("")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = statusFilter("parked")
	assert.Error(t, err)
}

func TestGetUserID(t *testing.T) {
	c := ctxFor("/x")
	_, err := getUserID(c)
	assert.Error(t, err)

	c.Set(middleware.CtxUserID, uint64(7))
	id, err := getUserID(c)
	require.NoError(t, err)
	assert.EqualValues(t, 7, id)

	c.Set(middleware.CtxUserID, "12")
	id, err = getUserID(c)
	require.NoError(t, err)
	assert.EqualValues(t, 12, id)
}

func TestQueryTime(t *testing.T) {
	c := ctxFor("/x?from=2030-01-01T10:00:00%2B05:30&bad=yesterday")
	from, err := queryTime(c, "from")
	require.NoError(t, err)
	assert.Equal(t, "2030-01-01T04:30:00Z", from.Format("2006-01-02T15:04:05Z07:00"))

	missing, err := queryTime(c, "to")
	require.NoError(t, err)
	assert.True(t, missing.IsZero())

	_, err = queryTime(c, "bad")
	assert.Error(t, err)
}

func TestLotRequestApply(t *testing.T) {
	name, city, slots, rate := "Mall", "Pune", 10, int64(40)
	l := &model.ParkingLot{NightStartHour: 22, NightEndHour: 6}

	assert.Error(t, lotRequest{Name: &name}.apply(l, true), "full write needs required fields")

	types := []string{"car", "bike"}
	require.NoError(t, lotRequest{Name: &name, City: &city, TotalSlots: &slots, DayRate: &rate, VehicleTypes: &types}.apply(l, true))
	assert.Equal(t, "Mall", l.Name)
	assert.Equal(t, []model.VehicleType{model.VehicleCar, model.VehicleBike}, l.VehicleTypes)

	zero := 0
	assert.Error(t, lotRequest{TotalSlots: &zero}.apply(l, false))
}

func TestSlotsRequestToModel(t *testing.T) {
	slots, err := slotsRequest{Slots: []slotItem{{Code: " a1 ", Floor: "G"}, {Code: "B2", VehicleType: "Bike"}}}.toModel()
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, "A1", slots[0].Code)
	assert.Equal(t, model.VehicleCar, slots[0].VehicleType)
	assert.Equal(t, model.VehicleBike, slots[1].VehicleType)

	_, err = slotsRequest{Slots: []slotItem{{Code: "A1"}, {Code: "a1"}}}.toModel()
	assert.Error(t, err)

	_, err = slotsRequest{}.toModel()
	assert.Error(t, err)
}
