package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/parking-lot-reservation/internal/booking"
	"github.com/iliyamo/parking-lot-reservation/internal/config"
	"github.com/iliyamo/parking-lot-reservation/internal/database"
	"github.com/iliyamo/parking-lot-reservation/internal/export"
	"github.com/iliyamo/parking-lot-reservation/internal/handler"
	"github.com/iliyamo/parking-lot-reservation/internal/middleware"
	"github.com/iliyamo/parking-lot-reservation/internal/notify"
	"github.com/iliyamo/parking-lot-reservation/internal/payment"
	"github.com/iliyamo/parking-lot-reservation/internal/queue"
	"github.com/iliyamo/parking-lot-reservation/internal/repository"
	"github.com/iliyamo/parking-lot-reservation/internal/service"
)

const testSecret = "test-secret"

var clock = time.Date(2030, 1, 1, 8, 0, 0, 0, time.UTC)

type app struct {
	e     *echo.Echo
	users *repository.UserRepo
}

func newApp(t *testing.T) *app {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db, "sqlite3"))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	log := zerolog.Nop()
	cfg := config.Config{JWTSecret: testSecret, AccessTTLMin: 15, RefreshTTLDays: 7, BcryptCost: bcrypt.MinCost}
	cacheCfg := config.CacheConfig{
		Enabled: true, Methods: map[string]bool{http.MethodGet: true}, TTL: time.Minute,
		KeyStrategy: "route_query", Prefix: "test:cache", MaxBodyBytes: 1 << 20,
	}
	rlCfg := config.RateLimitConfig{
		Enabled: true, Capacity: 100, RefillTokens: 1, RefillInterval: time.Second,
		TTL: time.Minute, KeyStrategy: "ip_user_route", Prefix: "test:rl",
	}

	users := repository.NewUserRepo(db)
	lots := repository.NewLotRepo(db, "sqlite3")
	slots := repository.NewSlotRepo(db)
	services := repository.NewServiceRepo(db)
	bookings := repository.NewBookingRepo(db, "sqlite3")

	notifier := service.NewNotifier(bookings, users, log, notify.NewLog(log))
	svc := service.NewBookingService(service.BookingDeps{
		DB: db, Lots: lots, Slots: slots, Services: services, Bookings: bookings,
		Calculator: booking.NewCalculator(18, "INR"),
		Payments:   payment.NewSimulator(),
		Events:     queue.Direct{Handle: notifier.Handle},
		Log:        log,
		Now:        func() time.Time { return clock },
	})

	landlord := handler.NewLandlordHandler(lots, slots, services, bookings, svc, log)
	landlord.Purge = func(ctx context.Context) error { return middleware.PurgeCache(ctx, cacheCfg, rdb) }

	e := New(Handlers{
		Health:   handler.NewHealthHandler(db, rdb),
		Auth:     handler.NewAuthHandler(cfg, users, repository.NewTokenRepo(db), log),
		Public:   handler.NewPublicHandler(lots, slots, services, bookings, svc, log),
		Bookings: handler.NewBookingHandler(svc, bookings, log),
		Landlord: landlord,
		Admin:    handler.NewAdminHandler(users, bookings, svc, log),
	}, Options{
		JWTSecret: testSecret,
		Log:       log,
		Cache:     middleware.NewRedisCache(cacheCfg, rdb),
		RateLimit: middleware.NewTokenBucket(rlCfg, rdb, log),
	})
	return &app{e: e, users: users}
}

func (a *app) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type tokens struct {
	Access struct {
		Token string `json:"token"`
	} `json:"access"`
}

func (a *app) register(t *testing.T, email, role string) string {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/v1/auth/register", "", map[string]string{
		"email": email, "password": "password1", "name": "Test", "role": role,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[tokens](t, rec).Access.Token
}

type idBody struct {
	ID     json.RawMessage `json:"id"`
	Status string          `json:"status"`
}

func (b idBody) str() string {
	var s string
	if json.Unmarshal(b.ID, &s) == nil {
		return s
	}
	return string(b.ID)
}

func TestHealthAndMetrics(t *testing.T) {
	a := newApp(t)

	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/healthz", "", nil).Code)

	rec := a.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"db":"ok","redis":"ok"}`, rec.Body.String())

	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/metrics", "", nil).Code)
}

func TestRoleGuards(t *testing.T) {
	a := newApp(t)
	user := a.register(t, "driver@example.com", "USER")
	owner := a.register(t, "owner@example.com", "LANDLORD")

	assert.Equal(t, http.StatusUnauthorized, a.do(t, http.MethodGet, "/v1/my-bookings", "", nil).Code)
	assert.Equal(t, http.StatusForbidden, a.do(t, http.MethodGet, "/v1/landlord/lots", user, nil).Code)
	assert.Equal(t, http.StatusForbidden, a.do(t, http.MethodGet, "/v1/my-bookings", owner, nil).Code)
	assert.Equal(t, http.StatusForbidden, a.do(t, http.MethodGet, "/v1/admin/stats", owner, nil).Code)

	for _, tok := range []string{user, owner} {
		rec := a.do(t, http.MethodGet, "/v1/me", tok, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestBookingFlow(t *testing.T) {
	a := newApp(t)
	owner := a.register(t, "owner@example.com", "LANDLORD")
	user := a.register(t, "driver@example.com", "USER")

	// Landlord sets up a lot with two slots.
	rec := a.do(t, http.MethodPost, "/v1/landlord/lots", owner, map[string]any{
		"name": "Station Road", "city": "Pune", "total_slots": 2, "day_rate": 40,
		"vehicle_types": []string{"car"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	lotID := decode[idBody](t, rec).str()

	rec = a.do(t, http.MethodPost, "/v1/landlord/lots/"+lotID+"/slots", owner, map[string]any{
		"slots": []map[string]string{{"code": "a1", "floor": "G"}, {"code": "A2", "floor": "G"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.do(t, http.MethodPost, "/v1/landlord/lots/"+lotID+"/slots", owner, map[string]any{
		"slots": []map[string]string{{"code": "A3"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "more slots than capacity")

	// Public search is cached until a catalog write purges it.
	rec = a.do(t, http.MethodGet, "/v1/lots?city=Pune", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.EqualValues(t, 1, decode[struct {
		Total int64 `json:"total"`
	}](t, rec).Total)
	assert.Equal(t, "HIT", a.do(t, http.MethodGet, "/v1/lots?city=Pune", "", nil).Header().Get("X-Cache"))

	rec = a.do(t, http.MethodPost, "/v1/landlord/lots/"+lotID+"/services", owner, map[string]any{"name": "Wash", "price": 100})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "MISS", a.do(t, http.MethodGet, "/v1/lots?city=Pune", "", nil).Header().Get("X-Cache"))

	start := clock.Add(2 * time.Hour)
	end := start.Add(2 * time.Hour)

	// Quote and book.
	rec = a.do(t, http.MethodPost, "/v1/quote", "", map[string]any{
		"lot_id": json.RawMessage(lotID), "start_time": start, "end_time": end, "vehicle_type": "car",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 94, decode[booking.Quote](t, rec).Total)

	rec = a.do(t, http.MethodPost, "/v1/bookings", user, map[string]any{
		"lot_id": json.RawMessage(lotID), "slot_code": "A1",
		"vehicle":    map[string]string{"type": "car", "license_plate": "MH12AB1234"},
		"start_time": start, "end_time": end,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[idBody](t, rec)
	assert.Equal(t, "pending", created.Status)
	id := created.str()

	rec = a.do(t, http.MethodPost, "/v1/bookings", user, map[string]any{
		"lot_id": json.RawMessage(lotID), "slot_code": "A1",
		"vehicle":    map[string]string{"type": "car", "license_plate": "MH12CD5678"},
		"start_time": start.Add(time.Hour), "end_time": end.Add(time.Hour),
	})
	assert.Equal(t, http.StatusConflict, rec.Code, "slot already taken")

	rec = a.do(t, http.MethodGet, fmt.Sprintf("/v1/lots/%s/availability?start=%s&end=%s",
		lotID, start.Format(time.RFC3339), end.Format(time.RFC3339)), "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	avail := decode[struct {
		Booked    int `json:"booked"`
		Available int `json:"available"`
	}](t, rec)
	assert.Equal(t, 1, avail.Booked)
	assert.Equal(t, 1, avail.Available)

	// Pay, then pass the gates.
	rec = a.do(t, http.MethodPost, "/v1/bookings/"+id+"/pay", user, map[string]string{"method": "card"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "confirmed", decode[idBody](t, rec).Status)

	rec = a.do(t, http.MethodPost, "/v1/bookings/"+id+"/pay", user, map[string]string{"method": "card"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(t, http.MethodPost, "/v1/landlord/bookings/"+id+"/entry", owner, map[string]string{"gate_id": "G1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "active", decode[idBody](t, rec).Status)

	rec = a.do(t, http.MethodPost, "/v1/landlord/bookings/"+id+"/exit", owner, map[string]string{"gate_id": "G2"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "completed", decode[idBody](t, rec).Status)

	rec = a.do(t, http.MethodPost, "/v1/bookings/"+id+"/rating", user, map[string]any{"score": 5, "review": "easy"})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The user sees the booking with its in-app notifications.
	rec = a.do(t, http.MethodGet, "/v1/my-bookings?status=completed", user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	mine := decode[struct {
		Data []struct {
			ID            string `json:"id"`
			Notifications []struct {
				Channel string `json:"channel"`
			} `json:"notifications"`
		} `json:"data"`
		Total int64 `json:"total"`
	}](t, rec)
	require.EqualValues(t, 1, mine.Total)
	assert.Equal(t, id, mine.Data[0].ID)
	assert.NotEmpty(t, mine.Data[0].Notifications)

	// Landlord export.
	rec = a.do(t, http.MethodGet, "/v1/landlord/lots/"+lotID+"/bookings/export", owner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, export.ContentType, rec.Header().Get(echo.HeaderContentType))
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), ".xlsx")

	// Admin stats.
	_, err := a.users.EnsureAdmin(context.Background(), "admin@example.com", "password1", bcrypt.MinCost)
	require.NoError(t, err)
	rec = a.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"email": "admin@example.com", "password": "password1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	admin := decode[tokens](t, rec).Access.Token

	rec = a.do(t, http.MethodGet, "/v1/admin/stats", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stats := decode[struct {
		Bookings int64  `json:"bookings"`
		Revenue  int64  `json:"revenue"`
		Refunded int64  `json:"refunded"`
		Currency string `json:"currency"`
	}](t, rec)
	assert.EqualValues(t, 1, stats.Bookings)
	assert.EqualValues(t, 94, stats.Revenue)
	assert.Zero(t, stats.Refunded)
	assert.Equal(t, "INR", stats.Currency)

	rec = a.do(t, http.MethodPost, "/v1/admin/bookings/"+id+"/transition", admin, map[string]string{"event": "teleport"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = a.do(t, http.MethodPost, "/v1/admin/bookings/"+id+"/transition", admin, map[string]string{"event": "cancel"})
	assert.Equal(t, http.StatusConflict, rec.Code, "completed bookings are final")
}

func TestCancelFlowRefunds(t *testing.T) {
	a := newApp(t)
	owner := a.register(t, "owner@example.com", "LANDLORD")
	user := a.register(t, "driver@example.com", "USER")

	rec := a.do(t, http.MethodPost, "/v1/landlord/lots", owner, map[string]any{
		"name": "Mall", "city": "Pune", "total_slots": 1, "day_rate": 40,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	lotID := decode[idBody](t, rec).str()

	start := clock.Add(30 * time.Hour)
	rec = a.do(t, http.MethodPost, "/v1/bookings", user, map[string]any{
		"lot_id":     json.RawMessage(lotID),
		"vehicle":    map[string]string{"type": "car", "license_plate": "KA01XY9999"},
		"start_time": start, "end_time": start.Add(90 * time.Minute),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decode[idBody](t, rec).str()

	rec = a.do(t, http.MethodPost, "/v1/bookings/"+id+"/pay", user, map[string]string{"method": "card"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.do(t, http.MethodGet, "/v1/bookings/"+id+"/refund", user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"can_cancel":true,"refund_amount":94}`, rec.Body.String())

	other := a.register(t, "other@example.com", "USER")
	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodGet, "/v1/bookings/"+id, other, nil).Code)

	rec = a.do(t, http.MethodPost, "/v1/bookings/"+id+"/cancel", user, map[string]string{"reason": "plans changed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "cancelled", decode[idBody](t, rec).Status)

	rec = a.do(t, http.MethodDelete, "/v1/landlord/lots/"+lotID, owner, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
}
