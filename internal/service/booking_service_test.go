package service

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/parking-lot-reservation/internal/booking"
	"github.com/iliyamo/parking-lot-reservation/internal/database"
	"github.com/iliyamo/parking-lot-reservation/internal/model"
	"github.com/iliyamo/parking-lot-reservation/internal/payment"
	"github.com/iliyamo/parking-lot-reservation/internal/queue"
	"github.com/iliyamo/parking-lot-reservation/internal/repository"
)

type recorder struct {
	mu     sync.Mutex
	events []queue.BookingEvent
}

func (r *recorder) Publish(_ context.Context, ev queue.BookingEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

type fixture struct {
	db       *sql.DB
	svc      *BookingService
	users    *repository.UserRepo
	bookings *repository.BookingRepo
	services *repository.ServiceRepo
	slots    *repository.SlotRepo
	lots     *repository.LotRepo
	events   *recorder
	now      time.Time
	userID   uint64
	ownerID  uint64
	lot      *model.ParkingLot
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "svc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()
	require.NoError(t, database.Migrate(ctx, db, "sqlite3"))

	f := &fixture{
		db:       db,
		users:    repository.NewUserRepo(db),
		bookings: repository.NewBookingRepo(db, "sqlite3"),
		services: repository.NewServiceRepo(db),
		slots:    repository.NewSlotRepo(db),
		events:   &recorder{},
		now:      time.Date(2030, 1, 1, 8, 0, 0, 0, time.UTC),
	}
	f.userID, err = f.users.Create(ctx, "driver@example.com", "secret123", model.RoleUser, "Driver", bcrypt.MinCost)
	require.NoError(t, err)
	f.ownerID, err = f.users.Create(ctx, "owner@example.com", "secret123", model.RoleLandlord, "Owner", bcrypt.MinCost)
	require.NoError(t, err)

	lots := repository.NewLotRepo(db, "sqlite3")
	f.lots = lots
	f.lot = &model.ParkingLot{
		OwnerID: f.ownerID, Name: "Station Road", City: "Pune", TotalSlots: 2, DayRate: 40,
		NightStartHour: 22, NightEndHour: 6, VehicleTypes: []model.VehicleType{model.VehicleCar}, IsActive: true,
	}
	require.NoError(t, lots.Create(ctx, f.lot))
	require.NoError(t, f.slots.CreateMany(ctx, f.lot.ID, []model.Slot{
		{Code: "A1", Floor: "G", VehicleType: model.VehicleCar},
		{Code: "A2", Floor: "G", VehicleType: model.VehicleCar},
	}))

	f.svc = NewBookingService(BookingDeps{
		DB: db, Lots: lots, Slots: f.slots, Services: f.services, Bookings: f.bookings,
		Calculator: booking.NewCalculator(18, "INR"),
		Payments:   payment.NewSimulator(),
		Events:     f.events,
		Log:        zerolog.Nop(),
		Now:        func() time.Time { return f.now },
	})
	return f
}

func (f *fixture) at(d time.Duration) time.Time { return f.now.Add(d) }

func (f *fixture) create(t *testing.T, slot string, start, end time.Time) *model.Booking {
	t.Helper()
	b, err := f.svc.Create(context.Background(), CreateRequest{
		UserID: f.userID, LotID: f.lot.ID, SlotCode: slot,
		Vehicle:   model.Vehicle{Type: model.VehicleCar, LicensePlate: " mh12 ab 1234 "},
		StartTime: start, EndTime: end,
	})
	require.NoError(t, err)
	return b
}

func TestQuote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wash := &model.Service{LotID: f.lot.ID, Name: "Wash", Price: 100, IsActive: true}
	require.NoError(t, f.services.Create(ctx, wash))

	start := f.at(2 * time.Hour)
	q, err := f.svc.Quote(ctx, QuoteRequest{
		LotID: f.lot.ID, StartTime: start, EndTime: start.Add(2*time.Hour + 15*time.Minute),
		VehicleType: model.VehicleCar, Services: []ServiceRequest{{ID: wash.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(120), q.ParkingCost)
	assert.Equal(t, int64(100), q.ServicesCost)
	assert.Equal(t, int64(220), q.Subtotal)
	assert.Equal(t, int64(40), q.Tax)
	assert.Equal(t, int64(260), q.Total)

	cases := []struct {
		name string
		req  QuoteRequest
		want error
	}{
		{"unknown lot", QuoteRequest{LotID: 999, StartTime: start, EndTime: start.Add(time.Hour)}, booking.ErrUnknownLot},
		{"unknown service", QuoteRequest{LotID: f.lot.ID, StartTime: start, EndTime: start.Add(time.Hour), Services: []ServiceRequest{{ID: 999}}}, booking.ErrUnknownService},
		{"vehicle", QuoteRequest{LotID: f.lot.ID, StartTime: start, EndTime: start.Add(time.Hour), VehicleType: model.VehicleTruck}, booking.ErrVehicleNotSupported},
		{"window", QuoteRequest{LotID: f.lot.ID, StartTime: start, EndTime: start}, booking.ErrInvalidWindow},
		{"discount", QuoteRequest{LotID: f.lot.ID, StartTime: start, EndTime: start.Add(time.Hour), Discount: -5}, booking.ErrInvalidDiscount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Quote(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	start := f.at(2 * time.Hour)

	b := f.create(t, "a1", start, start.Add(90*time.Minute))
	assert.Equal(t, "MH12AB1234", b.Vehicle.LicensePlate)
	assert.Equal(t, "A1", b.SlotCode)
	assert.Equal(t, "G", b.Floor)
	assert.Equal(t, model.Duration{Hours: 1, Minutes: 30}, b.Duration)
	assert.Equal(t, int64(80), b.Pricing.BasePrice)
	assert.Equal(t, int64(94), b.Pricing.TotalAmount)
	assert.Equal(t, model.BookingPending, b.Status)
	assert.Equal(t, []string{queue.EventCreated}, f.events.types())

	stored, err := f.bookings.GetByID(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.Pricing, stored.Pricing)
}

func TestCreateRejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := f.at(2 * time.Hour)
	f.create(t, "A1", start, start.Add(2*time.Hour))

	req := func(slot string, s, e time.Time) CreateRequest {
		return CreateRequest{UserID: f.userID, LotID: f.lot.ID, SlotCode: slot,
			Vehicle: model.Vehicle{Type: model.VehicleCar, LicensePlate: "KA01"}, StartTime: s, EndTime: e}
	}

	_, err := f.svc.Create(ctx, req("A1", start.Add(time.Hour), start.Add(3*time.Hour)))
	assert.ErrorIs(t, err, repository.ErrSlotUnavailable)

	_, err = f.svc.Create(ctx, req("Z9", start, start.Add(time.Hour)))
	assert.ErrorIs(t, err, ErrUnknownSlot)

	_, err = f.svc.Create(ctx, req("", f.at(-time.Hour), f.at(time.Hour)))
	assert.ErrorIs(t, err, ErrStartInPast)

	_, err = f.svc.Create(ctx, CreateRequest{UserID: f.userID, LotID: f.lot.ID, StartTime: start, EndTime: start.Add(time.Hour)})
	assert.ErrorIs(t, err, ErrInvalidVehicle)

	// second booking fills the two-slot lot
	_, err = f.svc.Create(ctx, req("", start, start.Add(time.Hour)))
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, req("", start, start.Add(time.Hour)))
	assert.ErrorIs(t, err, repository.ErrLotFull)

	// touching windows do not overlap
	_, err = f.svc.Create(ctx, req("A1", start.Add(2*time.Hour), start.Add(3*time.Hour)))
	assert.NoError(t, err)
}

func TestConcurrentCreateSameSlot(t *testing.T) {
	f := newFixture(t)
	start := f.at(5 * time.Hour)

	const attempts = 6
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Create(context.Background(), CreateRequest{
				UserID: f.userID, LotID: f.lot.ID, SlotCode: "A2",
				Vehicle:   model.Vehicle{Type: model.VehicleCar, LicensePlate: "KA01"},
				StartTime: start, EndTime: start.Add(time.Hour),
			})
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, success)
}

func TestPayAndCancelWithRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := f.at(30 * time.Hour)
	b := f.create(t, "", start, start.Add(2*time.Hour))

	paid, err := f.svc.Pay(ctx, b.ID, f.userID, model.PaymentCard)
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, paid.Status)
	require.NotNil(t, paid.Payment)
	assert.Equal(t, model.PaymentCompleted, paid.Payment.Status)
	assert.Equal(t, int64(94), paid.Payment.Amount)

	_, err = f.svc.Pay(ctx, b.ID, f.userID, model.PaymentCard)
	assert.ErrorIs(t, err, ErrAlreadyPaid)

	can, amount, err := f.svc.RefundPreview(ctx, b.ID, f.userID)
	require.NoError(t, err)
	assert.True(t, can)
	assert.Equal(t, int64(94), amount)

	_, err = f.svc.Cancel(ctx, b.ID, f.ownerID, "not mine")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	cancelled, err := f.svc.Cancel(ctx, b.ID, f.userID, "plans changed")
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, cancelled.Status)
	require.NotNil(t, cancelled.Cancellation)
	assert.Equal(t, int64(94), cancelled.Cancellation.RefundAmount)
	assert.Equal(t, model.PaymentRefunded, cancelled.Payment.Status)
	assert.Equal(t, int64(94), cancelled.Payment.RefundAmount)

	assert.Equal(t, []string{queue.EventCreated, queue.EventConfirmed, queue.EventCancelled}, f.events.types())
	assert.Equal(t, int64(94), f.events.events[2].RefundAmount)

	_, err = f.svc.Cancel(ctx, b.ID, f.userID, "")
	assert.ErrorIs(t, err, booking.ErrNotCancellable)
}

func TestCancelRefundTiers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	half := f.create(t, "", f.at(10*time.Hour), f.at(12*time.Hour))
	got, err := f.svc.Cancel(ctx, half.ID, f.userID, "")
	require.NoError(t, err)
	assert.Equal(t, int64(47), got.Cancellation.RefundAmount)
	assert.Nil(t, got.Payment, "unpaid bookings have nothing to refund")

	late := f.create(t, "", f.at(45*time.Minute), f.at(2*time.Hour))
	can, amount, err := f.svc.RefundPreview(ctx, late.ID, f.userID)
	require.NoError(t, err)
	assert.False(t, can)
	assert.Zero(t, amount)
	_, err = f.svc.Cancel(ctx, late.ID, f.userID, "")
	assert.ErrorIs(t, err, booking.ErrNotCancellable)
}

func TestGateFlowExtendAndRate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := f.at(2 * time.Hour) // 10:00
	b := f.create(t, "A1", start, start.Add(2*time.Hour))

	_, err := f.svc.CheckIn(ctx, b.ID, f.ownerID, "G1")
	assert.ErrorIs(t, err, booking.ErrIllegalTransition, "pending bookings cannot check in")

	_, err = f.svc.Pay(ctx, b.ID, f.userID, model.PaymentUPI)
	require.NoError(t, err)

	_, err = f.svc.CheckIn(ctx, b.ID, f.userID, "G1")
	assert.ErrorIs(t, err, repository.ErrForbidden)

	f.now = start.Add(5 * time.Minute)
	in, err := f.svc.CheckIn(ctx, b.ID, f.ownerID, "G1")
	require.NoError(t, err)
	assert.Equal(t, model.BookingActive, in.Status)
	require.NotNil(t, in.Entry)
	assert.Equal(t, "G1", in.Entry.GateID)

	_, err = f.svc.Extend(ctx, b.ID, f.userID, start.Add(time.Hour))
	assert.ErrorIs(t, err, booking.ErrInvalidWindow)

	ext, err := f.svc.Extend(ctx, b.ID, f.userID, start.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, model.BookingExtended, ext.Status)
	assert.Equal(t, int64(3), ext.Pricing.BillableHours)
	assert.Equal(t, int64(142), ext.Pricing.TotalAmount)
	assert.Equal(t, int64(142), ext.Payment.Amount)
	assert.Equal(t, model.Duration{Hours: 3}, ext.Duration)

	f.now = start.Add(3*time.Hour + 10*time.Minute)
	out, err := f.svc.CheckOut(ctx, b.ID, f.ownerID, "G2")
	require.NoError(t, err)
	assert.Equal(t, model.BookingCompleted, out.Status)
	require.NotNil(t, out.Exit)
	assert.Equal(t, int64(47), out.Exit.OvertimeCharge)
	assert.Equal(t, model.Duration{Hours: 3, Minutes: 5}, out.Exit.ActualDuration)

	_, err = f.svc.Rate(ctx, b.ID, f.userID, 0, "")
	assert.ErrorIs(t, err, ErrInvalidRating)
	rated, err := f.svc.Rate(ctx, b.ID, f.userID, 5, " great ")
	require.NoError(t, err)
	assert.Equal(t, "great", rated.Rating.Review)
	_, err = f.svc.Rate(ctx, b.ID, f.userID, 4, "")
	assert.ErrorIs(t, err, ErrAlreadyRated)
}

func TestExtendBlockedBySlotBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := f.at(2 * time.Hour)
	b := f.create(t, "A1", start, start.Add(time.Hour))
	f.create(t, "A1", start.Add(time.Hour), start.Add(2*time.Hour))

	_, err := f.svc.Pay(ctx, b.ID, f.userID, model.PaymentCard)
	require.NoError(t, err)
	f.now = start
	_, err = f.svc.CheckIn(ctx, b.ID, f.ownerID, "G1")
	require.NoError(t, err)

	_, err = f.svc.Extend(ctx, b.ID, f.userID, start.Add(90*time.Minute))
	assert.ErrorIs(t, err, repository.ErrSlotUnavailable)
}

func TestCashCollect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.create(t, "", f.at(3*time.Hour), f.at(4*time.Hour))

	paid, err := f.svc.Pay(ctx, b.ID, f.userID, model.PaymentCash)
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, paid.Status)
	assert.Equal(t, model.PaymentPending, paid.Payment.Status)
	assert.Nil(t, paid.Payment.PaidAt)

	_, err = f.svc.Collect(ctx, b.ID, f.userID)
	assert.ErrorIs(t, err, repository.ErrForbidden)

	got, err := f.svc.Collect(ctx, b.ID, f.ownerID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentCompleted, got.Payment.Status)
	assert.NotNil(t, got.Payment.PaidAt)

	_, err = f.svc.Collect(ctx, b.ID, f.ownerID)
	assert.ErrorIs(t, err, ErrNothingToCollect)
}

func TestSweepNoShows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	missed := f.create(t, "", f.at(time.Hour), f.at(3*time.Hour))
	_, err := f.svc.Pay(ctx, missed.ID, f.userID, model.PaymentCard)
	require.NoError(t, err)
	later := f.create(t, "", f.at(5*time.Hour), f.at(6*time.Hour))

	f.now = f.at(time.Hour + 20*time.Minute)
	n, err := f.svc.SweepNoShows(ctx, 30*time.Minute, 100)
	require.NoError(t, err)
	assert.Zero(t, n, "still inside the grace period")

	f.now = f.now.Add(15 * time.Minute)
	n, err = f.svc.SweepNoShows(ctx, 30*time.Minute, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.bookings.GetByID(ctx, missed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingNoShow, got.Status)
	other, err := f.bookings.GetByID(ctx, later.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingPending, other.Status)
}

func TestAdminTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.create(t, "", f.at(48*time.Hour), f.at(50*time.Hour))

	got, err := f.svc.AdminTransition(ctx, b.ID, 99, booking.EventConfirm, "")
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, got.Status)

	_, err = f.svc.AdminTransition(ctx, b.ID, 99, booking.EventCheckOut, "")
	assert.ErrorIs(t, err, booking.ErrIllegalTransition)

	_, err = f.svc.AdminTransition(ctx, b.ID, 99, booking.EventExtend, "")
	assert.ErrorIs(t, err, booking.ErrIllegalTransition)

	got, err = f.svc.AdminTransition(ctx, b.ID, 99, booking.EventCancel, "duplicate")
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, got.Status)
	assert.Equal(t, uint64(99), got.Cancellation.CancelledBy)

	_, err = f.svc.AdminTransition(ctx, b.ID, 99, booking.EventConfirm, "")
	assert.ErrorIs(t, err, booking.ErrIllegalTransition, "terminal states stay terminal")
}

func TestExtendKeepsBookedRate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := f.at(2 * time.Hour)
	b := f.create(t, "A1", start, start.Add(2*time.Hour))
	_, err := f.svc.Pay(ctx, b.ID, f.userID, model.PaymentUPI)
	require.NoError(t, err)
	f.now = start
	_, err = f.svc.CheckIn(ctx, b.ID, f.ownerID, "G1")
	require.NoError(t, err)

	f.lot.DayRate = 10
	require.NoError(t, f.lots.Update(ctx, f.lot))

	ext, err := f.svc.Extend(ctx, b.ID, f.userID, start.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(40), ext.Pricing.RatePerHour)
	assert.Equal(t, int64(120), ext.Pricing.BasePrice)
	assert.Equal(t, int64(142), ext.Pricing.TotalAmount)
	assert.Equal(t, ext.Pricing.TotalAmount, ext.Payment.Amount)

	// overtime keeps using the booked rate as well
	f.now = start.Add(3*time.Hour + 30*time.Minute)
	out, err := f.svc.CheckOut(ctx, b.ID, f.ownerID, "G2")
	require.NoError(t, err)
	assert.Equal(t, int64(47), out.Exit.OvertimeCharge)
}

// ledger wraps the simulator and records every money movement.
type ledger struct {
	payment.Processor
	mu       sync.Mutex
	charges  []int64
	refunds  []int64
	onCharge func()
	onRefund func(p *model.Payment) error
}

func newLedger() *ledger { return &ledger{Processor: payment.NewSimulator()} }

func (l *ledger) Charge(ctx context.Context, c payment.Charge) (payment.Receipt, error) {
	r, err := l.Processor.Charge(ctx, c)
	if err != nil {
		return r, err
	}
	l.mu.Lock()
	l.charges = append(l.charges, c.Amount)
	l.mu.Unlock()
	if l.onCharge != nil {
		l.onCharge()
	}
	return r, nil
}

func (l *ledger) Refund(ctx context.Context, p *model.Payment, amount int64) (payment.Receipt, error) {
	if l.onRefund != nil {
		if err := l.onRefund(p); err != nil {
			return payment.Receipt{}, err
		}
	}
	r, err := l.Processor.Refund(ctx, p, amount)
	if err != nil {
		return r, err
	}
	l.mu.Lock()
	l.refunds = append(l.refunds, amount)
	l.mu.Unlock()
	return r, nil
}

func TestPayReversesChargeWhenWriteFails(t *testing.T) {
	f := newFixture(t)
	money := newLedger()
	f.svc.payments = money
	b := f.create(t, "", f.at(30*time.Hour), f.at(32*time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// the request goes away after the gateway took the money
	money.onCharge = cancel

	_, err := f.svc.Pay(ctx, b.ID, f.userID, model.PaymentCard)
	require.Error(t, err)
	assert.Equal(t, []int64{94}, money.charges)
	assert.Equal(t, []int64{94}, money.refunds, "unrecorded charge must be reversed")

	got, err := f.bookings.GetByID(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingPending, got.Status)
	assert.Nil(t, got.Payment)

	// nothing is charged when the booking cannot be paid at all
	money.onCharge = nil
	_, err = f.svc.Cancel(context.Background(), b.ID, f.userID, "")
	require.NoError(t, err)
	_, err = f.svc.Pay(context.Background(), b.ID, f.userID, model.PaymentCard)
	assert.ErrorIs(t, err, booking.ErrIllegalTransition)
	assert.Len(t, money.charges, 1)
}

func TestCancelRefundsAfterCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	money := newLedger()
	f.svc.payments = money
	b := f.create(t, "", f.at(30*time.Hour), f.at(32*time.Hour))
	_, err := f.svc.Pay(ctx, b.ID, f.userID, model.PaymentCard)
	require.NoError(t, err)

	var seen model.BookingStatus
	money.onRefund = func(p *model.Payment) error {
		stored, err := f.bookings.GetByID(context.Background(), b.ID)
		if err != nil {
			return err
		}
		seen = stored.Status
		return nil
	}
	got, err := f.svc.Cancel(ctx, b.ID, f.userID, "")
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, seen, "refund runs only once the cancellation is stored")
	assert.Equal(t, model.PaymentRefunded, got.Payment.Status)

	stored, err := f.bookings.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentRefunded, stored.Payment.Status)
	assert.Equal(t, int64(94), stored.Payment.RefundAmount)
}

func TestCancelStandsWhenRefundFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	money := newLedger()
	f.svc.payments = money
	b := f.create(t, "", f.at(30*time.Hour), f.at(32*time.Hour))
	_, err := f.svc.Pay(ctx, b.ID, f.userID, model.PaymentCard)
	require.NoError(t, err)

	money.onRefund = func(*model.Payment) error { return errors.New("gateway down") }
	got, err := f.svc.Cancel(ctx, b.ID, f.userID, "")
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, got.Status)
	assert.Equal(t, int64(94), got.Cancellation.RefundAmount)
	assert.Equal(t, model.PaymentCompleted, got.Payment.Status)
	assert.Empty(t, money.refunds)

	evs := f.events.events
	require.NotEmpty(t, evs)
	assert.Zero(t, evs[len(evs)-1].RefundAmount)
}

// stalled never delivers and gives up only when its context ends.
type stalled struct {
	mu       sync.Mutex
	deadline time.Time
}

func (s *stalled) Publish(ctx context.Context, _ queue.BookingEvent) error {
	s.mu.Lock()
	s.deadline, _ = ctx.Deadline()
	s.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func TestPublishDoesNotStallWrites(t *testing.T) {
	f := newFixture(t)
	broker := &stalled{}
	f.svc.events = broker
	f.svc.publishTimeout = 50 * time.Millisecond

	began := time.Now()
	b := f.create(t, "", f.at(30*time.Hour), f.at(32*time.Hour))
	assert.Less(t, time.Since(began), 2*time.Second)

	broker.mu.Lock()
	assert.False(t, broker.deadline.IsZero(), "publish must run under a deadline")
	broker.mu.Unlock()

	got, err := f.bookings.GetByID(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingPending, got.Status)
}

func TestNewBookingServiceDefaultsPublishTimeout(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, defaultPublishTimeout, f.svc.publishTimeout)
}
