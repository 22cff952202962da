// Package service orchestrates bookings across the rules core, the
// repositories, the payment processor and the event publisher.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/iliyamo/parking-lot-reservation/internal/booking"
	"github.com/iliyamo/parking-lot-reservation/internal/metrics"
	"github.com/iliyamo/parking-lot-reservation/internal/model"
	"github.com/iliyamo/parking-lot-reservation/internal/payment"
	"github.com/iliyamo/parking-lot-reservation/internal/queue"
	"github.com/iliyamo/parking-lot-reservation/internal/repository"
)

var (
	// ErrStartInPast is returned when a booking would start before now.
	ErrStartInPast = errors.New("start time must be in the future")
	// ErrInvalidVehicle is returned for an unknown vehicle type or empty plate.
	ErrInvalidVehicle = errors.New("vehicle type and license plate are required")
	// ErrUnknownSlot is returned when the requested slot code is not in the lot.
	ErrUnknownSlot = errors.New("slot not found in this lot")
	// ErrAlreadyPaid is returned when paying for a booking that has a
	// completed or pending payment.
	ErrAlreadyPaid = errors.New("booking is already paid")
	// ErrNothingToCollect is returned when collecting a booking with no
	// pending cash payment.
	ErrNothingToCollect = errors.New("no cash payment to collect")
	// ErrInvalidRating is returned for a score outside 1..5.
	ErrInvalidRating = errors.New("score must be between 1 and 5")
	// ErrAlreadyRated is returned when rating a booking twice.
	ErrAlreadyRated = errors.New("booking is already rated")
)

// EventPublisher delivers booking events.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.BookingEvent) error
}

// ServiceRequest selects an add-on by id.
type ServiceRequest struct {
	ID       uint64
	Quantity int
}

// QuoteRequest is the input of a price preview.
type QuoteRequest struct {
	LotID       uint64
	StartTime   time.Time
	EndTime     time.Time
	VehicleType model.VehicleType
	Services    []ServiceRequest
	Discount    int64
}

// CreateRequest is the input of a new booking.
type CreateRequest struct {
	UserID    uint64
	LotID     uint64
	SlotCode  string
	Vehicle   model.Vehicle
	StartTime time.Time
	EndTime   time.Time
	Services  []ServiceRequest
}

// BookingDeps wires a BookingService.
type BookingDeps struct {
	DB         *sql.DB
	Lots       *repository.LotRepo
	Slots      *repository.SlotRepo
	Services   *repository.ServiceRepo
	Bookings   *repository.BookingRepo
	Calculator booking.Calculator
	Payments   payment.Processor
	Events     EventPublisher
	Log        zerolog.Logger
	Now        func() time.Time
	// PublishTimeout caps a single event publish. Zero means three seconds.
	PublishTimeout time.Duration
}

// BookingService runs every booking write. Status changes go through
// booking.Transition inside a transaction that holds the booking row.
type BookingService struct {
	db       *sql.DB
	lots     *repository.LotRepo
	slots    *repository.SlotRepo
	services *repository.ServiceRepo
	bookings *repository.BookingRepo
	calc     booking.Calculator
	payments payment.Processor
	events   EventPublisher
	log      zerolog.Logger
	now      func() time.Time

	// publishTimeout bounds each event publish so a slow broker cannot
	// hold up the caller of a write that already committed.
	publishTimeout time.Duration
}

// defaultPublishTimeout is used when BookingDeps.PublishTimeout is zero.
const defaultPublishTimeout = 3 * time.Second

// NewBookingService panics when a required dependency is missing.
func NewBookingService(d BookingDeps) *BookingService {
	if d.DB == nil || d.Lots == nil || d.Slots == nil || d.Services == nil || d.Bookings == nil || d.Payments == nil {
		panic("nil dependency passed to NewBookingService")
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	if d.PublishTimeout <= 0 {
		d.PublishTimeout = defaultPublishTimeout
	}
	if d.Calculator == (booking.Calculator{}) {
		d.Calculator = booking.NewCalculator(booking.DefaultTaxPercent, booking.DefaultCurrency)
	}
	return &BookingService{
		db:       d.DB,
		lots:     d.Lots,
		slots:    d.Slots,
		services: d.Services,
		bookings: d.Bookings,
		calc:     d.Calculator,
		payments: d.Payments,
		events:   d.Events,
		log:      d.Log.With().Str("component", "booking-service").Logger(),
		now:      d.Now,

		publishTimeout: d.PublishTimeout,
	}
}

// Calculator exposes the pricing configuration.
func (s *BookingService) Calculator() booking.Calculator { return s.calc }

// Now returns the service clock.
func (s *BookingService) Now() time.Time { return s.now() }

// Quote prices a window without writing anything.
func (s *BookingService) Quote(ctx context.Context, req QuoteRequest) (booking.Quote, error) {
	q, _, _, err := s.quote(ctx, req)
	return q, err
}

func (s *BookingService) quote(ctx context.Context, req QuoteRequest) (booking.Quote, *model.ParkingLot, []model.ServiceLine, error) {
	if !req.EndTime.After(req.StartTime) {
		return booking.Quote{}, nil, nil, booking.ErrInvalidWindow
	}
	lot, err := s.lots.GetByID(ctx, req.LotID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return booking.Quote{}, nil, nil, booking.ErrUnknownLot
		}
		return booking.Quote{}, nil, nil, err
	}
	if !lot.IsActive {
		return booking.Quote{}, nil, nil, booking.ErrUnknownLot
	}
	if req.VehicleType != "" && !lot.Supports(req.VehicleType) {
		return booking.Quote{}, nil, nil, booking.ErrVehicleNotSupported
	}

	items, lines, err := s.resolveServices(ctx, lot.ID, req.Services)
	if err != nil {
		return booking.Quote{}, nil, nil, err
	}
	q, err := s.calc.Price(booking.RateCardOf(lot), req.StartTime, req.EndTime, items, req.Discount)
	if err != nil {
		return booking.Quote{}, nil, nil, err
	}
	return q, lot, lines, nil
}

func (s *BookingService) resolveServices(ctx context.Context, lotID uint64, reqs []ServiceRequest) ([]booking.ServiceItem, []model.ServiceLine, error) {
	if len(reqs) == 0 {
		return nil, nil, nil
	}
	ids := make([]uint64, 0, len(reqs))
	for _, r := range reqs {
		ids = append(ids, r.ID)
	}
	found, err := s.services.GetActiveByIDs(ctx, lotID, ids)
	if err != nil {
		return nil, nil, err
	}
	items := make([]booking.ServiceItem, 0, len(reqs))
	lines := make([]model.ServiceLine, 0, len(reqs))
	for _, r := range reqs {
		sv, ok := found[r.ID]
		if !ok {
			return nil, nil, fmt.Errorf("%w: %d", booking.ErrUnknownService, r.ID)
		}
		qty := r.Quantity
		if qty < 1 {
			qty = 1
		}
		items = append(items, booking.ServiceItem{ID: sv.ID, Name: sv.Name, Price: sv.Price, Quantity: qty})
		lines = append(lines, model.ServiceLine{ServiceID: sv.ID, Name: sv.Name, Price: sv.Price, Quantity: qty})
	}
	return items, lines, nil
}

// Create books a window for a user. Capacity is checked and the row
// inserted in one transaction that holds the lot lock.
func (s *BookingService) Create(ctx context.Context, req CreateRequest) (*model.Booking, error) {
	req.Vehicle.LicensePlate = model.NormalizePlate(req.Vehicle.LicensePlate)
	if !req.Vehicle.Type.Valid() || req.Vehicle.LicensePlate == "" {
		return nil, ErrInvalidVehicle
	}
	dur, err := booking.ComputeDuration(req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}
	if req.StartTime.Before(s.now()) {
		return nil, ErrStartInPast
	}
	q, lot, lines, err := s.quote(ctx, QuoteRequest{
		LotID: req.LotID, StartTime: req.StartTime, EndTime: req.EndTime,
		VehicleType: req.Vehicle.Type, Services: req.Services,
	})
	if err != nil {
		return nil, err
	}

	b := &model.Booking{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		LotID:     lot.ID,
		SlotCode:  strings.ToUpper(strings.TrimSpace(req.SlotCode)),
		Vehicle:   req.Vehicle,
		StartTime: req.StartTime.UTC(),
		EndTime:   req.EndTime.UTC(),
		Duration:  dur,
		Pricing:   q.Pricing(),
		Services:  lines,
		Status:    model.BookingPending,
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		locked, err := s.lots.LockTx(ctx, tx, lot.ID)
		if err != nil {
			return err
		}
		if b.SlotCode != "" {
			slot, err := s.slots.GetByCodeTx(ctx, tx, lot.ID, b.SlotCode)
			if errors.Is(err, repository.ErrNotFound) {
				return ErrUnknownSlot
			}
			if err != nil {
				return err
			}
			if !slot.IsActive {
				return repository.ErrSlotUnavailable
			}
			if slot.VehicleType != b.Vehicle.Type {
				return booking.ErrVehicleNotSupported
			}
			b.Floor = slot.Floor
		}
		if err := s.checkCapacity(ctx, tx, locked, b.SlotCode, b.StartTime, b.EndTime, ""); err != nil {
			return err
		}
		return s.bookings.CreateTx(ctx, tx, b)
	})
	if err != nil {
		return nil, err
	}

	metrics.IncBookingCreated()
	s.publish(ctx, queue.EventCreated, b, lot.Name, 0)
	return b, nil
}

// checkCapacity rejects a window that collides with the requested slot or
// would exceed the lot's slot count.
func (s *BookingService) checkCapacity(ctx context.Context, tx *sql.Tx, lot *model.ParkingLot, slotCode string, start, end time.Time, excludeID string) error {
	if slotCode != "" {
		n, err := s.bookings.CountOverlappingTx(ctx, tx, lot.ID, slotCode, start, end, excludeID)
		if err != nil {
			return err
		}
		if n > 0 {
			metrics.IncConflict("slot")
			return repository.ErrSlotUnavailable
		}
	}
	n, err := s.bookings.CountOverlappingTx(ctx, tx, lot.ID, "", start, end, excludeID)
	if err != nil {
		return err
	}
	if n >= lot.TotalSlots {
		metrics.IncConflict("lot_full")
		return repository.ErrLotFull
	}
	return nil
}

// Get returns a booking owned by userID. Bookings of other users are
// reported as not found.
func (s *BookingService) Get(ctx context.Context, id string, userID uint64) (*model.Booking, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.UserID != userID {
		return nil, repository.ErrNotFound
	}
	return b, nil
}

// RefundPreview reports whether the booking can be cancelled now and what
// the refund would be.
func (s *BookingService) RefundPreview(ctx context.Context, id string, userID uint64) (bool, int64, error) {
	b, err := s.Get(ctx, id, userID)
	if err != nil {
		return false, 0, err
	}
	now := s.now()
	return booking.CanBeCancelled(b, now), booking.CalculateRefund(b, now), nil
}

// Cancel cancels a user's own booking and refunds a completed payment
// according to the refund policy.
func (s *BookingService) Cancel(ctx context.Context, id string, userID uint64, reason string) (*model.Booking, error) {
	b, err := s.mutate(ctx, id, func(tx *sql.Tx, b *model.Booking) error {
		if b.UserID != userID {
			return repository.ErrNotFound
		}
		now := s.now()
		if !booking.CanBeCancelled(b, now) {
			return booking.ErrNotCancellable
		}
		amount := booking.CalculateRefund(b, now)
		next, err := booking.Transition(b.Status, booking.EventCancel)
		if err != nil {
			return err
		}
		b.Status = next
		b.Cancellation = &model.Cancellation{
			Reason:         strings.TrimSpace(reason),
			CancelledAt:    now,
			CancelledBy:    userID,
			RefundEligible: true,
			RefundAmount:   amount,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.IncTransition(string(b.Status))
	b, refunded := s.refund(ctx, b, b.Cancellation.RefundAmount)
	metrics.AddRefund(refunded)
	s.publish(ctx, queue.EventCancelled, b, "", refunded)
	return b, nil
}

// refund pays amount back on a completed payment of a committed
// cancellation, then records the receipt on the booking. It returns the
// booking as stored and what was actually refunded. A failed refund leaves
// the payment completed and is logged for manual follow-up; the
// cancellation itself stands.
func (s *BookingService) refund(ctx context.Context, b *model.Booking, amount int64) (*model.Booking, int64) {
	p := b.Payment
	if amount <= 0 || p == nil || p.Status != model.PaymentCompleted {
		return b, 0
	}
	if amount > p.Amount {
		amount = p.Amount
	}
	ctx = context.WithoutCancel(ctx)
	logger := s.log.With().Str("booking_id", b.ID).Int64("amount", amount).Logger()
	r, err := s.payments.Refund(ctx, p, amount)
	if err != nil {
		logger.Error().Err(err).Msg("refund failed after cancellation")
		return b, 0
	}
	stored, err := s.mutate(ctx, b.ID, func(tx *sql.Tx, cur *model.Booking) error {
		if cur.Payment == nil || cur.Payment.Status != model.PaymentCompleted {
			return fmt.Errorf("payment of %s changed before refund was recorded", cur.ID)
		}
		at := r.At
		cur.Payment.Status = model.PaymentRefunded
		cur.Payment.RefundAmount = amount
		cur.Payment.RefundedAt = &at
		return nil
	})
	if err != nil {
		logger.Error().Err(err).Str("refund_txn", r.TransactionID).Msg("refund issued but not recorded")
		return b, amount
	}
	return stored, amount
}

// reverse refunds a charge whose booking write did not commit.
func (s *BookingService) reverse(ctx context.Context, id string, p *model.Payment, amount int64) {
	logger := s.log.With().Str("booking_id", id).Str("txn", p.TransactionID).Int64("amount", amount).Logger()
	if _, err := s.payments.Refund(context.WithoutCancel(ctx), p, amount); err != nil {
		logger.Error().Err(err).Msg("charge not recorded and reversal failed")
		return
	}
	logger.Warn().Msg("charge not recorded, reversed")
}

// Pay charges a pending booking and confirms it. Cash payments confirm the
// booking too but stay pending until collected at the gate.
func (s *BookingService) Pay(ctx context.Context, id string, userID uint64, method model.PaymentMethod) (*model.Booking, error) {
	if !method.Valid() {
		return nil, fmt.Errorf("%w: %q", payment.ErrUnsupportedMethod, method)
	}
	// charged holds a completed charge until the write commits; if it does
	// not, the charge is reversed.
	var charged *model.Payment
	b, err := s.mutate(ctx, id, func(tx *sql.Tx, b *model.Booking) error {
		if b.UserID != userID {
			return repository.ErrNotFound
		}
		if b.Payment != nil && b.Payment.Status != model.PaymentFailed {
			return ErrAlreadyPaid
		}
		next, err := booking.Transition(b.Status, booking.EventConfirm)
		if err != nil {
			return err
		}
		r, err := s.payments.Charge(ctx, payment.Charge{
			BookingID: b.ID, Amount: b.Pricing.TotalAmount, Currency: b.Pricing.Currency, Method: method,
		})
		if err != nil {
			return err
		}
		b.Payment = &model.Payment{
			Method:        method,
			TransactionID: r.TransactionID,
			PaymentID:     r.PaymentID,
			OrderID:       r.OrderID,
			Status:        r.Status,
			Amount:        b.Pricing.TotalAmount,
		}
		if r.Status == model.PaymentCompleted {
			at := r.At
			b.Payment.PaidAt = &at
			cp := *b.Payment
			charged = &cp
		}
		b.Status = next
		return nil
	})
	if err != nil {
		if charged != nil {
			s.reverse(ctx, id, charged, charged.Amount)
		}
		return nil, err
	}
	metrics.IncTransition(string(b.Status))
	s.publish(ctx, queue.EventConfirmed, b, "", 0)
	return b, nil
}

// Collect marks a pending cash payment as received by the lot's landlord.
func (s *BookingService) Collect(ctx context.Context, id string, landlordID uint64) (*model.Booking, error) {
	b, err := s.mutate(ctx, id, func(tx *sql.Tx, b *model.Booking) error {
		if err := s.ownsLotTx(ctx, tx, b.LotID, landlordID); err != nil {
			return err
		}
		p := b.Payment
		if p == nil || p.Method != model.PaymentCash || p.Status != model.PaymentPending {
			return ErrNothingToCollect
		}
		if booking.IsTerminal(b.Status) && b.Status != model.BookingCompleted {
			return ErrNothingToCollect
		}
		at := s.now()
		p.Status = model.PaymentCompleted
		p.PaidAt = &at
		p.PaymentID = "cash_" + strings.ReplaceAll(uuid.NewString(), "-", "")
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, queue.EventPaid, b, "", 0)
	return b, nil
}

// CheckIn records the vehicle entering the lot.
func (s *BookingService) CheckIn(ctx context.Context, id string, landlordID uint64, gateID string) (*model.Booking, error) {
	b, err := s.mutate(ctx, id, func(tx *sql.Tx, b *model.Booking) error {
		if err := s.ownsLotTx(ctx, tx, b.LotID, landlordID); err != nil {
			return err
		}
		return s.checkIn(b, landlordID, gateID)
	})
	if err != nil {
		return nil, err
	}
	metrics.IncTransition(string(b.Status))
	s.publish(ctx, queue.EventCheckedIn, b, "", 0)
	return b, nil
}

func (s *BookingService) checkIn(b *model.Booking, actor uint64, gateID string) error {
	next, err := booking.Transition(b.Status, booking.EventCheckIn)
	if err != nil {
		return err
	}
	b.Status = next
	b.Entry = &model.EntryLog{Time: s.now(), GateID: strings.TrimSpace(gateID), VerifiedBy: actor}
	return nil
}

// CheckOut records the vehicle leaving and prices any overtime.
func (s *BookingService) CheckOut(ctx context.Context, id string, landlordID uint64, gateID string) (*model.Booking, error) {
	b, err := s.mutate(ctx, id, func(tx *sql.Tx, b *model.Booking) error {
		if err := s.ownsLotTx(ctx, tx, b.LotID, landlordID); err != nil {
			return err
		}
		return s.checkOut(b, landlordID, gateID)
	})
	if err != nil {
		return nil, err
	}
	metrics.IncTransition(string(b.Status))
	s.publish(ctx, queue.EventCheckedOut, b, "", 0)
	return b, nil
}

func (s *BookingService) checkOut(b *model.Booking, actor uint64, gateID string) error {
	next, err := booking.Transition(b.Status, booking.EventCheckOut)
	if err != nil {
		return err
	}
	now := s.now()
	from := b.StartTime
	if b.Entry != nil {
		from = b.Entry.Time
	}
	b.Status = next
	b.Exit = &model.ExitLog{
		Time:           now,
		GateID:         strings.TrimSpace(gateID),
		VerifiedBy:     actor,
		ActualDuration: booking.Elapsed(from, now),
		OvertimeCharge: s.calc.Overtime(b.Pricing.RatePerHour, b.EndTime, now),
	}
	return nil
}

// Extend pushes out the end of an active booking. The whole window is
// repriced at the hourly rate saved on the booking, with the services and
// discount already attached, so later changes to the lot's rates never
// touch hours that were already sold. The added time must fit the slot and
// the lot's capacity.
func (s *BookingService) Extend(ctx context.Context, id string, userID uint64, newEnd time.Time) (*model.Booking, error) {
	newEnd = newEnd.UTC()
	var (
		charged *model.Payment
		extra   int64
	)
	b, err := s.mutate(ctx, id, func(tx *sql.Tx, b *model.Booking) error {
		if b.UserID != userID {
			return repository.ErrNotFound
		}
		if !newEnd.After(b.EndTime) {
			return booking.ErrInvalidWindow
		}
		next, err := booking.Transition(b.Status, booking.EventExtend)
		if err != nil {
			return err
		}
		lot, err := s.lots.LockTx(ctx, tx, b.LotID)
		if err != nil {
			return err
		}
		if err := s.checkCapacity(ctx, tx, lot, b.SlotCode, b.EndTime, newEnd, b.ID); err != nil {
			return err
		}

		items := make([]booking.ServiceItem, 0, len(b.Services))
		for _, l := range b.Services {
			items = append(items, booking.ServiceItem{ID: l.ServiceID, Name: l.Name, Price: l.Price, Quantity: l.Quantity})
		}
		rates := booking.RateCard{DayRate: b.Pricing.RatePerHour}
		if rates.DayRate == 0 {
			rates = booking.RateCardOf(lot)
		}
		q, err := s.calc.Price(rates, b.StartTime, newEnd, items, b.Pricing.Discounts)
		if err != nil {
			return err
		}
		dur, err := booking.ComputeDuration(b.StartTime, newEnd)
		if err != nil {
			return err
		}
		extra = q.Total - b.Pricing.TotalAmount
		if extra < 0 {
			return fmt.Errorf("%w: extension would lower the total from %d to %d",
				booking.ErrInvalidWindow, b.Pricing.TotalAmount, q.Total)
		}
		if charged, err = s.chargeExtra(ctx, b, extra); err != nil {
			return err
		}
		b.EndTime = newEnd
		b.Duration = dur
		b.Pricing = q.Pricing()
		b.Status = next
		return nil
	})
	if err != nil {
		if charged != nil {
			s.reverse(ctx, id, charged, extra)
		}
		return nil, err
	}
	metrics.IncTransition(string(b.Status))
	s.publish(ctx, queue.EventExtended, b, "", 0)
	return b, nil
}

// chargeExtra bills the difference of an extension on the original method.
// Cash payments just grow the amount due at the gate. It returns a copy of
// the payment when money was actually taken.
func (s *BookingService) chargeExtra(ctx context.Context, b *model.Booking, extra int64) (*model.Payment, error) {
	p := b.Payment
	if p == nil || extra <= 0 {
		return nil, nil
	}
	if p.Method == model.PaymentCash && p.Status == model.PaymentPending {
		p.Amount += extra
		return nil, nil
	}
	if p.Status != model.PaymentCompleted {
		return nil, nil
	}
	if _, err := s.payments.Charge(ctx, payment.Charge{
		BookingID: b.ID, Amount: extra, Currency: b.Pricing.Currency, Method: p.Method,
	}); err != nil {
		return nil, fmt.Errorf("charge extension: %w", err)
	}
	p.Amount += extra
	cp := *p
	return &cp, nil
}

// Rate stores the user's review of a completed booking.
func (s *BookingService) Rate(ctx context.Context, id string, userID uint64, score int, review string) (*model.Booking, error) {
	if score < 1 || score > 5 {
		return nil, ErrInvalidRating
	}
	return s.mutate(ctx, id, func(tx *sql.Tx, b *model.Booking) error {
		if b.UserID != userID {
			return repository.ErrNotFound
		}
		if b.Status != model.BookingCompleted {
			return fmt.Errorf("%w: only completed bookings can be rated", booking.ErrIllegalTransition)
		}
		if b.Rating != nil {
			return ErrAlreadyRated
		}
		b.Rating = &model.Rating{Score: score, Review: strings.TrimSpace(review), ReviewedAt: s.now()}
		return nil
	})
}

// AdminTransition applies ev to any booking on behalf of an administrator.
// Cancellations bypass the user cancellation gate; a refund is still paid
// when the policy would grant one.
func (s *BookingService) AdminTransition(ctx context.Context, id string, adminID uint64, ev booking.Event, reason string) (*model.Booking, error) {
	if ev == booking.EventExtend {
		return nil, fmt.Errorf("%w: extend requires a new end time", booking.ErrIllegalTransition)
	}
	b, err := s.mutate(ctx, id, func(tx *sql.Tx, b *model.Booking) error {
		switch ev {
		case booking.EventCheckIn:
			return s.checkIn(b, adminID, "admin")
		case booking.EventCheckOut:
			return s.checkOut(b, adminID, "admin")
		}
		next, err := booking.Transition(b.Status, ev)
		if err != nil {
			return err
		}
		if ev == booking.EventCancel {
			now := s.now()
			amount := booking.CalculateRefund(b, now)
			b.Cancellation = &model.Cancellation{
				Reason:         strings.TrimSpace(reason),
				CancelledAt:    now,
				CancelledBy:    adminID,
				RefundEligible: booking.CanBeCancelled(b, now),
				RefundAmount:   amount,
			}
		}
		b.Status = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.IncTransition(string(b.Status))
	var refunded int64
	if ev == booking.EventCancel {
		b, refunded = s.refund(ctx, b, b.Cancellation.RefundAmount)
	}
	metrics.AddRefund(refunded)
	s.publish(ctx, eventFor(b.Status), b, "", refunded)
	return b, nil
}

// SweepNoShows marks bookings that never arrived within grace of their
// start as no-shows and returns how many were moved.
func (s *BookingService) SweepNoShows(ctx context.Context, grace time.Duration, batch int) (int, error) {
	due, err := s.bookings.ListNoShowCandidates(ctx, s.now().Add(-grace), batch)
	if err != nil {
		return 0, err
	}
	moved := 0
	for _, cand := range due {
		b, err := s.mutate(ctx, cand.ID, func(tx *sql.Tx, b *model.Booking) error {
			if b.Entry != nil {
				return booking.ErrIllegalTransition
			}
			next, err := booking.Transition(b.Status, booking.EventNoShow)
			if err != nil {
				return err
			}
			b.Status = next
			return nil
		})
		if err != nil {
			if !errors.Is(err, booking.ErrIllegalTransition) && !errors.Is(err, repository.ErrConcurrentModification) {
				s.log.Warn().Err(err).Str("booking_id", cand.ID).Msg("no-show sweep failed")
			}
			continue
		}
		moved++
		metrics.IncTransition(string(b.Status))
		s.publish(ctx, queue.EventNoShow, b, "", 0)
	}
	metrics.AddNoShows(moved)
	return moved, nil
}

// mutate loads a booking under lock, applies fn and writes it back with the
// version check, all in one transaction.
func (s *BookingService) mutate(ctx context.Context, id string, fn func(tx *sql.Tx, b *model.Booking) error) (*model.Booking, error) {
	var out *model.Booking
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		b, err := s.bookings.GetForUpdateTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(tx, b); err != nil {
			return err
		}
		if err := s.bookings.UpdateTx(ctx, tx, b); err != nil {
			return err
		}
		out = b
		return nil
	})
	return out, err
}

func (s *BookingService) ownsLotTx(ctx context.Context, tx *sql.Tx, lotID, landlordID uint64) error {
	lot, err := s.lots.LockTx(ctx, tx, lotID)
	if err != nil {
		return err
	}
	if lot.OwnerID != landlordID {
		return repository.ErrForbidden
	}
	return nil
}

func (s *BookingService) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// publish emits an event after the write committed. It runs detached from
// the caller's cancellation under publishTimeout. Failures are logged only;
// the booking itself is already durable.
func (s *BookingService) publish(ctx context.Context, typ string, b *model.Booking, lotName string, refund int64) {
	if s.events == nil {
		return
	}
	ev := queue.BookingEvent{
		Type:         typ,
		BookingID:    b.ID,
		UserID:       b.UserID,
		LotID:        b.LotID,
		LotName:      lotName,
		Status:       string(b.Status),
		SlotCode:     b.SlotCode,
		LicensePlate: b.Vehicle.LicensePlate,
		StartTime:    b.StartTime,
		EndTime:      b.EndTime,
		TotalAmount:  b.Pricing.TotalAmount,
		Currency:     b.Pricing.Currency,
		RefundAmount: refund,
		OccurredAt:   s.now(),
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("event", typ).Str("booking_id", b.ID).Msg("publish booking event failed")
	}
}

func eventFor(st model.BookingStatus) string {
	switch st {
	case model.BookingConfirmed:
		return queue.EventConfirmed
	case model.BookingActive:
		return queue.EventCheckedIn
	case model.BookingExtended:
		return queue.EventExtended
	case model.BookingCompleted:
		return queue.EventCheckedOut
	case model.BookingCancelled:
		return queue.EventCancelled
	case model.BookingNoShow:
		return queue.EventNoShow
	}
	return queue.EventCreated
}
