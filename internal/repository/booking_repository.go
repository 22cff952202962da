package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/parking-lot-reservation/internal/model"
)

// BookingRepo persists bookings. Filterable scalars are columns; the
// payment, gate logs, cancellation, rating, services and notifications are
// JSON documents.
type BookingRepo struct {
	db     *sql.DB
	driver string
}

// NewBookingRepo constructs a BookingRepo.
func NewBookingRepo(db *sql.DB, driver string) *BookingRepo {
	return &BookingRepo{db: db, driver: driver}
}

// DB exposes the underlying pool so callers can open transactions that span
// several repositories.
func (r *BookingRepo) DB() *sql.DB { return r.db }

const bookingColumns = `id, user_id, lot_id, slot_code, floor, vehicle_type, license_plate,
	vehicle_model, vehicle_color, start_time, end_time, duration_hours, duration_minutes,
	base_price, service_fees, taxes, discounts, total_amount, currency, billable_hours,
	rate_per_hour, services, status, payment, entry_log, exit_log, cancellation, rating,
	notifications, version, created_at, updated_at`

func scanBooking(s rowScanner) (*model.Booking, error) {
	var (
		b                                          model.Booking
		services, notifications                    sql.NullString
		payment, entry, exit, cancellation, rating sql.NullString
	)
	err := s.Scan(&b.ID, &b.UserID, &b.LotID, &b.SlotCode, &b.Floor, &b.Vehicle.Type,
		&b.Vehicle.LicensePlate, &b.Vehicle.Model, &b.Vehicle.Color, &b.StartTime, &b.EndTime,
		&b.Duration.Hours, &b.Duration.Minutes, &b.Pricing.BasePrice, &b.Pricing.ServiceFees,
		&b.Pricing.Taxes, &b.Pricing.Discounts, &b.Pricing.TotalAmount, &b.Pricing.Currency,
		&b.Pricing.BillableHours, &b.Pricing.RatePerHour, &services, &b.Status, &payment,
		&entry, &exit, &cancellation, &rating, &notifications, &b.Version, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if b.Services, err = fromJSONList[model.ServiceLine](services); err != nil {
		return nil, fmt.Errorf("decode services: %w", err)
	}
	if b.Notifications, err = fromJSONList[model.Notification](notifications); err != nil {
		return nil, fmt.Errorf("decode notifications: %w", err)
	}
	if b.Payment, err = fromJSON[model.Payment](payment); err != nil {
		return nil, fmt.Errorf("decode payment: %w", err)
	}
	if b.Entry, err = fromJSON[model.EntryLog](entry); err != nil {
		return nil, fmt.Errorf("decode entry log: %w", err)
	}
	if b.Exit, err = fromJSON[model.ExitLog](exit); err != nil {
		return nil, fmt.Errorf("decode exit log: %w", err)
	}
	if b.Cancellation, err = fromJSON[model.Cancellation](cancellation); err != nil {
		return nil, fmt.Errorf("decode cancellation: %w", err)
	}
	if b.Rating, err = fromJSON[model.Rating](rating); err != nil {
		return nil, fmt.Errorf("decode rating: %w", err)
	}
	return &b, nil
}

// documents encodes the JSON columns of b in column order: services,
// payment, entry_log, exit_log, cancellation, rating, notifications.
func documents(b *model.Booking) ([]any, error) {
	services, err := listJSON(b.Services)
	if err != nil {
		return nil, err
	}
	notifications, err := listJSON(b.Notifications)
	if err != nil {
		return nil, err
	}
	payment, err := toJSON(b.Payment)
	if err != nil {
		return nil, err
	}
	entry, err := toJSON(b.Entry)
	if err != nil {
		return nil, err
	}
	exit, err := toJSON(b.Exit)
	if err != nil {
		return nil, err
	}
	cancellation, err := toJSON(b.Cancellation)
	if err != nil {
		return nil, err
	}
	rating, err := toJSON(b.Rating)
	if err != nil {
		return nil, err
	}
	return []any{services, payment, entry, exit, cancellation, rating, notifications}, nil
}

// CreateTx inserts a fully populated booking. The caller has already
// computed duration and pricing and checked capacity in the same tx.
func (r *BookingRepo) CreateTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
	docs, err := documents(b)
	if err != nil {
		return err
	}
	ts := now()
	b.Version = 1
	b.CreatedAt, b.UpdatedAt = ts, ts
	args := []any{
		b.ID, b.UserID, b.LotID, b.SlotCode, b.Floor, string(b.Vehicle.Type), b.Vehicle.LicensePlate,
		b.Vehicle.Model, b.Vehicle.Color, b.StartTime.UTC(), b.EndTime.UTC(), b.Duration.Hours, b.Duration.Minutes,
		b.Pricing.BasePrice, b.Pricing.ServiceFees, b.Pricing.Taxes, b.Pricing.Discounts, b.Pricing.TotalAmount,
		b.Pricing.Currency, b.Pricing.BillableHours, b.Pricing.RatePerHour,
		docs[0], string(b.Status), docs[1], docs[2], docs[3], docs[4], docs[5], docs[6],
		b.Version, ts, ts,
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO bookings ("+bookingColumns+") VALUES ("+placeholders(len(args))+")", args...)
	if err != nil && isDuplicate(err) {
		return ErrConflict
	}
	return err
}

// UpdateTx writes every mutable field of b, guarded by the version the
// caller read. On success b.Version is advanced.
func (r *BookingRepo) UpdateTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
	docs, err := documents(b)
	if err != nil {
		return err
	}
	ts := now()
	res, err := tx.ExecContext(ctx,
		`UPDATE bookings SET
			slot_code=?, floor=?, end_time=?, duration_hours=?, duration_minutes=?,
			base_price=?, service_fees=?, taxes=?, discounts=?, total_amount=?,
			billable_hours=?, rate_per_hour=?, services=?, status=?, payment=?,
			entry_log=?, exit_log=?, cancellation=?, rating=?, notifications=?,
			version=version+1, updated_at=?
		 WHERE id=? AND version=?`,
		b.SlotCode, b.Floor, b.EndTime.UTC(), b.Duration.Hours, b.Duration.Minutes,
		b.Pricing.BasePrice, b.Pricing.ServiceFees, b.Pricing.Taxes, b.Pricing.Discounts, b.Pricing.TotalAmount,
		b.Pricing.BillableHours, b.Pricing.RatePerHour, docs[0], string(b.Status), docs[1],
		docs[2], docs[3], docs[4], docs[5], docs[6],
		ts, b.ID, b.Version)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConcurrentModification
	}
	b.Version++
	b.UpdatedAt = ts
	return nil
}

// GetByID loads a booking.
func (r *BookingRepo) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	return scanBooking(r.db.QueryRowContext(ctx, "SELECT "+bookingColumns+" FROM bookings WHERE id = ?", id))
}

// GetForUpdateTx loads a booking inside tx, locking the row on MySQL.
func (r *BookingRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id string) (*model.Booking, error) {
	return scanBooking(tx.QueryRowContext(ctx,
		"SELECT "+bookingColumns+" FROM bookings WHERE id = ?"+lockClause(r.driver), id))
}

// CountOverlappingTx counts live bookings of a lot whose window intersects
// [start, end). A non-empty slotCode narrows the count to that slot;
// excludeID skips the booking being extended.
func (r *BookingRepo) CountOverlappingTx(ctx context.Context, tx *sql.Tx, lotID uint64, slotCode string, start, end time.Time, excludeID string) (int, error) {
	q := "SELECT COUNT(*) FROM bookings WHERE lot_id = ? AND start_time < ? AND end_time > ? AND id <> ?" +
		" AND status IN (" + placeholders(len(model.LiveStatuses)) + ")"
	args := []any{lotID, end.UTC(), start.UTC(), excludeID}
	for _, s := range model.LiveStatuses {
		args = append(args, string(s))
	}
	if slotCode != "" {
		q += " AND slot_code = ?"
		args = append(args, slotCode)
	}
	var n int
	err := tx.QueryRowContext(ctx, q, args...).Scan(&n)
	return n, err
}

// BookingFilter narrows list queries. Zero values mean "any".
type BookingFilter struct {
	UserID   uint64
	LotID    uint64
	OwnerID  uint64 // lots owned by this landlord
	Statuses []model.BookingStatus
	From     time.Time // start_time >= From
	To       time.Time // start_time < To
	Page     int
	PageSize int
}

func (f BookingFilter) where() (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.UserID != 0 {
		conds = append(conds, "b.user_id = ?")
		args = append(args, f.UserID)
	}
	if f.LotID != 0 {
		conds = append(conds, "b.lot_id = ?")
		args = append(args, f.LotID)
	}
	if f.OwnerID != 0 {
		conds = append(conds, "b.lot_id IN (SELECT id FROM parking_lots WHERE owner_id = ?)")
		args = append(args, f.OwnerID)
	}
	if len(f.Statuses) > 0 {
		conds = append(conds, "b.status IN ("+placeholders(len(f.Statuses))+")")
		for _, s := range f.Statuses {
			args = append(args, string(s))
		}
	}
	if !f.From.IsZero() {
		conds = append(conds, "b.start_time >= ?")
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		conds = append(conds, "b.start_time < ?")
		args = append(args, f.To.UTC())
	}
	if len(conds) == 0 {
		return "1=1", args
	}
	return strings.Join(conds, " AND "), args
}

// List returns bookings matching f, newest start first, and the total
// number of matches. A zero PageSize returns every match.
func (r *BookingRepo) List(ctx context.Context, f BookingFilter) ([]*model.Booking, int64, error) {
	cond, args := f.where()

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM bookings b WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := "SELECT " + prefixed("b.", bookingColumns) + " FROM bookings b WHERE " + cond + " ORDER BY b.start_time DESC, b.id"
	if f.PageSize > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		q += " LIMIT ? OFFSET ?"
		args = append(args, f.PageSize, (page-1)*f.PageSize)
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, b)
	}
	return out, total, rows.Err()
}

// ListNoShowCandidates returns pending or confirmed bookings that started
// before cutoff and never checked in.
func (r *BookingRepo) ListNoShowCandidates(ctx context.Context, cutoff time.Time, limit int) ([]*model.Booking, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+bookingColumns+" FROM bookings WHERE status IN (?,?) AND start_time < ? ORDER BY start_time LIMIT ?",
		string(model.BookingPending), string(model.BookingConfirmed), cutoff.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		if b.Entry == nil {
			out = append(out, b)
		}
	}
	return out, rows.Err()
}

// StatusTotals is one row of the admin statistics.
type StatusTotals struct {
	Status model.BookingStatus `json:"status"`
	Count  int64               `json:"count"`
	Amount int64               `json:"amount"`
}

// Totals groups bookings by status with their summed total amounts.
func (r *BookingRepo) Totals(ctx context.Context) ([]StatusTotals, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT status, COUNT(*), COALESCE(SUM(total_amount), 0) FROM bookings GROUP BY status ORDER BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StatusTotals
	for rows.Next() {
		var t StatusTotals
		if err := rows.Scan(&t.Status, &t.Count, &t.Amount); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// RefundedTotal sums refund amounts recorded on payments.
func (r *BookingRepo) RefundedTotal(ctx context.Context) (int64, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT payment FROM bookings WHERE payment IS NOT NULL AND status = ?",
		string(model.BookingCancelled))
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var sum int64
	for rows.Next() {
		var raw sql.NullString
		if err := rows.Scan(&raw); err != nil {
			return 0, err
		}
		p, err := fromJSON[model.Payment](raw)
		if err != nil {
			return 0, err
		}
		if p != nil {
			sum += p.RefundAmount
		}
	}
	return sum, rows.Err()
}

func prefixed(prefix, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// Occupancy reports, for a lot and window, how many live bookings overlap
// it and which slot codes they hold.
func (r *BookingRepo) Occupancy(ctx context.Context, lotID uint64, start, end time.Time) (int, []string, error) {
	args := []any{lotID, end.UTC(), start.UTC()}
	for _, s := range model.LiveStatuses {
		args = append(args, string(s))
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT slot_code FROM bookings WHERE lot_id = ? AND start_time < ? AND end_time > ?"+
			" AND status IN ("+placeholders(len(model.LiveStatuses))+")", args...)
	if err != nil {
		return 0, nil, err
	}
	defer rows.Close()

	var (
		n     int
		codes []string
	)
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return 0, nil, err
		}
		n++
		if code != "" {
			codes = append(codes, code)
		}
	}
	return n, codes, rows.Err()
}

// AppendNotifications adds delivered notifications to a booking.
func (r *BookingRepo) AppendNotifications(ctx context.Context, id string, ns []model.Notification) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	b, err := r.GetForUpdateTx(ctx, tx, id)
	if err != nil {
		return err
	}
	b.Notifications = append(b.Notifications, ns...)
	return r.UpdateTx(ctx, tx, b)
}
