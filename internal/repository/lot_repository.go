package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/parking-lot-reservation/internal/model"
)

// LotRepo encapsulates all database queries related to parking lots. The
// driver name selects dialect-specific clauses such as row locks.
type LotRepo struct {
	db     *sql.DB
	driver string
}

// NewLotRepo constructs a LotRepo with the provided DB handle.
func NewLotRepo(db *sql.DB, driver string) *LotRepo {
	return &LotRepo{db: db, driver: driver}
}

const lotColumns = `id, owner_id, name, address, city, latitude, longitude, total_slots,
	day_rate, night_rate, night_start_hour, night_end_hour, vehicle_types, is_active,
	created_at, updated_at`

func scanLot(s rowScanner) (*model.ParkingLot, error) {
	var (
		l     model.ParkingLot
		types string
	)
	err := s.Scan(&l.ID, &l.OwnerID, &l.Name, &l.Address, &l.City, &l.Latitude, &l.Longitude,
		&l.TotalSlots, &l.DayRate, &l.NightRate, &l.NightStartHour, &l.NightEndHour, &types,
		&l.IsActive, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	l.VehicleTypes = decodeVehicleTypes(types)
	return &l, nil
}

// encodeVehicleTypes stores types as ",car,van," so a LIKE '%,car,%' filter
// matches whole entries only. No types is stored as the empty string.
func encodeVehicleTypes(types []model.VehicleType) string {
	if len(types) == 0 {
		return ""
	}
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = string(t)
	}
	return "," + strings.Join(parts, ",") + ","
}

func decodeVehicleTypes(s string) []model.VehicleType {
	var out []model.VehicleType
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, model.VehicleType(p))
		}
	}
	return out
}

// Create inserts a new lot and populates its ID and timestamps.
func (r *LotRepo) Create(ctx context.Context, l *model.ParkingLot) error {
	ts := now()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO parking_lots (owner_id, name, address, city, latitude, longitude, total_slots,
			day_rate, night_rate, night_start_hour, night_end_hour, vehicle_types, is_active,
			created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		l.OwnerID, l.Name, l.Address, l.City, l.Latitude, l.Longitude, l.TotalSlots,
		l.DayRate, l.NightRate, l.NightStartHour, l.NightEndHour, encodeVehicleTypes(l.VehicleTypes),
		l.IsActive, ts, ts)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	l.ID = uint64(id)
	l.CreatedAt, l.UpdatedAt = ts, ts
	return nil
}

// GetByID fetches a lot by its ID regardless of owner.
func (r *LotRepo) GetByID(ctx context.Context, id uint64) (*model.ParkingLot, error) {
	return scanLot(r.db.QueryRowContext(ctx, "SELECT "+lotColumns+" FROM parking_lots WHERE id = ?", id))
}

// GetForOwner fetches a lot and checks that ownerID owns it. A missing lot
// is ErrNotFound; a foreign lot is ErrForbidden.
func (r *LotRepo) GetForOwner(ctx context.Context, id, ownerID uint64) (*model.ParkingLot, error) {
	l, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	return l, nil
}

// LockTx reads a lot inside tx, taking a row lock on MySQL. Booking writes
// lock the lot first so concurrent capacity checks on the same lot queue up.
func (r *LotRepo) LockTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.ParkingLot, error) {
	return scanLot(tx.QueryRowContext(ctx,
		"SELECT "+lotColumns+" FROM parking_lots WHERE id = ?"+lockClause(r.driver), id))
}

// ListByOwner returns all lots for a specific owner ordered by id.
func (r *LotRepo) ListByOwner(ctx context.Context, ownerID uint64) ([]*model.ParkingLot, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+lotColumns+" FROM parking_lots WHERE owner_id = ? ORDER BY id", ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.ParkingLot
	for rows.Next() {
		l, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Update overwrites the editable fields of a lot owned by l.OwnerID.
func (r *LotRepo) Update(ctx context.Context, l *model.ParkingLot) error {
	if _, err := r.GetForOwner(ctx, l.ID, l.OwnerID); err != nil {
		return err
	}
	ts := now()
	_, err := r.db.ExecContext(ctx,
		`UPDATE parking_lots
		 SET name=?, address=?, city=?, latitude=?, longitude=?, total_slots=?, day_rate=?,
		     night_rate=?, night_start_hour=?, night_end_hour=?, vehicle_types=?, is_active=?,
		     updated_at=?
		 WHERE id=? AND owner_id=?`,
		l.Name, l.Address, l.City, l.Latitude, l.Longitude, l.TotalSlots, l.DayRate,
		l.NightRate, l.NightStartHour, l.NightEndHour, encodeVehicleTypes(l.VehicleTypes), l.IsActive,
		ts, l.ID, l.OwnerID)
	if err != nil {
		return err
	}
	l.UpdatedAt = ts
	return nil
}

// Delete removes a lot with its slots and services. Lots with any booking
// history are deactivated rather than removed, and lots with live bookings
// cannot be touched at all (ErrConflict).
func (r *LotRepo) Delete(ctx context.Context, id, ownerID uint64) (err error) {
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

	l, err := r.LockTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if l.OwnerID != ownerID {
		return ErrForbidden
	}

	args := []any{id}
	for _, s := range model.LiveStatuses {
		args = append(args, string(s))
	}
	var live int64
	if err = tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM bookings WHERE lot_id = ? AND status IN ("+placeholders(len(model.LiveStatuses))+")",
		args...).Scan(&live); err != nil {
		return err
	}
	if live > 0 {
		return ErrConflict
	}

	var history int64
	if err = tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM bookings WHERE lot_id = ?", id).Scan(&history); err != nil {
		return err
	}
	if history > 0 {
		_, err = tx.ExecContext(ctx, "UPDATE parking_lots SET is_active = ?, updated_at = ? WHERE id = ?", false, now(), id)
		return err
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM services WHERE lot_id = ?", id); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM parking_slots WHERE lot_id = ?", id); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, "DELETE FROM parking_lots WHERE id = ?", id)
	return err
}
