package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/parking-lot-reservation/internal/model"
)

// SlotRepo stores the addressable spaces of each lot.
type SlotRepo struct {
	db *sql.DB
}

func NewSlotRepo(db *sql.DB) *SlotRepo { return &SlotRepo{db: db} }

const slotColumns = "id, lot_id, code, floor, vehicle_type, is_active, created_at"

func scanSlot(s rowScanner) (*model.Slot, error) {
	var sl model.Slot
	if err := s.Scan(&sl.ID, &sl.LotID, &sl.Code, &sl.Floor, &sl.VehicleType, &sl.IsActive, &sl.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sl, nil
}

// CreateMany inserts slots for one lot in a single transaction. A duplicate
// code within the lot fails the whole batch with ErrConflict.
func (r *SlotRepo) CreateMany(ctx context.Context, lotID uint64, slots []model.Slot) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	ts := now()
	for i := range slots {
		s := &slots[i]
		s.LotID = lotID
		s.Code = strings.ToUpper(strings.TrimSpace(s.Code))
		res, err := tx.ExecContext(ctx,
			"INSERT INTO parking_slots (lot_id, code, floor, vehicle_type, is_active, created_at) VALUES (?,?,?,?,?,?)",
			lotID, s.Code, s.Floor, string(s.VehicleType), true, ts)
		if err != nil {
			if isDuplicate(err) {
				return ErrConflict
			}
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		s.ID, s.IsActive, s.CreatedAt = uint64(id), true, ts
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// ListByLot returns the slots of a lot ordered by floor and code.
func (r *SlotRepo) ListByLot(ctx context.Context, lotID uint64) ([]*model.Slot, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+slotColumns+" FROM parking_slots WHERE lot_id = ? ORDER BY floor, code", lotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetByCodeTx resolves a slot code inside a booking transaction.
func (r *SlotRepo) GetByCodeTx(ctx context.Context, tx *sql.Tx, lotID uint64, code string) (*model.Slot, error) {
	return scanSlot(tx.QueryRowContext(ctx,
		"SELECT "+slotColumns+" FROM parking_slots WHERE lot_id = ? AND code = ?",
		lotID, strings.ToUpper(strings.TrimSpace(code))))
}
