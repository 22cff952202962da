package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/parking-lot-reservation/internal/model"
)

// ServiceRepo is the add-on service catalog of each lot.
type ServiceRepo struct {
	db *sql.DB
}

func NewServiceRepo(db *sql.DB) *ServiceRepo { return &ServiceRepo{db: db} }

const serviceColumns = "id, lot_id, name, description, price, is_active, created_at, updated_at"

func scanService(s rowScanner) (*model.Service, error) {
	var sv model.Service
	err := s.Scan(&sv.ID, &sv.LotID, &sv.Name, &sv.Description, &sv.Price, &sv.IsActive, &sv.CreatedAt, &sv.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sv, nil
}

// Create inserts a catalog entry.
func (r *ServiceRepo) Create(ctx context.Context, s *model.Service) error {
	ts := now()
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO services (lot_id, name, description, price, is_active, created_at, updated_at) VALUES (?,?,?,?,?,?,?)",
		s.LotID, s.Name, s.Description, s.Price, s.IsActive, ts, ts)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	s.CreatedAt, s.UpdatedAt = ts, ts
	return nil
}

// GetByID fetches one catalog entry.
func (r *ServiceRepo) GetByID(ctx context.Context, id uint64) (*model.Service, error) {
	return scanService(r.db.QueryRowContext(ctx, "SELECT "+serviceColumns+" FROM services WHERE id = ?", id))
}

// ListByLot returns a lot's services; activeOnly hides retired entries.
func (r *ServiceRepo) ListByLot(ctx context.Context, lotID uint64, activeOnly bool) ([]*model.Service, error) {
	q := "SELECT " + serviceColumns + " FROM services WHERE lot_id = ?"
	args := []any{lotID}
	if activeOnly {
		q += " AND is_active = ?"
		args = append(args, true)
	}
	rows, err := r.db.QueryContext(ctx, q+" ORDER BY name, id", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetActiveByIDs returns the active services of lotID among ids, keyed by
// id. Ids that are unknown, inactive or belong to another lot are absent.
func (r *ServiceRepo) GetActiveByIDs(ctx context.Context, lotID uint64, ids []uint64) (map[uint64]*model.Service, error) {
	out := make(map[uint64]*model.Service, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := []any{lotID, true}
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+serviceColumns+" FROM services WHERE lot_id = ? AND is_active = ? AND id IN ("+placeholders(len(ids))+")",
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		out[s.ID] = s
	}
	return out, rows.Err()
}

// Update overwrites name, description, price and active flag.
func (r *ServiceRepo) Update(ctx context.Context, s *model.Service) error {
	ts := now()
	res, err := r.db.ExecContext(ctx,
		"UPDATE services SET name=?, description=?, price=?, is_active=?, updated_at=? WHERE id=?",
		s.Name, s.Description, s.Price, s.IsActive, ts, s.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	s.UpdatedAt = ts
	return nil
}

// Retire hides a service from new bookings. Existing bookings keep their
// name and price snapshots so rows are never deleted.
func (r *ServiceRepo) Retire(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, "UPDATE services SET is_active=?, updated_at=? WHERE id=?", false, now(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
