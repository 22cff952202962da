package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/parking-lot-reservation/internal/model"
	"github.com/iliyamo/parking-lot-reservation/internal/utils"
)

// UserRepo reads and writes accounts. Emails are stored lower-cased and
// trimmed; every lookup normalizes its input the same way so the unique
// index does the duplicate check.
type UserRepo struct{ DB *sql.DB }

// NewUserRepo wraps db.
func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// userColumns is the select list scanUser expects, in order.
const userColumns = "id,email,password_hash,role,name,phone,telegram_chat_id,is_active,created_at,updated_at"

// scanUser reads one user from a row or rows cursor. sql.ErrNoRows becomes
// ErrNotFound.
func scanUser(s rowScanner) (model.User, error) {
	var u model.User
	err := s.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.Name, &u.Phone,
		&u.TelegramChatID, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return u, ErrNotFound
	}
	return u, err
}

// Create hashes the password, inserts the user and returns its ID.
func (r *UserRepo) Create(ctx context.Context, email, password, role, name string, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	ts := now()
	// is_active and telegram_chat_id take their column defaults.
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, role, name, created_at, updated_at) VALUES (?,?,?,?,?,?)",
		email, hash, role, strings.TrimSpace(name), ts, ts)
	if err != nil {
		// Unique index on email; the driver specific code is mapped by
		// isDuplicate.
		if isDuplicate(err) {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// UpdateProfile changes the self-service fields of a user.
func (r *UserRepo) UpdateProfile(ctx context.Context, id uint64, name, phone string, telegramChatID int64) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET name=?, phone=?, telegram_chat_id=?, updated_at=? WHERE id=?",
		strings.TrimSpace(name), strings.TrimSpace(phone), telegramChatID, now(), id)
	if err != nil {
		return err
	}
	// MySQL reports zero affected rows when nothing changed, but the
	// handler only calls this after loading the user.
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetRoleAndActive is the admin override for a user's role and status.
func (r *UserRepo) SetRoleAndActive(ctx context.Context, id uint64, role string, active bool) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET role=?, is_active=?, updated_at=? WHERE id=?",
		role, active, now(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns one page of users ordered by id, plus the total count.
func (r *UserRepo) List(ctx context.Context, page, pageSize int) ([]model.User, int64, error) {
	var total int64
	if err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users ORDER BY id LIMIT ? OFFSET ?",
		pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	// Password hashes are scanned too; handlers map to userResponse, which
	// drops them.
	out := make([]model.User, 0, pageSize)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, u)
	}
	return out, total, rows.Err()
}

// EnsureAdmin creates the bootstrap admin account when it does not exist
// and promotes it when it does. It reports whether a row was created.
func (r *UserRepo) EnsureAdmin(ctx context.Context, email, password string, cost int) (bool, error) {
	u, err := r.GetByEmail(ctx, email)
	switch {
	// Existing account: make sure it is an active admin, keep its password.
	case err == nil:
		if u.Role == model.RoleAdmin && u.IsActive {
			return false, nil
		}
		return false, r.SetRoleAndActive(ctx, u.ID, model.RoleAdmin, true)
	case errors.Is(err, ErrNotFound):
		_, err := r.Create(ctx, email, password, model.RoleAdmin, "Administrator", cost)
		return err == nil, err
	default:
		return false, err
	}
}
