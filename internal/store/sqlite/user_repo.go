package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"caterchat/internal/domain"
)

const userColumns = `id, username, email, full_name, role, hashed_password, is_active, is_online, created_at, last_seen`

type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

var _ domain.UserRepository = (*UserRepo)(nil)

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	ts := now()
	if u.Role == "" {
		u.Role = domain.RoleCustomer
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO users (username, email, full_name, role, hashed_password, is_active, is_online, created_at, last_seen)
		VALUES (?, ?, ?, ?, ?, 1, 0, ?, ?)
	`, u.Username, u.Email, u.FullName, u.Role, u.HashedPassword, ts, ts)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	u.ID = id
	u.IsActive = true
	u.IsOnline = false
	u.CreatedAt = ts
	u.LastSeen = ts
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.scanUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.scanUser(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.scanUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
}

func (r *UserRepo) ListActive(ctx context.Context, offset, limit int) ([]*domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE is_active = 1
		ORDER BY created_at ASC, id ASC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
	}
	return scanUsers(rows)
}

func (r *UserRepo) ListOnline(ctx context.Context) ([]*domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE is_active = 1 AND is_online = 1
		ORDER BY last_seen DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list online users: %w", err)
	}
	return scanUsers(rows)
}

func (r *UserRepo) Update(ctx context.Context, u *domain.User) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET email = ?, full_name = ?, role = ?, hashed_password = ?, is_active = ?, is_online = ?, last_seen = ?
		WHERE id = ?
	`, u.Email, u.FullName, u.Role, u.HashedPassword, u.IsActive, u.IsOnline, u.LastSeen, u.ID)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

func (r *UserRepo) SoftDelete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE users SET is_active = 0, is_online = 0 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("soft delete user: %w", err)
	}
	return nil
}

func (r *UserRepo) SetOnlineStatus(ctx context.Context, id int64, isOnline bool) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_online = ?, last_seen = ? WHERE id = ?`,
		isOnline, now(), id,
	); err != nil {
		return fmt.Errorf("set online status: %w", err)
	}
	return nil
}

// ── helpers ──────────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUserRow(s rowScanner) (*domain.User, error) {
	u := &domain.User{}
	err := s.Scan(
		&u.ID, &u.Username, &u.Email, &u.FullName, &u.Role, &u.HashedPassword,
		&u.IsActive, &u.IsOnline, &u.CreatedAt, &u.LastSeen,
	)
	return u, err
}

func (r *UserRepo) scanUser(ctx context.Context, query string, arg any) (*domain.User, error) {
	u, err := scanUserRow(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

func scanUsers(rows *sql.Rows) ([]*domain.User, error) {
	defer rows.Close()
	var users []*domain.User
	for rows.Next() {
		u, err := scanUserRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
