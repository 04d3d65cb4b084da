package postgres

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
	if u.Role == "" {
		u.Role = domain.RoleCustomer
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO users (username, email, full_name, role, hashed_password, is_active, is_online, created_at, last_seen)
		VALUES ($1, $2, $3, $4, $5, TRUE, FALSE, NOW(), NOW())
		RETURNING id, created_at, last_seen
	`, u.Username, u.Email, u.FullName, string(u.Role), u.HashedPassword,
	).Scan(&u.ID, &u.CreatedAt, &u.LastSeen)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	u.IsActive = true
	u.IsOnline = false
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.scanUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.scanUser(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.scanUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (r *UserRepo) ListActive(ctx context.Context, offset, limit int) ([]*domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE is_active = TRUE
		ORDER BY created_at ASC, id ASC
		LIMIT $1 OFFSET $2
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
		WHERE is_active = TRUE AND is_online = TRUE
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
		SET email=$1, full_name=$2, role=$3, hashed_password=$4, is_active=$5, is_online=$6, last_seen=$7
		WHERE id=$8
	`, u.Email, u.FullName, string(u.Role), u.HashedPassword, u.IsActive, u.IsOnline, u.LastSeen, u.ID)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

func (r *UserRepo) SoftDelete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE users SET is_active=FALSE, is_online=FALSE WHERE id=$1`, id); err != nil {
		return fmt.Errorf("soft delete user: %w", err)
	}
	return nil
}

func (r *UserRepo) SetOnlineStatus(ctx context.Context, id int64, isOnline bool) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_online=$1, last_seen=NOW() WHERE id=$2`,
		isOnline, id,
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
	var role string
	err := s.Scan(
		&u.ID, &u.Username, &u.Email, &u.FullName, &role, &u.HashedPassword,
		&u.IsActive, &u.IsOnline, &u.CreatedAt, &u.LastSeen,
	)
	u.Role = domain.Role(role)
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
