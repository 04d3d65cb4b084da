package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"caterchat/internal/domain"
)

const roomColumns = `id, customer_id, status, created_at, updated_at`

type RoomRepo struct {
	db *sql.DB
}

func NewRoomRepo(db *sql.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

var _ domain.RoomRepository = (*RoomRepo)(nil)

// CreateActive relies on uq_chat_rooms_active_customer: a concurrent insert
// for the same customer is a no-op and both callers read back the same row.
func (r *RoomRepo) CreateActive(ctx context.Context, customerID int64) (*domain.ChatRoom, error) {
	ts := now()
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO chat_rooms (customer_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, customerID, domain.RoomActive, ts, ts); err != nil {
		return nil, fmt.Errorf("insert chat room: %w", err)
	}
	return r.GetActiveForCustomer(ctx, customerID)
}

func (r *RoomRepo) GetByID(ctx context.Context, id int64) (*domain.ChatRoom, error) {
	return scanRoom(r.db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM chat_rooms WHERE id = ?`, id))
}

func (r *RoomRepo) GetActiveForCustomer(ctx context.Context, customerID int64) (*domain.ChatRoom, error) {
	return scanRoom(r.db.QueryRowContext(ctx, `
		SELECT `+roomColumns+`
		FROM chat_rooms
		WHERE customer_id = ? AND status = ?
		ORDER BY id ASC
		LIMIT 1
	`, customerID, domain.RoomActive))
}

// ListByStatus returns rooms most recently updated first. An empty status
// lists every room.
func (r *RoomRepo) ListByStatus(ctx context.Context, status domain.RoomStatus) ([]*domain.ChatRoom, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if status == "" {
		rows, err = r.db.QueryContext(ctx, `
			SELECT `+roomColumns+` FROM chat_rooms ORDER BY updated_at DESC, id DESC
		`)
	} else {
		rows, err = r.db.QueryContext(ctx, `
			SELECT `+roomColumns+` FROM chat_rooms WHERE status = ? ORDER BY updated_at DESC, id DESC
		`, status)
	}
	if err != nil {
		return nil, fmt.Errorf("list chat rooms: %w", err)
	}
	defer rows.Close()

	var res []*domain.ChatRoom
	for rows.Next() {
		c := &domain.ChatRoom{}
		if err := rows.Scan(&c.ID, &c.CustomerID, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan chat room: %w", err)
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r *RoomRepo) SetStatus(ctx context.Context, id int64, status domain.RoomStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE chat_rooms SET status = ?, updated_at = ? WHERE id = ?`,
		status, now(), id,
	)
	if err != nil {
		return fmt.Errorf("set chat room status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanRoom(row *sql.Row) (*domain.ChatRoom, error) {
	c := &domain.ChatRoom{}
	err := row.Scan(&c.ID, &c.CustomerID, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get chat room: %w", err)
	}
	return c, nil
}
