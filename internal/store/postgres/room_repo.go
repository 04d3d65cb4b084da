package postgres

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

// CreateActive leans on uq_chat_rooms_active_customer so two racing callers
// converge on one row.
func (r *RoomRepo) CreateActive(ctx context.Context, customerID int64) (*domain.ChatRoom, error) {
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO chat_rooms (customer_id, status, created_at, updated_at)
		VALUES ($1, 'ACTIVE', NOW(), NOW())
		ON CONFLICT DO NOTHING
	`, customerID); err != nil {
		return nil, fmt.Errorf("insert chat room: %w", err)
	}
	return r.GetActiveForCustomer(ctx, customerID)
}

func (r *RoomRepo) GetByID(ctx context.Context, id int64) (*domain.ChatRoom, error) {
	return scanRoom(r.db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM chat_rooms WHERE id = $1`, id))
}

func (r *RoomRepo) GetActiveForCustomer(ctx context.Context, customerID int64) (*domain.ChatRoom, error) {
	return scanRoom(r.db.QueryRowContext(ctx, `
		SELECT `+roomColumns+`
		FROM chat_rooms
		WHERE customer_id = $1 AND status = 'ACTIVE'
		ORDER BY id ASC
		LIMIT 1
	`, customerID))
}

func (r *RoomRepo) ListByStatus(ctx context.Context, status domain.RoomStatus) ([]*domain.ChatRoom, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+roomColumns+`
		FROM chat_rooms
		WHERE $1::text = '' OR status = $1::text
		ORDER BY updated_at DESC, id DESC
	`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list chat rooms: %w", err)
	}
	defer rows.Close()

	var res []*domain.ChatRoom
	for rows.Next() {
		c, err := scanRoomRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chat room: %w", err)
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r *RoomRepo) SetStatus(ctx context.Context, id int64, status domain.RoomStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE chat_rooms SET status=$1, updated_at=NOW() WHERE id=$2`,
		string(status), id,
	)
	if err != nil {
		return fmt.Errorf("set chat room status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanRoomRow(s rowScanner) (*domain.ChatRoom, error) {
	c := &domain.ChatRoom{}
	var status string
	if err := s.Scan(&c.ID, &c.CustomerID, &status, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Status = domain.RoomStatus(status)
	return c, nil
}

func scanRoom(row *sql.Row) (*domain.ChatRoom, error) {
	c, err := scanRoomRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get chat room: %w", err)
	}
	return c, nil
}
