package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"caterchat/internal/domain"
)

const messageColumns = `id, room_id, sender_id, body, is_read, created_at, read_at`

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

// Create inserts the message and touches the room in one statement pair
// inside a transaction. The room row lock serializes concurrent senders so
// ids and created_at agree on order.
func (r *MessageRepo) Create(ctx context.Context, m *domain.ChatMessage) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE chat_rooms SET updated_at=clock_timestamp() WHERE id=$1`, m.RoomID)
	if err != nil {
		return fmt.Errorf("touch chat room: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO chat_messages (room_id, sender_id, body, is_read, created_at)
		VALUES ($1, $2, $3, FALSE, clock_timestamp())
		RETURNING id, created_at
	`, m.RoomID, m.SenderID, m.Body).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	m.IsRead = false
	m.ReadAt = nil
	return nil
}

func (r *MessageRepo) ListForRoom(ctx context.Context, roomID int64) ([]*domain.ChatMessage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM chat_messages
		WHERE room_id = $1
		ORDER BY created_at ASC, id ASC
	`, roomID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var res []*domain.ChatMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r *MessageRepo) LastForRoom(ctx context.Context, roomID int64) (*domain.ChatMessage, error) {
	m, err := scanMessage(r.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+`
		FROM chat_messages
		WHERE room_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, roomID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last message: %w", err)
	}
	return m, nil
}

func (r *MessageRepo) CountUnreadFrom(ctx context.Context, roomID, senderID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM chat_messages
		WHERE room_id = $1 AND sender_id = $2 AND is_read = FALSE
	`, roomID, senderID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

func (r *MessageRepo) CountUnreadFor(ctx context.Context, roomID, readerID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM chat_messages
		WHERE room_id = $1 AND sender_id <> $2 AND is_read = FALSE
	`, roomID, readerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

func (r *MessageRepo) MarkRead(ctx context.Context, roomID, readerID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE chat_messages SET is_read = TRUE, read_at = NOW()
		WHERE room_id = $1 AND sender_id <> $2 AND is_read = FALSE
	`, roomID, readerID)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func scanMessage(s rowScanner) (*domain.ChatMessage, error) {
	m := &domain.ChatMessage{}
	var readAt sql.NullTime
	if err := s.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.Body, &m.IsRead, &m.CreatedAt, &readAt); err != nil {
		return nil, err
	}
	if readAt.Valid {
		t := readAt.Time
		m.ReadAt = &t
	}
	return m, nil
}
