package sqlite

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

func (r *MessageRepo) Create(ctx context.Context, m *domain.ChatMessage) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	ts := now()
	res, err := tx.ExecContext(ctx, `UPDATE chat_rooms SET updated_at = ? WHERE id = ?`, ts, m.RoomID)
	if err != nil {
		return fmt.Errorf("touch chat room: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}

	res, err = tx.ExecContext(ctx, `
		INSERT INTO chat_messages (room_id, sender_id, body, is_read, created_at)
		VALUES (?, ?, ?, 0, ?)
	`, m.RoomID, m.SenderID, m.Body, ts)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	m.ID = id
	m.IsRead = false
	m.ReadAt = nil
	m.CreatedAt = ts
	return nil
}

func (r *MessageRepo) ListForRoom(ctx context.Context, roomID int64) ([]*domain.ChatMessage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM chat_messages
		WHERE room_id = ?
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

// LastForRoom returns nil without error when the room has no messages.
func (r *MessageRepo) LastForRoom(ctx context.Context, roomID int64) (*domain.ChatMessage, error) {
	m, err := scanMessage(r.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+`
		FROM chat_messages
		WHERE room_id = ?
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
		WHERE room_id = ? AND sender_id = ? AND is_read = 0
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
		WHERE room_id = ? AND sender_id != ? AND is_read = 0
	`, roomID, readerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

func (r *MessageRepo) MarkRead(ctx context.Context, roomID, readerID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE chat_messages SET is_read = 1, read_at = ?
		WHERE room_id = ? AND sender_id != ? AND is_read = 0
	`, now(), roomID, readerID)
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
