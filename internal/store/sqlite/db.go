package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// now is the clock used for every timestamp written by this package. SQLite
// has no sub-second CURRENT_TIMESTAMP, so times are produced in Go.
var now = func() time.Time { return time.Now().UTC() }

// Open opens a SQLite database file. Foreign keys and a busy timeout are
// enabled through the DSN so every pooled connection gets them, and the pool
// is limited to a single connection because SQLite serializes writers anyway.
func Open(path string) (*sql.DB, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}

// Migrate runs idempotent DDL for the chat schema.
func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username VARCHAR(50) UNIQUE NOT NULL,
			email VARCHAR(100) UNIQUE,
			full_name VARCHAR(100) NOT NULL DEFAULT '',
			role VARCHAR(16) NOT NULL DEFAULT 'customer',
			hashed_password VARCHAR(255) NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			is_online BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			last_seen DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS chat_rooms (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			customer_id INTEGER NOT NULL,
			status VARCHAR(16) NOT NULL DEFAULT 'ACTIVE' CHECK (status IN ('ACTIVE', 'CLOSED')),
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY (customer_id) REFERENCES users(id)
		);`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			room_id INTEGER NOT NULL,
			sender_id INTEGER NOT NULL,
			body TEXT NOT NULL,
			is_read BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			read_at DATETIME DEFAULT NULL,
			FOREIGN KEY (room_id) REFERENCES chat_rooms(id),
			FOREIGN KEY (sender_id) REFERENCES users(id)
		);`,
		// One ACTIVE room per customer.
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_chat_rooms_active_customer ON chat_rooms(customer_id) WHERE status = 'ACTIVE';`,
		`CREATE INDEX IF NOT EXISTS idx_users_is_online ON users(is_online);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_rooms_status_updated ON chat_rooms(status, updated_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_room_created ON chat_messages(room_id, created_at, id);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_room_unread ON chat_messages(room_id, is_read);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
