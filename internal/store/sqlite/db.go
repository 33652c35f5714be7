package sqlite

import (
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "modernc.org/sqlite"
)

// DSN builds a modernc sqlite DSN for the database file at path with foreign
// keys, WAL journaling and a busy timeout enabled on every connection.
func DSN(path string) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	return "file:" + path + "?" + q.Encode()
}

// Open opens a SQLite database with the given DSN. SQLite allows a single
// writer, so the pool is pinned to one connection; transactions therefore
// must never reach back to the *sql.DB while they are open.
func Open(dsn string) (*sql.DB, error) {
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

// Migrate runs the idempotent CREATE TABLE / CREATE INDEX statements.
// Timestamps are stored as UTC unix nanoseconds so ordering is numeric.
func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id           TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			last_seen    INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id                       TEXT PRIMARY KEY,
			type                     TEXT NOT NULL,
			name                     TEXT,
			created_at               INTEGER NOT NULL,
			updated_at               INTEGER NOT NULL,
			last_message_id          TEXT,
			last_message_sender_id   TEXT,
			last_message_sender_name TEXT,
			last_message_content     TEXT,
			last_message_type        TEXT,
			last_message_at          INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS conversation_participants (
			conversation_id TEXT NOT NULL,
			user_id         TEXT NOT NULL,
			display_name    TEXT NOT NULL,
			position        INTEGER NOT NULL,
			last_read_at    INTEGER,
			PRIMARY KEY (conversation_id, user_id),
			FOREIGN KEY (conversation_id) REFERENCES conversations(id)
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id              TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			sender_id       TEXT NOT NULL,
			sender_name     TEXT NOT NULL,
			content         TEXT NOT NULL,
			message_type    TEXT NOT NULL,
			file_name       TEXT,
			file_size       INTEGER,
			file_type       TEXT,
			file_url        TEXT,
			created_at      INTEGER NOT NULL,
			updated_at      INTEGER,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id)
		);`,
		`CREATE TABLE IF NOT EXISTS message_reads (
			message_id TEXT NOT NULL,
			user_id    TEXT NOT NULL,
			read_at    INTEGER NOT NULL,
			PRIMARY KEY (message_id, user_id),
			FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_conv_participants_user ON conversation_participants(user_id);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conv_created ON messages(conversation_id, created_at, id);`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_type ON conversations(type);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	return nil
}

func toUnix(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromUnix(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func fromNullUnix(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromUnix(n.Int64)
	return &t
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
