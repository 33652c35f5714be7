package postgres

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open opens a PostgreSQL database using the pgx stdlib driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate runs idempotent DDL migrations for the chat schema on PostgreSQL.
func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id           TEXT        PRIMARY KEY,
			display_name TEXT        NOT NULL,
			last_seen    TIMESTAMPTZ NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS conversations (
			id                       TEXT        PRIMARY KEY,
			type                     TEXT        NOT NULL,
			name                     TEXT,
			created_at               TIMESTAMPTZ NOT NULL,
			updated_at               TIMESTAMPTZ NOT NULL,
			last_message_id          TEXT,
			last_message_sender_id   TEXT,
			last_message_sender_name TEXT,
			last_message_content     TEXT,
			last_message_type        TEXT,
			last_message_at          TIMESTAMPTZ
		)`,

		`CREATE TABLE IF NOT EXISTS conversation_participants (
			conversation_id TEXT        NOT NULL REFERENCES conversations(id),
			user_id         TEXT        NOT NULL,
			display_name    TEXT        NOT NULL,
			position        INTEGER     NOT NULL,
			last_read_at    TIMESTAMPTZ,
			PRIMARY KEY (conversation_id, user_id)
		)`,

		`CREATE TABLE IF NOT EXISTS messages (
			id              TEXT        PRIMARY KEY,
			conversation_id TEXT        NOT NULL REFERENCES conversations(id),
			sender_id       TEXT        NOT NULL,
			sender_name     TEXT        NOT NULL,
			content         TEXT        NOT NULL,
			message_type    TEXT        NOT NULL,
			file_name       TEXT,
			file_size       BIGINT,
			file_type       TEXT,
			file_url        TEXT,
			created_at      TIMESTAMPTZ NOT NULL,
			updated_at      TIMESTAMPTZ
		)`,

		`CREATE TABLE IF NOT EXISTS message_reads (
			message_id TEXT        NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
			user_id    TEXT        NOT NULL,
			read_at    TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (message_id, user_id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_conv_participants_user ON conversation_participants(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conv_created ON messages(conversation_id, created_at, id)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_type ON conversations(type)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
