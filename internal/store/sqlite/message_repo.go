package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"chatcore/internal/domain"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

const messageColumns = `
	id, conversation_id, sender_id, sender_name, content, message_type,
	file_name, file_size, file_type, file_url, created_at, updated_at`

func scanMessage(row rowScanner) (*domain.Message, error) {
	var (
		m                  domain.Message
		fileName, fileType sql.NullString
		fileURL            sql.NullString
		fileSize           sql.NullInt64
		createdAt          int64
		updatedAt          sql.NullInt64
	)
	if err := row.Scan(
		&m.ID, &m.ConversationID, &m.SenderID, &m.SenderName, &m.Content, &m.MessageType,
		&fileName, &fileSize, &fileType, &fileURL, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	m.FileName = nullString(fileName)
	m.FileType = nullString(fileType)
	m.FileURL = nullString(fileURL)
	if fileSize.Valid {
		size := fileSize.Int64
		m.FileSize = &size
	}
	m.CreatedAt = fromUnix(createdAt)
	m.UpdatedAt = fromNullUnix(updatedAt)
	m.ReadBy = []domain.ReadReceipt{}
	return &m, nil
}

// Append stores m under conversationID with a fresh id. The message, its
// initial receipts and the conversation preview are written in one transaction.
func (r *MessageRepo) Append(ctx context.Context, conversationID string, m *domain.Message) (*domain.Message, error) {
	stored := *m
	stored.ID = uuid.NewString()
	stored.ConversationID = conversationID
	stored.ReadBy = append([]domain.ReadReceipt{}, m.ReadBy...)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, domain.StorageError("begin tx", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
	`,
		stored.ID, stored.ConversationID, stored.SenderID, stored.SenderName,
		stored.Content, stored.MessageType,
		stored.FileName, stored.FileSize, stored.FileType, stored.FileURL,
		toUnix(stored.CreatedAt),
	); err != nil {
		return nil, domain.StorageError("insert message", err)
	}

	for _, rr := range stored.ReadBy {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO message_reads (message_id, user_id, read_at)
			VALUES (?, ?, ?)
			ON CONFLICT (message_id, user_id) DO NOTHING
		`, stored.ID, rr.UserID, toUnix(rr.ReadAt)); err != nil {
			return nil, domain.StorageError("insert receipt", err)
		}
	}

	if err := refreshLastMessage(ctx, tx, conversationID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, domain.StorageError("commit", err)
	}
	return &stored, nil
}

// List returns messages ordered by createdAt ascending (id breaks ties),
// windowed by offset and limit. A non-positive limit returns everything.
func (r *MessageRepo) List(ctx context.Context, conversationID string, limit, offset int) ([]*domain.Message, error) {
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC, id ASC
		LIMIT ? OFFSET ?
	`, conversationID, limit, offset)
	if err != nil {
		return nil, domain.StorageError("list messages", err)
	}
	msgs, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}
	if err := r.attachReceipts(ctx, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *MessageRepo) Get(ctx context.Context, conversationID, messageID string) (*domain.Message, error) {
	m, err := scanMessage(r.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = ? AND id = ?
	`, conversationID, messageID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("message %s: %w", messageID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, domain.StorageError("get message", err)
	}
	if err := r.attachReceipts(ctx, []*domain.Message{m}); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *MessageRepo) Update(ctx context.Context, conversationID, messageID string, patch domain.MessagePatch) error {
	sets := []string{"updated_at = ?"}
	args := []any{toUnix(time.Now())}
	if patch.Content != nil {
		sets = append(sets, "content = ?")
		args = append(args, *patch.Content)
	}
	if patch.MessageType != nil {
		sets = append(sets, "message_type = ?")
		args = append(args, *patch.MessageType)
	}
	args = append(args, conversationID, messageID)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.StorageError("begin tx", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE messages SET `+strings.Join(sets, ", ")+`
		WHERE conversation_id = ? AND id = ?
	`, args...)
	if err != nil {
		return domain.StorageError("update message", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return domain.StorageError("update message", err)
	} else if n == 0 {
		return fmt.Errorf("message %s: %w", messageID, domain.ErrNotFound)
	}

	if err := refreshLastMessage(ctx, tx, conversationID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return domain.StorageError("commit", err)
	}
	return nil
}

func (r *MessageRepo) Delete(ctx context.Context, conversationID, messageID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.StorageError("begin tx", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM message_reads WHERE message_id = ?`, messageID); err != nil {
		return domain.StorageError("delete receipts", err)
	}
	res, err := tx.ExecContext(ctx, `
		DELETE FROM messages WHERE conversation_id = ? AND id = ?
	`, conversationID, messageID)
	if err != nil {
		return domain.StorageError("delete message", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return domain.StorageError("delete message", err)
	} else if n == 0 {
		return fmt.Errorf("message %s: %w", messageID, domain.ErrNotFound)
	}

	if err := refreshLastMessage(ctx, tx, conversationID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return domain.StorageError("commit", err)
	}
	return nil
}

// MarkRead adds a receipt for userID to every message of the conversation
// that lacks one and stamps the participant's lastReadAt, atomically.
// Existing receipts are never overwritten.
func (r *MessageRepo) MarkRead(ctx context.Context, conversationID, userID string) (time.Time, error) {
	now := time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return time.Time{}, domain.StorageError("begin tx", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO message_reads (message_id, user_id, read_at)
		SELECT id, ?, ? FROM messages WHERE conversation_id = ?
		ON CONFLICT (message_id, user_id) DO NOTHING
	`, userID, toUnix(now), conversationID); err != nil {
		return time.Time{}, domain.StorageError("insert receipts", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE conversation_participants SET last_read_at = ?
		WHERE conversation_id = ? AND user_id = ?
	`, toUnix(now), conversationID, userID); err != nil {
		return time.Time{}, domain.StorageError("update last read", err)
	}

	if err := tx.Commit(); err != nil {
		return time.Time{}, domain.StorageError("commit", err)
	}
	return now, nil
}

func (r *MessageRepo) FindConversationIDByMessageID(ctx context.Context, messageID string) (string, error) {
	var convID string
	err := r.db.QueryRowContext(ctx, `
		SELECT conversation_id FROM messages WHERE id = ?
	`, messageID).Scan(&convID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("message %s: %w", messageID, domain.ErrNotFound)
	}
	if err != nil {
		return "", domain.StorageError("find conversation by message", err)
	}
	return convID, nil
}

func collectMessages(rows *sql.Rows) ([]*domain.Message, error) {
	defer rows.Close()

	res := make([]*domain.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, domain.StorageError("scan message", err)
		}
		res = append(res, m)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("iterate messages", err)
	}
	return res, nil
}

func (r *MessageRepo) attachReceipts(ctx context.Context, msgs []*domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	byID := make(map[string]*domain.Message, len(msgs))
	args := make([]any, len(msgs))
	for i, m := range msgs {
		byID[m.ID] = m
		args[i] = m.ID
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT message_id, user_id, read_at
		FROM message_reads
		WHERE message_id IN (?`+strings.Repeat(",?", len(msgs)-1)+`)
		ORDER BY read_at, user_id
	`, args...)
	if err != nil {
		return domain.StorageError("list receipts", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			msgID  string
			rr     domain.ReadReceipt
			readAt int64
		)
		if err := rows.Scan(&msgID, &rr.UserID, &readAt); err != nil {
			return domain.StorageError("scan receipt", err)
		}
		rr.ReadAt = fromUnix(readAt)
		if m, ok := byID[msgID]; ok {
			m.ReadBy = append(m.ReadBy, rr)
		}
	}
	if err := rows.Err(); err != nil {
		return domain.StorageError("iterate receipts", err)
	}
	return nil
}

// refreshLastMessage rewrites the conversation preview from its newest
// remaining message.
func refreshLastMessage(ctx context.Context, tx *sql.Tx, conversationID string) error {
	if _, err := tx.ExecContext(ctx, `
		UPDATE conversations SET
			(last_message_id, last_message_sender_id, last_message_sender_name,
			 last_message_content, last_message_type, last_message_at) = (
				SELECT id, sender_id, sender_name, content, message_type, created_at
				FROM messages
				WHERE conversation_id = ?
				ORDER BY created_at DESC, id DESC
				LIMIT 1
			),
			updated_at = ?
		WHERE id = ?
	`, conversationID, toUnix(time.Now()), conversationID); err != nil {
		return domain.StorageError("refresh last message", err)
	}
	return nil
}
