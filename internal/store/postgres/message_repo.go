package postgres

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
		msgType            string
		fileName, fileType sql.NullString
		fileURL            sql.NullString
		fileSize           sql.NullInt64
		updatedAt          sql.NullTime
	)
	if err := row.Scan(
		&m.ID, &m.ConversationID, &m.SenderID, &m.SenderName, &m.Content, &msgType,
		&fileName, &fileSize, &fileType, &fileURL, &m.CreatedAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	m.MessageType = domain.MessageType(msgType)
	m.FileName = nullString(fileName)
	m.FileType = nullString(fileType)
	m.FileURL = nullString(fileURL)
	if fileSize.Valid {
		size := fileSize.Int64
		m.FileSize = &size
	}
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = nullTime(updatedAt)
	m.ReadBy = []domain.ReadReceipt{}
	return &m, nil
}

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

	if err := lockConversation(ctx, tx, conversationID); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NULL)
	`,
		stored.ID, stored.ConversationID, stored.SenderID, stored.SenderName,
		stored.Content, string(stored.MessageType),
		stored.FileName, stored.FileSize, stored.FileType, stored.FileURL,
		stored.CreatedAt,
	); err != nil {
		return nil, domain.StorageError("insert message", err)
	}

	for _, rr := range stored.ReadBy {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO message_reads (message_id, user_id, read_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (message_id, user_id) DO NOTHING
		`, stored.ID, rr.UserID, rr.ReadAt); err != nil {
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

func (r *MessageRepo) List(ctx context.Context, conversationID string, limit, offset int) ([]*domain.Message, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2 OFFSET $3
	`, conversationID, lim, offset)
	if err != nil {
		return nil, domain.StorageError("list messages", err)
	}
	defer rows.Close()

	msgs := make([]*domain.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, domain.StorageError("scan message", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("iterate messages", err)
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
		WHERE conversation_id = $1 AND id = $2
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
	sets := []string{"updated_at = $1"}
	args := []any{time.Now().UTC()}
	if patch.Content != nil {
		args = append(args, *patch.Content)
		sets = append(sets, fmt.Sprintf("content = $%d", len(args)))
	}
	if patch.MessageType != nil {
		args = append(args, string(*patch.MessageType))
		sets = append(sets, fmt.Sprintf("message_type = $%d", len(args)))
	}
	args = append(args, conversationID, messageID)
	where := fmt.Sprintf("conversation_id = $%d AND id = $%d", len(args)-1, len(args))

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.StorageError("begin tx", err)
	}
	defer tx.Rollback()

	if err := lockConversation(ctx, tx, conversationID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE messages SET `+strings.Join(sets, ", ")+` WHERE `+where, args...)
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

	if err := lockConversation(ctx, tx, conversationID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `
		DELETE FROM messages WHERE conversation_id = $1 AND id = $2
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
// that lacks one and stamps the participant's lastReadAt in one transaction.
func (r *MessageRepo) MarkRead(ctx context.Context, conversationID, userID string) (time.Time, error) {
	now := time.Now().UTC().Truncate(time.Microsecond)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return time.Time{}, domain.StorageError("begin tx", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO message_reads (message_id, user_id, read_at)
		SELECT id, $1, $2 FROM messages WHERE conversation_id = $3
		ON CONFLICT (message_id, user_id) DO NOTHING
	`, userID, now, conversationID); err != nil {
		return time.Time{}, domain.StorageError("insert receipts", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE conversation_participants SET last_read_at = $1
		WHERE conversation_id = $2 AND user_id = $3
	`, now, conversationID, userID); err != nil {
		return time.Time{}, domain.StorageError("update last read", err)
	}

	if err := tx.Commit(); err != nil {
		return time.Time{}, domain.StorageError("commit", err)
	}
	return now, nil
}

func (r *MessageRepo) FindConversationIDByMessageID(ctx context.Context, messageID string) (string, error) {
	var convID string
	err := r.db.QueryRowContext(ctx, `SELECT conversation_id FROM messages WHERE id = $1`, messageID).Scan(&convID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("message %s: %w", messageID, domain.ErrNotFound)
	}
	if err != nil {
		return "", domain.StorageError("find conversation by message", err)
	}
	return convID, nil
}

func (r *MessageRepo) attachReceipts(ctx context.Context, msgs []*domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	byID := make(map[string]*domain.Message, len(msgs))
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		byID[m.ID] = m
		ids[i] = m.ID
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT message_id, user_id, read_at
		FROM message_reads
		WHERE message_id = ANY($1)
		ORDER BY read_at, user_id
	`, ids)
	if err != nil {
		return domain.StorageError("list receipts", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			msgID string
			rr    domain.ReadReceipt
		)
		if err := rows.Scan(&msgID, &rr.UserID, &rr.ReadAt); err != nil {
			return domain.StorageError("scan receipt", err)
		}
		rr.ReadAt = rr.ReadAt.UTC()
		if m, ok := byID[msgID]; ok {
			m.ReadBy = append(m.ReadBy, rr)
		}
	}
	if err := rows.Err(); err != nil {
		return domain.StorageError("iterate receipts", err)
	}
	return nil
}

// lockConversation takes the conversation row lock so that writers of one
// conversation commit one after another and each preview refresh sees every
// message committed before it.
func lockConversation(ctx context.Context, tx *sql.Tx, conversationID string) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM conversations WHERE id = $1 FOR UPDATE`, conversationID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("conversation %s: %w", conversationID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.StorageError("lock conversation", err)
	}
	return nil
}

func refreshLastMessage(ctx context.Context, tx *sql.Tx, conversationID string) error {
	if _, err := tx.ExecContext(ctx, `
		UPDATE conversations SET
			(last_message_id, last_message_sender_id, last_message_sender_name,
			 last_message_content, last_message_type, last_message_at) = (
				SELECT id, sender_id, sender_name, content, message_type, created_at
				FROM messages
				WHERE conversation_id = $1
				ORDER BY created_at DESC, id DESC
				LIMIT 1
			),
			updated_at = $2
		WHERE id = $1
	`, conversationID, time.Now().UTC()); err != nil {
		return domain.StorageError("refresh last message", err)
	}
	return nil
}
