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

type ConversationRepo struct {
	db *sql.DB
}

func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

var _ domain.ConversationRepository = (*ConversationRepo)(nil)

const conversationColumns = `
	c.id, c.type, c.name, c.created_at, c.updated_at,
	c.last_message_id, c.last_message_sender_id, c.last_message_sender_name,
	c.last_message_content, c.last_message_type, c.last_message_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*domain.Conversation, error) {
	var (
		c                  domain.Conversation
		name               sql.NullString
		lastID, lastSender sql.NullString
		lastName, lastType sql.NullString
		lastContent        sql.NullString
		lastAt             sql.NullTime
	)
	if err := row.Scan(
		&c.ID, &c.Type, &name, &c.CreatedAt, &c.UpdatedAt,
		&lastID, &lastSender, &lastName, &lastContent, &lastType, &lastAt,
	); err != nil {
		return nil, err
	}
	c.Name = nullString(name)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	if lastID.Valid && lastAt.Valid {
		c.LastMessageAt = nullTime(lastAt)
		c.LastMessage = &domain.MessageSummary{
			ID:          lastID.String,
			SenderID:    lastSender.String,
			SenderName:  lastName.String,
			Content:     lastContent.String,
			MessageType: domain.MessageType(lastType.String),
			CreatedAt:   *c.LastMessageAt,
		}
	}
	return &c, nil
}

func (r *ConversationRepo) Create(ctx context.Context, c *domain.Conversation) error {
	now := time.Now().UTC().Truncate(time.Microsecond)
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = now
	c.UpdatedAt = now
	c.SyncParticipantIDs()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.StorageError("begin tx", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (id, type, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
	`, c.ID, string(c.Type), c.Name, now); err != nil {
		return domain.StorageError("insert conversation", err)
	}

	for i, p := range c.Participants {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversation_participants (conversation_id, user_id, display_name, position)
			VALUES ($1, $2, $3, $4)
		`, c.ID, p.UserID, p.DisplayName, i); err != nil {
			return domain.StorageError("insert participant", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.StorageError("commit", err)
	}
	return nil
}

func (r *ConversationRepo) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	c, err := scanConversation(r.db.QueryRowContext(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations c
		WHERE c.id = $1
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, domain.StorageError("get conversation", err)
	}

	byConv, err := r.loadParticipants(ctx, `conversation_id = $1`, id)
	if err != nil {
		return nil, err
	}
	c.Participants = byConv[c.ID]
	c.SyncParticipantIDs()
	return c, nil
}

func (r *ConversationRepo) ListForUser(ctx context.Context, userID string) ([]*domain.Conversation, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.InvalidArgument("user id is required")
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations c
		JOIN conversation_participants p ON p.conversation_id = c.id
		WHERE p.user_id = $1
		ORDER BY COALESCE(c.last_message_at, c.updated_at) DESC, c.id
	`, userID)
	if err != nil {
		return nil, domain.StorageError("list conversations", err)
	}
	defer rows.Close()

	convs := make([]*domain.Conversation, 0)
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, domain.StorageError("scan conversation", err)
		}
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("iterate conversations", err)
	}
	if len(convs) == 0 {
		return convs, nil
	}

	byConv, err := r.loadParticipants(ctx, `conversation_id IN (
		SELECT conversation_id FROM conversation_participants WHERE user_id = $1
	)`, userID)
	if err != nil {
		return nil, err
	}
	for _, c := range convs {
		c.Participants = byConv[c.ID]
		c.SyncParticipantIDs()
	}
	return convs, nil
}

func (r *ConversationRepo) FindDirect(ctx context.Context, userA, userB string) (*domain.Conversation, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `
		SELECT c.id
		FROM conversations c
		WHERE c.type = $1
		  AND EXISTS (SELECT 1 FROM conversation_participants p WHERE p.conversation_id = c.id AND p.user_id = $2)
		  AND EXISTS (SELECT 1 FROM conversation_participants p WHERE p.conversation_id = c.id AND p.user_id = $3)
		  AND (SELECT COUNT(*) FROM conversation_participants p WHERE p.conversation_id = c.id) = 2
		ORDER BY c.created_at
		LIMIT 1
	`, string(domain.ConversationDirect), userA, userB).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("direct conversation: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, domain.StorageError("find direct conversation", err)
	}
	return r.GetByID(ctx, id)
}

func (r *ConversationRepo) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM conversation_participants
			WHERE conversation_id = $1 AND user_id = $2
		)
	`, conversationID, userID).Scan(&exists)
	if err != nil {
		return false, domain.StorageError("check participant", err)
	}
	return exists, nil
}

func (r *ConversationRepo) loadParticipants(ctx context.Context, where string, args ...any) (map[string][]domain.Participant, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT conversation_id, user_id, display_name, last_read_at
		FROM conversation_participants
		WHERE `+where+`
		ORDER BY conversation_id, position
	`, args...)
	if err != nil {
		return nil, domain.StorageError("list participants", err)
	}
	defer rows.Close()

	res := make(map[string][]domain.Participant)
	for rows.Next() {
		var (
			convID   string
			p        domain.Participant
			lastRead sql.NullTime
		)
		if err := rows.Scan(&convID, &p.UserID, &p.DisplayName, &lastRead); err != nil {
			return nil, domain.StorageError("scan participant", err)
		}
		p.LastReadAt = nullTime(lastRead)
		res[convID] = append(res[convID], p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("iterate participants", err)
	}
	return res, nil
}
