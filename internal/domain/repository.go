package domain

import (
	"context"
	"time"
)

// ConversationRepository defines persistence operations for conversations.
type ConversationRepository interface {
	Create(ctx context.Context, c *Conversation) error
	GetByID(ctx context.Context, id string) (*Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]*Conversation, error)
	FindDirect(ctx context.Context, userA, userB string) (*Conversation, error)
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
}

// MessageRepository defines persistence operations for messages.
type MessageRepository interface {
	Append(ctx context.Context, conversationID string, m *Message) (*Message, error)
	List(ctx context.Context, conversationID string, limit, offset int) ([]*Message, error)
	Get(ctx context.Context, conversationID, messageID string) (*Message, error)
	Update(ctx context.Context, conversationID, messageID string, patch MessagePatch) error
	Delete(ctx context.Context, conversationID, messageID string) error
	MarkRead(ctx context.Context, conversationID, userID string) (time.Time, error)
	FindConversationIDByMessageID(ctx context.Context, messageID string) (string, error)
}

// UserDirectory remembers display names of identities that reached the service.
type UserDirectory interface {
	Touch(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
}
