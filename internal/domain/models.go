package domain

import "time"

// ConversationType distinguishes one-to-one chats from groups.
type ConversationType string

const (
	ConversationDirect ConversationType = "direct"
	ConversationGroup  ConversationType = "group"
)

func (t ConversationType) Valid() bool {
	return t == ConversationDirect || t == ConversationGroup
}

// MessageType is the kind of payload a message carries.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageFile  MessageType = "file"
)

func (t MessageType) Valid() bool {
	return t == MessageText || t == MessageImage || t == MessageFile
}

// Participant is a member of a conversation.
type Participant struct {
	UserID      string     `json:"userId"`
	DisplayName string     `json:"displayName"`
	LastReadAt  *time.Time `json:"lastReadAt,omitempty"`
}

// MessageSummary is the denormalized preview of a conversation's newest message.
type MessageSummary struct {
	ID          string      `json:"id"`
	SenderID    string      `json:"senderId"`
	SenderName  string      `json:"senderName"`
	Content     string      `json:"content"`
	MessageType MessageType `json:"messageType"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// Conversation represents a chat conversation (direct or group).
type Conversation struct {
	ID             string           `json:"id"`
	Type           ConversationType `json:"type"`
	Name           *string          `json:"name,omitempty"`
	Participants   []Participant    `json:"participants"`
	ParticipantIDs []string         `json:"participantIds"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
	LastMessage    *MessageSummary  `json:"lastMessage,omitempty"`
	LastMessageAt  *time.Time       `json:"lastMessageAt,omitempty"`
}

// HasParticipant reports whether userID is a member of the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, id := range c.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// SyncParticipantIDs rebuilds ParticipantIDs from Participants.
func (c *Conversation) SyncParticipantIDs() {
	ids := make([]string, len(c.Participants))
	for i, p := range c.Participants {
		ids[i] = p.UserID
	}
	c.ParticipantIDs = ids
}

// ReadReceipt records that a user has read a message.
type ReadReceipt struct {
	UserID string    `json:"userId"`
	ReadAt time.Time `json:"readAt"`
}

// Message represents a single chat message.
type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversationId"`
	SenderID       string        `json:"senderId"`
	SenderName     string        `json:"senderName"`
	Content        string        `json:"content"`
	MessageType    MessageType   `json:"messageType"`
	FileName       *string       `json:"fileName,omitempty"`
	FileSize       *int64        `json:"fileSize,omitempty"`
	FileType       *string       `json:"fileType,omitempty"`
	FileURL        *string       `json:"fileUrl,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      *time.Time    `json:"updatedAt,omitempty"`
	ReadBy         []ReadReceipt `json:"readBy"`
}

// IsReadBy reports whether userID has a receipt on the message.
func (m *Message) IsReadBy(userID string) bool {
	for _, r := range m.ReadBy {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

// Summary returns the conversation preview for the message.
func (m *Message) Summary() *MessageSummary {
	return &MessageSummary{
		ID:          m.ID,
		SenderID:    m.SenderID,
		SenderName:  m.SenderName,
		Content:     m.Content,
		MessageType: m.MessageType,
		CreatedAt:   m.CreatedAt,
	}
}

// MessagePatch holds the editable fields of a message. Nil fields are left untouched.
type MessagePatch struct {
	Content     *string
	MessageType *MessageType
}

// Empty reports whether the patch changes nothing.
func (p MessagePatch) Empty() bool {
	return p.Content == nil && p.MessageType == nil
}

// User is an identity seen by this service. Identities are issued elsewhere.
type User struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	LastSeen time.Time `json:"-"`
}
