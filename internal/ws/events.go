package ws

import (
	"encoding/json"
	"time"
)

// Inbound events.
const (
	EventJoinConversation  = "join_conversation"
	EventLeaveConversation = "leave_conversation"
	EventMarkAsRead        = "mark_as_read"
	EventUserTyping        = "user_typing"
	EventUserStoppedTyping = "user_stopped_typing"
)

// Outbound events.
const (
	EventJoinedConversation = "joined_conversation"
	EventNewMessage         = "new_message"
	EventMessagesRead       = "messages_read"
	EventMessageUpdated     = "message_updated"
	EventMessageDeleted     = "message_deleted"
	EventError              = "error"
)

// Envelope is the wire shape of every frame in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Frame is an outbound event encoded once and shared by every recipient.
type Frame struct {
	Event string
	Bytes []byte
}

// NewFrame encodes data under the given event name.
func NewFrame(event string, data any) (Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Frame{}, err
	}
	b, err := json.Marshal(Envelope{Event: event, Data: raw})
	if err != nil {
		return Frame{}, err
	}
	return Frame{Event: event, Bytes: b}, nil
}

// RoomRef is the payload of join, leave, mark-read and typing events.
type RoomRef struct {
	ConversationID string `json:"conversationId"`
}

type MessagesReadPayload struct {
	ConversationID string    `json:"conversationId"`
	UserID         string    `json:"userId"`
	ReadAt         time.Time `json:"readAt"`
}

type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	UserName       string `json:"userName"`
}

type MessageDeletedPayload struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
