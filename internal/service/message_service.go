package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chatcore/internal/blob"
	"chatcore/internal/domain"
	"chatcore/internal/metrics"
	"chatcore/internal/security"
)

const (
	maxContentRunes = 5000
	sniffBytes      = 3072
)

// MessageOptions tunes paging and attachment limits.
type MessageOptions struct {
	DefaultPageSize    int
	MaxPageSize        int
	MaxAttachmentBytes int64
}

type MessageService struct {
	conversations domain.ConversationRepository
	messages      domain.MessageRepository
	blobs         blob.Store
	opts          MessageOptions
	log           zerolog.Logger
	now           func() time.Time
}

func NewMessageService(
	conversations domain.ConversationRepository,
	messages domain.MessageRepository,
	blobs blob.Store,
	opts MessageOptions,
	log zerolog.Logger,
) *MessageService {
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = 50
	}
	if opts.MaxPageSize < opts.DefaultPageSize {
		opts.MaxPageSize = opts.DefaultPageSize
	}
	if opts.MaxAttachmentBytes <= 0 {
		opts.MaxAttachmentBytes = 10 << 20
	}
	return &MessageService{
		conversations: conversations,
		messages:      messages,
		blobs:         blobs,
		opts:          opts,
		log:           log.With().Str("component", "message-service").Logger(),
		now:           time.Now,
	}
}

// MaxAttachmentBytes is the largest attachment SendAttachment accepts.
func (s *MessageService) MaxAttachmentBytes() int64 {
	return s.opts.MaxAttachmentBytes
}

// SendMessage persists a new message from sender. The sender counts as having
// read it at creation time.
func (s *MessageService) SendMessage(
	ctx context.Context,
	sender security.Identity,
	conversationID string,
	body domain.MessageBody,
) (*domain.Message, error) {
	if err := validateBody(body); err != nil {
		return nil, err
	}
	if err := requireParticipant(ctx, s.conversations, sender.UserID, conversationID); err != nil {
		return nil, err
	}

	now := s.now().UTC().Truncate(time.Microsecond)
	senderName := sender.DisplayName
	if senderName == "" {
		senderName = sender.UserID
	}
	msg := &domain.Message{
		ConversationID: conversationID,
		SenderID:       sender.UserID,
		SenderName:     senderName,
		CreatedAt:      now,
		ReadBy:         []domain.ReadReceipt{{UserID: sender.UserID, ReadAt: now}},
	}
	body.Apply(msg)

	stored, err := s.messages.Append(ctx, conversationID, msg)
	if err != nil {
		return nil, err
	}
	metrics.MessagesSent.WithLabelValues(string(stored.MessageType)).Inc()
	return stored, nil
}

func validateBody(body domain.MessageBody) error {
	switch b := body.(type) {
	case domain.TextBody:
		if strings.TrimSpace(b.Content) == "" {
			return domain.InvalidArgument("message content cannot be empty")
		}
		if utf8.RuneCountInString(b.Content) > maxContentRunes {
			return domain.InvalidArgument("message content exceeds %d characters", maxContentRunes)
		}
	case domain.AttachmentBody:
		if strings.TrimSpace(b.URL) == "" {
			return domain.InvalidArgument("attachment url is required")
		}
		if strings.TrimSpace(b.Name) == "" {
			return domain.InvalidArgument("attachment name is required")
		}
	default:
		return domain.InvalidArgument("message body is required")
	}
	return nil
}

// AttachmentUpload is a file received from a client, not yet stored.
type AttachmentUpload struct {
	Name string
	Size int64
	Body io.Reader
}

// SendAttachment stores the upload in the blob store and sends a message
// referencing it. Oversized uploads are rejected before anything is written.
func (s *MessageService) SendAttachment(
	ctx context.Context,
	sender security.Identity,
	conversationID string,
	up AttachmentUpload,
) (*domain.Message, error) {
	if up.Body == nil || up.Size <= 0 {
		return nil, domain.InvalidArgument("attachment file is required")
	}
	if up.Size > s.opts.MaxAttachmentBytes {
		return nil, fmt.Errorf("%w: attachment exceeds %d bytes", domain.ErrTooLarge, s.opts.MaxAttachmentBytes)
	}
	if err := requireParticipant(ctx, s.conversations, sender.UserID, conversationID); err != nil {
		return nil, err
	}

	name := filepath.Base(strings.TrimSpace(up.Name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "attachment"
	}

	head := make([]byte, sniffBytes)
	n, err := io.ReadFull(up.Body, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("read attachment: %w", err)
	}
	head = head[:n]
	mtype := mimetype.Detect(head)

	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		ext = mtype.Extension()
	}
	key := path.Join(conversationID, uuid.NewString()+ext)

	// Seekable uploads are rewound and handed over unwrapped.
	var body io.Reader
	if rs, ok := up.Body.(io.ReadSeeker); ok {
		if _, err := rs.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("rewind attachment: %w", err)
		}
		body = rs
	} else {
		body = io.LimitReader(io.MultiReader(bytes.NewReader(head), up.Body), up.Size)
	}

	url, err := s.blobs.Put(ctx, key, body, up.Size, mtype.String())
	if err != nil {
		return nil, fmt.Errorf("store attachment: %w", err)
	}
	s.log.Debug().Str("conversation_id", conversationID).Str("key", key).Str("mime", mtype.String()).Msg("attachment uploaded")

	msg, err := s.SendMessage(ctx, sender, conversationID, domain.AttachmentBody{
		URL:      url,
		Name:     name,
		Size:     up.Size,
		MIMEType: mtype.String(),
	})
	if err != nil {
		if derr := s.blobs.Delete(context.WithoutCancel(ctx), key); derr != nil {
			s.log.Warn().Err(derr).Str("key", key).Msg("failed to remove orphaned attachment")
		}
		return nil, err
	}
	return msg, nil
}

// ListMessages returns a page of the conversation history, oldest first.
func (s *MessageService) ListMessages(
	ctx context.Context,
	requesterID string,
	conversationID string,
	limit, offset int,
) ([]*domain.Message, error) {
	if offset < 0 {
		return nil, domain.InvalidArgument("offset must not be negative")
	}
	if limit <= 0 {
		limit = s.opts.DefaultPageSize
	}
	if limit > s.opts.MaxPageSize {
		limit = s.opts.MaxPageSize
	}
	if err := requireParticipant(ctx, s.conversations, requesterID, conversationID); err != nil {
		return nil, err
	}
	return s.messages.List(ctx, conversationID, limit, offset)
}

// MarkRead records userID as having read every message in the conversation
// and returns the receipt time.
func (s *MessageService) MarkRead(ctx context.Context, userID, conversationID string) (time.Time, error) {
	if err := requireParticipant(ctx, s.conversations, userID, conversationID); err != nil {
		return time.Time{}, err
	}
	readAt, err := s.messages.MarkRead(ctx, conversationID, userID)
	if err != nil {
		return time.Time{}, err
	}
	metrics.ReadMarks.Inc()
	return readAt, nil
}

// EditMessage updates content and/or type of a message the requester sent.
func (s *MessageService) EditMessage(
	ctx context.Context,
	requesterID string,
	messageID string,
	patch domain.MessagePatch,
) (*domain.Message, error) {
	if patch.Empty() {
		return nil, domain.InvalidArgument("nothing to update")
	}
	if patch.Content != nil {
		if err := validateBody(domain.TextBody{Content: *patch.Content}); err != nil {
			return nil, err
		}
	}
	if patch.MessageType != nil && !patch.MessageType.Valid() {
		return nil, domain.InvalidArgument("unknown message type %q", *patch.MessageType)
	}

	msg, err := s.ownedMessage(ctx, requesterID, messageID)
	if err != nil {
		return nil, err
	}
	if err := s.messages.Update(ctx, msg.ConversationID, messageID, patch); err != nil {
		return nil, err
	}
	return s.messages.Get(ctx, msg.ConversationID, messageID)
}

// DeleteMessage hard-deletes a message the requester sent and returns its
// last state.
func (s *MessageService) DeleteMessage(ctx context.Context, requesterID, messageID string) (*domain.Message, error) {
	msg, err := s.ownedMessage(ctx, requesterID, messageID)
	if err != nil {
		return nil, err
	}
	if err := s.messages.Delete(ctx, msg.ConversationID, messageID); err != nil {
		return nil, err
	}
	s.log.Info().Str("conversation_id", msg.ConversationID).Str("message_id", messageID).Msg("message deleted")
	return msg, nil
}

func (s *MessageService) ownedMessage(ctx context.Context, requesterID, messageID string) (*domain.Message, error) {
	convID, err := s.messages.FindConversationIDByMessageID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	msg, err := s.messages.Get(ctx, convID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != requesterID {
		return nil, fmt.Errorf("%w: only the sender may change a message", domain.ErrForbidden)
	}
	return msg, nil
}
