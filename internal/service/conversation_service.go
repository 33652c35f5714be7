package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"chatcore/internal/domain"
	"chatcore/internal/security"
)

type ConversationService struct {
	conversations domain.ConversationRepository
	users         domain.UserDirectory
	log           zerolog.Logger
}

func NewConversationService(
	conversations domain.ConversationRepository,
	users domain.UserDirectory,
	log zerolog.Logger,
) *ConversationService {
	return &ConversationService{
		conversations: conversations,
		users:         users,
		log:           log.With().Str("component", "conversation-service").Logger(),
	}
}

type ConversationCreateInput struct {
	Type           domain.ConversationType
	Name           *string
	ParticipantIDs []string
}

// CreateConversation creates a conversation whose participants are the
// requester followed by the requested users. A direct conversation needs
// exactly one other user; if the pair already has one it is returned as is.
func (s *ConversationService) CreateConversation(
	ctx context.Context,
	requester security.Identity,
	in ConversationCreateInput,
) (*domain.Conversation, error) {
	if requester.UserID == "" {
		return nil, domain.InvalidArgument("requester id is required")
	}
	if !in.Type.Valid() {
		return nil, domain.InvalidArgument("type must be %q or %q", domain.ConversationDirect, domain.ConversationGroup)
	}

	// Include creator
	ids := []string{requester.UserID}
	seen := map[string]struct{}{requester.UserID: {}}
	for _, id := range in.ParticipantIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) < 2 {
		return nil, domain.InvalidArgument("at least one other participant is required")
	}

	var name *string
	switch in.Type {
	case domain.ConversationDirect:
		if len(ids) != 2 {
			return nil, domain.InvalidArgument("a direct conversation has exactly two participants")
		}
		existing, err := s.conversations.FindDirect(ctx, ids[0], ids[1])
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("find existing conversation: %w", err)
		}
	case domain.ConversationGroup:
		if in.Name != nil {
			if n := strings.TrimSpace(*in.Name); n != "" {
				name = &n
			}
		}
	}

	requesterName := requester.DisplayName
	if requesterName == "" {
		requesterName = requester.UserID
	}
	participants := make([]domain.Participant, 0, len(ids))
	participants = append(participants, domain.Participant{UserID: requester.UserID, DisplayName: requesterName})
	for _, id := range ids[1:] {
		displayName, err := s.resolveName(ctx, id)
		if err != nil {
			return nil, err
		}
		participants = append(participants, domain.Participant{UserID: id, DisplayName: displayName})
	}

	conv := &domain.Conversation{
		Type:         in.Type,
		Name:         name,
		Participants: participants,
	}
	if err := s.conversations.Create(ctx, conv); err != nil {
		return nil, err
	}
	s.log.Info().
		Str("conversation_id", conv.ID).
		Str("type", string(conv.Type)).
		Int("participants", len(conv.Participants)).
		Msg("conversation created")
	return conv, nil
}

// resolveName looks the user up in the directory, falling back to the id for
// users that never reached this service.
func (s *ConversationService) resolveName(ctx context.Context, userID string) (string, error) {
	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return userID, nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve display name: %w", err)
	}
	if u.Name == "" {
		return userID, nil
	}
	return u.Name, nil
}

func (s *ConversationService) ListConversations(ctx context.Context, userID string) ([]*domain.Conversation, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.InvalidArgument("user id is required")
	}
	return s.conversations.ListForUser(ctx, userID)
}

func (s *ConversationService) GetConversation(
	ctx context.Context,
	requesterID string,
	conversationID string,
) (*domain.Conversation, error) {
	return loadForParticipant(ctx, s.conversations, requesterID, conversationID)
}

// loadForParticipant returns the conversation if requesterID is one of its
// participants: ErrNotFound if it does not exist, ErrForbidden otherwise.
func loadForParticipant(
	ctx context.Context,
	conversations domain.ConversationRepository,
	requesterID string,
	conversationID string,
) (*domain.Conversation, error) {
	conv, err := conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(requesterID) {
		return nil, fmt.Errorf("%w: not a participant in this conversation", domain.ErrForbidden)
	}
	return conv, nil
}

// requireParticipant checks membership without loading the conversation,
// falling back to loadForParticipant to tell NotFound from Forbidden.
func requireParticipant(
	ctx context.Context,
	conversations domain.ConversationRepository,
	requesterID string,
	conversationID string,
) error {
	ok, err := conversations.IsParticipant(ctx, conversationID, requesterID)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	_, err = loadForParticipant(ctx, conversations, requesterID, conversationID)
	return err
}
