package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"chatcore/internal/domain"
	"chatcore/internal/security"
)

// UserService answers user lookups from the people a caller already shares
// conversations with, and records identities as they are seen.
type UserService struct {
	conversations domain.ConversationRepository
	users         domain.UserDirectory
	log           zerolog.Logger
	now           func() time.Time
}

func NewUserService(
	conversations domain.ConversationRepository,
	users domain.UserDirectory,
	log zerolog.Logger,
) *UserService {
	return &UserService{
		conversations: conversations,
		users:         users,
		log:           log.With().Str("component", "user-service").Logger(),
		now:           time.Now,
	}
}

// Remember records the verified identity in the user directory.
func (s *UserService) Remember(ctx context.Context, id security.Identity) error {
	if id.UserID == "" {
		return domain.InvalidArgument("user id is required")
	}
	name := id.DisplayName
	if name == "" {
		name = id.UserID
	}
	return s.users.Touch(ctx, &domain.User{ID: id.UserID, Name: name, LastSeen: s.now().UTC()})
}

// ListUsers returns the caller and everyone sharing a conversation with them,
// sorted by name.
func (s *UserService) ListUsers(ctx context.Context, caller security.Identity) ([]*domain.User, error) {
	if caller.UserID == "" {
		return nil, domain.InvalidArgument("user id is required")
	}
	convs, err := s.conversations.ListForUser(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}

	callerName := caller.DisplayName
	if callerName == "" {
		callerName = caller.UserID
	}
	byID := map[string]*domain.User{
		caller.UserID: {ID: caller.UserID, Name: callerName},
	}
	for _, c := range convs {
		for _, p := range c.Participants {
			if _, ok := byID[p.UserID]; ok {
				continue
			}
			name := p.DisplayName
			if name == "" {
				name = p.UserID
			}
			byID[p.UserID] = &domain.User{ID: p.UserID, Name: name}
		}
	}

	users := make([]*domain.User, 0, len(byID))
	for _, u := range byID {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].Name != users[j].Name {
			return users[i].Name < users[j].Name
		}
		return users[i].ID < users[j].ID
	})
	return users, nil
}

// SearchUsers filters ListUsers by a case-insensitive substring of name or id.
// An empty query returns everything.
func (s *UserService) SearchUsers(ctx context.Context, caller security.Identity, query string) ([]*domain.User, error) {
	users, err := s.ListUsers(ctx, caller)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return users, nil
	}
	matched := users[:0]
	for _, u := range users {
		if strings.Contains(strings.ToLower(u.Name), q) || strings.Contains(strings.ToLower(u.ID), q) {
			matched = append(matched, u)
		}
	}
	return matched, nil
}
