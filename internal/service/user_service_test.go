package service_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chatcore/internal/domain"
	"chatcore/internal/security"
	"chatcore/internal/service"
)

func TestUserService(t *testing.T) {
	ctx := context.Background()

	newSvc := func() (*service.UserService, *MockConversationRepo, *MockUserDirectory) {
		convs := new(MockConversationRepo)
		users := new(MockUserDirectory)
		c1 := conversationOf("c1", domain.ConversationDirect, "alice", "bob")
		c1.Participants[1].DisplayName = "Bob"
		c2 := conversationOf("c2", domain.ConversationGroup, "carol", "alice", "bob")
		c2.Participants[0].DisplayName = "Carol"
		convs.On("ListForUser", mock.Anything, "alice").Return([]*domain.Conversation{c1, c2}, nil)
		return service.NewUserService(convs, users, zerolog.Nop()), convs, users
	}

	t.Run("ListIncludesCallerAndDedups", func(t *testing.T) {
		svc, _, _ := newSvc()
		got, err := svc.ListUsers(ctx, alice)
		require.NoError(t, err)

		ids := make([]string, len(got))
		for i, u := range got {
			ids[i] = u.ID
		}
		assert.Equal(t, []string{"alice", "bob", "carol"}, ids)
		assert.Equal(t, "Alice", got[0].Name)
	})

	t.Run("SearchIsCaseInsensitive", func(t *testing.T) {
		svc, _, _ := newSvc()
		got, err := svc.SearchUsers(ctx, alice, "CAR")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "carol", got[0].ID)

		all, err := svc.SearchUsers(ctx, alice, "")
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("RememberFallsBackToID", func(t *testing.T) {
		svc, _, users := newSvc()
		users.On("Touch", mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
			return u.ID == "dave" && u.Name == "dave" && !u.LastSeen.IsZero()
		})).Return(nil)

		require.NoError(t, svc.Remember(ctx, security.Identity{UserID: "dave"}))
		users.AssertExpectations(t)

		assert.ErrorIs(t, svc.Remember(ctx, security.Identity{}), domain.ErrInvalidArgument)
	})
}
