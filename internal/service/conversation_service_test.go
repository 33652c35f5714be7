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

var alice = security.Identity{UserID: "alice", DisplayName: "Alice"}

func TestCreateConversation(t *testing.T) {
	ctx := context.Background()

	t.Run("GroupStartsWithRequester", func(t *testing.T) {
		convs := new(MockConversationRepo)
		users := new(MockUserDirectory)
		svc := service.NewConversationService(convs, users, zerolog.Nop())

		users.On("GetByID", mock.Anything, "bob").Return(&domain.User{ID: "bob", Name: "Bob"}, nil)
		users.On("GetByID", mock.Anything, "carol").Return(nil, domain.ErrNotFound)
		convs.On("Create", mock.Anything, mock.AnythingOfType("*domain.Conversation")).Return(nil)

		name := "  Team  "
		conv, err := svc.CreateConversation(ctx, alice, service.ConversationCreateInput{
			Type:           domain.ConversationGroup,
			Name:           &name,
			ParticipantIDs: []string{"bob", "alice", "carol", "bob"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"alice", "bob", "carol"}, conv.ParticipantIDs)
		assert.Equal(t, "Alice", conv.Participants[0].DisplayName)
		assert.Equal(t, "Bob", conv.Participants[1].DisplayName)
		assert.Equal(t, "carol", conv.Participants[2].DisplayName)
		require.NotNil(t, conv.Name)
		assert.Equal(t, "Team", *conv.Name)
		convs.AssertExpectations(t)
	})

	t.Run("DirectReturnsExisting", func(t *testing.T) {
		convs := new(MockConversationRepo)
		users := new(MockUserDirectory)
		svc := service.NewConversationService(convs, users, zerolog.Nop())

		existing := conversationOf("c1", domain.ConversationDirect, "alice", "bob")
		convs.On("FindDirect", mock.Anything, "alice", "bob").Return(existing, nil)

		conv, err := svc.CreateConversation(ctx, alice, service.ConversationCreateInput{
			Type:           domain.ConversationDirect,
			ParticipantIDs: []string{"bob"},
		})
		require.NoError(t, err)
		assert.Same(t, existing, conv)
		convs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("DirectCreatesWithoutName", func(t *testing.T) {
		convs := new(MockConversationRepo)
		users := new(MockUserDirectory)
		svc := service.NewConversationService(convs, users, zerolog.Nop())

		convs.On("FindDirect", mock.Anything, "alice", "bob").Return(nil, domain.ErrNotFound)
		users.On("GetByID", mock.Anything, "bob").Return(&domain.User{ID: "bob", Name: "Bob"}, nil)
		convs.On("Create", mock.Anything, mock.AnythingOfType("*domain.Conversation")).Return(nil)

		name := "ignored"
		conv, err := svc.CreateConversation(ctx, alice, service.ConversationCreateInput{
			Type:           domain.ConversationDirect,
			Name:           &name,
			ParticipantIDs: []string{"bob"},
		})
		require.NoError(t, err)
		assert.Nil(t, conv.Name)
		assert.Equal(t, []string{"alice", "bob"}, conv.ParticipantIDs)
	})

	t.Run("DirectNeedsExactlyTwo", func(t *testing.T) {
		svc := service.NewConversationService(new(MockConversationRepo), new(MockUserDirectory), zerolog.Nop())
		_, err := svc.CreateConversation(ctx, alice, service.ConversationCreateInput{
			Type:           domain.ConversationDirect,
			ParticipantIDs: []string{"bob", "carol"},
		})
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	})

	t.Run("RequiresAnotherParticipant", func(t *testing.T) {
		svc := service.NewConversationService(new(MockConversationRepo), new(MockUserDirectory), zerolog.Nop())
		_, err := svc.CreateConversation(ctx, alice, service.ConversationCreateInput{
			Type:           domain.ConversationGroup,
			ParticipantIDs: []string{"alice", " "},
		})
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	})

	t.Run("UnknownType", func(t *testing.T) {
		svc := service.NewConversationService(new(MockConversationRepo), new(MockUserDirectory), zerolog.Nop())
		_, err := svc.CreateConversation(ctx, alice, service.ConversationCreateInput{
			Type:           "channel",
			ParticipantIDs: []string{"bob"},
		})
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	})
}

func TestGetConversation(t *testing.T) {
	ctx := context.Background()
	convs := new(MockConversationRepo)
	svc := service.NewConversationService(convs, new(MockUserDirectory), zerolog.Nop())

	convs.On("GetByID", mock.Anything, "c1").Return(conversationOf("c1", domain.ConversationDirect, "alice", "bob"), nil)
	convs.On("GetByID", mock.Anything, "missing").Return(nil, domain.ErrNotFound)

	conv, err := svc.GetConversation(ctx, "bob", "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", conv.ID)

	_, err = svc.GetConversation(ctx, "mallory", "c1")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = svc.GetConversation(ctx, "alice", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListConversations(t *testing.T) {
	convs := new(MockConversationRepo)
	svc := service.NewConversationService(convs, new(MockUserDirectory), zerolog.Nop())

	_, err := svc.ListConversations(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	want := []*domain.Conversation{conversationOf("c1", domain.ConversationGroup, "alice", "bob")}
	convs.On("ListForUser", mock.Anything, "alice").Return(want, nil)
	got, err := svc.ListConversations(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
