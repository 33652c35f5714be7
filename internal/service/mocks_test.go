package service_test

import (
	"context"
	"io"
	"time"

	"github.com/stretchr/testify/mock"

	"chatcore/internal/domain"
)

type MockConversationRepo struct {
	mock.Mock
}

func (m *MockConversationRepo) Create(ctx context.Context, c *domain.Conversation) error {
	args := m.Called(ctx, c)
	if args.Error(0) == nil {
		c.ID = "new-conv"
		c.SyncParticipantIDs()
	}
	return args.Error(0)
}

func (m *MockConversationRepo) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Conversation), args.Error(1)
}

func (m *MockConversationRepo) ListForUser(ctx context.Context, userID string) ([]*domain.Conversation, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Conversation), args.Error(1)
}

func (m *MockConversationRepo) FindDirect(ctx context.Context, userA, userB string) (*domain.Conversation, error) {
	args := m.Called(ctx, userA, userB)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Conversation), args.Error(1)
}

func (m *MockConversationRepo) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	args := m.Called(ctx, conversationID, userID)
	return args.Bool(0), args.Error(1)
}

type MockMessageRepo struct {
	mock.Mock
}

// Append returns a copy of msg carrying the id given to Return.
func (m *MockMessageRepo) Append(ctx context.Context, conversationID string, msg *domain.Message) (*domain.Message, error) {
	args := m.Called(ctx, conversationID, msg)
	if err := args.Error(1); err != nil {
		return nil, err
	}
	stored := *msg
	stored.ID = args.String(0)
	return &stored, nil
}

func (m *MockMessageRepo) List(ctx context.Context, conversationID string, limit, offset int) ([]*domain.Message, error) {
	args := m.Called(ctx, conversationID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Message), args.Error(1)
}

func (m *MockMessageRepo) Get(ctx context.Context, conversationID, messageID string) (*domain.Message, error) {
	args := m.Called(ctx, conversationID, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

func (m *MockMessageRepo) Update(ctx context.Context, conversationID, messageID string, patch domain.MessagePatch) error {
	args := m.Called(ctx, conversationID, messageID, patch)
	return args.Error(0)
}

func (m *MockMessageRepo) Delete(ctx context.Context, conversationID, messageID string) error {
	args := m.Called(ctx, conversationID, messageID)
	return args.Error(0)
}

func (m *MockMessageRepo) MarkRead(ctx context.Context, conversationID, userID string) (time.Time, error) {
	args := m.Called(ctx, conversationID, userID)
	return args.Get(0).(time.Time), args.Error(1)
}

func (m *MockMessageRepo) FindConversationIDByMessageID(ctx context.Context, messageID string) (string, error) {
	args := m.Called(ctx, messageID)
	return args.String(0), args.Error(1)
}

type MockUserDirectory struct {
	mock.Mock
}

func (m *MockUserDirectory) Touch(ctx context.Context, u *domain.User) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

func (m *MockUserDirectory) GetByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

type MockBlobStore struct {
	mock.Mock
}

// Put drains body so tests can assert on the bytes that reached the store.
func (m *MockBlobStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	args := m.Called(ctx, key, data, size, contentType)
	return args.String(0), args.Error(1)
}

func (m *MockBlobStore) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func conversationOf(id string, typ domain.ConversationType, userIDs ...string) *domain.Conversation {
	c := &domain.Conversation{ID: id, Type: typ}
	for _, uid := range userIDs {
		c.Participants = append(c.Participants, domain.Participant{UserID: uid, DisplayName: uid})
	}
	c.SyncParticipantIDs()
	return c
}
