package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatcore/internal/domain"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(DSN(filepath.Join(t.TempDir(), "chat.db")))
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	t.Cleanup(func() { db.Close() })
	return db
}

func newConversation(t *testing.T, repo *ConversationRepo, typ domain.ConversationType, userIDs ...string) *domain.Conversation {
	t.Helper()
	c := &domain.Conversation{Type: typ}
	for _, id := range userIDs {
		c.Participants = append(c.Participants, domain.Participant{UserID: id, DisplayName: "name-" + id})
	}
	require.NoError(t, repo.Create(context.Background(), c))
	return c
}

func textMessage(senderID, content string, at time.Time) *domain.Message {
	m := &domain.Message{
		SenderID:   senderID,
		SenderName: "name-" + senderID,
		CreatedAt:  at,
		ReadBy:     []domain.ReadReceipt{{UserID: senderID, ReadAt: at}},
	}
	domain.TextBody{Content: content}.Apply(m)
	return m
}

func TestConversationRepo(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewConversationRepo(db)

	c1 := newConversation(t, repo, domain.ConversationDirect, "u1", "u2")
	c2 := newConversation(t, repo, domain.ConversationGroup, "u1", "u3", "u4")
	newConversation(t, repo, domain.ConversationDirect, "u3", "u4")

	t.Run("CreateAssignsIdentity", func(t *testing.T) {
		assert.NotEmpty(t, c1.ID)
		assert.NotEqual(t, c1.ID, c2.ID)
		assert.False(t, c1.CreatedAt.IsZero())
		assert.Equal(t, c1.CreatedAt, c1.UpdatedAt)
		assert.Equal(t, []string{"u1", "u2"}, c1.ParticipantIDs)
	})

	t.Run("GetByID", func(t *testing.T) {
		got, err := repo.GetByID(ctx, c2.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ConversationGroup, got.Type)
		assert.Equal(t, []string{"u1", "u3", "u4"}, got.ParticipantIDs)
		for i, p := range got.Participants {
			assert.Equal(t, got.ParticipantIDs[i], p.UserID)
			assert.Equal(t, "name-"+p.UserID, p.DisplayName)
		}
		assert.Nil(t, got.LastMessage)
	})

	t.Run("GetByIDMissing", func(t *testing.T) {
		_, err := repo.GetByID(ctx, "nope")
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("ListForUser", func(t *testing.T) {
		convs, err := repo.ListForUser(ctx, "u1")
		require.NoError(t, err)
		ids := []string{}
		for _, c := range convs {
			assert.True(t, c.HasParticipant("u1"))
			ids = append(ids, c.ID)
		}
		assert.ElementsMatch(t, []string{c1.ID, c2.ID}, ids)

		convs, err = repo.ListForUser(ctx, "stranger")
		require.NoError(t, err)
		assert.Empty(t, convs)
	})

	t.Run("ListForUserRequiresID", func(t *testing.T) {
		_, err := repo.ListForUser(ctx, "")
		assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
	})

	t.Run("FindDirect", func(t *testing.T) {
		got, err := repo.FindDirect(ctx, "u2", "u1")
		require.NoError(t, err)
		assert.Equal(t, c1.ID, got.ID)

		_, err = repo.FindDirect(ctx, "u1", "u3")
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("IsParticipant", func(t *testing.T) {
		ok, err := repo.IsParticipant(ctx, c1.ID, "u2")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.IsParticipant(ctx, c1.ID, "u3")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestMessageRepo(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	convs := NewConversationRepo(db)
	repo := NewMessageRepo(db)

	conv := newConversation(t, convs, domain.ConversationDirect, "u1", "u2")
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	var sent []*domain.Message
	for i := 0; i < 5; i++ {
		m, err := repo.Append(ctx, conv.ID, textMessage("u1", fmt.Sprintf("msg %d", i), base.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
		sent = append(sent, m)
	}

	t.Run("AppendKeepsCallerValues", func(t *testing.T) {
		m := sent[0]
		assert.NotEmpty(t, m.ID)
		assert.Equal(t, conv.ID, m.ConversationID)
		assert.Equal(t, base, m.CreatedAt)
		require.Len(t, m.ReadBy, 1)
		assert.Equal(t, "u1", m.ReadBy[0].UserID)
	})

	t.Run("GetRoundTrip", func(t *testing.T) {
		got, err := repo.Get(ctx, conv.ID, sent[1].ID)
		require.NoError(t, err)
		assert.Equal(t, "msg 1", got.Content)
		assert.Equal(t, domain.MessageText, got.MessageType)
		assert.True(t, got.IsReadBy("u1"))
		assert.False(t, got.IsReadBy("u2"))
		assert.Nil(t, got.UpdatedAt)

		_, err = repo.Get(ctx, conv.ID, "missing")
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("ListOrderedAndPaged", func(t *testing.T) {
		all, err := repo.List(ctx, conv.ID, 0, 0)
		require.NoError(t, err)
		require.Len(t, all, 5)
		for i := 1; i < len(all); i++ {
			assert.True(t, all[i-1].CreatedAt.Before(all[i].CreatedAt))
		}

		page, err := repo.List(ctx, conv.ID, 2, 1)
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, "msg 1", page[0].Content)
		assert.Equal(t, "msg 2", page[1].Content)

		page, err = repo.List(ctx, conv.ID, 10, 4)
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "msg 4", page[0].Content)
	})

	t.Run("AppendUpdatesPreview", func(t *testing.T) {
		got, err := convs.GetByID(ctx, conv.ID)
		require.NoError(t, err)
		require.NotNil(t, got.LastMessage)
		assert.Equal(t, sent[4].ID, got.LastMessage.ID)
		assert.Equal(t, "msg 4", got.LastMessage.Content)
		assert.Equal(t, sent[4].CreatedAt, *got.LastMessageAt)
	})

	t.Run("FindConversationIDByMessageID", func(t *testing.T) {
		other := newConversation(t, convs, domain.ConversationGroup, "u1", "u5")
		m, err := repo.Append(ctx, other.ID, textMessage("u5", "elsewhere", base))
		require.NoError(t, err)

		got, err := repo.FindConversationIDByMessageID(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, other.ID, got)

		got, err = repo.FindConversationIDByMessageID(ctx, sent[2].ID)
		require.NoError(t, err)
		assert.Equal(t, conv.ID, got)

		_, err = repo.FindConversationIDByMessageID(ctx, "missing")
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("Update", func(t *testing.T) {
		content := "msg 4 (edited)"
		require.NoError(t, repo.Update(ctx, conv.ID, sent[4].ID, domain.MessagePatch{Content: &content}))

		got, err := repo.Get(ctx, conv.ID, sent[4].ID)
		require.NoError(t, err)
		assert.Equal(t, content, got.Content)
		assert.Equal(t, domain.MessageText, got.MessageType)
		assert.NotNil(t, got.UpdatedAt)
		assert.Equal(t, base.Add(4*time.Second), got.CreatedAt)

		c, err := convs.GetByID(ctx, conv.ID)
		require.NoError(t, err)
		assert.Equal(t, content, c.LastMessage.Content)

		err = repo.Update(ctx, conv.ID, "missing", domain.MessagePatch{Content: &content})
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, conv.ID, sent[4].ID))

		_, err := repo.Get(ctx, conv.ID, sent[4].ID)
		assert.True(t, errors.Is(err, domain.ErrNotFound))

		c, err := convs.GetByID(ctx, conv.ID)
		require.NoError(t, err)
		assert.Equal(t, sent[3].ID, c.LastMessage.ID)

		err = repo.Delete(ctx, conv.ID, sent[4].ID)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("MarkReadIdempotent", func(t *testing.T) {
		first, err := repo.MarkRead(ctx, conv.ID, "u2")
		require.NoError(t, err)

		once, err := repo.List(ctx, conv.ID, 0, 0)
		require.NoError(t, err)
		for _, m := range once {
			assert.True(t, m.IsReadBy("u1"))
			assert.True(t, m.IsReadBy("u2"))
		}

		_, err = repo.MarkRead(ctx, conv.ID, "u2")
		require.NoError(t, err)

		twice, err := repo.List(ctx, conv.ID, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, once, twice)

		c, err := convs.GetByID(ctx, conv.ID)
		require.NoError(t, err)
		for _, p := range c.Participants {
			if p.UserID == "u2" {
				require.NotNil(t, p.LastReadAt)
				assert.False(t, p.LastReadAt.Before(first))
			}
		}
	})
}

func TestMessageRepoMarkReadConcurrentWithAppend(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	convs := NewConversationRepo(db)
	repo := NewMessageRepo(db)
	conv := newConversation(t, convs, domain.ConversationDirect, "u1", "u2")

	base := time.Now().UTC()
	var before []string
	for i := 0; i < 20; i++ {
		m, err := repo.Append(ctx, conv.ID, textMessage("u1", "before", base.Add(time.Duration(i)*time.Millisecond)))
		require.NoError(t, err)
		before = append(before, m.ID)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			_, err := repo.Append(ctx, conv.ID, textMessage("u1", "during", base.Add(time.Second+time.Duration(i)*time.Millisecond)))
			assert.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		_, err := repo.MarkRead(ctx, conv.ID, "u2")
		assert.NoError(t, err)
	}()
	wg.Wait()

	msgs, err := repo.List(ctx, conv.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 40)

	byID := map[string]*domain.Message{}
	for _, m := range msgs {
		byID[m.ID] = m
		seen := map[string]bool{}
		for _, rr := range m.ReadBy {
			assert.False(t, seen[rr.UserID], "duplicate receipt for %s", rr.UserID)
			seen[rr.UserID] = true
		}
	}
	for _, id := range before {
		assert.True(t, byID[id].IsReadBy("u2"))
	}

	_, err = repo.MarkRead(ctx, conv.ID, "u2")
	require.NoError(t, err)
	msgs, err = repo.List(ctx, conv.ID, 0, 0)
	require.NoError(t, err)
	for _, m := range msgs {
		assert.True(t, m.IsReadBy("u2"))
	}
}

func TestUserRepo(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepo(newTestDB(t))

	require.NoError(t, repo.Touch(ctx, &domain.User{ID: "u1", Name: "Ada"}))
	require.NoError(t, repo.Touch(ctx, &domain.User{ID: "u1", Name: "Ada L."}))

	u, err := repo.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", u.Name)
	assert.False(t, u.LastSeen.IsZero())

	_, err = repo.GetByID(ctx, "u9")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
