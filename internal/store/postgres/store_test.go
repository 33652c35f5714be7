package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatcore/internal/domain"
)

// Runs against a real server: POSTGRES_TEST_URL=postgres://... go test ./internal/store/postgres
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_URL")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_URL not set")
	}
	db, err := Open(dsn)
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRepositories(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	convs := NewConversationRepo(db)
	msgs := NewMessageRepo(db)
	users := NewUserRepo(db)

	// Unique ids keep reruns against the same database independent.
	suffix := uuid.NewString()[:8]
	u1, u2, u3 := "u1-"+suffix, "u2-"+suffix, "u3-"+suffix

	c := &domain.Conversation{Type: domain.ConversationDirect, Participants: []domain.Participant{
		{UserID: u1, DisplayName: "One"}, {UserID: u2, DisplayName: "Two"},
	}}
	require.NoError(t, convs.Create(ctx, c))
	assert.Equal(t, []string{u1, u2}, c.ParticipantIDs)

	found, err := convs.FindDirect(ctx, u2, u1)
	require.NoError(t, err)
	assert.Equal(t, c.ID, found.ID)

	ok, err := convs.IsParticipant(ctx, c.ID, u3)
	require.NoError(t, err)
	assert.False(t, ok)

	base := time.Now().UTC().Truncate(time.Microsecond)
	var ids []string
	for i, content := range []string{"first", "second", "third"} {
		at := base.Add(time.Duration(i) * time.Second)
		m := &domain.Message{SenderID: u1, SenderName: "One", CreatedAt: at,
			ReadBy: []domain.ReadReceipt{{UserID: u1, ReadAt: at}}}
		domain.TextBody{Content: content}.Apply(m)
		stored, err := msgs.Append(ctx, c.ID, m)
		require.NoError(t, err)
		ids = append(ids, stored.ID)
	}

	page, err := msgs.List(ctx, c.ID, 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "second", page[0].Content)
	assert.Equal(t, "third", page[1].Content)

	convID, err := msgs.FindConversationIDByMessageID(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, c.ID, convID)

	for i := 0; i < 2; i++ {
		_, err = msgs.MarkRead(ctx, c.ID, u2)
		require.NoError(t, err)
	}
	all, err := msgs.List(ctx, c.ID, 0, 0)
	require.NoError(t, err)
	for _, m := range all {
		assert.Len(t, m.ReadBy, 2)
		assert.True(t, m.IsReadBy(u2))
	}

	require.NoError(t, msgs.Delete(ctx, c.ID, ids[2]))
	got, err := convs.GetByID(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastMessage)
	assert.Equal(t, "second", got.LastMessage.Content)

	require.NoError(t, users.Touch(ctx, &domain.User{ID: u3, Name: "Three", LastSeen: base}))
	user, err := users.GetByID(ctx, u3)
	require.NoError(t, err)
	assert.Equal(t, "Three", user.Name)
}

func TestConcurrentAppendKeepsNewestPreview(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	convs := NewConversationRepo(db)
	msgs := NewMessageRepo(db)

	suffix := uuid.NewString()[:8]
	c := &domain.Conversation{Type: domain.ConversationGroup, Participants: []domain.Participant{
		{UserID: "a-" + suffix, DisplayName: "A"}, {UserID: "b-" + suffix, DisplayName: "B"},
	}}
	require.NoError(t, convs.Create(ctx, c))

	const writers = 16
	base := time.Now().UTC().Truncate(time.Microsecond)
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Odd writers carry older timestamps than the even ones.
			at := base.Add(time.Duration(writers-i) * time.Millisecond)
			if i%2 == 0 {
				at = base.Add(time.Duration(writers+i) * time.Millisecond)
			}
			m := &domain.Message{SenderID: c.ParticipantIDs[i%2], SenderName: "x", CreatedAt: at}
			domain.TextBody{Content: fmt.Sprintf("msg-%d", i)}.Apply(m)
			_, err := msgs.Append(ctx, c.ID, m)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	all, err := msgs.List(ctx, c.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, writers)
	newest := all[len(all)-1]

	got, err := convs.GetByID(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastMessage)
	assert.Equal(t, newest.ID, got.LastMessage.ID)
	assert.Equal(t, fmt.Sprintf("msg-%d", writers-2), got.LastMessage.Content)

	// Deleting the newest while older messages keep arriving still lands on the true newest.
	var wg2 sync.WaitGroup
	wg2.Add(2)
	go func() {
		defer wg2.Done()
		assert.NoError(t, msgs.Delete(ctx, c.ID, newest.ID))
	}()
	go func() {
		defer wg2.Done()
		m := &domain.Message{SenderID: c.ParticipantIDs[0], SenderName: "x", CreatedAt: base}
		domain.TextBody{Content: "late"}.Apply(m)
		_, err := msgs.Append(ctx, c.ID, m)
		assert.NoError(t, err)
	}()
	wg2.Wait()

	all, err = msgs.List(ctx, c.ID, 0, 0)
	require.NoError(t, err)
	got, err = convs.GetByID(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastMessage)
	assert.Equal(t, all[len(all)-1].ID, got.LastMessage.ID)
}

func TestAppendToUnknownConversation(t *testing.T) {
	db := newTestDB(t)
	m := &domain.Message{SenderID: "nobody", SenderName: "x", CreatedAt: time.Now().UTC()}
	domain.TextBody{Content: "hi"}.Apply(m)
	_, err := NewMessageRepo(db).Append(context.Background(), uuid.NewString(), m)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
