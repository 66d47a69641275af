package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sthaarwin/Dental-Smile-sub001/internal/app/identity"
	domainchat "github.com/sthaarwin/Dental-Smile-sub001/internal/domain/chat"
	"github.com/sthaarwin/Dental-Smile-sub001/internal/infra/storage/memory"
)

type fixture struct {
	svc   *Service
	store *memory.ChatStore
	clock *fakeClock
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memory.NewChatStore()
	directory := memory.NewDirectory()
	directory.Put(identity.Profile{ID: "u1", Name: "Alice Jones", Role: "patient"})
	directory.Put(identity.Profile{ID: "u2", Name: "Dr. Bob Smith", Role: "dentist"})
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	return fixture{
		svc:   &Service{Store: store, Directory: directory, Now: clock.Now},
		store: store,
		clock: clock,
	}
}

func TestGetOrCreateConversation(t *testing.T) {
	ctx := context.Background()

	t.Run("should return the same conversation in either argument order", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)

		first, err := f.svc.GetOrCreateConversation(ctx, "u1", "u2")
		req.NoError(err)
		second, err := f.svc.GetOrCreateConversation(ctx, "u2", "u1")
		req.NoError(err)
		req.Equal(first.Conversation.ID, second.Conversation.ID)
	})

	t.Run("should attach participant profiles", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)

		view, err := f.svc.GetOrCreateConversation(ctx, "u1", "u2")
		req.NoError(err)
		req.Len(view.Participants, 2)
		names := []string{view.Participants[0].Name, view.Participants[1].Name}
		req.Contains(names, "Alice Jones")
		req.Contains(names, "Dr. Bob Smith")
	})

	t.Run("should initialize lastMessageTime to creation time", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)

		view, err := f.svc.GetOrCreateConversation(ctx, "u1", "u2")
		req.NoError(err)
		req.Equal(f.clock.now, view.Conversation.LastMessageTime)
		req.True(view.Conversation.IsActive)
		req.Empty(view.Conversation.HiddenFrom)
	})

	t.Run("should reject a self conversation", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.GetOrCreateConversation(ctx, "u1", "u1")
		require.ErrorIs(t, err, domainchat.ErrSameParticipant)
	})

	t.Run("should recover when losing the first-contact race", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		f.svc.Store = racingStore{Store: f.store, inner: f.store}

		view, err := f.svc.GetOrCreateConversation(ctx, "u1", "u2")
		req.NoError(err)
		req.NotEmpty(view.Conversation.ID)
	})
}

// racingStore simulates a concurrent first contact: every lookup misses until
// an insert has happened, and the first insert is reported as a duplicate
// after sneaking the row in.
type racingStore struct {
	Store
	inner *memory.ChatStore
}

func (r racingStore) InsertConversation(ctx context.Context, conv *domainchat.Conversation) error {
	if err := r.inner.InsertConversation(ctx, conv); err != nil {
		return err
	}
	return domainchat.ErrConversationExists
}

func TestSaveMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("should reject whitespace-only bodies without persisting", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		view, err := f.svc.GetOrCreateConversation(ctx, "u1", "u2")
		req.NoError(err)

		_, err = f.svc.SaveMessage(ctx, SaveMessageParams{
			ConversationID: view.Conversation.ID,
			SenderID:       "u1",
			ReceiverID:     "u2",
			Body:           "   ",
		})
		req.ErrorIs(err, domainchat.ErrEmptyBody)

		messages, err := f.svc.ListMessages(ctx, view.Conversation.ID, 1, 50)
		req.NoError(err)
		req.Empty(messages)
	})

	t.Run("should fail for an unknown conversation", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.SaveMessage(ctx, SaveMessageParams{
			ConversationID: "nope", SenderID: "u1", ReceiverID: "u2", Body: "hi",
		})
		require.ErrorIs(t, err, domainchat.ErrConversationNotFound)
	})

	t.Run("should update the conversation projection", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		view, err := f.svc.GetOrCreateConversation(ctx, "u1", "u2")
		req.NoError(err)

		f.clock.Advance(time.Minute)
		outcome, err := f.svc.SaveMessage(ctx, SaveMessageParams{
			ConversationID: view.Conversation.ID,
			SenderID:       "u1",
			ReceiverID:     "u2",
			Body:           "Hi",
		})
		req.NoError(err)
		req.NoError(outcome.ProjectionErr)
		req.False(outcome.Message.IsRead)
		req.Equal(domainchat.MessageTypeText, outcome.Message.Type)

		reloaded, err := f.store.ConversationByID(ctx, view.Conversation.ID)
		req.NoError(err)
		req.NotNil(reloaded.LastMessage)
		req.Equal(outcome.Message.ID, reloaded.LastMessage.ID)
		req.Equal(outcome.Message.Timestamp, reloaded.LastMessageTime)
	})

	t.Run("should report success even when the projection fails", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		view, err := f.svc.GetOrCreateConversation(ctx, "u1", "u2")
		req.NoError(err)

		f.svc.Store = projectionFailingStore{Store: f.store}
		outcome, err := f.svc.SaveMessage(ctx, SaveMessageParams{
			ConversationID: view.Conversation.ID,
			SenderID:       "u1",
			ReceiverID:     "u2",
			Body:           "still delivered",
		})
		req.NoError(err)
		req.Error(outcome.ProjectionErr)
		req.NotNil(outcome.Message)

		// The primary write survived the secondary failure.
		saved, err := f.store.MessageByID(ctx, outcome.Message.ID)
		req.NoError(err)
		req.Equal("still delivered", saved.Body)
	})

	t.Run("should unhide the conversation for the receiver", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		view, err := f.svc.GetOrCreateConversation(ctx, "u1", "u2")
		req.NoError(err)
		convID := view.Conversation.ID

		req.NoError(f.svc.HideConversation(ctx, convID, "u2"))
		hidden, err := f.svc.ListConversations(ctx, "u2")
		req.NoError(err)
		req.Empty(hidden)

		_, err = f.svc.SaveMessage(ctx, SaveMessageParams{
			ConversationID: convID, SenderID: "u1", ReceiverID: "u2", Body: "are you there?",
		})
		req.NoError(err)

		visible, err := f.svc.ListConversations(ctx, "u2")
		req.NoError(err)
		req.Len(visible, 1)
		req.Equal(convID, visible[0].Conversation.ID)
	})
}

type projectionFailingStore struct {
	Store
}

func (p projectionFailingStore) UpdateLastMessage(context.Context, string, *domainchat.Message, string) error {
	return errors.New("projection store unavailable")
}

func TestMarkMessageAsRead(t *testing.T) {
	ctx := context.Background()

	t.Run("should be idempotent", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		view, err := f.svc.GetOrCreateConversation(ctx, "u1", "u2")
		req.NoError(err)
		outcome, err := f.svc.SaveMessage(ctx, SaveMessageParams{
			ConversationID: view.Conversation.ID, SenderID: "u1", ReceiverID: "u2", Body: "Hi",
		})
		req.NoError(err)

		f.clock.Advance(time.Minute)
		first, err := f.svc.MarkMessageAsRead(ctx, outcome.Message.ID, "u2")
		req.NoError(err)
		req.True(first.IsRead)
		req.NotNil(first.ReadAt)

		f.clock.Advance(time.Hour)
		second, err := f.svc.MarkMessageAsRead(ctx, outcome.Message.ID, "u2")
		req.NoError(err)
		req.True(second.IsRead)
		req.Equal(*first.ReadAt, *second.ReadAt)
	})

	t.Run("should fail for an unknown message", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.MarkMessageAsRead(ctx, "missing", "u2")
		require.ErrorIs(t, err, domainchat.ErrMessageNotFound)
	})
}

func TestUnreadCount(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)

	view, err := f.svc.GetOrCreateConversation(ctx, "u1", "u2")
	req.NoError(err)
	convID := view.Conversation.ID

	count, err := f.svc.UnreadCount(ctx, "u2")
	req.NoError(err)
	req.Zero(count)

	outcome, err := f.svc.SaveMessage(ctx, SaveMessageParams{
		ConversationID: convID, SenderID: "u1", ReceiverID: "u2", Body: "Hi",
	})
	req.NoError(err)

	count, err = f.svc.UnreadCount(ctx, "u2")
	req.NoError(err)
	req.EqualValues(1, count)

	senderCount, err := f.svc.UnreadCount(ctx, "u1")
	req.NoError(err)
	req.Zero(senderCount)

	_, err = f.svc.MarkMessageAsRead(ctx, outcome.Message.ID, "u2")
	req.NoError(err)

	count, err = f.svc.UnreadCount(ctx, "u2")
	req.NoError(err)
	req.Zero(count)
}

func TestListMessages(t *testing.T) {
	ctx := context.Background()

	t.Run("should fail for an unknown conversation", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.ListMessages(ctx, "missing", 1, 50)
		require.ErrorIs(t, err, domainchat.ErrConversationNotFound)
	})

	t.Run("should page newest first with sender annotation", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		view, err := f.svc.GetOrCreateConversation(ctx, "u1", "u2")
		req.NoError(err)
		convID := view.Conversation.ID

		for _, body := range []string{"one", "two", "three"} {
			f.clock.Advance(time.Minute)
			_, err := f.svc.SaveMessage(ctx, SaveMessageParams{
				ConversationID: convID, SenderID: "u1", ReceiverID: "u2", Body: body,
			})
			req.NoError(err)
		}

		page, err := f.svc.ListMessages(ctx, convID, 1, 2)
		req.NoError(err)
		req.Len(page, 2)
		req.Equal("three", page[0].Message.Body)
		req.Equal("two", page[1].Message.Body)
		req.Equal("Alice Jones", page[0].SenderName)
		req.Equal("patient", page[0].SenderRole)

		rest, err := f.svc.ListMessages(ctx, convID, 2, 2)
		req.NoError(err)
		req.Len(rest, 1)
		req.Equal("one", rest[0].Message.Body)
	})

	t.Run("should fall back to a placeholder name for unknown senders", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		view, err := f.svc.GetOrCreateConversation(ctx, "u1", "ghost")
		req.NoError(err)
		_, err = f.svc.SaveMessage(ctx, SaveMessageParams{
			ConversationID: view.Conversation.ID, SenderID: "ghost", ReceiverID: "u1", Body: "boo",
		})
		req.NoError(err)

		page, err := f.svc.ListMessages(ctx, view.Conversation.ID, 1, 50)
		req.NoError(err)
		req.Equal(PlaceholderName, page[0].SenderName)
	})
}

func TestHideConversation(t *testing.T) {
	ctx := context.Background()

	t.Run("single hide should only affect the hiding participant", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		view, err := f.svc.GetOrCreateConversation(ctx, "u1", "u2")
		req.NoError(err)
		convID := view.Conversation.ID
		_, err = f.svc.SaveMessage(ctx, SaveMessageParams{
			ConversationID: convID, SenderID: "u1", ReceiverID: "u2", Body: "Hi",
		})
		req.NoError(err)

		req.NoError(f.svc.HideConversation(ctx, convID, "u1"))

		forU1, err := f.svc.ListConversations(ctx, "u1")
		req.NoError(err)
		req.Empty(forU1)

		forU2, err := f.svc.ListConversations(ctx, "u2")
		req.NoError(err)
		req.Len(forU2, 1)

		// Messages stay intact after a one-sided hide.
		messages, err := f.svc.ListMessages(ctx, convID, 1, 50)
		req.NoError(err)
		req.Len(messages, 1)
	})

	t.Run("mutual hide should hard delete the conversation and its messages", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		view, err := f.svc.GetOrCreateConversation(ctx, "u1", "u2")
		req.NoError(err)
		convID := view.Conversation.ID
		outcome, err := f.svc.SaveMessage(ctx, SaveMessageParams{
			ConversationID: convID, SenderID: "u1", ReceiverID: "u2", Body: "Hi",
		})
		req.NoError(err)

		req.NoError(f.svc.HideConversation(ctx, convID, "u1"))
		req.NoError(f.svc.HideConversation(ctx, convID, "u2"))

		_, err = f.svc.ListMessages(ctx, convID, 1, 50)
		req.ErrorIs(err, domainchat.ErrConversationNotFound)
		_, err = f.store.MessageByID(ctx, outcome.Message.ID)
		req.ErrorIs(err, domainchat.ErrMessageNotFound)

		for _, user := range []string{"u1", "u2"} {
			conversations, err := f.svc.ListConversations(ctx, user)
			req.NoError(err)
			req.Empty(conversations)
		}
	})

	t.Run("concurrent hides from both sides should still delete", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		view, err := f.svc.GetOrCreateConversation(ctx, "u1", "u2")
		req.NoError(err)
		convID := view.Conversation.ID
		outcome, err := f.svc.SaveMessage(ctx, SaveMessageParams{
			ConversationID: convID, SenderID: "u1", ReceiverID: "u2", Body: "Hi",
		})
		req.NoError(err)

		// Neither participant's hide may be lost when both race to it.
		var wg sync.WaitGroup
		errs := make(chan error, 2)
		for _, user := range []string{"u1", "u2"} {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				errs <- f.svc.HideConversation(ctx, convID, id)
			}(user)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			req.NoError(err)
		}

		_, err = f.store.ConversationByID(ctx, convID)
		req.ErrorIs(err, domainchat.ErrConversationNotFound)
		_, err = f.store.MessageByID(ctx, outcome.Message.ID)
		req.ErrorIs(err, domainchat.ErrMessageNotFound)
	})

	t.Run("should reject non-participants", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		view, err := f.svc.GetOrCreateConversation(ctx, "u1", "u2")
		req.NoError(err)
		req.ErrorIs(f.svc.HideConversation(ctx, view.Conversation.ID, "stranger"), domainchat.ErrNotParticipant)
	})

	t.Run("should fail for an unknown conversation", func(t *testing.T) {
		f := newFixture(t)
		require.ErrorIs(t, f.svc.HideConversation(ctx, "missing", "u1"), domainchat.ErrConversationNotFound)
	})
}

func TestAdminOperations(t *testing.T) {
	ctx := context.Background()

	t.Run("delete should remove conversation and messages unconditionally", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		view, err := f.svc.GetOrCreateConversation(ctx, "u1", "u2")
		req.NoError(err)
		convID := view.Conversation.ID
		_, err = f.svc.SaveMessage(ctx, SaveMessageParams{
			ConversationID: convID, SenderID: "u1", ReceiverID: "u2", Body: "Hi",
		})
		req.NoError(err)

		req.NoError(f.svc.DeleteConversation(ctx, convID))
		_, err = f.store.ConversationByID(ctx, convID)
		req.ErrorIs(err, domainchat.ErrConversationNotFound)
	})

	t.Run("clear should wipe messages but keep the thread", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		view, err := f.svc.GetOrCreateConversation(ctx, "u1", "u2")
		req.NoError(err)
		convID := view.Conversation.ID
		_, err = f.svc.SaveMessage(ctx, SaveMessageParams{
			ConversationID: convID, SenderID: "u1", ReceiverID: "u2", Body: "Hi",
		})
		req.NoError(err)

		req.NoError(f.svc.ClearMessages(ctx, convID))

		messages, err := f.svc.ListMessages(ctx, convID, 1, 50)
		req.NoError(err)
		req.Empty(messages)

		reloaded, err := f.store.ConversationByID(ctx, convID)
		req.NoError(err)
		req.Nil(reloaded.LastMessage)
	})
}

func TestFirstContactScenario(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)

	// u1 and u2 have no prior conversation.
	view, err := f.svc.GetOrCreateConversation(ctx, "u1", "u2")
	req.NoError(err)
	c1 := view.Conversation.ID

	f.clock.Advance(time.Minute)
	outcome, err := f.svc.SaveMessage(ctx, SaveMessageParams{
		ConversationID: c1, SenderID: "u1", ReceiverID: "u2", Body: "Hi",
	})
	req.NoError(err)
	m1 := outcome.Message
	req.Equal("u2", m1.ReceiverID)
	req.False(m1.IsRead)

	reloaded, err := f.store.ConversationByID(ctx, c1)
	req.NoError(err)
	req.Equal(m1.ID, reloaded.LastMessage.ID)

	u2Unread, err := f.svc.UnreadCount(ctx, "u2")
	req.NoError(err)
	req.EqualValues(1, u2Unread)
	u1Unread, err := f.svc.UnreadCount(ctx, "u1")
	req.NoError(err)
	req.Zero(u1Unread)

	_, err = f.svc.MarkMessageAsRead(ctx, m1.ID, "u2")
	req.NoError(err)
	u2Unread, err = f.svc.UnreadCount(ctx, "u2")
	req.NoError(err)
	req.Zero(u2Unread)
}

func TestListConversationsOrdering(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)

	first, err := f.svc.GetOrCreateConversation(ctx, "u1", "u2")
	req.NoError(err)
	f.clock.Advance(time.Minute)
	second, err := f.svc.GetOrCreateConversation(ctx, "u1", "u3")
	req.NoError(err)

	// Most recent activity first: a new message in the older thread
	// bubbles it back to the top.
	f.clock.Advance(time.Minute)
	_, err = f.svc.SaveMessage(ctx, SaveMessageParams{
		ConversationID: first.Conversation.ID, SenderID: "u2", ReceiverID: "u1", Body: "ping",
	})
	req.NoError(err)

	views, err := f.svc.ListConversations(ctx, "u1")
	req.NoError(err)
	req.Len(views, 2)
	req.Equal(first.Conversation.ID, views[0].Conversation.ID)
	req.Equal(second.Conversation.ID, views[1].Conversation.ID)
}
