// ABOUTME: Tests for the SQLite store implementation
// ABOUTME: Exercises CRUD, the insert-if-absent contract, and counter bumps

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})
	return s
}

func seedWebsite(t *testing.T, s *SQLiteStore, id, ownerID string) *Website {
	t.Helper()
	site := &Website{
		ID:             id,
		Name:           "Example",
		URL:            "https://example.com",
		OwnerID:        ownerID,
		BotName:        "Helper",
		WelcomeMessage: "Hi!",
		Active:         true,
		CreatedAt:      time.Now(),
	}
	require.NoError(t, s.CreateWebsite(context.Background(), site))
	return site
}

func seedConversation(t *testing.T, s *SQLiteStore, id, websiteID string) *Conversation {
	t.Helper()
	conv := &Conversation{
		ID:             id,
		WebsiteID:      websiteID,
		UserIdentifier: "alice",
		Status:         StatusActive,
		StartedAt:      time.Now(),
	}
	require.NoError(t, s.CreateConversation(context.Background(), conv))
	return conv
}

func TestWebsiteRoundTrip(t *testing.T) {
	s := newTestStore(t)
	created := seedWebsite(t, s, "site-1", "user-1")

	got, err := s.GetWebsite(context.Background(), "site-1")
	require.NoError(t, err)

	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, created.Name, got.Name)
	assert.Equal(t, created.URL, got.URL)
	assert.Equal(t, created.OwnerID, got.OwnerID)
	assert.Equal(t, created.BotName, got.BotName)
	assert.True(t, got.Active)
}

func TestGetWebsite_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetWebsite(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListWebsitesByOwner(t *testing.T) {
	s := newTestStore(t)
	seedWebsite(t, s, "site-1", "user-1")
	seedWebsite(t, s, "site-2", "user-1")
	seedWebsite(t, s, "site-3", "user-2")

	sites, err := s.ListWebsitesByOwner(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Len(t, sites, 2)

	none, err := s.ListWebsitesByOwner(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestWebsiteOwnedBy(t *testing.T) {
	s := newTestStore(t)
	seedWebsite(t, s, "site-1", "user-1")

	owned, err := s.WebsiteOwnedBy(context.Background(), "site-1", "user-1")
	require.NoError(t, err)
	assert.True(t, owned)

	owned, err = s.WebsiteOwnedBy(context.Background(), "site-1", "user-2")
	require.NoError(t, err)
	assert.False(t, owned)

	owned, err = s.WebsiteOwnedBy(context.Background(), "ghost", "user-1")
	require.NoError(t, err)
	assert.False(t, owned)
}

func TestCreateConversation_DuplicateID(t *testing.T) {
	s := newTestStore(t)
	seedWebsite(t, s, "site-1", "user-1")
	seedConversation(t, s, "conv-1", "site-1")

	err := s.CreateConversation(context.Background(), &Conversation{
		ID:        "conv-1",
		WebsiteID: "site-1",
		Status:    StatusActive,
		StartedAt: time.Now(),
	})
	assert.ErrorIs(t, err, ErrDuplicateConversation)
}

func TestConversationMetadataRoundTrip(t *testing.T) {
	s := newTestStore(t)
	seedWebsite(t, s, "site-1", "user-1")

	conv := &Conversation{
		ID:             "conv-1",
		WebsiteID:      "site-1",
		UserIdentifier: "alice",
		Status:         StatusActive,
		Metadata:       map[string]string{"page": "/pricing", "referrer": "google"},
		StartedAt:      time.Now(),
	}
	require.NoError(t, s.CreateConversation(context.Background(), conv))

	got, err := s.GetConversation(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Equal(t, conv.Metadata, got.Metadata)
}

func TestUpdateConversationStatus(t *testing.T) {
	s := newTestStore(t)
	seedWebsite(t, s, "site-1", "user-1")
	seedConversation(t, s, "conv-1", "site-1")

	endedAt := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.UpdateConversationStatus(context.Background(), "conv-1", StatusEnded, &endedAt))

	got, err := s.GetConversation(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Equal(t, StatusEnded, got.Status)
	require.NotNil(t, got.EndedAt)
	assert.True(t, got.EndedAt.Equal(endedAt))
	assert.True(t, got.Ended())
}

func TestUpdateConversationStatus_NotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.UpdateConversationStatus(context.Background(), "ghost", StatusEnded, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetRequiresAttention(t *testing.T) {
	s := newTestStore(t)
	seedWebsite(t, s, "site-1", "user-1")
	seedConversation(t, s, "conv-1", "site-1")

	require.NoError(t, s.SetRequiresAttention(context.Background(), "conv-1", true))

	got, err := s.GetConversation(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.True(t, got.RequiresAttention)

	// Idempotent set and clear.
	require.NoError(t, s.SetRequiresAttention(context.Background(), "conv-1", true))
	require.NoError(t, s.SetRequiresAttention(context.Background(), "conv-1", false))

	got, err = s.GetConversation(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.False(t, got.RequiresAttention)
}

func TestConversationOwnedBy(t *testing.T) {
	s := newTestStore(t)
	seedWebsite(t, s, "site-1", "user-1")
	seedConversation(t, s, "conv-1", "site-1")

	owned, err := s.ConversationOwnedBy(context.Background(), "conv-1", "user-1")
	require.NoError(t, err)
	assert.True(t, owned)

	owned, err = s.ConversationOwnedBy(context.Background(), "conv-1", "user-2")
	require.NoError(t, err)
	assert.False(t, owned)

	owned, err = s.ConversationOwnedBy(context.Background(), "ghost", "user-1")
	require.NoError(t, err)
	assert.False(t, owned)
}

func TestSaveMessage_BumpsCounters(t *testing.T) {
	s := newTestStore(t)
	seedWebsite(t, s, "site-1", "user-1")
	seedConversation(t, s, "conv-1", "site-1")

	first := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.SaveMessage(context.Background(), &Message{
		ID:             "msg-1",
		ConversationID: "conv-1",
		Role:           RoleVisitor,
		Content:        "hello",
		CreatedAt:      first,
	}))
	require.NoError(t, s.SaveMessage(context.Background(), &Message{
		ID:             "msg-2",
		ConversationID: "conv-1",
		Role:           RoleAgent,
		Content:        "hi",
		Manual:         true,
		AgentID:        "user-1",
		CreatedAt:      first.Add(time.Second),
	}))

	conv, err := s.GetConversation(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Equal(t, 2, conv.TotalMessages)
	require.NotNil(t, conv.LastMessageAt)
	assert.True(t, conv.LastMessageAt.Equal(first.Add(time.Second)))
}

func TestSaveMessage_UnknownConversation(t *testing.T) {
	s := newTestStore(t)
	err := s.SaveMessage(context.Background(), &Message{
		ID:             "msg-1",
		ConversationID: "ghost",
		Role:           RoleVisitor,
		Content:        "hello",
		CreatedAt:      time.Now(),
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetMessagesByConversation_OrderAndLimit(t *testing.T) {
	s := newTestStore(t)
	seedWebsite(t, s, "site-1", "user-1")
	seedConversation(t, s, "conv-1", "site-1")

	base := time.Now().UTC().Truncate(time.Second)
	for i, content := range []string{"one", "two", "three"} {
		require.NoError(t, s.SaveMessage(context.Background(), &Message{
			ID:             content,
			ConversationID: "conv-1",
			Role:           RoleVisitor,
			Content:        content,
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		}))
	}

	msgs, err := s.GetMessagesByConversation(context.Background(), "conv-1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "one", msgs[0].Content)
	assert.Equal(t, "three", msgs[2].Content)

	limited, err := s.GetMessagesByConversation(context.Background(), "conv-1", 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "one", limited[0].Content)
	assert.Equal(t, "two", limited[1].Content)
}

func TestGetMessagesByConversation_SameTimestampKeepsArrivalOrder(t *testing.T) {
	s := newTestStore(t)
	seedWebsite(t, s, "site-1", "user-1")
	seedConversation(t, s, "conv-1", "site-1")

	// A visitor message and its automatic acknowledgment share one
	// timestamp; ids are chosen so lexical order would reverse arrival.
	at := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.SaveMessage(context.Background(), &Message{
		ID:             "zzzz-visitor",
		ConversationID: "conv-1",
		Role:           RoleVisitor,
		Content:        "first",
		CreatedAt:      at,
	}))
	require.NoError(t, s.SaveMessage(context.Background(), &Message{
		ID:             "aaaa-ack",
		ConversationID: "conv-1",
		Role:           RoleAgent,
		Content:        "second",
		CreatedAt:      at,
	}))

	msgs, err := s.GetMessagesByConversation(context.Background(), "conv-1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "second", msgs[1].Content)
}

func TestMessageAgentFieldsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	seedWebsite(t, s, "site-1", "user-1")
	seedConversation(t, s, "conv-1", "site-1")

	require.NoError(t, s.SaveMessage(context.Background(), &Message{
		ID:             "msg-1",
		ConversationID: "conv-1",
		Role:           RoleAgent,
		Content:        "manual reply",
		Manual:         true,
		AgentID:        "user-1",
		CreatedAt:      time.Now(),
	}))

	msgs, err := s.GetMessagesByConversation(context.Background(), "conv-1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Manual)
	assert.Equal(t, "user-1", msgs[0].AgentID)
}
