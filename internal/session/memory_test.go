package session

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlorc/core/internal/model"
)

func TestCreateAndGetThread(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	th, err := s.CreateThread(ctx, "demo")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, th.ID)
	assert.Equal(t, "demo", th.Name)

	got, err := s.GetThread(ctx, th.ID)
	require.NoError(t, err)
	assert.Equal(t, th, got)
}

func TestGetUnknownThreadFails(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.GetThread(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrThreadNotFound)
}

func TestListThreadsSortedDescending(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	a, _ := s.CreateThread(ctx, "a")
	b, _ := s.CreateThread(ctx, "b")
	if !b.CreatedAt.After(a.CreatedAt) {
		b.CreatedAt = a.CreatedAt.Add(1)
		s.threads[b.ID] = b
	}

	threads, err := s.ListThreads(ctx)
	require.NoError(t, err)
	require.Len(t, threads, 2)
	assert.Equal(t, b.ID, threads[0].ID)
	assert.Equal(t, a.ID, threads[1].ID)
}

func TestAddMessageUnknownThreadFails(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.AddMessage(context.Background(), uuid.New(), model.SenderUser, "hi", nil)
	assert.ErrorIs(t, err, ErrThreadNotFound)
}

func TestGetMessagesUnknownThreadReturnsEmpty(t *testing.T) {
	msgs, err := NewMemoryStore().GetMessages(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestMessagesAppendOnlyInOrder(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	th, _ := s.CreateThread(ctx, "t")

	_, err := s.AddMessage(ctx, th.ID, model.SenderUser, "question", nil)
	require.NoError(t, err)
	_, err = s.AddMessage(ctx, th.ID, model.SenderServer, "answer", map[string]any{"sql": "SELECT 1"})
	require.NoError(t, err)

	msgs, err := s.GetMessages(ctx, th.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.SenderUser, msgs[0].Sender)
	assert.Equal(t, model.SenderServer, msgs[1].Sender)
}

func TestAddTokenUsageIsAdditive(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	th, _ := s.CreateThread(ctx, "t")

	require.NoError(t, s.AddTokenUsage(ctx, th.ID, model.TokenUsage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15, CallCount: 1}))
	require.NoError(t, s.AddTokenUsage(ctx, th.ID, model.TokenUsage{InputTokens: 3, OutputTokens: 2, TotalTokens: 5, CallCount: 1}))

	u, err := s.GetTokenUsage(ctx, th.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TokenUsage{InputTokens: 13, OutputTokens: 7, TotalTokens: 20, CallCount: 2}, u)
}

func TestAddTokenUsageUnknownThreadFails(t *testing.T) {
	s := NewMemoryStore()
	err := s.AddTokenUsage(context.Background(), uuid.New(), model.TokenUsage{InputTokens: 1})
	assert.ErrorIs(t, err, ErrThreadNotFound)
}

func TestAddUsedDatabasesIsIdempotentUnion(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	th, _ := s.CreateThread(ctx, "t")

	require.NoError(t, s.AddUsedDatabases(ctx, th.ID, []string{"customer_db", "accounts_db"}))
	require.NoError(t, s.AddUsedDatabases(ctx, th.ID, []string{"customer_db", "accounts_db"}))
	require.NoError(t, s.AddUsedDatabases(ctx, th.ID, []string{"reporting_db"}))

	dbs, err := s.GetUsedDatabases(ctx, th.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"accounts_db", "customer_db", "reporting_db"}, dbs)
}

func TestGetUsedDatabasesUnknownThreadReturnsEmpty(t *testing.T) {
	dbs, err := NewMemoryStore().GetUsedDatabases(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Empty(t, dbs)
}
