package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlorc/core/internal/llm"
	"github.com/sqlorc/core/internal/model"
	"github.com/sqlorc/core/internal/session"
)

func TestFormatConversationHistoryEmpty(t *testing.T) {
	assert.Equal(t, "No previous conversation.", formatConversationHistory(nil, defaultHistoryWindow))
}

func TestFormatConversationHistoryBoundsToPairs(t *testing.T) {
	var history []model.Message
	for i := 0; i < 8; i++ {
		history = append(history, model.Message{Sender: model.SenderUser, Content: "msg"})
	}
	out := formatConversationHistory(history, 2)
	assert.Equal(t, 4, countOccurrences(out, "USER: msg"))
}

func TestFormatConversationHistoryKeepsEverythingUnderWindow(t *testing.T) {
	history := []model.Message{
		{Sender: model.SenderUser, Content: "msg"},
		{Sender: model.SenderUser, Content: "msg"},
	}
	out := formatConversationHistory(history, defaultHistoryWindow)
	assert.Equal(t, 2, countOccurrences(out, "USER: msg"))
}

func countOccurrences(s, substr string) int {
	count := 0
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			count++
			i += len(substr) - 1
		}
	}
	return count
}

func TestFormatClarificationQuestions(t *testing.T) {
	out := formatClarificationQuestions([]model.ClarificationQuestion{
		{Question: "Which month?"}, {Question: "Which account type?"},
	})
	assert.Contains(t, out, "1. Which month?")
	assert.Contains(t, out, "2. Which account type?")
}

func TestLastFailedNilWhenEmpty(t *testing.T) {
	assert.Nil(t, lastFailed(nil))
}

func TestLastFailedReturnsTrailingFailure(t *testing.T) {
	results := []model.StepResult{
		{StepNumber: 1, Success: true},
		{StepNumber: 2, Success: false, Error: "boom"},
	}
	failed := lastFailed(results)
	require.NotNil(t, failed)
	assert.Equal(t, 2, failed.StepNumber)
}

func TestLastFailedNilWhenTrailingSucceeds(t *testing.T) {
	results := []model.StepResult{{StepNumber: 1, Success: true}}
	assert.Nil(t, lastFailed(results))
}

func TestPersistTurnSkipsZeroUsage(t *testing.T) {
	store := session.NewMemoryStore()
	th, err := store.CreateThread(context.Background(), "t")
	require.NoError(t, err)

	o := &Orchestrator{sessions: store}
	o.persistTurn(context.Background(), th.ID, llm.Usage{})

	usage, err := store.GetTokenUsage(context.Background(), th.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), usage.CallCount)
}

func TestPersistTurnRecordsNonZeroUsage(t *testing.T) {
	store := session.NewMemoryStore()
	th, err := store.CreateThread(context.Background(), "t")
	require.NoError(t, err)

	o := New(Deps{Sessions: store})
	o.persistTurn(context.Background(), th.ID, llm.Usage{InputTokens: 100, OutputTokens: 40})

	usage, err := store.GetTokenUsage(context.Background(), th.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), usage.InputTokens)
	assert.Equal(t, int64(40), usage.OutputTokens)
	assert.Equal(t, int64(140), usage.TotalTokens)
	assert.Equal(t, int64(1), usage.CallCount)
}
