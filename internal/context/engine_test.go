package context

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/ledgerclaw/internal/scenario"
	"github.com/user/ledgerclaw/internal/types"
	"github.com/user/ledgerclaw/pkg/llm"
)

func TestNewEngine(t *testing.T) {
	e, err := New("gpt-4", 128000, 4096)
	require.NoError(t, err)
	assert.NotNil(t, e)
}

func TestBuildPromptBasic(t *testing.T) {
	e, err := New("gpt-4", 128000, 4096)
	require.NoError(t, err)

	session := &types.Session{ID: "test-session", Company: "acme"}
	history := []*types.Message{
		{ID: "m1", Role: types.RoleUser, Content: "hello"},
		{ID: "m2", Role: types.RoleAssistant, Content: "hi there"},
	}

	messages, err := e.BuildPrompt(context.Background(), PromptInput{
		Session:   session,
		History:   history,
		UserText:  "book this receipt",
		ToolNames: []string{"lookup_account", "create_voucher"},
	})
	require.NoError(t, err)
	require.Len(t, messages, 4)
	assert.Equal(t, llm.RoleSystem, messages[0].Role)
	assert.Contains(t, messages[0].Content, "test-session")
	assert.Contains(t, messages[0].Content, "lookup_account, create_voucher")
	assert.Equal(t, "hello", messages[1].Content)
	assert.Equal(t, "hi there", messages[2].Content)
	assert.Equal(t, "book this receipt", messages[3].Content)
}

func TestBuildPromptScenarioAndDocuments(t *testing.T) {
	e, err := New("gpt-4", 128000, 4096)
	require.NoError(t, err)

	def := &scenario.Definition{
		Key:          "expense.receipt",
		Title:        "Expense receipt",
		Instructions: "Post receipts as expenses paid in cash.",
		ToolHints:    []string{"lookup_account"},
		Metadata: scenario.Metadata{ContextMessages: []scenario.ContextMessage{
			{Role: "assistant", Content: "I will look up accounts first."},
		}},
	}
	messages, err := e.BuildPrompt(context.Background(), PromptInput{
		Session:          &types.Session{ID: "s1"},
		Scenarios:        []*scenario.Definition{def},
		Documents:        "#1 fileId=f1 documentSessionId=doc_f1\n",
		ActiveDocument:   "doc_f1",
		ApprovedAccounts: []string{"6100", "1000"},
		PendingField:     "postingDate",
		PendingValue:     "2024-04-01",
		UserText:         "go",
	})
	require.NoError(t, err)
	sys := messages[0].Content
	assert.Contains(t, sys, "Scenario: Expense receipt (expense.receipt)")
	assert.Contains(t, sys, "Post receipts as expenses paid in cash.")
	assert.Contains(t, sys, "#1 fileId=f1")
	assert.Contains(t, sys, "6100, 1000")
	assert.Contains(t, sys, "postingDate = 2024-04-01")
	assert.Equal(t, llm.RoleAssistant, messages[1].Role)
	assert.Equal(t, "I will look up accounts first.", messages[1].Content)
}

func TestBuildPromptKeepsNewestHistoryWithinBudget(t *testing.T) {
	e, err := New("gpt-4", 400, 50)
	require.NoError(t, err)
	require.NoError(t, e.SetPrompt("sys"))

	var history []*types.Message
	for i := 0; i < 50; i++ {
		history = append(history, &types.Message{Role: types.RoleUser, Content: strings.Repeat("word ", 10) + string(rune('a'+i%26))})
	}
	messages, err := e.BuildPrompt(context.Background(), PromptInput{History: history, UserText: "latest"})
	require.NoError(t, err)
	require.Greater(t, len(messages), 2)
	assert.Less(t, len(messages), 52)
	assert.Equal(t, history[len(history)-1].Content, messages[len(messages)-2].Content)
	assert.Equal(t, "latest", messages[len(messages)-1].Content)
	assert.True(t, e.Fits(messages))
}

func TestBuildPromptSkipsExcludedRun(t *testing.T) {
	e, err := New("gpt-4", 128000, 4096)
	require.NoError(t, err)
	history := []*types.Message{
		{Role: types.RoleUser, Content: "old", RunID: "r0"},
		{Role: types.RoleUser, Content: "current", RunID: "r1"},
	}
	messages, err := e.BuildPrompt(context.Background(), PromptInput{History: history, UserText: "current", ExcludeHistoryRun: "r1"})
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "old", messages[1].Content)
}
