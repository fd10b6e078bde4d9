package planner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/ledgerclaw/internal/scenario"
	"github.com/user/ledgerclaw/internal/types"
	"github.com/user/ledgerclaw/pkg/llm/llmtest"
)

func catalog() *scenario.Catalog {
	return scenario.NewCatalog([]*scenario.Definition{
		{Key: "expense.receipt", Title: "Expense receipt", Priority: 10, IsActive: true},
		{Key: "vendor.invoice", Title: "Vendor invoice", Priority: 20, IsActive: true},
		{Key: "retired", Title: "Retired", Priority: 30, IsActive: false},
	})
}

func TestShortcutNeverCallsModel(t *testing.T) {
	script := llmtest.New()
	p := New(script, nil)

	plan, err := p.Plan(context.Background(), Request{
		Catalog: catalog(),
		Documents: []Document{
			{FileID: "f1", DocumentSessionID: "doc_a", SuggestedScenario: "expense.receipt"},
			{FileID: "f2", DocumentSessionID: "doc_a", SuggestedScenario: "expense.receipt"},
			{FileID: "f3", DocumentSessionID: "doc_b", SuggestedScenario: "vendor.invoice"},
			{FileID: "f4", DocumentSessionID: "doc_c", SuggestedScenario: "expense.receipt"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, script.CallCount())
	assert.False(t, plan.UsedModel)
	require.Len(t, plan.Groups, 3)
	assert.Equal(t, []types.FileID{"f1", "f2"}, plan.Groups[0].DocumentIDs)
	assert.Equal(t, types.DocumentSessionID("doc_b"), plan.Groups[1].DocumentSessionID)
	assert.Equal(t, "expense.receipt", plan.Groups[2].ScenarioKey)
	assert.Empty(t, plan.Unassigned)
}

func TestInvalidSuggestionSendsWholeBatchToModel(t *testing.T) {
	script := llmtest.New(llmtest.JSON(map[string]any{
		"groups": []map[string]any{
			{"scenarioKey": "vendor.invoice", "documentIds": []string{"f1", "f2"}, "reason": "invoices"},
		},
	}))
	p := New(script, nil)

	plan, err := p.Plan(context.Background(), Request{
		Catalog: catalog(),
		Documents: []Document{
			{FileID: "f1", DocumentSessionID: "doc_a", SuggestedScenario: "expense.receipt"},
			{FileID: "f2", DocumentSessionID: "doc_b", SuggestedScenario: "retired"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, script.CallCount())
	assert.True(t, plan.UsedModel)

	// the model grouped two document sessions together; they are split
	require.Len(t, plan.Groups, 2)
	for _, g := range plan.Groups {
		assert.Equal(t, "vendor.invoice", g.ScenarioKey)
		assert.Len(t, g.DocumentIDs, 1)
	}
	assert.NotEqual(t, plan.Groups[0].DocumentSessionID, plan.Groups[1].DocumentSessionID)
}

func TestModelPlanUnknownKeysAndLeftoversAreUnassigned(t *testing.T) {
	script := llmtest.New(llmtest.Text("```json\n" +
		`{"groups":[{"scenarioKey":"made.up","documentIds":["f1"]},` +
		`{"scenarioKey":"expense.receipt","documentIds":["f2","f2","ghost"]}]}` + "\n```"))
	p := New(script, nil)

	plan, err := p.Plan(context.Background(), Request{
		Catalog: catalog(),
		Documents: []Document{
			{FileID: "f1"},
			{FileID: "f2"},
			{FileID: "f3"},
		},
	})
	require.NoError(t, err)
	require.Len(t, plan.Groups, 1)
	assert.Equal(t, []types.FileID{"f2"}, plan.Groups[0].DocumentIDs)
	assert.Equal(t, types.DocumentSessionID("doc_f2"), plan.Groups[0].DocumentSessionID)
	assert.Equal(t, []types.FileID{"f1", "f3"}, plan.Unassigned)
}

func TestFocusSuppressesOtherDocuments(t *testing.T) {
	script := llmtest.New()
	p := New(script, nil)

	plan, err := p.Plan(context.Background(), Request{
		Catalog: catalog(),
		Focus:   "doc_b",
		Documents: []Document{
			{FileID: "f1", DocumentSessionID: "doc_a"},
			{FileID: "f2", DocumentSessionID: "doc_b", SuggestedScenario: "vendor.invoice"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []types.FileID{"f1"}, plan.Suppressed)
	assert.Empty(t, plan.Unassigned)
	require.Len(t, plan.Groups, 1)
	assert.Equal(t, 0, script.CallCount())
}

func TestModelFailureDegradesToSuggestions(t *testing.T) {
	script := llmtest.New(llmtest.Fail(errors.New("upstream 503")))
	p := New(script, nil)

	plan, err := p.Plan(context.Background(), Request{
		Catalog: catalog(),
		Documents: []Document{
			{FileID: "f1", DocumentSessionID: "doc_a", SuggestedScenario: "expense.receipt"},
			{FileID: "f2", DocumentSessionID: "doc_b"},
		},
	})
	require.NoError(t, err)
	assert.False(t, plan.UsedModel)
	require.Len(t, plan.Groups, 1)
	assert.Equal(t, []types.FileID{"f2"}, plan.Unassigned)
}

func TestCancelledContextIsReturned(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := New(llmtest.New(), nil)

	_, err := p.Plan(ctx, Request{Catalog: catalog(), Documents: []Document{{FileID: "f1"}}})
	assert.ErrorIs(t, err, context.Canceled)
}
