package scenario

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/ledgerclaw/pkg/llm/llmtest"
)

func testCatalog() *Catalog {
	return NewCatalog([]*Definition{
		{Key: "expense.receipt", Title: "Expense receipt", Priority: 10, IsActive: true,
			Metadata: Metadata{Matcher: Matcher{IncludeKeywords: []string{"receipt"}}}},
		{Key: "vendor.invoice", Title: "Vendor invoice", Priority: 20, IsActive: true},
		{Key: "bank.statement", Title: "Bank statement", Priority: 30, IsActive: true},
		{Key: "payroll", Title: "Payroll", Priority: 40, IsActive: true},
		{Key: "retired", Title: "Retired", Priority: 1, IsActive: false},
		{Key: SalesOrderKey, Title: "Sales order", Priority: 50, IsActive: true,
			Metadata: Metadata{Matcher: Matcher{IncludeKeywords: []string{"never-matches-anything"}}}},
	})
}

type failingClassifier struct{ calls int }

func (f *failingClassifier) Classify(context.Context, ClassifyInput, []*Definition) (*Classification, error) {
	f.calls++
	return nil, errors.New("should not be called")
}

func TestRouteForcedSalesOrder(t *testing.T) {
	cls := &failingClassifier{}
	r := NewRouter(cls, 0, nil)

	d, err := r.Route(context.Background(), testCatalog(), RouteInput{Text: "受注登録 client=Acme item=SKU1 qty=3"})
	require.NoError(t, err)
	require.NotNil(t, d.Primary())
	assert.Equal(t, SalesOrderKey, d.Primary().Key)
	assert.True(t, d.Forced)
	assert.False(t, d.Primary().Ephemeral, "catalog entry is preferred")
	assert.Zero(t, cls.calls)
}

func TestRouteSalesOrderSynthesizedWhenMissing(t *testing.T) {
	r := NewRouter(nil, 0, nil)
	d, err := r.Route(context.Background(), NewCatalog(nil), RouteInput{Text: "please create a sales order for Acme"})
	require.NoError(t, err)
	require.NotNil(t, d.Primary())
	assert.True(t, d.Primary().Ephemeral)
	assert.Contains(t, d.Primary().ToolHints, "create_sales_order")
}

func TestRouteExplicitKeyWins(t *testing.T) {
	r := NewRouter(&failingClassifier{}, 0, nil)
	d, err := r.Route(context.Background(), testCatalog(), RouteInput{Text: "receipt", ScenarioKey: "payroll"})
	require.NoError(t, err)
	assert.Equal(t, "payroll", d.Primary().Key)

	d, err = r.Route(context.Background(), testCatalog(), RouteInput{Text: "receipt", ScenarioKey: "nope"})
	require.NoError(t, err)
	assert.Equal(t, "expense.receipt", d.Primary().Key, "unknown forced key falls through to rules")
}

func TestRouteLowConfidenceAsksUser(t *testing.T) {
	script := llmtest.New(llmtest.JSON(map[string]any{
		"scenarioKey": "vendor.invoice",
		"confidence":  0.6,
		"alternatives": []map[string]any{
			{"scenarioKey": "bank.statement", "confidence": 0.3},
			{"scenarioKey": "made.up", "confidence": 0.2},
		},
	}))
	r := NewRouter(NewModelClassifier(script), 0.90, nil)

	d, err := r.Route(context.Background(), testCatalog(), RouteInput{File: &FileInput{FileName: "scan.pdf", ContentType: "application/pdf"}})
	require.NoError(t, err)
	assert.Empty(t, d.Scenarios)
	require.NotNil(t, d.Clarification)
	assert.True(t, strings.HasPrefix(d.Clarification.Detail, SelectDetailPrefix))
	assert.Equal(t, "scenario_select:vendor.invoice", d.Clarification.Detail)
	require.Len(t, d.Clarification.Options, 3)
	assert.Equal(t, "vendor.invoice", d.Clarification.Options[0].Key)
	assert.Equal(t, "bank.statement", d.Clarification.Options[1].Key)
	assert.Equal(t, 1, script.CallCount())
}

func TestRouteHighConfidenceAutoSelects(t *testing.T) {
	r := NewRouter(StaticClassifier{Key: "bank.statement", Confidence: 0.95}, 0.90, nil)
	d, err := r.Route(context.Background(), testCatalog(), RouteInput{Text: "what is this"})
	require.NoError(t, err)
	assert.Equal(t, "bank.statement", d.Primary().Key)
	assert.True(t, d.Classified)
	assert.Nil(t, d.Clarification)
}

func TestRouteDiscardsKeysOutsideActiveCatalog(t *testing.T) {
	for _, key := range []string{"retired", "invented"} {
		r := NewRouter(StaticClassifier{Key: key, Confidence: 0.99}, 0.90, nil)
		d, err := r.Route(context.Background(), testCatalog(), RouteInput{Text: "hmm"})
		require.NoError(t, err)
		assert.Nil(t, d.Primary(), key)
		assert.Nil(t, d.Clarification, key)
	}
}

func TestModelClassifierOnlySeesActiveScenarios(t *testing.T) {
	script := llmtest.New(llmtest.Text("```json\n{\"scenarioKey\":\"payroll\",\"confidence\":0.97}\n```"))
	r := NewRouter(NewModelClassifier(script), 0, nil)
	d, err := r.Route(context.Background(), testCatalog(), RouteInput{Text: "salary run"})
	require.NoError(t, err)
	assert.Equal(t, "payroll", d.Primary().Key)

	prompt := script.Request(0)[1].Content
	assert.Contains(t, prompt, "payroll")
	assert.NotContains(t, prompt, "retired")
}
