package httpapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/ledgerclaw/internal/agent"
	"github.com/user/ledgerclaw/internal/agent/tools"
	"github.com/user/ledgerclaw/internal/clarify"
	ctxengine "github.com/user/ledgerclaw/internal/context"
	"github.com/user/ledgerclaw/internal/gateway"
	"github.com/user/ledgerclaw/internal/httpapi"
	"github.com/user/ledgerclaw/internal/ledger"
	"github.com/user/ledgerclaw/internal/masterdata"
	"github.com/user/ledgerclaw/internal/scenario"
	"github.com/user/ledgerclaw/internal/state"
	"github.com/user/ledgerclaw/internal/types"
	"github.com/user/ledgerclaw/pkg/llm/llmtest"
)

// TestEndToEnd drives a receivable booking over HTTP: the first turn stops on
// a missing customer, the answer resumes the frozen draft.
func TestEndToEnd(t *testing.T) {
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()

	sessions := state.NewSessionStore(dir)
	messages := state.NewMessageStore(dir)
	md := masterdata.New(masterdata.DefaultSeed(), nil)
	engine := ledger.NewEngine(md, md, md, ledger.DefaultProfile(), nil)
	machine := clarify.NewMachine(state.NewClarificationStore(dir), md, nil)
	prompts, err := ctxengine.New("gpt-4", 128000, 4096)
	require.NoError(t, err)

	script := llmtest.New(llmtest.Call("c1", "create_voucher", `{
		"header": {"postingDate": "2024-03-05", "summary": "Consulting"},
		"lines": [
			{"accountCode": "1100", "amount": 5000, "side": "DR"},
			{"accountCode": "4000", "amount": 5000, "side": "CR"}
		]
	}`))
	rt := agent.New(agent.Config{
		Provider: script,
		Prompts:  prompts,
		Sessions: sessions,
		Messages: messages,
		Analyses: state.NewAnalysisStore(dir),
		Catalogs: scenario.StaticSource{Catalog: scenario.NewCatalog(nil)},
		Router:   scenario.NewRouter(nil, 0, nil),
		Clarify:  machine,
		Tools:    agent.NewRegistry(tools.All(tools.FromMemory(md, engine, nil))...),
		Retry:    &gateway.RetryPolicy{MaxAttempts: 1, InitialDelay: time.Millisecond, Multiplier: 1, MaxDelay: time.Millisecond},
	})

	gw := gateway.New(sessions, nil, 2)
	gw.Queue.SetProcessor(rt.ProcessRun)
	gw.Start(context.Background())
	defer gw.Stop()

	srv := httpapi.New(httpapi.Config{
		Gateway:        gw,
		Sessions:       sessions,
		Messages:       messages,
		Files:          state.NewFileStore(dir),
		Clarifications: machine,
		RunTimeout:     5 * time.Second,
	})
	post := func(body string) *types.Reply {
		t.Helper()
		req := httptest.NewRequest(http.MethodPost, "/api/sessions/http:dave/messages", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var reply types.Reply
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reply))
		return &reply
	}

	reply := post(`{"text": "Invoice the consulting work, 5,000 yen"}`)
	require.Len(t, reply.Clarifications, 1)
	q := reply.Clarifications[0]
	assert.Equal(t, "lines[0].customerId", q.MissingField)

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/clarifications", nil))
	var open []*types.ClarificationRequest
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &open))
	require.Len(t, open, 1)
	assert.Equal(t, q.QuestionID, open[0].QuestionID)

	reply = post(`{"text": "Acme", "answer_to": "` + string(q.QuestionID) + `"}`)
	require.NotEmpty(t, reply.Messages)
	assert.Contains(t, reply.Messages[len(reply.Messages)-1].Content, "V202403-0001")
	assert.Equal(t, 1, script.CallCount(), "the answer replays the draft without the model")

	v, err := md.VoucherByNumber(context.Background(), "V202403-0001")
	require.NoError(t, err)
	assert.Equal(t, "C001", v.Draft.Lines[0].CustomerID)

	w = httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/clarifications", nil))
	assert.JSONEq(t, `[]`, w.Body.String())
}
