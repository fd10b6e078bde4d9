package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/user/ledgerclaw/internal/clarify"
	ctxengine "github.com/user/ledgerclaw/internal/context"
	"github.com/user/ledgerclaw/internal/documents"
	"github.com/user/ledgerclaw/internal/gateway"
	"github.com/user/ledgerclaw/internal/intake"
	"github.com/user/ledgerclaw/internal/ledger"
	"github.com/user/ledgerclaw/internal/metrics"
	"github.com/user/ledgerclaw/internal/planner"
	"github.com/user/ledgerclaw/internal/scenario"
	"github.com/user/ledgerclaw/internal/tracing"
	"github.com/user/ledgerclaw/internal/types"
	"github.com/user/ledgerclaw/pkg/llm"
)

// Run outcomes, used as the metrics label.
const (
	OutcomeOK             = "ok"
	OutcomeClarification  = "clarification"
	OutcomeFailed         = "failed"
	OutcomeIgnored        = "ignored"
	OutcomeCircuitOpen    = "circuit_open"
	OutcomeBudgetExceeded = "budget_exceeded"
)

// DefaultHistoryLimit is how many stored messages are offered to the prompt builder.
const DefaultHistoryLimit = 100

// Config holds the runtime's collaborators. Provider, Prompts, Sessions and
// Messages are required; everything else degrades when nil.
type Config struct {
	Provider llm.Provider
	Prompts  *ctxengine.Engine
	Sessions types.SessionStore
	Messages types.MessageStore
	Analyses types.AnalysisStore
	Catalogs scenario.Source
	Router   *scenario.Router
	Planner  *planner.Planner
	Clarify  *clarify.Machine
	Intake   *intake.Intake
	Tools    *Registry
	Profile  ledger.CompanyProfile
	Retry    *gateway.RetryPolicy
	Metrics  *metrics.Metrics
	Logger   *zap.Logger

	MaxRounds    int
	MaxFailures  int
	HistoryLimit int
}

// Runtime implements the orchestration of one inbound request: routing,
// document intake, planning, the tool-calling loop and clarification resume.
type Runtime struct {
	provider     llm.Provider
	prompts      *ctxengine.Engine
	sessions     types.SessionStore
	messages     types.MessageStore
	analyses     types.AnalysisStore
	catalogs     scenario.Source
	router       *scenario.Router
	planner      *planner.Planner
	clarify      *clarify.Machine
	intake       *intake.Intake
	tools        *Registry
	profile      ledger.CompanyProfile
	retry        *gateway.RetryPolicy
	metrics      *metrics.Metrics
	logger       *zap.Logger
	maxRounds    int
	maxFailures  int
	historyLimit int
}

// New creates a Runtime.
func New(cfg Config) *Runtime {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Tools == nil {
		cfg.Tools = NewRegistry()
	}
	if cfg.Retry == nil {
		cfg.Retry = gateway.DefaultRetryPolicy()
	}
	if cfg.Planner == nil {
		cfg.Planner = planner.New(nil, cfg.Logger)
	}
	if cfg.Profile.LocalCurrency == "" {
		cfg.Profile = ledger.DefaultProfile()
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	return &Runtime{
		provider:     cfg.Provider,
		prompts:      cfg.Prompts,
		sessions:     cfg.Sessions,
		messages:     cfg.Messages,
		analyses:     cfg.Analyses,
		catalogs:     cfg.Catalogs,
		router:       cfg.Router,
		planner:      cfg.Planner,
		clarify:      cfg.Clarify,
		intake:       cfg.Intake,
		tools:        cfg.Tools,
		profile:      cfg.Profile,
		retry:        cfg.Retry,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
		maxRounds:    cfg.MaxRounds,
		maxFailures:  cfg.MaxFailures,
		historyLimit: cfg.HistoryLimit,
	}
}

// Tools returns the tool registry.
func (rt *Runtime) Tools() *Registry {
	return rt.tools
}

// ProcessRun handles one queued run and delivers its reply.
// This is the function passed to Queue.SetProcessor.
func (rt *Runtime) ProcessRun(run *gateway.Run) error {
	ctx := run.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if run.Request == nil {
		return fmt.Errorf("run %s has no request", run.ID)
	}
	reply, err := rt.Handle(ctx, run.SessionID, run.ID, run.Request)
	if err != nil {
		return err
	}
	run.Complete(reply)
	return nil
}

// Handle processes req against an existing session. Business failures are
// reported inside the reply; the error return is reserved for cancellation
// and infrastructure failures.
func (rt *Runtime) Handle(ctx context.Context, sessionID types.SessionID, runID types.RunID, req *types.InboundRequest) (*types.Reply, error) {
	done := rt.metrics.RunStarted()
	defer done()

	ctx, span := tracing.Start(ctx, tracing.SpanRun,
		attribute.String(tracing.AttrSessionID, string(sessionID)),
		attribute.String(tracing.AttrRunID, string(runID)))

	t, err := rt.begin(ctx, sessionID, runID, req)
	if err != nil {
		tracing.End(span, err)
		rt.metrics.RunFinished(OutcomeFailed)
		return nil, err
	}

	outcome, err := t.dispatch(ctx)
	if err == nil {
		err = t.save(ctx)
	}
	tracing.End(span, err)
	if err != nil {
		rt.metrics.RunFinished(OutcomeFailed)
		return nil, err
	}
	rt.metrics.RunFinished(outcome)
	t.logger.Info("run finished",
		zap.String("outcome", outcome),
		zap.Int("messages", len(t.reply.Messages)),
		zap.Int("clarifications", len(t.reply.Clarifications)))
	return t.reply, nil
}

// begin loads the session, rebuilds the document registry and records the
// user's message.
func (rt *Runtime) begin(ctx context.Context, sessionID types.SessionID, runID types.RunID, req *types.InboundRequest) (*turn, error) {
	session, err := rt.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if session.Company == "" {
		session.Company = req.Company
	}
	if session.Company == "" {
		session.Company = rt.profile.Code
	}

	registry := documents.Restore(session)
	if rt.analyses != nil {
		for _, rec := range session.Documents {
			a, err := rt.analyses.Get(ctx, sessionID, rec.FileID)
			if err != nil {
				if !errors.Is(err, types.ErrNotFound) {
					rt.logger.Warn("load analysis failed", zap.String("file_id", string(rec.FileID)), zap.Error(err))
				}
				continue
			}
			registry.Register(rec.FileID, a, rec.DocumentSessionID)
		}
	}
	if focus := req.FocusDocumentSessionID; focus != "" && len(registry.FileIDs(focus)) > 0 {
		registry.SetActive(focus)
	}

	catalog := scenario.NewCatalog(nil)
	if rt.catalogs != nil {
		c, err := rt.catalogs.Load(ctx, session.Company)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			rt.logger.Warn("scenario catalog unavailable", zap.String("company", session.Company), zap.Error(err))
		} else {
			catalog = c
		}
	}

	t := &turn{
		rt:       rt,
		session:  session,
		req:      req,
		runID:    runID,
		registry: registry,
		catalog:  catalog,
		reply:    &types.Reply{SessionID: sessionID, RunID: runID},
		logger: rt.logger.With(
			zap.String("session_id", string(sessionID)),
			zap.String("run_id", string(runID))),
	}

	content := req.Text
	if content == "" && len(req.FileIDs) > 0 {
		content = fmt.Sprintf("(uploaded %d file(s))", len(req.FileIDs))
	}
	if err := t.appendMessage(ctx, types.RoleUser, content, req.TaskID, nil, false); err != nil {
		return nil, err
	}
	return t, nil
}

// turn is the state of one Handle call. It is owned by a single goroutine.
type turn struct {
	rt       *Runtime
	session  *types.Session
	req      *types.InboundRequest
	runID    types.RunID
	registry *documents.Registry
	catalog  *scenario.Catalog
	reply    *types.Reply
	logger   *zap.Logger
}

func (t *turn) dispatch(ctx context.Context) (string, error) {
	switch {
	case t.req.AnswerTo != "":
		return t.answer(ctx)
	case len(t.req.FileIDs) > 0:
		return t.documents(ctx)
	default:
		return t.message(ctx)
	}
}

// save writes the registry state back onto the session row. The active
// document pointer is last-writer-wins across concurrent runs.
func (t *turn) save(ctx context.Context) error {
	t.registry.ApplyTo(t.session)
	t.session.LastRunID = t.runID
	t.session.UpdatedAt = time.Now()
	if err := t.rt.sessions.Update(ctx, t.session); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// appendMessage persists one conversation message and, unless it is the
// user's own message, adds it to the reply.
func (t *turn) appendMessage(ctx context.Context, role, content string, taskID types.TaskID, payload *types.MessagePayload, visible bool) error {
	msg := &types.Message{
		ID:        types.NewMessageID(),
		SessionID: t.session.ID,
		TaskID:    taskID,
		RunID:     t.runID,
		Role:      role,
		Content:   content,
		Payload:   payload,
		At:        time.Now(),
	}
	if err := t.rt.messages.Append(ctx, msg); err != nil {
		return fmt.Errorf("record %s message: %w", role, err)
	}
	if visible {
		t.reply.Messages = append(t.reply.Messages, msg)
	}
	return nil
}

func (t *turn) say(ctx context.Context, taskID types.TaskID, status, content string) error {
	return t.appendMessage(ctx, types.RoleAssistant, content, taskID, &types.MessagePayload{Status: status}, true)
}

// ask opens req through the clarification machine and records the question.
func (t *turn) ask(ctx context.Context, req *types.ClarificationRequest) error {
	req.SessionID = t.session.ID
	if req.DocumentSessionID != "" {
		if req.DocumentLabel == "" {
			req.DocumentLabel = t.registry.Label(req.DocumentSessionID)
		}
		if req.DocumentID == "" {
			if files := t.registry.FileIDs(req.DocumentSessionID); len(files) > 0 {
				req.DocumentID = files[0]
			}
		}
	}
	if req.OriginalText == "" {
		req.OriginalText = t.req.Text
	}
	if t.rt.clarify != nil {
		opened, err := t.rt.clarify.Open(ctx, req)
		if err != nil {
			return err
		}
		req = opened
	} else {
		if req.QuestionID == "" {
			req.QuestionID = types.NewQuestionID()
		}
		req.State = types.ClarificationOpen
		req.CreatedAt = time.Now()
	}
	t.rt.metrics.Clarification("opened")

	content := req.Question
	if req.DocumentLabel != "" {
		content = req.DocumentLabel + " " + content
	}
	payload := &types.MessagePayload{
		Status: types.StatusClarification,
		Tag:    &types.MessageTag{Kind: types.TagClarification, Clarification: req},
	}
	if err := t.appendMessage(ctx, types.RoleAssistant, content, req.TaskID, payload, true); err != nil {
		return err
	}
	t.reply.Clarifications = append(t.reply.Clarifications, req)
	return nil
}

// newExec creates the per-task execution context. Scenario account hints
// from the company profile are approved up front and switch the whitelist on.
func (t *turn) newExec(taskID types.TaskID, scenarioKey string) *ExecContext {
	ec := NewExecContext(t.session.ID, t.runID, t.registry)
	ec.TaskID = taskID
	ec.Company = t.session.Company
	ec.Language = t.req.Language
	ec.ScenarioKey = scenarioKey
	for _, code := range t.rt.profile.Hints(scenarioKey) {
		ec.Whitelist.Approve(code, true)
	}
	return ec
}

func (t *turn) taskID() types.TaskID {
	if t.req.TaskID != "" {
		return t.req.TaskID
	}
	return types.NewTaskID()
}

// worst merges task outcomes: any failure wins, then clarifications.
func worst(outcomes ...string) string {
	rank := map[string]int{
		OutcomeIgnored:        0,
		OutcomeOK:             1,
		OutcomeClarification:  2,
		OutcomeBudgetExceeded: 3,
		OutcomeCircuitOpen:    3,
		OutcomeFailed:         4,
	}
	out := OutcomeIgnored
	for _, o := range outcomes {
		if rank[o] > rank[out] {
			out = o
		}
	}
	return out
}
