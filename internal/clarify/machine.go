// Package clarify implements the ask-and-resume cycle: a blocked operation
// opens a question, and the answer either patches the frozen draft for a
// direct retry or is handed back to the agent as conversation context.
package clarify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/user/ledgerclaw/internal/ledger"
	"github.com/user/ledgerclaw/internal/masterdata"
	"github.com/user/ledgerclaw/internal/scenario"
	"github.com/user/ledgerclaw/internal/types"
)

// Mode says how a run resumes after an answer.
type Mode int

const (
	// ModeIgnored: the question was already answered.
	ModeIgnored Mode = iota
	// ModeRetryDraft: re-run the frozen tool call without the model.
	ModeRetryDraft
	// ModeConversation: run a full agent turn with the answer as context.
	ModeConversation
	// ModeScenario: the user picked a scenario for a low-confidence route.
	ModeScenario
)

func (m Mode) String() string {
	switch m {
	case ModeRetryDraft:
		return "retry_draft"
	case ModeConversation:
		return "conversation"
	case ModeScenario:
		return "scenario"
	}
	return "ignored"
}

// Partners is the partner lookup used to resolve counterparty answers.
type Partners interface {
	SearchPartners(ctx context.Context, kind, query string) ([]masterdata.Partner, error)
}

// Documents gives the machine the document context available at answer time.
type Documents interface {
	Active() types.DocumentSessionID
	Label(docSession types.DocumentSessionID) string
	FileIDs(docSession types.DocumentSessionID) []types.FileID
}

// Resumption tells the caller what to do with an answer.
type Resumption struct {
	Mode    Mode
	Request *types.ClarificationRequest
	Answer  string
	// Field and Value are the pending field answer; Value is the
	// normalized answer that should override whatever the model proposes.
	Field string
	Value string
	// Tool and Arguments are set for ModeRetryDraft.
	Tool      string
	Arguments json.RawMessage
	// ScenarioKey is set for ModeScenario.
	ScenarioKey string
	// Reroute is set when a scenario confirmation was not confirmed. The
	// suggested scenario must not be used; the answer is routed afresh.
	Reroute bool
}

// ErrUnknownQuestion is returned for an answerTo that matches nothing.
var ErrUnknownQuestion = errors.New("unknown clarification question")

// Machine opens and answers clarification requests.
type Machine struct {
	store    types.ClarificationStore
	partners Partners
	patchers map[string]DraftPatcher
	now      func() time.Time
	logger   *zap.Logger
}

// NewMachine creates a Machine. partners may be nil, in which case
// counterparty answers are always kept verbatim.
func NewMachine(store types.ClarificationStore, partners Partners, logger *zap.Logger) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{
		store:    store,
		partners: partners,
		patchers: map[string]DraftPatcher{"create_voucher": VoucherPatcher},
		now:      time.Now,
		logger:   logger,
	}
}

// RegisterPatcher sets the patcher for a tool's frozen drafts.
func (m *Machine) RegisterPatcher(tool string, p DraftPatcher) {
	m.patchers[tool] = p
}

// Open persists a new question.
func (m *Machine) Open(ctx context.Context, req *types.ClarificationRequest) (*types.ClarificationRequest, error) {
	if req.QuestionID == "" {
		req.QuestionID = types.NewQuestionID()
	}
	req.State = types.ClarificationOpen
	if req.CreatedAt.IsZero() {
		req.CreatedAt = m.now()
	}
	if err := m.store.Save(ctx, req); err != nil {
		return nil, fmt.Errorf("save clarification: %w", err)
	}
	m.logger.Info("clarification opened",
		zap.String("question_id", string(req.QuestionID)),
		zap.String("missing_field", req.MissingField),
		zap.String("document_session_id", string(req.DocumentSessionID)))
	return req, nil
}

// Pending lists open questions.
func (m *Machine) Pending(ctx context.Context) ([]*types.ClarificationRequest, error) {
	return m.store.ListOpen(ctx)
}

// Answer consumes the question exactly once. A second answer to the same id
// returns ModeIgnored without error.
func (m *Machine) Answer(ctx context.Context, id types.QuestionID, answer string, docs Documents) (*Resumption, error) {
	req, err := m.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownQuestion, id)
		}
		return nil, err
	}
	if req.State == types.ClarificationAnswered {
		return &Resumption{Mode: ModeIgnored, Request: req}, nil
	}

	answer = strings.TrimSpace(answer)
	backfill(req, docs)
	res, err := m.resume(ctx, req, answer)
	if err != nil {
		return nil, err
	}

	won, err := m.store.MarkAnswered(ctx, id, answer, m.now())
	if err != nil {
		return nil, fmt.Errorf("mark answered: %w", err)
	}
	if !won {
		return &Resumption{Mode: ModeIgnored, Request: req}, nil
	}
	req.State = types.ClarificationAnswered
	req.Answer = answer
	m.logger.Info("clarification answered",
		zap.String("question_id", string(id)),
		zap.Stringer("mode", res.Mode))
	return res, nil
}

// backfill fills document references the original request left empty.
func backfill(req *types.ClarificationRequest, docs Documents) {
	if docs == nil {
		return
	}
	if req.DocumentSessionID == "" {
		req.DocumentSessionID = docs.Active()
	}
	if req.DocumentSessionID == "" {
		return
	}
	if req.DocumentLabel == "" {
		req.DocumentLabel = docs.Label(req.DocumentSessionID)
	}
	if req.DocumentID == "" {
		if files := docs.FileIDs(req.DocumentSessionID); len(files) > 0 {
			req.DocumentID = files[0]
		}
	}
}

func (m *Machine) resume(ctx context.Context, req *types.ClarificationRequest, answer string) (*Resumption, error) {
	res := &Resumption{Mode: ModeConversation, Request: req, Answer: answer}

	if strings.HasPrefix(req.Detail, scenario.SelectDetailPrefix) {
		if key := pickScenario(req, answer); key != "" {
			res.Mode = ModeScenario
			res.ScenarioKey = key
		} else {
			res.Reroute = true
		}
		return res, nil
	}

	if req.MissingField == "" {
		return res, nil
	}
	res.Field = req.MissingField
	res.Value = m.fieldValue(ctx, req.MissingField, answer)

	if req.Draft == nil || len(req.Draft.Arguments) == 0 {
		return res, nil
	}
	patcher, ok := m.patchers[req.Draft.Tool]
	if !ok {
		patcher = GenericPatcher
	}
	patched, err := patcher.Patch(req.Draft.Arguments, req.MissingField, res.Value)
	if err != nil {
		m.logger.Warn("draft patch failed, falling back to conversation",
			zap.String("question_id", string(req.QuestionID)),
			zap.String("tool", req.Draft.Tool),
			zap.Error(err))
		return res, nil
	}
	res.Mode = ModeRetryDraft
	res.Tool = req.Draft.Tool
	res.Arguments = patched
	return res, nil
}

// fieldValue normalizes an answer for the field it fills. Posting dates are
// canonicalized; counterparty answers are replaced by a partner code only
// when the lookup is unambiguous.
func (m *Machine) fieldValue(ctx context.Context, field, answer string) string {
	name := field
	if i := strings.LastIndex(field, "."); i >= 0 {
		name = field[i+1:]
	}
	switch strings.ToLower(name) {
	case "postingdate", "posting_date":
		if d, ok := ledger.NormalizeDate(answer); ok {
			return d
		}
	case "customerid", "customercode":
		return m.partnerCode(ctx, masterdata.KindCustomer, answer)
	case "vendorid", "vendorcode":
		return m.partnerCode(ctx, masterdata.KindVendor, answer)
	}
	return answer
}

func (m *Machine) partnerCode(ctx context.Context, kind, answer string) string {
	if m.partners == nil || answer == "" {
		return answer
	}
	found, err := m.partners.SearchPartners(ctx, kind, answer)
	if err != nil || len(found) != 1 {
		m.logger.Debug("partner answer kept verbatim", zap.String("answer", answer), zap.Int("matches", len(found)))
		return answer
	}
	return found[0].Code
}

var affirmative = []string{"yes", "y", "ok", "okay", "correct", "はい", "是", "对", "好"}

// pickScenario reads a scenario confirmation answer: an option key, title,
// 1-based index, or an affirmative reply confirming the suggestion.
func pickScenario(req *types.ClarificationRequest, answer string) string {
	a := strings.ToLower(strings.Trim(strings.TrimSpace(answer), ".!。"))
	if a == "" {
		return ""
	}
	for _, word := range affirmative {
		if a == word {
			return strings.TrimPrefix(req.Detail, scenario.SelectDetailPrefix)
		}
	}
	if n, err := strconv.Atoi(a); err == nil && n >= 1 && n <= len(req.Options) {
		return req.Options[n-1].Key
	}
	for _, o := range req.Options {
		if strings.EqualFold(o.Key, a) || strings.EqualFold(o.Title, a) {
			return o.Key
		}
	}
	return ""
}
