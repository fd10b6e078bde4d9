package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/user/ledgerclaw/internal/clarify"
	"github.com/user/ledgerclaw/internal/intake"
	"github.com/user/ledgerclaw/internal/planner"
	"github.com/user/ledgerclaw/internal/scenario"
	"github.com/user/ledgerclaw/internal/types"
)

// task is one loop run: a set of scenarios applied to a document session.
type task struct {
	ID         types.TaskID
	Scenarios  []*scenario.Definition
	DocSession types.DocumentSessionID
	Text       string
	Pending    *PendingAnswer
}

func (tk task) scenarioKey() string {
	if len(tk.Scenarios) == 0 {
		return ""
	}
	return tk.Scenarios[0].Key
}

// message handles a plain text turn: route, then one loop on the active
// document session. A low-confidence route asks before anything runs.
func (t *turn) message(ctx context.Context) (string, error) {
	tk := task{ID: t.taskID(), DocSession: t.registry.Active(), Text: t.req.Text}
	asked, err := t.route(ctx, &tk, t.req.Text, t.req.ScenarioKey, nil)
	if err != nil {
		return "", err
	}
	if asked {
		return OutcomeClarification, nil
	}
	return t.runTask(ctx, tk)
}

// route picks tk's scenarios from text. When the router is not confident
// it opens the confirmation question instead and reports true. from is the
// question being answered, if any; its document is carried over.
func (t *turn) route(ctx context.Context, tk *task, text, explicitKey string, from *types.ClarificationRequest) (bool, error) {
	if t.rt.router == nil {
		return false, nil
	}
	decision, err := t.rt.router.Route(ctx, t.catalog, scenario.RouteInput{Text: text, ScenarioKey: explicitKey})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		t.logger.Warn("routing failed, continuing without a scenario", zap.Error(err))
		return false, nil
	}
	if decision == nil {
		return false, nil
	}
	if q := decision.Clarification; q != nil {
		q.TaskID = tk.ID
		q.DocumentSessionID = tk.DocSession
		if from != nil {
			q.DocumentID = from.DocumentID
			if from.OriginalText != "" {
				q.OriginalText = from.OriginalText
			}
		}
		if err := t.ask(ctx, q); err != nil {
			return false, err
		}
		return true, nil
	}
	tk.Scenarios = decision.Scenarios
	return false, nil
}

// documents handles a batch upload: parallel intake, per-file clarification
// for uncertain routes, planning, then one loop per planned group.
func (t *turn) documents(ctx context.Context) (string, error) {
	items, err := t.prepare(ctx)
	if err != nil {
		return "", err
	}

	focus := t.req.FocusDocumentSessionID
	var (
		docs     []planner.Document
		outcomes []string
	)
	for _, it := range items {
		if it.Err != nil {
			t.logger.Warn("file skipped", zap.String("file_id", string(it.FileID)), zap.Error(it.Err))
			t.reply.Unassigned = append(t.reply.Unassigned, it.FileID)
			if err := t.say(ctx, t.req.TaskID, types.StatusFailed, fmt.Sprintf("File %s could not be read.", it.FileID)); err != nil {
				return "", err
			}
			outcomes = append(outcomes, OutcomeFailed)
			continue
		}

		// Known files keep their document session. New files join the
		// focused session, or start their own.
		docSession := focus
		if existing, ok := t.registry.Resolve(it.FileID); ok && existing.DocumentSessionID != "" {
			docSession = existing.DocumentSessionID
		}
		if docSession == "" {
			docSession = types.DocumentSessionFor(it.FileID)
		}
		d := t.registry.Register(it.FileID, it.Analysis, docSession)
		d.FileName = it.File.FileName
		d.ContentType = it.File.ContentType
		d.BlobReference = it.File.BlobReference
		d.SuggestedScenario = it.Suggested()

		if it.Decision != nil && it.Decision.Clarification != nil {
			q := it.Decision.Clarification
			q.TaskID = t.taskID()
			q.DocumentSessionID = d.DocumentSessionID
			q.DocumentID = d.FileID
			if err := t.ask(ctx, q); err != nil {
				return "", err
			}
			outcomes = append(outcomes, OutcomeClarification)
			continue
		}
		docs = append(docs, planner.Document{
			FileID:            d.FileID,
			DocumentSessionID: d.DocumentSessionID,
			Label:             d.Label,
			FileName:          d.FileName,
			SuggestedScenario: d.SuggestedScenario,
			Preview:           it.Preview,
		})
	}
	if len(docs) == 0 {
		return worst(outcomes...), nil
	}

	plan, err := t.rt.planner.Plan(ctx, planner.Request{
		Documents: docs,
		Catalog:   t.catalog,
		Focus:     focus,
		Text:      t.req.Text,
	})
	if err != nil {
		return "", fmt.Errorf("plan documents: %w", err)
	}
	if len(plan.Suppressed) > 0 {
		t.reply.Suppressed = append(t.reply.Suppressed, plan.Suppressed...)
		if err := t.say(ctx, t.req.TaskID, types.StatusInfo, t.suppressedText(plan.Suppressed, focus)); err != nil {
			return "", err
		}
	}
	if len(plan.Unassigned) > 0 {
		t.reply.Unassigned = append(t.reply.Unassigned, plan.Unassigned...)
		if err := t.say(ctx, t.req.TaskID, types.StatusInfo, t.unassignedText(plan.Unassigned)); err != nil {
			return "", err
		}
		outcomes = append(outcomes, OutcomeOK)
	}

	for _, g := range plan.Groups {
		def, ok := t.catalog.Get(g.ScenarioKey)
		if !ok {
			continue
		}
		t.registry.SetActive(g.DocumentSessionID)
		text := g.MessageOverride
		if text == "" {
			text = t.req.Text
		}
		if text == "" {
			text = fmt.Sprintf("Process document %s.", t.registry.Label(g.DocumentSessionID))
		}
		outcome, err := t.runTask(ctx, task{
			ID:         t.taskID(),
			Scenarios:  []*scenario.Definition{def},
			DocSession: g.DocumentSessionID,
			Text:       text,
		})
		if err != nil {
			return "", err
		}
		outcomes = append(outcomes, outcome)
	}
	if focus != "" {
		t.registry.SetActive(focus)
	}
	return worst(outcomes...), nil
}

func (t *turn) prepare(ctx context.Context) ([]intake.Item, error) {
	if t.rt.intake == nil {
		return nil, errors.New("document intake is not configured")
	}
	items, err := t.rt.intake.Process(ctx, intake.Batch{
		SessionID:   t.session.ID,
		FileIDs:     t.req.FileIDs,
		Catalog:     t.catalog,
		ScenarioKey: t.req.ScenarioKey,
	})
	if err != nil {
		return nil, fmt.Errorf("document intake: %w", err)
	}
	return items, nil
}

func (t *turn) unassignedText(ids []types.FileID) string {
	return "I could not match these documents to a procedure: " + t.fileNames(ids) +
		". Tell me what they are and I will process them."
}

func (t *turn) suppressedText(ids []types.FileID, focus types.DocumentSessionID) string {
	target := t.registry.Label(focus)
	if target == "" {
		target = string(focus)
	}
	return fmt.Sprintf("Left aside for now because this request is about %s: %s.", target, t.fileNames(ids))
}

func (t *turn) fileNames(ids []types.FileID) string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		d, ok := t.registry.Resolve(id)
		if !ok {
			names = append(names, string(id))
			continue
		}
		name := d.Label
		if d.FileName != "" {
			name += " " + d.FileName
		}
		names = append(names, name)
	}
	return strings.Join(names, ", ")
}

// answer resumes a paused operation. Answers to questions that are already
// consumed or unknown are acknowledged and otherwise ignored.
func (t *turn) answer(ctx context.Context) (string, error) {
	if t.rt.clarify == nil {
		return "", errors.New("clarifications are not configured")
	}
	res, err := t.rt.clarify.Answer(ctx, t.req.AnswerTo, t.req.Text, t.registry)
	switch {
	case errors.Is(err, clarify.ErrUnknownQuestion):
		t.rt.metrics.Clarification("ignored")
		return OutcomeIgnored, t.say(ctx, t.req.TaskID, types.StatusInfo, "I could not find that question. Please send your request again.")
	case err != nil:
		return "", fmt.Errorf("answer clarification: %w", err)
	}
	if res.Mode == clarify.ModeIgnored {
		t.rt.metrics.Clarification("ignored")
		return OutcomeIgnored, t.say(ctx, t.req.TaskID, types.StatusInfo, "That question was already answered.")
	}
	t.rt.metrics.Clarification("answered")

	q := res.Request
	if q.DocumentSessionID != "" && len(t.registry.FileIDs(q.DocumentSessionID)) > 0 {
		t.registry.SetActive(q.DocumentSessionID)
	}
	taskID := q.TaskID
	if taskID == "" {
		taskID = t.taskID()
	}
	t.logger.Info("resuming after answer",
		zap.String("question_id", string(q.QuestionID)),
		zap.Stringer("mode", res.Mode))

	switch res.Mode {
	case clarify.ModeRetryDraft:
		return t.retryDraft(ctx, taskID, res)
	case clarify.ModeScenario:
		def, ok := t.catalog.Get(res.ScenarioKey)
		if !ok && res.ScenarioKey == scenario.SalesOrderKey {
			def, ok = scenario.SalesOrder(t.catalog), true
		}
		if ok {
			text := q.OriginalText
			if text == "" && q.DocumentSessionID != "" {
				text = fmt.Sprintf("Process document %s.", t.registry.Label(q.DocumentSessionID))
			}
			if d, found := t.registry.Resolve(q.DocumentID); found {
				d.SuggestedScenario = def.Key
			}
			return t.runTask(ctx, task{ID: taskID, Scenarios: []*scenario.Definition{def}, DocSession: q.DocumentSessionID, Text: text})
		}
	}

	tk := task{ID: taskID, DocSession: q.DocumentSessionID, Text: answerText(q, res.Answer)}
	if res.Reroute {
		// The suggested scenario was not confirmed; the answer decides.
		asked, err := t.route(ctx, &tk, res.Answer, "", q)
		if err != nil {
			return "", err
		}
		if asked {
			return OutcomeClarification, nil
		}
	} else if def, ok := t.catalog.Get(q.ScenarioKey); ok {
		tk.Scenarios = []*scenario.Definition{def}
	}
	if res.Field != "" {
		tk.Pending = &PendingAnswer{QuestionID: q.QuestionID, Field: res.Field, Value: res.Value}
	}
	return t.runTask(ctx, tk)
}

func answerText(q *types.ClarificationRequest, answer string) string {
	var b strings.Builder
	if q.OriginalText != "" {
		fmt.Fprintf(&b, "Original request: %s\n", q.OriginalText)
	}
	fmt.Fprintf(&b, "You asked: %s\nThe user answered: %s", q.Question, answer)
	return b.String()
}

// retryDraft re-executes the frozen tool call with the patched arguments.
// The model is not consulted.
func (t *turn) retryDraft(ctx context.Context, taskID types.TaskID, res *clarify.Resumption) (string, error) {
	ec := t.newExec(taskID, res.Request.ScenarioKey)
	if res.Field != "" {
		ec.Pending = &PendingAnswer{QuestionID: res.Request.QuestionID, Field: res.Field, Value: res.Value}
	}
	out, err := t.execTool(ctx, ec, res.Tool, res.Arguments)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return OutcomeFailed, t.say(ctx, taskID, types.StatusFailed, fmt.Sprintf("Retrying %s failed: %v", res.Tool, err))
	}
	for _, m := range out.Messages {
		if err := t.say(ctx, taskID, types.StatusOK, m); err != nil {
			return "", err
		}
	}
	if out.Clarification != nil {
		q := t.defaults(out.Clarification, ec, res.Request.OriginalText)
		if err := t.ask(ctx, q); err != nil {
			return "", err
		}
		return OutcomeClarification, nil
	}
	if out.Failed || LooksFailed(out.Model) {
		return OutcomeFailed, t.say(ctx, taskID, types.StatusFailed, fmt.Sprintf("%s failed: %s", res.Tool, ErrorText(out.Model)))
	}
	if len(out.Messages) == 0 {
		if err := t.say(ctx, taskID, types.StatusOK, "Done."); err != nil {
			return "", err
		}
	}
	return OutcomeOK, nil
}

// defaults fills the context a tool left out of its clarification.
func (t *turn) defaults(q *types.ClarificationRequest, ec *ExecContext, text string) *types.ClarificationRequest {
	if q.TaskID == "" {
		q.TaskID = ec.TaskID
	}
	if q.DocumentSessionID == "" {
		q.DocumentSessionID = ec.DefaultDocumentSession()
	}
	if q.ScenarioKey == "" {
		q.ScenarioKey = ec.ScenarioKey
	}
	if q.OriginalText == "" {
		q.OriginalText = text
	}
	return q
}
