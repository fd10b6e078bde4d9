package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	ctxengine "github.com/user/ledgerclaw/internal/context"
	"github.com/user/ledgerclaw/internal/tracing"
	"github.com/user/ledgerclaw/internal/types"
	"github.com/user/ledgerclaw/pkg/llm"
)

// runTask drives the tool-calling loop for one task and records what the
// user gets to see.
func (t *turn) runTask(ctx context.Context, tk task) (string, error) {
	ec := t.newExec(tk.ID, tk.scenarioKey())
	ec.Pending = tk.Pending
	if tk.DocSession != "" && len(t.registry.FileIDs(tk.DocSession)) > 0 {
		t.registry.SetActive(tk.DocSession)
	}
	logger := t.logger.With(zap.String("task_id", string(tk.ID)), zap.String("scenario", tk.scenarioKey()))

	history, err := t.rt.messages.Tail(ctx, t.session.ID, t.rt.historyLimit)
	if err != nil {
		return "", fmt.Errorf("load history: %w", err)
	}
	in := ctxengine.PromptInput{
		Session:           t.session,
		Scenarios:         tk.Scenarios,
		Documents:         t.registry.Describe(),
		ActiveDocument:    t.registry.Active(),
		ApprovedAccounts:  ec.Whitelist.Codes(),
		Language:          t.req.Language,
		ToolNames:         t.rt.tools.Names(),
		History:           history,
		UserText:          tk.Text,
		ExcludeHistoryRun: t.runID,
	}
	if ec.Pending != nil {
		in.PendingField, in.PendingValue = ec.Pending.Field, ec.Pending.Value
	}
	messages, err := t.rt.prompts.BuildPrompt(ctx, in)
	if err != nil {
		return "", fmt.Errorf("build prompt: %w", err)
	}

	ctrl := NewController(t.rt.maxRounds, t.rt.maxFailures)
	var (
		final     string
		toolMsgs  []string
		questions []*types.ClarificationRequest
	)
rounds:
	for ctrl.Next() {
		resp, err := t.complete(ctx, messages, ctrl.Round())
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			logger.Error("model call failed", zap.Int("round", ctrl.Round()), zap.Error(err))
			return OutcomeFailed, t.say(ctx, tk.ID, types.StatusFailed, "The reasoning service is unavailable right now. Please try again later.")
		}

		if len(resp.ToolCalls) == 0 {
			final = resp.Content
			ctrl.Text()
			break
		}

		messages = append(messages, resp.AssistantMessage())
		for _, tc := range resp.ToolCalls {
			name := tc.Function.Name
			out, err := t.execTool(ctx, ec, name, tc.Function.Arguments)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return "", ctxErr
				}
				if errors.Is(err, ErrUnknownTool) {
					logger.Error("model called an unknown tool", zap.String("tool", name))
					return OutcomeFailed, t.say(ctx, tk.ID, types.StatusFailed, fmt.Sprintf("Stopped: %v.", err))
				}
				out = Failure(err.Error())
			}

			failed := out.Failed || LooksFailed(out.Model)
			errText := ""
			if failed {
				errText = ErrorText(out.Model)
				logger.Info("tool failed", zap.String("tool", name), zap.String("error", errText))
			}
			messages = append(messages, llm.ToolMessage(tc, string(out.Model)))
			toolMsgs = append(toolMsgs, out.Messages...)
			if out.Clarification != nil {
				questions = append(questions, t.defaults(out.Clarification, ec, tk.Text))
			}

			if ctrl.ToolResult(name, failed, errText, out.Clarification != nil, out.BreakLoop).Terminal() {
				break rounds
			}
		}
	}

	state := ctrl.State()
	logger.Info("loop finished", zap.Stringer("state", state), zap.Int("rounds", ctrl.Round()))

	for _, m := range toolMsgs {
		if err := t.say(ctx, tk.ID, types.StatusOK, m); err != nil {
			return "", err
		}
	}

	switch state {
	case StateClarify:
		for _, q := range questions {
			if err := t.ask(ctx, q); err != nil {
				return "", err
			}
		}
		return OutcomeClarification, nil
	case StateCircuitOpen:
		tool, last := ctrl.Tripped()
		return OutcomeCircuitOpen, t.say(ctx, tk.ID, types.StatusFailed,
			fmt.Sprintf("Stopped after %s failed %d times in a row. Last error: %s", tool, ctrl.Failures(tool), last))
	case StateBudgetExceeded:
		text := fmt.Sprintf("Stopped after %d rounds without finishing.", ctrl.Round())
		if !ec.VoucherCreated() {
			text += " No voucher was created."
		}
		return OutcomeBudgetExceeded, t.say(ctx, tk.ID, types.StatusFailed, text)
	}

	final = finalize(final, ec)
	if final == "" && len(toolMsgs) == 0 {
		final = "Done."
	}
	if final != "" {
		if err := t.say(ctx, tk.ID, types.StatusOK, final); err != nil {
			return "", err
		}
	}
	return OutcomeOK, nil
}

// complete calls the model with transient-error retries.
func (t *turn) complete(ctx context.Context, messages []llm.Message, round int) (*llm.Response, error) {
	ctx, span := tracing.Start(ctx, tracing.SpanModel, attribute.Int(tracing.AttrRound, round))
	var resp *llm.Response
	attempts, err := t.rt.retry.Do(ctx, func(ctx context.Context) error {
		start := time.Now()
		r, err := t.rt.provider.Complete(ctx, messages, t.rt.tools.AsLLMTools())
		t.rt.metrics.ModelCall(time.Since(start), err)
		if err != nil {
			return err
		}
		t.rt.metrics.Tokens(r.Usage.InputTokens, r.Usage.OutputTokens)
		resp = r
		return nil
	})
	if attempts > 1 {
		t.logger.Warn("model call retried", zap.Int("round", round), zap.Int("attempts", attempts), zap.Error(err))
	}
	span.SetAttributes(attribute.Int(tracing.AttrAttempts, attempts))
	tracing.End(span, err)
	return resp, err
}

// execTool runs one tool call inside a span and counts it.
func (t *turn) execTool(ctx context.Context, ec *ExecContext, name string, args json.RawMessage) (*Result, error) {
	ctx, span := tracing.Start(ctx, tracing.SpanTool,
		attribute.String(tracing.AttrTool, name),
		attribute.String(tracing.AttrScenario, ec.ScenarioKey))
	t.logger.Debug("tool call", zap.String("tool", name), zap.ByteString("arguments", args))

	out, err := t.rt.tools.Execute(ctx, name, args, ec)
	if err == nil && out == nil {
		out = Success(map[string]bool{"ok": true})
	}
	failed := err != nil || out.Failed || LooksFailed(out.Model)
	t.rt.metrics.ToolCall(name, failed)
	tracing.End(span, err)
	return out, err
}

var successClaim = regexp.MustCompile(`(?i)(voucher|journal entry|entry)\s+(has been |was |is )?(created|registered|recorded|posted|booked)|` +
	`(created|registered|recorded|posted|booked)\s+(the\s+|a\s+)?(voucher|journal entry)|` +
	`伝票.{0,6}(作成|登録|起票)しました|仕訳.{0,6}(作成|登録)しました|凭证.{0,4}(已|成功)?(创建|生成|登记)`)

// finalize drops a success claim the run cannot back up with a committed voucher.
func finalize(text string, ec *ExecContext) string {
	if text == "" || ec.VoucherCreated() {
		return text
	}
	if successClaim.MatchString(text) {
		return "No voucher was created in this turn."
	}
	return text
}
