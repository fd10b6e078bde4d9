// internal/context/engine.go
package context

import (
	"bytes"
	"context"
	"fmt"
	"text/template"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"github.com/user/ledgerclaw/internal/scenario"
	"github.com/user/ledgerclaw/internal/types"
	"github.com/user/ledgerclaw/pkg/llm"
)

// Engine assembles token-budgeted prompts for the LLM.
type Engine struct {
	tokenizer *tiktoken.Tiktoken
	maxTokens int
	reserve   int
	tmpl      *template.Template
}

// New creates a context engine with the specified token budget.
// model is used to select the appropriate tokenizer (e.g. "gpt-4").
// maxTokens is the model's context window size.
// reserve is the number of tokens to reserve for the model's response.
func New(model string, maxTokens, reserve int) (*Engine, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Fallback to cl100k_base for unknown models
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	tmpl, err := template.New("system").Parse(DefaultPrompt)
	if err != nil {
		return nil, fmt.Errorf("parse system prompt: %w", err)
	}
	return &Engine{
		tokenizer: enc,
		maxTokens: maxTokens,
		reserve:   reserve,
		tmpl:      tmpl,
	}, nil
}

// SetPrompt replaces the system prompt template.
func (e *Engine) SetPrompt(text string) error {
	tmpl, err := template.New("system").Parse(text)
	if err != nil {
		return fmt.Errorf("parse system prompt: %w", err)
	}
	e.tmpl = tmpl
	return nil
}

// countTokens returns the token count for a string.
func (e *Engine) countTokens(text string) int {
	return len(e.tokenizer.Encode(text, nil, nil))
}

// PromptInput is everything one agent turn is built from.
type PromptInput struct {
	Session   *types.Session
	Scenarios []*scenario.Definition
	// Documents is the registry listing shown to the model.
	Documents         string
	ActiveDocument    types.DocumentSessionID
	ApprovedAccounts  []string
	PendingField      string
	PendingValue      string
	Language          string
	ToolNames         []string
	History           []*types.Message
	UserText          string
	ExcludeHistoryRun types.RunID
}

// PromptData feeds the system prompt template.
type PromptData struct {
	Time             string
	SessionID        string
	Company          string
	Language         string
	Tools            []string
	Scenarios        []*scenario.Definition
	Documents        string
	ActiveDocument   string
	ApprovedAccounts []string
	PendingField     string
	PendingValue     string
}

// BuildPrompt assembles system prompt, scenario context messages, as much
// recent history as fits the budget, and the current user text.
func (e *Engine) BuildPrompt(ctx context.Context, in PromptInput) ([]llm.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	inputBudget := e.maxTokens - e.reserve

	// 1. System prompt
	data := PromptData{
		Time:             time.Now().Format(time.RFC3339),
		Language:         in.Language,
		Tools:            in.ToolNames,
		Scenarios:        in.Scenarios,
		Documents:        in.Documents,
		ActiveDocument:   string(in.ActiveDocument),
		ApprovedAccounts: in.ApprovedAccounts,
		PendingField:     in.PendingField,
		PendingValue:     in.PendingValue,
	}
	if in.Session != nil {
		data.SessionID = string(in.Session.ID)
		data.Company = in.Session.Company
	}
	var buf bytes.Buffer
	if err := e.tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render system prompt: %w", err)
	}
	sysPrompt := buf.String()

	messages := []llm.Message{{Role: llm.RoleSystem, Content: sysPrompt}}
	remaining := inputBudget - e.countTokens(sysPrompt)

	for _, d := range in.Scenarios {
		for _, cm := range d.Metadata.ContextMessages {
			role := cm.Role
			if role != llm.RoleUser && role != llm.RoleAssistant {
				role = llm.RoleSystem
			}
			messages = append(messages, llm.Message{Role: role, Content: cm.Content})
			remaining -= e.countTokens(cm.Content)
		}
	}

	userTokens := e.countTokens(in.UserText)
	remaining -= userTokens

	// 70% of what is left goes to history, newest first
	historyBudget := int(float64(remaining) * 0.7)
	var history []llm.Message
	used := 0
	for i := len(in.History) - 1; i >= 0; i-- {
		m := in.History[i]
		if in.ExcludeHistoryRun != "" && m.RunID == in.ExcludeHistoryRun {
			continue
		}
		if m.Role != types.RoleUser && m.Role != types.RoleAssistant {
			continue
		}
		tokens := e.countTokens(m.Content)
		if used+tokens > historyBudget {
			break
		}
		history = append(history, llm.Message{Role: m.Role, Content: m.Content})
		used += tokens
	}
	for i := len(history) - 1; i >= 0; i-- {
		messages = append(messages, history[i])
	}

	if in.UserText != "" {
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: in.UserText})
	}
	return messages, nil
}

// Fits reports whether messages fit the input budget.
func (e *Engine) Fits(messages []llm.Message) bool {
	total := 0
	for _, m := range messages {
		total += e.countTokens(m.Content)
		for _, tc := range m.Tools {
			total += e.countTokens(tc.Function.Name) + e.countTokens(string(tc.Function.Arguments))
		}
	}
	return total <= e.maxTokens-e.reserve
}
