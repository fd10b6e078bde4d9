package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/user/ledgerclaw/internal/types"
	"github.com/user/ledgerclaw/pkg/llm"
)

// Result is what a tool hands back: a model-visible JSON result, messages for
// the user, and whether the loop should stop here.
type Result struct {
	Model    json.RawMessage
	Messages []string
	// BreakLoop ends the run successfully after this call.
	BreakLoop bool
	// Clarification, when set, is opened and the loop stops.
	Clarification *types.ClarificationRequest
	// Failed marks a tool-local failure that counts toward the circuit breaker.
	Failed bool
}

// Tool is one capability the model may invoke.
type Tool interface {
	Name() string
	Description() string
	Parameters() json.RawMessage
	Execute(ctx context.Context, args json.RawMessage, ec *ExecContext) (*Result, error)
}

// ErrUnknownTool is returned for calls naming an unregistered tool.
var ErrUnknownTool = errors.New("unknown tool")

// Registry holds registered tools and provides lookup.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry creates a registry holding tools.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds a tool to the registry, replacing any tool of the same name.
func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns tool names sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// AsLLMTools converts registered tools to the LLM provider format, in name order.
func (r *Registry) AsLLMTools() []llm.Tool {
	names := r.Names()
	out := make([]llm.Tool, 0, len(names))
	for _, name := range names {
		t := r.tools[name]
		out = append(out, llm.FunctionTool(t.Name(), t.Description(), t.Parameters()))
	}
	return out
}

// Execute runs the named tool. Arguments must be a JSON object; malformed
// objects are repaired first.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage, ec *ExecContext) (*Result, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	repaired, err := llm.RepairArguments(args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return t.Execute(ctx, repaired, ec)
}

// Success encodes v as a model-visible result.
func Success(v any, messages ...string) *Result {
	data, err := json.Marshal(v)
	if err != nil {
		return Failure(fmt.Sprintf("encode result: %v", err))
	}
	return &Result{Model: data, Messages: messages}
}

// Failure is a tool-local error the model can react to.
func Failure(msg string) *Result {
	data, _ := json.Marshal(map[string]string{"error": msg})
	return &Result{Model: data, Failed: true}
}

// LooksFailed applies the content heuristics used for results that do not
// set Failed: an "error" field, or a failed/error status.
func LooksFailed(content json.RawMessage) bool {
	var shape struct {
		Error   any    `json:"error"`
		Status  string `json:"status"`
		Success *bool  `json:"success"`
	}
	if err := json.Unmarshal(content, &shape); err != nil {
		return strings.HasPrefix(strings.ToLower(strings.TrimSpace(string(content))), "error")
	}
	if shape.Error != nil && shape.Error != "" && shape.Error != false {
		return true
	}
	if shape.Success != nil && !*shape.Success {
		return true
	}
	switch strings.ToLower(shape.Status) {
	case "error", "failed", "failure":
		return true
	}
	return false
}

// ErrorText extracts the error message from a failed result.
func ErrorText(content json.RawMessage) string {
	var shape struct {
		Error   any    `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(content, &shape); err != nil {
		return strings.TrimSpace(string(content))
	}
	if s, ok := shape.Error.(string); ok && s != "" {
		return s
	}
	if shape.Message != "" {
		return shape.Message
	}
	return strings.TrimSpace(string(content))
}
