// Package llmtest provides a scripted llm.Provider for tests.
package llmtest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/user/ledgerclaw/pkg/llm"
)

// Step is one scripted reply. Err, when set, is returned instead of a response.
type Step struct {
	Response *llm.Response
	Err      error
}

// Script replays responses in order and records every request it receives.
type Script struct {
	mu       sync.Mutex
	steps    []Step
	fallback *llm.Response
	calls    [][]llm.Message
	tools    [][]llm.Tool
}

// New creates a Script from the given steps.
func New(steps ...Step) *Script {
	return &Script{steps: steps}
}

// Text is a step that answers with plain text.
func Text(content string) Step {
	return Step{Response: &llm.Response{Content: content}}
}

// JSON is a step that answers with v encoded as JSON text.
func JSON(v any) Step {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return Text(string(data))
}

// Call is a step that requests a single tool call.
func Call(id, name string, args any) Step {
	return Calls(llm.ToolCall{ID: id, Type: "function", Function: llm.FunctionCall{Name: name, Arguments: mustRaw(args)}})
}

// Calls is a step that requests several tool calls at once.
func Calls(calls ...llm.ToolCall) Step {
	return Step{Response: &llm.Response{ToolCalls: calls}}
}

// Fail is a step that returns err.
func Fail(err error) Step {
	return Step{Err: err}
}

// WithFallback sets the response used once the script runs out of steps.
func (s *Script) WithFallback(resp *llm.Response) *Script {
	s.fallback = resp
	return s
}

// Complete implements llm.Provider.
func (s *Script) Complete(ctx context.Context, messages []llm.Message, tools []llm.Tool) (*llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, append([]llm.Message(nil), messages...))
	s.tools = append(s.tools, tools)
	idx := len(s.calls) - 1
	if idx < len(s.steps) {
		step := s.steps[idx]
		if step.Err != nil {
			return nil, step.Err
		}
		return step.Response, nil
	}
	if s.fallback != nil {
		return s.fallback, nil
	}
	return nil, fmt.Errorf("llmtest: script exhausted after %d calls", len(s.steps))
}

// CallCount reports how many requests were made.
func (s *Script) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// Request returns the messages sent with the i-th request.
func (s *Script) Request(i int) []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.calls) {
		return nil
	}
	return s.calls[i]
}

func mustRaw(v any) json.RawMessage {
	switch val := v.(type) {
	case json.RawMessage:
		return val
	case string:
		return json.RawMessage(val)
	}
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
