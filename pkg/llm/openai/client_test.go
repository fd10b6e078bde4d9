package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/ledgerclaw/pkg/llm"
)

func TestClientComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message": map[string]any{"role": "assistant", "content": "test response"},
			}},
			"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	}))
	defer server.Close()

	client := New(&llm.Config{BaseURL: server.URL + "/v1", APIKey: "test-key", Model: "gpt-4o"})
	resp, err := client.Complete(context.Background(), []llm.Message{{Role: "user", Content: "hello"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "test response", resp.Content)
	assert.Equal(t, 10, resp.Usage.InputTokens)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
}

func TestClientReplaysToolCallsAsStrings(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"role": "assistant", "content": "ok"}}},
		})
	}))
	defer server.Close()

	client := New(&llm.Config{BaseURL: server.URL, Model: "gpt-4o"})
	messages := []llm.Message{
		{Role: "assistant", Tools: []llm.ToolCall{{ID: "c1", Function: llm.FunctionCall{Name: "lookup_account", Arguments: json.RawMessage(`{"query":"cash"}`)}}}},
		{Role: "tool", ToolCallID: "c1", Content: `{"found":true}`},
	}
	tools := []llm.Tool{{Type: "function", Function: llm.Function{Name: "lookup_account", Parameters: json.RawMessage(`{"type":"object"}`)}}}
	_, err := client.Complete(context.Background(), messages, tools)
	require.NoError(t, err)

	msgs := captured["messages"].([]any)
	first := msgs[0].(map[string]any)
	call := first["tool_calls"].([]any)[0].(map[string]any)
	fn := call["function"].(map[string]any)
	assert.Equal(t, `{"query":"cash"}`, fn["arguments"])
	second := msgs[1].(map[string]any)
	assert.Equal(t, "c1", second["tool_call_id"])
	assert.Equal(t, "auto", captured["tool_choice"])
}

func TestClientJSONMode(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": "{}"}}},
		})
	}))
	defer server.Close()

	client := New(&llm.Config{BaseURL: server.URL, Model: "gpt-4o", JSONMode: true})
	_, err := client.Complete(context.Background(), []llm.Message{{Role: "user", Content: "classify"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"type": "json_object"}, captured["response_format"])
}

func TestClientStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer server.Close()

	client := New(&llm.Config{BaseURL: server.URL, Model: "gpt-4o"})
	_, err := client.Complete(context.Background(), []llm.Message{{Role: "user", Content: "hi"}}, nil)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.True(t, statusErr.Temporary())
}
