package llm

import "context"

// Provider is a chat completion backend. tools may be nil for plain
// single-shot prompts.
type Provider interface {
	Complete(ctx context.Context, messages []Message, tools []Tool) (*Response, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, messages []Message, tools []Tool) (*Response, error)

// Complete calls f.
func (f ProviderFunc) Complete(ctx context.Context, messages []Message, tools []Tool) (*Response, error) {
	return f(ctx, messages, tools)
}

// Ask sends a system prompt and one user message without tools. The
// classifier, extractor and planner all talk to the model this way.
func Ask(ctx context.Context, p Provider, system, user string) (*Response, error) {
	return p.Complete(ctx, []Message{
		{Role: RoleSystem, Content: system},
		{Role: RoleUser, Content: user},
	}, nil)
}

// Config holds the connection settings shared by provider clients.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
	// JSONMode requests a JSON object response on calls without tools.
	JSONMode bool
}
