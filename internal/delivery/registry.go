// Package delivery routes replies to the channel a session key belongs to.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/user/ledgerclaw/internal/types"
)

// ErrNoHandler is returned when no handler matches a session key.
var ErrNoHandler = errors.New("no delivery handler")

// Handler delivers text to the session identified by sessionKey.
type Handler func(ctx context.Context, sessionKey types.SessionKey, text string) error

// Registry routes messages to the appropriate delivery handler based on
// session key prefix (e.g. "telegram:", "http:").
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty delivery registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register adds a handler for session keys starting with prefix.
func (r *Registry) Register(prefix string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[prefix] = handler
}

// Deliver calls the handler with the longest prefix matching sessionKey.
func (r *Registry) Deliver(ctx context.Context, sessionKey types.SessionKey, text string) error {
	r.mu.RLock()
	var (
		best    string
		handler Handler
	)
	for prefix, h := range r.handlers {
		if strings.HasPrefix(string(sessionKey), prefix) && len(prefix) >= len(best) {
			best, handler = prefix, h
		}
	}
	r.mu.RUnlock()
	if handler == nil {
		return fmt.Errorf("%w for session key %s", ErrNoHandler, sessionKey)
	}
	return handler(ctx, sessionKey, text)
}

// DeliverReply renders reply and delivers it. Empty replies are dropped.
func (r *Registry) DeliverReply(ctx context.Context, sessionKey types.SessionKey, reply *types.Reply) error {
	text := Render(reply)
	if text == "" {
		return nil
	}
	return r.Deliver(ctx, sessionKey, text)
}

// Render turns a reply into plain text. Questions carry the command that
// answers them.
func Render(reply *types.Reply) string {
	if reply == nil {
		return ""
	}
	var parts []string
	for _, m := range reply.Messages {
		if m == nil || strings.TrimSpace(m.Content) == "" {
			continue
		}
		text := m.Content
		if m.Payload != nil && m.Payload.Tag != nil && m.Payload.Tag.Clarification != nil {
			text += "\n" + AnswerHint(m.Payload.Tag.Clarification.QuestionID)
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n\n")
}

// AnswerHint tells the user how to answer a question.
func AnswerHint(id types.QuestionID) string {
	return fmt.Sprintf("Reply with: /answer %s <your answer>", id)
}
