// internal/state/clarification.go
package state

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/user/ledgerclaw/internal/types"
)

// ClarificationStore keeps every clarification request in clarifications.json.
// Answered requests stay in the file as an audit trail.
type ClarificationStore struct {
	root string
	mu   sync.Mutex
}

// NewClarificationStore creates a new file-backed ClarificationStore rooted at the given directory.
func NewClarificationStore(root string) *ClarificationStore {
	return &ClarificationStore{root: root}
}

func (c *ClarificationStore) path() string {
	return filepath.Join(c.root, "clarifications.json")
}

func (c *ClarificationStore) load() (map[types.QuestionID]*types.ClarificationRequest, error) {
	list, err := readList[*types.ClarificationRequest](c.path())
	if err != nil {
		return nil, fmt.Errorf("read clarifications: %w", err)
	}
	out := make(map[types.QuestionID]*types.ClarificationRequest, len(list))
	for _, req := range list {
		out[req.QuestionID] = req
	}
	return out, nil
}

func (c *ClarificationStore) save(all map[types.QuestionID]*types.ClarificationRequest) error {
	return writeList(c.path(), all, func(r *types.ClarificationRequest) time.Time { return r.CreatedAt })
}

// Save inserts or replaces a request.
func (c *ClarificationStore) Save(_ context.Context, req *types.ClarificationRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	all, err := c.load()
	if err != nil {
		return err
	}
	if req.State == "" {
		req.State = types.ClarificationOpen
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
	all[req.QuestionID] = req
	return c.save(all)
}

// Get returns the request with the given question id.
func (c *ClarificationStore) Get(_ context.Context, id types.QuestionID) (*types.ClarificationRequest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	all, err := c.load()
	if err != nil {
		return nil, err
	}
	req, ok := all[id]
	if !ok {
		return nil, fmt.Errorf("clarification %s: %w", id, types.ErrNotFound)
	}
	return req, nil
}

// MarkAnswered transitions an open request. It returns false when the request
// was already answered.
func (c *ClarificationStore) MarkAnswered(_ context.Context, id types.QuestionID, answer string, at time.Time) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	all, err := c.load()
	if err != nil {
		return false, err
	}
	req, ok := all[id]
	if !ok {
		return false, fmt.Errorf("clarification %s: %w", id, types.ErrNotFound)
	}
	if req.State == types.ClarificationAnswered {
		return false, nil
	}
	req.State = types.ClarificationAnswered
	req.Answer = answer
	req.AnsweredAt = &at
	if err := c.save(all); err != nil {
		return false, err
	}
	return true, nil
}

// ListOpen returns open requests, oldest first.
func (c *ClarificationStore) ListOpen(_ context.Context) ([]*types.ClarificationRequest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	all, err := c.load()
	if err != nil {
		return nil, err
	}
	var open []*types.ClarificationRequest
	for _, req := range all {
		if req.State == types.ClarificationOpen {
			open = append(open, req)
		}
	}
	sort.Slice(open, func(i, j int) bool { return open[i].CreatedAt.Before(open[j].CreatedAt) })
	return open, nil
}
