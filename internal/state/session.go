// internal/state/session.go
package state

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/user/ledgerclaw/internal/types"
)

// SessionStore is a JSON-file-backed session store.
// It stores session rows in sessions/sessions.json and creates
// per-session directories at sessions/<sessionID>/.
type SessionStore struct {
	root string
	mu   sync.RWMutex
}

// NewSessionStore creates a new file-backed SessionStore rooted at the given directory.
func NewSessionStore(root string) *SessionStore {
	return &SessionStore{root: root}
}

func (s *SessionStore) indexPath() string {
	return filepath.Join(s.root, "sessions", "sessions.json")
}

func (s *SessionStore) sessionDir(id types.SessionID) string {
	return filepath.Join(s.root, "sessions", string(id))
}

// loadIndex reads sessions.json keyed by SessionKey.
func (s *SessionStore) loadIndex() (map[types.SessionKey]*types.Session, error) {
	list, err := readList[*types.Session](s.indexPath())
	if err != nil {
		return nil, fmt.Errorf("read session index: %w", err)
	}
	index := make(map[types.SessionKey]*types.Session, len(list))
	for _, sess := range list {
		index[sess.Key] = sess
	}
	return index, nil
}

func (s *SessionStore) saveIndex(index map[types.SessionKey]*types.Session) error {
	if err := writeList(s.indexPath(), index, sessionCreated); err != nil {
		return fmt.Errorf("save session index: %w", err)
	}
	return nil
}

func sessionCreated(s *types.Session) time.Time { return s.CreatedAt }

// ResolveOrCreate returns the SessionID for the given key, creating a new session if needed.
func (s *SessionStore) ResolveOrCreate(_ context.Context, key types.SessionKey) (types.SessionID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.loadIndex()
	if err != nil {
		return "", err
	}

	if existing, ok := index[key]; ok {
		return existing.ID, nil
	}

	now := time.Now()
	id := types.NewSessionID()
	index[key] = &types.Session{
		ID:        id,
		Key:       key,
		Status:    "active",
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.saveIndex(index); err != nil {
		return "", err
	}

	if err := os.MkdirAll(s.sessionDir(id), 0o755); err != nil {
		return "", fmt.Errorf("create session dir: %w", err)
	}

	return id, nil
}

// Get returns the session with the given ID.
func (s *SessionStore) Get(_ context.Context, id types.SessionID) (*types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	index, err := s.loadIndex()
	if err != nil {
		return nil, err
	}

	for _, sess := range index {
		if sess.ID == id {
			return sess, nil
		}
	}
	return nil, fmt.Errorf("session %s: %w", id, types.ErrNotFound)
}

// List returns all sessions, oldest first.
func (s *SessionStore) List(_ context.Context) ([]*types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	index, err := s.loadIndex()
	if err != nil {
		return nil, err
	}

	sessions := make([]*types.Session, 0, len(index))
	for _, sess := range index {
		sessions = append(sessions, sess)
	}
	sort.SliceStable(sessions, func(i, j int) bool { return sessionCreated(sessions[i]).Before(sessionCreated(sessions[j])) })
	return sessions, nil
}

// Update persists changes to the given session, setting UpdatedAt to now.
// The last writer wins for the active document pointer.
func (s *SessionStore) Update(_ context.Context, session *types.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.loadIndex()
	if err != nil {
		return err
	}

	if _, ok := index[session.Key]; !ok {
		return fmt.Errorf("session %s: %w", session.Key, types.ErrNotFound)
	}

	session.UpdatedAt = time.Now()
	index[session.Key] = session

	return s.saveIndex(index)
}
