// internal/state/message.go
package state

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/user/ledgerclaw/internal/types"
)

// MessageStore is a JSONL-backed append-only conversation log.
// Messages are stored per-session in sessions/<sessionID>/messages.jsonl.
type MessageStore struct {
	root  string
	mu    sync.Mutex
	locks map[types.SessionID]*sync.Mutex
}

// NewMessageStore creates a new file-backed MessageStore rooted at the given directory.
func NewMessageStore(root string) *MessageStore {
	return &MessageStore{
		root:  root,
		locks: make(map[types.SessionID]*sync.Mutex),
	}
}

func (m *MessageStore) getLock(sessionID types.SessionID) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	if lock, ok := m.locks[sessionID]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	m.locks[sessionID] = lock
	return lock
}

func (m *MessageStore) messagesPath(sessionID types.SessionID) string {
	return filepath.Join(m.root, "sessions", string(sessionID), "messages.jsonl")
}

// count reads the log and counts lines. Caller must hold the session lock.
func (m *MessageStore) count(sessionID types.SessionID) (int64, error) {
	f, err := os.Open(m.messagesPath(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open messages file: %w", err)
	}
	defer f.Close()

	var count int64
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		count++
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("scan messages file: %w", err)
	}
	return count, nil
}

// Append adds a message to the session's log with an auto-incremented sequence number.
func (m *MessageStore) Append(_ context.Context, msg *types.Message) error {
	lock := m.getLock(msg.SessionID)
	lock.Lock()
	defer lock.Unlock()

	path := m.messagesPath(msg.SessionID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	existing, err := m.count(msg.SessionID)
	if err != nil {
		return err
	}
	msg.Seq = existing + 1
	if msg.ID == "" {
		msg.ID = types.NewMessageID()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open messages file: %w", err)
	}
	defer f.Close()

	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write message: %w", err)
	}

	return nil
}

// Tail returns the last N messages for the given session.
func (m *MessageStore) Tail(_ context.Context, sessionID types.SessionID, limit int) ([]*types.Message, error) {
	lock := m.getLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	f, err := os.Open(m.messagesPath(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open messages file: %w", err)
	}
	defer f.Close()

	var messages []*types.Message
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var msg types.Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			return nil, fmt.Errorf("unmarshal message: %w", err)
		}
		messages = append(messages, &msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan messages file: %w", err)
	}

	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}

	return messages, nil
}

// Count returns the number of messages for the given session.
func (m *MessageStore) Count(_ context.Context, sessionID types.SessionID) (int64, error) {
	lock := m.getLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	return m.count(sessionID)
}
