// internal/state/analysis.go
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/user/ledgerclaw/internal/types"
)

// analysisWrapper is the on-disk format for analysis files.
type analysisWrapper struct {
	FileID    types.FileID    `json:"file_id"`
	SessionID types.SessionID `json:"session_id"`
	UpdatedAt time.Time       `json:"updated_at"`
	Data      json.RawMessage `json:"data"`
}

// AnalysisStore stores parsed document analyses as one JSON file per upload.
// Files are located at sessions/<sessionID>/analyses/<fileID>.json.
type AnalysisStore struct {
	root string
}

// NewAnalysisStore creates a new file-backed AnalysisStore rooted at the given directory.
func NewAnalysisStore(root string) *AnalysisStore {
	return &AnalysisStore{root: root}
}

func (a *AnalysisStore) analysisPath(sessionID types.SessionID, fileID types.FileID) string {
	return filepath.Join(a.root, "sessions", string(sessionID), "analyses", string(fileID)+".json")
}

// Put replaces the stored analysis for fileID.
func (a *AnalysisStore) Put(_ context.Context, sessionID types.SessionID, fileID types.FileID, analysis json.RawMessage) error {
	wrapper := &analysisWrapper{
		FileID:    fileID,
		SessionID: sessionID,
		UpdatedAt: time.Now(),
		Data:      analysis,
	}
	content, err := json.MarshalIndent(wrapper, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}
	if err := writeAtomic(a.analysisPath(sessionID, fileID), content); err != nil {
		return fmt.Errorf("save analysis: %w", err)
	}
	return nil
}

// Get returns the stored analysis or ErrNotFound.
func (a *AnalysisStore) Get(_ context.Context, sessionID types.SessionID, fileID types.FileID) (json.RawMessage, error) {
	data, err := os.ReadFile(a.analysisPath(sessionID, fileID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("analysis %s: %w", fileID, types.ErrNotFound)
		}
		return nil, fmt.Errorf("read analysis: %w", err)
	}
	var wrapper analysisWrapper
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("unmarshal analysis: %w", err)
	}
	return wrapper.Data, nil
}
