// internal/types/interfaces.go
package types

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

type SessionStore interface {
	ResolveOrCreate(ctx context.Context, key SessionKey) (SessionID, error)
	Get(ctx context.Context, id SessionID) (*Session, error)
	List(ctx context.Context) ([]*Session, error)
	Update(ctx context.Context, session *Session) error
}

type MessageStore interface {
	Append(ctx context.Context, msg *Message) error
	Tail(ctx context.Context, sessionID SessionID, limit int) ([]*Message, error)
	Count(ctx context.Context, sessionID SessionID) (int64, error)
}

type ClarificationStore interface {
	Save(ctx context.Context, req *ClarificationRequest) error
	Get(ctx context.Context, id QuestionID) (*ClarificationRequest, error)
	// MarkAnswered moves an open request to answered and reports whether this
	// call made the transition.
	MarkAnswered(ctx context.Context, id QuestionID, answer string, at time.Time) (bool, error)
	ListOpen(ctx context.Context) ([]*ClarificationRequest, error)
}

// AnalysisStore keeps the parsed analysis of each uploaded file.
type AnalysisStore interface {
	Put(ctx context.Context, sessionID SessionID, fileID FileID, analysis json.RawMessage) error
	Get(ctx context.Context, sessionID SessionID, fileID FileID) (json.RawMessage, error)
}

// FileResolver returns nil, nil when the file is unknown.
type FileResolver interface {
	ResolveFile(ctx context.Context, id FileID) (*UploadedFile, error)
}

type FileStore interface {
	FileResolver
	Save(ctx context.Context, file *UploadedFile, content []byte) error
	Read(ctx context.Context, id FileID) ([]byte, error)
}
