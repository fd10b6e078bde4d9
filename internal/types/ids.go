// internal/types/ids.go
package types

import (
	"strings"

	"github.com/google/uuid"
)

type SessionKey string
type SessionID string
type RunID string
type MessageID string
type FileID string
type DocumentSessionID string
type QuestionID string
type TaskID string

// DocumentSessionPrefix marks identifiers that group the files of one logical document.
const DocumentSessionPrefix = "doc_"

// QuestionPrefix marks clarification question identifiers.
const QuestionPrefix = "q_"

func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}

func NewRunID() RunID {
	return RunID(uuid.New().String())
}

func NewMessageID() MessageID {
	return MessageID(uuid.New().String())
}

func NewFileID() FileID {
	return FileID(uuid.New().String())
}

func NewTaskID() TaskID {
	return TaskID(uuid.New().String())
}

func NewQuestionID() QuestionID {
	return QuestionID(QuestionPrefix + strings.ReplaceAll(uuid.New().String(), "-", "")[:16])
}

// DocumentSessionFor returns the document session a file owns when it was
// uploaded on its own.
func DocumentSessionFor(fileID FileID) DocumentSessionID {
	return DocumentSessionID(DocumentSessionPrefix + string(fileID))
}

func NewDocumentSessionID() DocumentSessionID {
	return DocumentSessionID(DocumentSessionPrefix + uuid.New().String())
}

func NewSessionKey(parts ...string) SessionKey {
	return SessionKey(strings.Join(parts, ":"))
}
