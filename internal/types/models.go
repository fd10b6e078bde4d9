// internal/types/models.go
package types

import (
	"encoding/json"
	"time"
)

// Message roles persisted in the conversation log.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message payload statuses.
const (
	StatusOK            = "ok"
	StatusClarification = "clarification"
	StatusFailed        = "failed"
	StatusInfo          = "info"
)

// TagClarification is the tag kind carried by question messages.
const TagClarification = "clarification"

// Session is the persisted row for one conversation.
type Session struct {
	ID                      SessionID                    `json:"session_id"`
	Key                     SessionKey                   `json:"session_key"`
	Company                 string                       `json:"company,omitempty"`
	Status                  string                       `json:"status"`
	ActiveDocumentSessionID DocumentSessionID            `json:"active_document_session_id,omitempty"`
	LabelCounter            int                          `json:"label_counter"`
	DocumentLabels          map[DocumentSessionID]string `json:"document_labels,omitempty"`
	Documents               []DocumentRecord             `json:"documents,omitempty"`
	CreatedAt               time.Time                    `json:"created_at"`
	UpdatedAt               time.Time                    `json:"updated_at"`
	LastRunID               RunID                        `json:"last_run_id,omitempty"`
	LastMessageSeq          int64                        `json:"last_message_seq"`
}

// DocumentRecord remembers which file belonged to which document session so a
// later turn can rebuild the registry.
type DocumentRecord struct {
	FileID            FileID            `json:"file_id"`
	DocumentSessionID DocumentSessionID `json:"document_session_id"`
	FileName          string            `json:"file_name,omitempty"`
	ScenarioKey       string            `json:"scenario_key,omitempty"`
}

// UpsertDocument records or replaces the entry for rec.FileID.
func (s *Session) UpsertDocument(rec DocumentRecord) {
	for i := range s.Documents {
		if s.Documents[i].FileID == rec.FileID {
			s.Documents[i] = rec
			return
		}
	}
	s.Documents = append(s.Documents, rec)
}

// Message is one append-only conversation record.
type Message struct {
	ID        MessageID       `json:"id"`
	SessionID SessionID       `json:"session_id"`
	TaskID    TaskID          `json:"task_id,omitempty"`
	RunID     RunID           `json:"run_id,omitempty"`
	Seq       int64           `json:"seq"`
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	Payload   *MessagePayload `json:"payload,omitempty"`
	At        time.Time       `json:"at"`
}

// MessagePayload is the optional structured part of a message.
type MessagePayload struct {
	Status string      `json:"status,omitempty"`
	Tag    *MessageTag `json:"tag,omitempty"`
}

// MessageTag classifies a message. Clarification tags carry the full request.
type MessageTag struct {
	Kind          string                `json:"kind"`
	Clarification *ClarificationRequest `json:"clarification,omitempty"`
}

// ClarificationState is Open until the single answer arrives.
type ClarificationState string

const (
	ClarificationOpen     ClarificationState = "open"
	ClarificationAnswered ClarificationState = "answered"
)

// DraftOperation is the frozen tool invocation a clarification blocked.
type DraftOperation struct {
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments"`
}

// ClarificationRequest is a paused operation waiting for one user answer.
type ClarificationRequest struct {
	QuestionID        QuestionID        `json:"question_id"`
	SessionID         SessionID         `json:"session_id"`
	TaskID            TaskID            `json:"task_id,omitempty"`
	DocumentSessionID DocumentSessionID `json:"document_session_id,omitempty"`
	DocumentID        FileID            `json:"document_id,omitempty"`
	DocumentLabel     string            `json:"document_label,omitempty"`
	Question          string            `json:"question"`
	Detail            string            `json:"detail,omitempty"`
	MissingField      string            `json:"missing_field,omitempty"`
	AccountCode       string            `json:"account_code,omitempty"`
	Draft             *DraftOperation   `json:"draft,omitempty"`
	ScenarioKey       string            `json:"scenario_key,omitempty"`
	// OriginalText is the user message that was being handled when the
	// question was asked.
	OriginalText string             `json:"original_text,omitempty"`
	Options      []Option           `json:"options,omitempty"`
	State        ClarificationState `json:"state"`
	Answer       string             `json:"answer,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	AnsweredAt   *time.Time         `json:"answered_at,omitempty"`
}

// Option is one displayable choice attached to a clarification.
type Option struct {
	Key        string  `json:"key"`
	Title      string  `json:"title"`
	Confidence float64 `json:"confidence,omitempty"`
}

// UploadedFile is what the file resolver knows about a stored upload.
type UploadedFile struct {
	ID            FileID    `json:"id"`
	SessionID     SessionID `json:"session_id,omitempty"`
	FileName      string    `json:"file_name"`
	StoredPath    string    `json:"stored_path"`
	ContentType   string    `json:"content_type"`
	Size          int64     `json:"size"`
	BlobReference string    `json:"blob_reference,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// InboundRequest is one user turn entering the engine from any channel.
type InboundRequest struct {
	Source                 string            `json:"source"`
	SessionKey             SessionKey        `json:"session_key"`
	Company                string            `json:"company,omitempty"`
	UserID                 string            `json:"user_id,omitempty"`
	Text                   string            `json:"text"`
	FileIDs                []FileID          `json:"file_ids,omitempty"`
	AnswerTo               QuestionID        `json:"answer_to,omitempty"`
	ScenarioKey            string            `json:"scenario_key,omitempty"`
	FocusDocumentSessionID DocumentSessionID `json:"focus_document_session_id,omitempty"`
	TaskID                 TaskID            `json:"task_id,omitempty"`
	Language               string            `json:"language,omitempty"`
}

// Reply is what a run hands back to the channel that started it.
type Reply struct {
	SessionID      SessionID               `json:"session_id"`
	RunID          RunID                   `json:"run_id"`
	Messages       []*Message              `json:"messages"`
	Clarifications []*ClarificationRequest `json:"clarifications,omitempty"`
	Unassigned     []FileID                `json:"unassigned,omitempty"`
	// Suppressed files were left out because the request focused on
	// another document session.
	Suppressed []FileID `json:"suppressed,omitempty"`
}
