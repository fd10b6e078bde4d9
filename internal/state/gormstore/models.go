package gormstore

import (
	"encoding/json"
	"time"

	"github.com/user/ledgerclaw/internal/types"
)

type sessionRow struct {
	ID                      string    `gorm:"type:varchar(64);primaryKey"`
	SessionKey              string    `gorm:"type:text;not null;uniqueIndex"`
	Company                 string    `gorm:"type:varchar(64)"`
	Status                  string    `gorm:"type:varchar(32);not null"`
	ActiveDocumentSessionID string    `gorm:"type:text"`
	LabelCounter            int       `gorm:"not null;default:0"`
	DocumentLabels          string    `gorm:"type:text"`
	Documents               string    `gorm:"type:text"`
	LastRunID               string    `gorm:"type:varchar(64)"`
	LastMessageSeq          int64     `gorm:"not null;default:0"`
	CreatedAt               time.Time `gorm:"autoCreateTime"`
	UpdatedAt               time.Time `gorm:"autoUpdateTime"`
}

func (sessionRow) TableName() string {
	return "ledger_sessions"
}

func sessionToRow(s *types.Session) (*sessionRow, error) {
	labels, err := json.Marshal(s.DocumentLabels)
	if err != nil {
		return nil, err
	}
	docs, err := json.Marshal(s.Documents)
	if err != nil {
		return nil, err
	}
	return &sessionRow{
		ID:                      string(s.ID),
		SessionKey:              string(s.Key),
		Company:                 s.Company,
		Status:                  s.Status,
		ActiveDocumentSessionID: string(s.ActiveDocumentSessionID),
		LabelCounter:            s.LabelCounter,
		DocumentLabels:          string(labels),
		Documents:               string(docs),
		LastRunID:               string(s.LastRunID),
		LastMessageSeq:          s.LastMessageSeq,
		CreatedAt:               s.CreatedAt,
		UpdatedAt:               s.UpdatedAt,
	}, nil
}

func rowToSession(r *sessionRow) (*types.Session, error) {
	s := &types.Session{
		ID:                      types.SessionID(r.ID),
		Key:                     types.SessionKey(r.SessionKey),
		Company:                 r.Company,
		Status:                  r.Status,
		ActiveDocumentSessionID: types.DocumentSessionID(r.ActiveDocumentSessionID),
		LabelCounter:            r.LabelCounter,
		LastRunID:               types.RunID(r.LastRunID),
		LastMessageSeq:          r.LastMessageSeq,
		CreatedAt:               r.CreatedAt,
		UpdatedAt:               r.UpdatedAt,
	}
	if r.DocumentLabels != "" && r.DocumentLabels != "null" {
		if err := json.Unmarshal([]byte(r.DocumentLabels), &s.DocumentLabels); err != nil {
			return nil, err
		}
	}
	if r.Documents != "" && r.Documents != "null" {
		if err := json.Unmarshal([]byte(r.Documents), &s.Documents); err != nil {
			return nil, err
		}
	}
	return s, nil
}

type messageRow struct {
	ID        string    `gorm:"type:varchar(64);primaryKey"`
	SessionID string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_message_seq,priority:1"`
	Seq       int64     `gorm:"not null;uniqueIndex:idx_message_seq,priority:2"`
	TaskID    string    `gorm:"type:varchar(64);index"`
	RunID     string    `gorm:"type:varchar(64)"`
	Role      string    `gorm:"type:varchar(16);not null"`
	Content   string    `gorm:"type:text"`
	Payload   string    `gorm:"type:text"`
	At        time.Time `gorm:"not null"`
}

func (messageRow) TableName() string {
	return "ledger_messages"
}

type clarificationRow struct {
	QuestionID string    `gorm:"type:varchar(64);primaryKey"`
	SessionID  string    `gorm:"type:varchar(64);index"`
	State      string    `gorm:"type:varchar(16);not null;index"`
	Body       string    `gorm:"type:text;not null"`
	Answer     string    `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"not null"`
	AnsweredAt *time.Time
}

func (clarificationRow) TableName() string {
	return "ledger_clarifications"
}

type analysisRow struct {
	SessionID string    `gorm:"type:varchar(64);primaryKey"`
	FileID    string    `gorm:"type:varchar(64);primaryKey"`
	Data      string    `gorm:"type:text"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (analysisRow) TableName() string {
	return "ledger_analyses"
}
