package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/user/ledgerclaw/internal/types"
)

type SessionStore struct {
	db *gorm.DB
}

func (s *SessionStore) ResolveOrCreate(ctx context.Context, key types.SessionKey) (types.SessionID, error) {
	var row sessionRow
	err := s.db.WithContext(ctx).Where("session_key = ?", string(key)).First(&row).Error
	if err == nil {
		return types.SessionID(row.ID), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("find session: %w", err)
	}

	row = sessionRow{ID: string(types.NewSessionID()), SessionKey: string(key), Status: "active"}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return "", fmt.Errorf("create session: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// Lost the race; read the winner.
		if err := s.db.WithContext(ctx).Where("session_key = ?", string(key)).First(&row).Error; err != nil {
			return "", fmt.Errorf("find session: %w", err)
		}
	}
	return types.SessionID(row.ID), nil
}

func (s *SessionStore) Get(ctx context.Context, id types.SessionID) (*types.Session, error) {
	var row sessionRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", string(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("session %s: %w", id, types.ErrNotFound)
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return rowToSession(&row)
}

func (s *SessionStore) List(ctx context.Context) ([]*types.Session, error) {
	var rows []*sessionRow
	if err := s.db.WithContext(ctx).Order("created_at asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	out := make([]*types.Session, 0, len(rows))
	for _, r := range rows {
		sess, err := rowToSession(r)
		if err != nil {
			return nil, fmt.Errorf("decode session %s: %w", r.ID, err)
		}
		out = append(out, sess)
	}
	return out, nil
}

func (s *SessionStore) Update(ctx context.Context, session *types.Session) error {
	session.UpdatedAt = time.Now()
	row, err := sessionToRow(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	res := s.db.WithContext(ctx).Model(&sessionRow{}).Where("id = ?", row.ID).Select("*").Omit("id", "created_at").Updates(row)
	if res.Error != nil {
		return fmt.Errorf("update session: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("session %s: %w", session.ID, types.ErrNotFound)
	}
	return nil
}

type MessageStore struct {
	db *gorm.DB
}

func (m *MessageStore) Append(ctx context.Context, msg *types.Message) error {
	if msg.ID == "" {
		msg.ID = types.NewMessageID()
	}
	if msg.At.IsZero() {
		msg.At = time.Now()
	}
	var payload string
	if msg.Payload != nil {
		data, err := json.Marshal(msg.Payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		payload = string(data)
	}

	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxSeq int64
		if err := tx.Model(&messageRow{}).Where("session_id = ?", string(msg.SessionID)).
			Select("COALESCE(MAX(seq), 0)").Scan(&maxSeq).Error; err != nil {
			return fmt.Errorf("next seq: %w", err)
		}
		msg.Seq = maxSeq + 1
		row := &messageRow{
			ID:        string(msg.ID),
			SessionID: string(msg.SessionID),
			Seq:       msg.Seq,
			TaskID:    string(msg.TaskID),
			RunID:     string(msg.RunID),
			Role:      msg.Role,
			Content:   msg.Content,
			Payload:   payload,
			At:        msg.At,
		}
		if err := tx.Create(row).Error; err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		return nil
	})
}

func (m *MessageStore) Tail(ctx context.Context, sessionID types.SessionID, limit int) ([]*types.Message, error) {
	q := m.db.WithContext(ctx).Where("session_id = ?", string(sessionID)).Order("seq desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []*messageRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("tail messages: %w", err)
	}
	out := make([]*types.Message, len(rows))
	for i, r := range rows {
		msg := &types.Message{
			ID:        types.MessageID(r.ID),
			SessionID: types.SessionID(r.SessionID),
			TaskID:    types.TaskID(r.TaskID),
			RunID:     types.RunID(r.RunID),
			Seq:       r.Seq,
			Role:      r.Role,
			Content:   r.Content,
			At:        r.At,
		}
		if r.Payload != "" {
			msg.Payload = &types.MessagePayload{}
			if err := json.Unmarshal([]byte(r.Payload), msg.Payload); err != nil {
				return nil, fmt.Errorf("decode payload: %w", err)
			}
		}
		out[len(rows)-1-i] = msg
	}
	return out, nil
}

func (m *MessageStore) Count(ctx context.Context, sessionID types.SessionID) (int64, error) {
	var n int64
	if err := m.db.WithContext(ctx).Model(&messageRow{}).Where("session_id = ?", string(sessionID)).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

type ClarificationStore struct {
	db *gorm.DB
}

func (c *ClarificationStore) Save(ctx context.Context, req *types.ClarificationRequest) error {
	if req.State == "" {
		req.State = types.ClarificationOpen
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal clarification: %w", err)
	}
	row := &clarificationRow{
		QuestionID: string(req.QuestionID),
		SessionID:  string(req.SessionID),
		State:      string(req.State),
		Body:       string(body),
		Answer:     req.Answer,
		CreatedAt:  req.CreatedAt,
		AnsweredAt: req.AnsweredAt,
	}
	if err := c.db.WithContext(ctx).Save(row).Error; err != nil {
		return fmt.Errorf("save clarification: %w", err)
	}
	return nil
}

func (c *ClarificationStore) Get(ctx context.Context, id types.QuestionID) (*types.ClarificationRequest, error) {
	var row clarificationRow
	if err := c.db.WithContext(ctx).First(&row, "question_id = ?", string(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("clarification %s: %w", id, types.ErrNotFound)
		}
		return nil, fmt.Errorf("get clarification: %w", err)
	}
	return decodeClarification(&row)
}

// MarkAnswered is a conditional update on state, so exactly one caller wins.
func (c *ClarificationStore) MarkAnswered(ctx context.Context, id types.QuestionID, answer string, at time.Time) (bool, error) {
	var won bool
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&clarificationRow{}).
			Where("question_id = ? AND state = ?", string(id), string(types.ClarificationOpen)).
			Updates(map[string]any{
				"state":       string(types.ClarificationAnswered),
				"answer":      answer,
				"answered_at": at,
			})
		if res.Error != nil {
			return fmt.Errorf("mark answered: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			var n int64
			if err := tx.Model(&clarificationRow{}).Where("question_id = ?", string(id)).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("clarification %s: %w", id, types.ErrNotFound)
			}
			return nil
		}
		won = true
		return nil
	})
	return won, err
}

func (c *ClarificationStore) ListOpen(ctx context.Context) ([]*types.ClarificationRequest, error) {
	var rows []*clarificationRow
	if err := c.db.WithContext(ctx).Where("state = ?", string(types.ClarificationOpen)).Order("created_at asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list clarifications: %w", err)
	}
	out := make([]*types.ClarificationRequest, 0, len(rows))
	for _, r := range rows {
		req, err := decodeClarification(r)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, nil
}

// decodeClarification lets the state columns win over the stored body.
func decodeClarification(r *clarificationRow) (*types.ClarificationRequest, error) {
	var req types.ClarificationRequest
	if err := json.Unmarshal([]byte(r.Body), &req); err != nil {
		return nil, fmt.Errorf("decode clarification: %w", err)
	}
	req.State = types.ClarificationState(r.State)
	req.Answer = r.Answer
	req.AnsweredAt = r.AnsweredAt
	return &req, nil
}

type AnalysisStore struct {
	db *gorm.DB
}

func (a *AnalysisStore) Put(ctx context.Context, sessionID types.SessionID, fileID types.FileID, analysis json.RawMessage) error {
	row := &analysisRow{SessionID: string(sessionID), FileID: string(fileID), Data: string(analysis)}
	err := a.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}, {Name: "file_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("put analysis: %w", err)
	}
	return nil
}

func (a *AnalysisStore) Get(ctx context.Context, sessionID types.SessionID, fileID types.FileID) (json.RawMessage, error) {
	var row analysisRow
	err := a.db.WithContext(ctx).First(&row, "session_id = ? AND file_id = ?", string(sessionID), string(fileID)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("analysis %s: %w", fileID, types.ErrNotFound)
		}
		return nil, fmt.Errorf("get analysis: %w", err)
	}
	return json.RawMessage(row.Data), nil
}
