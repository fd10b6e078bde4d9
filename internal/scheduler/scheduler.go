// Package scheduler re-sends open clarification questions on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/user/ledgerclaw/internal/delivery"
	"github.com/user/ledgerclaw/internal/types"
)

// Defaults for Config.
const (
	DefaultSchedule = "@every 15m"
	DefaultAfter    = time.Hour
)

// Pending lists open questions.
type Pending interface {
	Pending(ctx context.Context) ([]*types.ClarificationRequest, error)
}

// Sessions resolves the session a question belongs to.
type Sessions interface {
	Get(ctx context.Context, id types.SessionID) (*types.Session, error)
}

// Deliver sends text to a session's channel.
type Deliver func(ctx context.Context, sessionKey types.SessionKey, text string) error

// Config controls when reminders go out.
type Config struct {
	// Schedule is a cron expression; seconds and descriptors are accepted.
	Schedule string
	// After is how long a question stays open before it is reminded.
	After  time.Duration
	Logger *zap.Logger
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Reminder re-delivers each open question once it has been waiting longer
// than After. A question is reminded at most once per process.
type Reminder struct {
	pending  Pending
	sessions Sessions
	deliver  Deliver
	after    time.Duration
	cron     *cron.Cron
	logger   *zap.Logger
	now      func() time.Time

	mu       sync.Mutex
	reminded map[types.QuestionID]bool
}

// New creates a Reminder. The schedule is validated here.
func New(pending Pending, sessions Sessions, deliver Deliver, cfg Config) (*Reminder, error) {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.After <= 0 {
		cfg.After = DefaultAfter
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	r := &Reminder{
		pending:  pending,
		sessions: sessions,
		deliver:  deliver,
		after:    cfg.After,
		cron:     cron.New(cron.WithParser(cronParser)),
		logger:   cfg.Logger,
		now:      time.Now,
		reminded: make(map[types.QuestionID]bool),
	}
	if _, err := r.cron.AddFunc(cfg.Schedule, r.tick); err != nil {
		return nil, fmt.Errorf("invalid reminder schedule %q: %w", cfg.Schedule, err)
	}
	return r, nil
}

// Start starts the cron ticker.
func (r *Reminder) Start() {
	r.cron.Start()
}

// Stop stops the cron ticker and waits for a running tick.
func (r *Reminder) Stop() {
	<-r.cron.Stop().Done()
}

func (r *Reminder) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if n, err := r.RunOnce(ctx); err != nil {
		r.logger.Error("reminder pass failed", zap.Error(err))
	} else if n > 0 {
		r.logger.Info("reminders sent", zap.Int("count", n))
	}
}

// RunOnce sends every due reminder and returns how many were delivered.
func (r *Reminder) RunOnce(ctx context.Context) (int, error) {
	open, err := r.pending.Pending(ctx)
	if err != nil {
		return 0, fmt.Errorf("list open clarifications: %w", err)
	}
	cutoff := r.now().Add(-r.after)
	sent := 0
	for _, q := range open {
		if q.CreatedAt.After(cutoff) || r.wasReminded(q.QuestionID) {
			continue
		}
		session, err := r.sessions.Get(ctx, q.SessionID)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return sent, ctxErr
			}
			r.logger.Warn("reminder skipped, session not found",
				zap.String("question_id", string(q.QuestionID)),
				zap.String("session_id", string(q.SessionID)),
				zap.Error(err))
			continue
		}
		if err := r.deliver(ctx, session.Key, reminderText(q)); err != nil {
			r.logger.Warn("reminder delivery failed",
				zap.String("question_id", string(q.QuestionID)),
				zap.Error(err))
			continue
		}
		r.markReminded(q.QuestionID)
		sent++
	}
	return sent, nil
}

func (r *Reminder) wasReminded(id types.QuestionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reminded[id]
}

func (r *Reminder) markReminded(id types.QuestionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reminded[id] = true
}

func reminderText(q *types.ClarificationRequest) string {
	text := "Still waiting for your answer: " + q.Question
	if q.DocumentLabel != "" {
		text = "Still waiting for your answer about " + q.DocumentLabel + ": " + q.Question
	}
	return text + "\n" + delivery.AnswerHint(q.QuestionID)
}
