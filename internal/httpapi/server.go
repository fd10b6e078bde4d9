// Package httpapi exposes the engine over HTTP.
package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/user/ledgerclaw/internal/gateway"
	"github.com/user/ledgerclaw/internal/types"
)

// MaxUploadBytes caps a single multipart upload.
const MaxUploadBytes = 32 << 20

// Submitter runs one inbound request to completion.
type Submitter interface {
	Submit(ctx context.Context, req *types.InboundRequest) (*types.Reply, error)
}

// OpenQuestions lists unanswered clarifications.
type OpenQuestions interface {
	Pending(ctx context.Context) ([]*types.ClarificationRequest, error)
}

type Config struct {
	Gateway        Submitter
	Sessions       types.SessionStore
	Messages       types.MessageStore
	Files          types.FileStore
	Clarifications OpenQuestions
	// Gatherer backs /metrics. Nil means the default registry.
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
	// RunTimeout bounds a synchronous message request. Zero means no limit.
	RunTimeout time.Duration
}

type Server struct {
	cfg    Config
	engine *gin.Engine
	logger *zap.Logger
}

func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{cfg: cfg, engine: gin.New(), logger: cfg.Logger}
	s.engine.Use(gin.Recovery(), s.accessLog())

	s.engine.GET("/health", s.health)
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))

	api := s.engine.Group("/api")
	api.POST("/sessions/:key/messages", s.postMessage)
	api.GET("/sessions", s.listSessions)
	api.GET("/sessions/:id/messages", s.listMessages)
	api.POST("/files", s.uploadFile)
	api.GET("/clarifications", s.listClarifications)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)))
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type messageRequest struct {
	Text                   string   `json:"text"`
	FileIDs                []string `json:"file_ids"`
	AnswerTo               string   `json:"answer_to"`
	ScenarioKey            string   `json:"scenario_key"`
	FocusDocumentSessionID string   `json:"focus_document_session_id"`
	Company                string   `json:"company"`
	UserID                 string   `json:"user_id"`
	Language               string   `json:"language"`
}

func (s *Server) postMessage(c *gin.Context) {
	var body messageRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		abort(c, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Text == "" && len(body.FileIDs) == 0 {
		abort(c, http.StatusBadRequest, "text or file_ids is required")
		return
	}
	if body.AnswerTo != "" && body.Text == "" {
		abort(c, http.StatusBadRequest, "an answer needs text")
		return
	}

	req := &types.InboundRequest{
		Source:                 "http",
		SessionKey:             types.SessionKey(c.Param("key")),
		Company:                body.Company,
		UserID:                 body.UserID,
		Text:                   body.Text,
		AnswerTo:               types.QuestionID(body.AnswerTo),
		ScenarioKey:            body.ScenarioKey,
		FocusDocumentSessionID: types.DocumentSessionID(body.FocusDocumentSessionID),
		Language:               body.Language,
	}
	for _, id := range body.FileIDs {
		req.FileIDs = append(req.FileIDs, types.FileID(id))
	}

	ctx := c.Request.Context()
	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
		defer cancel()
	}
	reply, err := s.cfg.Gateway.Submit(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			abort(c, http.StatusGatewayTimeout, "run did not finish in time")
			return
		case errors.Is(err, gateway.ErrLaneFull):
			c.Header("Retry-After", "5")
			abort(c, http.StatusTooManyRequests, "too many pending messages for this session")
			return
		}
		s.logger.Error("submit failed", zap.String("session_key", string(req.SessionKey)), zap.Error(err))
		abort(c, http.StatusInternalServerError, "internal server error")
		return
	}
	c.JSON(http.StatusOK, reply)
}

type sessionResponse struct {
	SessionID    string    `json:"session_id"`
	SessionKey   string    `json:"session_key"`
	Status       string    `json:"status"`
	ActiveDoc    string    `json:"active_document_session_id,omitempty"`
	Documents    int       `json:"documents"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int64     `json:"message_count"`
}

func (s *Server) listSessions(c *gin.Context) {
	ctx := c.Request.Context()
	sessions, err := s.cfg.Sessions.List(ctx)
	if err != nil {
		s.logger.Error("list sessions failed", zap.Error(err))
		abort(c, http.StatusInternalServerError, "internal server error")
		return
	}

	result := make([]sessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		count, err := s.cfg.Messages.Count(ctx, sess.ID)
		if err != nil {
			s.logger.Warn("count messages failed", zap.String("session_id", string(sess.ID)), zap.Error(err))
		}
		result = append(result, sessionResponse{
			SessionID:    string(sess.ID),
			SessionKey:   string(sess.Key),
			Status:       sess.Status,
			ActiveDoc:    string(sess.ActiveDocumentSessionID),
			Documents:    len(sess.Documents),
			CreatedAt:    sess.CreatedAt,
			UpdatedAt:    sess.UpdatedAt,
			MessageCount: count,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	c.JSON(http.StatusOK, result)
}

func (s *Server) listMessages(c *gin.Context) {
	id := types.SessionID(c.Param("id"))
	ctx := c.Request.Context()
	if _, err := s.cfg.Sessions.Get(ctx, id); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			abort(c, http.StatusNotFound, "session not found")
			return
		}
		s.logger.Error("get session failed", zap.String("session_id", string(id)), zap.Error(err))
		abort(c, http.StatusInternalServerError, "internal server error")
		return
	}

	limit := 200
	if q := c.Query("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			limit = n
		}
	}
	messages, err := s.cfg.Messages.Tail(ctx, id, limit)
	if err != nil {
		s.logger.Error("tail messages failed", zap.String("session_id", string(id)), zap.Error(err))
		abort(c, http.StatusInternalServerError, "internal server error")
		return
	}
	if messages == nil {
		messages = []*types.Message{}
	}
	c.JSON(http.StatusOK, messages)
}

func (s *Server) uploadFile(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		abort(c, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	if header.Size > MaxUploadBytes {
		abort(c, http.StatusRequestEntityTooLarge, "file is too large")
		return
	}
	f, err := header.Open()
	if err != nil {
		abort(c, http.StatusBadRequest, "cannot open upload")
		return
	}
	defer f.Close()
	content, err := io.ReadAll(io.LimitReader(f, MaxUploadBytes+1))
	if err != nil {
		abort(c, http.StatusBadRequest, "cannot read upload")
		return
	}

	file := &types.UploadedFile{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
	}
	if key := c.PostForm("session_key"); key != "" {
		id, err := s.cfg.Sessions.ResolveOrCreate(c.Request.Context(), types.SessionKey(key))
		if err != nil {
			s.logger.Error("resolve session failed", zap.String("session_key", key), zap.Error(err))
			abort(c, http.StatusInternalServerError, "internal server error")
			return
		}
		file.SessionID = id
	}
	if err := s.cfg.Files.Save(c.Request.Context(), file, content); err != nil {
		s.logger.Error("save upload failed", zap.String("file_name", header.Filename), zap.Error(err))
		abort(c, http.StatusInternalServerError, "internal server error")
		return
	}
	s.logger.Info("file uploaded", zap.String("file_id", string(file.ID)), zap.Int64("size", file.Size))
	c.JSON(http.StatusCreated, file)
}

func (s *Server) listClarifications(c *gin.Context) {
	open, err := s.cfg.Clarifications.Pending(c.Request.Context())
	if err != nil {
		s.logger.Error("list clarifications failed", zap.Error(err))
		abort(c, http.StatusInternalServerError, "internal server error")
		return
	}
	if sid := c.Query("session_id"); sid != "" {
		filtered := open[:0]
		for _, q := range open {
			if string(q.SessionID) == sid {
				filtered = append(filtered, q)
			}
		}
		open = filtered
	}
	if open == nil {
		open = []*types.ClarificationRequest{}
	}
	c.JSON(http.StatusOK, open)
}

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
