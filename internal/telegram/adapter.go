package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/user/ledgerclaw/internal/delivery"
	"github.com/user/ledgerclaw/internal/gateway"
	"github.com/user/ledgerclaw/internal/types"
)

const (
	maxTelegramMessage = 4096
	maxDownloadBytes   = 20 << 20

	// KeyPrefix starts every session key this adapter creates.
	KeyPrefix = "telegram:"
)

// Bot is the part of the Bot API the adapter uses.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Inbound accepts a request and calls back with the reply.
type Inbound interface {
	HandleInbound(ctx context.Context, req *types.InboundRequest, opts ...gateway.RunOption) (*gateway.Run, error)
}

// Adapter bridges Telegram to the gateway.
type Adapter struct {
	bot      Bot
	api      *tgbotapi.BotAPI
	inbound  Inbound
	files    types.FileStore
	sessions types.SessionStore
	messages types.MessageStore
	client   *http.Client
	logger   *zap.Logger
}

type Config struct {
	Inbound  Inbound
	Files    types.FileStore
	Sessions types.SessionStore
	Messages types.MessageStore
	Logger   *zap.Logger
}

// New creates a Telegram adapter that long-polls with token.
func New(token string, cfg Config) (*Adapter, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	a := NewWithBot(api, cfg)
	a.api = api
	return a, nil
}

// NewWithBot creates an adapter around an existing bot client.
func NewWithBot(bot Bot, cfg Config) *Adapter {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Adapter{
		bot:      bot,
		inbound:  cfg.Inbound,
		files:    cfg.Files,
		sessions: cfg.Sessions,
		messages: cfg.Messages,
		client:   http.DefaultClient,
		logger:   cfg.Logger.Named("telegram"),
	}
}

// Start begins long-polling for Telegram updates and blocks until ctx ends.
func (a *Adapter) Start(ctx context.Context) {
	if a.api == nil {
		return
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := a.api.GetUpdatesChan(u)
	for {
		select {
		case update := <-updates:
			if update.Message == nil {
				continue
			}
			a.handleMessage(ctx, update.Message)
		case <-ctx.Done():
			a.api.StopReceivingUpdates()
			return
		}
	}
}

// Deliver sends text to the chat encoded in a telegram session key. It is
// registered with the delivery registry for out-of-band messages.
func (a *Adapter) Deliver(_ context.Context, key types.SessionKey, text string) error {
	chatID, err := chatFromKey(key)
	if err != nil {
		return err
	}
	return a.send(chatID, text)
}

func (a *Adapter) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		return
	}
	if msg.IsCommand() {
		a.handleCommand(ctx, msg)
		return
	}

	req := a.request(msg)
	req.Text = msg.Text
	if req.Text == "" {
		req.Text = msg.Caption
	}

	if fileID, name, mime := attachment(msg); fileID != "" {
		id, err := a.download(ctx, fileID, name, mime, req.SessionKey)
		if err != nil {
			a.logger.Error("download attachment failed", zap.String("file_name", name), zap.Error(err))
			a.reply(msg.Chat.ID, "Sorry, I could not download that file.")
			return
		}
		req.FileIDs = []types.FileID{id}
	}
	if req.Text == "" && len(req.FileIDs) == 0 {
		return
	}
	a.submit(ctx, msg.Chat.ID, req)
}

func (a *Adapter) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start", "help":
		a.reply(chatID, "Send me an invoice, receipt or a plain request and I will book it.\n"+
			"Answer my questions with /answer <questionId> <your answer>.")

	case "answer":
		id, text, ok := parseAnswer(msg.CommandArguments())
		if !ok {
			a.reply(chatID, "Usage: /answer <questionId> <your answer>")
			return
		}
		req := a.request(msg)
		req.AnswerTo = id
		req.Text = text
		a.submit(ctx, chatID, req)

	case "status":
		key := buildSessionKey(msg.From.ID, chatID)
		sid, err := a.sessions.ResolveOrCreate(ctx, key)
		if err != nil {
			a.reply(chatID, "Error fetching status.")
			return
		}
		count, err := a.messages.Count(ctx, sid)
		if err != nil {
			a.reply(chatID, "Error fetching status.")
			return
		}
		a.reply(chatID, fmt.Sprintf("Session: %s\nMessages: %d", sid, count))

	default:
		a.reply(chatID, "Unknown command. Available: /start, /answer, /status")
	}
}

func (a *Adapter) request(msg *tgbotapi.Message) *types.InboundRequest {
	return &types.InboundRequest{
		Source:     "telegram",
		SessionKey: buildSessionKey(msg.From.ID, msg.Chat.ID),
		UserID:     strconv.FormatInt(msg.From.ID, 10),
		Language:   msg.From.LanguageCode,
	}
}

func (a *Adapter) submit(ctx context.Context, chatID int64, req *types.InboundRequest) {
	_, err := a.inbound.HandleInbound(ctx, req, gateway.WithOnComplete(func(reply *types.Reply) {
		if text := delivery.Render(reply); text != "" {
			a.reply(chatID, text)
		}
	}))
	if err != nil {
		a.logger.Error("handle inbound failed", zap.String("session_key", string(req.SessionKey)), zap.Error(err))
		a.reply(chatID, "Sorry, I encountered an error processing your message.")
	}
}

// download stores a Telegram file and returns its id.
func (a *Adapter) download(ctx context.Context, fileID, name, mime string, key types.SessionKey) (types.FileID, error) {
	url, err := a.bot.GetFileDirectURL(fileID)
	if err != nil {
		return "", fmt.Errorf("resolve file: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download file: status %d", resp.StatusCode)
	}
	content, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return "", fmt.Errorf("download file: %w", err)
	}

	sid, err := a.sessions.ResolveOrCreate(ctx, key)
	if err != nil {
		return "", fmt.Errorf("resolve session: %w", err)
	}
	file := &types.UploadedFile{SessionID: sid, FileName: name, ContentType: mime}
	if err := a.files.Save(ctx, file, content); err != nil {
		return "", err
	}
	return file.ID, nil
}

func (a *Adapter) reply(chatID int64, text string) {
	if err := a.send(chatID, text); err != nil {
		a.logger.Warn("send message failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (a *Adapter) send(chatID int64, text string) error {
	for _, part := range splitMessage(text) {
		if _, err := a.bot.Send(tgbotapi.NewMessage(chatID, part)); err != nil {
			return err
		}
	}
	return nil
}

// attachment picks the document, or the largest photo size.
func attachment(msg *tgbotapi.Message) (fileID, name, mime string) {
	if msg.Document != nil {
		name = msg.Document.FileName
		if name == "" {
			name = "document"
		}
		return msg.Document.FileID, name, msg.Document.MimeType
	}
	if n := len(msg.Photo); n > 0 {
		return msg.Photo[n-1].FileID, "photo.jpg", "image/jpeg"
	}
	return "", "", ""
}

// parseAnswer splits "/answer <id> <text>" arguments.
func parseAnswer(args string) (types.QuestionID, string, bool) {
	id, text, _ := strings.Cut(strings.TrimSpace(args), " ")
	text = strings.TrimSpace(text)
	if id == "" || text == "" {
		return "", "", false
	}
	return types.QuestionID(id), text, true
}

// splitMessage cuts text into Telegram-sized parts on rune boundaries.
func splitMessage(text string) []string {
	if utf8.RuneCountInString(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	runes := []rune(text)
	for len(runes) > 0 {
		end := min(maxTelegramMessage, len(runes))
		parts = append(parts, string(runes[:end]))
		runes = runes[end:]
	}
	return parts
}

func buildSessionKey(userID, chatID int64) types.SessionKey {
	return types.NewSessionKey("telegram",
		strconv.FormatInt(userID, 10),
		strconv.FormatInt(chatID, 10),
	)
}

var errNotTelegramKey = errors.New("not a telegram session key")

func chatFromKey(key types.SessionKey) (int64, error) {
	parts := strings.Split(string(key), ":")
	if len(parts) != 3 || parts[0] != "telegram" {
		return 0, fmt.Errorf("%w: %s", errNotTelegramKey, key)
	}
	return strconv.ParseInt(parts[2], 10, 64)
}
