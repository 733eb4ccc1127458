// Package bot provides the Telegram front-end of the docqa service.
package bot

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kart-io/logger"
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/kart-io/docqa/internal/docqa/biz"
	"github.com/kart-io/docqa/internal/pkg/docutil"
	"github.com/kart-io/docqa/pkg/utils/errors"
)

// MaxFileSize is the largest file the Bot API lets bots download.
const MaxFileSize = 20 << 20

// API is the subset of *telego.Bot used by the bot.
type API interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
	EditMessageText(ctx context.Context, params *telego.EditMessageTextParams) (*telego.Message, error)
	GetFile(ctx context.Context, params *telego.GetFileParams) (*telego.File, error)
	FileDownloadURL(filepath string) string
}

// Service is the part of biz.RetrievalService used by the bot.
type Service interface {
	Reload(ctx context.Context) (int, error)
	ReloadMessage(n int) string
	Ask(ctx context.Context, userID, question string) (*biz.AskResult, error)
	Stats(ctx context.Context) *biz.Stats
	ClearHistory(ctx context.Context, userID string) error
	Ready() bool
	DocumentPath(name string) (string, error)
	Extensions() []string
	Locale() *biz.Locale
}

// Config configures the bot.
type Config struct {
	// AcceptUploads saves documents sent to the bot into the documents directory.
	AcceptUploads bool
	// PollTimeout is the long polling timeout.
	PollTimeout time.Duration
	// HTTPClient downloads uploaded files.
	HTTPClient *http.Client
}

// Bot dispatches Telegram updates to the retrieval service.
// Messages from one user are handled one at a time in arrival order;
// different users are served concurrently.
type Bot struct {
	api     API
	service Service
	cfg     Config
	wg      sync.WaitGroup

	mu     sync.Mutex
	queues map[string][]*telego.Message
}

// New creates a Bot on top of an API implementation.
func New(api API, service Service, cfg Config) *Bot {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 30 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Bot{api: api, service: service, cfg: cfg, queues: make(map[string][]*telego.Message)}
}

// NewTelegram connects to the Bot API with token and returns the bot and its client.
func NewTelegram(token string, service Service, cfg Config) (*Bot, *telego.Bot, error) {
	tb, err := telego.NewBot(token)
	if err != nil {
		return nil, nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return New(tb, service, cfg), tb, nil
}

// Commands is the command menu published to Telegram.
func Commands() []telego.BotCommand {
	return []telego.BotCommand{
		{Command: "start", Description: "Приветствие и список команд"},
		{Command: "reload", Description: "Перезагрузить документы из папки"},
		{Command: "stats", Description: "Статистика системы"},
		{Command: "clear", Description: "Очистить историю чата"},
	}
}

// Run starts long polling on tb and blocks until ctx is done.
func (b *Bot) Run(ctx context.Context, tb *telego.Bot) error {
	me, err := tb.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}
	if err := tb.SetMyCommands(ctx, &telego.SetMyCommandsParams{Commands: Commands()}); err != nil {
		logger.Warnw("Failed to publish bot commands", "error", err)
	}

	updates, err := tb.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout: int(b.cfg.PollTimeout.Seconds()),
	})
	if err != nil {
		return fmt.Errorf("telegram long polling: %w", err)
	}

	logger.Infow("Telegram bot started", "username", me.Username)
	b.Serve(ctx, updates)
	logger.Info("Telegram bot stopped")
	return nil
}

// Serve handles updates until the channel is closed or ctx is done,
// then waits for in-flight handlers.
func (b *Bot) Serve(ctx context.Context, updates <-chan telego.Update) {
	defer b.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			if upd.Message == nil {
				continue
			}
			b.enqueue(ctx, upd.Message)
		}
	}
}

// enqueue appends msg to its user's queue and starts a worker for the
// queue if none is running.
func (b *Bot) enqueue(ctx context.Context, msg *telego.Message) {
	key := userID(msg)

	b.mu.Lock()
	pending, running := b.queues[key]
	b.queues[key] = append(pending, msg)
	b.mu.Unlock()

	if running {
		return
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.drain(ctx, key)
	}()
}

// drain handles queued messages for key until the queue is empty or ctx is done.
func (b *Bot) drain(ctx context.Context, key string) {
	for {
		b.mu.Lock()
		pending := b.queues[key]
		if len(pending) == 0 || ctx.Err() != nil {
			delete(b.queues, key)
			b.mu.Unlock()
			return
		}
		msg := pending[0]
		pending[0] = nil
		b.queues[key] = pending[1:]
		b.mu.Unlock()

		b.HandleMessage(ctx, msg)
	}
}

// HandleMessage handles a single incoming message.
func (b *Bot) HandleMessage(ctx context.Context, msg *telego.Message) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorw("Panic in telegram handler", "chat_id", msg.Chat.ID, "panic", r)
		}
	}()

	if msg.Document != nil {
		b.handleDocument(ctx, msg)
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	switch command(text) {
	case "/start", "/help":
		b.reply(ctx, msg, welcomeText)
	case "/reload":
		b.handleReload(ctx, msg)
	case "/stats":
		b.handleStats(ctx, msg)
	case "/clear":
		b.handleClear(ctx, msg)
	default:
		b.handleQuestion(ctx, msg, text)
	}
}

// command returns the lowercased command without a @botname suffix, or "".
func command(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	cmd := strings.SplitN(text, " ", 2)[0]
	cmd = strings.SplitN(cmd, "@", 2)[0]
	return strings.ToLower(cmd)
}

func userID(msg *telego.Message) string {
	if msg.From != nil {
		return strconv.FormatInt(msg.From.ID, 10)
	}
	return strconv.FormatInt(msg.Chat.ID, 10)
}

func (b *Bot) handleReload(ctx context.Context, msg *telego.Message) {
	b.reply(ctx, msg, reloadingText)
	n, err := b.service.Reload(ctx)
	if err != nil {
		logger.Warnw("Reload from telegram failed", "chat_id", msg.Chat.ID, "error", err)
		b.reply(ctx, msg, "❌ "+b.errorText(err))
		return
	}
	b.reply(ctx, msg, "✅ "+b.service.ReloadMessage(n))
}

func (b *Bot) handleStats(ctx context.Context, msg *telego.Message) {
	stats := b.service.Stats(ctx)

	var sb strings.Builder
	fmt.Fprintf(&sb, statsHeader, stats.TotalChunks, stats.TotalSources)
	if len(stats.Sources) == 0 {
		sb.WriteString(statsNoFiles)
	}
	for _, src := range stats.Sources {
		sb.WriteString("\n• " + src)
	}
	b.reply(ctx, msg, sb.String())
}

func (b *Bot) handleClear(ctx context.Context, msg *telego.Message) {
	if err := b.service.ClearHistory(ctx, userID(msg)); err != nil {
		b.reply(ctx, msg, "❌ "+b.errorText(err))
		return
	}
	b.reply(ctx, msg, historyCleared)
}

func (b *Bot) handleQuestion(ctx context.Context, msg *telego.Message, question string) {
	if !b.service.Ready() {
		b.reply(ctx, msg, notReadyText)
		return
	}

	thinking := b.reply(ctx, msg, thinkingText)

	result, err := b.service.Ask(ctx, userID(msg), question)
	var text string
	switch {
	case err != nil:
		logger.Errorw("Failed to answer question", "chat_id", msg.Chat.ID, "error", err)
		text = "❌ " + b.service.Locale().ErrorPrefix + b.errorText(err)
	case !result.Success:
		text = "❌ " + result.Answer
	default:
		text = "🤖 " + result.Answer
		if len(result.Sources) > 0 {
			text += fmt.Sprintf(sourcesFooter, strings.Join(result.Sources, ", "), result.FoundDocs)
		}
	}

	if thinking == nil {
		b.reply(ctx, msg, text)
		return
	}
	if _, err := b.api.EditMessageText(ctx, tu.EditMessageText(tu.ID(msg.Chat.ID), thinking.MessageID, text)); err != nil {
		logger.Warnw("Failed to edit message, sending a new one", "chat_id", msg.Chat.ID, "error", err)
		b.reply(ctx, msg, text)
	}
}

func (b *Bot) handleDocument(ctx context.Context, msg *telego.Message) {
	if !b.cfg.AcceptUploads {
		b.reply(ctx, msg, uploadsDisabled)
		return
	}

	doc := msg.Document
	dest, err := b.service.DocumentPath(doc.FileName)
	if err != nil {
		if errors.Is(err, errors.ErrUnsupportedFormat) {
			b.reply(ctx, msg, fmt.Sprintf(uploadFormat, strings.Join(b.service.Extensions(), ", ")))
			return
		}
		b.reply(ctx, msg, fmt.Sprintf(uploadFailed, b.errorText(err)))
		return
	}
	if doc.FileSize > MaxFileSize {
		b.reply(ctx, msg, fmt.Sprintf(uploadFailed, docutil.ErrTooLarge.Error()))
		return
	}

	file, err := b.api.GetFile(ctx, &telego.GetFileParams{FileID: doc.FileID})
	if err != nil {
		logger.Warnw("Telegram getFile failed", "file", doc.FileName, "error", err)
		b.reply(ctx, msg, fmt.Sprintf(uploadFailed, err.Error()))
		return
	}

	url := b.api.FileDownloadURL(file.FilePath)
	if err := docutil.DownloadFile(ctx, b.cfg.HTTPClient, url, dest, MaxFileSize); err != nil {
		logger.Warnw("Document download failed", "file", doc.FileName, "error", err)
		b.reply(ctx, msg, fmt.Sprintf(uploadFailed, err.Error()))
		return
	}

	logger.Infow("Document received via telegram", "file", filepath.Base(dest), "chat_id", msg.Chat.ID)
	b.reply(ctx, msg, fmt.Sprintf(uploadSaved, filepath.Base(dest)))
}

// reply sends text to the chat of msg; failures are logged.
func (b *Bot) reply(ctx context.Context, msg *telego.Message, text string) *telego.Message {
	sent, err := b.api.SendMessage(ctx, tu.Message(tu.ID(msg.Chat.ID), text))
	if err != nil {
		logger.Warnw("Failed to send telegram message", "chat_id", msg.Chat.ID, "error", err)
		return nil
	}
	return sent
}

// errorText renders err in the service language for chat users.
func (b *Bot) errorText(err error) string {
	return errors.FromError(err).Message(b.service.Locale().Name)
}
