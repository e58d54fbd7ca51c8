package channel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	logx "sillyreader/pkg/logx"
)

const (
	telegramTextLimit    = 4096
	telegramCaptionLimit = 1024
)

type TelegramConfig struct {
	Name           string
	Token          string
	ChatID         int64
	ThreadID       int // forum topic; 0 for none
	ParseMode      string
	DisablePreview bool
	APIURL         string // empty means the public Bot API
	Timeout        time.Duration
}

// Telegram posts to one chat (and optional forum topic) through the Bot API.
type Telegram struct {
	cfg TelegramConfig
	bot *tele.Bot
	log logx.Logger
}

func NewTelegram(cfg TelegramConfig, log logx.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is required")
	}
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = "telegram"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     cfg.APIURL,
		Client:  &http.Client{Timeout: cfg.Timeout},
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Telegram{cfg: cfg, bot: b, log: log.With(logx.String("channel", cfg.Name))}, nil
}

func (t *Telegram) Name() string        { return t.cfg.Name }
func (t *Telegram) TextLimit() int      { return telegramTextLimit }
func (t *Telegram) CaptionLimit() int   { return telegramCaptionLimit }
func (t *Telegram) SupportsMedia() bool { return true }

// MeasureRune counts UTF-16 code units, which is how the Bot API applies
// its limits.
func (t *Telegram) MeasureRune(r rune) int { return UTF16Units(r) }

func (t *Telegram) Post(ctx context.Context, text string) (PostID, error) {
	return t.send(ctx, text, nil)
}

func (t *Telegram) PostImage(ctx context.Context, text string, png []byte) (PostID, error) {
	photo := &tele.Photo{
		File:    tele.FromReader(bytes.NewReader(png)),
		Caption: text,
	}
	return t.send(ctx, photo, nil)
}

func (t *Telegram) Reply(ctx context.Context, parent PostID, text string) (PostID, error) {
	id, err := strconv.Atoi(string(parent))
	if err != nil {
		return "", fmt.Errorf("telegram: bad parent id %q: %w", parent, err)
	}
	return t.send(ctx, text, &tele.Message{ID: id, Chat: &tele.Chat{ID: t.cfg.ChatID}})
}

func (t *Telegram) send(ctx context.Context, what any, replyTo *tele.Message) (PostID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	opt := &tele.SendOptions{
		ParseMode:             t.cfg.ParseMode,
		DisableWebPagePreview: t.cfg.DisablePreview,
		ThreadID:              t.cfg.ThreadID,
		ReplyTo:               replyTo,
	}
	msg, err := t.bot.Send(&tele.Chat{ID: t.cfg.ChatID}, what, opt)
	if err != nil {
		return "", fmt.Errorf("telegram send: %w", err)
	}
	return PostID(strconv.Itoa(msg.ID)), nil
}
