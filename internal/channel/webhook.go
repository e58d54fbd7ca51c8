package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	logx "sillyreader/pkg/logx"
)

const (
	webhookTextLimit = 2000
	webhookImageName = "sillymeter.png"
)

type WebhookConfig struct {
	Name     string
	URL      string
	Username string
	ThreadID string // forum thread; empty for none
	Timeout  time.Duration
	RetryMax int
}

// Webhook posts to a Discord-compatible incoming webhook. Webhooks cannot
// thread, so Reply publishes a follow-up message.
type Webhook struct {
	cfg    WebhookConfig
	client *retryablehttp.Client
	log    logx.Logger
}

type webhookPayload struct {
	Content     string              `json:"content"`
	Username    string              `json:"username,omitempty"`
	Attachments []webhookAttachment `json:"attachments,omitempty"`
}

type webhookAttachment struct {
	ID       int    `json:"id"`
	Filename string `json:"filename"`
}

type webhookMessage struct {
	ID string `json:"id"`
}

func NewWebhook(cfg WebhookConfig, log logx.Logger) (*Webhook, error) {
	u, err := url.Parse(strings.TrimSpace(cfg.URL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("webhook url %q is invalid", cfg.URL)
	}
	q := u.Query()
	q.Set("wait", "true")
	if cfg.ThreadID != "" {
		q.Set("thread_id", cfg.ThreadID)
	}
	u.RawQuery = q.Encode()
	cfg.URL = u.String()

	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = "webhook"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	client.HTTPClient.Timeout = cfg.Timeout
	client.Logger = nil
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	if log.IsZero() {
		log = logx.Nop()
	}
	return &Webhook{cfg: cfg, client: client, log: log.With(logx.String("channel", cfg.Name))}, nil
}

func (w *Webhook) Name() string        { return w.cfg.Name }
func (w *Webhook) TextLimit() int      { return webhookTextLimit }
func (w *Webhook) SupportsMedia() bool { return true }

func (w *Webhook) Post(ctx context.Context, text string) (PostID, error) {
	body, err := json.Marshal(webhookPayload{Content: text, Username: w.cfg.Username})
	if err != nil {
		return "", err
	}
	return w.send(ctx, body, "application/json")
}

func (w *Webhook) PostImage(ctx context.Context, text string, png []byte) (PostID, error) {
	payload, err := json.Marshal(webhookPayload{
		Content:     text,
		Username:    w.cfg.Username,
		Attachments: []webhookAttachment{{ID: 0, Filename: webhookImageName}},
	})
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("payload_json", string(payload)); err != nil {
		return "", err
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files[0]"; filename="%s"`, webhookImageName))
	h.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(h)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(png); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}
	return w.send(ctx, buf.Bytes(), mw.FormDataContentType())
}

func (w *Webhook) Reply(ctx context.Context, parent PostID, text string) (PostID, error) {
	w.log.Debug("webhook reply sent as follow-up", logx.String("parent", string(parent)))
	return w.Post(ctx, text)
}

func (w *Webhook) send(ctx context.Context, body []byte, contentType string) (PostID, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("webhook post: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var msg webhookMessage
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", nil
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return "", errors.New("webhook post: unreadable response")
	}
	return PostID(msg.ID), nil
}
