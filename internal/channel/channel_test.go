package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	logx "sillyreader/pkg/logx"
)

func TestSplit(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("1. Double Jellybeans\n", 20)

	tests := []struct {
		name  string
		in    string
		limit int
		parts int
	}{
		{name: "fits", in: "short", limit: 10, parts: 1},
		{name: "newline boundaries", in: long, limit: 100, parts: 5},
		{name: "no newline falls back to spaces", in: strings.Repeat("word ", 50), limit: 40, parts: 7},
		{name: "hard cut", in: strings.Repeat("x", 25), limit: 10, parts: 3},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Split(tt.in, tt.limit)
			if len(got) != tt.parts {
				t.Fatalf("Split() = %d parts, want %d: %q", len(got), tt.parts, got)
			}
			for _, p := range got {
				if utf8.RuneCountInString(p) > tt.limit {
					t.Fatalf("chunk over limit: %q", p)
				}
				if p == "" {
					t.Fatal("empty chunk")
				}
			}
		})
	}
}

func TestSplitKeepsLinesWhole(t *testing.T) {
	t.Parallel()
	in := "header\n\n1. Overjoyed Laff Meters\n2. Decreased Fish Rarity\n3. Speedy Garden Growth"
	for _, chunk := range Split(in, 40) {
		for _, line := range strings.Split(chunk, "\n") {
			if line != "" && !strings.Contains(in, line+"\n") && !strings.HasSuffix(in, line) {
				t.Fatalf("line was cut: %q", line)
			}
		}
	}
}

func TestLimitsAndMediaDefaults(t *testing.T) {
	t.Parallel()
	c := NewConsole("", io.Discard)
	if TextLimit(c) != 1<<20 || !SupportsMedia(c) {
		t.Fatal("console limits not reported")
	}
	if CaptionLimit(c) != TextLimit(c) {
		t.Fatal("caption limit should fall back to text limit")
	}
}

type webhookRecorder struct {
	mu       sync.Mutex
	payloads []webhookPayload
	images   [][]byte
	queries  []string
}

func (r *webhookRecorder) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.queries = append(r.queries, req.URL.RawQuery)

		mt, params, _ := mime.ParseMediaType(req.Header.Get("Content-Type"))
		var p webhookPayload
		switch mt {
		case "application/json":
			if err := json.NewDecoder(req.Body).Decode(&p); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
		case "multipart/form-data":
			mr := multipart.NewReader(req.Body, params["boundary"])
			for {
				part, err := mr.NextPart()
				if err != nil {
					break
				}
				b, _ := io.ReadAll(part)
				switch part.FormName() {
				case "payload_json":
					_ = json.Unmarshal(b, &p)
				case "files[0]":
					r.images = append(r.images, b)
				}
			}
		default:
			w.WriteHeader(http.StatusUnsupportedMediaType)
			return
		}
		r.payloads = append(r.payloads, p)
		_ = json.NewEncoder(w).Encode(webhookMessage{ID: "m" + string(rune('0'+len(r.payloads)))})
	}
}

func TestWebhookPostImageAndReply(t *testing.T) {
	t.Parallel()
	rec := &webhookRecorder{}
	srv := httptest.NewServer(rec.handler(t))
	defer srv.Close()

	wh, err := NewWebhook(WebhookConfig{URL: srv.URL + "/api/webhooks/1/abc", Username: "Silly Reader"}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	png := []byte("\x89PNG fake")

	id, err := wh.PostImage(ctx, "The Silly Meter is now active", png)
	if err != nil {
		t.Fatalf("PostImage: %v", err)
	}
	if id != "m1" {
		t.Fatalf("id = %q", id)
	}
	if _, err := wh.Reply(ctx, id, "overflow"); err != nil {
		t.Fatalf("Reply: %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.payloads) != 2 {
		t.Fatalf("got %d requests", len(rec.payloads))
	}
	if rec.payloads[0].Content != "The Silly Meter is now active" || rec.payloads[0].Username != "Silly Reader" {
		t.Fatalf("payload = %+v", rec.payloads[0])
	}
	if len(rec.images) != 1 || !bytes.Equal(rec.images[0], png) {
		t.Fatal("image not uploaded")
	}
	if rec.payloads[1].Content != "overflow" {
		t.Fatalf("reply payload = %+v", rec.payloads[1])
	}
	for _, q := range rec.queries {
		if !strings.Contains(q, "wait=true") {
			t.Fatalf("query %q missing wait=true", q)
		}
	}
}

func TestWebhookNon2xx(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown webhook", http.StatusNotFound)
	}))
	defer srv.Close()

	wh, err := NewWebhook(WebhookConfig{URL: srv.URL}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := wh.Post(context.Background(), "hi"); err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("err = %v, want 404 error", err)
	}
}

func TestNewWebhookRejectsBadURL(t *testing.T) {
	t.Parallel()
	if _, err := NewWebhook(WebhookConfig{URL: "not a url"}, logx.Nop()); err == nil {
		t.Fatal("expected error")
	}
}

func TestConsole(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	c := NewConsole("echo", &buf)
	ctx := context.Background()
	id, _ := c.PostImage(ctx, "primary", []byte{1, 2, 3})
	_, _ = c.Reply(ctx, id, "overflow")

	out := buf.String()
	for _, want := range []string{"[image 3 bytes]", "primary", "[reply to 1]", "overflow"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestTelegramRequiresTokenAndChat(t *testing.T) {
	t.Parallel()
	if _, err := NewTelegram(TelegramConfig{ChatID: 1}, logx.Nop()); err == nil {
		t.Fatal("expected token error")
	}
	if _, err := NewTelegram(TelegramConfig{Token: "123:abc"}, logx.Nop()); err == nil {
		t.Fatal("expected chat error")
	}
}

func TestSplitMeasuredCountsUTF16Units(t *testing.T) {
	t.Parallel()
	in := strings.Repeat("🎉 Double Jellybeans\n", 10)
	const limit = 60
	got := SplitMeasured(in, limit, UTF16Units)
	if len(got) < 2 {
		t.Fatalf("SplitMeasured() = %d parts", len(got))
	}
	for _, p := range got {
		if n := Length(p, UTF16Units); n > limit {
			t.Fatalf("chunk is %d UTF-16 units, over %d: %q", n, limit, p)
		}
	}
}

func TestTelegramMeasuresUTF16(t *testing.T) {
	t.Parallel()
	tg, err := NewTelegram(TelegramConfig{Token: "123:abc", ChatID: 1}, logx.Nop())
	if err != nil {
		t.Fatalf("NewTelegram: %v", err)
	}
	m := MeasureOf(tg)
	if m == nil {
		t.Fatal("telegram should measure in UTF-16 units")
	}
	if got := Length("🎉ab", m); got != 4 {
		t.Fatalf("Length = %d, want 4", got)
	}
	if MeasureOf(NewConsole("", io.Discard)) != nil {
		t.Fatal("console counts runes")
	}
}
