package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	logx "sillyreader/pkg/logx"
)

const (
	DefaultURL       = "https://www.toontownrewritten.com/api/sillymeter"
	DefaultUserAgent = "sillyreader (Silly Meter announcer)"

	maxBodyBytes = 1 << 20
)

// ErrMalformed is wrapped into the FetchError status when a 2xx response
// cannot be parsed.
var ErrMalformed = errors.New("malformed status payload")

// HTTPConfig configures HTTPSource.
type HTTPConfig struct {
	URL       string
	UserAgent string
	Timeout   time.Duration
	RetryMax  int
}

// HTTPSource fetches the Silly Meter status over HTTP.
type HTTPSource struct {
	cfg    HTTPConfig
	client *retryablehttp.Client
	log    logx.Logger
	now    func() time.Time
}

type payload struct {
	State   string   `json:"state"`
	Rewards []string `json:"rewards"`
	Winner  string   `json:"winner"`
	AsOf    *int64   `json:"asOf"`
	Next    *int64   `json:"nextUpdateTimestamp"`
}

// NewHTTPSource builds a source with a retrying client. Retries cover
// transient transport errors and 5xx responses; once they are exhausted the
// last response is passed through so its status code becomes the error key.
func NewHTTPSource(cfg HTTPConfig, log logx.Logger) *HTTPSource {
	if strings.TrimSpace(cfg.URL) == "" {
		cfg.URL = DefaultURL
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	c := retryablehttp.NewClient()
	c.RetryMax = cfg.RetryMax
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 5 * time.Second
	c.HTTPClient.Timeout = cfg.Timeout
	c.Logger = nil
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &HTTPSource{cfg: cfg, client: c, log: log, now: time.Now}
}

// Fetch performs one GET and parses the result.
func (s *HTTPSource) Fetch(ctx context.Context) Status {
	at := s.now()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, s.cfg.URL, nil)
	if err != nil {
		return Failed(0, fmt.Errorf("build request: %w", err), at)
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		s.log.Warn("status fetch failed", logx.String("url", s.cfg.URL), logx.Err(err))
		code := 0
		if resp != nil {
			code = resp.StatusCode
		}
		return Failed(code, fmt.Errorf("GET %s: %w", s.cfg.URL, err), at)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return Failed(resp.StatusCode, fmt.Errorf("GET %s: status %d", s.cfg.URL, resp.StatusCode), at)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Failed(resp.StatusCode, fmt.Errorf("read body: %w", err), at)
	}

	st, err := Parse(body)
	if err != nil {
		return Failed(resp.StatusCode, err, at)
	}
	s.log.Debug("status fetched", logx.String("state", st.RawState), logx.Strs("rewards", st.Rewards()),
		logx.Time("as_of", st.AsOf), logx.Time("next_update", st.NextUpdateAt))
	return st
}

// Parse decodes a status document. Missing timestamps make the document
// malformed. A missing or unrecognized state is not an error: it yields an
// Unknown status so the operator hears about it.
func Parse(body []byte) (Status, error) {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return Status{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if p.AsOf == nil || p.Next == nil {
		return Status{}, fmt.Errorf("%w: missing asOf or nextUpdateTimestamp", ErrMalformed)
	}
	return New(strings.TrimSpace(p.State), p.Rewards, p.Winner, time.Unix(*p.AsOf, 0), time.Unix(*p.Next, 0)), nil
}
