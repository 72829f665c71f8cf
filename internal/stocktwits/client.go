package stocktwits

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL    = "https://api.stocktwits.com/api/2/"
	defaultUserAgent  = "TwitsArchiver/1.0"
	defaultRetryDelay = 2 * time.Second
	bodyPreviewBytes  = 4096
)

// HTTPClient allows injecting mock HTTP clients for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config configures the stream client.
type Config struct {
	BaseURL     string
	AccessToken string
	UserAgent   string
	// Timeout applies to the default http.Client only.
	Timeout time.Duration
	// RequestsPerHour throttles calls client-side. 0 disables throttling.
	RequestsPerHour int
	// MaxRetries bounds the sleep-and-retry loop on 429 responses.
	MaxRetries int
	RetryDelay time.Duration
	// MaxBodyBytes caps the decoded response size. Default: 10MB.
	MaxBodyBytes int64
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(c.BaseURL, "/") {
		c.BaseURL += "/"
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = defaultRetryDelay
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 10 * 1024 * 1024
	}
}

// Query bounds one page request. Zero values mean "unbounded" and are sent
// as 0, which the API accepts.
type Query struct {
	SinceID int64
	MaxID   int64
	Limit   int
}

// Client fetches user and symbol streams.
type Client struct {
	http    HTTPClient
	cfg     Config
	limiter *rate.Limiter
	log     *slog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(h HTTPClient) Option { return func(c *Client) { c.http = h } }

// WithLogger sets the logger used for retry and page diagnostics.
func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.log = l } }

// New creates a Client.
func New(cfg Config, opts ...Option) *Client {
	cfg.defaults()
	c := &Client{
		http: &http.Client{Timeout: cfg.Timeout},
		cfg:  cfg,
		log:  slog.Default(),
	}
	if cfg.RequestsPerHour > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Hour/time.Duration(cfg.RequestsPerHour)), 1)
	}
	for _, o := range opts {
		o(c)
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	return c
}

// FetchByUser returns one page of the user's stream, newest first.
func (c *Client) FetchByUser(ctx context.Context, user string, q Query) ([]Message, error) {
	return c.fetch(ctx, KindUser, user, q)
}

// FetchBySymbol returns one page of the symbol's stream, newest first.
func (c *Client) FetchBySymbol(ctx context.Context, symbol string, q Query) ([]Message, error) {
	return c.fetch(ctx, KindSymbol, symbol, q)
}

type streamResponse struct {
	Response struct {
		Status int `json:"status"`
	} `json:"response"`
	Messages []Message `json:"messages"`
}

func (c *Client) streamURL(kind EntityKind, id string, q Query) string {
	v := url.Values{}
	v.Set("since", strconv.FormatInt(q.SinceID, 10))
	v.Set("max", strconv.FormatInt(q.MaxID, 10))
	v.Set("limit", strconv.Itoa(q.Limit))
	if c.cfg.AccessToken != "" {
		v.Set("access_token", c.cfg.AccessToken)
	}
	return fmt.Sprintf("%sstreams/%s/%s.json?%s", c.cfg.BaseURL, kind, url.PathEscape(id), v.Encode())
}

func (c *Client) fetch(ctx context.Context, kind EntityKind, id string, q Query) ([]Message, error) {
	if err := ValidateEntity(id); err != nil {
		return nil, &TransportError{Kind: kind, Entity: id, Err: err}
	}
	if q.Limit <= 0 {
		return nil, &TransportError{Kind: kind, Entity: id, Err: fmt.Errorf("limit must be positive, got %d", q.Limit)}
	}
	target := c.streamURL(kind, id, q)

	for attempt := 0; ; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, &TransportError{Kind: kind, Entity: id, Err: err}
			}
		}

		msgs, retry, err := c.do(ctx, kind, id, target)
		if !retry {
			if err == nil {
				c.log.Debug("stream page fetched", "kind", kind, "entity", id,
					"max", q.MaxID, "since", q.SinceID, "messages", len(msgs))
			}
			return msgs, err
		}
		if attempt >= c.cfg.MaxRetries {
			return nil, err
		}
		c.log.Warn("rate limit hit (429), sleeping before retry",
			"kind", kind, "entity", id, "attempt", attempt+1, "delay", c.cfg.RetryDelay)
		select {
		case <-ctx.Done():
			return nil, &TransportError{Kind: kind, Entity: id, Err: ctx.Err()}
		case <-time.After(c.cfg.RetryDelay):
		}
	}
}

// do performs one request. retry is true only for 429 responses.
func (c *Client) do(ctx context.Context, kind EntityKind, id, target string) ([]Message, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, false, &TransportError{Kind: kind, Entity: id, Err: fmt.Errorf("new request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, false, &TransportError{Kind: kind, Entity: id, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		preview, _ := io.ReadAll(io.LimitReader(resp.Body, bodyPreviewBytes))
		terr := &TransportError{
			Kind:   kind,
			Entity: id,
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(preview)),
			Err:    fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
		return nil, resp.StatusCode == http.StatusTooManyRequests, terr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodyBytes))
	if err != nil {
		return nil, false, &TransportError{Kind: kind, Entity: id, Status: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	var sr streamResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, false, fmt.Errorf("stocktwits: decode %s %s: %w", kind, id, err)
	}
	return sr.Messages, false, nil
}
