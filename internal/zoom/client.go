package zoom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"zoom_connector/internal/backoff"
)

// Report types supported by the connector, each mapped to its own
// participants endpoint and tracked under its own watermark.
const (
	ReportMeetings = "meetings"
	ReportWebinars = "webinars"
)

var reportPaths = map[string]string{
	ReportMeetings: "/metrics/meetings/participants",
	ReportWebinars: "/metrics/webinars/participants",
}

// Config holds Zoom client configuration.
type Config struct {
	APIKey    string
	APISecret string
	BaseURL   string
	PageSize  int
	Timeout   time.Duration
}

// Client issues authenticated, paginated requests against the reporting
// endpoints. Transient failures are absorbed here, bounded by the injected
// retry policy; only exhaustion or fatal rejections surface to callers.
type Client struct {
	httpClient *http.Client
	baseURL    string
	pageSize   int
	policy     backoff.Policy
	auth       *tokenSource
	logger     *slog.Logger
}

// New creates a reporting API client.
func New(cfg Config, policy backoff.Policy, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:  cfg.BaseURL,
		pageSize: cfg.PageSize,
		policy:   policy,
		auth:     newTokenSource(cfg.APIKey, cfg.APISecret),
		logger:   logger.With("component", "zoom"),
	}
}

// FetchPages starts a paginated traversal of the report window. The returned
// pager is a forward-only, non-restartable sequence: each page requires the
// continuation token of the previous response.
func (c *Client) FetchPages(reportType string, windowStart, windowEnd time.Time) (*Pager, error) {
	path, ok := reportPaths[reportType]
	if !ok {
		return nil, fmt.Errorf("unknown report type %q", reportType)
	}

	return &Pager{
		client:      c,
		path:        path,
		windowStart: windowStart,
		windowEnd:   windowEnd,
	}, nil
}

// Pager iterates the pages of one report window.
type Pager struct {
	client      *Client
	path        string
	windowStart time.Time
	windowEnd   time.Time
	nextToken   string
	done        bool
}

// Next fetches the next page. It returns (nil, nil) once the provider stops
// returning a continuation token.
func (p *Pager) Next(ctx context.Context) (*RawPage, error) {
	if p.done {
		return nil, nil
	}

	page, err := p.client.fetchPage(ctx, p.pageURL())
	if err != nil {
		p.done = true
		return nil, err
	}

	p.nextToken = page.NextPageToken
	if p.nextToken == "" {
		p.done = true
	}

	return page, nil
}

func (p *Pager) pageURL() string {
	q := url.Values{}
	q.Set("type", "past")
	q.Set("from", p.windowStart.UTC().Format(time.RFC3339))
	q.Set("to", p.windowEnd.UTC().Format(time.RFC3339))
	q.Set("page_size", strconv.Itoa(p.client.pageSize))
	if p.nextToken != "" {
		q.Set("next_page_token", p.nextToken)
	}
	return p.client.baseURL + p.path + "?" + q.Encode()
}

func (c *Client) fetchPage(ctx context.Context, pageURL string) (*RawPage, error) {
	retrier := backoff.NewRetrier(c.policy)

	for {
		page, err := c.doRequest(ctx, pageURL)
		if err == nil {
			return page, nil
		}

		var fatal *FatalError
		if errors.As(err, &fatal) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		wait, retryErr := retrier.Next()
		if retryErr != nil {
			return nil, &TransientError{Attempts: retrier.Attempts() + 1, Err: err}
		}

		// The provider's rate-limit-reset signal overrides computed backoff.
		var se *statusError
		if errors.As(err, &se) && se.retryAfter > 0 {
			wait = time.Duration(se.retryAfter) * time.Second
		}

		c.logger.Warn("request failed, retrying",
			"attempt", retrier.Attempts(),
			"backoff", wait,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *Client) doRequest(ctx context.Context, pageURL string) (*RawPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	token, err := c.auth.Token()
	if err != nil {
		return nil, &FatalError{Message: err.Error()}
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", "ZoomConnector/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &statusError{err: fmt.Errorf("execute request: %w", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var page RawPage
		if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
			return nil, &statusError{err: fmt.Errorf("decode response: %w", err)}
		}
		return &page, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		return nil, &statusError{status: resp.StatusCode, retryAfter: retryAfter}

	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, &statusError{status: resp.StatusCode}

	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &FatalError{StatusCode: resp.StatusCode, Message: string(body)}
	}
}
