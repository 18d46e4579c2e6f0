// Package remote talks to the conversation service over HTTP/JSON.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tOgg1/dmsync/internal/logging"
	"github.com/tOgg1/dmsync/internal/models"
)

// ErrThreadNotFound is returned when the service does not know a thread.
var ErrThreadNotFound = errors.New("thread not found")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Temporary reports whether retrying the request later may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Config configures a Client.
type Config struct {
	// BaseURL is the service root, e.g. http://10.0.2.2:8000.
	BaseURL string

	// Token is sent as a bearer token when set.
	Token string

	// RequestTimeout bounds each request. Default: 15s
	RequestTimeout time.Duration

	// RequestsPerSecond limits the request rate. Zero disables limiting.
	RequestsPerSecond float64

	// Burst is the limiter burst size. Default: 1
	Burst int

	// HTTPClient overrides the underlying client.
	HTTPClient *http.Client
}

// Client is a conversation service client. It is safe for concurrent use and
// implements threadsync.Fetcher.
type Client struct {
	baseURL    *url.URL
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     zerolog.Logger
}

// NewClient validates cfg and returns a Client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base URL must be http or https, got %q", base.Scheme)
	}

	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	}

	return &Client{
		baseURL:    base,
		token:      cfg.Token,
		httpClient: httpClient,
		limiter:    limiter,
		logger:     logging.Component("remote"),
	}, nil
}

type threadsResponse struct {
	Threads []models.Thread `json:"threads"`
}

type threadResponse struct {
	Thread models.Thread `json:"thread"`
}

// Message lists are decoded item by item; see models.DecodeMessages.
type messagesResponse struct {
	Messages []json.RawMessage `json:"messages"`
}

type pageResponse struct {
	Messages      []json.RawMessage `json:"messages"`
	Cursor        models.Cursor     `json:"cursor"`
	MoreAvailable bool              `json:"moreAvailable"`
}

type sendRequest struct {
	Text   string `json:"text"`
	Sender string `json:"sender,omitempty"`
}

type sendResponse struct {
	Message models.Message `json:"message"`
}

// Threads lists the viewer's threads with their most recent items.
func (c *Client) Threads(ctx context.Context) ([]models.Thread, error) {
	var resp threadsResponse
	if err := c.do(ctx, http.MethodGet, "/chats", nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	return resp.Threads, nil
}

// Thread fetches one thread with its initial snapshot of items.
func (c *Client) Thread(ctx context.Context, threadID string) (models.Thread, error) {
	var resp threadResponse
	if err := c.do(ctx, http.MethodGet, threadPath(threadID), nil, nil, &resp); err != nil {
		return models.Thread{}, fmt.Errorf("get thread %s: %w", threadID, err)
	}
	return resp.Thread, nil
}

// NewMessages returns messages newer than lastTimestamp.
func (c *Client) NewMessages(ctx context.Context, threadID string, lastTimestamp int64) ([]models.Message, error) {
	query := url.Values{}
	query.Set("last_timestamp", strconv.FormatInt(lastTimestamp, 10))

	var resp messagesResponse
	if err := c.do(ctx, http.MethodGet, threadPath(threadID)+"/new_messages", query, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch new messages: %w", err)
	}
	return c.decodeItems(threadID, models.SourceNewer, resp.Messages), nil
}

// OlderMessages returns the page of history starting at cursor. The cursor
// parameter is omitted for the first page.
func (c *Client) OlderMessages(ctx context.Context, threadID string, cursor models.Cursor) (models.Page, error) {
	query := url.Values{}
	if !cursor.IsStart() {
		query.Set("cursor", string(cursor))
	}

	var resp pageResponse
	if err := c.do(ctx, http.MethodGet, threadPath(threadID)+"/messages", query, nil, &resp); err != nil {
		return models.Page{}, fmt.Errorf("fetch older messages: %w", err)
	}
	return models.Page{
		Messages:      c.decodeItems(threadID, models.SourceOlder, resp.Messages),
		Cursor:        resp.Cursor,
		MoreAvailable: resp.MoreAvailable,
	}, nil
}

// decodeItems keeps undecodable items as placeholders the sync engine
// rejects and reports.
func (c *Client) decodeItems(threadID string, source models.FetchSource, raw []json.RawMessage) []models.Message {
	msgs, undecodable := models.DecodeMessages(raw)
	if undecodable > 0 {
		c.logger.Warn().
			Str("thread_id", threadID).
			Str("source", string(source)).
			Int("undecodable", undecodable).
			Msg("response carried undecodable items")
	}
	return msgs
}

// SendText posts a text message to a thread as the viewer.
func (c *Client) SendText(ctx context.Context, threadID, text string) (models.Message, error) {
	var resp sendResponse
	if err := c.do(ctx, http.MethodPost, threadPath(threadID)+"/messages", nil, sendRequest{Text: text}, &resp); err != nil {
		return models.Message{}, fmt.Errorf("send message: %w", err)
	}
	return resp.Message, nil
}

func threadPath(threadID string) string {
	return "/chats/" + url.PathEscape(threadID)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}

	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	u.RawQuery = query.Encode()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call %s %s: %w", method, logging.RedactURL(u.String()), err)
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("method", method).
		Str("url", logging.RedactURL(u.String())).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(started)).
		Msg("request completed")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		statusErr := &StatusError{
			Method:     method,
			URL:        logging.RedactURL(u.String()),
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(logging.Redact(string(snippet))),
		}
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %w", ErrThreadNotFound, statusErr)
		}
		return statusErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
