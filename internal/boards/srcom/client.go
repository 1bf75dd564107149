package srcom

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/p2community/badge-hub/internal/boards/ratelimit"
	"github.com/p2community/badge-hub/internal/domain/shared"
)

// ClientConfig holds the HTTP client settings for the speedrun.com API.
type ClientConfig struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration

	// RateLimit and RateWindow bound outgoing requests. The API allows 100
	// requests per minute.
	RateLimit  int
	RateWindow time.Duration
}

// DefaultClientConfig returns the documented production settings.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:    "https://www.speedrun.com/api/v1",
		UserAgent:  "badge-hub/1.0",
		Timeout:    30 * time.Second,
		RateLimit:  100,
		RateWindow: time.Minute,
	}
}

// Client is a rate-limited speedrun.com API client. Requests that fail are
// reported to the caller as-is; the client never retries.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	limiter    *ratelimit.Limiter
	logger     *slog.Logger
}

// NewClient creates a speedrun.com API client.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		userAgent:  cfg.UserAgent,
		limiter:    ratelimit.New(cfg.RateLimit, cfg.RateWindow),
		logger:     logger.With(slog.String("component", "srcom_client")),
	}
}

// Leaderboard fetches the filtered category leaderboard with game, category,
// players and variables embedded. Variable filters are applied as
// `var-{id}={choice}` parameters in sorted order.
func (c *Client) Leaderboard(ctx context.Context, game, category string, variables map[string]string) (*Leaderboard, error) {
	params := url.Values{}
	params.Set("embed", "game,category,players,variables")

	keys := make([]string, 0, len(variables))
	for k := range variables {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		params.Set("var-"+k, variables[k])
	}

	path := fmt.Sprintf("/leaderboards/%s/category/%s", url.PathEscape(game), url.PathEscape(category))

	var lb Leaderboard
	if err := c.get(ctx, "Leaderboard", path, params, &lb); err != nil {
		return nil, err
	}
	return &lb, nil
}

// Game fetches one game resource.
func (c *Client) Game(ctx context.Context, id string) (*Game, error) {
	var g Game
	if err := c.get(ctx, "Game", "/games/"+url.PathEscape(id), nil, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// Category fetches one category resource.
func (c *Client) Category(ctx context.Context, id string) (*Category, error) {
	var cat Category
	if err := c.get(ctx, "Category", "/categories/"+url.PathEscape(id), nil, &cat); err != nil {
		return nil, err
	}
	return &cat, nil
}

// User fetches one user resource.
func (c *Client) User(ctx context.Context, id string) (*User, error) {
	var u User
	if err := c.get(ctx, "User", "/users/"+url.PathEscape(id), nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Variable fetches one variable resource.
func (c *Client) Variable(ctx context.Context, id string) (*Variable, error) {
	var v Variable
	if err := c.get(ctx, "Variable", "/variables/"+url.PathEscape(id), nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// get performs one rate-limited GET and decodes the `{"data": ...}`
// envelope into out.
func (c *Client) get(ctx context.Context, op, path string, params url.Values, out any) error {
	if err := c.limiter.Acquire(ctx); err != nil {
		return shared.WrapError("srcom", op, shared.ErrRateLimited, "waiting for a request slot", err)
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return shared.WrapError("srcom", op, shared.ErrTransport, "building request", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return shared.WrapError("srcom", op, shared.ErrTransport, "request failed", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("srcom request",
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("took", time.Since(start)))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return shared.NewDomainError("srcom", op, shared.ErrNotFound, "resource not found: "+path)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == 420:
		return shared.NewDomainError("srcom", op, shared.ErrRateLimited, "provider throttled the request")
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return shared.NewDomainError("srcom", op, shared.ErrTransport,
			fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, body))
	}

	// Decode through the envelope; a shape mismatch is an upstream format
	// error, not a transport one.
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return shared.WrapError("srcom", op, shared.ErrTransport, "reading response body", err)
	}

	env := envelope[json.RawMessage]{}
	if err := json.Unmarshal(raw, &env); err != nil {
		return shared.WrapError("srcom", op, shared.ErrUpstreamFormat, "response is not a data envelope", err)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return shared.WrapError("srcom", op, shared.ErrUpstreamFormat, "unexpected resource shape", err)
	}

	return nil
}
