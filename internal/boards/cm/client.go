package cm

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

	"github.com/p2community/badge-hub/internal/boards/ratelimit"
	"github.com/p2community/badge-hub/internal/domain/definition"
	"github.com/p2community/badge-hub/internal/domain/shared"
)

// ClientConfig holds the HTTP client settings for board.portal2.sr.
type ClientConfig struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration

	RateLimit  int
	RateWindow time.Duration
}

// DefaultClientConfig returns the production settings. The provider
// publishes no request budget; the limiter just keeps bulk analyses polite.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:    "https://board.portal2.sr",
		UserAgent:  "badge-hub/1.0",
		Timeout:    30 * time.Second,
		RateLimit:  200,
		RateWindow: time.Minute,
	}
}

// Client is a rate-limited board.portal2.sr API client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	limiter    *ratelimit.Limiter
	logger     *slog.Logger
}

// NewClient creates a challenge-mode API client.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		userAgent:  cfg.UserAgent,
		limiter:    ratelimit.New(cfg.RateLimit, cfg.RateWindow),
		logger:     logger.With(slog.String("component", "cm_client")),
	}
}

// Aggregate fetches one aggregate point board.
func (c *Client) Aggregate(ctx context.Context, board definition.CMLeaderboard) (*Aggregate, error) {
	var agg Aggregate
	path := fmt.Sprintf("/aggregated/%s/json", board)
	if err := c.do(ctx, "Aggregate", http.MethodGet, path, nil, &agg); err != nil {
		return nil, err
	}
	if agg.Points == nil {
		return nil, shared.NewDomainError("cm", "Aggregate", shared.ErrUpstreamFormat,
			"aggregate response is missing the Points map")
	}
	return &agg, nil
}

// ActiveProfiles fetches the steam ids of players active within the trailing
// months.
func (c *Client) ActiveProfiles(ctx context.Context, months uint64) ([]uint64, error) {
	form := url.Values{}
	form.Set("months", strconv.FormatUint(months, 10))

	var resp activeProfilesResponse
	if err := c.do(ctx, "ActiveProfiles", http.MethodPost, "/api-v2/active-profiles", form, &resp); err != nil {
		return nil, err
	}

	ids := make([]uint64, 0, len(resp.Profiles))
	for _, p := range resp.Profiles {
		ids = append(ids, p.ProfileNumber)
	}
	return ids, nil
}

// Profile fetches one player profile.
func (c *Client) Profile(ctx context.Context, steamID uint64) (*Profile, error) {
	var p Profile
	path := fmt.Sprintf("/profile/%d/json", steamID)
	if err := c.do(ctx, "Profile", http.MethodGet, path, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, form url.Values, out any) error {
	if err := c.limiter.Acquire(ctx); err != nil {
		return shared.WrapError("cm", op, shared.ErrRateLimited, "waiting for a request slot", err)
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return shared.WrapError("cm", op, shared.ErrTransport, "building request", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return shared.WrapError("cm", op, shared.ErrTransport, "request failed", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("cm request",
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("took", time.Since(start)))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return shared.NewDomainError("cm", op, shared.ErrNotFound, "resource not found: "+path)
	case resp.StatusCode == http.StatusTooManyRequests:
		return shared.NewDomainError("cm", op, shared.ErrRateLimited, "provider throttled the request")
	case resp.StatusCode != http.StatusOK:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return shared.NewDomainError("cm", op, shared.ErrTransport,
			fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, msg))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return shared.WrapError("cm", op, shared.ErrUpstreamFormat, "unexpected response shape", err)
	}
	return nil
}
