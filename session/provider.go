package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hairizuanbinnoorazman/persona-navigator/logger"
)

// ProviderConfig configures the remote session provider client.
type ProviderConfig struct {
	BaseURL   string
	APIKey    string
	ProjectID string

	// CreateAttempts bounds session creation under rate limiting.
	CreateAttempts int
	// BackoffBase is the first rate-limit backoff; each further attempt doubles it.
	BackoffBase time.Duration
	// MaxRetryAfter caps a server-supplied Retry-After.
	MaxRetryAfter time.Duration

	LiveViewAttempts int
	LiveViewDelay    time.Duration

	RecordSession   bool
	AdvancedStealth bool
	SolveCaptchas   bool
}

func (c *ProviderConfig) setDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.browserbase.com"
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.CreateAttempts <= 0 {
		c.CreateAttempts = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 5 * time.Second
	}
	if c.MaxRetryAfter <= 0 {
		c.MaxRetryAfter = time.Minute
	}
	if c.LiveViewAttempts <= 0 {
		c.LiveViewAttempts = 5
	}
	if c.LiveViewDelay <= 0 {
		c.LiveViewDelay = time.Second
	}
}

// ProviderSession is a created remote session.
type ProviderSession struct {
	ID         string `json:"id"`
	ConnectURL string `json:"connectUrl"`
	Status     string `json:"status"`
}

type createSessionRequest struct {
	ProjectID       string          `json:"projectId,omitempty"`
	BrowserSettings browserSettings `json:"browserSettings"`
	KeepAlive       bool            `json:"keepAlive"`
}

type browserSettings struct {
	Viewport        providerViewport `json:"viewport"`
	RecordSession   bool             `json:"recordSession"`
	AdvancedStealth bool             `json:"advancedStealth,omitempty"`
	SolveCaptchas   bool             `json:"solveCaptchas"`
}

type providerViewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type debugResponse struct {
	DebuggerFullscreenURL string `json:"debuggerFullscreenUrl"`
	DebuggerURL           string `json:"debuggerUrl"`
}

// ProviderClient talks to the remote session provider's REST API.
type ProviderClient struct {
	httpClient *http.Client
	cfg        ProviderConfig
	logger     logger.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewProviderClient creates a provider client. APIKey is required.
func NewProviderClient(cfg ProviderConfig, log logger.Logger) (*ProviderClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("provider: api key is required")
	}
	cfg.setDefaults()
	return &ProviderClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cfg:        cfg,
		logger:     log,
		sleep:      sleepCtx,
	}, nil
}

func (c *ProviderClient) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("provider: failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("provider: failed to create request: %w", err)
	}

	req.Header.Set("X-BB-API-Key", c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

// CreateSession creates a remote session sized to vp. HTTP 429 responses are retried,
// honoring Retry-After when present and otherwise backing off geometrically; after the
// last attempt ErrRateLimited is returned.
func (c *ProviderClient) CreateSession(ctx context.Context, vp Viewport) (*ProviderSession, error) {
	payload := createSessionRequest{
		ProjectID: c.cfg.ProjectID,
		BrowserSettings: browserSettings{
			Viewport:        providerViewport{Width: vp.Width, Height: vp.Height},
			RecordSession:   c.cfg.RecordSession,
			AdvancedStealth: c.cfg.AdvancedStealth,
			SolveCaptchas:   c.cfg.SolveCaptchas,
		},
	}

	for attempt := 1; attempt <= c.cfg.CreateAttempts; attempt++ {
		resp, err := c.doRequest(ctx, http.MethodPost, "/v1/sessions", payload)
		if err != nil {
			return nil, fmt.Errorf("provider: create session: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			wait := c.backoff(attempt, resp.Header.Get("Retry-After"))
			drain(resp)
			if attempt == c.cfg.CreateAttempts {
				break
			}
			c.logger.Warn(ctx, "provider rate limited session creation", map[string]interface{}{
				"attempt": attempt,
				"wait":    wait.String(),
			})
			if err := c.sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			msg := readError(resp)
			drain(resp)
			return nil, fmt.Errorf("provider: create session failed (status %d): %s", resp.StatusCode, msg)
		}

		var session ProviderSession
		err = json.NewDecoder(resp.Body).Decode(&session)
		drain(resp)
		if err != nil {
			return nil, fmt.Errorf("provider: failed to decode session: %w", err)
		}
		if session.ID == "" || session.ConnectURL == "" {
			return nil, fmt.Errorf("provider: session response missing id or connect url")
		}
		return &session, nil
	}

	return nil, fmt.Errorf("%w after %d attempts", ErrRateLimited, c.cfg.CreateAttempts)
}

// backoff returns the delay before the next create attempt.
func (c *ProviderClient) backoff(attempt int, retryAfter string) time.Duration {
	if retryAfter != "" {
		if secs, err := strconv.Atoi(strings.TrimSpace(retryAfter)); err == nil && secs >= 0 {
			return min(time.Duration(secs)*time.Second, c.cfg.MaxRetryAfter)
		}
		if at, err := http.ParseTime(retryAfter); err == nil {
			if d := time.Until(at); d > 0 {
				return min(d, c.cfg.MaxRetryAfter)
			}
			return 0
		}
	}
	return c.cfg.BackoffBase << (attempt - 1)
}

// DebugURL fetches the live-view URL once. Not-ready statuses map to ErrProviderNotReady.
func (c *ProviderClient) DebugURL(ctx context.Context, sessionID string) (string, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/v1/sessions/"+sessionID+"/debug", nil)
	if err != nil {
		return "", fmt.Errorf("provider: debug urls: %w", err)
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusConflict, http.StatusTooEarly:
		return "", ErrProviderNotReady
	default:
		return "", fmt.Errorf("provider: debug urls failed (status %d): %s", resp.StatusCode, readError(resp))
	}

	var debug debugResponse
	if err := json.NewDecoder(resp.Body).Decode(&debug); err != nil {
		return "", fmt.Errorf("provider: failed to decode debug urls: %w", err)
	}
	if debug.DebuggerFullscreenURL != "" {
		return debug.DebuggerFullscreenURL, nil
	}
	if debug.DebuggerURL != "" {
		return debug.DebuggerURL, nil
	}
	return "", ErrProviderNotReady
}

// LiveViewURL polls DebugURL for a bounded number of attempts. It returns "" when the URL
// never becomes available; a missing live view is not fatal to the lease.
func (c *ProviderClient) LiveViewURL(ctx context.Context, sessionID string) string {
	for attempt := 1; attempt <= c.cfg.LiveViewAttempts; attempt++ {
		url, err := c.DebugURL(ctx, sessionID)
		if err == nil {
			return url
		}
		c.logger.Debug(ctx, "live view not available yet", map[string]interface{}{
			"provider_session_id": sessionID,
			"attempt":             attempt,
			"error":               err.Error(),
		})
		if attempt == c.cfg.LiveViewAttempts {
			break
		}
		if err := c.sleep(ctx, c.cfg.LiveViewDelay); err != nil {
			break
		}
	}
	c.logger.Warn(ctx, "live view url unavailable", map[string]interface{}{
		"provider_session_id": sessionID,
	})
	return ""
}

// ReleaseSession asks the provider to reclaim the remote session.
func (c *ProviderClient) ReleaseSession(ctx context.Context, sessionID string) error {
	body := map[string]string{
		"status": "REQUEST_RELEASE",
	}
	if c.cfg.ProjectID != "" {
		body["projectId"] = c.cfg.ProjectID
	}
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/sessions/"+sessionID, body)
	if err != nil {
		return fmt.Errorf("provider: release session: %w", err)
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("provider: release session failed (status %d): %s", resp.StatusCode, readError(resp))
	}
	return nil
}

func readError(resp *http.Response) string {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return strings.TrimSpace(string(data))
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
