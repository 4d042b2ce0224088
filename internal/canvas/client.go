package canvas

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"shell-service/pkg/config"
	"shell-service/prometheus"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// APIError is a non-2xx response from the Canvas API
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("canvas API error: %d %s", e.StatusCode, e.Body)
}

// Temporary reports whether retrying the same call may succeed
func (e *APIError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Client is a Canvas REST client. Every call carries a bearer token from
// the configured token source, is bounded by the request timeout and, when
// a limiter is configured, waits for outbound rate capacity first.
type Client struct {
	baseURL string
	tokens  TokenSource
	http    *http.Client
	timeout time.Duration
	limiter *rate.Limiter
	log     *zap.Logger
}

// NewClient creates a Canvas client from configuration
func NewClient(cfg *config.CanvasConfig, tokens TokenSource, log *zap.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &Client{
		baseURL: cfg.APIURL,
		tokens:  tokens,
		http:    &http.Client{Timeout: timeout},
		timeout: timeout,
		limiter: limiter,
		log:     log,
	}
}

// RootAccount fetches the account the API token is scoped to
func (c *Client) RootAccount(ctx context.Context) (*Account, error) {
	var account Account
	if err := c.call(ctx, "root_account", http.MethodGet, "/accounts/self", nil, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// SubAccounts lists the direct children of an account
func (c *Client) SubAccounts(ctx context.Context, accountID string) ([]Account, error) {
	var accounts []Account
	path := fmt.Sprintf("/accounts/%s/sub_accounts", accountID)
	if err := c.call(ctx, "sub_accounts", http.MethodGet, path, nil, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// CreateCourse creates one course shell under an account
func (c *Client) CreateCourse(ctx context.Context, accountID string, spec CourseSpec) (*Course, error) {
	var course Course
	path := fmt.Sprintf("/accounts/%s/courses", accountID)
	if err := c.call(ctx, "create_course", http.MethodPost, path, spec.payload(), &course); err != nil {
		return nil, err
	}
	return &course, nil
}

// call performs one API request. A 401 triggers a single transparent
// token refresh and retry when the token source supports it.
func (c *Client) call(ctx context.Context, operation, method, path string, payload, out interface{}) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	err = c.do(ctx, operation, method, path, payload, token, out)

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
		if refreshable, ok := c.tokens.(RefreshableTokenSource); ok {
			c.log.Warn("Canvas rejected token, refreshing",
				zap.String("operation", operation))
			fresh, refreshErr := refreshable.Refresh(ctx)
			if refreshErr != nil {
				return fmt.Errorf("canvas token refresh failed: %w", refreshErr)
			}
			err = c.do(ctx, operation, method, path, payload, fresh, out)
		}
	}

	return err
}

func (c *Client) do(ctx context.Context, operation, method, path string, payload interface{}, token string, out interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	defer prometheus.TrackCanvasRequest(operation)(time.Now())

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		prometheus.CanvasErrorsCounter.WithLabelValues(operation).Inc()
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		prometheus.CanvasErrorsCounter.WithLabelValues(operation).Inc()
		return &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decoding canvas response: %w", err)
		}
	}
	return nil
}
