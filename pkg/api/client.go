package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ai-workspace-editor/internal/dto"
	"ai-workspace-editor/internal/pkg/logger"

	"golang.org/x/oauth2"
)

const (
	logModule                 = "APIClient"
	defaultMaxRefreshAttempts = 3
	defaultTimeout            = 120 * time.Second
)

var (
	ErrSessionExpired         = errors.New("session expired")
	ErrAuthenticationRequired = errors.New("authentication required")
)

// publicPaths never carry an Authorization header.
var publicPaths = map[string]bool{
	"/login":    true,
	"/register": true,
}

// TokenManager is the part of the credential manager the client relies on.
type TokenManager interface {
	GetAccessToken() (string, bool)
	RefreshAccessToken(ctx context.Context) (string, error)
	CanMakeRequest() bool
	CanRefresh() bool
	ShouldRefresh(status int) bool
	Logout(ctx context.Context) error
}

// APIError is a non-2xx answer from the backend.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("api error %d", e.StatusCode)
}

type Config struct {
	BaseURL            string
	ClientID           string
	ClientSecret       string
	Timeout            time.Duration
	MaxRefreshAttempts int
	HTTPClient         *http.Client
}

type Client struct {
	baseURL            string
	http               *http.Client
	oauth              *oauth2.Config
	tokens             TokenManager
	maxRefreshAttempts int
	logger             logger.ILogger
}

func NewClient(cfg Config, tokens TokenManager, log logger.ILogger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRefreshAttempts <= 0 {
		cfg.MaxRefreshAttempts = defaultMaxRefreshAttempts
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	base := strings.TrimSuffix(cfg.BaseURL, "/")

	return &Client{
		baseURL: base,
		http:    httpClient,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  base + "/login",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		tokens:             tokens,
		maxRefreshAttempts: cfg.MaxRefreshAttempts,
		logger:             log,
	}
}

type request struct {
	method string
	path   string
	query  url.Values
	body   interface{}
}

// do sends req with a bearer token and decodes a 2xx JSON answer into out.
// A 401 triggers a token refresh and a retry, at most maxRefreshAttempts times.
func (c *Client) do(ctx context.Context, req request, out interface{}) error {
	public := publicPaths[req.path]

	var token string
	if !public {
		if !c.tokens.CanMakeRequest() {
			return ErrSessionExpired
		}
		var err error
		token, err = c.currentToken(ctx)
		if err != nil {
			c.forceLogout(ctx, err)
			return fmt.Errorf("%w: %v", ErrAuthenticationRequired, err)
		}
	}

	refreshAttempts := 0
	for {
		status, body, err := c.send(ctx, req, token)
		if err != nil {
			return err
		}

		if status == http.StatusUnauthorized && !public &&
			c.tokens.ShouldRefresh(status) && refreshAttempts < c.maxRefreshAttempts {
			refreshAttempts++
			c.logger.Info(logModule, "Access token rejected, refreshing", map[string]interface{}{
				"path":    req.path,
				"attempt": refreshAttempts,
			})
			token, err = c.tokens.RefreshAccessToken(ctx)
			if err != nil {
				c.forceLogout(ctx, err)
				return err
			}
			continue
		}

		if status < 200 || status >= 300 {
			return newAPIError(status, body)
		}
		if out == nil || len(body) == 0 {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode %s response: %w", req.path, err)
		}
		return nil
	}
}

func (c *Client) currentToken(ctx context.Context) (string, error) {
	if token, ok := c.tokens.GetAccessToken(); ok {
		return token, nil
	}
	if c.tokens.CanRefresh() {
		return c.tokens.RefreshAccessToken(ctx)
	}
	return "", ErrSessionExpired
}

func (c *Client) send(ctx context.Context, req request, token string) (int, []byte, error) {
	endpoint := c.baseURL + req.path
	if len(req.query) > 0 {
		endpoint += "?" + req.query.Encode()
	}

	var payload io.Reader
	if req.body != nil {
		data, err := json.Marshal(req.body)
		if err != nil {
			return 0, nil, fmt.Errorf("encode %s request: %w", req.path, err)
		}
		payload = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, endpoint, payload)
	if err != nil {
		return 0, nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger.Error(logModule, "Request failed", map[string]interface{}{
			"method": req.method,
			"path":   req.path,
			"error":  err.Error(),
		})
		return 0, nil, fmt.Errorf("%s %s: %w", req.method, req.path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read %s response: %w", req.path, err)
	}
	return resp.StatusCode, body, nil
}

func (c *Client) forceLogout(ctx context.Context, cause error) {
	c.logger.Warn(logModule, "Authentication lost, logging out", map[string]interface{}{"error": cause.Error()})
	if err := c.tokens.Logout(ctx); err != nil {
		c.logger.Error(logModule, "Logout after auth failure failed", map[string]interface{}{"error": err.Error()})
	}
}

func newAPIError(status int, body []byte) *APIError {
	var errResp dto.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Detail == "" {
		errResp.Detail = strings.TrimSpace(string(body))
	}
	return &APIError{StatusCode: status, Detail: errResp.Detail}
}
