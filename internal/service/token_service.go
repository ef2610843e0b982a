package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"ai-workspace-editor/internal/dto"
	"ai-workspace-editor/internal/entity"
	"ai-workspace-editor/internal/pkg/logger"
	"ai-workspace-editor/internal/repository/contract"
	"ai-workspace-editor/pkg/events"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

const (
	tokenModule         = "TokenService"
	refreshFlightKey    = "refresh"
	defaultRefreshLimit = 30 * time.Second
)

var (
	ErrSessionExpired   = errors.New("session expired")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrRefreshFailed    = errors.New("token refresh failed")
)

type ITokenService interface {
	// GetAccessToken returns the access token only while both tokens are live. It never refreshes.
	GetAccessToken() (string, bool)
	// RefreshAccessToken exchanges the refresh token for a new access token.
	// Concurrent callers share a single exchange and its outcome.
	RefreshAccessToken(ctx context.Context) (string, error)
	CanMakeRequest() bool
	CanRefresh() bool
	ShouldRefresh(status int) bool
	SetAuth(ctx context.Context, pair entity.TokenPair) error
	Logout(ctx context.Context) error
	Snapshot() *entity.TokenPair
	SessionExpired() bool
	// Restore loads a previously saved pair, if any.
	Restore(ctx context.Context) error
}

type TokenServiceConfig struct {
	RefreshURL string
	HTTPClient *http.Client
	Now        func() time.Time
}

type tokenService struct {
	cfg       TokenServiceConfig
	repo      contract.CredentialRepository
	publisher events.Publisher
	logger    logger.ILogger
	validate  *validator.Validate

	mu             sync.RWMutex
	pair           *entity.TokenPair
	sessionExpired bool

	refreshGroup singleflight.Group
}

func NewTokenService(cfg TokenServiceConfig, repo contract.CredentialRepository, publisher events.Publisher, log logger.ILogger) ITokenService {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: defaultRefreshLimit}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &tokenService{
		cfg:       cfg,
		repo:      repo,
		publisher: publisher,
		logger:    log,
		validate:  validator.New(),
	}
}

func (s *tokenService) GetAccessToken() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.cfg.Now()
	if s.pair.RefreshExpired(now) || s.pair.AccessExpired(now) {
		return "", false
	}
	return s.pair.AccessToken, true
}

func (s *tokenService) CanRefresh() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.pair.RefreshExpired(s.cfg.Now())
}

func (s *tokenService) ShouldRefresh(status int) bool {
	return status == http.StatusUnauthorized && s.CanRefresh()
}

// CanMakeRequest is the only place that raises the session-expired signal.
func (s *tokenService) CanMakeRequest() bool {
	s.mu.Lock()
	if !s.pair.RefreshExpired(s.cfg.Now()) {
		s.mu.Unlock()
		return true
	}
	signal := s.pair != nil && !s.sessionExpired
	if s.pair != nil {
		s.sessionExpired = true
	}
	s.mu.Unlock()

	if signal {
		s.logger.Warn(tokenModule, "Refresh token expired, session is over", nil)
		s.publish(events.New(events.SessionExpired, nil))
	}
	return false
}

func (s *tokenService) SessionExpired() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionExpired
}

func (s *tokenService) SetAuth(ctx context.Context, pair entity.TokenPair) error {
	if err := s.validate.Struct(pair); err != nil {
		return fmt.Errorf("invalid token pair: %w", err)
	}

	s.mu.Lock()
	stored := pair
	s.pair = &stored
	s.sessionExpired = false
	s.mu.Unlock()

	if err := s.repo.Save(ctx, &pair); err != nil {
		s.logger.Error(tokenModule, "Failed to persist credentials", map[string]interface{}{"error": err.Error()})
		return err
	}
	return nil
}

func (s *tokenService) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.pair = nil
	s.mu.Unlock()

	if err := s.repo.Clear(ctx); err != nil {
		s.logger.Error(tokenModule, "Failed to clear stored credentials", map[string]interface{}{"error": err.Error()})
		return err
	}
	s.logger.Info(tokenModule, "Credentials cleared", nil)
	return nil
}

func (s *tokenService) Snapshot() *entity.TokenPair {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pair == nil {
		return nil
	}
	cp := *s.pair
	return &cp
}

func (s *tokenService) Restore(ctx context.Context) error {
	pair, err := s.repo.Load(ctx)
	if err != nil {
		return err
	}
	if pair == nil {
		return nil
	}
	s.mu.Lock()
	s.pair = pair
	s.mu.Unlock()
	return nil
}

func (s *tokenService) RefreshAccessToken(ctx context.Context) (string, error) {
	// The shared exchange must outlive any one caller's cancellation.
	ch := s.refreshGroup.DoChan(refreshFlightKey, func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultRefreshLimit)
		defer cancel()
		return s.refresh(fctx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *tokenService) refresh(ctx context.Context) (string, error) {
	// 1. A live refresh token is a precondition
	s.mu.RLock()
	pair := s.pair
	var refreshToken string
	if pair != nil {
		refreshToken = pair.RefreshToken
	}
	expired := pair.RefreshExpired(s.cfg.Now())
	s.mu.RUnlock()

	if pair == nil {
		return "", ErrNotAuthenticated
	}
	if expired {
		return "", ErrSessionExpired
	}

	// 2. Exchange it
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.RefreshURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+refreshToken)
	req.Header.Set("Accept", "application/json")

	resp, err := s.cfg.HTTPClient.Do(req)
	if err != nil {
		s.logger.Error(tokenModule, "Token refresh request failed", map[string]interface{}{"error": err.Error()})
		return "", fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", ErrRefreshFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		var errResp dto.ErrorResponse
		_ = json.Unmarshal(body, &errResp)
		s.logger.Error(tokenModule, "Token refresh rejected", map[string]interface{}{
			"status": resp.StatusCode,
			"detail": errResp.Detail,
		})
		return "", fmt.Errorf("%w: status %d: %s", ErrRefreshFailed, resp.StatusCode, errResp.Detail)
	}

	var refreshed dto.RefreshResponse
	if err := json.Unmarshal(body, &refreshed); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrRefreshFailed, err)
	}
	if refreshed.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrRefreshFailed)
	}
	if refreshed.AccessExpirationTime == 0 {
		refreshed.AccessExpirationTime = tokenExpiry(refreshed.AccessToken)
	}

	// 3. Mutate the access half in place, unless the pair was replaced meanwhile
	s.mu.Lock()
	if s.pair == nil || s.pair.RefreshToken != refreshToken {
		s.mu.Unlock()
		return "", ErrNotAuthenticated
	}
	s.pair.AccessToken = refreshed.AccessToken
	s.pair.AccessExpiry = refreshed.AccessExpirationTime
	updated := *s.pair
	s.mu.Unlock()

	if err := s.repo.Save(ctx, &updated); err != nil {
		s.logger.Warn(tokenModule, "Failed to persist refreshed token", map[string]interface{}{"error": err.Error()})
	}
	s.logger.Info(tokenModule, "Access token refreshed", map[string]interface{}{
		"expires_at": refreshed.AccessExpirationTime,
	})
	return refreshed.AccessToken, nil
}

func (s *tokenService) publish(evt events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(context.Background(), evt); err != nil {
		s.logger.Error(tokenModule, "Failed to publish event", map[string]interface{}{
			"event": evt.EventType(),
			"error": err.Error(),
		})
	}
}

// tokenExpiry reads the exp claim of a JWT without verifying it. Zero if absent.
func tokenExpiry(token string) int64 {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return 0
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return 0
	}
	return exp.Unix()
}
