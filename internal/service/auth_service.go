package service

import (
	"context"
	"fmt"

	"ai-workspace-editor/internal/dto"
	"ai-workspace-editor/internal/entity"
	"ai-workspace-editor/internal/pkg/logger"
	"ai-workspace-editor/pkg/events"

	"github.com/go-playground/validator/v10"
)

const authModule = "AuthService"

// AuthGateway is the slice of the backend API the auth flow needs.
type AuthGateway interface {
	Login(ctx context.Context, req dto.LoginRequest) (*dto.LoginResponse, error)
	Logout(ctx context.Context) error
	Register(ctx context.Context, req dto.RegisterRequest) (*dto.RegisterResponse, error)
	UserInfo(ctx context.Context) (*dto.UserInfoResponse, error)
}

// SessionCloser is implemented by the streaming session.
type SessionCloser interface {
	Disconnect()
}

type IAuthService interface {
	Login(ctx context.Context, req dto.LoginRequest) (*entity.User, error)
	Register(ctx context.Context, req dto.RegisterRequest) (*entity.User, error)
	Logout(ctx context.Context) error
	CurrentUser(ctx context.Context) (*entity.User, error)
	IsAuthenticated() bool
}

type authService struct {
	api       AuthGateway
	tokens    ITokenService
	session   SessionCloser
	publisher events.Publisher
	validate  *validator.Validate
	logger    logger.ILogger
}

func NewAuthService(api AuthGateway, tokens ITokenService, session SessionCloser, publisher events.Publisher, log logger.ILogger) IAuthService {
	return &authService{
		api:       api,
		tokens:    tokens,
		session:   session,
		publisher: publisher,
		validate:  validator.New(),
		logger:    log,
	}
}

func (s *authService) Login(ctx context.Context, req dto.LoginRequest) (*entity.User, error) {
	// 1. Validate
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid login request: %w", err)
	}

	// 2. Password grant
	resp, err := s.api.Login(ctx, req)
	if err != nil {
		s.logger.Warn(authModule, "Login failed", map[string]interface{}{"email": req.Email, "error": err.Error()})
		return nil, err
	}

	// 3. Store the pair
	if err := s.tokens.SetAuth(ctx, entity.TokenPair{
		AccessToken:   resp.AccessToken,
		AccessExpiry:  resp.AccessExpirationTime,
		RefreshToken:  resp.RefreshToken,
		RefreshExpiry: resp.RefreshExpirationTime,
	}); err != nil {
		return nil, fmt.Errorf("store credentials: %w", err)
	}

	user := &entity.User{Id: resp.User.UserId, Email: req.Email, Nickname: resp.User.UserNickname}

	// 4. Announce
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, events.New(events.UserLoggedIn, map[string]interface{}{
			"user_id": user.Id,
			"email":   user.Email,
		})); err != nil {
			s.logger.Warn(authModule, "Failed to publish login event", map[string]interface{}{"error": err.Error()})
		}
	}

	s.logger.Info(authModule, "User logged in", map[string]interface{}{"user_id": user.Id})
	return user, nil
}

func (s *authService) Register(ctx context.Context, req dto.RegisterRequest) (*entity.User, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid register request: %w", err)
	}
	resp, err := s.api.Register(ctx, req)
	if err != nil {
		return nil, err
	}
	return &entity.User{Id: resp.UserId, Email: resp.Email, Nickname: resp.UserNickname}, nil
}

// Logout always clears local state; the server call is best effort.
func (s *authService) Logout(ctx context.Context) error {
	if err := s.api.Logout(ctx); err != nil {
		s.logger.Warn(authModule, "Server logout failed, clearing local session anyway", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if s.session != nil {
		s.session.Disconnect()
	}
	if err := s.tokens.Logout(ctx); err != nil {
		return err
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, events.New(events.UserLoggedOut, nil)); err != nil {
			s.logger.Warn(authModule, "Failed to publish logout event", map[string]interface{}{"error": err.Error()})
		}
	}
	s.logger.Info(authModule, "User logged out", nil)
	return nil
}

func (s *authService) CurrentUser(ctx context.Context) (*entity.User, error) {
	info, err := s.api.UserInfo(ctx)
	if err != nil {
		return nil, err
	}
	return &entity.User{Id: info.UserId, Email: info.Email, Nickname: info.UserNickname}, nil
}

func (s *authService) IsAuthenticated() bool {
	_, ok := s.tokens.GetAccessToken()
	return ok || s.tokens.CanRefresh()
}
