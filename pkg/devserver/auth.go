package devserver

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"ai-workspace-editor/internal/dto"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

func (s *Server) issueToken(userId uuid.UUID, typ string) (string, int64, error) {
	ttl, gen := s.cfg.AccessTTL, atomic.LoadInt64(&s.accessGen)
	if typ == tokenTypeRefresh {
		ttl, gen = s.cfg.RefreshTTL, atomic.LoadInt64(&s.refreshGen)
	}
	exp := time.Now().Add(ttl).Unix()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userId.String(),
		"typ":     typ,
		"gen":     gen,
		"jti":     uuid.NewString(),
		"iat":     time.Now().Unix(),
		"exp":     exp,
	})
	signed, err := token.SignedString([]byte(s.cfg.Secret))
	return signed, exp, err
}

// verifyToken checks signature, expiry, type and generation; it returns the user id.
func (s *Server) verifyToken(tokenStr, typ string) (string, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(s.cfg.Secret), nil
	})
	if err != nil || !token.Valid {
		return "", errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || claims["typ"] != typ {
		return "", errors.New("invalid token claims")
	}

	current := atomic.LoadInt64(&s.accessGen)
	if typ == tokenTypeRefresh {
		current = atomic.LoadInt64(&s.refreshGen)
	}
	if gen, _ := claims["gen"].(float64); int64(gen) != current {
		return "", errors.New("token revoked")
	}

	userId, _ := claims["user_id"].(string)
	if userId == "" {
		return "", errors.New("token missing user_id")
	}
	return userId, nil
}

func bearer(c *fiber.Ctx) string {
	authHeader := c.Get("Authorization")
	if len(authHeader) < 7 || !strings.EqualFold(authHeader[:7], "Bearer ") {
		return ""
	}
	return authHeader[7:]
}

func (s *Server) authMiddleware(c *fiber.Ctx) error {
	tokenStr := bearer(c)
	if tokenStr == "" {
		return detail(c, fiber.StatusUnauthorized, "Missing token")
	}
	userId, err := s.verifyToken(tokenStr, tokenTypeAccess)
	if err != nil {
		return detail(c, fiber.StatusUnauthorized, "Could not validate credentials")
	}
	c.Locals("user_id", userId)
	return c.Next()
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	if c.FormValue("grant_type") != "password" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  "unsupported_grant_type",
			"detail": "grant_type must be password",
		})
	}
	email, password := c.FormValue("username"), c.FormValue("password")

	s.mu.RLock()
	u := s.users[email]
	s.mu.RUnlock()
	if u == nil || bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)) != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":  "invalid_grant",
			"detail": "Incorrect email or password",
		})
	}

	access, accessExp, err := s.issueToken(u.Id, tokenTypeAccess)
	if err != nil {
		return detail(c, fiber.StatusInternalServerError, err.Error())
	}
	refresh, refreshExp, err := s.issueToken(u.Id, tokenTypeRefresh)
	if err != nil {
		return detail(c, fiber.StatusInternalServerError, err.Error())
	}

	atomic.AddInt64(&s.logins, 1)
	return c.JSON(dto.LoginResponse{
		Messages:              "Login successful",
		AccessToken:           access,
		AccessExpirationTime:  accessExp,
		RefreshToken:          refresh,
		RefreshExpirationTime: refreshExp,
		TokenType:             "bearer",
		User: dto.LoginUserDTO{
			UserId:       u.Id.String(),
			UserNickname: u.Nickname,
		},
	})
}

func (s *Server) handleRegister(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return detail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if req.Email == "" || req.Password == "" {
		return detail(c, fiber.StatusUnprocessableEntity, "email and password are required")
	}

	u, err := s.addUser(req.Email, req.UserNickname, req.Password)
	if err != nil {
		return detail(c, fiber.StatusConflict, err.Error())
	}
	return c.Status(fiber.StatusCreated).JSON(dto.RegisterResponse{
		UserId:       u.Id.String(),
		Email:        u.Email,
		UserNickname: u.Nickname,
	})
}

func (s *Server) handleRefresh(c *fiber.Ctx) error {
	userId, err := s.verifyToken(bearer(c), tokenTypeRefresh)
	if err != nil {
		return detail(c, fiber.StatusUnauthorized, "Invalid refresh token")
	}
	id, err := uuid.Parse(userId)
	if err != nil {
		return detail(c, fiber.StatusUnauthorized, "Invalid refresh token")
	}

	access, exp, err := s.issueToken(id, tokenTypeAccess)
	if err != nil {
		return detail(c, fiber.StatusInternalServerError, err.Error())
	}
	atomic.AddInt64(&s.refreshes, 1)
	return c.JSON(dto.RefreshResponse{AccessToken: access, AccessExpirationTime: exp})
}

func (s *Server) handleLogout(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"messages": "Logout successful"})
}

func (s *Server) handleUserInfo(c *fiber.Ctx) error {
	u := s.userById(c.Locals("user_id").(string))
	if u == nil {
		return detail(c, fiber.StatusNotFound, "User not found")
	}
	return c.JSON(dto.UserInfoResponse{
		UserId:       u.Id.String(),
		Email:        u.Email,
		UserNickname: u.Nickname,
	})
}
