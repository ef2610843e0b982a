// Package devserver is an in-process stand-in for the assistant backend:
// the REST endpoints, token issuance and the /chat/stream websocket.
// It backs the package tests and cmd/devserver.
package devserver

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"ai-workspace-editor/internal/pkg/logger"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const logModule = "DevServer"

type Config struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// APIPath prefixes every route, e.g. "/api".
	APIPath string
	// Users maps email to plaintext password for accounts present at start.
	Users      map[string]string
	Responder  Responder
	ChunkDelay time.Duration
}

// Stats counts what the server has seen; tests assert on it.
type Stats struct {
	Logins         int64
	Refreshes      int64
	Completions    int64
	StreamAuths    int64
	StreamRequests int64
	ActiveStreams  int
}

type user struct {
	Id           uuid.UUID
	Email        string
	Nickname     string
	PasswordHash []byte
}

type Server struct {
	cfg    Config
	app    *fiber.App
	hub    *Hub
	logger logger.ILogger

	mu         sync.RWMutex
	users      map[string]*user
	assistants map[string]*assistant

	accessGen  int64
	refreshGen int64

	logins, refreshes, completions, streamAuths, streamRequests int64

	listener net.Listener
}

func New(cfg Config, log logger.ILogger) (*Server, error) {
	if cfg.Secret == "" {
		cfg.Secret = "dev-secret"
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 24 * time.Hour
	}
	if cfg.Responder == nil {
		cfg.Responder = EchoResponder
	}
	cfg.APIPath = strings.TrimSuffix(cfg.APIPath, "/")

	s := &Server{
		cfg:        cfg,
		hub:        NewHub(log),
		logger:     log,
		users:      make(map[string]*user),
		assistants: make(map[string]*assistant),
	}
	for email, password := range cfg.Users {
		if _, err := s.addUser(email, strings.Split(email, "@")[0], password); err != nil {
			return nil, err
		}
	}

	app := fiber.New(fiber.Config{
		BodyLimit:             10 * 1024 * 1024,
		DisableStartupMessage: true,
	})
	app.Use(otelfiber.Middleware())
	s.registerRoutes(app)
	s.app = app

	return s, nil
}

func (s *Server) registerRoutes(app *fiber.App) {
	api := app.Group(s.cfg.APIPath)

	api.Post("/login", s.handleLogin)
	api.Post("/register", s.handleRegister)
	api.Get("/refresh", s.handleRefresh)

	api.Post("/logout", s.authMiddleware, s.handleLogout)
	api.Get("/user/my_info", s.authMiddleware, s.handleUserInfo)

	api.Get("/agent/list", s.authMiddleware, s.handleListAgents)
	api.Post("/agent/create", s.authMiddleware, s.handleCreateAgent)
	api.Post("/agent/delete", s.authMiddleware, s.handleDeleteAgent)
	api.Post("/agent/update", s.authMiddleware, s.handleUpdateAgent)

	api.Post("/chat/completion", s.authMiddleware, s.handleCompletion)

	api.Use("/chat/stream", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	api.Get("/chat/stream", websocket.New(s.serveStream))
}

// Start listens on addr ("127.0.0.1:0" picks a free port) and serves in the background.
func (s *Server) Start(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("listen %s: %w", addr, err)
	}
	s.listener = ln
	go s.hub.Run()
	go func() {
		if err := s.app.Listener(ln); err != nil {
			s.logger.Error(logModule, "Server stopped", map[string]interface{}{"error": err.Error()})
		}
	}()
	s.logger.Info(logModule, "Dev backend listening", map[string]interface{}{"addr": ln.Addr().String()})
	return ln.Addr().String(), nil
}

// Listen serves on addr and blocks.
func (s *Server) Listen(addr string) error {
	go s.hub.Run()
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.CloseAll(websocket.CloseGoingAway)
	s.hub.Stop()
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) App() *fiber.App {
	return s.app
}

// InvalidateAccessTokens makes every access token issued so far fail with 401.
func (s *Server) InvalidateAccessTokens() {
	atomic.AddInt64(&s.accessGen, 1)
}

// RevokeRefreshTokens makes every refresh token issued so far unusable.
func (s *Server) RevokeRefreshTokens() {
	atomic.AddInt64(&s.refreshGen, 1)
}

// DropStreams ends every open stream. Code 0 cuts the TCP connection without a close frame.
func (s *Server) DropStreams(code int) {
	s.hub.CloseAll(code)
}

func (s *Server) Stats() Stats {
	return Stats{
		Logins:         atomic.LoadInt64(&s.logins),
		Refreshes:      atomic.LoadInt64(&s.refreshes),
		Completions:    atomic.LoadInt64(&s.completions),
		StreamAuths:    atomic.LoadInt64(&s.streamAuths),
		StreamRequests: atomic.LoadInt64(&s.streamRequests),
		ActiveStreams:  s.hub.Count(),
	}
}

func (s *Server) addUser(email, nickname, password string) (*user, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := &user{Id: uuid.New(), Email: email, Nickname: nickname, PasswordHash: hash}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[email]; exists {
		return nil, fmt.Errorf("email already registered")
	}
	s.users[email] = u
	return u, nil
}

func (s *Server) userById(id string) *user {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Id.String() == id {
			return u
		}
	}
	return nil
}

func detail(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"detail": msg})
}
