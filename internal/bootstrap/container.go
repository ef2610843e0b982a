package bootstrap

import (
	"context"
	"fmt"

	"ai-workspace-editor/internal/config"
	"ai-workspace-editor/internal/pkg/logger"
	"ai-workspace-editor/internal/repository/contract"
	"ai-workspace-editor/internal/repository/implementation"
	"ai-workspace-editor/internal/repository/memory"
	"ai-workspace-editor/internal/service"
	"ai-workspace-editor/internal/tracer"
	"ai-workspace-editor/internal/websocket"
	"ai-workspace-editor/pkg/api"
	"ai-workspace-editor/pkg/database"
	"ai-workspace-editor/pkg/editpatch"
	"ai-workspace-editor/pkg/events"

	pktNats "ai-workspace-editor/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/redis/go-redis/v9"
)

const (
	logModule   = "Bootstrap"
	serviceName = "ai-workspace-editor"
)

type Container struct {
	Config *config.Config
	Logger logger.ILogger

	// Event plumbing
	Bus *events.Bus

	// Clients
	API     *api.Client
	Session *websocket.Session

	// Services
	TokenService        service.ITokenService
	AuthService         service.IAuthService
	AssistantService    service.IAssistantService
	ConversationService service.IConversationService
	ChatService         service.IChatService
	VersionService      service.IVersionService

	Documents contract.DocumentRepository

	closers []func(context.Context) error
}

// NewContainer builds every client once and wires it into the services.
func NewContainer(cfg *config.Config) (_ *Container, err error) {
	c := &Container{Config: cfg}
	defer func() {
		if err != nil {
			_ = c.Close(context.Background())
		}
	}()

	// 1. Loggers
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	frameLogger := logger.NewIsolatedLogger(cfg.App.StreamLogPath)
	c.Logger = sysLogger
	c.onClose(func(context.Context) error {
		_ = frameLogger.Close()
		return sysLogger.Close()
	})

	c.onClose(tracer.InitTracer(cfg.App.OtelEnabled, serviceName, sysLogger))

	// 2. Event bus, optionally mirrored to NATS
	c.Bus = events.NewBus(watermill.NewStdLogger(false, false))
	c.onClose(func(context.Context) error { return c.Bus.Close() })

	if cfg.Events.NatsURL != "" {
		natsPub, err := pktNats.NewPublisher(cfg.Events.NatsURL, sysLogger)
		if err != nil {
			sysLogger.Warn(logModule, "Failed to connect to NATS, events stay in-process", map[string]interface{}{"error": err.Error()})
		} else {
			c.Bus.Forward(natsPub)
			c.Bus.OnForwardError(func(err error) {
				sysLogger.Warn(logModule, "Event forward failed", map[string]interface{}{"error": err.Error()})
			})
			c.onClose(func(context.Context) error { natsPub.Close(); return nil })
		}
	}

	// 3. Storage
	ws, err := implementation.NewWorkspace(cfg.App.WorkspaceDir)
	if err != nil {
		return nil, err
	}
	c.Documents = implementation.NewWorkspaceDocumentRepository(ws)
	versions := implementation.NewWorkspaceVersionRepository(ws)

	var rdb *redis.Client
	if cfg.Storage.ConversationStore == "redis" || cfg.Storage.CredentialStore == "redis" {
		rdb, err = implementation.NewRedisClient(cfg.Storage.RedisURL)
		if err != nil {
			return nil, err
		}
		c.onClose(func(context.Context) error { return rdb.Close() })
	}

	conversations, err := c.conversationRepository(ws, rdb)
	if err != nil {
		return nil, err
	}

	var credentials contract.CredentialRepository
	if cfg.Storage.CredentialStore == "redis" {
		credentials = implementation.NewCredentialRepositoryRedis(rdb)
	} else {
		credentials = memory.NewCredentialRepository()
	}

	// 4. Credential manager and clients
	c.TokenService = service.NewTokenService(service.TokenServiceConfig{
		RefreshURL: cfg.Backend.APIURL + "/refresh",
	}, credentials, c.Bus, sysLogger)
	if err := c.TokenService.Restore(context.Background()); err != nil {
		sysLogger.Warn(logModule, "Failed to restore credentials", map[string]interface{}{"error": err.Error()})
	}

	c.API = api.NewClient(api.Config{
		BaseURL:            cfg.Backend.APIURL,
		ClientID:           cfg.Backend.ClientID,
		ClientSecret:       cfg.Backend.Secret,
		Timeout:            cfg.Backend.Timeout,
		MaxRefreshAttempts: cfg.Backend.MaxRefresh,
	}, c.TokenService, sysLogger)

	c.Session = websocket.NewSession(cfg.Backend.WSURL, c.TokenService, websocket.Options{
		PingInterval:     cfg.Stream.PingInterval,
		MaxReconnects:    cfg.Stream.MaxReconnects,
		HandshakeTimeout: cfg.Stream.HandshakeTimeout,
		WriteWait:        cfg.Stream.WriteWait,
		MaxMessageSize:   cfg.Stream.MaxMessageSize,
	}, sysLogger, frameLogger)
	c.Session.OnStateChange(func(from, to websocket.State) {
		_ = c.Bus.Publish(context.Background(), events.New(events.SessionStateChanged, map[string]interface{}{
			"from": from.String(),
			"to":   to.String(),
		}))
	})
	c.onClose(func(context.Context) error { c.Session.Disconnect(); return nil })

	// 5. Services
	c.AuthService = service.NewAuthService(c.API, c.TokenService, c.Session, c.Bus, sysLogger)
	c.AssistantService = service.NewAssistantService(c.API, sysLogger)
	c.ConversationService = service.NewConversationService(conversations, sysLogger)
	c.VersionService = service.NewVersionService(versions, c.Documents, sysLogger)
	c.ChatService = service.NewChatService(service.ChatServiceConfig{
		Streaming:   cfg.App.StreamingEnabled,
		TurnTimeout: cfg.Stream.StreamTurnTimeout,
	}, conversations, c.Documents, c.Session, c.API, c.TokenService,
		editpatch.NewEngine(sysLogger), c.Bus, sysLogger)

	sysLogger.Info(logModule, "Container ready", map[string]interface{}{
		"api_url":            cfg.Backend.APIURL,
		"ws_url":             cfg.Backend.WSURL,
		"conversation_store": cfg.Storage.ConversationStore,
		"workspace":          ws.Root(),
	})
	return c, nil
}

func (c *Container) conversationRepository(ws *implementation.Workspace, rdb *redis.Client) (contract.ConversationRepository, error) {
	cfg := c.Config.Storage
	switch cfg.ConversationStore {
	case "memory":
		return memory.NewConversationRepository(cfg.ConversationTTL), nil
	case "workspace":
		return implementation.NewConversationRepositoryFile(ws), nil
	case "redis":
		return implementation.NewConversationRepositoryRedis(rdb, cfg.ConversationTTL), nil
	case "postgres":
		db, err := database.NewGormDBFromDSN(cfg.DBConnection, !c.Config.IsProduction())
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		c.onClose(func(context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		})
		repo := implementation.NewConversationRepositoryGorm(db)
		if err := repo.(*implementation.ConversationRepositoryGorm).AutoMigrate(); err != nil {
			return nil, fmt.Errorf("migrate conversations: %w", err)
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown conversation store %q", cfg.ConversationStore)
	}
}

func (c *Container) onClose(fn func(context.Context) error) {
	c.closers = append(c.closers, fn)
}

// Close releases resources in reverse order of creation.
func (c *Container) Close(ctx context.Context) error {
	var first error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}
