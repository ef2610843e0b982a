package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	App     AppConfig
	Backend BackendConfig
	Stream  StreamConfig
	Storage StorageConfig
	Events  EventsConfig
}

type AppConfig struct {
	Environment      string `validate:"required,oneof=development production test"`
	LogFilePath      string `validate:"required"`
	StreamLogPath    string `validate:"required"`
	WorkspaceDir     string `validate:"required"`
	StreamingEnabled bool
	OtelEnabled      bool
}

type BackendConfig struct {
	// Host (and optional port) of the assistant backend, e.g. "localhost:8000".
	Host       string `validate:"required"`
	APIPath    string
	Secure     bool
	APIURL     string `validate:"required,url"`
	WSURL      string `validate:"required"`
	ClientID   string
	Secret     string
	Timeout    time.Duration `validate:"gt=0"`
	MaxRefresh int           `validate:"gte=1"`
}

type StreamConfig struct {
	PingInterval      time.Duration `validate:"gt=0"`
	MaxReconnects     int           `validate:"gte=0"`
	HandshakeTimeout  time.Duration `validate:"gt=0"`
	WriteWait         time.Duration `validate:"gt=0"`
	MaxMessageSize    int64         `validate:"gt=0"`
	StreamTurnTimeout time.Duration `validate:"gt=0"`
}

type StorageConfig struct {
	// "memory", "workspace", "redis" or "postgres"
	ConversationStore string `validate:"required,oneof=memory workspace redis postgres"`
	CredentialStore   string `validate:"required,oneof=memory redis"`
	ConversationTTL   time.Duration
	RedisURL          string
	DBConnection      string
}

type EventsConfig struct {
	NatsURL string
}

var validate = validator.New()

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[FATAL] invalid configuration: %v", err)
	}
	return cfg
}

// FromEnv builds the configuration from the process environment only.
func FromEnv() *Config {
	environment := getEnv("APP_ENV", "development")
	host := getEnv("BACKEND_HOST", "localhost:8000")
	apiPath := strings.TrimRight(getEnv("BACKEND_API_PATH", ""), "/")
	secure := getEnvAsBool("BACKEND_SECURE", environment == "production")

	return &Config{
		App: AppConfig{
			Environment:      environment,
			LogFilePath:      getEnv("LOG_FILE_PATH", "logs/app.log"),
			StreamLogPath:    getEnv("STREAM_LOG_FILE_PATH", "logs/stream.log"),
			WorkspaceDir:     getEnv("WORKSPACE_DIR", "."),
			StreamingEnabled: getEnvAsBool("CHAT_STREAMING", true),
			OtelEnabled:      getEnvAsBool("OTEL_ENABLED", false),
		},
		Backend: BackendConfig{
			Host:       host,
			APIPath:    apiPath,
			Secure:     secure,
			APIURL:     getEnv("BACKEND_API_URL", BuildAPIURL(host, apiPath, secure)),
			WSURL:      getEnv("BACKEND_WS_URL", BuildWSURL(host, apiPath, secure)),
			ClientID:   getEnv("BACKEND_CLIENT_ID", "string"),
			Secret:     getEnv("BACKEND_CLIENT_SECRET", "string"),
			Timeout:    getEnvAsDuration("BACKEND_TIMEOUT", 120*time.Second),
			MaxRefresh: getEnvAsInt("BACKEND_MAX_REFRESH_ATTEMPTS", 3),
		},
		Stream: StreamConfig{
			PingInterval:      getEnvAsDuration("STREAM_PING_INTERVAL", 30*time.Second),
			MaxReconnects:     getEnvAsInt("STREAM_MAX_RECONNECTS", 5),
			HandshakeTimeout:  getEnvAsDuration("STREAM_HANDSHAKE_TIMEOUT", 10*time.Second),
			WriteWait:         getEnvAsDuration("STREAM_WRITE_WAIT", 10*time.Second),
			MaxMessageSize:    int64(getEnvAsInt("STREAM_MAX_MESSAGE_SIZE", 8*1024*1024)),
			StreamTurnTimeout: getEnvAsDuration("STREAM_TURN_TIMEOUT", 5*time.Minute),
		},
		Storage: StorageConfig{
			ConversationStore: getEnv("CONVERSATION_STORE", "workspace"),
			CredentialStore:   getEnv("CREDENTIAL_STORE", "memory"),
			ConversationTTL:   getEnvAsDuration("CONVERSATION_TTL", 0),
			RedisURL:          getEnv("REDIS_URL", "redis://localhost:6379"),
			DBConnection:      getEnv("DB_CONNECTION_STRING", ""),
		},
		Events: EventsConfig{
			NatsURL: getEnv("NATS_URL", ""),
		},
	}
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Storage.ConversationStore == "postgres" && c.Storage.DBConnection == "" {
		return fmt.Errorf("DB_CONNECTION_STRING is required for the postgres conversation store")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// BuildAPIURL mirrors how the web client derives its REST base URL.
func BuildAPIURL(host, apiPath string, secure bool) string {
	scheme := "http"
	if secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s%s", scheme, host, apiPath)
}

// BuildWSURL derives the streaming endpoint from the same host and path.
func BuildWSURL(host, apiPath string, secure bool) string {
	scheme := "ws"
	if secure {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s%s/chat/stream", scheme, host, apiPath)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
