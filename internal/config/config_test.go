package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("BACKEND_HOST", "localhost:8000")
	t.Setenv("BACKEND_API_PATH", "/api/v1/")

	cfg := FromEnv()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "http://localhost:8000/api/v1", cfg.Backend.APIURL)
	assert.Equal(t, "ws://localhost:8000/api/v1/chat/stream", cfg.Backend.WSURL)
	assert.Equal(t, 30*time.Second, cfg.Stream.PingInterval)
	assert.Equal(t, 5, cfg.Stream.MaxReconnects)
	assert.Equal(t, 3, cfg.Backend.MaxRefresh)
	assert.Equal(t, "workspace", cfg.Storage.ConversationStore)
	assert.Equal(t, "memory", cfg.Storage.CredentialStore)
	assert.False(t, cfg.IsProduction())
}

func TestFromEnvProductionUsesSecureSchemes(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("BACKEND_HOST", "editor.example.com")
	t.Setenv("BACKEND_API_PATH", "/api")

	cfg := FromEnv()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "https://editor.example.com/api", cfg.Backend.APIURL)
	assert.Equal(t, "wss://editor.example.com/api/chat/stream", cfg.Backend.WSURL)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "unknown store", env: map[string]string{"CONVERSATION_STORE": "sqlite"}},
		{name: "postgres without dsn", env: map[string]string{"CONVERSATION_STORE": "postgres", "DB_CONNECTION_STRING": ""}},
		{name: "unknown environment", env: map[string]string{"APP_ENV": "staging"}},
		{name: "unknown credential store", env: map[string]string{"CREDENTIAL_STORE": "keychain"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			assert.Error(t, FromEnv().Validate())
		})
	}
}

func TestGetEnvFallbacks(t *testing.T) {
	t.Setenv("STREAM_PING_INTERVAL", "not-a-duration")
	t.Setenv("STREAM_MAX_RECONNECTS", "x")
	t.Setenv("CHAT_STREAMING", "false")

	cfg := FromEnv()
	assert.Equal(t, 30*time.Second, cfg.Stream.PingInterval)
	assert.Equal(t, 5, cfg.Stream.MaxReconnects)
	assert.False(t, cfg.App.StreamingEnabled)
}
