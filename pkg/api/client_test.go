package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"ai-workspace-editor/internal/dto"
	"ai-workspace-editor/internal/entity"
	"ai-workspace-editor/internal/pkg/logger"
	"ai-workspace-editor/internal/repository/memory"
	"ai-workspace-editor/internal/service"
	"ai-workspace-editor/pkg/api"
	"ai-workspace-editor/pkg/devserver"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "ada@example.com"
	testPassword = "correct-horse"
)

func startBackend(t *testing.T) (*devserver.Server, string) {
	t.Helper()
	srv, err := devserver.New(devserver.Config{
		APIPath: "/api",
		Users:   map[string]string{testEmail: testPassword},
	}, logger.NewNopLogger())
	require.NoError(t, err)

	addr, err := srv.Start("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	return srv, "http://" + addr + "/api"
}

func newClient(baseURL string) (*api.Client, service.ITokenService) {
	tokens := service.NewTokenService(service.TokenServiceConfig{
		RefreshURL: baseURL + "/refresh",
	}, memory.NewCredentialRepository(), nil, logger.NewNopLogger())

	client := api.NewClient(api.Config{
		BaseURL:      baseURL,
		ClientID:     "string",
		ClientSecret: "string",
		Timeout:      5 * time.Second,
	}, tokens, logger.NewNopLogger())
	return client, tokens
}

func login(t *testing.T, client *api.Client, tokens service.ITokenService) *dto.LoginResponse {
	t.Helper()
	resp, err := client.Login(context.Background(), dto.LoginRequest{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	require.NoError(t, tokens.SetAuth(context.Background(), entity.TokenPair{
		AccessToken:   resp.AccessToken,
		AccessExpiry:  resp.AccessExpirationTime,
		RefreshToken:  resp.RefreshToken,
		RefreshExpiry: resp.RefreshExpirationTime,
	}))
	return resp
}

func TestLoginAndUserInfo(t *testing.T) {
	_, base := startBackend(t)
	client, tokens := newClient(base)

	resp := login(t, client, tokens)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Greater(t, resp.AccessExpirationTime, time.Now().Unix())
	assert.Greater(t, resp.RefreshExpirationTime, resp.AccessExpirationTime)
	assert.Equal(t, "ada", resp.User.UserNickname)

	info, err := client.UserInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testEmail, info.Email)
	assert.Equal(t, resp.User.UserId, info.UserId)
}

func TestLoginWrongPassword(t *testing.T) {
	_, base := startBackend(t)
	client, _ := newClient(base)

	_, err := client.Login(context.Background(), dto.LoginRequest{Email: testEmail, Password: "nope"})

	var apiErr *api.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "Incorrect email or password", apiErr.Detail)
}

func TestRegisterThenLogin(t *testing.T) {
	_, base := startBackend(t)
	client, _ := newClient(base)

	reg, err := client.Register(context.Background(), dto.RegisterRequest{
		Email:        "grace@example.com",
		UserNickname: "grace",
		Password:     "hopper-1906",
	})
	require.NoError(t, err)
	assert.Equal(t, "grace", reg.UserNickname)

	resp, err := client.Login(context.Background(), dto.LoginRequest{Email: "grace@example.com", Password: "hopper-1906"})
	require.NoError(t, err)
	assert.Equal(t, reg.UserId, resp.User.UserId)

	_, err = client.Register(context.Background(), dto.RegisterRequest{Email: "grace@example.com", Password: "x"})
	var apiErr *api.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
}

func TestUnauthorizedTriggersRefreshAndRetry(t *testing.T) {
	srv, base := startBackend(t)
	client, tokens := newClient(base)
	first := login(t, client, tokens)

	srv.InvalidateAccessTokens()

	list, err := client.ListAssistants(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Equal(t, int64(1), srv.Stats().Refreshes)
	assert.NotEqual(t, first.AccessToken, tokens.Snapshot().AccessToken)
}

func TestRefreshFailureLogsOut(t *testing.T) {
	srv, base := startBackend(t)
	client, tokens := newClient(base)
	login(t, client, tokens)

	srv.InvalidateAccessTokens()
	srv.RevokeRefreshTokens()

	_, err := client.UserInfo(context.Background())
	assert.ErrorIs(t, err, service.ErrRefreshFailed)
	assert.Nil(t, tokens.Snapshot())
}

func TestExpiredSessionFailsWithoutNetwork(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer server.Close()

	client, tokens := newClient(server.URL)
	require.NoError(t, tokens.SetAuth(context.Background(), entity.TokenPair{
		AccessToken:   "a",
		AccessExpiry:  time.Now().Add(-time.Hour).Unix(),
		RefreshToken:  "r",
		RefreshExpiry: time.Now().Add(-time.Minute).Unix(),
	}))

	_, err := client.ListAssistants(context.Background())
	assert.ErrorIs(t, err, api.ErrSessionExpired)
	assert.Zero(t, atomic.LoadInt32(&hits))
	assert.True(t, tokens.SessionExpired())
}

type alwaysRefreshable struct {
	refreshes int32
	logouts   int32
}

func (m *alwaysRefreshable) GetAccessToken() (string, bool) { return "stale", true }
func (m *alwaysRefreshable) RefreshAccessToken(ctx context.Context) (string, error) {
	atomic.AddInt32(&m.refreshes, 1)
	return "still-stale", nil
}
func (m *alwaysRefreshable) CanMakeRequest() bool          { return true }
func (m *alwaysRefreshable) CanRefresh() bool              { return true }
func (m *alwaysRefreshable) ShouldRefresh(status int) bool { return status == http.StatusUnauthorized }
func (m *alwaysRefreshable) Logout(ctx context.Context) error {
	atomic.AddInt32(&m.logouts, 1)
	return nil
}

func TestRefreshBudgetIsBounded(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"token rejected"}`))
	}))
	defer server.Close()

	tokens := &alwaysRefreshable{}
	client := api.NewClient(api.Config{BaseURL: server.URL}, tokens, logger.NewNopLogger())

	_, err := client.UserInfo(context.Background())

	var apiErr *api.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "token rejected", apiErr.Detail)
	assert.Equal(t, int32(3), atomic.LoadInt32(&tokens.refreshes))
	assert.Equal(t, int32(4), atomic.LoadInt32(&hits))
}

func TestAssistantLifecycle(t *testing.T) {
	_, base := startBackend(t)
	client, tokens := newClient(base)
	login(t, client, tokens)
	ctx := context.Background()

	created, err := client.CreateAssistant(ctx, dto.CreateAssistantRequest{AssistantName: "Editor", LlmProvider: "qwen"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.AssistantId)

	updated, err := client.UpdateAssistant(ctx, dto.UpdateAssistantRequest{
		AssistantId:      created.AssistantId,
		AssistantName:    "Copy editor",
		Reflections:      dto.Reflections{StyleGuidelines: []string{"short sentences"}},
		UserDefinedRules: []string{"no emoji"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Copy editor", updated.AssistantName)
	assert.Equal(t, "qwen", updated.LlmProvider)

	list, err := client.ListAssistants(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, []string{"no emoji"}, list[0].UserDefinedRules)

	require.NoError(t, client.DeleteAssistant(ctx, created.AssistantId))
	err = client.DeleteAssistant(ctx, created.AssistantId)
	var apiErr *api.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestChatCompletion(t *testing.T) {
	_, base := startBackend(t)
	client, tokens := newClient(base)
	login(t, client, tokens)

	resp, err := client.ChatCompletion(context.Background(), dto.ChatRequest{
		AssistantId: "a1",
		Messages:    []dto.ChatMessageDTO{{Role: "user", Content: "/replace 2 better line"}},
		Article:     dto.ArticleData{FileName: "notes.md", Content: "# Notes\nold line", FileCategory: entity.FileCategoryEditable},
	})
	require.NoError(t, err)
	assert.Equal(t, "You said: /replace 2 better line", resp.Content)
	assert.Contains(t, resp.EditedArticle, "<line_2>better line</line_2>")
	assert.Equal(t, "notes.md", resp.EditedArticleRelatedTo)
}

func TestLogout(t *testing.T) {
	_, base := startBackend(t)
	client, tokens := newClient(base)
	login(t, client, tokens)

	assert.NoError(t, client.Logout(context.Background()))
}
