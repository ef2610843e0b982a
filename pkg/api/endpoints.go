package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"ai-workspace-editor/internal/dto"

	"golang.org/x/oauth2"
)

// Login runs the OAuth2 password grant against /login. The backend answers
// with extra fields (refresh expiry, user) which are lifted out of the token.
func (c *Client) Login(ctx context.Context, req dto.LoginRequest) (*dto.LoginResponse, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)

	tok, err := c.oauth.PasswordCredentialsToken(ctx, req.Email, req.Password)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			return nil, newAPIError(retrieveErr.Response.StatusCode, retrieveErr.Body)
		}
		return nil, fmt.Errorf("login: %w", err)
	}

	resp := &dto.LoginResponse{
		AccessToken:           tok.AccessToken,
		RefreshToken:          tok.RefreshToken,
		TokenType:             tok.TokenType,
		AccessExpirationTime:  extraInt64(tok, "access_expiration_time"),
		RefreshExpirationTime: extraInt64(tok, "refresh_expiration_time"),
	}
	if resp.AccessExpirationTime == 0 && !tok.Expiry.IsZero() {
		resp.AccessExpirationTime = tok.Expiry.Unix()
	}
	if user, ok := tok.Extra("user").(map[string]interface{}); ok {
		resp.User.UserId, _ = user["user_id"].(string)
		resp.User.UserNickname, _ = user["user_nickname"].(string)
	}
	if msg, ok := tok.Extra("messages").(string); ok {
		resp.Messages = msg
	}

	c.logger.Info(logModule, "Logged in", map[string]interface{}{"user_id": resp.User.UserId})
	return resp, nil
}

// Logout tells the backend to drop the session. Callers usually ignore the error.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, request{method: http.MethodPost, path: "/logout"}, nil)
}

func (c *Client) Register(ctx context.Context, req dto.RegisterRequest) (*dto.RegisterResponse, error) {
	var out dto.RegisterResponse
	if err := c.do(ctx, request{method: http.MethodPost, path: "/register", body: req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UserInfo(ctx context.Context) (*dto.UserInfoResponse, error) {
	var out dto.UserInfoResponse
	if err := c.do(ctx, request{method: http.MethodGet, path: "/user/my_info"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListAssistants(ctx context.Context) ([]dto.AssistantDTO, error) {
	var out []dto.AssistantDTO
	if err := c.do(ctx, request{method: http.MethodGet, path: "/agent/list"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateAssistant(ctx context.Context, req dto.CreateAssistantRequest) (*dto.AssistantDTO, error) {
	var out dto.AssistantDTO
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/agent/create",
		query: url.Values{
			"assistant_name": {req.AssistantName},
			"llm_provider":   {req.LlmProvider},
		},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteAssistant(ctx context.Context, assistantId string) error {
	return c.do(ctx, request{
		method: http.MethodPost,
		path:   "/agent/delete",
		query:  url.Values{"assistant_id": {assistantId}},
	}, nil)
}

func (c *Client) UpdateAssistant(ctx context.Context, req dto.UpdateAssistantRequest) (*dto.AssistantDTO, error) {
	var out dto.AssistantDTO
	if err := c.do(ctx, request{method: http.MethodPost, path: "/agent/update", body: req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChatCompletion is the blocking alternative to the stream endpoint.
func (c *Client) ChatCompletion(ctx context.Context, req dto.ChatRequest) (*dto.ChatResponse, error) {
	var out dto.ChatResponse
	if err := c.do(ctx, request{method: http.MethodPost, path: "/chat/completion", body: req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func extraInt64(tok *oauth2.Token, key string) int64 {
	switch v := tok.Extra(key).(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t.Unix()
		}
	}
	return 0
}
