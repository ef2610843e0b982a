package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ai-workspace-editor/internal/entity"
	"ai-workspace-editor/internal/pkg/logger"
	"ai-workspace-editor/internal/repository/memory"
	"ai-workspace-editor/pkg/events"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) ofType(eventType string) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, e := range p.events {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}

var fixedNow = time.Unix(1_700_000_000, 0)

func livePair() entity.TokenPair {
	return entity.TokenPair{
		AccessToken:   "access-1",
		AccessExpiry:  fixedNow.Unix() + 600,
		RefreshToken:  "refresh-1",
		RefreshExpiry: fixedNow.Unix() + 86400,
	}
}

func newTestTokenService(t *testing.T, refreshURL string) (ITokenService, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	svc := NewTokenService(TokenServiceConfig{
		RefreshURL: refreshURL,
		Now:        func() time.Time { return fixedNow },
	}, memory.NewCredentialRepository(), pub, logger.NewNopLogger())
	return svc, pub
}

func TestGetAccessToken(t *testing.T) {
	now := fixedNow.Unix()
	tests := []struct {
		name   string
		pair   *entity.TokenPair
		wantOk bool
	}{
		{name: "both live", pair: &entity.TokenPair{AccessToken: "a", AccessExpiry: now + 60, RefreshToken: "r", RefreshExpiry: now + 600}, wantOk: true},
		{name: "access expired", pair: &entity.TokenPair{AccessToken: "a", AccessExpiry: now - 1, RefreshToken: "r", RefreshExpiry: now + 600}},
		{name: "access inside safety margin", pair: &entity.TokenPair{AccessToken: "a", AccessExpiry: now + 5, RefreshToken: "r", RefreshExpiry: now + 600}},
		{name: "access just outside safety margin", pair: &entity.TokenPair{AccessToken: "a", AccessExpiry: now + 6, RefreshToken: "r", RefreshExpiry: now + 600}, wantOk: true},
		{name: "refresh expired, access live", pair: &entity.TokenPair{AccessToken: "a", AccessExpiry: now + 60, RefreshToken: "r", RefreshExpiry: now - 10}},
		{name: "no credentials"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestTokenService(t, "")
			if tt.pair != nil {
				svc.(*tokenService).pair = tt.pair
			}
			token, ok := svc.GetAccessToken()
			assert.Equal(t, tt.wantOk, ok)
			if tt.wantOk {
				assert.Equal(t, "a", token)
			} else {
				assert.Empty(t, token)
			}
		})
	}
}

func TestRefreshIsSingleFlight(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "Bearer refresh-1", r.Header.Get("Authorization"))
		time.Sleep(100 * time.Millisecond)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":           "access-2",
			"access_expiration_time": fixedNow.Unix() + 900,
		})
	}))
	defer server.Close()

	svc, _ := newTestTokenService(t, server.URL+"/refresh")
	require.NoError(t, svc.SetAuth(context.Background(), livePair()))

	const callers = 10
	var wg sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.RefreshAccessToken(context.Background())
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "access-2", results[i])
	}

	snap := svc.Snapshot()
	assert.Equal(t, "access-2", snap.AccessToken)
	assert.Equal(t, fixedNow.Unix()+900, snap.AccessExpiry)
	assert.Equal(t, "refresh-1", snap.RefreshToken)
}

func TestRefreshFailureReachesEveryWaiter(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"refresh token revoked"}`))
	}))
	defer server.Close()

	svc, _ := newTestTokenService(t, server.URL+"/refresh")
	require.NoError(t, svc.SetAuth(context.Background(), livePair()))

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.RefreshAccessToken(context.Background())
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrRefreshFailed)
		assert.Contains(t, err.Error(), "refresh token revoked")
	}
	assert.Equal(t, livePair(), *svc.Snapshot())
}

func TestRefreshWithExpiredRefreshTokenSkipsNetwork(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	svc, _ := newTestTokenService(t, server.URL+"/refresh")
	pair := livePair()
	pair.RefreshExpiry = fixedNow.Unix() - 1
	require.NoError(t, svc.SetAuth(context.Background(), pair))

	_, err := svc.RefreshAccessToken(context.Background())
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Zero(t, atomic.LoadInt32(&calls))

	svc2, _ := newTestTokenService(t, server.URL+"/refresh")
	_, err = svc2.RefreshAccessToken(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestRefreshDerivesExpiryFromJWT(t *testing.T) {
	exp := fixedNow.Add(15 * time.Minute)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"access_token": signed})
	}))
	defer server.Close()

	svc, _ := newTestTokenService(t, server.URL+"/refresh")
	require.NoError(t, svc.SetAuth(context.Background(), livePair()))

	token, err := svc.RefreshAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, signed, token)
	assert.Equal(t, exp.Unix(), svc.Snapshot().AccessExpiry)
}

func TestCanMakeRequestSignalsSessionExpiredOnce(t *testing.T) {
	svc, pub := newTestTokenService(t, "")
	pair := livePair()
	pair.RefreshExpiry = fixedNow.Unix() - 60
	require.NoError(t, svc.SetAuth(context.Background(), pair))

	assert.False(t, svc.CanMakeRequest())
	assert.False(t, svc.CanMakeRequest())
	assert.True(t, svc.SessionExpired())
	assert.Len(t, pub.ofType(events.SessionExpired), 1)

	require.NoError(t, svc.SetAuth(context.Background(), livePair()))
	assert.False(t, svc.SessionExpired())
	assert.True(t, svc.CanMakeRequest())
}

func TestCanMakeRequestWithoutCredentials(t *testing.T) {
	svc, pub := newTestTokenService(t, "")
	assert.False(t, svc.CanMakeRequest())
	assert.False(t, svc.SessionExpired())
	assert.Empty(t, pub.ofType(events.SessionExpired))
}

func TestShouldRefresh(t *testing.T) {
	svc, _ := newTestTokenService(t, "")
	assert.False(t, svc.ShouldRefresh(http.StatusUnauthorized))

	require.NoError(t, svc.SetAuth(context.Background(), livePair()))
	assert.True(t, svc.ShouldRefresh(http.StatusUnauthorized))
	assert.False(t, svc.ShouldRefresh(http.StatusForbidden))
	assert.False(t, svc.ShouldRefresh(http.StatusOK))
}

func TestSetAuthRejectsIncompletePair(t *testing.T) {
	svc, _ := newTestTokenService(t, "")
	err := svc.SetAuth(context.Background(), entity.TokenPair{AccessToken: "a"})
	assert.Error(t, err)
	assert.Nil(t, svc.Snapshot())
}

func TestLogoutAndRestore(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewCredentialRepository()
	opts := TokenServiceConfig{Now: func() time.Time { return fixedNow }}

	first := NewTokenService(opts, repo, nil, logger.NewNopLogger())
	require.NoError(t, first.SetAuth(ctx, livePair()))

	second := NewTokenService(opts, repo, nil, logger.NewNopLogger())
	require.NoError(t, second.Restore(ctx))
	token, ok := second.GetAccessToken()
	require.True(t, ok)
	assert.Equal(t, "access-1", token)

	require.NoError(t, second.Logout(ctx))
	_, ok = second.GetAccessToken()
	assert.False(t, ok)
	assert.False(t, second.CanRefresh())

	stored, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, stored)
}
