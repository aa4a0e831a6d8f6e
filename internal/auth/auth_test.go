package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rleusmann/Cambridge-audio-custom/internal/config"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.JWTSecret = "0123456789abcdef0123456789abcdef"
	cfg.Device.Host = "receiver.local"
	return cfg
}

func protectedHandler(cfg config.Config) http.Handler {
	router := chi.NewRouter()
	tokens := NewTokens(cfg)
	router.Use(Middleware(cfg, tokens))
	router.Get("/v1/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	router.Get("/v1/media-player", func(w http.ResponseWriter, r *http.Request) {
		client, ok := ClientFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(client.ID))
	})
	RegisterRoutes(router, tokens)
	return router
}

func TestTokensIssueAndVerify(t *testing.T) {
	tokens := NewTokens(testConfig())

	pair, err := tokens.Issue(Client{ID: "dashboard", Name: "Kitchen tablet"})
	require.NoError(t, err)
	assert.Equal(t, time.Hour, pair.ExpiresIn)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)

	client, err := tokens.Verify(pair.AccessToken, UseAccess)
	require.NoError(t, err)
	assert.Equal(t, Client{ID: "dashboard", Name: "Kitchen tablet"}, client)
	assert.Equal(t, "Kitchen tablet", client.Label())

	_, err = tokens.Verify(pair.RefreshToken, UseAccess)
	assert.ErrorIs(t, err, ErrTokenUse)

	_, err = tokens.Issue(Client{Name: "anonymous"})
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokensRefresh(t *testing.T) {
	tokens := NewTokens(testConfig())
	pair, err := tokens.Issue(Client{ID: "dashboard"})
	require.NoError(t, err)

	_, _, err = tokens.Refresh(pair.AccessToken)
	assert.ErrorIs(t, err, ErrTokenUse)

	access, expiresIn, err := tokens.Refresh(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, expiresIn)
	client, err := tokens.Verify(access, UseAccess)
	require.NoError(t, err)
	assert.Equal(t, "dashboard", client.Label())
}

func TestTokensVerifyRejects(t *testing.T) {
	cfg := testConfig()
	tokens := NewTokens(cfg)
	pair, err := tokens.Issue(Client{ID: "dashboard"})
	require.NoError(t, err)

	other := cfg
	other.JWTSecret = strings.Repeat("x", 32)
	_, err = NewTokens(other).Verify(pair.AccessToken, UseAccess)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	expiring := cfg
	expiring.JWTAccessTokenExpirySec = -60
	expired, err := NewTokens(expiring).Issue(Client{ID: "dashboard"})
	require.NoError(t, err)
	_, err = tokens.Verify(expired.AccessToken, UseAccess)
	assert.ErrorIs(t, err, ErrTokenExpired)

	skewed := NewTokens(cfg)
	skewed.now = func() time.Time { return time.Now().Add(-time.Hour - 2*time.Second) }
	withinSkew, err := skewed.Issue(Client{ID: "dashboard"})
	require.NoError(t, err)
	_, err = tokens.Verify(withinSkew.AccessToken, UseAccess)
	assert.NoError(t, err, "expiry within the allowed clock skew")
}

func TestClientFromContext(t *testing.T) {
	_, ok := ClientFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithClient(context.Background(), MQTTClient)
	client, ok := ClientFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "MQTT bridge", client.Label())
	assert.Equal(t, "mqtt", Client{ID: "mqtt"}.Label())
}

func TestMiddleware(t *testing.T) {
	cfg := testConfig()
	handler := protectedHandler(cfg)
	pair, err := NewTokens(cfg).Issue(Client{ID: "dashboard"})
	require.NoError(t, err)

	cases := []struct {
		name   string
		path   string
		header map[string]string
		status int
	}{
		{"public health", "/v1/health", nil, http.StatusOK},
		{"missing header", "/v1/media-player", nil, http.StatusUnauthorized},
		{"wrong scheme", "/v1/media-player", map[string]string{"Authorization": "Basic abc"}, http.StatusUnauthorized},
		{"garbage token", "/v1/media-player", map[string]string{"Authorization": "Bearer abc"}, http.StatusUnauthorized},
		{"refresh token", "/v1/media-player", map[string]string{"Authorization": "Bearer " + pair.RefreshToken}, http.StatusUnauthorized},
		{"access token", "/v1/media-player", map[string]string{"Authorization": "Bearer " + pair.AccessToken}, http.StatusOK},
		{"test mode disabled", "/v1/media-player", map[string]string{"x-test-mode": "true"}, http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			for key, value := range tc.header {
				req.Header.Set(key, value)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestMiddlewareWebSocketQueryToken(t *testing.T) {
	cfg := testConfig()
	handler := protectedHandler(cfg)
	pair, err := NewTokens(cfg).Issue(Client{ID: "browser"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/v1/media-player?access_token="+pair.AccessToken, nil)
	req.Header.Set("Upgrade", "websocket")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "browser", rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/v1/media-player?access_token="+pair.AccessToken, nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "query tokens are only for upgrades")
}

func TestMiddlewareTestMode(t *testing.T) {
	cfg := testConfig()
	cfg.AllowTestMode = true
	handler := protectedHandler(cfg)

	req := httptest.NewRequest(http.MethodGet, "/v1/media-player", nil)
	req.Header.Set("x-test-mode", "true")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test-client", rec.Body.String())

	cfg.AppEnv = "production"
	handler = protectedHandler(cfg)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefreshRoute(t *testing.T) {
	cfg := testConfig()
	handler := protectedHandler(cfg)
	pair, err := NewTokens(cfg).Issue(Client{ID: "dashboard"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/refresh", strings.NewReader(`{"refresh_token":"`+pair.RefreshToken+`"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "access_token")

	req = httptest.NewRequest(http.MethodPost, "/v1/auth/refresh", strings.NewReader(`{"refresh_token":"`+pair.AccessToken+`"}`))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
