package app

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/jun/driveuploader/internal/adapter/memory"
	"github.com/jun/driveuploader/internal/auth"
	"github.com/jun/driveuploader/internal/config"
	"github.com/jun/driveuploader/internal/crypto"
)

const originSecret = "cloudfront-origin-secret"

func newTestApp(t *testing.T, devMode bool) *App {
	t.Helper()
	cfg := &config.Config{
		DevMode:       devMode,
		Port:          "8080",
		BaseURL:       "https://uploader.example.com/",
		SessionMaxAge: time.Hour,
		MaxUploadSize: "1MB",
		LogLevel:      "info",
	}
	secrets := &config.Secrets{
		GoogleClientSecret: "client-secret",
		SessionSecret:      "0123456789abcdef0123456789abcdef",
		APIGatewaySecret:   originSecret,
	}
	enc, err := crypto.NewLocalEncryptor(secrets.SessionSecret)
	require.NoError(t, err)

	authService := auth.NewAuthService(&oauth2.Config{
		ClientID:    "client-id",
		RedirectURL: "https://uploader.example.com/api/auth/callback",
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://accounts.example.com/auth",
			TokenURL: "https://accounts.example.com/token",
		},
		Scopes: auth.Scopes,
	}, nil)

	a, err := New(cfg, secrets, Components{Auth: authService, Encryptor: enc, Storage: memory.NewProvider()}, zerolog.Nop())
	require.NoError(t, err)
	return a
}

func request(method, path string, headers map[string]string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{HTTPMethod: method, Path: path, Headers: headers}
}

func TestHandleRequest_Preflight(t *testing.T) {
	a := newTestApp(t, false)

	resp, err := a.HandleRequest(context.Background(), request(http.MethodOptions, "/api/upload", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://uploader.example.com", resp.Headers["Access-Control-Allow-Origin"])
	assert.Equal(t, "true", resp.Headers["Access-Control-Allow-Credentials"])
}

func TestHandleRequest_OriginGuard(t *testing.T) {
	a := newTestApp(t, false)
	ctx := context.Background()

	resp, err := a.HandleRequest(ctx, request(http.MethodGet, "/api/healthz", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, err = a.HandleRequest(ctx, request(http.MethodGet, "/api/healthz", map[string]string{"X-Origin-Verify": "wrong"}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, err = a.HandleRequest(ctx, request(http.MethodGet, "/api/healthz", map[string]string{"x-origin-verify": originSecret}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	dev := newTestApp(t, true)
	resp, err = dev.HandleRequest(ctx, request(http.MethodGet, "/healthz", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "guard is off in dev mode")
}

func TestHandleRequest_Routes(t *testing.T) {
	a := newTestApp(t, true)
	ctx := context.Background()

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/", http.StatusOK},
		{http.MethodGet, "/api", http.StatusOK},
		{http.MethodGet, "/api/auth/login", http.StatusFound},
		{http.MethodGet, "/auth/session", http.StatusOK},
		{http.MethodPost, "/auth/logout", http.StatusOK},
		{http.MethodGet, "/auth/callback", http.StatusBadRequest},
		{http.MethodGet, "/api/upload", http.StatusMethodNotAllowed},
		{http.MethodPost, "/api/upload", http.StatusUnauthorized},
		{http.MethodGet, "/auth/logout", http.StatusNotFound},
		{http.MethodGet, "/notes", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			resp, err := a.HandleRequest(ctx, request(tt.method, tt.path, nil))
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode, resp.Body)
			assert.NotEmpty(t, resp.Headers["Access-Control-Allow-Origin"])
		})
	}
}

func TestHandleRequest_LoginRedirect(t *testing.T) {
	a := newTestApp(t, true)

	resp, err := a.HandleRequest(context.Background(), request(http.MethodGet, "/auth/login", nil))
	require.NoError(t, err)

	loc := resp.Headers["Location"]
	assert.True(t, strings.HasPrefix(loc, "https://accounts.example.com/auth?"))
	assert.Contains(t, loc, "access_type=offline")
	assert.Contains(t, loc, "prompt=consent")
	assert.Contains(t, loc, "nonce=")
}

func TestNew_CookieSameSite(t *testing.T) {
	prod := newTestApp(t, false)
	resp, err := prod.HandleRequest(context.Background(), request(http.MethodPost, "/api/auth/logout", map[string]string{"X-Origin-Verify": originSecret}))
	require.NoError(t, err)
	assert.Contains(t, resp.MultiValueHeaders["Set-Cookie"][0], "SameSite=None")

	dev := newTestApp(t, true)
	resp, err = dev.HandleRequest(context.Background(), request(http.MethodPost, "/auth/logout", nil))
	require.NoError(t, err)
	assert.Contains(t, resp.MultiValueHeaders["Set-Cookie"][0], "SameSite=Lax")
}

func TestNew_InvalidUploadSize(t *testing.T) {
	_, err := New(&config.Config{MaxUploadSize: "lots"}, &config.Secrets{}, Components{}, zerolog.Nop())
	assert.Error(t, err)
}
