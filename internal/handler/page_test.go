package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/jun/driveuploader/internal/model"
)

func TestPageHandler_Index(t *testing.T) {
	c := &clock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	ctx := context.Background()

	t.Run("signed out", func(t *testing.T) {
		h := NewPageHandler(newManager(t, nil, c), "/api", zerolog.Nop())

		resp, err := h.Index(ctx, events.APIGatewayProxyRequest{})
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "text/html; charset=utf-8", resp.Headers["Content-Type"])
		assert.Contains(t, resp.Body, "/api/auth/login")
		assert.NotContains(t, resp.Body, `id="upload-form"`)
	})

	t.Run("signed in", func(t *testing.T) {
		h := NewPageHandler(newManager(t, nil, c), "/api", zerolog.Nop())

		resp, err := h.Index(ctx, events.APIGatewayProxyRequest{Headers: sessionHeaders(t, h.sessions, time.Hour)})
		require.NoError(t, err)
		assert.Contains(t, resp.Body, `id="upload-form"`)
		assert.Contains(t, resp.Body, "Alice")
		assert.Empty(t, resp.MultiValueHeaders["Set-Cookie"])
	})

	t.Run("renewal failure restarts sign-in", func(t *testing.T) {
		r := &fakeRefresher{err: errors.New("invalid_grant")}
		h := NewPageHandler(newManager(t, r, c), "/api", zerolog.Nop())
		headers := sessionHeaders(t, h.sessions, time.Minute)
		c.t = c.t.Add(time.Hour)

		resp, err := h.Index(ctx, events.APIGatewayProxyRequest{Headers: headers})
		require.NoError(t, err)
		assert.Contains(t, resp.Body, "signIn();\n  return;")

		sess := setCookieSession(t, h.sessions, resp)
		require.NotNil(t, sess)
		assert.Equal(t, model.RefreshAccessTokenError, sess.Error)
	})

	t.Run("renewed token is re-issued", func(t *testing.T) {
		r := &fakeRefresher{token: &oauth2.Token{AccessToken: "access-2", ExpiresIn: 3600}}
		h := NewPageHandler(newManager(t, r, c), "/api", zerolog.Nop())
		headers := sessionHeaders(t, h.sessions, time.Minute)
		c.t = c.t.Add(time.Hour)

		resp, err := h.Index(ctx, events.APIGatewayProxyRequest{Headers: headers})
		require.NoError(t, err)
		assert.NotContains(t, resp.Body, "signIn();\n  return;")

		sess := setCookieSession(t, h.sessions, resp)
		require.NotNil(t, sess)
		assert.Equal(t, "access-2", sess.AccessToken)
		assert.Equal(t, int32(1), r.calls.Load())
	})
}
