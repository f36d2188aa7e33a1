package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/jun/driveuploader/internal/model"
	"github.com/jun/driveuploader/internal/session"
)

const (
	stateCookieName = "oauth_state"
	stateMaxAge     = 600
)

// Authenticator runs the OAuth2 authorization-code flow.
type Authenticator interface {
	GenerateAuthURL(state, nonce string) string
	ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error)
	VerifyIdentity(ctx context.Context, token *oauth2.Token, nonce string) (*model.Identity, error)
}

// AuthHandler handles authentication requests.
type AuthHandler struct {
	auth     Authenticator
	sessions *session.Manager
	homeURL  string
	log      zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler. homeURL is where the browser is
// sent after sign-in.
func NewAuthHandler(a Authenticator, sessions *session.Manager, homeURL string, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{auth: a, sessions: sessions, homeURL: homeURL, log: log}
}

// Login initiates the Google OAuth2 flow. state and nonce are kept in a
// short-lived cookie and checked on callback.
func (h *AuthHandler) Login(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	state := uuid.NewString()
	nonce := uuid.NewString()

	cookie := fmt.Sprintf("%s=%s.%s; HttpOnly; Path=/; Max-Age=%d; SameSite=Lax; Secure", stateCookieName, state, nonce, stateMaxAge)
	return withCookies(redirect(h.auth.GenerateAuthURL(state, nonce)), cookie), nil
}

// Callback handles the OAuth2 callback from Google.
func (h *AuthHandler) Callback(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	clearState := fmt.Sprintf("%s=; HttpOnly; Path=/; Max-Age=0; SameSite=Lax; Secure", stateCookieName)

	if e := req.QueryStringParameters["error"]; e != "" {
		h.log.Info().Str("error", e).Msg("sign-in cancelled by provider")
		return withCookies(errorResponse(http.StatusBadRequest, "Sign-in failed"), clearState), nil
	}

	code := req.QueryStringParameters["code"]
	if code == "" {
		return errorResponse(http.StatusBadRequest, "Missing code"), nil
	}

	state, nonce, ok := strings.Cut(getCookie(req.Headers, stateCookieName), ".")
	if !ok || state == "" || state != req.QueryStringParameters["state"] {
		h.log.Warn().Msg("oauth state mismatch")
		return withCookies(errorResponse(http.StatusBadRequest, "Invalid state"), clearState), nil
	}

	token, err := h.auth.ExchangeCode(ctx, code)
	if err != nil {
		h.log.Error().Err(err).Msg("exchange code")
		return errorResponse(http.StatusInternalServerError, "Failed to exchange code"), nil
	}

	user, err := h.auth.VerifyIdentity(ctx, token, nonce)
	if err != nil {
		h.log.Warn().Err(err).Msg("verify identity")
		return withCookies(errorResponse(http.StatusUnauthorized, "Failed to verify identity"), clearState), nil
	}

	if token.RefreshToken == "" {
		h.log.Warn().Str("sub", user.Subject).Msg("no refresh token issued; session cannot be renewed")
	}

	sess := h.sessions.New(*user, token)
	signed, err := h.sessions.Seal(ctx, sess)
	if err != nil {
		h.log.Error().Err(err).Msg("seal session")
		return errorResponse(http.StatusInternalServerError, "Failed to create session"), nil
	}

	h.log.Info().Str("sub", user.Subject).Str("session", sess.ID).Time("expires_at", sess.ExpiresAt).Msg("signed in")
	return withCookies(redirect(h.homeURL), h.sessions.Cookie(signed), clearState), nil
}

// Logout clears the session cookie.
func (h *AuthHandler) Logout(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return withCookies(jsonResponse(http.StatusOK, map[string]bool{"success": true}), h.sessions.ClearCookie()), nil
}

type sessionUser struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Picture string `json:"picture,omitempty"`
}

type sessionResponse struct {
	Authenticated bool         `json:"authenticated"`
	User          *sessionUser `json:"user,omitempty"`
	Error         string       `json:"error,omitempty"`
}

// Session reports the current session, renewing the access token if it has
// expired. Tokens are never included in the response.
func (h *AuthHandler) Session(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sess, changed, err := h.sessions.FromRequest(ctx, req.Headers)
	if err != nil {
		resp := jsonResponse(http.StatusOK, sessionResponse{})
		if errors.Is(err, session.ErrInvalidSession) {
			h.log.Debug().Err(err).Msg("discarding invalid session cookie")
			resp = withCookies(resp, h.sessions.ClearCookie())
		}
		return resp, nil
	}

	resp := jsonResponse(http.StatusOK, sessionResponse{
		Authenticated: true,
		User: &sessionUser{
			Name:    sess.User.Name,
			Email:   sess.User.Email,
			Picture: sess.User.Picture,
		},
		Error: sess.Error,
	})
	return reissue(ctx, h.sessions, h.log, resp, sess, changed), nil
}

// reissue attaches the re-sealed session cookie when the session changed.
func reissue(ctx context.Context, sessions *session.Manager, log zerolog.Logger, resp events.APIGatewayProxyResponse, sess *model.Session, changed bool) events.APIGatewayProxyResponse {
	if !changed {
		return resp
	}
	signed, err := sessions.Seal(ctx, sess)
	if err != nil {
		log.Error().Err(err).Str("session", sess.ID).Msg("reseal session")
		return resp
	}
	return withCookies(resp, sessions.Cookie(signed))
}
