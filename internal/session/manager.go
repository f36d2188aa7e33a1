// Package session carries the Google token pair in a signed, encrypted
// cookie and renews the access token when it has expired.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/jun/driveuploader/internal/crypto"
	"github.com/jun/driveuploader/internal/model"
)

// CookieName is the name of the session cookie.
const CookieName = "session_token"

var (
	// ErrNoSession is returned when the request carries no session cookie.
	ErrNoSession = errors.New("no session")

	// ErrInvalidSession is returned when the cookie fails signature, expiry or decryption checks.
	ErrInvalidSession = errors.New("invalid session")
)

// Refresher renews an access token from a refresh token.
type Refresher interface {
	RefreshAccessToken(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

type claims struct {
	jwt.RegisteredClaims
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Picture string `json:"picture,omitempty"`
	Tok     string `json:"tok"`
}

// tokenPayload is the encrypted part of the cookie.
type tokenPayload struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	Error        string    `json:"error,omitempty"`
}

type refreshResult struct {
	token *oauth2.Token
	err   error
}

// Manager issues, decodes and renews sessions.
type Manager struct {
	secret    []byte
	encryptor crypto.Encryptor
	refresher Refresher
	maxAge    time.Duration
	sameSite  string
	log       zerolog.Logger
	now       func() time.Time

	renewals singleflight.Group
}

// NewManager creates a Manager. secret signs the cookie JWT; encryptor seals
// the token pair inside it.
func NewManager(secret string, encryptor crypto.Encryptor, refresher Refresher, maxAge time.Duration, log zerolog.Logger) *Manager {
	return &Manager{
		secret:    []byte(secret),
		encryptor: encryptor,
		refresher: refresher,
		maxAge:    maxAge,
		sameSite:  "Lax",
		log:       log,
		now:       time.Now,
	}
}

// WithClock replaces the time source.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// WithSameSite sets the cookie SameSite attribute ("Lax", "None", "Strict").
func (m *Manager) WithSameSite(sameSite string) *Manager {
	m.sameSite = sameSite
	return m
}

// New builds a session from a sign-in. The access token expires at sign-in
// time plus the provider-reported lifetime.
func (m *Manager) New(user model.Identity, token *oauth2.Token) *model.Session {
	now := m.now().UTC()
	return &model.Session{
		ID:           uuid.NewString(),
		User:         user,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    m.expiry(now, token),
		IssuedAt:     now,
	}
}

func (m *Manager) expiry(now time.Time, token *oauth2.Token) time.Time {
	if token.ExpiresIn > 0 {
		return now.Add(time.Duration(token.ExpiresIn) * time.Second)
	}
	if !token.Expiry.IsZero() {
		return token.Expiry.UTC()
	}
	// No lifetime reported: treat as already expired so the next use renews.
	return now
}

// Seal encodes sess as a cookie value.
func (m *Manager) Seal(ctx context.Context, sess *model.Session) (string, error) {
	payload, err := json.Marshal(tokenPayload{
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		ExpiresAt:    sess.ExpiresAt,
		Error:        sess.Error,
	})
	if err != nil {
		return "", fmt.Errorf("marshal token payload: %w", err)
	}

	sealed, err := m.encryptor.Encrypt(ctx, string(payload))
	if err != nil {
		return "", fmt.Errorf("seal session: %w", err)
	}

	now := m.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sess.ID,
			Subject:   sess.User.Subject,
			IssuedAt:  jwt.NewNumericDate(sess.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.maxAge)),
		},
		Name:    sess.User.Name,
		Email:   sess.User.Email,
		Picture: sess.User.Picture,
		Tok:     sealed,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return signed, nil
}

// Open decodes a cookie value produced by Seal.
func (m *Manager) Open(ctx context.Context, raw string) (*model.Session, error) {
	if raw == "" {
		return nil, ErrNoSession
	}

	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}

	plain, err := m.encryptor.Decrypt(ctx, c.Tok)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}

	var p tokenPayload
	if err := json.Unmarshal([]byte(plain), &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}

	sess := &model.Session{
		ID: c.ID,
		User: model.Identity{
			Subject: c.Subject,
			Email:   c.Email,
			Name:    c.Name,
			Picture: c.Picture,
		},
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		ExpiresAt:    p.ExpiresAt,
		Error:        p.Error,
	}
	if c.IssuedAt != nil {
		sess.IssuedAt = c.IssuedAt.Time
	}
	return sess, nil
}

// Ensure returns a session whose access token is valid now, renewing it once
// if expired. A failed renewal sets the sticky RefreshAccessTokenError flag
// instead of returning an error. changed reports whether the cookie must be
// re-issued. Concurrent renewals of the same session share one provider call.
func (m *Manager) Ensure(ctx context.Context, sess *model.Session) (out *model.Session, changed bool) {
	if sess.Error != "" || !sess.Expired(m.now()) {
		return sess, false
	}

	v, _, _ := m.renewals.Do(sess.ID, func() (any, error) {
		tok, err := m.refresher.RefreshAccessToken(ctx, sess.RefreshToken)
		return refreshResult{token: tok, err: err}, nil
	})
	res := v.(refreshResult)

	renewed := *sess
	if res.err != nil {
		m.log.Warn().Err(res.err).Str("session", sess.ID).Msg("access token renewal failed")
		renewed.Error = model.RefreshAccessTokenError
		return &renewed, true
	}

	renewed.AccessToken = res.token.AccessToken
	renewed.ExpiresAt = m.expiry(m.now().UTC(), res.token)
	if res.token.RefreshToken != "" {
		renewed.RefreshToken = res.token.RefreshToken
	}
	renewed.Error = ""
	m.log.Debug().Str("session", sess.ID).Time("expires_at", renewed.ExpiresAt).Msg("access token renewed")
	return &renewed, true
}

// Load opens raw and ensures the access token is fresh.
func (m *Manager) Load(ctx context.Context, raw string) (sess *model.Session, changed bool, err error) {
	sess, err = m.Open(ctx, raw)
	if err != nil {
		return nil, false, err
	}
	sess, changed = m.Ensure(ctx, sess)
	return sess, changed, nil
}

// FromRequest reads the session cookie from request headers and loads it.
// Header names are matched case-insensitively.
func (m *Manager) FromRequest(ctx context.Context, headers map[string]string) (*model.Session, bool, error) {
	return m.Load(ctx, CookieValue(headers))
}

// CookieValue extracts the session cookie value from request headers.
func CookieValue(headers map[string]string) string {
	for k, v := range headers {
		if !strings.EqualFold(k, "Cookie") {
			continue
		}
		// Cookie format: a=1; session_token=xxx; b=2
		for _, part := range strings.Split(v, ";") {
			part = strings.TrimSpace(part)
			if value, ok := strings.CutPrefix(part, CookieName+"="); ok {
				return value
			}
		}
	}
	return ""
}

// Cookie formats a Set-Cookie value carrying token.
func (m *Manager) Cookie(token string) string {
	return fmt.Sprintf("%s=%s; HttpOnly; Path=/; Max-Age=%d; SameSite=%s; Secure",
		CookieName, token, int(m.maxAge.Seconds()), m.sameSite)
}

// ClearCookie formats a Set-Cookie value that removes the session.
func (m *Manager) ClearCookie() string {
	return fmt.Sprintf("%s=; HttpOnly; Path=/; Max-Age=0; SameSite=%s; Secure", CookieName, m.sameSite)
}
