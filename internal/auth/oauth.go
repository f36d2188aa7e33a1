package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"

	"github.com/jun/driveuploader/internal/model"
)

var (
	// ErrRefreshFailed is returned when the token endpoint rejects a refresh
	// or cannot be reached.
	ErrRefreshFailed = errors.New("refresh access token failed")

	// ErrNoIDToken is returned when the code exchange carried no id_token.
	ErrNoIDToken = errors.New("no id_token in token response")

	// ErrNonceMismatch is returned when the ID token nonce differs from the login nonce.
	ErrNonceMismatch = errors.New("id token nonce mismatch")
)

// Scopes requested at sign-in. drive.file limits access to files this app creates.
var Scopes = []string{oidc.ScopeOpenID, "email", "profile", drive.DriveFileScope}

// AuthService handles the Google OAuth2 authorization-code flow and access
// token renewal.
type AuthService struct {
	oauthConfig *oauth2.Config
	verifier    IDTokenVerifier
	httpClient  *http.Client
}

// Config returns the OAuth2 config.
func (s *AuthService) Config() *oauth2.Config {
	return s.oauthConfig
}

// NewAuthService creates a new AuthService.
// The oauthConfig should be constructed by the caller (e.g., from configuration).
func NewAuthService(oauthConfig *oauth2.Config, verifier IDTokenVerifier) *AuthService {
	return &AuthService{
		oauthConfig: oauthConfig,
		verifier:    verifier,
	}
}

// WithHTTPClient sets the client used for token endpoint calls.
func (s *AuthService) WithHTTPClient(c *http.Client) *AuthService {
	s.httpClient = c
	return s
}

func (s *AuthService) ctx(ctx context.Context) context.Context {
	if s.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

// GenerateAuthURL returns the URL to redirect the user to for Google login.
// Offline access yields a refresh token; forced consent makes Google issue
// one on every sign-in, not only the first.
func (s *AuthService) GenerateAuthURL(state, nonce string) string {
	return s.oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce, oidc.Nonce(nonce))
}

// ExchangeCode exchanges the authorization code for an access token.
func (s *AuthService) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	return s.oauthConfig.Exchange(s.ctx(ctx), code)
}

// VerifyIdentity verifies the id_token returned with token and returns the user.
func (s *AuthService) VerifyIdentity(ctx context.Context, token *oauth2.Token, nonce string) (*model.Identity, error) {
	raw, ok := token.Extra("id_token").(string)
	if !ok || raw == "" {
		return nil, ErrNoIDToken
	}

	claims, err := s.verifier.VerifyIDToken(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("verify id token: %w", err)
	}
	if claims.Nonce != nonce {
		return nil, ErrNonceMismatch
	}

	return &model.Identity{
		Subject: claims.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
		Picture: claims.Picture,
	}, nil
}

// RefreshAccessToken exchanges refreshToken for a new access token with a
// single form-encoded POST to the token endpoint. There is no retry.
// If the provider does not rotate the refresh token, the old one is kept.
func (s *AuthService) RefreshAccessToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token", ErrRefreshFailed)
	}

	src := s.oauthConfig.TokenSource(s.ctx(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		var rErr *oauth2.RetrieveError
		if errors.As(err, &rErr) && rErr.Response != nil {
			return nil, fmt.Errorf("%w: token endpoint returned %d: %s", ErrRefreshFailed, rErr.Response.StatusCode, rErr.ErrorCode)
		}
		return nil, fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	if tok.RefreshToken == "" {
		tok.RefreshToken = refreshToken
	}
	return tok, nil
}
