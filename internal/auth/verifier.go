package auth

import (
	"context"
	"fmt"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
)

// GoogleIssuer is the OIDC issuer for Google accounts.
const GoogleIssuer = "https://accounts.google.com"

// IDClaims are the ID token claims the app reads.
type IDClaims struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
	Nonce   string `json:"nonce"`
}

// IDTokenVerifier verifies a raw ID token and returns its claims.
type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, raw string) (*IDClaims, error)
}

// OIDCVerifier verifies ID tokens with go-oidc. Provider discovery runs on
// first use and the result is cached for the life of the process.
type OIDCVerifier struct {
	issuer   string
	clientID string

	mu       sync.Mutex
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier creates a verifier for issuer and audience clientID.
func NewOIDCVerifier(issuer, clientID string) *OIDCVerifier {
	return &OIDCVerifier{issuer: issuer, clientID: clientID}
}

// newStaticVerifier wraps an already built verifier, skipping discovery.
func newStaticVerifier(v *oidc.IDTokenVerifier) *OIDCVerifier {
	return &OIDCVerifier{verifier: v}
}

func (v *OIDCVerifier) get(ctx context.Context) (*oidc.IDTokenVerifier, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.verifier != nil {
		return v.verifier, nil
	}

	// The provider keeps this context for later key set fetches.
	provider, err := oidc.NewProvider(context.WithoutCancel(ctx), v.issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}
	v.verifier = provider.Verifier(&oidc.Config{ClientID: v.clientID})
	return v.verifier, nil
}

// VerifyIDToken implements IDTokenVerifier.
func (v *OIDCVerifier) VerifyIDToken(ctx context.Context, raw string) (*IDClaims, error) {
	verifier, err := v.get(ctx)
	if err != nil {
		return nil, err
	}

	idToken, err := verifier.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}

	var claims IDClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to extract claims: %w", err)
	}
	return &claims, nil
}
