package federation

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// OIDCFrontendConfig configures the OIDC assertion frontend.
type OIDCFrontendConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// OIDCFrontend exchanges the callback authorization code for an ID token,
// verifies it against the issuer, and flattens its claims into the assertion
// context.
type OIDCFrontend struct {
	verifier     *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config
}

// NewOIDCFrontend discovers the issuer and creates a frontend.
func NewOIDCFrontend(ctx context.Context, cfg OIDCFrontendConfig) (*OIDCFrontend, error) {
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	return &OIDCFrontend{
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
		},
	}, nil
}

// Extract implements AssertionExtractor for OIDC authorization-code
// callbacks.
func (f *OIDCFrontend) Extract(r *http.Request) (AssertionContext, error) {
	code := r.URL.Query().Get("code")
	if code == "" {
		return nil, fmt.Errorf("missing authorization code")
	}

	token, err := f.oauth2Config.Exchange(r.Context(), code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("missing id_token in token response")
	}

	idToken, err := f.verifier.Verify(r.Context(), rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	var claims map[string]interface{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}

	assertion := AssertionContext{}
	for name, value := range claims {
		switch v := value.(type) {
		case string:
			assertion[name] = []string{v}
		case []interface{}:
			values := make([]string, 0, len(v))
			for _, entry := range v {
				if s, ok := entry.(string); ok {
					values = append(values, s)
				}
			}
			if len(values) > 0 {
				assertion[name] = values
			}
		}
	}
	return assertion, nil
}
