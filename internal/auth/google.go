package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hyperjump/querylinker/internal/config"
	"github.com/hyperjump/querylinker/internal/models"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/idtoken"
)

// TokenVerifier validates a Google ID token for the given audience.
// *idtoken.Validator satisfies it.
type TokenVerifier interface {
	Validate(ctx context.Context, idToken string, audience string) (*idtoken.Payload, error)
}

// Option customizes a GoogleAuth.
type Option func(*GoogleAuth)

// WithVerifier replaces the Google ID token validator.
func WithVerifier(v TokenVerifier) Option {
	return func(g *GoogleAuth) { g.verifier = v }
}

// WithEndpoint overrides the OAuth authorization and token endpoints.
func WithEndpoint(e oauth2.Endpoint) Option {
	return func(g *GoogleAuth) { g.oauth.Endpoint = e }
}

// GoogleAuth runs the Google authorization code flow and verifies ID tokens.
type GoogleAuth struct {
	cfg    config.GoogleOAuthConfig
	oauth  *oauth2.Config
	logger *zap.Logger

	mu       sync.Mutex
	verifier TokenVerifier
}

// NewGoogleAuth builds the adapter. It never fails on missing configuration;
// operations report ErrConfigurationMissing instead so the server can start
// without sign-in.
func NewGoogleAuth(cfg config.GoogleOAuthConfig, logger *zap.Logger, opts ...Option) *GoogleAuth {
	if logger == nil {
		logger = zap.NewNop()
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "email", "profile"}
	}
	g := &GoogleAuth{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     google.Endpoint,
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Configured reports whether client id, secret and redirect URL are all present.
func (g *GoogleAuth) Configured() bool {
	return g.cfg.Configured()
}

// GenerateAuthURL returns the consent screen URL carrying state.
func (g *GoogleAuth) GenerateAuthURL(state string) (string, error) {
	if !g.Configured() {
		return "", ErrConfigurationMissing
	}
	return g.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOnline,
		oauth2.SetAuthURLParam("prompt", "select_account"),
	), nil
}

// ExchangeCodeForIdentity trades an authorization code for tokens and returns
// the identity in the verified ID token.
func (g *GoogleAuth) ExchangeCodeForIdentity(ctx context.Context, code string) (*models.OAuthIdentity, error) {
	if !g.Configured() {
		return nil, ErrConfigurationMissing
	}
	code = strings.TrimSpace(code)
	if code == "" {
		g.logger.Warn("code exchange rejected: empty authorization code")
		return nil, ErrAuthenticationFailed
	}

	token, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		g.logger.Warn("code exchange failed", zap.Error(err))
		return nil, ErrAuthenticationFailed
	}
	rawID, _ := token.Extra("id_token").(string)
	if rawID == "" {
		g.logger.Warn("token response has no id_token")
		return nil, ErrAuthenticationFailed
	}
	return g.verify(ctx, rawID)
}

// VerifyIdentityToken validates an ID token obtained by the client directly
// (for example from Google One Tap).
func (g *GoogleAuth) VerifyIdentityToken(ctx context.Context, rawID string) (*models.OAuthIdentity, error) {
	if g.cfg.ClientID == "" {
		return nil, ErrConfigurationMissing
	}
	rawID = strings.TrimSpace(rawID)
	if rawID == "" {
		g.logger.Warn("id token rejected: empty credential")
		return nil, ErrAuthenticationFailed
	}
	return g.verify(ctx, rawID)
}

func (g *GoogleAuth) verify(ctx context.Context, rawID string) (*models.OAuthIdentity, error) {
	v, err := g.tokenVerifier(ctx)
	if err != nil {
		g.logger.Error("failed to create id token validator", zap.Error(err))
		return nil, ErrAuthenticationFailed
	}
	payload, err := v.Validate(ctx, rawID, g.cfg.ClientID)
	if err != nil {
		g.logger.Warn("id token validation failed", zap.Error(err))
		return nil, ErrAuthenticationFailed
	}
	identity, err := identityFromPayload(payload)
	if err != nil {
		g.logger.Warn("id token payload rejected", zap.Error(err))
		return nil, ErrAuthenticationFailed
	}
	g.logger.Debug("google identity verified", zap.String("subject", identity.SubjectID))
	return identity, nil
}

func (g *GoogleAuth) tokenVerifier(ctx context.Context) (TokenVerifier, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.verifier != nil {
		return g.verifier, nil
	}
	v, err := idtoken.NewValidator(ctx)
	if err != nil {
		return nil, err
	}
	g.verifier = v
	return v, nil
}

func identityFromPayload(p *idtoken.Payload) (*models.OAuthIdentity, error) {
	if p == nil || p.Subject == "" {
		return nil, fmt.Errorf("missing subject")
	}
	identity := &models.OAuthIdentity{
		SubjectID:     p.Subject,
		Email:         claimString(p.Claims, "email"),
		Name:          claimString(p.Claims, "name"),
		PictureURL:    claimString(p.Claims, "picture"),
		EmailVerified: claimBool(p.Claims, "email_verified"),
	}
	if identity.Email == "" {
		return nil, fmt.Errorf("missing email claim")
	}
	return identity, nil
}

func claimString(claims map[string]interface{}, key string) string {
	s, _ := claims[key].(string)
	return s
}

// claimBool accepts both JSON booleans and the "true" strings some issuers emit.
func claimBool(claims map[string]interface{}, key string) bool {
	switch v := claims[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	}
	return false
}
