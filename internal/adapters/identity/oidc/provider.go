// Package oidc signs users in through an OpenID Connect issuer using the authorization
// code flow with PKCE and a loopback redirect.
package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bnema/license-sessions-cli/internal/domain"
	"github.com/bnema/license-sessions-cli/internal/logger"
	"github.com/bnema/license-sessions-cli/internal/ports"
	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const defaultTimeout = 5 * time.Minute

type Config struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	ListenAddr   string
	Timeout      time.Duration
}

// AuthURLHandler presents the authorization URL to the user, typically by printing it.
type AuthURLHandler func(authURL string) error

type Provider struct {
	cfg        Config
	httpClient *http.Client
	present    AuthURLHandler
	logger     *zap.Logger
}

var _ ports.IdentityProvider = (*Provider)(nil)

type Option func(*Provider)

func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) { p.httpClient = client }
}

func WithAuthURLHandler(handler AuthURLHandler) Option {
	return func(p *Provider) { p.present = handler }
}

func WithLogger(l *zap.Logger) Option {
	return func(p *Provider) { p.logger = logger.OrNop(l) }
}

func NewProvider(cfg Config, opts ...Option) (*Provider, error) {
	cfg.Issuer = strings.TrimRight(strings.TrimSpace(cfg.Issuer), "/")
	if cfg.Issuer == "" {
		return nil, errors.New("oidc issuer is required")
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, errors.New("oidc client id is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	p := &Provider{
		cfg:     cfg,
		present: func(string) error { return errors.New("no way to present the authorization url") },
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

type idClaims struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
}

func (p *Provider) SignIn(ctx context.Context, req domain.SignInRequest) (domain.User, error) {
	if p.httpClient != nil {
		ctx = gooidc.ClientContext(ctx, p.httpClient)
	}

	provider, err := gooidc.NewProvider(ctx, p.cfg.Issuer)
	if err != nil {
		return domain.User{}, fmt.Errorf("discover oidc issuer: %w", err)
	}

	state := newState()
	redirect, err := ListenRedirect(p.cfg.ListenAddr, state)
	if err != nil {
		return domain.User{}, fmt.Errorf("start callback server: %w", err)
	}
	defer func() { _ = redirect.Close() }()

	conf := oauth2.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  redirect.URL(),
		Scopes:       []string{gooidc.ScopeOpenID, "email", "profile"},
	}

	verifier := oauth2.GenerateVerifier()
	authOpts := []oauth2.AuthCodeOption{oauth2.S256ChallengeOption(verifier)}
	if email := strings.TrimSpace(req.Email); email != "" {
		authOpts = append(authOpts, oauth2.SetAuthURLParam("login_hint", email))
	}

	if err := p.present(conf.AuthCodeURL(state, authOpts...)); err != nil {
		return domain.User{}, fmt.Errorf("present authorization url: %w", err)
	}

	code, err := redirect.Await(ctx, p.cfg.Timeout)
	if err != nil {
		return domain.User{}, fmt.Errorf("wait for oauth callback: %w", err)
	}

	token, err := conf.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return domain.User{}, fmt.Errorf("exchange code for tokens: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return domain.User{}, errors.New("token response missing id_token")
	}

	idToken, err := provider.Verifier(&gooidc.Config{ClientID: p.cfg.ClientID}).Verify(ctx, rawIDToken)
	if err != nil {
		return domain.User{}, fmt.Errorf("verify id token: %w", err)
	}

	var claims idClaims
	if err := idToken.Claims(&claims); err != nil {
		return domain.User{}, fmt.Errorf("parse id token claims: %w", err)
	}
	if claims.Subject == "" {
		return domain.User{}, fmt.Errorf("id token subject: %w", domain.ErrMissingIdentifier)
	}

	p.logger.Debug("oidc sign-in verified", zap.String("issuer", p.cfg.Issuer), zap.String("subject", claims.Subject))
	return domain.User{ID: domain.UserID(claims.Subject), Email: claims.Email}, nil
}

// SignOut has nothing to revoke; the local credentials are cleared by the caller.
func (p *Provider) SignOut(context.Context) error {
	return nil
}
