package pasetox

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

// IdentityTokenValidator validates an upstream ID token. *IdentityValidator
// implements it.
type IdentityTokenValidator interface {
	Validate(ctx context.Context, token, issuerName string) (*Identity, error)
}

// LoginRequest is the state a caller keeps between redirecting the user to
// the provider and handling the callback.
type LoginRequest struct {
	State    string
	Verifier string
	URL      string
}

// Exchanger runs the OAuth 2.0 authorization-code flow against one provider
// and turns the returned ID token into an Identity.
type Exchanger struct {
	oauth      oauth2.Config
	validator  IdentityTokenValidator
	issuerName string
	client     *http.Client
}

// NewExchanger constructs an Exchanger. cfg.Issuer names the validator issuer
// used for the returned ID tokens.
func NewExchanger(cfg ExchangeConfig, validator IdentityTokenValidator) (*Exchanger, error) {
	if validator == nil {
		return nil, errors.New("identity validator is required")
	}
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Exchanger{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       append([]string(nil), cfg.Scopes...),
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		validator:  validator,
		issuerName: cfg.Issuer,
		client: &http.Client{
			Timeout: cfg.HTTPTimeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
			},
		},
	}, nil
}

// AuthCodeURL returns the provider URL the user is redirected to.
func (e *Exchanger) AuthCodeURL(state string, opts ...oauth2.AuthCodeOption) string {
	return e.oauth.AuthCodeURL(state, opts...)
}

// Begin starts a PKCE-protected login for state.
func (e *Exchanger) Begin(state string) LoginRequest {
	verifier := oauth2.GenerateVerifier()
	return LoginRequest{
		State:    state,
		Verifier: verifier,
		URL:      e.oauth.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier)),
	}
}

// Exchange redeems an authorization code and validates the ID token that
// comes back with the access token.
func (e *Exchanger) Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*Identity, error) {
	if strings.TrimSpace(code) == "" {
		return nil, newError(ErrCodeExchangeFailed, errors.New("authorization code is empty"))
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, e.client)

	tok, err := e.oauth.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, newError(ErrCodeExchangeFailed, fmt.Errorf("exchange code: %w", err))
	}
	rawIDToken, _ := tok.Extra("id_token").(string)
	if rawIDToken == "" {
		return nil, newError(ErrCodeExchangeFailed, errors.New("token response did not include id_token"))
	}
	return e.validator.Validate(ctx, rawIDToken, e.issuerName)
}

// Complete finishes a login started with Begin.
func (e *Exchanger) Complete(ctx context.Context, req LoginRequest, code string) (*Identity, error) {
	return e.Exchange(ctx, code, oauth2.VerifierOption(req.Verifier))
}
