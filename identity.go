package pasetox

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"google.golang.org/api/idtoken"
)

var googleValidate = idtoken.Validate

// Identity is the upstream identity asserted by an OpenID Connect provider.
// Subject, Email and Name are what a session token is built from.
type Identity struct {
	Subject       string
	Issuer        string
	Audience      []string
	Email         string
	EmailVerified bool
	Name          string
	IssuedAt      time.Time
	ExpiresAt     time.Time
	CustomClaims  map[string]any
}

// IdentityValidator validates ID tokens issued by the configured providers.
type IdentityValidator struct {
	mu            sync.RWMutex
	issuers       map[string]*issuerState
	defaultIssuer string
}

type issuerState struct {
	cfg             IssuerConfig
	cache           *jwk.Cache
	allowedSubjects map[string]struct{}
	google          bool
}

// NewIdentityValidator builds a validator from the given configuration.
func NewIdentityValidator(cfg ValidatorConfig) (*IdentityValidator, error) {
	index, err := cfg.issuerIndex()
	if err != nil {
		return nil, err
	}

	defaultIssuer := ""
	if len(cfg.Issuers) == 1 {
		defaultIssuer = cfg.Issuers[0].Name
	}

	v := &IdentityValidator{
		issuers:       make(map[string]*issuerState, len(index)),
		defaultIssuer: defaultIssuer,
	}
	for name, issuerCfg := range index {
		state := &issuerState{
			cfg:             issuerCfg,
			allowedSubjects: toSet(issuerCfg.AllowedSubjects),
			google:          issuerCfg.JWKSURL == "",
		}
		if !state.google {
			cache := jwk.NewCache(context.Background())
			httpClient := &http.Client{
				Timeout: issuerCfg.HTTPTimeout,
				Transport: &http.Transport{
					Proxy: http.ProxyFromEnvironment,
				},
			}
			if err := cache.Register(
				issuerCfg.JWKSURL,
				jwk.WithMinRefreshInterval(issuerCfg.MinRefresh),
				jwk.WithHTTPClient(httpClient),
			); err != nil {
				return nil, fmt.Errorf("register jwks for %q: %w", name, err)
			}
			state.cache = cache
		}
		v.issuers[name] = state
	}

	return v, nil
}

// Warmup refreshes JWKS for the specified issuer.
func (v *IdentityValidator) Warmup(ctx context.Context, issuerName string) error {
	state, ok := v.lookupIssuer(issuerName)
	if !ok {
		return newError(ErrCodeIssuerNotRegistered, fmt.Errorf("issuer %q not found", issuerName))
	}
	if state.google {
		return nil
	}
	refreshCtx := ctx
	if state.cfg.HTTPTimeout > 0 {
		var cancel context.CancelFunc
		refreshCtx, cancel = context.WithTimeout(ctx, state.cfg.HTTPTimeout)
		defer cancel()
	}
	if _, err := state.cache.Refresh(refreshCtx, state.cfg.JWKSURL); err != nil {
		return newError(ErrCodeJWKSUnavailable, err)
	}
	return nil
}

// Validate verifies the ID token using the issuer identified by issuerName.
func (v *IdentityValidator) Validate(ctx context.Context, token, issuerName string) (*Identity, error) {
	if issuerName == "" {
		issuerName = v.defaultIssuer
	}
	if issuerName == "" {
		return nil, newError(ErrCodeIssuerNotRegistered, errors.New("issuer not specified"))
	}

	if token == "" {
		return nil, newError(ErrCodeInvalidIdentity, errors.New("token is empty"))
	}
	state, ok := v.lookupIssuer(issuerName)
	if !ok {
		return nil, newError(ErrCodeIssuerNotRegistered, fmt.Errorf("issuer %q not found", issuerName))
	}
	if state.google {
		return v.validateGoogle(ctx, token, state)
	}
	return v.validateJWKS(ctx, token, state)
}

func (v *IdentityValidator) validateJWKS(ctx context.Context, token string, state *issuerState) (*Identity, error) {
	keySet, err := state.cache.Get(ctx, state.cfg.JWKSURL)
	if err != nil {
		return nil, newError(ErrCodeJWKSUnavailable, err)
	}

	parsed, err := jwt.Parse([]byte(token), jwt.WithKeySet(keySet), jwt.WithValidate(false))
	if err != nil {
		return nil, newError(ErrCodeInvalidIdentity, err)
	}

	validateOpts := []jwt.ValidateOption{
		jwt.WithAcceptableSkew(state.cfg.ClockSkew),
		jwt.WithIssuer(state.cfg.Issuer),
	}
	if state.cfg.Audience != "" {
		validateOpts = append(validateOpts, jwt.WithAudience(state.cfg.Audience))
	}
	if err := jwt.Validate(parsed, validateOpts...); err != nil {
		switch {
		case errors.Is(err, jwt.ErrInvalidIssuer()):
			return nil, newError(ErrCodeInvalidIssuer, err)
		case errors.Is(err, jwt.ErrInvalidAudience()):
			return nil, newError(ErrCodeInvalidAudience, err)
		case errors.Is(err, jwt.ErrTokenExpired()):
			return nil, newError(ErrCodeIdentityExpired, err)
		default:
			return nil, newError(ErrCodeInvalidIdentity, err)
		}
	}

	identity := identityFromJWT(parsed)
	if identity.Subject == "" {
		return nil, newError(ErrCodeInvalidIdentity, errors.New("sub claim is missing"))
	}
	if !state.subjectAllowed(identity) {
		return nil, newError(ErrCodeSubjectNotAllowed, fmt.Errorf("subject %q not allowed", identity.Subject))
	}

	return identity, nil
}

func (v *IdentityValidator) validateGoogle(ctx context.Context, token string, state *issuerState) (*Identity, error) {
	validateCtx := ctx
	if state.cfg.HTTPTimeout > 0 {
		var cancel context.CancelFunc
		validateCtx, cancel = context.WithTimeout(ctx, state.cfg.HTTPTimeout)
		defer cancel()
	}

	payload, err := googleValidate(validateCtx, token, state.cfg.Audience)
	if err != nil {
		return nil, mapGoogleError(err)
	}
	if state.cfg.Issuer != "" && !strings.EqualFold(strings.TrimPrefix(payload.Issuer, "https://"), strings.TrimPrefix(state.cfg.Issuer, "https://")) {
		return nil, newError(ErrCodeInvalidIssuer, fmt.Errorf("issuer mismatch: got %s, want %s", payload.Issuer, state.cfg.Issuer))
	}

	identity := identityFromGooglePayload(payload)
	if !state.subjectAllowed(identity) {
		return nil, newError(ErrCodeSubjectNotAllowed, fmt.Errorf("subject %q not allowed", identity.Subject))
	}

	return identity, nil
}

func (v *IdentityValidator) lookupIssuer(name string) (*issuerState, bool) {
	if name == "" {
		name = v.defaultIssuer
	}
	if name == "" {
		return nil, false
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	state, ok := v.issuers[name]
	return state, ok
}

func (s *issuerState) subjectAllowed(identity *Identity) bool {
	if len(s.allowedSubjects) == 0 {
		return true
	}
	if _, ok := s.allowedSubjects[strings.ToLower(identity.Subject)]; ok {
		return true
	}
	if identity.Email != "" {
		if _, ok := s.allowedSubjects[strings.ToLower(identity.Email)]; ok {
			return true
		}
	}
	return false
}

func toSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		set[strings.ToLower(v)] = struct{}{}
	}
	return set
}

func identityFromJWT(token jwt.Token) *Identity {
	var audience []string
	if audList := token.Audience(); len(audList) > 0 {
		audience = append([]string(nil), audList...)
	}
	identity := &Identity{
		Subject:   token.Subject(),
		Issuer:    token.Issuer(),
		Audience:  audience,
		IssuedAt:  token.IssuedAt(),
		ExpiresAt: token.Expiration(),
	}
	if private := token.PrivateClaims(); len(private) > 0 {
		identity.CustomClaims = make(map[string]any, len(private))
		for k, v := range private {
			identity.CustomClaims[k] = v
		}
	}
	populateProfile(identity)
	return identity
}

func identityFromGooglePayload(payload *idtoken.Payload) *Identity {
	var audience []string
	if aud := payload.Audience; aud != "" {
		audience = []string{aud}
	}
	identity := &Identity{
		Subject:   payload.Subject,
		Issuer:    payload.Issuer,
		Audience:  audience,
		IssuedAt:  time.Unix(payload.IssuedAt, 0).UTC(),
		ExpiresAt: time.Unix(payload.Expires, 0).UTC(),
	}
	if payload.Claims != nil {
		identity.CustomClaims = make(map[string]any, len(payload.Claims))
		for k, v := range payload.Claims {
			identity.CustomClaims[k] = v
		}
	}
	populateProfile(identity)
	return identity
}

// populateProfile lifts the OpenID profile and email scope claims out of
// CustomClaims.
func populateProfile(identity *Identity) {
	claims := identity.CustomClaims
	if claims == nil {
		return
	}
	if email, ok := claims["email"].(string); ok {
		identity.Email = strings.ToLower(email)
	}
	if verified, ok := claims["email_verified"].(bool); ok {
		identity.EmailVerified = verified
	}
	if name, ok := claims["name"].(string); ok && name != "" {
		identity.Name = name
		return
	}
	given, _ := claims["given_name"].(string)
	family, _ := claims["family_name"].(string)
	identity.Name = strings.TrimSpace(given + " " + family)
}

func mapGoogleError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return newError(ErrCodeJWKSUnavailable, err)
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "audience provided does not match"):
		return newError(ErrCodeInvalidAudience, err)
	case strings.Contains(msg, "token expired"):
		return newError(ErrCodeIdentityExpired, err)
	}
	return newError(ErrCodeInvalidIdentity, err)
}
