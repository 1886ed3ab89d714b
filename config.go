package pasetox

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	defaultClockSkew    = 30 * time.Second
	defaultMinRefresh   = 5 * time.Minute
	defaultHTTPTimeout  = 5 * time.Second
	defaultGoogleIssuer = "https://accounts.google.com"

	// EnvVerificationKey and EnvSigningKey name the environment variables
	// read by KeyConfigFromEnv.
	EnvVerificationKey = "PASETO_PUBLIC_KEY"
	EnvSigningKey      = "PASETO_SECRET_KEY"
)

var defaultScopes = []string{"openid", "profile", "email"}

// KeyConfig carries base64url (unpadded) key material as supplied by the
// environment or a secret store.
type KeyConfig struct {
	VerificationKey string `yaml:"verification_key"`
	SigningKey      string `yaml:"signing_key"`
}

// KeyConfigFromEnv reads key material from PASETO_PUBLIC_KEY and
// PASETO_SECRET_KEY.
func KeyConfigFromEnv() KeyConfig {
	return KeyConfig{
		VerificationKey: strings.TrimSpace(os.Getenv(EnvVerificationKey)),
		SigningKey:      strings.TrimSpace(os.Getenv(EnvSigningKey)),
	}
}

// Load decodes the key material.
func (c KeyConfig) Load() (*Keys, error) {
	if c.VerificationKey == "" {
		return nil, newError(ErrCodeKeyFormat, errors.New("verification key is required"))
	}
	return LoadKeys(c.VerificationKey, c.SigningKey)
}

// ValidatorConfig describes all identity providers the validator should trust.
type ValidatorConfig struct {
	Issuers []IssuerConfig `yaml:"issuers"`
}

// IssuerConfig contains ID token validation parameters for one provider.
// An empty JWKSURL selects Google mode.
type IssuerConfig struct {
	Name            string        `yaml:"name"`
	JWKSURL         string        `yaml:"jwks_url"`
	Issuer          string        `yaml:"issuer"`
	Audience        string        `yaml:"audience"`
	AllowedSubjects []string      `yaml:"allowed_subjects"`
	ClockSkew       time.Duration `yaml:"clock_skew"`
	MinRefresh      time.Duration `yaml:"min_refresh"`
	HTTPTimeout     time.Duration `yaml:"http_timeout"`
}

// normalize sets default values for optional fields.
func (c *IssuerConfig) normalize() {
	if c.JWKSURL == "" && c.Issuer == "" {
		c.Issuer = defaultGoogleIssuer
	}
	if c.ClockSkew <= 0 {
		c.ClockSkew = defaultClockSkew
	}
	if c.MinRefresh <= 0 {
		c.MinRefresh = defaultMinRefresh
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = defaultHTTPTimeout
	}
}

// validate ensures the issuer configuration is usable.
func (c IssuerConfig) validate() error {
	switch {
	case c.Name == "":
		return errors.New("issuer name is required")
	case c.Audience == "":
		return errors.New("audience is required")
	case c.JWKSURL == "":
		// Google mode, issuer optional (defaults applied in normalize)
		return nil
	case c.Issuer == "":
		return errors.New("issuer claim expected value is required")
	}
	return nil
}

// issuerIndex returns the config mapped by issuer name.
func (c ValidatorConfig) issuerIndex() (map[string]IssuerConfig, error) {
	if len(c.Issuers) == 0 {
		return nil, errors.New("at least one issuer must be configured")
	}
	index := make(map[string]IssuerConfig, len(c.Issuers))
	for _, issuer := range c.Issuers {
		if err := issuer.validate(); err != nil {
			return nil, fmt.Errorf("issuer %q: %w", issuer.Name, err)
		}
		if _, exists := index[issuer.Name]; exists {
			return nil, fmt.Errorf("duplicate issuer name %q", issuer.Name)
		}
		clone := issuer
		clone.normalize()
		index[clone.Name] = clone
	}
	return index, nil
}

// ExchangeConfig describes the OAuth 2.0 authorization-code client used to
// obtain an upstream ID token. Either Domain (Kinde-style tenants serving
// /oauth2/auth and /oauth2/token) or both AuthURL and TokenURL must be set.
type ExchangeConfig struct {
	Issuer       string        `yaml:"issuer"`
	Domain       string        `yaml:"domain"`
	AuthURL      string        `yaml:"auth_url"`
	TokenURL     string        `yaml:"token_url"`
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
	RedirectURL  string        `yaml:"redirect_url"`
	Scopes       []string      `yaml:"scopes"`
	HTTPTimeout  time.Duration `yaml:"http_timeout"`
}

func (c *ExchangeConfig) normalize() {
	c.Domain = strings.TrimRight(c.Domain, "/")
	if c.Domain != "" {
		if c.AuthURL == "" {
			c.AuthURL = c.Domain + "/oauth2/auth"
		}
		if c.TokenURL == "" {
			c.TokenURL = c.Domain + "/oauth2/token"
		}
	}
	if len(c.Scopes) == 0 {
		c.Scopes = append([]string(nil), defaultScopes...)
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = defaultHTTPTimeout
	}
}

func (c ExchangeConfig) validate() error {
	switch {
	case c.ClientID == "":
		return errors.New("client id is required")
	case c.RedirectURL == "":
		return errors.New("redirect url is required")
	case c.AuthURL == "" || c.TokenURL == "":
		return errors.New("domain or auth and token urls are required")
	}
	return nil
}
