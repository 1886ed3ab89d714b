package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	pasetox "github.com/bionicotaku/lingo-utils-pasetox"
	"gopkg.in/yaml.v3"
)

const (
	envConfig = "PASETOX_CONFIG"

	defaultPort     = 3001
	defaultLoginTTL = 10 * time.Minute
	kindeIssuerName = "kinde"
)

// Config is the auth-server configuration file.
type Config struct {
	Host       string                   `yaml:"host"`
	Port       int                      `yaml:"port"`
	Mode       string                   `yaml:"mode"`
	LogFormat  string                   `yaml:"log_format"`
	Debug      bool                     `yaml:"debug"`
	LoginTTL   time.Duration            `yaml:"login_ttl"`
	CookieName string                   `yaml:"cookie_name"`
	Keys       pasetox.KeyConfig        `yaml:"keys"`
	Identity   pasetox.ValidatorConfig  `yaml:"identity"`
	Exchange   pasetox.ExchangeConfig   `yaml:"exchange"`
	DevBypass  *pasetox.DevBypassClaims `yaml:"dev_bypass"`
}

// loadConfig reads path when given and fills everything the file leaves empty
// from the environment.
func loadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	env := pasetox.KeyConfigFromEnv()
	if c.Keys.VerificationKey == "" {
		c.Keys.VerificationKey = env.VerificationKey
	}
	if c.Keys.SigningKey == "" {
		c.Keys.SigningKey = env.SigningKey
	}

	setIfEmpty(&c.Exchange.Domain, "KINDE_DOMAIN")
	setIfEmpty(&c.Exchange.ClientID, "KINDE_CLIENT_ID")
	setIfEmpty(&c.Exchange.ClientSecret, "KINDE_CLIENT_SECRET")
	setIfEmpty(&c.Exchange.RedirectURL, "KINDE_REDIRECT_URI")

	if raw := strings.TrimSpace(os.Getenv("PORT")); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("invalid PORT %q", raw)
		}
		c.Port = port
	}
	return nil
}

func (c *Config) normalize() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.LoginTTL <= 0 {
		c.LoginTTL = defaultLoginTTL
	}
	if c.Mode == "" {
		c.Mode = "release"
	}
	if c.Exchange.RedirectURL == "" {
		c.Exchange.RedirectURL = fmt.Sprintf("http://localhost:%d/auth/callback", c.Port)
	}

	// A Kinde domain with no explicit identity issuers trusts the tenant's
	// own JWKS, with the client id as audience.
	domain := strings.TrimRight(c.Exchange.Domain, "/")
	if len(c.Identity.Issuers) == 0 && domain != "" && c.Exchange.ClientID != "" {
		c.Identity.Issuers = []pasetox.IssuerConfig{{
			Name:     kindeIssuerName,
			JWKSURL:  domain + "/.well-known/jwks.json",
			Issuer:   domain,
			Audience: c.Exchange.ClientID,
		}}
	}
	if c.Exchange.Issuer == "" && len(c.Identity.Issuers) == 1 {
		c.Exchange.Issuer = c.Identity.Issuers[0].Name
	}
}

// loginEnabled reports whether the OAuth login routes can be served.
func (c *Config) loginEnabled() bool {
	return c.Exchange.ClientID != "" && len(c.Identity.Issuers) > 0
}

func (c *Config) validate() error {
	if c.Keys.VerificationKey == "" {
		return errors.New("verification key is required (keys.verification_key or " + pasetox.EnvVerificationKey + ")")
	}
	switch c.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log_format %q", c.LogFormat)
	}
	return nil
}

func setIfEmpty(dst *string, key string) {
	if *dst == "" {
		*dst = strings.TrimSpace(os.Getenv(key))
	}
}
