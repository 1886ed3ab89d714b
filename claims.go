package pasetox

import (
	"errors"
	"fmt"
	"time"
)

// DefaultValidity is the lifetime of claims built by DefaultClaims.
const DefaultValidity = time.Hour

// Claims is the identity assertion carried in a token payload. Timestamps
// are RFC 3339 strings with second precision in UTC, not epoch numbers;
// they are signed exactly as rendered.
type Claims struct {
	Subject  string `json:"sub"`
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
	IssuedAt string `json:"iat"`
	Expiry   string `json:"exp"`
}

// DefaultClaims builds claims for subject valid from now for DefaultValidity.
func DefaultClaims(subject, email, name string) Claims {
	return DefaultClaimsAt(time.Now(), subject, email, name)
}

// DefaultClaimsAt is like DefaultClaims but takes the issuance instant.
func DefaultClaimsAt(now time.Time, subject, email, name string) Claims {
	iat := now.UTC().Truncate(time.Second)
	return Claims{
		Subject:  subject,
		Email:    email,
		Name:     name,
		IssuedAt: formatTimestamp(iat),
		Expiry:   formatTimestamp(iat.Add(DefaultValidity)),
	}
}

// ExpiresAt parses the exp claim.
func (c Claims) ExpiresAt() (time.Time, error) {
	return parseTimestamp("exp", c.Expiry)
}

// IssuedAtTime parses the iat claim.
func (c Claims) IssuedAtTime() (time.Time, error) {
	return parseTimestamp("iat", c.IssuedAt)
}

func (c Claims) validate() error {
	if c.Subject == "" {
		return errors.New("subject is required")
	}
	return nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTimestamp(name, value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %s: %w", name, err)
	}
	return t, nil
}
