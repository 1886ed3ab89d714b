package pasetox

import "time"

// DevBypassClaims holds attributes used when injecting synthetic callers in dev mode.
type DevBypassClaims struct {
	Subject string `yaml:"subject"`
	Email   string `yaml:"email"`
	Name    string `yaml:"name"`
}

// ToCallerClaims converts the dev bypass configuration into caller claims
// valid for DefaultValidity from now.
func (d DevBypassClaims) ToCallerClaims(now time.Time) CallerClaims {
	claims := DefaultClaimsAt(now, d.Subject, d.Email, d.Name)
	return CallerClaims{
		Claims:    &claims,
		DevBypass: true,
	}
}

// DefaultDevBypassClaims returns a baseline identity suitable for local development.
func DefaultDevBypassClaims() DevBypassClaims {
	return DevBypassClaims{
		Subject: "dev-bypass",
		Email:   "dev@localhost",
		Name:    "Dev User",
	}
}
