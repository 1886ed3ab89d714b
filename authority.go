package pasetox

import (
	"io"
	"log/slog"
	"time"
)

// TokenVerifier authenticates bearer tokens.
type TokenVerifier interface {
	Verify(token string) (*Claims, error)
}

// AuthorityOption customizes an Authority.
type AuthorityOption func(*Authority)

// WithClock overrides the time source used for claims and expiry checks.
func WithClock(now func() time.Time) AuthorityOption {
	return func(a *Authority) {
		if now != nil {
			a.now = now
		}
	}
}

// WithLogger sets the logger used to record issuance and rejections.
func WithLogger(logger *slog.Logger) AuthorityOption {
	return func(a *Authority) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// Authority issues and verifies tokens with one immutable key set. It is
// safe for concurrent use.
type Authority struct {
	keys        *Keys
	now         func() time.Time
	logger      *slog.Logger
	fingerprint string
}

// NewAuthority binds keys to an Authority.
func NewAuthority(keys *Keys, opts ...AuthorityOption) (*Authority, error) {
	if keys == nil || len(keys.public) == 0 {
		return nil, newError(ErrCodeKeyFormat, nil)
	}
	a := &Authority{
		keys:        keys,
		now:         time.Now,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		fingerprint: keys.Fingerprint(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Keys returns the key set bound to the authority.
func (a *Authority) Keys() *Keys {
	return a.keys
}

// CanIssue reports whether the authority holds a signing key.
func (a *Authority) CanIssue() bool {
	return a.keys.CanSign()
}

// Issue signs claims into a token.
func (a *Authority) Issue(claims Claims) (string, error) {
	token, err := Issue(a.keys, claims)
	if err != nil {
		a.logger.Warn("token issuance failed",
			"key", a.fingerprint,
			"code", string(CodeOf(err)),
		)
		return "", err
	}
	a.logger.Debug("token issued",
		"key", a.fingerprint,
		"subject", claims.Subject,
		"exp", claims.Expiry,
	)
	return token, nil
}

// IssueFor builds default claims for identity and signs them.
func (a *Authority) IssueFor(identity Identity) (string, Claims, error) {
	claims := DefaultClaimsAt(a.now(), identity.Subject, identity.Email, identity.Name)
	token, err := a.Issue(claims)
	if err != nil {
		return "", Claims{}, err
	}
	return token, claims, nil
}

// Verify authenticates token and returns its claims.
func (a *Authority) Verify(token string) (*Claims, error) {
	claims, err := VerifyAt(a.keys, token, a.now())
	if err != nil {
		a.logger.Debug("token rejected",
			"key", a.fingerprint,
			"code", string(CodeOf(err)),
		)
		return nil, err
	}
	return claims, nil
}
