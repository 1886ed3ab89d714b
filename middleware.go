package pasetox

import (
	"net/http"
	"strings"
	"time"
)

const bearerPrefix = "Bearer "

// MiddlewareOption customizes Middleware.
type MiddlewareOption func(*middlewareConfig)

type middlewareConfig struct {
	devBypass    *DevBypassClaims
	unauthorized http.Handler
	now          func() time.Time
}

// WithDevBypass admits requests that carry no token as the given synthetic
// caller. Requests that do carry a token are still verified.
func WithDevBypass(claims DevBypassClaims) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.devBypass = &claims
	}
}

// WithUnauthorizedHandler replaces the default plain-text 401 response.
func WithUnauthorizedHandler(h http.Handler) MiddlewareOption {
	return func(c *middlewareConfig) {
		if h != nil {
			c.unauthorized = h
		}
	}
}

// Middleware authenticates the bearer token of every request and binds the
// verified claims into the request context. Every failure produces the same
// 401 response so callers cannot probe which check rejected the token.
func Middleware(verifier TokenVerifier, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := middlewareConfig{
		unauthorized: http.HandlerFunc(unauthorized),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" && cfg.devBypass != nil {
				ctx := BindCallerClaims(r.Context(), cfg.devBypass.ToCallerClaims(cfg.now()))
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
			if verifier == nil {
				cfg.unauthorized.ServeHTTP(w, r)
				return
			}

			token, ok := BearerToken(header)
			if !ok {
				cfg.unauthorized.ServeHTTP(w, r)
				return
			}
			claims, err := verifier.Verify(token)
			if err != nil {
				cfg.unauthorized.ServeHTTP(w, r)
				return
			}

			ctx := BindCallerClaims(r.Context(), CallerClaims{Claims: claims, Token: token})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header value.
func BearerToken(value string) (string, bool) {
	if len(value) < len(bearerPrefix) || !strings.EqualFold(value[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(value[len(bearerPrefix):])
	if token == "" {
		return "", false
	}
	return token, true
}

func unauthorized(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}
