// Package ginauth adapts pasetox bearer-token verification to gin.
package ginauth

import (
	"net/http"
	"time"

	"github.com/bionicotaku/lingo-utils-pasetox"
	"github.com/gin-gonic/gin"
)

// ClaimsKey is the gin context key holding the verified *pasetox.Claims.
const ClaimsKey = "pasetox.claims"

var timeNow = time.Now

// Config controls where the token is read from.
type Config struct {
	// CookieName, when set, is consulted if the Authorization header is absent.
	CookieName string
	// DevBypass admits token-less requests as a synthetic caller.
	DevBypass *pasetox.DevBypassClaims
}

// Middleware verifies the bearer token (or cookie) of each request. On
// success the claims are stored under ClaimsKey and bound into the request
// context; on any failure the request is aborted with 401.
func Middleware(verifier pasetox.TokenVerifier, cfg Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var token string
		if header := c.GetHeader("Authorization"); header != "" {
			t, ok := pasetox.BearerToken(header)
			if !ok {
				abort(c)
				return
			}
			token = t
		}
		if token == "" && cfg.CookieName != "" {
			if cookie, err := c.Cookie(cfg.CookieName); err == nil {
				token = cookie
			}
		}

		if token == "" {
			if cfg.DevBypass == nil {
				abort(c)
				return
			}
			caller := cfg.DevBypass.ToCallerClaims(timeNow())
			bind(c, caller)
			c.Next()
			return
		}

		if verifier == nil {
			abort(c)
			return
		}
		claims, err := verifier.Verify(token)
		if err != nil {
			abort(c)
			return
		}
		bind(c, pasetox.CallerClaims{Claims: claims, Token: token})
		c.Next()
	}
}

// Claims returns the verified claims stored by Middleware.
func Claims(c *gin.Context) (*pasetox.Claims, bool) {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*pasetox.Claims)
	return claims, ok && claims != nil
}

func bind(c *gin.Context, caller pasetox.CallerClaims) {
	c.Set(ClaimsKey, caller.Claims)
	c.Request = c.Request.WithContext(pasetox.BindCallerClaims(c.Request.Context(), caller))
}

func abort(c *gin.Context) {
	c.Header("WWW-Authenticate", "Bearer")
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}
