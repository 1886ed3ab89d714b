package main

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	pasetox "github.com/bionicotaku/lingo-utils-pasetox"
	"github.com/bionicotaku/lingo-utils-pasetox/ginauth"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// loginFlow is the part of *pasetox.Exchanger the server drives.
type loginFlow interface {
	Begin(state string) pasetox.LoginRequest
	Complete(ctx context.Context, req pasetox.LoginRequest, code string) (*pasetox.Identity, error)
}

// apiResponse is the envelope every JSON endpoint returns.
type apiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message"`
}

type sessionResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	ExpiresAt string `json:"expires_at"`
	Subject   string `json:"subject"`
}

type verifyRequest struct {
	Token string `json:"token" binding:"required"`
}

type server struct {
	authority *pasetox.Authority
	login     loginFlow
	logins    *loginStore
	logger    *slog.Logger
	auth      ginauth.Config
	cookie    string
}

func newServer(authority *pasetox.Authority, login loginFlow, cfg *Config, logger *slog.Logger) *server {
	return &server{
		authority: authority,
		login:     login,
		logins:    newLoginStore(cfg.LoginTTL, time.Now),
		logger:    logger,
		auth: ginauth.Config{
			CookieName: cfg.CookieName,
			DevBypass:  cfg.DevBypass,
		},
		cookie: cfg.CookieName,
	}
}

func (s *server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/health", s.health)
	r.GET("/auth/login", s.beginLogin)
	r.GET("/auth/callback", s.callback)
	r.POST("/auth/verify", s.verify)

	api := r.Group("/api", ginauth.Middleware(s.authority, s.auth))
	api.GET("/me", s.me)
	return r
}

// requestLogger tags each request with an id and logs its outcome.
func (s *server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			"id", id,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func (s *server) health(c *gin.Context) {
	c.JSON(http.StatusOK, apiResponse{
		Success: true,
		Data:    gin.H{"can_issue": s.authority.CanIssue(), "key": s.authority.Keys().Fingerprint()},
		Message: "Health check passed",
	})
}

func (s *server) beginLogin(c *gin.Context) {
	if s.login == nil || !s.authority.CanIssue() {
		c.JSON(http.StatusServiceUnavailable, apiResponse{Message: "login is not configured"})
		return
	}
	req := s.login.Begin(uuid.NewString())
	s.logins.put(req)

	if c.Query("redirect") == "true" {
		c.Redirect(http.StatusFound, req.URL)
		return
	}
	c.JSON(http.StatusOK, apiResponse{
		Success: true,
		Data:    gin.H{"url": req.URL, "state": req.State},
		Message: "Login URL generated",
	})
}

func (s *server) callback(c *gin.Context) {
	if s.login == nil {
		c.JSON(http.StatusServiceUnavailable, apiResponse{Message: "login is not configured"})
		return
	}
	if errParam := c.Query("error"); errParam != "" {
		s.logger.Warn("provider returned error", "error", errParam)
		c.JSON(http.StatusUnauthorized, apiResponse{Message: "unauthorized"})
		return
	}
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, apiResponse{Message: "missing code"})
		return
	}
	req, ok := s.logins.take(c.Query("state"))
	if !ok {
		c.JSON(http.StatusBadRequest, apiResponse{Message: "unknown or expired login state"})
		return
	}

	identity, err := s.login.Complete(c.Request.Context(), req, code)
	if err != nil {
		s.logger.Warn("login rejected", "code", pasetox.CodeOf(err), "error", err)
		c.JSON(http.StatusUnauthorized, apiResponse{Message: "unauthorized"})
		return
	}

	token, claims, err := s.authority.IssueFor(*identity)
	if err != nil {
		s.logger.Error("issue session token", "code", pasetox.CodeOf(err), "error", err)
		c.JSON(http.StatusInternalServerError, apiResponse{Message: "could not issue session"})
		return
	}
	if s.cookie != "" {
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(s.cookie, token, int(pasetox.DefaultValidity/time.Second), "/", "", c.Request.TLS != nil, true)
	}
	c.JSON(http.StatusOK, apiResponse{
		Success: true,
		Data: sessionResponse{
			Token:     token,
			TokenType: "Bearer",
			ExpiresAt: claims.Expiry,
			Subject:   claims.Subject,
		},
		Message: "Authentication successful",
	})
}

func (s *server) verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiResponse{Message: "token is required"})
		return
	}
	claims, err := s.authority.Verify(req.Token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, apiResponse{Message: "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, apiResponse{Success: true, Data: claims, Message: "Token valid"})
}

func (s *server) me(c *gin.Context) {
	claims, ok := ginauth.Claims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, apiResponse{Message: "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, apiResponse{Success: true, Data: claims, Message: "Authenticated"})
}
