package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	pasetox "github.com/bionicotaku/lingo-utils-pasetox"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeLogin struct {
	identity *pasetox.Identity
	err      error
	verifier string
}

func (f *fakeLogin) Begin(state string) pasetox.LoginRequest {
	return pasetox.LoginRequest{
		State:    state,
		Verifier: "verifier-" + state,
		URL:      "https://idp.example.com/oauth2/auth?state=" + url.QueryEscape(state),
	}
}

func (f *fakeLogin) Complete(_ context.Context, req pasetox.LoginRequest, code string) (*pasetox.Identity, error) {
	f.verifier = req.Verifier
	if f.err != nil {
		return nil, f.err
	}
	return f.identity, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func newTestServer(t *testing.T, login loginFlow, cfg *Config) (*server, *gin.Engine) {
	t.Helper()
	keys, err := pasetox.GenerateKeys()
	if err != nil {
		t.Fatalf("GenerateKeys: %v", err)
	}
	authority, err := pasetox.NewAuthority(keys)
	if err != nil {
		t.Fatalf("NewAuthority: %v", err)
	}
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.normalize()
	srv := newServer(authority, login, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return srv, srv.routes()
}

func do(t *testing.T, router http.Handler, method, target string, body io.Reader, header http.Header) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	for k, values := range header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	var env envelope
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, env
}

func startLogin(t *testing.T, router http.Handler) string {
	t.Helper()
	rec, env := do(t, router, http.MethodGet, "/auth/login", nil, nil)
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("login status = %d body = %s", rec.Code, rec.Body.String())
	}
	var data struct {
		URL   string `json:"url"`
		State string `json:"state"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode login data: %v", err)
	}
	if data.State == "" || !strings.Contains(data.URL, url.QueryEscape(data.State)) {
		t.Fatalf("unexpected login data: %+v", data)
	}
	return data.State
}

func TestHealth(t *testing.T) {
	_, router := newTestServer(t, nil, nil)
	rec, env := do(t, router, http.MethodGet, "/health", nil, nil)
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(requestIDHeader) == "" {
		t.Fatal("expected a request id header")
	}

	rec, _ = do(t, router, http.MethodGet, "/health", nil, http.Header{requestIDHeader: {"req-1"}})
	if rec.Header().Get(requestIDHeader) != "req-1" {
		t.Fatalf("request id = %q", rec.Header().Get(requestIDHeader))
	}
}

func TestLoginCallbackFlow(t *testing.T) {
	login := &fakeLogin{identity: &pasetox.Identity{Subject: "kp_1", Email: "a@b.com", Name: "Alice"}}
	srv, router := newTestServer(t, login, &Config{CookieName: "session"})

	state := startLogin(t, router)
	rec, env := do(t, router, http.MethodGet, "/auth/callback?code=abc&state="+url.QueryEscape(state), nil, nil)
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("callback status = %d body = %s", rec.Code, rec.Body.String())
	}
	if login.verifier != "verifier-"+state {
		t.Fatalf("login completed with verifier %q", login.verifier)
	}

	var session sessionResponse
	if err := json.Unmarshal(env.Data, &session); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if session.TokenType != "Bearer" || session.Subject != "kp_1" || session.ExpiresAt == "" {
		t.Fatalf("unexpected session: %+v", session)
	}
	claims, err := srv.authority.Verify(session.Token)
	if err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}
	if claims.Email != "a@b.com" || claims.Name != "Alice" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "session" {
			cookie = c
		}
	}
	if cookie == nil || cookie.Value != session.Token || !cookie.HttpOnly {
		t.Fatalf("unexpected session cookie: %+v", cookie)
	}

	// State values are single use.
	rec, _ = do(t, router, http.MethodGet, "/auth/callback?code=abc&state="+url.QueryEscape(state), nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("replayed state status = %d", rec.Code)
	}

	// The issued token opens /api/me.
	rec, env = do(t, router, http.MethodGet, "/api/me", nil, http.Header{"Authorization": {"Bearer " + session.Token}})
	if rec.Code != http.StatusOK {
		t.Fatalf("/api/me status = %d body = %s", rec.Code, rec.Body.String())
	}
	var me pasetox.Claims
	if err := json.Unmarshal(env.Data, &me); err != nil {
		t.Fatalf("decode claims: %v", err)
	}
	if me != *claims {
		t.Fatalf("me = %+v, want %+v", me, *claims)
	}
}

func TestCallbackErrors(t *testing.T) {
	login := &fakeLogin{err: &pasetox.Error{Code: pasetox.ErrCodeInvalidAudience}}
	_, router := newTestServer(t, login, nil)

	rec, _ := do(t, router, http.MethodGet, "/auth/callback?state=x", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing code status = %d", rec.Code)
	}
	rec, _ = do(t, router, http.MethodGet, "/auth/callback?code=abc&state=unknown", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown state status = %d", rec.Code)
	}
	rec, _ = do(t, router, http.MethodGet, "/auth/callback?error=access_denied", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("provider error status = %d", rec.Code)
	}

	state := startLogin(t, router)
	rec, env := do(t, router, http.MethodGet, "/auth/callback?code=abc&state="+url.QueryEscape(state), nil, nil)
	if rec.Code != http.StatusUnauthorized || env.Message != "unauthorized" {
		t.Fatalf("rejected identity status = %d body = %s", rec.Code, rec.Body.String())
	}
}

func TestLoginDisabled(t *testing.T) {
	_, router := newTestServer(t, nil, nil)
	for _, target := range []string{"/auth/login", "/auth/callback?code=abc&state=s"} {
		rec, _ := do(t, router, http.MethodGet, target, nil, nil)
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s status = %d", target, rec.Code)
		}
	}
}

func TestLoginRedirect(t *testing.T) {
	_, router := newTestServer(t, &fakeLogin{}, nil)
	rec, _ := do(t, router, http.MethodGet, "/auth/login?redirect=true", nil, nil)
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.HasPrefix(rec.Header().Get("Location"), "https://idp.example.com/oauth2/auth?state=") {
		t.Fatalf("location = %q", rec.Header().Get("Location"))
	}
}

func TestVerifyEndpoint(t *testing.T) {
	srv, router := newTestServer(t, nil, nil)
	token, _, err := srv.authority.IssueFor(pasetox.Identity{Subject: "user-1"})
	if err != nil {
		t.Fatalf("IssueFor: %v", err)
	}
	jsonHeader := http.Header{"Content-Type": {"application/json"}}

	rec, env := do(t, router, http.MethodPost, "/auth/verify", bytes.NewBufferString(`{"token":"`+token+`"}`), jsonHeader)
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}

	rec, env = do(t, router, http.MethodPost, "/auth/verify", bytes.NewBufferString(`{"token":"v4.public.x.y"}`), jsonHeader)
	if rec.Code != http.StatusUnauthorized || env.Message != "unauthorized" {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}

	rec, _ = do(t, router, http.MethodPost, "/auth/verify", bytes.NewBufferString(`{}`), jsonHeader)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestMeRequiresToken(t *testing.T) {
	_, router := newTestServer(t, nil, nil)
	rec, _ := do(t, router, http.MethodGet, "/api/me", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}

	dev := pasetox.DefaultDevBypassClaims()
	_, router = newTestServer(t, nil, &Config{DevBypass: &dev})
	rec, _ = do(t, router, http.MethodGet, "/api/me", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("dev bypass status = %d", rec.Code)
	}
}

func TestLoginStoreExpiry(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	store := newLoginStore(time.Minute, func() time.Time { return now })
	store.put(pasetox.LoginRequest{State: "a"})
	store.put(pasetox.LoginRequest{State: "b"})

	if _, ok := store.take("a"); !ok {
		t.Fatal("expected pending login a")
	}
	if _, ok := store.take("a"); ok {
		t.Fatal("login a must be single use")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := store.take("b"); ok {
		t.Fatal("expired login must not be returned")
	}
}
