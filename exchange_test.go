package pasetox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

type stubIdentityValidator struct {
	token  string
	issuer string
	err    error
}

func (s *stubIdentityValidator) Validate(_ context.Context, token, issuerName string) (*Identity, error) {
	s.token = token
	s.issuer = issuerName
	if s.err != nil {
		return nil, s.err
	}
	return &Identity{Subject: "kp_1", Email: "a@b.com", Name: "Alice"}, nil
}

// newTokenEndpoint serves /oauth2/token, checks the PKCE verifier and answers
// with idToken (omitted when empty).
func newTokenEndpoint(t *testing.T, wantVerifier *string, idToken string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.Form.Get("grant_type") != "authorization_code" {
			t.Errorf("grant_type = %q", r.Form.Get("grant_type"))
		}
		if r.Form.Get("code") != "auth-code" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
			return
		}
		if wantVerifier != nil && r.Form.Get("code_verifier") != *wantVerifier {
			t.Errorf("code_verifier = %q, want %q", r.Form.Get("code_verifier"), *wantVerifier)
		}
		body := map[string]any{
			"access_token": "access",
			"token_type":   "Bearer",
			"expires_in":   3600,
		}
		if idToken != "" {
			body["id_token"] = idToken
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestExchanger(t *testing.T, domain string, validator IdentityTokenValidator) *Exchanger {
	t.Helper()
	exchanger, err := NewExchanger(ExchangeConfig{
		Issuer:      "kinde",
		Domain:      domain + "/",
		ClientID:    "client-123",
		RedirectURL: "http://localhost:8080/auth/callback",
	}, validator)
	if err != nil {
		t.Fatalf("NewExchanger: %v", err)
	}
	return exchanger
}

func TestExchangerBeginComplete(t *testing.T) {
	var verifier string
	server := newTokenEndpoint(t, &verifier, "upstream-id-token")
	validator := &stubIdentityValidator{}
	exchanger := newTestExchanger(t, server.URL, validator)

	login := exchanger.Begin("state-1")
	verifier = login.Verifier
	if login.State != "state-1" || login.Verifier == "" {
		t.Fatalf("unexpected login request: %+v", login)
	}

	u, err := url.Parse(login.URL)
	if err != nil {
		t.Fatalf("parse login url: %v", err)
	}
	if !strings.HasSuffix(u.Path, "/oauth2/auth") {
		t.Fatalf("auth path = %s", u.Path)
	}
	q := u.Query()
	if q.Get("state") != "state-1" || q.Get("client_id") != "client-123" {
		t.Fatalf("unexpected query: %v", q)
	}
	if q.Get("code_challenge_method") != "S256" || q.Get("code_challenge") == "" {
		t.Fatalf("missing PKCE challenge: %v", q)
	}
	if q.Get("scope") != "openid profile email" {
		t.Fatalf("scope = %q", q.Get("scope"))
	}

	identity, err := exchanger.Complete(context.Background(), login, "auth-code")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if identity.Subject != "kp_1" {
		t.Fatalf("unexpected identity: %+v", identity)
	}
	if validator.token != "upstream-id-token" || validator.issuer != "kinde" {
		t.Fatalf("validator saw token=%q issuer=%q", validator.token, validator.issuer)
	}
}

func TestExchangerErrors(t *testing.T) {
	t.Run("empty code", func(t *testing.T) {
		exchanger := newTestExchanger(t, "https://tenant.example.com", &stubIdentityValidator{})
		_, err := exchanger.Exchange(context.Background(), "  ")
		expectCode(t, err, ErrCodeExchangeFailed)
	})

	t.Run("rejected code", func(t *testing.T) {
		server := newTokenEndpoint(t, nil, "upstream-id-token")
		exchanger := newTestExchanger(t, server.URL, &stubIdentityValidator{})
		_, err := exchanger.Exchange(context.Background(), "other-code")
		expectCode(t, err, ErrCodeExchangeFailed)
	})

	t.Run("missing id token", func(t *testing.T) {
		server := newTokenEndpoint(t, nil, "")
		exchanger := newTestExchanger(t, server.URL, &stubIdentityValidator{})
		_, err := exchanger.Exchange(context.Background(), "auth-code")
		expectCode(t, err, ErrCodeExchangeFailed)
	})

	t.Run("invalid id token", func(t *testing.T) {
		server := newTokenEndpoint(t, nil, "upstream-id-token")
		validator := &stubIdentityValidator{err: newError(ErrCodeInvalidAudience, nil)}
		exchanger := newTestExchanger(t, server.URL, validator)
		_, err := exchanger.Exchange(context.Background(), "auth-code")
		expectCode(t, err, ErrCodeInvalidAudience)
	})
}

func TestNewExchangerConfig(t *testing.T) {
	if _, err := NewExchanger(ExchangeConfig{ClientID: "c", RedirectURL: "r", Domain: "https://d"}, nil); err == nil {
		t.Fatal("expected error for nil validator")
	}

	cases := map[string]ExchangeConfig{
		"missing client":   {RedirectURL: "r", Domain: "https://d"},
		"missing redirect": {ClientID: "c", Domain: "https://d"},
		"missing urls":     {ClientID: "c", RedirectURL: "r", AuthURL: "https://d/auth"},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := NewExchanger(cfg, &stubIdentityValidator{}); err == nil {
				t.Fatal("expected configuration error")
			}
		})
	}

	exchanger, err := NewExchanger(ExchangeConfig{
		ClientID:    "c",
		RedirectURL: "r",
		AuthURL:     "https://idp/authorize",
		TokenURL:    "https://idp/token",
		Scopes:      []string{"openid"},
	}, &stubIdentityValidator{})
	if err != nil {
		t.Fatalf("NewExchanger: %v", err)
	}
	if !strings.HasPrefix(exchanger.AuthCodeURL("s"), "https://idp/authorize?") {
		t.Fatalf("unexpected auth url: %s", exchanger.AuthCodeURL("s"))
	}
}
