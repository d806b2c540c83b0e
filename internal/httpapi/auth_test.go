package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t, RouterConfig{PairingSecret: "pair-me"})

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "not bearer", header: "Basic abc123"},
		{name: "garbage token", header: "Bearer not-a-jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/sessions", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			ts.handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestAuthRejectsWrongSigningKey(t *testing.T) {
	ts := newTestServer(t, RouterConfig{PairingSecret: "pair-me"})

	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "attacker",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		ClientID: "attacker",
	}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("wrong-secret"))
	if err != nil {
		t.Fatal(err)
	}

	rec := ts.do(t, "GET", "/api/sessions", forged, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestAuthRejectsExpiredToken(t *testing.T) {
	ts := newTestServer(t, RouterConfig{PairingSecret: "pair-me"})

	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "default",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
		ClientID: "default",
	}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}

	rec := ts.do(t, "GET", "/api/sessions", expired, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestIssuedTokenGrantsAccess(t *testing.T) {
	ts := newTestServer(t, RouterConfig{PairingSecret: "pair-me"})
	token := ts.token(t, "pair-me")

	rec := ts.do(t, "GET", "/api/sessions", token, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}
}

func TestIssueTokenRejectsWrongSecret(t *testing.T) {
	ts := newTestServer(t, RouterConfig{PairingSecret: "pair-me"})

	rec := ts.do(t, "POST", "/auth/token", "", map[string]string{"pairing_secret": "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestIssueTokenUnconfigured(t *testing.T) {
	ts := newTestServer(t, RouterConfig{})

	rec := ts.do(t, "POST", "/auth/token", "", map[string]string{"pairing_secret": "anything"})
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
