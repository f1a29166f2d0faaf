package idp

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// testKeyID — идентификатор ключа для тестов.
const testKeyID = "test-key-au"

const testClientID = "test-client-id.apps.googleusercontent.com"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// generateTestKey генерирует RSA ключ для тестов.
func generateTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

// buildJWKSetJSON строит JWKS JSON из RSA публичного ключа.
func buildJWKSetJSON(pub *rsa.PublicKey, kid string) json.RawMessage {
	nB64 := base64.RawURLEncoding.EncodeToString(pub.N.Bytes())
	eB64 := base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes())

	jwks := map[string]any{
		"keys": []map[string]any{
			{
				"kty": "RSA",
				"kid": kid,
				"use": "sig",
				"alg": "RS256",
				"n":   nB64,
				"e":   eB64,
			},
		},
	}

	data, _ := json.Marshal(jwks)
	return data
}

// newTestVerifier создаёт Verifier с mock JWKS.
func newTestVerifier(t *testing.T, key *rsa.PrivateKey) *Verifier {
	t.Helper()
	kf, err := keyfunc.NewJWKSetJSON(buildJWKSetJSON(&key.PublicKey, testKeyID))
	if err != nil {
		t.Fatalf("не удалось создать keyfunc: %v", err)
	}
	return NewVerifierWithKeyfunc(kf, testClientID, testLogger())
}

// signIDToken подписывает id_token с заданными claims.
func signIDToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("не удалось подписать токен: %v", err)
	}
	return signed
}

func validIDTokenClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"iss":            "https://accounts.google.com",
		"aud":            testClientID,
		"sub":            "108976543210123456789",
		"email":          "user@example.com",
		"email_verified": true,
		"name":           "Тестовый Пользователь",
		"picture":        "https://lh3.example.com/photo.jpg",
		"iat":            jwt.NewNumericDate(time.Now()),
		"exp":            jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
}

func TestVerifyIDToken_Valid(t *testing.T) {
	key := generateTestKey(t)
	v := newTestVerifier(t, key)

	token := signIDToken(t, key, validIDTokenClaims())
	identity, err := v.VerifyIDToken(context.Background(), token)
	if err != nil {
		t.Fatalf("VerifyIDToken: %v", err)
	}
	if identity.Subject != "108976543210123456789" {
		t.Errorf("Subject = %q", identity.Subject)
	}
	if identity.Email != "user@example.com" {
		t.Errorf("Email = %q", identity.Email)
	}
	if !identity.EmailVerified {
		t.Error("EmailVerified = false, ожидалось true")
	}
	if identity.Picture == "" {
		t.Error("Picture пустой")
	}
}

func TestVerifyIDToken_IssuerWithoutScheme(t *testing.T) {
	key := generateTestKey(t)
	v := newTestVerifier(t, key)

	claims := validIDTokenClaims()
	claims["iss"] = "accounts.google.com"
	token := signIDToken(t, key, claims)

	if _, err := v.VerifyIDToken(context.Background(), token); err != nil {
		t.Errorf("issuer без схемы должен приниматься: %v", err)
	}
}

func TestVerifyIDToken_Rejected(t *testing.T) {
	key := generateTestKey(t)
	v := newTestVerifier(t, key)

	tests := []struct {
		name   string
		mutate func(jwt.MapClaims)
	}{
		{
			name: "чужой issuer",
			mutate: func(c jwt.MapClaims) {
				c["iss"] = "https://evil.example.com"
			},
		},
		{
			name: "чужой audience",
			mutate: func(c jwt.MapClaims) {
				c["aud"] = "another-client-id"
			},
		},
		{
			name: "истёкший токен",
			mutate: func(c jwt.MapClaims) {
				c["exp"] = jwt.NewNumericDate(time.Now().Add(-time.Hour))
			},
		},
		{
			name: "без subject",
			mutate: func(c jwt.MapClaims) {
				delete(c, "sub")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := validIDTokenClaims()
			tt.mutate(claims)
			token := signIDToken(t, key, claims)

			_, err := v.VerifyIDToken(context.Background(), token)
			if !errors.Is(err, ErrInvalidExternalToken) {
				t.Errorf("ожидалась ErrInvalidExternalToken, получено: %v", err)
			}
		})
	}
}

func TestVerifyIDToken_WrongKey(t *testing.T) {
	key := generateTestKey(t)
	otherKey := generateTestKey(t)
	v := newTestVerifier(t, key)

	token := signIDToken(t, otherKey, validIDTokenClaims())
	if _, err := v.VerifyIDToken(context.Background(), token); !errors.Is(err, ErrInvalidExternalToken) {
		t.Errorf("токен с чужой подписью должен отклоняться, получено: %v", err)
	}
}

// newDiscoveryServer поднимает mock провайдера: discovery + token + userinfo.
func newDiscoveryServer(t *testing.T, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var srv *httptest.Server

	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, _ *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"issuer":                 "https://accounts.google.com",
			"authorization_endpoint": srv.URL + "/o/oauth2/v2/auth",
			"token_endpoint":         srv.URL + "/token",
			"userinfo_endpoint":      srv.URL + "/v1/userinfo",
			"jwks_uri":               srv.URL + "/oauth2/v3/certs",
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("code") != "valid-code" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":             "invalid_grant",
				"error_description": "Bad authorization code",
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "mock-access-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"id_token":     "mock-id-token",
		})
	})
	mux.HandleFunc("/v1/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer mock-access-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sub":            "108976543210123456789",
			"email":          "user@example.com",
			"email_verified": true,
			"name":           "Тестовый Пользователь",
			"picture":        "https://lh3.example.com/photo.jpg",
		})
	})

	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(srv *httptest.Server, ttl time.Duration) *Client {
	return NewClient(Config{
		ClientID:     testClientID,
		ClientSecret: "test-secret",
		DiscoveryURL: srv.URL + "/.well-known/openid-configuration",
		DiscoveryTTL: ttl,
		Timeout:      5 * time.Second,
	}, testLogger())
}

func TestClient_DiscoveryCached(t *testing.T) {
	var hits atomic.Int64
	srv := newDiscoveryServer(t, &hits)
	c := newTestClient(srv, time.Hour)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := c.Discovery(ctx); err != nil {
			t.Fatalf("Discovery: %v", err)
		}
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("discovery запрошен %d раз, ожидался 1 (кэш)", got)
	}
}

func TestClient_AuthorizationURL(t *testing.T) {
	srv := newDiscoveryServer(t, nil)
	c := newTestClient(srv, time.Hour)

	u, err := c.AuthorizationURL(context.Background(), "http://localhost:5000/api/auth/google/callback", "random-state")
	if err != nil {
		t.Fatalf("AuthorizationURL: %v", err)
	}
	for _, want := range []string{
		"response_type=code",
		"client_id=" + "test-client-id.apps.googleusercontent.com",
		"scope=openid+email+profile",
		"state=random-state",
	} {
		if !strings.Contains(u, want) {
			t.Errorf("URL %q не содержит %q", u, want)
		}
	}
}

func TestClient_ExchangeCode(t *testing.T) {
	srv := newDiscoveryServer(t, nil)
	c := newTestClient(srv, time.Hour)

	resp, err := c.ExchangeCode(context.Background(), "valid-code", "http://localhost:5000/api/auth/google/callback")
	if err != nil {
		t.Fatalf("ExchangeCode: %v", err)
	}
	if resp.AccessToken != "mock-access-token" {
		t.Errorf("AccessToken = %q", resp.AccessToken)
	}

	_, err = c.ExchangeCode(context.Background(), "bad-code", "http://localhost:5000/api/auth/google/callback")
	if !errors.Is(err, ErrUpstream) {
		t.Errorf("неверный code: ожидалась ErrUpstream, получено: %v", err)
	}
}

func TestClient_Userinfo(t *testing.T) {
	srv := newDiscoveryServer(t, nil)
	c := newTestClient(srv, time.Hour)

	identity, err := c.Userinfo(context.Background(), "mock-access-token")
	if err != nil {
		t.Fatalf("Userinfo: %v", err)
	}
	if identity.Subject != "108976543210123456789" {
		t.Errorf("Subject = %q", identity.Subject)
	}
	if !identity.EmailVerified {
		t.Error("EmailVerified = false")
	}
}

func TestClient_UpstreamDown(t *testing.T) {
	srv := newDiscoveryServer(t, nil)
	c := newTestClient(srv, time.Hour)
	srv.Close()

	_, err := c.Discovery(context.Background())
	if !errors.Is(err, ErrUpstream) {
		t.Errorf("ожидалась ErrUpstream, получено: %v", err)
	}
}
