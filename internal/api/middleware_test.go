package api

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newSigningKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate RSA key: %v", err)
	}
	return key
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func jwksServer(t *testing.T, key *rsa.PublicKey, kid string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"keys": []map[string]string{{
				"kid": kid,
				"kty": "RSA",
				"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
			}},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func sessionEcho(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, ok := SessionFromContext(r.Context())
		if !ok {
			t.Fatal("expected session in context")
		}
		writeJSON(w, http.StatusOK, map[string]string{"user": session.UserID, "token": session.Token})
	})
}

func TestClerkAuthMiddlewareBuildsSession(t *testing.T) {
	key := newSigningKey(t)
	server := jwksServer(t, &key.PublicKey, "kid-1")
	signed := signToken(t, key, "kid-1", jwt.MapClaims{"sub": "user_42", "exp": time.Now().Add(time.Hour).Unix()})

	handler := ClerkAuthMiddleware(server.URL)(sessionEcho(t))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if body["user"] != "user_42" || body["token"] != signed {
		t.Fatalf("unexpected session %v", body)
	}
}

func TestAuthMiddlewareRejects(t *testing.T) {
	key := newSigningKey(t)
	otherKey := newSigningKey(t)
	keyFunc := func(*jwt.Token) (interface{}, error) { return &key.PublicKey, nil }

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "not bearer", header: "Basic abc"},
		{name: "expired", header: "Bearer " + signToken(t, key, "kid-1", jwt.MapClaims{"sub": "user_1", "exp": time.Now().Add(-time.Minute).Unix()})},
		{name: "wrong key", header: "Bearer " + signToken(t, otherKey, "kid-1", jwt.MapClaims{"sub": "user_1", "exp": time.Now().Add(time.Hour).Unix()})},
		{name: "missing subject", header: "Bearer " + signToken(t, key, "kid-1", jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler must not be reached")
			})
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			AuthMiddleware(keyFunc)(next).ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
		})
	}
}

func TestParseRSAPublicKey(t *testing.T) {
	key := newSigningKey(t)
	n := base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes())
	e := base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes())

	parsed, err := parseRSAPublicKey(n, e)
	if err != nil {
		t.Fatalf("parseRSAPublicKey returned error: %v", err)
	}
	if parsed.N.Cmp(key.PublicKey.N) != 0 || parsed.E != key.PublicKey.E {
		t.Fatal("parsed key does not match")
	}

	if _, err := parseRSAPublicKey("***", e); err == nil {
		t.Fatal("expected error for invalid modulus")
	}
}

func TestJWKSKeyFuncCachesKeys(t *testing.T) {
	key := newSigningKey(t)
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"keys": []map[string]string{{
				"kid": "kid-1",
				"kty": "RSA",
				"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
			}},
		})
	}))
	defer server.Close()

	handler := AuthMiddleware(JWKSKeyFunc(server.URL))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, key, "kid-1", jwt.MapClaims{"sub": "user_1", "exp": time.Now().Add(time.Hour).Unix()}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}
	if hits != 1 {
		t.Fatalf("expected one JWKS fetch, got %d", hits)
	}
}

func TestVerifyAudienceClaim(t *testing.T) {
	tests := []struct {
		name string
		aud  interface{}
		want bool
	}{
		{name: "string match", aud: "tiffinbox", want: true},
		{name: "string mismatch", aud: "other", want: false},
		{name: "list match", aud: []interface{}{"other", "tiffinbox"}, want: true},
		{name: "missing", aud: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := verifyAudienceClaim(tt.aud, "tiffinbox"); got != tt.want {
				t.Fatalf("verifyAudienceClaim(%v) = %v, want %v", tt.aud, got, tt.want)
			}
		})
	}
}
