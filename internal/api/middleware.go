/**
 * @description
 * Authentication middleware for the subscription-edit-service. A valid Clerk JWT
 * becomes a domain.Session carrying the user id and the raw bearer token, which is
 * forwarded to the subscription backend on every call.
 */
package api

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tiffinbox/subscription-edit-service/internal/domain"
)

type contextKey string

// SessionContextKey is the key used to store the session in the request context.
const SessionContextKey = contextKey("session")

// ClerkAuthMiddleware validates Clerk JWTs against the JWKS at jwksURL.
func ClerkAuthMiddleware(jwksURL string) func(http.Handler) http.Handler {
	return AuthMiddleware(JWKSKeyFunc(jwksURL))
}

// AuthMiddleware validates RS256 bearer tokens with keyFunc and injects the session into context.
func AuthMiddleware(keyFunc jwt.Keyfunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "Authorization header required", "UNAUTHENTICATED")
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader || strings.TrimSpace(tokenString) == "" {
				writeError(w, http.StatusUnauthorized, "Invalid Authorization header format", "UNAUTHENTICATED")
				return
			}

			token, err := jwt.Parse(tokenString, keyFunc, jwt.WithValidMethods([]string{"RS256"}))
			if err != nil || !token.Valid {
				writeError(w, http.StatusUnauthorized, "Invalid token", "UNAUTHENTICATED")
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				writeError(w, http.StatusUnauthorized, "Invalid token claims", "UNAUTHENTICATED")
				return
			}

			if expectedAud := os.Getenv("CLERK_AUDIENCE"); expectedAud != "" {
				if !verifyAudienceClaim(claims["aud"], expectedAud) {
					writeError(w, http.StatusUnauthorized, "Invalid audience", "UNAUTHENTICATED")
					return
				}
			}
			if expectedIss := os.Getenv("CLERK_ISSUER"); expectedIss != "" {
				if iss, ok := claims["iss"].(string); !ok || iss != expectedIss {
					writeError(w, http.StatusUnauthorized, "Invalid issuer", "UNAUTHENTICATED")
					return
				}
			}

			userID, ok := claims["sub"].(string)
			if !ok || userID == "" {
				writeError(w, http.StatusUnauthorized, "User ID not found in token", "UNAUTHENTICATED")
				return
			}

			session := domain.Session{UserID: userID, Token: tokenString}
			ctx := context.WithValue(r.Context(), SessionContextKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// JWKSKeyFunc resolves the token's kid against the JWKS at jwksURL. Keys are
// cached for ten minutes; an unknown kid forces a refresh.
func JWKSKeyFunc(jwksURL string) jwt.Keyfunc {
	keys := &jwksKeySource{
		jwksURL:    strings.TrimSpace(jwksURL),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cacheTTL:   10 * time.Minute,
		keyByKID:   map[string]*rsa.PublicKey{},
	}

	return func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		kid, ok := token.Header["kid"].(string)
		if !ok || strings.TrimSpace(kid) == "" {
			return nil, fmt.Errorf("kid not found in token header")
		}

		publicKey, err := keys.getPublicKey(kid)
		if err != nil {
			return nil, fmt.Errorf("failed to get public key: %w", err)
		}
		return publicKey, nil
	}
}

type jwksKeySource struct {
	jwksURL    string
	httpClient *http.Client
	cacheTTL   time.Duration

	mu       sync.RWMutex
	expires  time.Time
	keyByKID map[string]*rsa.PublicKey
}

func (s *jwksKeySource) getPublicKey(kid string) (*rsa.PublicKey, error) {
	if key := s.getCachedKey(kid); key != nil {
		return key, nil
	}
	if err := s.refreshKeys(); err != nil {
		return nil, err
	}
	if key := s.getCachedKey(kid); key != nil {
		return key, nil
	}
	return nil, fmt.Errorf("key with kid %s not found", kid)
}

func (s *jwksKeySource) getCachedKey(kid string) *rsa.PublicKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if time.Now().After(s.expires) {
		return nil
	}
	return s.keyByKID[kid]
}

func (s *jwksKeySource) refreshKeys() error {
	resp, err := s.httpClient.Get(s.jwksURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks endpoint returned status %d", resp.StatusCode)
	}

	var jwks struct {
		Keys []struct {
			Kid string `json:"kid"`
			Kty string `json:"kty"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return err
	}

	keys := make(map[string]*rsa.PublicKey, len(jwks.Keys))
	for _, key := range jwks.Keys {
		if key.Kty != "RSA" || key.Kid == "" {
			continue
		}
		publicKey, err := parseRSAPublicKey(key.N, key.E)
		if err != nil {
			continue
		}
		keys[key.Kid] = publicKey
	}

	s.mu.Lock()
	s.keyByKID = keys
	s.expires = time.Now().Add(s.cacheTTL)
	s.mu.Unlock()
	return nil
}

func parseRSAPublicKey(n, e string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	var exp uint64
	for _, b := range eb {
		exp = (exp << 8) | uint64(b)
	}

	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: int(exp)}, nil
}

func verifyAudienceClaim(audClaim interface{}, expected string) bool {
	switch aud := audClaim.(type) {
	case string:
		return aud == expected
	case []interface{}:
		for _, item := range aud {
			if s, ok := item.(string); ok && s == expected {
				return true
			}
		}
	}
	return false
}

// SessionFromContext retrieves the session from the request context.
func SessionFromContext(ctx context.Context) (domain.Session, bool) {
	session, ok := ctx.Value(SessionContextKey).(domain.Session)
	return session, ok
}
