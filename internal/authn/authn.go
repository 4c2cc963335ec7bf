// Package authn validates bearer tokens on the HTTP surface (spec §6
// server.auth{}). Grounded on pkg/auth/jwt.go's JWKS-backed JWTValidator,
// narrowed to the HTTP middleware path only — this runtime exposes no gRPC
// surface, so pkg/auth/middleware.go's UnaryServerInterceptor/
// StreamServerInterceptor and the outgoing-call ClientAuthInterceptor have
// no host to attach to and are dropped rather than carried unused.
package authn

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Claims is the validated subset of a JWT's claims the runtime cares about.
type Claims struct {
	Subject string
	Email   string
	Role    string
	Custom  map[string]any
}

// HasRole reports whether the subject carries the given role.
func (c *Claims) HasRole(role string) bool { return c != nil && c.Role == role }

// Validator validates bearer tokens against a JWKS endpoint.
type Validator struct {
	jwksURL  string
	cache    *jwk.Cache
	issuer   string
	audience string
}

// NewValidator builds a Validator that auto-fetches and refreshes JWKS keys
// from jwksURL every 15 minutes, to tolerate upstream key rotation.
func NewValidator(ctx context.Context, jwksURL, issuer, audience string) (*Validator, error) {
	cache := jwk.NewCache(ctx)
	if err := cache.Register(jwksURL, jwk.WithMinRefreshInterval(15*time.Minute)); err != nil {
		return nil, fmt.Errorf("register jwks url: %w", err)
	}
	if _, err := cache.Refresh(ctx, jwksURL); err != nil {
		return nil, fmt.Errorf("fetch jwks from %s: %w", jwksURL, err)
	}
	return &Validator{jwksURL: jwksURL, cache: cache, issuer: issuer, audience: audience}, nil
}

// ValidateToken verifies signature, issuer, audience, and expiry, returning
// the extracted claims.
func (v *Validator) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	keyset, err := v.cache.Get(ctx, v.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("get jwks: %w", err)
	}

	token, err := jwt.Parse([]byte(tokenString),
		jwt.WithKeySet(keyset),
		jwt.WithValidate(true),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims := &Claims{Subject: token.Subject(), Custom: make(map[string]any)}
	if email, ok := token.Get("email"); ok {
		if s, ok := email.(string); ok {
			claims.Email = s
		}
	}
	if role, ok := token.Get("role"); ok {
		if s, ok := role.(string); ok {
			claims.Role = s
		}
	}
	for it := token.Iterate(ctx); it.Next(ctx); {
		pair := it.Pair()
		key, _ := pair.Key.(string)
		switch key {
		case "sub", "email", "role", "iss", "aud", "exp", "iat", "nbf":
		default:
			claims.Custom[key] = pair.Value
		}
	}
	return claims, nil
}

type contextKey string

const claimsContextKey contextKey = "authn_claims"

// ClaimsFromContext extracts claims set by Middleware, or nil if absent.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsContextKey).(*Claims)
	return claims
}

// Middleware extracts and validates a bearer token from the Authorization
// header, attaching the resulting claims to the request context. Requests
// without a valid token are rejected with 401 before reaching next.
func (v *Validator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if header == "" || !ok {
			http.Error(w, `{"error":"missing or malformed Authorization header"}`, http.StatusUnauthorized)
			return
		}

		claims, err := v.ValidateToken(r.Context(), token)
		if err != nil {
			http.Error(w, `{"error":"unauthorized: `+err.Error()+`"}`, http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole wraps Middleware with a role check, rejecting authenticated
// requests that lack any of the allowed roles with 403.
func (v *Validator) RequireRole(allowedRoles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			for _, role := range allowedRoles {
				if claims.HasRole(role) {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, `{"error":"forbidden: insufficient permissions"}`, http.StatusForbidden)
		}))
	}
}
