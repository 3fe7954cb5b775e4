package server

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"
)

// AuthConfig controls actor-identity extraction. The engine treats
// identity as opaque; this layer only resolves who is calling.
type AuthConfig struct {
	JWTSecret              string
	AllowLegacyActorHeader bool
	Logger                 *log.Logger
}

// Principal is the resolved caller identity.
type Principal struct {
	ActorID string
	Source  string
}

type principalKey struct{}

func (c AuthConfig) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.Default()
}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

func actorIDFromContext(ctx context.Context) (string, huma.StatusError) {
	if p, ok := principalFromContext(ctx); ok && p.ActorID != "" {
		return p.ActorID, nil
	}
	return "", newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
}

// newAuthMiddleware resolves a principal from a Bearer JWT (subject =
// actor email) or, when enabled, the legacy X-Actor header. Requests
// without credentials pass through; handlers that need an actor reject
// them with 401.
func newAuthMiddleware(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if p, ok := resolvePrincipal(cfg, r); ok {
				r = r.WithContext(withPrincipal(r.Context(), p))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func resolvePrincipal(cfg AuthConfig, r *http.Request) (Principal, bool) {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") && cfg.JWTSecret != "" {
		raw := strings.TrimPrefix(header, "Bearer ")
		claims := jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
			return []byte(cfg.JWTSecret), nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil || !token.Valid {
			cfg.logger().Printf("auth: reject bearer token: %v", err)
			return Principal{}, false
		}
		if claims.Subject == "" {
			return Principal{}, false
		}
		return Principal{ActorID: claims.Subject, Source: "jwt"}, true
	}
	if cfg.AllowLegacyActorHeader {
		if actor := strings.TrimSpace(r.Header.Get("X-Actor")); actor != "" {
			return Principal{ActorID: actor, Source: "header"}, true
		}
	}
	return Principal{}, false
}
