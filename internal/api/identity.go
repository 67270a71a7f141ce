package api

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/zulandar/switchboard/internal/access"
)

// Identity headers, used when no JWT secret is configured.
const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
)

const actorKey = "actor"

// errUnauthenticated is returned when a request carries no usable identity.
var errUnauthenticated = errors.New("unauthenticated")

// Claims is the bearer token payload. Subject carries the actor id.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for actor. A zero ttl issues a token
// without expiry.
func IssueToken(secret string, actor access.Actor, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("api: jwt secret is required")
	}
	if actor.ID == "" {
		return "", fmt.Errorf("api: actor id is required")
	}
	now := time.Now()
	claims := Claims{
		Role: actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  actor.ID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("api: sign token: %w", err)
	}
	return signed, nil
}

// ParseToken validates a bearer token and returns the actor it names.
func ParseToken(secret, tokenString string) (access.Actor, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return access.Actor{}, fmt.Errorf("%w: %v", errUnauthenticated, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return access.Actor{}, fmt.Errorf("%w: invalid token claims", errUnauthenticated)
	}
	return access.Actor{ID: claims.Subject, Role: claims.Role}, nil
}

// identity resolves the caller for every request. With a secret, a valid
// bearer token is required on everything but /healthz; event streams may pass
// it as ?access_token= since browsers cannot set headers on EventSource.
// Without a secret the identity headers are trusted as given.
func identity(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Set(actorKey, access.Actor{
				ID:   strings.TrimSpace(c.GetHeader(HeaderActorID)),
				Role: strings.TrimSpace(c.GetHeader(HeaderActorRole)),
			})
			c.Next()
			return
		}
		if c.Request.URL.Path == "/healthz" {
			c.Next()
			return
		}

		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok && c.Request.URL.Path == "/events" {
			raw, ok = c.GetQuery("access_token")
		}
		if !ok || raw == "" {
			writeError(c, fmt.Errorf("%w: bearer token required", errUnauthenticated))
			return
		}
		actor, err := ParseToken(secret, strings.TrimSpace(raw))
		if err != nil {
			writeError(c, err)
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

// actorFrom returns the caller resolved by the identity middleware.
func actorFrom(c *gin.Context) access.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(access.Actor); ok {
			return actor
		}
	}
	return access.Actor{}
}
