package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/hackgods/session-scheduling/internal/scheduling"
)

type Role string

const (
	RoleClient   Role = "CLIENT"
	RoleProvider Role = "PROVIDER"
)

func (r Role) Valid() bool {
	return r == RoleClient || r == RoleProvider
}

// Principal is the authenticated caller.
type Principal struct {
	ID   uuid.UUID
	Role Role
}

type claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// Gateway verifies and issues HS256 bearer tokens.
type Gateway struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewGateway(secret string, ttl time.Duration) *Gateway {
	return &Gateway{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Authenticate resolves a bearer token (with or without the "Bearer " prefix)
// to a Principal. Every failure is scheduling.ErrUnauthenticated.
func (g *Gateway) Authenticate(_ context.Context, bearer string) (Principal, error) {
	raw := strings.TrimSpace(bearer)
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		raw = strings.TrimSpace(raw[7:])
	}
	if raw == "" {
		return Principal{}, fmt.Errorf("%w: missing token", scheduling.ErrUnauthenticated)
	}

	var c claims
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	token, err := parser.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) {
		return g.secret, nil
	})
	if err != nil || !token.Valid {
		return Principal{}, fmt.Errorf("%w: invalid or expired token", scheduling.ErrUnauthenticated)
	}

	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: subject is not a valid id", scheduling.ErrUnauthenticated)
	}
	if !c.Role.Valid() {
		return Principal{}, fmt.Errorf("%w: unknown role %q", scheduling.ErrUnauthenticated, c.Role)
	}
	return Principal{ID: id, Role: c.Role}, nil
}

// IssueToken signs a token for p. Used by tooling and tests; real tokens come
// from the identity service.
func (g *Gateway) IssueToken(p Principal) (string, error) {
	if !p.Role.Valid() {
		return "", errors.New("issue token: invalid role")
	}
	now := g.now()
	c := claims{
		Role: p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(g.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(g.secret)
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
