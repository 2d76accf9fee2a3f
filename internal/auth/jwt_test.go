package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/hackgods/session-scheduling/internal/scheduling"
)

func TestIssueAndAuthenticateRoundTrip(t *testing.T) {
	g := NewGateway("secret", time.Hour)
	want := Principal{ID: uuid.New(), Role: RoleProvider}

	token, err := g.IssueToken(want)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	got, err := g.Authenticate(context.Background(), "Bearer "+token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if got != want {
		t.Fatalf("principal = %+v, want %+v", got, want)
	}
}

func TestAuthenticateRejects(t *testing.T) {
	g := NewGateway("secret", time.Hour)
	other := NewGateway("other-secret", time.Hour)
	expired := NewGateway("secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	p := Principal{ID: uuid.New(), Role: RoleClient}
	wrongKey, _ := other.IssueToken(p)
	stale, _ := expired.IssueToken(p)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": p.ID.String(), "role": "CLIENT"})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	badRole := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  p.ID.String(),
		"role": "ADMIN",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	badRoleToken, _ := badRole.SignedString([]byte("secret"))

	cases := map[string]string{
		"empty":        "",
		"garbage":      "Bearer not-a-token",
		"wrong key":    wrongKey,
		"expired":      stale,
		"alg none":     unsigned,
		"unknown role": badRoleToken,
	}
	for name, token := range cases {
		_, err := g.Authenticate(context.Background(), token)
		if !errors.Is(err, scheduling.ErrUnauthenticated) {
			t.Fatalf("%s: err = %v, want ErrUnauthenticated", name, err)
		}
	}
}

func TestPrincipalContext(t *testing.T) {
	p := Principal{ID: uuid.New(), Role: RoleClient}
	got, ok := PrincipalFrom(WithPrincipal(context.Background(), p))
	if !ok || got != p {
		t.Fatalf("PrincipalFrom = %+v, %t", got, ok)
	}
	if _, ok := PrincipalFrom(context.Background()); ok {
		t.Fatalf("expected no principal on empty context")
	}
}
