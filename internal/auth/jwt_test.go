package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestGenerateTokenRoundTrip(t *testing.T) {
	t.Parallel()

	signed, expiresAt, err := GenerateToken("agent-1", "tenant-1", "secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Fatal("token already expired")
	}

	token, err := jwt.Parse(signed, func(token *jwt.Token) (any, error) {
		return []byte("secret"), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		t.Fatal(err)
	}
	claims := token.Claims.(jwt.MapClaims)
	if claims["user_id"] != "agent-1" {
		t.Fatalf("user_id = %v", claims["user_id"])
	}
	if claims["tenant_id"] != "tenant-1" {
		t.Fatalf("tenant_id = %v", claims["tenant_id"])
	}
}

func TestGenerateTokenValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name             string
		user, tenant     string
		secret           string
		expires          time.Duration
	}{
		{"missing user", "", "t1", "secret", time.Hour},
		{"missing tenant", "u1", "", "secret", time.Hour},
		{"missing secret", "u1", "t1", "", time.Hour},
		{"non-positive expiry", "u1", "t1", "secret", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := GenerateToken(tc.user, tc.tenant, tc.secret, tc.expires); err == nil {
				t.Fatal("want error")
			}
		})
	}
}
