package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-jwt-secret"

func signToken(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return s
}

func TestJWTVerifier_ValidToken(t *testing.T) {
	v := NewJWTVerifier(testSecret, "authenticated")
	token := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
		"sub":           "user-1",
		"aud":           "authenticated",
		"email":         "a@example.com",
		"exp":           time.Now().Add(time.Hour).Unix(),
		"user_metadata": map[string]any{"name": "Alice"},
	})

	user, err := v.VerifyAccessToken(context.Background(), token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.ID != "user-1" || user.Email != "a@example.com" || user.Name != "Alice" {
		t.Errorf("user = %+v", user)
	}
}

func TestJWTVerifier_Rejects(t *testing.T) {
	v := NewJWTVerifier(testSecret, "authenticated")
	future := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name  string
		token string
	}{
		{"wrong secret", signToken(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{
			"sub": "user-1", "aud": "authenticated", "exp": future,
		})},
		{"expired", signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
			"sub": "user-1", "aud": "authenticated", "exp": time.Now().Add(-time.Minute).Unix(),
		})},
		{"missing exp", signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
			"sub": "user-1", "aud": "authenticated",
		})},
		{"wrong audience", signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
			"sub": "user-1", "aud": "anon", "exp": future,
		})},
		{"missing subject", signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
			"aud": "authenticated", "exp": future,
		})},
		{"unexpected algorithm", signToken(t, jwt.SigningMethodHS512, []byte(testSecret), jwt.MapClaims{
			"sub": "user-1", "aud": "authenticated", "exp": future,
		})},
		{"garbage", "not-a-jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.VerifyAccessToken(context.Background(), tt.token)
			if !errors.Is(err, ErrInvalidAccessToken) {
				t.Errorf("error = %v, want ErrInvalidAccessToken", err)
			}
		})
	}
}
