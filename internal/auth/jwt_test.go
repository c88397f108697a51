package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/erazemk/concesionaria/internal/model"
)

func TestGenerateAndValidateToken(t *testing.T) {
	secret := "test-secret-key"

	token, err := GenerateToken(secret, 1, "ana@example.com", model.RoleAdmin)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	claims, err := ValidateToken(secret, token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}

	if claims.UserID != 1 {
		t.Errorf("expected user id 1, got %d", claims.UserID)
	}
	if claims.Email != "ana@example.com" {
		t.Errorf("expected email 'ana@example.com', got %q", claims.Email)
	}
	if claims.Role != model.RoleAdmin {
		t.Errorf("expected role 'admin', got %q", claims.Role)
	}
	if claims.ID == "" {
		t.Error("expected a JTI")
	}
}

func TestTokensHaveDistinctIDs(t *testing.T) {
	a, _ := GenerateToken("s", 1, "a@example.com", model.RoleSeller)
	b, _ := GenerateToken("s", 1, "a@example.com", model.RoleSeller)
	ca, _ := ValidateToken("s", a)
	cb, _ := ValidateToken("s", b)
	if ca.ID == cb.ID {
		t.Error("expected each token to carry its own JTI")
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	token, _ := GenerateToken("secret1", 1, "ana@example.com", model.RoleAdmin)

	_, err := ValidateToken("secret2", token)
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestValidateTokenInvalid(t *testing.T) {
	if _, err := ValidateToken("secret", "not-a-token"); err == nil {
		t.Error("expected error for invalid token")
	}
}

func TestTokenExpiry(t *testing.T) {
	secret := "test"
	token, _ := GenerateToken(secret, 1, "x@example.com", model.RoleSeller)
	claims, _ := ValidateToken(secret, token)

	diff := time.Now().Add(TokenExpiry).Sub(claims.ExpiresAt.Time)
	if diff < -5*time.Second || diff > 5*time.Second {
		t.Errorf("token expiry too far from expected: diff=%v", diff)
	}
}
