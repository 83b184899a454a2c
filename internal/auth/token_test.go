package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "unit-test-secret"

func signToken(t *testing.T, secret string, claims IdentityClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestValidateAcceptsSignedToken(t *testing.T) {
	v := NewValidator(testSecret)
	credential := signToken(t, testSecret, IdentityClaims{
		Email: "alice@example.com",
		Role:  "member",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	claims, err := v.Validate(credential)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.Email != "alice@example.com" {
		t.Errorf("email = %q, want alice@example.com", claims.Email)
	}
	if claims.Role != "member" {
		t.Errorf("role = %q, want member", claims.Role)
	}
}

func TestValidateStripsQuotesAndWhitespace(t *testing.T) {
	v := NewValidator(testSecret)
	credential := signToken(t, testSecret, IdentityClaims{Email: "bob@example.com"})

	for _, wrapped := range []string{
		`"` + credential + `"`,
		`'` + credential + `'`,
		"  " + credential + "  ",
	} {
		if _, err := v.Validate(wrapped); err != nil {
			t.Errorf("Validate(%q...) = %v, want nil", wrapped[:8], err)
		}
	}
}

func TestValidateRejectsEmptyCredential(t *testing.T) {
	v := NewValidator(testSecret)

	for _, credential := range []string{"", "   ", `""`} {
		_, err := v.Validate(credential)
		if !errors.Is(err, ErrNoCredential) {
			t.Errorf("Validate(%q) = %v, want ErrNoCredential", credential, err)
		}
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	v := NewValidator(testSecret)
	credential := signToken(t, testSecret, IdentityClaims{
		Email: "alice@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})

	_, err := v.Validate(credential)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("Validate = %v, want ErrTokenExpired", err)
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	v := NewValidator(testSecret)
	credential := signToken(t, "some-other-secret", IdentityClaims{Email: "alice@example.com"})

	_, err := v.Validate(credential)
	if !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("Validate = %v, want ErrTokenInvalid", err)
	}
}

func TestValidateRejectsMissingEmail(t *testing.T) {
	v := NewValidator(testSecret)
	credential := signToken(t, testSecret, IdentityClaims{Role: "member"})

	_, err := v.Validate(credential)
	if !errors.Is(err, ErrMissingIdentity) {
		t.Fatalf("Validate = %v, want ErrMissingIdentity", err)
	}
}

func TestValidateRejectsInactiveIdentity(t *testing.T) {
	v := NewValidator(testSecret)
	inactive := false
	credential := signToken(t, testSecret, IdentityClaims{
		Email:    "alice@example.com",
		IsActive: &inactive,
	})

	_, err := v.Validate(credential)
	if !errors.Is(err, ErrInactiveIdentity) {
		t.Fatalf("Validate = %v, want ErrInactiveIdentity", err)
	}
}

func TestActiveDefaultsToTrue(t *testing.T) {
	claims := &IdentityClaims{Email: "alice@example.com"}
	if !claims.Active() {
		t.Error("Active() = false for absent is_active, want true")
	}
}
