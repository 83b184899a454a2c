// Package auth validates the opaque bearer credential a client presents
// during the WebSocket handshake and turns it into an identity claim.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoCredential     = errors.New("no credential provided")
	ErrTokenExpired     = errors.New("credential expired")
	ErrTokenInvalid     = errors.New("credential invalid")
	ErrMissingIdentity  = errors.New("credential carries no identity")
	ErrInactiveIdentity = errors.New("identity is inactive")
)

// IdentityClaims is the decoded identity claim. An absent is_active field
// means the identity is active.
type IdentityClaims struct {
	Email    string `json:"email"`
	Role     string `json:"role"`
	IsActive *bool  `json:"is_active"`
	jwt.RegisteredClaims
}

// Active reports whether the claim marks the identity active.
func (c *IdentityClaims) Active() bool {
	return c.IsActive == nil || *c.IsActive
}

// Validator checks HS256-signed bearer credentials.
type Validator struct {
	secret []byte
}

func NewValidator(secret string) *Validator {
	return &Validator{secret: []byte(secret)}
}

// Validate parses and verifies a raw credential. Clients have been seen
// sending the token wrapped in quotes, so those are stripped first.
func (v *Validator) Validate(credential string) (*IdentityClaims, error) {
	credential = strings.Trim(strings.TrimSpace(credential), `"'`)
	if credential == "" {
		return nil, ErrNoCredential
	}

	claims := &IdentityClaims{}
	_, err := jwt.ParseWithClaims(credential, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	if claims.Email == "" {
		return nil, ErrMissingIdentity
	}
	if !claims.Active() {
		return nil, ErrInactiveIdentity
	}

	return claims, nil
}
