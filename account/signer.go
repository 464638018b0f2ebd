package account

import (
	"errors"
	"fmt"
	"time"

	"github.com/awnumar/memguard"
	"github.com/golang-jwt/jwt/v5"

	"github.com/jmcleod/customersvc/internal/util"
)

const MinSigningKeySize = 32

// TokenClaims are the claims carried by a token value.
type TokenClaims struct {
	jwt.RegisteredClaims
	AMR []string `json:"amr,omitempty"`
}

// TokenSigner produces HS256-signed token values.
type TokenSigner struct {
	key    *memguard.Enclave
	issuer string
}

func NewTokenSigner(key []byte, issuer string) (*TokenSigner, error) {
	if len(key) < MinSigningKeySize {
		return nil, fmt.Errorf("signing key must be at least %d bytes", MinSigningKeySize)
	}
	return &TokenSigner{key: memguard.NewEnclave(util.CopyBytes(key)), issuer: issuer}, nil
}

// Sign returns a compact JWT with sub=clientID and jti=tokenID.
func (s *TokenSigner) Sign(clientID, tokenID string, method AuthMethod, issuedAt time.Time) (string, error) {
	claims := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   s.issuer,
			Subject:  clientID,
			ID:       tokenID,
			IssuedAt: jwt.NewNumericDate(issuedAt),
		},
		AMR: []string{string(method)},
	}
	key, err := s.key.Open()
	if err != nil {
		return "", fmt.Errorf("opening signing key: %w", err)
	}
	defer key.Destroy()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key.Bytes())
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Parse verifies the signature and issuer of value and returns its claims.
func (s *TokenSigner) Parse(value string) (*TokenClaims, error) {
	key, err := s.key.Open()
	if err != nil {
		return nil, fmt.Errorf("opening signing key: %w", err)
	}
	defer key.Destroy()
	raw := util.CopyBytes(key.Bytes())
	defer util.WipeBytes(raw)

	claims := &TokenClaims{}
	_, err = jwt.ParseWithClaims(value, claims, func(*jwt.Token) (any, error) {
		return raw, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(s.issuer))
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	return claims, nil
}
