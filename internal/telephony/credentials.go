// Package telephony wraps the telephony provider: short-lived credential
// issuance, authenticated recording retrieval, and the outbound SMS gateway.
package telephony

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// tokenLifetime is the validity window of a recording-fetch token. Tokens
// are minted immediately before each fetch and never reused.
const tokenLifetime = 15 * time.Minute

// Credentials signs short-lived application JWTs for authenticated calls to
// the telephony provider. Read-only after construction and safe for
// concurrent use.
type Credentials struct {
	applicationID string
	key           *rsa.PrivateKey

	now func() time.Time
}

// NewCredentials loads the PEM-encoded RSA private key at privateKeyPath and
// returns Credentials for the given voice application.
func NewCredentials(applicationID, privateKeyPath string) (*Credentials, error) {
	if applicationID == "" {
		return nil, errors.New("telephony: applicationID must not be empty")
	}
	pemBytes, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("telephony: read private key: %w", err)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("telephony: parse private key: %w", err)
	}
	return &Credentials{
		applicationID: applicationID,
		key:           key,
		now:           time.Now,
	}, nil
}

// Token mints a fresh RS256-signed bearer token. Each call produces a new
// token with its own jti; callers must not cache the result across fetches.
func (c *Credentials) Token() (string, error) {
	now := c.now()
	claims := jwt.MapClaims{
		"application_id": c.applicationID,
		"iat":            now.Unix(),
		"exp":            now.Add(tokenLifetime).Unix(),
		"jti":            uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("telephony: sign token: %w", err)
	}
	return signed, nil
}
