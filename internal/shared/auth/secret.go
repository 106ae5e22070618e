// Package auth verifies the shared secret that guards the sync trigger.
package auth

import (
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidSecret is returned when a presented secret does not match.
var ErrInvalidSecret = errors.New("invalid secret")

// HashSecret hashes a trigger secret using bcrypt
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifySecret checks a plain text secret against a bcrypt hash
func VerifySecret(hashedSecret, secret string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedSecret), []byte(secret))
}

// SecretVerifier compares presented secrets against a configured plain secret
// or, when set, its bcrypt hash. The hash wins when both are configured.
type SecretVerifier struct {
	secret []byte
	hash   string
}

// NewSecretVerifier creates a verifier. An empty verifier rejects everything.
func NewSecretVerifier(secret, hash string) *SecretVerifier {
	return &SecretVerifier{secret: []byte(secret), hash: hash}
}

// Verify returns ErrInvalidSecret unless presented matches.
func (v *SecretVerifier) Verify(presented string) error {
	if presented == "" {
		return ErrInvalidSecret
	}

	if v.hash != "" {
		if err := VerifySecret(v.hash, presented); err != nil {
			return ErrInvalidSecret
		}
		return nil
	}

	if len(v.secret) == 0 || subtle.ConstantTimeCompare(v.secret, []byte(presented)) != 1 {
		return ErrInvalidSecret
	}
	return nil
}
