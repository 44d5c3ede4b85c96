// Package auth provides the credential primitives for the data room service:
// generation and bcrypt verification of room access codes and API keys, plus
// admin session JWTs. Access codes and API keys are long-lived bearer secrets
// stored only as bcrypt hashes; verification is constant-time with respect to
// the supplied secret. See internal/room and internal/apikey for the admission
// logic built on these primitives.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// SecretLength is the length of the random part of a generated secret in bytes.
	SecretLength = 32

	// KeyPrefixLength is the number of leading characters of an API key stored
	// in the indexed key_prefix column for exact-match candidate lookup.
	KeyPrefixLength = 12

	// BcryptCost is the cost factor for bcrypt hashing.
	BcryptCost = 12
)

// GenerateAccessCode creates a new random room access code.
// Returns the plaintext code (to show once) and its bcrypt hash (to store).
func GenerateAccessCode() (code string, hash string, err error) {
	randomBytes := make([]byte, SecretLength)
	if _, err = rand.Read(randomBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	code = base64.RawURLEncoding.EncodeToString(randomBytes)

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(code), BcryptCost)
	if err != nil {
		return "", "", fmt.Errorf("failed to hash access code: %w", err)
	}

	return code, string(hashBytes), nil
}

// GenerateAPIKey creates a new random API key with the given prefix.
// Returns: full key (to show once), bcrypt hash (to store), lookup prefix
// (first KeyPrefixLength characters, stored in the indexed key_prefix column).
func GenerateAPIKey(prefix string) (key string, hash string, lookupPrefix string, err error) {
	randomBytes := make([]byte, SecretLength)
	if _, err = rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	// The configured prefix already carries its separator, e.g. "drm_".
	fullKey := prefix + base64.RawURLEncoding.EncodeToString(randomBytes)

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(fullKey), BcryptCost)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to hash API key: %w", err)
	}

	lookupPrefixStr := fullKey
	if len(fullKey) > KeyPrefixLength {
		lookupPrefixStr = fullKey[:KeyPrefixLength]
	}

	return fullKey, string(hashBytes), lookupPrefixStr, nil
}

// LookupPrefix returns the candidate-lookup prefix of a supplied key, matching
// the slice stored by GenerateAPIKey. Keys shorter than KeyPrefixLength are
// returned whole; they will simply never match any stored prefix.
func LookupPrefix(suppliedKey string) string {
	if len(suppliedKey) > KeyPrefixLength {
		return suppliedKey[:KeyPrefixLength]
	}
	return suppliedKey
}

// VerifySecret checks a supplied secret against a stored bcrypt hash. It never
// returns an error: a malformed hash verifies as false, and the caller records
// the failed attempt. bcrypt's comparison is constant-time in the secret.
func VerifySecret(supplied, storedHash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(supplied))
	return err == nil
}

// ExtractBearer extracts the credential from an Authorization header.
// Expected format: "Bearer drm_abc123xyz...".
func ExtractBearer(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header is empty")
	}

	if !strings.HasPrefix(header, "Bearer ") {
		return "", errors.New("authorization header must start with 'Bearer '")
	}

	credential := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if credential == "" {
		return "", errors.New("credential is empty after Bearer prefix")
	}

	return credential, nil
}
