// Package auth provides API key utilities for the netscope HTTP API.
// Keys are random, base32 encoded strings; only their bcrypt hash is kept
// in the configuration file.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// KeyLength is the length of the random part of a key
	KeyLength = 32
	// KeyPrefix is the fixed prefix of every key
	KeyPrefix = "ns"
	// DisplayLength is how many random characters DisplayPrefix keeps
	DisplayLength = 8

	// BcryptCost is the bcrypt cost for hashing keys
	BcryptCost = 12
	// BcryptMaxInputLength is the maximum input length for bcrypt
	BcryptMaxInputLength = 72
)

// GeneratedKey is a newly generated key together with its stored form.
type GeneratedKey struct {
	Key     string `json:"key"`
	Hash    string `json:"hash"`
	Display string `json:"display"`
}

// GenerateKey creates a new random key and its bcrypt hash.
func GenerateKey() (*GeneratedKey, error) {
	randomBytes := make([]byte, KeyLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return nil, fmt.Errorf("failed to generate random key: %w", err)
	}

	// base32 avoids ambiguous characters
	randomPart := strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(randomBytes))
	key := KeyPrefix + "_" + randomPart[:KeyLength]

	hash, err := HashKey(key)
	if err != nil {
		return nil, err
	}

	return &GeneratedKey{
		Key:     key,
		Hash:    hash,
		Display: DisplayPrefix(key),
	}, nil
}

// HashKey creates a bcrypt hash of key for storage in the config file.
func HashKey(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("API key cannot be empty")
	}

	hash, err := bcrypt.GenerateFromPassword(prepare(key), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash API key: %w", err)
	}
	return string(hash), nil
}

// VerifyKey reports whether key matches storedHash.
func VerifyKey(key, storedHash string) bool {
	if key == "" || storedHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(storedHash), prepare(key)) == nil
}

// prepare folds keys longer than bcrypt accepts through SHA-256.
func prepare(key string) []byte {
	b := []byte(key)
	if len(b) > BcryptMaxInputLength {
		sum := sha256.Sum256(b)
		b = sum[:]
	}
	return b
}

// IsValidKeyFormat checks the prefix, length and alphabet of key.
func IsValidKeyFormat(key string) bool {
	random, ok := strings.CutPrefix(key, KeyPrefix+"_")
	if !ok || len(random) != KeyLength {
		return false
	}
	for _, c := range random {
		if (c < 'a' || c > 'z') && (c < '2' || c > '7') {
			return false
		}
	}
	return true
}

// DisplayPrefix returns a log-safe prefix of key.
func DisplayPrefix(key string) string {
	if !IsValidKeyFormat(key) {
		return "invalid_key"
	}
	return key[:len(KeyPrefix)+1+DisplayLength] + "..."
}
