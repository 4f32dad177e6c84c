// Package crypto provides cryptographic utilities for Sentinel Identity.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// tokenChars contains characters used in verification tokens
// (mixed-case alphanumeric, URL-safe).
const tokenChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// VerificationTokenLength is the length of generated verification tokens.
const VerificationTokenLength = 48

// GenerateVerificationToken generates a random URL-safe token.
// Only the SHA-256 hash is stored; the plaintext is handed to the delivery
// flow once.
func GenerateVerificationToken() (string, error) {
	return generateRandomString(VerificationTokenLength, tokenChars)
}

// HashToken returns the hex-encoded SHA-256 hash of a token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// generateRandomString generates a random string of the specified length
// using characters from the provided character set.
func generateRandomString(length int, charset string) (string, error) {
	result := make([]byte, length)
	charsetLen := len(charset)

	randomBytes := make([]byte, length)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	for i := 0; i < length; i++ {
		result[i] = charset[int(randomBytes[i])%charsetLen]
	}

	return string(result), nil
}
