package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// GenerateNumericCode returns a random numeric string of the given length.
func GenerateNumericCode(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("length must be positive")
	}

	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}

	digits := make([]byte, length)
	for i, b := range buf {
		digits[i] = '0' + (b % 10)
	}

	return string(digits), nil
}

// GenerateRefreshToken returns a hex-encoded random string using the specified number
// of random bytes. Refresh tokens use 64 bytes of entropy.
func GenerateRefreshToken(byteLength int) (string, error) {
	if byteLength <= 0 {
		return "", fmt.Errorf("length must be positive")
	}

	buf := make([]byte, byteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	return hex.EncodeToString(buf), nil
}

// HashToken calculates a SHA-256 hash of the provided value. Raw refresh tokens and
// marker key material are only ever stored or compared through this.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// MarkerKey derives the session marker cache key from the token's binding triple.
// Content-addressing keeps raw identifiers out of the cache keyspace.
func MarkerKey(userID int64, deviceID, jti string) string {
	return HashToken(fmt.Sprintf("%d:%s:%s", userID, deviceID, jti))
}
