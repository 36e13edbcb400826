package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/canvasvault/auth-service/internal/infra/config"
)

// PasswordHasher produces and verifies Argon2id password hashes using tunable
// cost parameters. The stored form is "salt:hash" with both parts base64-encoded.
type PasswordHasher struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
	saltLength  uint32
	keyLength   uint32
}

// NewPasswordHasher builds a hasher from configuration, filling in safe defaults
// for any zero-valued parameter.
func NewPasswordHasher(cfg config.Argon2Settings) *PasswordHasher {
	h := &PasswordHasher{
		memory:      cfg.Memory,
		iterations:  cfg.Iterations,
		parallelism: cfg.Parallelism,
		saltLength:  cfg.SaltLength,
		keyLength:   cfg.KeyLength,
	}
	if h.memory == 0 {
		h.memory = 64 * 1024
	}
	if h.iterations == 0 {
		h.iterations = 1
	}
	if h.parallelism == 0 {
		h.parallelism = 4
	}
	if h.saltLength == 0 {
		h.saltLength = 16
	}
	if h.keyLength == 0 {
		h.keyLength = 32
	}
	return h
}

// Hash generates an Argon2id hash of the password under a random salt.
func (h *PasswordHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password is empty")
	}

	salt := make([]byte, h.saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, h.iterations, h.memory, h.parallelism, h.keyLength)

	return fmt.Sprintf("%s:%s",
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(hash),
	), nil
}

// Verify compares the password against a stored hash in constant time.
func (h *PasswordHasher) Verify(password, encoded string) (bool, error) {
	if password == "" || encoded == "" {
		return false, nil
	}

	parts := strings.Split(encoded, ":")
	if len(parts) != 2 {
		return false, fmt.Errorf("invalid password hash format")
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false, fmt.Errorf("decode salt: %w", err)
	}

	stored, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false, fmt.Errorf("decode hash: %w", err)
	}

	computed := argon2.IDKey([]byte(password), salt, h.iterations, h.memory, h.parallelism, uint32(len(stored)))

	return subtle.ConstantTimeCompare(computed, stored) == 1, nil
}
