package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const cipherKeyLength = 32

// ErrCiphertextFormat indicates a stored value does not match the iv:ciphertext shape.
var ErrCiphertextFormat = errors.New("cipher: invalid ciphertext format")

// KeyCipher encrypts user-supplied provider API keys at rest with AES-256-GCM.
// Stored form is hex(nonce) + ":" + hex(ciphertext); a fresh nonce per encryption.
type KeyCipher struct {
	aead cipher.AEAD
}

// NewKeyCipher constructs a cipher from a configuration-supplied secret. A key length
// mismatch is a startup-time fatal error, never silent truncation or padding.
func NewKeyCipher(key string) (*KeyCipher, error) {
	if len(key) != cipherKeyLength {
		return nil, fmt.Errorf("cipher key must be exactly %d bytes, got %d", cipherKeyLength, len(key))
	}

	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("init aes cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}

	return &KeyCipher{aead: aead}, nil
}

// Encrypt seals the plaintext under a random nonce.
func (c *KeyCipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", fmt.Errorf("cipher: plaintext is empty")
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("cipher: generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt by splitting the stored value on the delimiter.
func (c *KeyCipher) Decrypt(stored string) (string, error) {
	parts := strings.SplitN(stored, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", ErrCiphertextFormat
	}

	nonce, err := hex.DecodeString(parts[0])
	if err != nil || len(nonce) != c.aead.NonceSize() {
		return "", ErrCiphertextFormat
	}

	sealed, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", ErrCiphertextFormat
	}

	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("cipher: decrypt: %w", err)
	}

	return string(plaintext), nil
}
