package security

import (
	"errors"
	"strings"
	"testing"
)

const testCipherKey = "abcdefghijklmnopqrstuvwxyz012345"

func TestKeyCipherRoundTrip(t *testing.T) {
	c, err := NewKeyCipher(testCipherKey)
	if err != nil {
		t.Fatalf("NewKeyCipher returned error: %v", err)
	}

	stored, err := c.Encrypt("sk-user-provided-key")
	if err != nil {
		t.Fatalf("Encrypt returned error: %v", err)
	}
	if !strings.Contains(stored, ":") {
		t.Fatalf("stored form must be nonce:ciphertext, got %q", stored)
	}
	if strings.Contains(stored, "sk-user-provided-key") {
		t.Fatal("plaintext leaked into stored form")
	}

	plaintext, err := c.Decrypt(stored)
	if err != nil {
		t.Fatalf("Decrypt returned error: %v", err)
	}
	if plaintext != "sk-user-provided-key" {
		t.Fatalf("round trip mismatch: %q", plaintext)
	}
}

func TestKeyCipherNoncesDiffer(t *testing.T) {
	c, err := NewKeyCipher(testCipherKey)
	if err != nil {
		t.Fatalf("NewKeyCipher returned error: %v", err)
	}

	first, err := c.Encrypt("same-plaintext")
	if err != nil {
		t.Fatalf("Encrypt returned error: %v", err)
	}
	second, err := c.Encrypt("same-plaintext")
	if err != nil {
		t.Fatalf("Encrypt returned error: %v", err)
	}

	if first == second {
		t.Fatal("two encryptions of the same plaintext must not be identical")
	}
}

func TestKeyCipherRejectsMalformedInput(t *testing.T) {
	c, err := NewKeyCipher(testCipherKey)
	if err != nil {
		t.Fatalf("NewKeyCipher returned error: %v", err)
	}

	for _, stored := range []string{"", "no-delimiter", ":", "zz:zz", "abcd:"} {
		if _, err := c.Decrypt(stored); !errors.Is(err, ErrCiphertextFormat) {
			t.Fatalf("expected ErrCiphertextFormat for %q, got %v", stored, err)
		}
	}
}

func TestKeyCipherRejectsTamperedCiphertext(t *testing.T) {
	c, err := NewKeyCipher(testCipherKey)
	if err != nil {
		t.Fatalf("NewKeyCipher returned error: %v", err)
	}

	stored, err := c.Encrypt("sk-user-provided-key")
	if err != nil {
		t.Fatalf("Encrypt returned error: %v", err)
	}

	flipped := []byte(stored)
	last := len(flipped) - 1
	if flipped[last] == 'a' {
		flipped[last] = 'b'
	} else {
		flipped[last] = 'a'
	}

	if _, err := c.Decrypt(string(flipped)); err == nil {
		t.Fatal("expected error for tampered ciphertext")
	}
}

func TestNewKeyCipherRejectsWrongKeyLength(t *testing.T) {
	for _, key := range []string{"", "short", strings.Repeat("a", 31), strings.Repeat("a", 33)} {
		if _, err := NewKeyCipher(key); err == nil {
			t.Fatalf("expected error for key of length %d", len(key))
		}
	}
}
