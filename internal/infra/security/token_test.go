package security

import (
	"testing"
)

func TestGenerateNumericCode(t *testing.T) {
	code, err := GenerateNumericCode(6)
	if err != nil {
		t.Fatalf("GenerateNumericCode returned error: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("expected 6 digits, got %q", code)
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			t.Fatalf("non-digit %q in code %q", r, code)
		}
	}
}

func TestGenerateRefreshTokenLengthAndUniqueness(t *testing.T) {
	first, err := GenerateRefreshToken(64)
	if err != nil {
		t.Fatalf("GenerateRefreshToken returned error: %v", err)
	}
	if len(first) != 128 {
		t.Fatalf("expected 128 hex chars, got %d", len(first))
	}

	second, err := GenerateRefreshToken(64)
	if err != nil {
		t.Fatalf("GenerateRefreshToken returned error: %v", err)
	}
	if first == second {
		t.Fatal("consecutive tokens must differ")
	}
}

func TestMarkerKeyIsDeterministicAndOpaque(t *testing.T) {
	key := MarkerKey(42, "device-1", "jti-1")
	if key != MarkerKey(42, "device-1", "jti-1") {
		t.Fatal("marker key must be deterministic")
	}
	if key == MarkerKey(42, "device-1", "jti-2") {
		t.Fatal("different jti must produce a different key")
	}
	if key == MarkerKey(43, "device-1", "jti-1") {
		t.Fatal("different user must produce a different key")
	}
	if len(key) != 64 {
		t.Fatalf("expected sha256 hex key, got length %d", len(key))
	}
}
