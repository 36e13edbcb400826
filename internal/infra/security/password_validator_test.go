package security

import (
	"errors"
	"testing"
)

func TestDefaultPasswordValidatorAccepts(t *testing.T) {
	validator := DefaultPasswordValidator("ada@example.com", "Ada")

	if err := validator.Validate("C0mplex!Passphrase#2026"); err != nil {
		t.Fatalf("expected password to pass validation, got %v", err)
	}
}

func TestDefaultPasswordValidatorViolations(t *testing.T) {
	validator := DefaultPasswordValidator()

	assertViolation := func(password, expectedCode string) {
		t.Helper()
		err := validator.Validate(password)
		if err == nil {
			t.Fatalf("expected %s violation for %q", expectedCode, password)
		}
		var vErr *PasswordValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected PasswordValidationError, got %T", err)
		}
		if vErr.Code != expectedCode {
			t.Fatalf("expected %s code, got %s", expectedCode, vErr.Code)
		}
	}

	assertViolation("Sh0rt!", "min_length")
	assertViolation("lowercaseonlyword", "character_classes")
	assertViolation("Password123", "weak_password")
}

func TestValidatorUsesUserInputs(t *testing.T) {
	// A password built from the user's own email should score poorly.
	validator := DefaultPasswordValidator("ada.lovelace@example.com", "Ada Lovelace")

	err := validator.Validate("Ada.Lovelace1!")
	if err == nil {
		t.Fatal("expected validation error for password derived from user identity")
	}
}

func TestCustomRuleOrder(t *testing.T) {
	validator := NewPasswordValidator(
		MinLengthRule(4),
		RequireCharacterClassesRule(2),
	)

	if err := validator.Validate("ab"); err == nil {
		t.Fatal("expected min_length violation first")
	}
	if err := validator.Validate("abcd"); err == nil {
		t.Fatal("expected character_classes violation")
	}
	if err := validator.Validate("abc1"); err != nil {
		t.Fatalf("expected password to pass, got %v", err)
	}
}
