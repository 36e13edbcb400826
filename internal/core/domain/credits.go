package domain

import "time"

// AIProvider enumerates supported upstream chat providers.
type AIProvider string

const (
	ProviderGemini     AIProvider = "gemini"
	ProviderPerplexity AIProvider = "perplexity"
)

// Valid reports whether the provider is one this service can route to.
func (p AIProvider) Valid() bool {
	return p == ProviderGemini || p == ProviderPerplexity
}

// ProviderKey is a user-supplied upstream API key stored encrypted (BYOK).
// EncryptedKey holds hex(iv) + ":" + hex(ciphertext); plaintext never persists.
type ProviderKey struct {
	ID           string
	UserID       int64
	Provider     AIProvider
	EncryptedKey string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CreditAccount tracks the shared-key usage balance for a user.
type CreditAccount struct {
	UserID    int64
	Balance   int64
	UpdatedAt time.Time
}

// KeySource identifies where the resolved upstream credential came from.
type KeySource string

const (
	KeySourceOverride KeySource = "override"
	KeySourceUser     KeySource = "user"
	KeySourceSystem   KeySource = "system"
)

// ResolvedCredential is the outcome of BYOK resolution for one chat request.
// Metered is true only on the system-key path, where credits gate execution.
type ResolvedCredential struct {
	Provider AIProvider
	Model    string
	APIKey   string
	Source   KeySource
	Metered  bool
}
