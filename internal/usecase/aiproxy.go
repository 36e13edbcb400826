package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/canvasvault/auth-service/internal/core/domain"
	"github.com/canvasvault/auth-service/internal/core/port"
	"github.com/canvasvault/auth-service/internal/infra/config"
	"github.com/canvasvault/auth-service/internal/infra/security"
	"github.com/canvasvault/auth-service/internal/repository"
)

// AIProxyService resolves upstream credentials for proxied chat requests and meters
// shared-key usage. Resolution order: per-request override, stored user key, shared
// system key. Only the system-key path touches the credit balance.
type AIProxyService struct {
	cfg      *config.AppConfig
	keys     port.ProviderKeyRepository
	credits  port.CreditRepository
	cipher   *security.KeyCipher
	upstream port.ChatUpstream
	logger   *zap.Logger
	now      func() time.Time
}

// NewAIProxyService constructs an AIProxyService instance.
func NewAIProxyService(
	cfg *config.AppConfig,
	keys port.ProviderKeyRepository,
	credits port.CreditRepository,
	cipher *security.KeyCipher,
	upstream port.ChatUpstream,
	log *zap.Logger,
) *AIProxyService {
	if log == nil {
		log = zap.NewNop()
	}

	service := &AIProxyService{
		cfg:      cfg,
		keys:     keys,
		credits:  credits,
		cipher:   cipher,
		upstream: upstream,
		logger:   log,
	}
	service.now = func() time.Time { return time.Now().UTC() }
	return service
}

// ResolveCredential picks the upstream key for one request. Balance is checked on
// the metered path before any upstream call, but deduction waits for success so a
// failed upstream request costs nothing.
func (s *AIProxyService) ResolveCredential(ctx context.Context, userID int64, request domain.ChatRequest) (*domain.ResolvedCredential, error) {
	if !request.Provider.Valid() {
		return nil, ErrProviderInvalid
	}

	model := strings.TrimSpace(request.Model)
	if model == "" {
		model = s.defaultModel(request.Provider)
	}

	if override := strings.TrimSpace(request.OverrideKey); override != "" {
		return &domain.ResolvedCredential{
			Provider: request.Provider,
			Model:    model,
			APIKey:   override,
			Source:   domain.KeySourceOverride,
			Metered:  false,
		}, nil
	}

	stored, err := s.keys.Get(ctx, userID, request.Provider)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("load provider key: %w", err)
	}
	if stored != nil {
		plaintext, decErr := s.cipher.Decrypt(stored.EncryptedKey)
		if decErr != nil {
			return nil, fmt.Errorf("decrypt provider key: %w", decErr)
		}
		return &domain.ResolvedCredential{
			Provider: request.Provider,
			Model:    model,
			APIKey:   plaintext,
			Source:   domain.KeySourceUser,
			Metered:  false,
		}, nil
	}

	systemKey := s.systemKey(request.Provider)
	if systemKey == "" {
		return nil, ErrNoCredential
	}

	account, err := s.credits.GetAccount(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &CreditsError{Required: s.requestCost(), Available: 0}
		}
		return nil, fmt.Errorf("load credit account: %w", err)
	}
	if account.Balance < s.requestCost() {
		return nil, &CreditsError{Required: s.requestCost(), Available: account.Balance}
	}

	return &domain.ResolvedCredential{
		Provider: request.Provider,
		Model:    model,
		APIKey:   systemKey,
		Source:   domain.KeySourceSystem,
		Metered:  true,
	}, nil
}

// Chat resolves a credential, forwards the request upstream and settles metering.
// Deduction is conditional at the SQL layer, so a balance drained between the
// pre-check and settlement still cannot go negative.
func (s *AIProxyService) Chat(ctx context.Context, userID int64, request domain.ChatRequest) (*domain.ChatResponse, error) {
	if len(request.Messages) == 0 {
		return nil, fmt.Errorf("messages are required")
	}

	credential, err := s.ResolveCredential(ctx, userID, request)
	if err != nil {
		return nil, err
	}

	response, err := s.upstream.Chat(ctx, *credential, request)
	if err != nil {
		return nil, fmt.Errorf("upstream chat: %w", err)
	}

	if credential.Metered {
		if err := s.credits.Deduct(ctx, userID, s.requestCost()); err != nil {
			if errors.Is(err, repository.ErrInsufficient) {
				s.logger.Warn("credit settlement found empty balance",
					zap.Int64("user_id", userID),
					zap.String("provider", string(request.Provider)),
				)
			} else {
				s.logger.Error("credit settlement failed",
					zap.Int64("user_id", userID),
					zap.Error(err),
				)
			}
		}
	}

	s.logger.Info("chat proxied",
		zap.Int64("user_id", userID),
		zap.String("provider", string(credential.Provider)),
		zap.String("model", credential.Model),
		zap.String("key_source", string(credential.Source)),
		zap.Bool("metered", credential.Metered),
	)

	return response, nil
}

// StoreProviderKey encrypts and saves a user-supplied upstream key.
func (s *AIProxyService) StoreProviderKey(ctx context.Context, userID int64, provider domain.AIProvider, rawKey string) error {
	if !provider.Valid() {
		return ErrProviderInvalid
	}

	rawKey = strings.TrimSpace(rawKey)
	if rawKey == "" {
		return fmt.Errorf("api key is required")
	}

	encrypted, err := s.cipher.Encrypt(rawKey)
	if err != nil {
		return fmt.Errorf("encrypt provider key: %w", err)
	}

	key := domain.ProviderKey{
		ID:           uuid.NewString(),
		UserID:       userID,
		Provider:     provider,
		EncryptedKey: encrypted,
		CreatedAt:    s.now(),
	}

	if err := s.keys.Upsert(ctx, key); err != nil {
		return fmt.Errorf("store provider key: %w", err)
	}

	s.logger.Info("provider key stored",
		zap.Int64("user_id", userID),
		zap.String("provider", string(provider)),
	)

	return nil
}

// DeleteProviderKey removes a stored key, returning the user to the metered path.
func (s *AIProxyService) DeleteProviderKey(ctx context.Context, userID int64, provider domain.AIProvider) error {
	if !provider.Valid() {
		return ErrProviderInvalid
	}

	if err := s.keys.Delete(ctx, userID, provider); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNoCredential
		}
		return fmt.Errorf("delete provider key: %w", err)
	}

	return nil
}

func (s *AIProxyService) defaultModel(provider domain.AIProvider) string {
	switch provider {
	case domain.ProviderGemini:
		return s.cfg.AI.DefaultGeminiModel
	case domain.ProviderPerplexity:
		return s.cfg.AI.DefaultPerplexityModel
	default:
		return ""
	}
}

func (s *AIProxyService) systemKey(provider domain.AIProvider) string {
	switch provider {
	case domain.ProviderGemini:
		return strings.TrimSpace(s.cfg.AI.GeminiSystemKey)
	case domain.ProviderPerplexity:
		return strings.TrimSpace(s.cfg.AI.PerplexitySystemKey)
	default:
		return ""
	}
}

func (s *AIProxyService) requestCost() int64 {
	if s.cfg.AI.RequestCost > 0 {
		return s.cfg.AI.RequestCost
	}
	return 1
}
