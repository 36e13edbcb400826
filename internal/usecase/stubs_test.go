package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/canvasvault/auth-service/internal/core/domain"
	"github.com/canvasvault/auth-service/internal/infra/config"
	"github.com/canvasvault/auth-service/internal/repository"
)

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		App: config.AppSettings{Name: "canvasvault-auth", Env: "test"},
		JWT: config.JWTSettings{
			SigningSecret:   strings.Repeat("s", 32),
			AccessTokenTTL:  24 * time.Hour,
			RefreshTokenTTL: 720 * time.Hour,
			ClockSkew:       30 * time.Second,
		},
		OTP: config.OTPSettings{TTL: 5 * time.Minute, MaxAttempts: 5},
		AI: config.AISettings{
			CipherKey:              strings.Repeat("k", 32),
			GeminiSystemKey:        "system-gemini-key",
			PerplexitySystemKey:    "system-perplexity-key",
			RequestCost:            5,
			DefaultGeminiModel:     "gemini-2.0-flash",
			DefaultPerplexityModel: "sonar",
		},
	}
}

type stubUserRepo struct {
	mu      sync.Mutex
	users   map[int64]*domain.User
	byEmail map[string]int64
	nextID  int64
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{
		users:   make(map[int64]*domain.User),
		byEmail: make(map[string]int64),
	}
}

func (r *stubUserRepo) Create(_ context.Context, user domain.User) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[user.Email]; exists {
		return 0, repository.ErrDuplicate
	}

	r.nextID++
	user.ID = r.nextID
	r.users[user.ID] = &user
	r.byEmail[user.Email] = user.ID
	return user.ID, nil
}

func (r *stubUserRepo) GetByID(_ context.Context, id int64) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (r *stubUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *r.users[id]
	return &copied, nil
}

func (r *stubUserRepo) MarkVerified(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.Verified = true
	return nil
}

func (r *stubUserRepo) Block(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	now := time.Now().UTC()
	user.Blocked = true
	user.BlockedAt = &now
	return nil
}

func (r *stubUserRepo) TouchLastLogin(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	now := time.Now().UTC()
	user.LastLogin = &now
	return nil
}

type otpEntry struct {
	code     string
	attempts int
}

type stubOTPStore struct {
	mu      sync.Mutex
	entries map[int64]*otpEntry
}

func newStubOTPStore() *stubOTPStore {
	return &stubOTPStore{entries: make(map[int64]*otpEntry)}
}

func (s *stubOTPStore) Store(_ context.Context, userID int64, code string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[userID] = &otpEntry{code: code}
	return nil
}

func (s *stubOTPStore) Fetch(_ context.Context, userID int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[userID]
	if !ok {
		return "", repository.ErrNotFound
	}
	return entry.code, nil
}

func (s *stubOTPStore) IncrementAttempts(_ context.Context, userID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[userID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	entry.attempts++
	return entry.attempts, nil
}

func (s *stubOTPStore) Delete(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[userID]; !ok {
		return repository.ErrNotFound
	}
	delete(s.entries, userID)
	return nil
}

type stubSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*domain.RefreshSession
}

func newStubSessionRepo() *stubSessionRepo {
	return &stubSessionRepo{sessions: make(map[string]*domain.RefreshSession)}
}

func (r *stubSessionRepo) Create(_ context.Context, session domain.RefreshSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[session.TokenHash]; exists {
		return repository.ErrDuplicate
	}
	r.sessions[session.TokenHash] = &session
	return nil
}

func (r *stubSessionRepo) GetByTokenHash(_ context.Context, hash string) (*domain.RefreshSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[hash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *session
	return &copied, nil
}

func (r *stubSessionRepo) Rotate(_ context.Context, oldTokenHash string, successor domain.RefreshSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	predecessor, ok := r.sessions[oldTokenHash]
	if !ok || !predecessor.IsActive(time.Now().UTC()) {
		return repository.ErrNotFound
	}

	r.sessions[successor.TokenHash] = &successor
	now := time.Now().UTC()
	predecessor.RevokedAt = &now
	predecessor.ReplacedBy = &successor.ID
	return nil
}

func (r *stubSessionRepo) Revoke(_ context.Context, tokenHash string) (*domain.RefreshSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[tokenHash]
	if !ok || session.RevokedAt != nil {
		return nil, repository.ErrNotFound
	}
	now := time.Now().UTC()
	session.RevokedAt = &now
	copied := *session
	return &copied, nil
}

func (r *stubSessionRepo) ListActiveByUser(_ context.Context, userID int64) ([]domain.RefreshSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	var active []domain.RefreshSession
	for _, session := range r.sessions {
		if session.UserID == userID && session.IsActive(now) {
			active = append(active, *session)
		}
	}
	return active, nil
}

type stubMarkerStore struct {
	mu      sync.Mutex
	markers map[string]bool
}

func newStubMarkerStore() *stubMarkerStore {
	return &stubMarkerStore{markers: make(map[string]bool)}
}

func (s *stubMarkerStore) Activate(_ context.Context, markerKey string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers[markerKey] = true
	return nil
}

func (s *stubMarkerStore) IsActive(_ context.Context, markerKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markers[markerKey], nil
}

func (s *stubMarkerStore) Deactivate(_ context.Context, markerKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.markers, markerKey)
	return nil
}

type stubPublisher struct {
	mu       sync.Mutex
	signups  []domain.UserSignedUpEvent
	verified []domain.UserVerifiedEvent
	rotated  []domain.SessionRotatedEvent
	revoked  []domain.SessionRevokedEvent
	mailJobs []domain.OTPMailJob
}

func newStubPublisher() *stubPublisher {
	return &stubPublisher{}
}

func (p *stubPublisher) PublishUserSignedUp(_ context.Context, event domain.UserSignedUpEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signups = append(p.signups, event)
	return nil
}

func (p *stubPublisher) PublishUserVerified(_ context.Context, event domain.UserVerifiedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.verified = append(p.verified, event)
	return nil
}

func (p *stubPublisher) PublishSessionRotated(_ context.Context, event domain.SessionRotatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rotated = append(p.rotated, event)
	return nil
}

func (p *stubPublisher) PublishSessionRevoked(_ context.Context, event domain.SessionRevokedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revoked = append(p.revoked, event)
	return nil
}

func (p *stubPublisher) EnqueueOTPMail(_ context.Context, job domain.OTPMailJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mailJobs = append(p.mailJobs, job)
	return nil
}

func (p *stubPublisher) lastMailJob() *domain.OTPMailJob {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.mailJobs) == 0 {
		return nil
	}
	job := p.mailJobs[len(p.mailJobs)-1]
	return &job
}

type stubCreditRepo struct {
	mu       sync.Mutex
	balances map[int64]int64
}

func newStubCreditRepo() *stubCreditRepo {
	return &stubCreditRepo{balances: make(map[int64]int64)}
}

func (r *stubCreditRepo) GetAccount(_ context.Context, userID int64) (*domain.CreditAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	balance, ok := r.balances[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &domain.CreditAccount{UserID: userID, Balance: balance}, nil
}

func (r *stubCreditRepo) Deduct(_ context.Context, userID int64, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	balance, ok := r.balances[userID]
	if !ok || balance < amount {
		return repository.ErrInsufficient
	}
	r.balances[userID] = balance - amount
	return nil
}

func (r *stubCreditRepo) Grant(_ context.Context, userID int64, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.balances[userID] += amount
	return nil
}

type stubKeyRepo struct {
	mu   sync.Mutex
	keys map[string]*domain.ProviderKey
}

func newStubKeyRepo() *stubKeyRepo {
	return &stubKeyRepo{keys: make(map[string]*domain.ProviderKey)}
}

func keyRepoIndex(userID int64, provider domain.AIProvider) string {
	return fmt.Sprintf("%d:%s", userID, provider)
}

func (r *stubKeyRepo) Upsert(_ context.Context, key domain.ProviderKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[keyRepoIndex(key.UserID, key.Provider)] = &key
	return nil
}

func (r *stubKeyRepo) Get(_ context.Context, userID int64, provider domain.AIProvider) (*domain.ProviderKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, ok := r.keys[keyRepoIndex(userID, provider)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *key
	return &copied, nil
}

func (r *stubKeyRepo) Delete(_ context.Context, userID int64, provider domain.AIProvider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	index := keyRepoIndex(userID, provider)
	if _, ok := r.keys[index]; !ok {
		return repository.ErrNotFound
	}
	delete(r.keys, index)
	return nil
}

type stubUpstream struct {
	mu       sync.Mutex
	calls    []domain.ResolvedCredential
	response *domain.ChatResponse
	err      error
}

func (u *stubUpstream) Chat(_ context.Context, credential domain.ResolvedCredential, request domain.ChatRequest) (*domain.ChatResponse, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls = append(u.calls, credential)
	if u.err != nil {
		return nil, u.err
	}
	if u.response != nil {
		return u.response, nil
	}
	return &domain.ChatResponse{
		Provider: credential.Provider,
		Model:    credential.Model,
		Content:  "ok",
	}, nil
}
