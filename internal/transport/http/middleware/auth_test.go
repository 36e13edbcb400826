package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/canvasvault/auth-service/internal/core/domain"
	"github.com/canvasvault/auth-service/internal/infra/config"
	"github.com/canvasvault/auth-service/internal/infra/security"
	"github.com/canvasvault/auth-service/internal/repository"
	"github.com/canvasvault/auth-service/internal/usecase"
)

type fixedUserRepo struct {
	user *domain.User
}

func (f *fixedUserRepo) Create(ctx context.Context, user domain.User) (int64, error) {
	return 0, repository.ErrNotFound
}

func (f *fixedUserRepo) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	if f.user == nil || f.user.ID != id {
		return nil, repository.ErrNotFound
	}
	u := *f.user
	return &u, nil
}

func (f *fixedUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	if f.user == nil || f.user.Email != email {
		return nil, repository.ErrNotFound
	}
	u := *f.user
	return &u, nil
}

func (f *fixedUserRepo) MarkVerified(ctx context.Context, id int64) error   { return nil }
func (f *fixedUserRepo) Block(ctx context.Context, id int64) error         { return nil }
func (f *fixedUserRepo) TouchLastLogin(ctx context.Context, id int64) error { return nil }

type memoryMarkerStore struct {
	markers map[string]bool
}

func newMemoryMarkerStore() *memoryMarkerStore {
	return &memoryMarkerStore{markers: make(map[string]bool)}
}

func (m *memoryMarkerStore) Activate(ctx context.Context, key string, ttl time.Duration) error {
	m.markers[key] = true
	return nil
}

func (m *memoryMarkerStore) IsActive(ctx context.Context, key string) (bool, error) {
	return m.markers[key], nil
}

func (m *memoryMarkerStore) Deactivate(ctx context.Context, key string) error {
	delete(m.markers, key)
	return nil
}

type nopSessionRepo struct{}

func (nopSessionRepo) Create(ctx context.Context, session domain.RefreshSession) error { return nil }
func (nopSessionRepo) GetByTokenHash(ctx context.Context, hash string) (*domain.RefreshSession, error) {
	return nil, repository.ErrNotFound
}
func (nopSessionRepo) Rotate(ctx context.Context, oldTokenHash string, successor domain.RefreshSession) error {
	return repository.ErrNotFound
}
func (nopSessionRepo) Revoke(ctx context.Context, tokenHash string) (*domain.RefreshSession, error) {
	return nil, repository.ErrNotFound
}
func (nopSessionRepo) ListActiveByUser(ctx context.Context, userID int64) ([]domain.RefreshSession, error) {
	return nil, nil
}

type nopPublisher struct{}

func (nopPublisher) PublishUserSignedUp(ctx context.Context, e domain.UserSignedUpEvent) error {
	return nil
}
func (nopPublisher) PublishUserVerified(ctx context.Context, e domain.UserVerifiedEvent) error {
	return nil
}
func (nopPublisher) PublishSessionRotated(ctx context.Context, e domain.SessionRotatedEvent) error {
	return nil
}
func (nopPublisher) PublishSessionRevoked(ctx context.Context, e domain.SessionRevokedEvent) error {
	return nil
}

func authTestRouter(t *testing.T) (*gin.Engine, *usecase.TokenService, *domain.User, *memoryMarkerStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.AppConfig{
		App: config.AppSettings{Name: "canvasvault-auth", Env: "test"},
		JWT: config.JWTSettings{
			SigningSecret:   "0123456789abcdef0123456789abcdef",
			AccessTokenTTL:  time.Hour,
			RefreshTokenTTL: 24 * time.Hour,
			ClockSkew:       30 * time.Second,
		},
	}

	signer, err := security.NewTokenSigner(cfg.JWT.SigningSecret, cfg.App.Name, cfg.JWT.AccessTokenTTL, cfg.JWT.ClockSkew)
	if err != nil {
		t.Fatalf("NewTokenSigner: %v", err)
	}

	user := &domain.User{ID: 7, Email: "ada@example.com", Name: "Ada", Verified: true}
	markers := newMemoryMarkerStore()
	tokens := usecase.NewTokenService(cfg, signer, nopSessionRepo{}, &fixedUserRepo{user: user}, markers, nopPublisher{}, nil)

	router := gin.New()
	router.GET("/protected", RequireAuth(tokens, nil), func(c *gin.Context) {
		identity, ok := GetIdentity(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": identity.UserID})
	})

	return router, tokens, user, markers
}

func issueToken(t *testing.T, tokens *usecase.TokenService, user *domain.User) string {
	t.Helper()
	pair, err := tokens.IssuePair(context.Background(), user, "device-1", nil, nil)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	return pair.AccessToken
}

func TestRequireAuthAcceptsBearerToken(t *testing.T) {
	router, tokens, user, _ := authTestRouter(t)
	token := issueToken(t, tokens, user)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rr.Code, rr.Body.String())
	}
}

func TestRequireAuthAcceptsAltHeader(t *testing.T) {
	router, tokens, user, _ := authTestRouter(t)
	token := issueToken(t, tokens, user)

	// x-auth-token works both bare and with the Bearer prefix.
	for _, value := range []string{token, "Bearer " + token} {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("x-auth-token", value)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200 for %q, got %d", value, rr.Code)
		}
	}
}

func TestRequireAuthMissingHeader(t *testing.T) {
	router, _, _, _ := authTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestRequireAuthRejectsTamperedToken(t *testing.T) {
	router, tokens, user, _ := authTestRouter(t)
	token := issueToken(t, tokens, user)
	tampered := token[:len(token)-2] + "xx"

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+tampered)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestRequireAuthRejectsWhenMarkerGone(t *testing.T) {
	router, tokens, user, markers := authTestRouter(t)
	token := issueToken(t, tokens, user)

	// Simulate logout: drop every marker.
	markers.markers = make(map[string]bool)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after marker removal, got %d", rr.Code)
	}
}

func TestRequireAuthRejectsShortToken(t *testing.T) {
	router, _, _, _ := authTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer short")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for undersized token, got %d", rr.Code)
	}
}
