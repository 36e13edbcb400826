package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/canvasvault/auth-service/internal/core/domain"
	"github.com/canvasvault/auth-service/internal/infra/security"
)

func seedVerifiedUser(t *testing.T, users *stubUserRepo) *domain.User {
	t.Helper()

	id, err := users.Create(context.Background(), domain.User{
		Email:        "ada@example.com",
		Name:         "Ada",
		PasswordHash: "salt:hash",
		PasswordAlgo: "argon2id",
		Verified:     true,
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}

	user, err := users.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("load seeded user: %v", err)
	}
	return user
}

func TestRefreshRotatesSession(t *testing.T) {
	_, tokens, users, _, sessions, _, publisher := newTestServices(t)
	user := seedVerifiedUser(t, users)

	pair, err := tokens.IssuePair(context.Background(), user, "device-1", nil, nil)
	if err != nil {
		t.Fatalf("IssuePair returned error: %v", err)
	}

	next, err := tokens.Refresh(context.Background(), pair.RefreshToken, nil, nil)
	if err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Fatalf("refresh must mint a new token")
	}

	// Predecessor row survives as audit trail, revoked and pointing at its successor.
	old, err := sessions.GetByTokenHash(context.Background(), security.HashToken(pair.RefreshToken))
	if err != nil {
		t.Fatalf("GetByTokenHash returned error: %v", err)
	}
	if old.RevokedAt == nil {
		t.Fatalf("expected predecessor revoked")
	}
	if old.ReplacedBy == nil || *old.ReplacedBy != next.Session.ID {
		t.Fatalf("expected replacement pointer to successor")
	}

	if len(publisher.rotated) != 1 {
		t.Fatalf("expected one rotation event, got %d", len(publisher.rotated))
	}

	// The new access token verifies.
	if _, err := tokens.VerifyAccess(context.Background(), next.AccessToken); err != nil {
		t.Fatalf("VerifyAccess on rotated token returned error: %v", err)
	}
}

func TestRefreshKillsPredecessorAccessToken(t *testing.T) {
	_, tokens, users, _, _, _, _ := newTestServices(t)
	user := seedVerifiedUser(t, users)

	pair, err := tokens.IssuePair(context.Background(), user, "device-1", nil, nil)
	if err != nil {
		t.Fatalf("IssuePair returned error: %v", err)
	}

	next, err := tokens.Refresh(context.Background(), pair.RefreshToken, nil, nil)
	if err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}

	// The successor token stays bound to the same device.
	if next.AccessClaims.DeviceID != "device-1" {
		t.Fatalf("expected rotation to reuse the session device id, got %q", next.AccessClaims.DeviceID)
	}

	// The access token issued with the consumed session is dead at rotation, not
	// at its natural expiry: its marker is gone.
	if _, err := tokens.VerifyAccess(context.Background(), pair.AccessToken); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid for predecessor access token, got %v", err)
	}

	if _, err := tokens.VerifyAccess(context.Background(), next.AccessToken); err != nil {
		t.Fatalf("VerifyAccess on successor token returned error: %v", err)
	}
}

func TestRefreshReplayLoses(t *testing.T) {
	_, tokens, users, _, _, _, _ := newTestServices(t)
	user := seedVerifiedUser(t, users)

	pair, err := tokens.IssuePair(context.Background(), user, "device-1", nil, nil)
	if err != nil {
		t.Fatalf("IssuePair returned error: %v", err)
	}

	if _, err := tokens.Refresh(context.Background(), pair.RefreshToken, nil, nil); err != nil {
		t.Fatalf("first Refresh returned error: %v", err)
	}

	// Replaying the consumed token must fail deterministically.
	if _, err := tokens.Refresh(context.Background(), pair.RefreshToken, nil, nil); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid on replay, got %v", err)
	}
}

func TestRefreshUnknownToken(t *testing.T) {
	_, tokens, _, _, _, _, _ := newTestServices(t)

	if _, err := tokens.Refresh(context.Background(), "never-issued", nil, nil); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid, got %v", err)
	}
}

func TestVerifyAccessExpiredToken(t *testing.T) {
	cfg := testConfig()
	signer, err := security.NewTokenSigner(cfg.JWT.SigningSecret, cfg.App.Name, cfg.JWT.AccessTokenTTL, cfg.JWT.ClockSkew)
	if err != nil {
		t.Fatalf("NewTokenSigner: %v", err)
	}

	issuedAt := time.Now().UTC().Add(-48 * time.Hour)
	signer.WithClock(func() time.Time { return issuedAt })

	users := newStubUserRepo()
	user := seedVerifiedUser(t, users)

	markers := newStubMarkerStore()
	tokens := NewTokenService(cfg, signer, newStubSessionRepo(), users, markers, newStubPublisher(), nil)

	pair, err := tokens.IssuePair(context.Background(), user, "device-1", nil, nil)
	if err != nil {
		t.Fatalf("IssuePair returned error: %v", err)
	}

	// Move the verification clock back to the present: the 24h token is long dead.
	signer.WithClock(func() time.Time { return time.Now().UTC() })

	if _, err := tokens.VerifyAccess(context.Background(), pair.AccessToken); !errors.Is(err, security.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestVerifyAccessTamperedToken(t *testing.T) {
	_, tokens, users, _, _, _, _ := newTestServices(t)
	user := seedVerifiedUser(t, users)

	pair, err := tokens.IssuePair(context.Background(), user, "device-1", nil, nil)
	if err != nil {
		t.Fatalf("IssuePair returned error: %v", err)
	}

	tampered := pair.AccessToken[:len(pair.AccessToken)-2] + "xx"
	if _, err := tokens.VerifyAccess(context.Background(), tampered); err == nil {
		t.Fatalf("expected tampered token rejected")
	}
}

func TestVerifyAccessBlockedUser(t *testing.T) {
	_, tokens, users, _, _, _, _ := newTestServices(t)
	user := seedVerifiedUser(t, users)

	pair, err := tokens.IssuePair(context.Background(), user, "device-1", nil, nil)
	if err != nil {
		t.Fatalf("IssuePair returned error: %v", err)
	}

	if err := users.Block(context.Background(), user.ID); err != nil {
		t.Fatalf("Block returned error: %v", err)
	}

	// Blocks take effect immediately, not at token expiry.
	if _, err := tokens.VerifyAccess(context.Background(), pair.AccessToken); !errors.Is(err, ErrAccountBlocked) {
		t.Fatalf("expected ErrAccountBlocked, got %v", err)
	}
}

func TestIssuePairGeneratesDeviceID(t *testing.T) {
	_, tokens, users, _, _, _, _ := newTestServices(t)
	user := seedVerifiedUser(t, users)

	pair, err := tokens.IssuePair(context.Background(), user, "", nil, nil)
	if err != nil {
		t.Fatalf("IssuePair returned error: %v", err)
	}
	if pair.AccessClaims.DeviceID == "" {
		t.Fatalf("expected generated device id")
	}
}
