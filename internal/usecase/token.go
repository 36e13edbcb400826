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
	"github.com/canvasvault/auth-service/internal/infra/logger"
	"github.com/canvasvault/auth-service/internal/infra/security"
	"github.com/canvasvault/auth-service/internal/repository"
)

const refreshTokenBytes = 64

// TokenPair bundles the credentials handed out on login and refresh. RefreshToken is
// the only place the raw refresh value ever appears; storage sees its hash.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	AccessClaims *security.AccessTokenClaims
	Session      *domain.RefreshSession
}

// TokenService issues, verifies, rotates and revokes token pairs. Every access token
// is bound to a session marker whose absence invalidates the token ahead of expiry.
type TokenService struct {
	cfg      *config.AppConfig
	signer   *security.TokenSigner
	sessions port.SessionRepository
	users    port.UserRepository
	markers  port.SessionMarkerStore
	events   port.EventPublisher
	logger   *zap.Logger
	now      func() time.Time
}

// NewTokenService constructs a TokenService instance.
func NewTokenService(
	cfg *config.AppConfig,
	signer *security.TokenSigner,
	sessions port.SessionRepository,
	users port.UserRepository,
	markers port.SessionMarkerStore,
	events port.EventPublisher,
	log *zap.Logger,
) *TokenService {
	if log == nil {
		log = zap.NewNop()
	}

	service := &TokenService{
		cfg:      cfg,
		signer:   signer,
		sessions: sessions,
		users:    users,
		markers:  markers,
		events:   events,
		logger:   log,
	}
	service.now = func() time.Time { return time.Now().UTC() }
	return service
}

// WithClock overrides the service clock for deterministic tests.
func (s *TokenService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// IssuePair mints an access token, persists a refresh session for it and activates
// the session marker. An empty device id gets a generated one so the marker triple
// is always complete.
func (s *TokenService) IssuePair(ctx context.Context, user *domain.User, deviceID string, ip, userAgent *string) (*TokenPair, error) {
	if user == nil {
		return nil, ErrUserNotFound
	}

	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		deviceID = uuid.NewString()
	}

	access, claims, err := s.signer.Sign(user.ID, user.Email, deviceID)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	rawRefresh, err := security.GenerateRefreshToken(refreshTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	now := s.now()
	session := domain.RefreshSession{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: security.HashToken(rawRefresh),
		DeviceID:  deviceID,
		AccessJTI: claims.ID,
		IP:        ip,
		UserAgent: userAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.JWT.RefreshTokenTTL),
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("persist refresh session: %w", err)
	}

	markerKey := security.MarkerKey(user.ID, deviceID, claims.ID)
	if err := s.markers.Activate(ctx, markerKey, s.signer.TTL()); err != nil {
		return nil, fmt.Errorf("activate session marker: %w", err)
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: rawRefresh,
		AccessClaims: claims,
		Session:      &session,
	}, nil
}

// VerifyAccess validates an access token end to end: signature and time claims,
// marker liveness, then a fresh account load so blocks take effect immediately.
func (s *TokenService) VerifyAccess(ctx context.Context, token string) (*domain.Identity, error) {
	claims, err := s.signer.Parse(token)
	if err != nil {
		return nil, err
	}

	markerKey := security.MarkerKey(claims.UserID, claims.DeviceID, claims.ID)
	active, err := s.markers.IsActive(ctx, markerKey)
	if err != nil {
		return nil, fmt.Errorf("check session marker: %w", err)
	}
	if !active {
		return nil, ErrSessionInvalid
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	if user.Blocked {
		return nil, ErrAccountBlocked
	}

	// The email baked into the token must still match the account. A stale token
	// surviving an email change does not get to keep its old identity.
	if !strings.EqualFold(user.Email, claims.Email) {
		return nil, security.ErrTokenPayload
	}

	identity := &domain.Identity{
		UserID:    user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Verified:  user.Verified,
		DeviceID:  claims.DeviceID,
		TokenID:   claims.ID,
		AvatarURL: user.AvatarURL,
	}
	if claims.IssuedAt != nil {
		identity.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}

	return identity, nil
}

// Refresh exchanges a raw refresh token for a fresh pair. The predecessor session is
// revoked in the same transaction that records its successor, so a replayed token
// loses deterministically and surfaces as an invalid session. The predecessor's
// session marker is deleted along with it; the access token issued with the old
// session dies at rotation, not at its natural expiry.
func (s *TokenService) Refresh(ctx context.Context, rawRefresh string, ip, userAgent *string) (*TokenPair, error) {
	rawRefresh = strings.TrimSpace(rawRefresh)
	if rawRefresh == "" {
		return nil, ErrSessionInvalid
	}

	oldHash := security.HashToken(rawRefresh)

	current, err := s.sessions.GetByTokenHash(ctx, oldHash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionInvalid
		}
		return nil, fmt.Errorf("load refresh session: %w", err)
	}

	now := s.now()
	if !current.IsActive(now) {
		return nil, ErrSessionInvalid
	}

	user, err := s.users.GetByID(ctx, current.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionInvalid
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user.Blocked {
		return nil, ErrAccountBlocked
	}

	deviceID := current.DeviceID
	if deviceID == "" {
		deviceID = uuid.NewString()
	}
	access, claims, err := s.signer.Sign(user.ID, user.Email, deviceID)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	rawSuccessor, err := security.GenerateRefreshToken(refreshTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	successor := domain.RefreshSession{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: security.HashToken(rawSuccessor),
		DeviceID:  deviceID,
		AccessJTI: claims.ID,
		IP:        ip,
		UserAgent: userAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.JWT.RefreshTokenTTL),
	}

	if err := s.sessions.Rotate(ctx, oldHash, successor); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Lost the race: another request already rotated this token.
			return nil, ErrSessionInvalid
		}
		return nil, fmt.Errorf("rotate refresh session: %w", err)
	}

	if current.DeviceID != "" && current.AccessJTI != "" {
		oldMarker := security.MarkerKey(current.UserID, current.DeviceID, current.AccessJTI)
		if err := s.markers.Deactivate(ctx, oldMarker); err != nil {
			return nil, fmt.Errorf("deactivate predecessor marker: %w", err)
		}
	}

	markerKey := security.MarkerKey(user.ID, deviceID, claims.ID)
	if err := s.markers.Activate(ctx, markerKey, s.signer.TTL()); err != nil {
		return nil, fmt.Errorf("activate session marker: %w", err)
	}

	if s.events != nil {
		event := domain.SessionRotatedEvent{
			EventID:      uuid.NewString(),
			UserID:       user.ID,
			OldSessionID: current.ID,
			NewSessionID: successor.ID,
			RotatedAt:    now,
			IP:           ip,
		}
		if err := s.events.PublishSessionRotated(ctx, event); err != nil {
			s.logger.Warn("publish session rotated failed",
				zap.Int64("user_id", user.ID),
				zap.Error(err),
			)
		}
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: rawSuccessor,
		AccessClaims: claims,
		Session:      &successor,
	}, nil
}

// Revoke terminates the session behind a raw refresh token and deactivates the
// caller's session marker. Revoking an already dead session is not an error; logout
// must be idempotent.
func (s *TokenService) Revoke(ctx context.Context, identity *domain.Identity, rawRefresh string) error {
	if identity != nil && identity.DeviceID != "" && identity.TokenID != "" {
		markerKey := security.MarkerKey(identity.UserID, identity.DeviceID, identity.TokenID)
		if err := s.markers.Deactivate(ctx, markerKey); err != nil {
			return fmt.Errorf("deactivate session marker: %w", err)
		}
	}

	rawRefresh = strings.TrimSpace(rawRefresh)
	if rawRefresh == "" {
		return nil
	}

	session, err := s.sessions.Revoke(ctx, security.HashToken(rawRefresh))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("revoke refresh session: %w", err)
	}

	if s.events != nil {
		event := domain.SessionRevokedEvent{
			EventID:   uuid.NewString(),
			UserID:    session.UserID,
			SessionID: session.ID,
			Reason:    "logout",
			RevokedAt: s.now(),
		}
		if err := s.events.PublishSessionRevoked(ctx, event); err != nil {
			s.logger.Warn("publish session revoked failed",
				zap.Int64("user_id", session.UserID),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("session revoked",
		zap.Int64("user_id", session.UserID),
		zap.String("session_id", session.ID),
		zap.String("ip", logger.MaskIP(derefString(session.IP))),
	)

	return nil
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
