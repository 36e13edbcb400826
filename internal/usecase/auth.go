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

const otpCodeLength = 6

// SignupInput carries everything needed to open an account.
type SignupInput struct {
	Email     string
	Name      string
	Password  string
	IP        *string
	UserAgent *string
}

// LoginInput carries a credential check plus the request metadata recorded on the
// refresh session.
type LoginInput struct {
	Email     string
	Password  string
	DeviceID  string
	IP        *string
	UserAgent *string
}

// AuthService orchestrates signup, OTP verification and the login/logout flows.
type AuthService struct {
	cfg    *config.AppConfig
	users  port.UserRepository
	otps   port.OTPStore
	tokens *TokenService
	hasher *security.PasswordHasher
	events port.EventPublisher
	mail   port.MailQueue
	logger *zap.Logger
	now    func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(
	cfg *config.AppConfig,
	users port.UserRepository,
	otps port.OTPStore,
	tokens *TokenService,
	hasher *security.PasswordHasher,
	events port.EventPublisher,
	mail port.MailQueue,
	log *zap.Logger,
) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}

	service := &AuthService{
		cfg:    cfg,
		users:  users,
		otps:   otps,
		tokens: tokens,
		hasher: hasher,
		events: events,
		mail:   mail,
		logger: log,
	}
	service.now = func() time.Time { return time.Now().UTC() }
	return service
}

// WithClock overrides the service clock for deterministic tests.
func (s *AuthService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Signup creates an unverified account and queues the first verification code.
// The password policy is checked against the user's own email and name so trivially
// derived passwords are rejected.
func (s *AuthService) Signup(ctx context.Context, input SignupInput) (*domain.User, error) {
	email := normalizeEmail(input.Email)
	name := strings.TrimSpace(input.Name)

	switch {
	case email == "":
		return nil, fmt.Errorf("email is required")
	case name == "":
		return nil, fmt.Errorf("name is required")
	}

	validator := security.DefaultPasswordValidator(email, name)
	if err := validator.Validate(input.Password); err != nil {
		var policyErr *security.PasswordValidationError
		if errors.As(err, &policyErr) {
			return nil, fmt.Errorf("%w: %s", ErrPasswordPolicyViolation, policyErr.Message)
		}
		return nil, err
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	user := domain.User{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		PasswordAlgo: "argon2id",
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	id, err := s.users.Create(ctx, user)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	user.ID = id

	if err := s.issueOTP(ctx, &user); err != nil {
		// The account exists; verification can be retried via resend.
		s.logger.Error("issue signup otp failed",
			zap.Int64("user_id", user.ID),
			zap.Error(err),
		)
	}

	if s.events != nil {
		event := domain.UserSignedUpEvent{
			EventID:   uuid.NewString(),
			UserID:    user.ID,
			Email:     user.Email,
			Name:      user.Name,
			SignedUp:  now,
			IP:        input.IP,
			UserAgent: input.UserAgent,
		}
		if err := s.events.PublishUserSignedUp(ctx, event); err != nil {
			s.logger.Warn("publish user signed up failed",
				zap.Int64("user_id", user.ID),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("user signed up",
		zap.Int64("user_id", user.ID),
		zap.String("email", logger.MaskEmail(user.Email)),
	)

	return &user, nil
}

// ResendOTP issues a fresh verification code, replacing any outstanding one.
func (s *AuthService) ResendOTP(ctx context.Context, email string) error {
	user, err := s.findByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user.Verified {
		return ErrAlreadyVerified
	}

	return s.issueOTP(ctx, user)
}

// VerifyOTP checks a submitted code against the outstanding one. Wrong guesses burn
// attempts; once the budget is spent the code itself is destroyed so guessing cannot
// continue against it.
func (s *AuthService) VerifyOTP(ctx context.Context, email, code string) error {
	user, err := s.findByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user.Verified {
		return ErrAlreadyVerified
	}

	code = strings.TrimSpace(code)
	if code == "" {
		return ErrVerificationCodeInvalid
	}

	stored, err := s.otps.Fetch(ctx, user.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrVerificationCodeExpired
		}
		return fmt.Errorf("fetch otp: %w", err)
	}

	if stored != code {
		attempts, incErr := s.otps.IncrementAttempts(ctx, user.ID)
		if incErr != nil && !errors.Is(incErr, repository.ErrNotFound) {
			return fmt.Errorf("count otp attempt: %w", incErr)
		}
		if attempts >= s.cfg.OTP.MaxAttempts {
			if delErr := s.otps.Delete(ctx, user.ID); delErr != nil && !errors.Is(delErr, repository.ErrNotFound) {
				s.logger.Warn("delete exhausted otp failed",
					zap.Int64("user_id", user.ID),
					zap.Error(delErr),
				)
			}
			return ErrTooManyAttempts
		}
		return ErrVerificationCodeInvalid
	}

	if err := s.otps.Delete(ctx, user.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("consume otp: %w", err)
	}

	if err := s.users.MarkVerified(ctx, user.ID); err != nil {
		return fmt.Errorf("mark user verified: %w", err)
	}

	if s.events != nil {
		event := domain.UserVerifiedEvent{
			EventID:    uuid.NewString(),
			UserID:     user.ID,
			Email:      user.Email,
			VerifiedAt: s.now(),
		}
		if err := s.events.PublishUserVerified(ctx, event); err != nil {
			s.logger.Warn("publish user verified failed",
				zap.Int64("user_id", user.ID),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("user verified",
		zap.Int64("user_id", user.ID),
		zap.String("email", logger.MaskEmail(user.Email)),
	)

	return nil
}

// Login authenticates a credential pair and issues a token pair. Unknown emails and
// wrong passwords are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*domain.User, *TokenPair, error) {
	email := normalizeEmail(input.Email)
	if email == "" || input.Password == "" {
		return nil, nil, ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("load user: %w", err)
	}

	ok, err := s.hasher.Verify(input.Password, user.PasswordHash)
	if err != nil {
		return nil, nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		s.logger.Warn("login rejected: bad password",
			zap.String("email", logger.MaskEmail(email)),
			zap.String("ip", logger.MaskIP(derefString(input.IP))),
		)
		return nil, nil, ErrInvalidCredentials
	}

	if user.Blocked {
		return nil, nil, ErrAccountBlocked
	}
	if !user.Verified {
		return nil, nil, ErrAccountUnverified
	}

	pair, err := s.tokens.IssuePair(ctx, user, input.DeviceID, input.IP, input.UserAgent)
	if err != nil {
		return nil, nil, err
	}

	if err := s.users.TouchLastLogin(ctx, user.ID); err != nil {
		s.logger.Warn("touch last login failed",
			zap.Int64("user_id", user.ID),
			zap.Error(err),
		)
	}

	s.logger.Info("user logged in",
		zap.Int64("user_id", user.ID),
		zap.String("ip", logger.MaskIP(derefString(input.IP))),
	)

	return user, pair, nil
}

// Logout revokes the caller's session pair.
func (s *AuthService) Logout(ctx context.Context, identity *domain.Identity, rawRefresh string) error {
	return s.tokens.Revoke(ctx, identity, rawRefresh)
}

// GetUser loads the account behind an authenticated request.
func (s *AuthService) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

func (s *AuthService) issueOTP(ctx context.Context, user *domain.User) error {
	code, err := security.GenerateNumericCode(otpCodeLength)
	if err != nil {
		return fmt.Errorf("generate otp: %w", err)
	}

	if err := s.otps.Store(ctx, user.ID, code, s.cfg.OTP.TTL); err != nil {
		return fmt.Errorf("store otp: %w", err)
	}

	now := s.now()
	job := domain.OTPMailJob{
		JobID:       uuid.NewString(),
		UserID:      user.ID,
		Email:       user.Email,
		Name:        user.Name,
		Code:        code,
		ExpiresAt:   now.Add(s.cfg.OTP.TTL),
		RequestedAt: now,
	}
	if err := s.mail.EnqueueOTPMail(ctx, job); err != nil {
		return fmt.Errorf("enqueue otp mail: %w", err)
	}

	s.logger.Info("otp issued",
		zap.Int64("user_id", user.ID),
		zap.String("email", logger.MaskEmail(user.Email)),
	)

	return nil
}

func (s *AuthService) findByEmail(ctx context.Context, email string) (*domain.User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, ErrUserNotFound
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
