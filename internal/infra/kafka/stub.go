package kafka

import (
	"context"

	"go.uber.org/zap"

	"github.com/canvasvault/auth-service/internal/core/domain"
	"github.com/canvasvault/auth-service/internal/core/port"
	"github.com/canvasvault/auth-service/internal/infra/logger"
)

// StubPublisher satisfies the publisher ports when no brokers are configured.
// Events are logged and dropped so local development works without Kafka.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a logging stub publisher.
func NewStubPublisher(log *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: log}
}

func (s *StubPublisher) PublishUserSignedUp(_ context.Context, event domain.UserSignedUpEvent) error {
	s.logger.Debug("event dropped: no brokers configured",
		zap.String("event_type", "auth.user.signed_up"),
		zap.Int64("user_id", event.UserID),
	)
	return nil
}

func (s *StubPublisher) PublishUserVerified(_ context.Context, event domain.UserVerifiedEvent) error {
	s.logger.Debug("event dropped: no brokers configured",
		zap.String("event_type", "auth.user.verified"),
		zap.Int64("user_id", event.UserID),
	)
	return nil
}

func (s *StubPublisher) PublishSessionRotated(_ context.Context, event domain.SessionRotatedEvent) error {
	s.logger.Debug("event dropped: no brokers configured",
		zap.String("event_type", "auth.session.rotated"),
		zap.Int64("user_id", event.UserID),
	)
	return nil
}

func (s *StubPublisher) PublishSessionRevoked(_ context.Context, event domain.SessionRevokedEvent) error {
	s.logger.Debug("event dropped: no brokers configured",
		zap.String("event_type", "auth.session.revoked"),
		zap.Int64("user_id", event.UserID),
	)
	return nil
}

// EnqueueOTPMail logs the request without the code so local runs can still
// exercise the verification flow by reading the debug log.
func (s *StubPublisher) EnqueueOTPMail(_ context.Context, job domain.OTPMailJob) error {
	s.logger.Info("otp mail job dropped: no brokers configured",
		zap.Int64("user_id", job.UserID),
		zap.String("email", logger.MaskEmail(job.Email)),
	)
	return nil
}

var (
	_ port.EventPublisher = (*StubPublisher)(nil)
	_ port.MailQueue      = (*StubPublisher)(nil)
)
