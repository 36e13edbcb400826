package port

import (
	"context"

	"github.com/canvasvault/auth-service/internal/core/domain"
)

// EventPublisher fans auth lifecycle events out to the platform event stream.
// Publish failures are logged by callers but never fail the originating request.
type EventPublisher interface {
	PublishUserSignedUp(ctx context.Context, event domain.UserSignedUpEvent) error
	PublishUserVerified(ctx context.Context, event domain.UserVerifiedEvent) error
	PublishSessionRotated(ctx context.Context, event domain.SessionRotatedEvent) error
	PublishSessionRevoked(ctx context.Context, event domain.SessionRevokedEvent) error
}

// MailQueue enqueues outbound mail jobs for the delivery worker.
type MailQueue interface {
	EnqueueOTPMail(ctx context.Context, job domain.OTPMailJob) error
}
