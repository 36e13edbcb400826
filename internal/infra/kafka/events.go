package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/canvasvault/auth-service/internal/core/domain"
	"github.com/canvasvault/auth-service/internal/core/port"
	"github.com/canvasvault/auth-service/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher and port.MailQueue using Kafka.
// Auth lifecycle events and outbound mail jobs share the producer and envelope.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	UserID    string           `json:"user_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType string, userID int64, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if span := trace.SpanFromContext(ctx); span != nil {
		if sc := span.SpanContext(); sc.IsValid() {
			metadata["trace_id"] = sc.TraceID().String()
		}
	}

	var userKey string
	if userID > 0 {
		userKey = strconv.FormatInt(userID, 10)
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		UserID:    userKey,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}
	if userKey != "" {
		// Keyed by user so per-user events stay ordered within a partition.
		message.Key = sarama.StringEncoder(userKey)
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishUserSignedUp publishes auth.user.signed_up events.
func (p *EventPublisher) PublishUserSignedUp(ctx context.Context, event domain.UserSignedUpEvent) error {
	payload := struct {
		UserID    int64     `json:"user_id"`
		Email     string    `json:"email"`
		Name      string    `json:"name"`
		SignedUp  time.Time `json:"signed_up_at"`
		IP        *string   `json:"ip_address,omitempty"`
		UserAgent *string   `json:"user_agent,omitempty"`
	}{
		UserID:    event.UserID,
		Email:     event.Email,
		Name:      event.Name,
		SignedUp:  event.SignedUp.UTC(),
		IP:        event.IP,
		UserAgent: event.UserAgent,
	}

	return p.publish(ctx, event.EventID, "auth.user.signed_up", event.UserID, event.SignedUp, payload)
}

// PublishUserVerified publishes auth.user.verified events.
func (p *EventPublisher) PublishUserVerified(ctx context.Context, event domain.UserVerifiedEvent) error {
	payload := struct {
		UserID     int64     `json:"user_id"`
		Email      string    `json:"email"`
		VerifiedAt time.Time `json:"verified_at"`
	}{
		UserID:     event.UserID,
		Email:      event.Email,
		VerifiedAt: event.VerifiedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "auth.user.verified", event.UserID, event.VerifiedAt, payload)
}

// PublishSessionRotated publishes auth.session.rotated events.
func (p *EventPublisher) PublishSessionRotated(ctx context.Context, event domain.SessionRotatedEvent) error {
	payload := struct {
		UserID       int64     `json:"user_id"`
		OldSessionID string    `json:"old_session_id"`
		NewSessionID string    `json:"new_session_id"`
		RotatedAt    time.Time `json:"rotated_at"`
		IP           *string   `json:"ip_address,omitempty"`
	}{
		UserID:       event.UserID,
		OldSessionID: event.OldSessionID,
		NewSessionID: event.NewSessionID,
		RotatedAt:    event.RotatedAt.UTC(),
		IP:           event.IP,
	}

	return p.publish(ctx, event.EventID, "auth.session.rotated", event.UserID, event.RotatedAt, payload)
}

// PublishSessionRevoked publishes auth.session.revoked events.
func (p *EventPublisher) PublishSessionRevoked(ctx context.Context, event domain.SessionRevokedEvent) error {
	payload := struct {
		UserID    int64     `json:"user_id"`
		SessionID string    `json:"session_id"`
		Reason    string    `json:"reason"`
		RevokedAt time.Time `json:"revoked_at"`
	}{
		UserID:    event.UserID,
		SessionID: event.SessionID,
		Reason:    event.Reason,
		RevokedAt: event.RevokedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "auth.session.revoked", event.UserID, event.RevokedAt, payload)
}

// EnqueueOTPMail publishes auth.mail.otp_requested jobs for the mail worker.
// The code travels inside the job payload; it is never logged here.
func (p *EventPublisher) EnqueueOTPMail(ctx context.Context, job domain.OTPMailJob) error {
	payload := struct {
		UserID      int64     `json:"user_id"`
		Email       string    `json:"email"`
		Name        string    `json:"name"`
		Code        string    `json:"code"`
		ExpiresAt   time.Time `json:"expires_at"`
		RequestedAt time.Time `json:"requested_at"`
	}{
		UserID:      job.UserID,
		Email:       job.Email,
		Name:        job.Name,
		Code:        job.Code,
		ExpiresAt:   job.ExpiresAt.UTC(),
		RequestedAt: job.RequestedAt.UTC(),
	}

	return p.publish(ctx, job.JobID, "auth.mail.otp_requested", job.UserID, job.RequestedAt, payload)
}

var (
	_ port.EventPublisher = (*EventPublisher)(nil)
	_ port.MailQueue      = (*EventPublisher)(nil)
)
