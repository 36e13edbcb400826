package domain

import "time"

// UserSignedUpEvent is emitted after a new unverified account is created.
type UserSignedUpEvent struct {
	EventID   string
	UserID    int64
	Email     string
	Name      string
	SignedUp  time.Time
	IP        *string
	UserAgent *string
}

// UserVerifiedEvent is emitted when the OTP check flips the verified flag.
type UserVerifiedEvent struct {
	EventID    string
	UserID     int64
	Email      string
	VerifiedAt time.Time
}

// SessionRotatedEvent is emitted when a refresh session is exchanged for its successor.
type SessionRotatedEvent struct {
	EventID      string
	UserID       int64
	OldSessionID string
	NewSessionID string
	RotatedAt    time.Time
	IP           *string
}

// SessionRevokedEvent is emitted on logout or administrative revocation.
type SessionRevokedEvent struct {
	EventID   string
	UserID    int64
	SessionID string
	Reason    string
	RevokedAt time.Time
}

// OTPMailJob is a queued request to deliver a verification code by email.
// The consumer that renders and sends mail lives outside this service.
type OTPMailJob struct {
	JobID       string
	UserID      int64
	Email       string
	Name        string
	Code        string
	ExpiresAt   time.Time
	RequestedAt time.Time
}
