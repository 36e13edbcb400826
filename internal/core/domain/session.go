package domain

import "time"

// RefreshSession is a persisted refresh token record. The raw token value is never
// stored; only its SHA-256 hash. Rows are retained after revocation as an audit trail.
// DeviceID and AccessJTI identify the access token issued alongside the session, so
// rotation can deactivate the predecessor's session marker.
type RefreshSession struct {
	ID         string
	UserID     int64
	TokenHash  string
	DeviceID   string
	AccessJTI  string
	IP         *string
	UserAgent  *string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	ReplacedBy *string
}

// IsActive reports whether the session may still be exchanged at the supplied moment.
// A revoked session is permanently inert regardless of expiry.
func (s RefreshSession) IsActive(at time.Time) bool {
	if s.RevokedAt != nil {
		return false
	}
	return s.ExpiresAt.After(at)
}

// Identity is the authenticated principal attached to a request after the token
// verifier accepts an access token.
type Identity struct {
	UserID    int64
	Email     string
	Name      string
	Verified  bool
	DeviceID  string
	TokenID   string
	AvatarURL *string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
