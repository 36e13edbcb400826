package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrTokenExpired indicates the access token is past its expiry.
	ErrTokenExpired = errors.New("access token expired")
	// ErrTokenNotActive indicates the token's not-before lies in the future.
	ErrTokenNotActive = errors.New("access token not active yet")
	// ErrTokenSignature indicates signature verification failed.
	ErrTokenSignature = errors.New("access token signature invalid")
	// ErrTokenInvalid covers malformed tokens and all other verification failures.
	ErrTokenInvalid = errors.New("access token invalid")
	// ErrTokenPayload indicates required claims are missing from a verified token.
	ErrTokenPayload = errors.New("access token payload invalid")
)

const minSigningSecretLength = 32

// AccessTokenClaims carries the identity assertion inside a signed access token.
type AccessTokenClaims struct {
	UserID   int64  `json:"uid"`
	Email    string `json:"email"`
	DeviceID string `json:"did"`
	jwt.RegisteredClaims
}

// TokenSigner creates and verifies HMAC-signed access tokens with a fixed
// issuer/audience pair and a small clock-skew tolerance.
type TokenSigner struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	leeway   time.Duration
	now      func() time.Time
}

// NewTokenSigner validates the signing secret and constructs a signer. A short secret
// is a configuration error surfaced at startup, not per request.
func NewTokenSigner(secret, issuer string, ttl, leeway time.Duration) (*TokenSigner, error) {
	if len(strings.TrimSpace(secret)) < minSigningSecretLength {
		return nil, fmt.Errorf("signing secret must be at least %d characters", minSigningSecretLength)
	}
	if issuer == "" {
		return nil, fmt.Errorf("issuer is required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if leeway <= 0 {
		leeway = 30 * time.Second
	}

	return &TokenSigner{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: issuer,
		ttl:      ttl,
		leeway:   leeway,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithClock overrides the signer clock for deterministic tests.
func (s *TokenSigner) WithClock(clock func() time.Time) *TokenSigner {
	if clock != nil {
		s.now = clock
	}
	return s
}

// TTL reports the configured access token lifetime.
func (s *TokenSigner) TTL() time.Duration {
	return s.ttl
}

// Sign issues a signed access token for the supplied identity triple and returns the
// token string together with its claims (jti, issue and expiry times included).
func (s *TokenSigner) Sign(userID int64, email, deviceID string) (string, *AccessTokenClaims, error) {
	if userID <= 0 {
		return "", nil, fmt.Errorf("user id is required")
	}

	now := s.now()
	claims := &AccessTokenClaims{
		UserID:   userID,
		Email:    email,
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   HashToken(fmt.Sprintf("%d:%s", userID, s.issuer)),
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}

	return signed, claims, nil
}

// Parse verifies signature, issuer, audience and time claims, mapping jwt library
// failures onto the sentinel errors the verifier middleware distinguishes.
func (s *TokenSigner) Parse(token string) (*AccessTokenClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenInvalid
	}

	claims := &AccessTokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithTimeFunc(s.now),
		jwt.WithLeeway(s.leeway),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, ErrTokenNotActive
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrTokenSignature
		default:
			return nil, ErrTokenInvalid
		}
	}

	if parsed == nil || !parsed.Valid {
		return nil, ErrTokenInvalid
	}

	if claims.UserID <= 0 || strings.TrimSpace(claims.Email) == "" {
		return nil, ErrTokenPayload
	}

	return claims, nil
}
