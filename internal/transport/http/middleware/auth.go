package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/canvasvault/auth-service/internal/core/domain"
	appLogger "github.com/canvasvault/auth-service/internal/infra/logger"
	"github.com/canvasvault/auth-service/internal/infra/security"
	"github.com/canvasvault/auth-service/internal/usecase"
)

// Access tokens outside these bounds are rejected before any crypto runs.
const (
	minAccessTokenLength = 20
	maxAccessTokenLength = 4096
)

// authFailure mirrors the handlers' failure envelope so rejected requests look the
// same whether the middleware or a handler produced them.
type authFailure struct {
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Error   bool   `json:"error"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

func newAuthFailure(c *gin.Context, status int, message string) authFailure {
	return authFailure{
		Status:  "failed",
		Code:    status,
		Error:   true,
		Message: message,
		TraceID: GetTraceID(c),
	}
}

// RequireAuth validates the access token, checks the session marker and attaches the
// resolved identity to the request context. Every pass and reject is audit-logged.
func RequireAuth(tokens *usecase.TokenService, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		token, ok := extractAccessToken(c)
		if !ok {
			auditReject(log, c, "missing or malformed authorization header")
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newAuthFailure(c, http.StatusUnauthorized, "missing or malformed authorization header"))
			return
		}

		if len(token) < minAccessTokenLength || len(token) > maxAccessTokenLength {
			auditReject(log, c, "access token length out of bounds")
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newAuthFailure(c, http.StatusUnauthorized, "invalid access token"))
			return
		}

		identity, err := tokens.VerifyAccess(c.Request.Context(), token)
		if err != nil {
			status, message := mapVerifyError(err)
			if status == http.StatusInternalServerError {
				log.Error("access token verification failed",
					zap.String("trace_id", GetTraceID(c)),
					zap.Error(err),
				)
			} else {
				auditReject(log, c, message)
			}
			c.AbortWithStatusJSON(status, newAuthFailure(c, status, message))
			return
		}

		c.Set(IdentityKey, identity)
		c.Set(UserIDKey, identity.UserID)

		if reqCtx := GetRequestContext(c); reqCtx != nil {
			reqCtx.UserID = identity.UserID
		}

		log.Info("access token accepted",
			zap.String("action", "token_verify_pass"),
			zap.Int64("user_id", identity.UserID),
			zap.String("ip", appLogger.MaskIP(c.ClientIP())),
			zap.String("user_agent", c.Request.UserAgent()),
			zap.String("url", c.Request.URL.Path),
		)

		c.Next()
	}
}

// extractAccessToken reads the bearer token from the Authorization header, falling
// back to x-auth-token which clients may send with or without the Bearer prefix.
func extractAccessToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		header = c.GetHeader("x-auth-token")
	}
	if header == "" {
		return "", false
	}

	if parts := strings.SplitN(header, " ", 2); len(parts) == 2 {
		if !strings.EqualFold(parts[0], "Bearer") {
			return "", false
		}
		header = parts[1]
	}

	token := strings.TrimSpace(header)
	if token == "" {
		return "", false
	}
	return token, true
}

func mapVerifyError(err error) (int, string) {
	switch {
	case errors.Is(err, security.ErrTokenExpired):
		return http.StatusUnauthorized, "access token expired"
	case errors.Is(err, security.ErrTokenNotActive):
		return http.StatusUnauthorized, "access token not yet valid"
	case errors.Is(err, security.ErrTokenSignature):
		return http.StatusUnauthorized, "invalid token signature"
	case errors.Is(err, security.ErrTokenPayload), errors.Is(err, security.ErrTokenInvalid):
		return http.StatusUnauthorized, "invalid access token"
	case errors.Is(err, usecase.ErrSessionInvalid):
		return http.StatusUnauthorized, "session no longer active"
	case errors.Is(err, usecase.ErrUserNotFound):
		return http.StatusUnauthorized, "invalid access token"
	case errors.Is(err, usecase.ErrAccountBlocked):
		return http.StatusUnauthorized, "account is disabled"
	default:
		return http.StatusInternalServerError, "authentication failed"
	}
}

func auditReject(log *zap.Logger, c *gin.Context, reason string) {
	log.Warn("access token rejected",
		zap.String("action", "token_verify_reject"),
		zap.String("reason", reason),
		zap.String("ip", appLogger.MaskIP(c.ClientIP())),
		zap.String("user_agent", c.Request.UserAgent()),
		zap.String("url", c.Request.URL.Path),
	)
}

// GetIdentity retrieves the authenticated identity from context (helper for handlers).
func GetIdentity(c *gin.Context) (*domain.Identity, bool) {
	value, exists := c.Get(IdentityKey)
	if !exists {
		return nil, false
	}

	identity, ok := value.(*domain.Identity)
	return identity, ok
}

// GetAuthenticatedUserID retrieves the user ID from context (helper for handlers).
func GetAuthenticatedUserID(c *gin.Context) (int64, bool) {
	userID, exists := c.Get(UserIDKey)
	if !exists {
		return 0, false
	}

	if id, ok := userID.(int64); ok {
		return id, true
	}

	return 0, false
}
