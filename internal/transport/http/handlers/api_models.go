package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/canvasvault/auth-service/internal/core/domain"
)

// APIResponse is the uniform response envelope used by every endpoint.
type APIResponse struct {
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Error   bool   `json:"error"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// Success writes a success envelope with the supplied payload.
func Success(c *gin.Context, code int, message string, data any) {
	c.JSON(code, APIResponse{
		Status:  "success",
		Code:    code,
		Error:   false,
		Message: message,
		Data:    data,
	})
}

// Failure writes a failure envelope. Data carries optional error detail.
func Failure(c *gin.Context, code int, message string, data any) {
	c.JSON(code, APIResponse{
		Status:  "failed",
		Code:    code,
		Error:   true,
		Message: message,
		Data:    data,
	})
}

// SignupRequest defines the account creation payload.
type SignupRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
}

// VerifyOTPRequest holds the verification payload.
type VerifyOTPRequest struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required"`
}

// ResendOTPRequest asks for a fresh verification code.
type ResendOTPRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// LoginRequest defines the payload for the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	DeviceID string `json:"device_id"`
}

// UserPayload describes the account view returned by the API.
type UserPayload struct {
	ID        int64      `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	Verified  bool       `json:"verified"`
	AvatarURL *string    `json:"avatar_url,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

// TokenPayload carries the access token issued on login and refresh. The refresh
// token travels only in the HTTP-only cookie, never in the body.
type TokenPayload struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresIn   int          `json:"expires_in"`
	User        *UserPayload `json:"user,omitempty"`
}

// ChatMessagePayload is one conversation turn in a proxy request.
type ChatMessagePayload struct {
	Role    string `json:"role" binding:"required"`
	Content string `json:"content" binding:"required"`
}

// ChatProxyRequest defines the AI proxy payload. APIKey, when set, overrides any
// stored credential for this request only.
type ChatProxyRequest struct {
	Provider string               `json:"provider" binding:"required"`
	Model    string               `json:"model"`
	Messages []ChatMessagePayload `json:"messages" binding:"required,min=1"`
	APIKey   string               `json:"api_key"`
}

// ChatProxyResponse is the normalized proxy result.
type ChatProxyResponse struct {
	Provider         string `json:"provider"`
	Model            string `json:"model"`
	Content          string `json:"content"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
}

// ProviderKeyRequest stores a user-supplied upstream API key.
type ProviderKeyRequest struct {
	Provider string `json:"provider" binding:"required"`
	APIKey   string `json:"api_key" binding:"required"`
}

// CreditsDetail is attached to payment-required failures.
type CreditsDetail struct {
	Required  int64 `json:"required"`
	Available int64 `json:"available"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness probe results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// newUserPayload converts a domain user to its API representation.
func newUserPayload(user *domain.User) *UserPayload {
	if user == nil {
		return nil
	}

	return &UserPayload{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Verified:  user.Verified,
		AvatarURL: user.AvatarURL,
		CreatedAt: user.CreatedAt,
		LastLogin: user.LastLogin,
	}
}
