package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/canvasvault/auth-service/internal/infra/config"
	"github.com/canvasvault/auth-service/internal/transport/http/middleware"
	"github.com/canvasvault/auth-service/internal/usecase"
)

// UserHandler exposes the account lifecycle endpoints: signup, OTP verification,
// login, refresh, logout and the authenticated profile.
type UserHandler struct {
	cfg    *config.AppConfig
	auth   *usecase.AuthService
	tokens *usecase.TokenService
	logger *zap.Logger
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(cfg *config.AppConfig, auth *usecase.AuthService, tokens *usecase.TokenService, log *zap.Logger) *UserHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &UserHandler{cfg: cfg, auth: auth, tokens: tokens, logger: log}
}

// RegisterRoutes binds the user routes. Rate-limit middlewares apply to the
// credential-guessing surfaces only.
func (h *UserHandler) RegisterRoutes(r *gin.RouterGroup, authMW gin.HandlerFunc, limits map[string]gin.HandlerFunc) {
	r.POST("/signup", withLimit(limits["signup"], h.signup)...)
	r.POST("/verify-otp", withLimit(limits["verify"], h.verifyOTP)...)
	r.POST("/resend-otp", withLimit(limits["verify"], h.resendOTP)...)
	r.POST("/login", withLimit(limits["login"], h.login)...)
	r.POST("/refresh-token", h.refreshToken)
	r.POST("/logout", authMW, h.logout)
	r.GET("", authMW, h.profile)
}

func withLimit(limit gin.HandlerFunc, handler gin.HandlerFunc) []gin.HandlerFunc {
	if limit == nil {
		return []gin.HandlerFunc{handler}
	}
	return []gin.HandlerFunc{limit, handler}
}

func (h *UserHandler) signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Failure(c, http.StatusBadRequest, "invalid signup payload", nil)
		return
	}

	ip, ua := requestMeta(c)
	user, err := h.auth.Signup(c.Request.Context(), usecase.SignupInput{
		Email:     req.Email,
		Name:      req.Name,
		Password:  req.Password,
		IP:        ip,
		UserAgent: ua,
	})
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrEmailTaken):
			Failure(c, http.StatusConflict, "email already registered", nil)
		case errors.Is(err, usecase.ErrPasswordPolicyViolation):
			Failure(c, http.StatusBadRequest, err.Error(), nil)
		default:
			h.logger.Error("signup failed", zap.Error(err))
			Failure(c, http.StatusInternalServerError, "failed to create account", nil)
		}
		return
	}

	Success(c, http.StatusCreated, "verification code sent", newUserPayload(user))
}

func (h *UserHandler) verifyOTP(c *gin.Context) {
	var req VerifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Failure(c, http.StatusBadRequest, "invalid verification payload", nil)
		return
	}

	err := h.auth.VerifyOTP(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "account not found"},
			{Err: usecase.ErrAlreadyVerified, Status: http.StatusConflict, Message: "account already verified"},
			{Err: usecase.ErrVerificationCodeExpired, Status: http.StatusBadRequest, Message: "verification code expired"},
			{Err: usecase.ErrTooManyAttempts, Status: http.StatusTooManyRequests, Message: "too many attempts, request a new code"},
			{Err: usecase.ErrVerificationCodeInvalid, Status: http.StatusBadRequest, Message: "verification code invalid"},
		}, http.StatusInternalServerError, "verification failed")
		return
	}

	Success(c, http.StatusOK, "account verified", nil)
}

func (h *UserHandler) resendOTP(c *gin.Context) {
	var req ResendOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Failure(c, http.StatusBadRequest, "invalid resend payload", nil)
		return
	}

	err := h.auth.ResendOTP(c.Request.Context(), req.Email)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "account not found"},
			{Err: usecase.ErrAlreadyVerified, Status: http.StatusConflict, Message: "account already verified"},
		}, http.StatusInternalServerError, "failed to resend code")
		return
	}

	Success(c, http.StatusOK, "verification code sent", nil)
}

func (h *UserHandler) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Failure(c, http.StatusBadRequest, "invalid login payload", nil)
		return
	}

	ip, ua := requestMeta(c)
	user, pair, err := h.auth.Login(c.Request.Context(), usecase.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		DeviceID:  req.DeviceID,
		IP:        ip,
		UserAgent: ua,
	})
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "invalid email or password"},
			{Err: usecase.ErrAccountBlocked, Status: http.StatusUnauthorized, Message: "account is disabled"},
			{Err: usecase.ErrAccountUnverified, Status: http.StatusForbidden, Message: "account not verified"},
		}, http.StatusInternalServerError, "login failed")
		return
	}

	h.setRefreshCookie(c, pair.RefreshToken)

	Success(c, http.StatusOK, "login successful", TokenPayload{
		AccessToken: pair.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(h.cfg.JWT.AccessTokenTTL.Seconds()),
		User:        newUserPayload(user),
	})
}

func (h *UserHandler) refreshToken(c *gin.Context) {
	raw, err := c.Cookie(h.cfg.Cookie.Name)
	if err != nil || strings.TrimSpace(raw) == "" {
		Failure(c, http.StatusUnauthorized, "refresh token missing", nil)
		return
	}

	ip, ua := requestMeta(c)
	pair, err := h.tokens.Refresh(c.Request.Context(), raw, ip, ua)
	if err != nil {
		h.clearRefreshCookie(c)
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrSessionInvalid, Status: http.StatusUnauthorized, Message: "session not found"},
			{Err: usecase.ErrAccountBlocked, Status: http.StatusUnauthorized, Message: "account is disabled"},
		}, http.StatusInternalServerError, "token refresh failed")
		return
	}

	h.setRefreshCookie(c, pair.RefreshToken)

	Success(c, http.StatusOK, "token refreshed", TokenPayload{
		AccessToken: pair.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(h.cfg.JWT.AccessTokenTTL.Seconds()),
	})
}

func (h *UserHandler) logout(c *gin.Context) {
	identity, _ := middleware.GetIdentity(c)

	raw, _ := c.Cookie(h.cfg.Cookie.Name)

	if err := h.auth.Logout(c.Request.Context(), identity, raw); err != nil {
		h.logger.Error("logout failed", zap.Error(err))
		Failure(c, http.StatusInternalServerError, "logout failed", nil)
		return
	}

	h.clearRefreshCookie(c)
	Success(c, http.StatusOK, "logged out", nil)
}

func (h *UserHandler) profile(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		Failure(c, http.StatusUnauthorized, "authentication required", nil)
		return
	}

	user, err := h.auth.GetUser(c.Request.Context(), userID)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "account not found"},
		}, http.StatusInternalServerError, "failed to load profile")
		return
	}

	Success(c, http.StatusOK, "", newUserPayload(user))
}

// setRefreshCookie writes the HTTP-only refresh cookie. Production gets
// Secure+Strict; development relaxes to Lax so the browser client can test over
// plain HTTP.
func (h *UserHandler) setRefreshCookie(c *gin.Context, token string) {
	sameSite := http.SameSiteLaxMode
	secure := false
	if h.cfg.App.IsProduction() {
		sameSite = http.SameSiteStrictMode
		secure = true
	}

	c.SetSameSite(sameSite)
	c.SetCookie(
		h.cfg.Cookie.Name,
		token,
		int(h.cfg.JWT.RefreshTokenTTL.Seconds()),
		h.cfg.Cookie.Path,
		h.cfg.Cookie.Domain,
		secure,
		true,
	)
}

func (h *UserHandler) clearRefreshCookie(c *gin.Context) {
	secure := h.cfg.App.IsProduction()
	c.SetCookie(h.cfg.Cookie.Name, "", -1, h.cfg.Cookie.Path, h.cfg.Cookie.Domain, secure, true)
}

func requestMeta(c *gin.Context) (ip *string, userAgent *string) {
	if v := c.ClientIP(); v != "" {
		ip = &v
	}
	if v := c.Request.UserAgent(); v != "" {
		userAgent = &v
	}
	return ip, userAgent
}
