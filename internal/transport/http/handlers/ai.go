package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/canvasvault/auth-service/internal/core/domain"
	"github.com/canvasvault/auth-service/internal/infra/upstream"
	"github.com/canvasvault/auth-service/internal/transport/http/middleware"
	"github.com/canvasvault/auth-service/internal/usecase"
)

// AIHandler exposes the credit-gated AI proxy and the BYOK key management endpoints.
type AIHandler struct {
	proxy  *usecase.AIProxyService
	logger *zap.Logger
}

// NewAIHandler constructs an AIHandler.
func NewAIHandler(proxy *usecase.AIProxyService, log *zap.Logger) *AIHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AIHandler{proxy: proxy, logger: log}
}

// RegisterRoutes binds the AI routes; all of them require authentication.
func (h *AIHandler) RegisterRoutes(r *gin.RouterGroup, authMW gin.HandlerFunc) {
	r.POST("/chat", authMW, h.chat)
	r.POST("/key", authMW, h.storeKey)
	r.DELETE("/key/:provider", authMW, h.deleteKey)
}

func (h *AIHandler) chat(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		Failure(c, http.StatusUnauthorized, "authentication required", nil)
		return
	}

	var req ChatProxyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Failure(c, http.StatusBadRequest, "invalid chat payload", nil)
		return
	}

	messages := make([]domain.ChatMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, domain.ChatMessage{Role: m.Role, Content: m.Content})
	}

	response, err := h.proxy.Chat(c.Request.Context(), userID, domain.ChatRequest{
		Provider:    domain.AIProvider(req.Provider),
		Model:       req.Model,
		Messages:    messages,
		OverrideKey: req.APIKey,
	})
	if err != nil {
		h.respondChatError(c, err)
		return
	}

	Success(c, http.StatusOK, "", ChatProxyResponse{
		Provider:         string(response.Provider),
		Model:            response.Model,
		Content:          response.Content,
		PromptTokens:     response.PromptTokens,
		CompletionTokens: response.CompletionTokens,
	})
}

func (h *AIHandler) respondChatError(c *gin.Context, err error) {
	var creditsErr *usecase.CreditsError
	if errors.As(err, &creditsErr) {
		Failure(c, http.StatusPaymentRequired, "insufficient credits", CreditsDetail{
			Required:  creditsErr.Required,
			Available: creditsErr.Available,
		})
		return
	}

	// Upstream rejections keep their original status so clients can tell a bad
	// model name from an exhausted provider quota.
	var statusErr *upstream.StatusError
	if errors.As(err, &statusErr) {
		Failure(c, statusErr.StatusCode, "upstream provider rejected the request", nil)
		return
	}

	switch {
	case errors.Is(err, usecase.ErrProviderInvalid):
		Failure(c, http.StatusBadRequest, "unsupported provider", nil)
	case errors.Is(err, usecase.ErrCreditsExhausted):
		Failure(c, http.StatusPaymentRequired, "insufficient credits", nil)
	case errors.Is(err, usecase.ErrNoCredential):
		Failure(c, http.StatusBadRequest, "no API key available for this provider", nil)
	case errors.Is(err, upstream.ErrUpstreamUnavailable):
		Failure(c, http.StatusServiceUnavailable, "provider temporarily unavailable", nil)
	default:
		h.logger.Error("chat proxy failed", zap.Error(err))
		Failure(c, http.StatusBadGateway, "upstream request failed", nil)
	}
}

func (h *AIHandler) storeKey(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		Failure(c, http.StatusUnauthorized, "authentication required", nil)
		return
	}

	var req ProviderKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Failure(c, http.StatusBadRequest, "invalid key payload", nil)
		return
	}

	err := h.proxy.StoreProviderKey(c.Request.Context(), userID, domain.AIProvider(req.Provider), req.APIKey)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrProviderInvalid, Status: http.StatusBadRequest, Message: "unsupported provider"},
		}, http.StatusInternalServerError, "failed to store key")
		return
	}

	Success(c, http.StatusOK, "provider key stored", nil)
}

func (h *AIHandler) deleteKey(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		Failure(c, http.StatusUnauthorized, "authentication required", nil)
		return
	}

	provider := domain.AIProvider(c.Param("provider"))

	err := h.proxy.DeleteProviderKey(c.Request.Context(), userID, provider)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrProviderInvalid, Status: http.StatusBadRequest, Message: "unsupported provider"},
			{Err: usecase.ErrNoCredential, Status: http.StatusNotFound, Message: "no stored key for this provider"},
		}, http.StatusInternalServerError, "failed to delete key")
		return
	}

	Success(c, http.StatusOK, "provider key deleted", nil)
}
