package port

import (
	"context"

	"github.com/canvasvault/auth-service/internal/core/domain"
)

// ChatUpstream forwards a completion request to the resolved provider endpoint.
// Implementations translate between the normalized request shape and each
// provider's wire format.
type ChatUpstream interface {
	Chat(ctx context.Context, credential domain.ResolvedCredential, request domain.ChatRequest) (*domain.ChatResponse, error)
}
