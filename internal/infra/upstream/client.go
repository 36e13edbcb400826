package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/canvasvault/auth-service/internal/core/domain"
	"github.com/canvasvault/auth-service/internal/infra/config"
)

// ErrUpstreamUnavailable is returned while a provider's circuit breaker is open.
var ErrUpstreamUnavailable = errors.New("upstream: provider temporarily unavailable")

// StatusError reports a non-2xx upstream response so callers can pass the status
// through instead of collapsing everything into a 500.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream: status %d: %s", e.StatusCode, e.Body)
}

const requestTimeout = 60 * time.Second

// Client forwards chat requests to Gemini and Perplexity with the resolved
// credential. Each provider gets its own circuit breaker so a failing upstream
// sheds load without affecting the other.
type Client struct {
	httpClient *http.Client
	gemini     string
	perplexity string
	breakers   map[domain.AIProvider]*gobreaker.CircuitBreaker
	logger     *zap.Logger
}

// NewClient constructs a Client from the AI proxy settings.
func NewClient(cfg config.AISettings, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}

	breakers := make(map[domain.AIProvider]*gobreaker.CircuitBreaker)
	for _, provider := range []domain.AIProvider{domain.ProviderGemini, domain.ProviderPerplexity} {
		name := string(provider)
		breakers[provider] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 5,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 5 && failureRatio >= 0.6
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn("upstream circuit state changed",
					zap.String("provider", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		})
	}

	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		gemini:     strings.TrimRight(cfg.GeminiEndpoint, "/"),
		perplexity: strings.TrimRight(cfg.PerplexityEndpoint, "/"),
		breakers:   breakers,
		logger:     log,
	}
}

// Chat dispatches the request to the provider named by the credential.
func (c *Client) Chat(ctx context.Context, credential domain.ResolvedCredential, request domain.ChatRequest) (*domain.ChatResponse, error) {
	breaker, ok := c.breakers[credential.Provider]
	if !ok {
		return nil, fmt.Errorf("upstream: unsupported provider %q", credential.Provider)
	}

	result, err := breaker.Execute(func() (any, error) {
		switch credential.Provider {
		case domain.ProviderGemini:
			return c.chatGemini(ctx, credential, request.Messages)
		default:
			return c.chatPerplexity(ctx, credential, request.Messages)
		}
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrUpstreamUnavailable
		}
		return nil, err
	}

	return result.(*domain.ChatResponse), nil
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

func (c *Client) chatGemini(ctx context.Context, credential domain.ResolvedCredential, messages []domain.ChatMessage) (*domain.ChatResponse, error) {
	payload := geminiRequest{Contents: make([]geminiContent, 0, len(messages))}
	for _, message := range messages {
		// Gemini uses "model" where the OpenAI wire format says "assistant".
		role := message.Role
		if role == "assistant" {
			role = "model"
		}
		payload.Contents = append(payload.Contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: message.Content}},
		})
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.gemini, credential.Model)
	body, err := c.post(ctx, url, map[string]string{"x-goog-api-key": credential.APIKey}, payload)
	if err != nil {
		return nil, err
	}

	var parsed geminiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("upstream: decode gemini response: %w", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("upstream: gemini returned no candidates")
	}

	var content strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		content.WriteString(part.Text)
	}

	return &domain.ChatResponse{
		Provider:         domain.ProviderGemini,
		Model:            credential.Model,
		Content:          content.String(),
		PromptTokens:     parsed.UsageMetadata.PromptTokenCount,
		CompletionTokens: parsed.UsageMetadata.CandidatesTokenCount,
	}, nil
}

type perplexityRequest struct {
	Model    string               `json:"model"`
	Messages []domain.ChatMessage `json:"messages"`
}

type perplexityResponse struct {
	Choices []struct {
		Message domain.ChatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (c *Client) chatPerplexity(ctx context.Context, credential domain.ResolvedCredential, messages []domain.ChatMessage) (*domain.ChatResponse, error) {
	payload := perplexityRequest{Model: credential.Model, Messages: messages}

	url := c.perplexity + "/chat/completions"
	body, err := c.post(ctx, url, map[string]string{"Authorization": "Bearer " + credential.APIKey}, payload)
	if err != nil {
		return nil, err
	}

	var parsed perplexityResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("upstream: decode perplexity response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("upstream: perplexity returned no choices")
	}

	return &domain.ChatResponse{
		Provider:         domain.ProviderPerplexity,
		Model:            credential.Model,
		Content:          parsed.Choices[0].Message.Content,
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
	}, nil
}

func (c *Client) post(ctx context.Context, url string, headers map[string]string, payload any) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("upstream: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("upstream: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("upstream: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("upstream returned error status",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode),
		)
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), 256)}
	}

	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
