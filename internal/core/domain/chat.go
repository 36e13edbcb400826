package domain

// ChatMessage is a single turn in a proxied chat conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is a proxied completion request. OverrideKey, when present, is a
// caller-supplied API key used for this request only and never persisted.
type ChatRequest struct {
	Provider    AIProvider
	Model       string
	Messages    []ChatMessage
	OverrideKey string
}

// ChatResponse is the normalized upstream completion result.
type ChatResponse struct {
	Provider         AIProvider
	Model            string
	Content          string
	PromptTokens     int
	CompletionTokens int
}
