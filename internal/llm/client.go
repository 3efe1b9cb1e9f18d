package llm

import (
	"context"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat message sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage holds token counters for a call.
type Usage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Total  int `json:"total"`
}

// ChatRequest is a provider-neutral completion request.
type ChatRequest struct {
	Temperature *float64
	Model       string
	Messages    []Message
	MaxTokens   int
}

// ChatResponse is a provider-neutral completion response.
type ChatResponse struct {
	Model   string
	Content string
	Usage   Usage
}

// Client defines the interface for LLM providers.
type Client interface {
	Complete(ctx context.Context, req ChatRequest) (ChatResponse, error)
}
