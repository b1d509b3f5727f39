package types

// ModelRequest is the provider-neutral prompt handed to an adapter. By the
// time one is constructed, every message has already passed the masking gate.
type ModelRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ModelResponse is the provider-neutral result of a non-streaming call: one
// complete text blob plus usage accounting.
type ModelResponse struct {
	Model        string `json:"model"`
	Provider     string `json:"provider"`
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason"`
	Usage        Usage  `json:"usage"`
}
