package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/supporthq/sdkdoctor/internal/config"
	"github.com/supporthq/sdkdoctor/internal/types"
)

// StreamChunk is the neutral streaming payload forwarded to clients. Adapters
// rewrite provider-specific SSE events into this shape so the outbound pass
// has a single field to scan.
type StreamChunk struct {
	Delta        string `json:"delta,omitempty"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// OpenAIAdapter handles communication with OpenAI-compatible APIs.
type OpenAIAdapter struct {
	cfg    config.ProviderConfig
	client *http.Client
}

func NewOpenAIAdapter(cfg config.ProviderConfig, client *http.Client) *OpenAIAdapter {
	return &OpenAIAdapter{cfg: cfg, client: client}
}

func (a *OpenAIAdapter) Name() string { return "openai" }

func (a *OpenAIAdapter) SupportsStreaming() bool { return true }

func (a *OpenAIAdapter) TransformRequest(ctx context.Context, req *types.ModelRequest) (*http.Request, error) {
	body := openAIRequestBody{
		Model:       req.Model,
		Messages:    req.Messages,
		Stream:      req.Stream,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal openai request: %w", err)
	}

	url := a.cfg.BaseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	for k, v := range a.cfg.Headers {
		if v != "" {
			httpReq.Header.Set(k, v)
		}
	}

	return httpReq, nil
}

func (a *OpenAIAdapter) TransformResponse(ctx context.Context, resp *http.Response) (*types.ModelResponse, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read openai response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openai returned status %d: %s", resp.StatusCode, string(body))
	}

	var oaiResp openAIResponseBody
	if err := json.Unmarshal(body, &oaiResp); err != nil {
		return nil, fmt.Errorf("unmarshal openai response: %w", err)
	}

	out := &types.ModelResponse{
		Model:    oaiResp.Model,
		Provider: "openai",
		Usage: types.Usage{
			PromptTokens:     oaiResp.Usage.PromptTokens,
			CompletionTokens: oaiResp.Usage.CompletionTokens,
			TotalTokens:      oaiResp.Usage.TotalTokens,
		},
	}

	if len(oaiResp.Choices) > 0 {
		out.Content = oaiResp.Choices[0].Message.Content
		out.FinishReason = oaiResp.Choices[0].FinishReason
	}

	return out, nil
}

// TransformStreamChunk rewrites an OpenAI streaming chunk into the neutral
// delta format.
func (a *OpenAIAdapter) TransformStreamChunk(chunk []byte) ([]byte, error) {
	if bytes.Equal(bytes.TrimSpace(chunk), []byte("[DONE]")) {
		return []byte("[DONE]"), nil
	}

	var oaiChunk struct {
		Choices []struct {
			Delta struct {
				Content string `json:"content"`
			} `json:"delta"`
			FinishReason *string `json:"finish_reason"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(chunk, &oaiChunk); err != nil {
		return nil, nil // skip unparseable chunks
	}
	if len(oaiChunk.Choices) == 0 {
		return nil, nil
	}

	c := oaiChunk.Choices[0]
	out := StreamChunk{Delta: c.Delta.Content}
	if c.FinishReason != nil {
		out.FinishReason = *c.FinishReason
	}
	if out.Delta == "" && out.FinishReason == "" {
		return nil, nil
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal stream chunk: %w", err)
	}
	return data, nil
}

func (a *OpenAIAdapter) SendRequest(req *http.Request) (*http.Response, error) {
	return a.client.Do(req)
}

type openAIRequestBody struct {
	Model       string          `json:"model"`
	Messages    []types.Message `json:"messages"`
	Stream      bool            `json:"stream,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
}

type openAIResponseBody struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int           `json:"index"`
		Message      types.Message `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}
