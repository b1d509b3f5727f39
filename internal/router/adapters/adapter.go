package adapters

import (
	"context"
	"net/http"

	"github.com/supporthq/sdkdoctor/internal/types"
)

// ProviderAdapter transforms requests/responses between the proxy's neutral
// format and provider-specific API formats.
type ProviderAdapter interface {
	Name() string
	TransformRequest(ctx context.Context, req *types.ModelRequest) (*http.Request, error)
	TransformResponse(ctx context.Context, resp *http.Response) (*types.ModelResponse, error)
	// TransformStreamChunk converts one SSE data payload to the neutral
	// streaming format. A nil result with nil error means skip the chunk;
	// the literal payload "[DONE]" ends the stream.
	TransformStreamChunk(chunk []byte) ([]byte, error)
	SupportsStreaming() bool
	// SendRequest sends an HTTP request using the provider's configured client.
	SendRequest(req *http.Request) (*http.Response, error)
}
