package gateway

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/supporthq/sdkdoctor/internal/analyze"
	"github.com/supporthq/sdkdoctor/internal/httputil"
	"github.com/supporthq/sdkdoctor/internal/redact"
	"github.com/supporthq/sdkdoctor/internal/router/adapters"
	"github.com/supporthq/sdkdoctor/internal/telemetry"
)

// streamSSE reads SSE events from the provider response and forwards them to
// the client, transforming each chunk through the adapter's
// TransformStreamChunk and running the outbound pass over each delta.
func streamSSE(w http.ResponseWriter, reqID string, providerResp *http.Response, adapter adapters.ProviderAdapter, sanitizer *analyze.Sanitizer, metrics *telemetry.Metrics) {
	defer providerResp.Body.Close()

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteInternalError(w, reqID, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Request-ID", reqID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var outboundCaught map[string]int

	scanner := bufio.NewScanner(providerResp.Body)
	// Increase scanner buffer for large chunks
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		// SSE format: lines starting with "data: "
		if !strings.HasPrefix(line, "data: ") {
			// Forward event: lines or empty lines as-is for keep-alive
			if strings.HasPrefix(line, "event: ") || line == "" {
				fmt.Fprintf(w, "%s\n", line)
				flusher.Flush()
			}
			continue
		}

		data := strings.TrimPrefix(line, "data: ")

		// End of stream
		if data == "[DONE]" {
			fmt.Fprintf(w, "data: [DONE]\n\n")
			flusher.Flush()
			logOutboundCatches(reqID, adapter.Name(), outboundCaught, metrics)
			return
		}

		// Transform chunk through the adapter
		transformed, err := adapter.TransformStreamChunk([]byte(data))
		if err != nil {
			slog.Error("failed to transform stream chunk", "error", err, "provider", adapter.Name())
			continue
		}

		// nil means skip this chunk (e.g., Anthropic non-content events)
		if transformed == nil {
			continue
		}

		// Check if the adapter signaled end of stream (Anthropic message_stop → [DONE])
		if string(transformed) == "[DONE]" {
			fmt.Fprintf(w, "data: [DONE]\n\n")
			flusher.Flush()
			logOutboundCatches(reqID, adapter.Name(), outboundCaught, metrics)
			return
		}

		if sanitizer != nil {
			var caught map[string]int
			transformed, caught = sanitizeChunk(transformed, sanitizer)
			outboundCaught = redact.Merge(outboundCaught, caught)
		}

		fmt.Fprintf(w, "data: %s\n\n", transformed)
		flusher.Flush()
	}

	if err := scanner.Err(); err != nil {
		slog.Error("error reading stream", "error", err, "provider", adapter.Name())
	}
	logOutboundCatches(reqID, adapter.Name(), outboundCaught, metrics)
}

// sanitizeChunk runs the outbound pass over a neutral chunk's delta text. A
// secret split across deltas will not match; the pass is best-effort here and
// authoritative on the non-streaming path.
func sanitizeChunk(chunk []byte, sanitizer *analyze.Sanitizer) ([]byte, map[string]int) {
	var sc adapters.StreamChunk
	if err := json.Unmarshal(chunk, &sc); err != nil {
		return chunk, nil
	}
	if sc.Delta == "" {
		return chunk, nil
	}

	clean, caught := sanitizer.Sanitize(sc.Delta)
	if len(caught) == 0 {
		return chunk, nil
	}

	sc.Delta = clean
	out, err := json.Marshal(sc)
	if err != nil {
		return chunk, caught
	}
	return out, caught
}

func logOutboundCatches(reqID, provider string, caught map[string]int, metrics *telemetry.Metrics) {
	if len(caught) == 0 {
		return
	}
	slog.Warn("outbound pass masked streamed output",
		"request_id", reqID,
		"provider", provider,
		"categories", caught,
	)
	if metrics != nil {
		metrics.RecordRedactions("outbound", caught)
	}
}
