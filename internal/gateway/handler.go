package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/supporthq/sdkdoctor/internal/analyze"
	"github.com/supporthq/sdkdoctor/internal/auth"
	"github.com/supporthq/sdkdoctor/internal/config"
	"github.com/supporthq/sdkdoctor/internal/filter"
	"github.com/supporthq/sdkdoctor/internal/filter/policy"
	"github.com/supporthq/sdkdoctor/internal/httputil"
	"github.com/supporthq/sdkdoctor/internal/ratelimit"
	"github.com/supporthq/sdkdoctor/internal/redact"
	"github.com/supporthq/sdkdoctor/internal/router"
	"github.com/supporthq/sdkdoctor/internal/router/adapters"
	"github.com/supporthq/sdkdoctor/internal/telemetry"
	"github.com/supporthq/sdkdoctor/internal/types"
)

// Handler holds dependencies for the proxy HTTP handlers.
type Handler struct {
	registry      *router.Registry
	healthTracker *router.HealthTracker
	modelsCfg     func() *config.ModelsConfig
	cfg           func() *config.Config
	filterChain   *filter.Chain
	policy        *policy.Evaluator
	quota         *ratelimit.QuotaTracker
	metrics       *telemetry.Metrics
	scanner       *redact.Scanner
	sanitizer     *analyze.Sanitizer
}

func NewHandler(registry *router.Registry, healthTracker *router.HealthTracker, modelsCfg func() *config.ModelsConfig, cfg func() *config.Config, filterChain *filter.Chain, pol *policy.Evaluator, quota *ratelimit.QuotaTracker, metrics *telemetry.Metrics) *Handler {
	return &Handler{
		registry:      registry,
		healthTracker: healthTracker,
		modelsCfg:     modelsCfg,
		cfg:           cfg,
		filterChain:   filterChain,
		policy:        pol,
		quota:         quota,
		metrics:       metrics,
		scanner:       redact.NewScanner(),
		sanitizer:     analyze.NewSanitizer(),
	}
}

// scanItem is one input to the scan endpoint.
type scanItem struct {
	Name    string `json:"name,omitempty"`
	Content string `json:"content"`
}

type scanRequest struct {
	Items []scanItem `json:"items"`
}

type scannedItem struct {
	Name   string         `json:"name,omitempty"`
	Text   string         `json:"text"`
	Counts map[string]int `json:"counts,omitempty"`
	Masked bool           `json:"masked"`
}

type scanResponse struct {
	RequestID string         `json:"request_id"`
	Items     []scannedItem  `json:"items"`
	Merged    map[string]int `json:"merged,omitempty"`
	Masked    bool           `json:"masked"`
}

// Scan handles POST /v1/scan. It backs the client-side gate: each item is
// redacted independently and the response carries per-item manifests plus
// the merged manifest. The submitted content is never stored.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteBadRequestError(w, reqID, "Failed to read request body")
		return
	}
	defer r.Body.Close()

	var req scanRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}
	if len(req.Items) == 0 {
		httputil.WriteBadRequestError(w, reqID, "items is required")
		return
	}

	resp := scanResponse{RequestID: reqID}
	var merged map[string]int
	for _, item := range req.Items {
		res := h.scanner.Redact(item.Content)
		resp.Items = append(resp.Items, scannedItem{
			Name:   item.Name,
			Text:   res.Text,
			Counts: res.Counts,
			Masked: res.Masked,
		})
		merged = redact.Merge(merged, res.Counts)
	}
	resp.Merged = merged
	resp.Masked = len(merged) > 0

	if resp.Masked && h.metrics != nil {
		h.metrics.RecordRedactions("client", merged)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// Analyze handles POST /v1/analyze
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	receivedAt := time.Now()

	authInfo, ok := auth.AuthFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "Not authenticated")
		return
	}

	// Parse request body
	body, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteBadRequestError(w, reqID, "Failed to read request body")
		return
	}
	defer r.Body.Close()

	var triageReq types.TriageRequest
	if err := json.Unmarshal(body, &triageReq); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}

	// Enrich with auth context
	triageReq.RequestID = reqID
	triageReq.OrganizationID = authInfo.OrganizationID
	triageReq.TeamID = authInfo.TeamID
	triageReq.UserID = authInfo.UserID
	triageReq.APIKeyID = authInfo.KeyID
	triageReq.ReceivedAt = receivedAt

	if triageReq.Model == "" {
		httputil.WriteBadRequestError(w, reqID, "model is required")
		return
	}
	if triageReq.SDKConfig == "" && triageReq.Description == "" {
		httputil.WriteBadRequestError(w, reqID, "sdk_config or description is required")
		return
	}

	// Run the filter chain. The masking gate rewrites request text in place;
	// the injection scanner may block outright.
	var filters types.FilterSummary
	if h.filterChain != nil {
		results, blocked := h.filterChain.Run(r.Context(), &triageReq)
		if blocked != nil {
			slog.Warn("request blocked by filter",
				"request_id", reqID,
				"filter", blocked.FilterName,
				"detections", blocked.Detections,
				"score", blocked.Score,
				"org_id", authInfo.OrganizationID,
			)
			if h.metrics != nil {
				h.metrics.RecordFilterAction(blocked.FilterName, string(blocked.Action))
			}
			httputil.WriteContentBlockedError(w, reqID, blocked.Message)
			return
		}
		for _, fr := range results {
			switch fr.FilterName {
			case "secrets":
				if fr.Action == filter.ActionRedact {
					filters.ServerGate = fr.Counts
					if h.metrics != nil {
						h.metrics.RecordFilterAction("secrets", "redact")
						h.metrics.RecordRedactions("server", fr.Counts)
					}
				}
			case "injection":
				filters.Injection = types.FilterAction{
					Action:     string(fr.Action),
					Detections: fr.Detections,
					Score:      fr.Score,
				}
				if fr.Action == filter.ActionFlag && h.metrics != nil {
					h.metrics.RecordFilterAction("injection", "flag")
				}
			}
		}
	}

	// Evaluate escalation policy over the scan manifest
	forceEscalate := false
	if h.policy != nil && h.policy.Enabled() {
		maskedTotal := 0
		for _, n := range filters.ServerGate {
			maskedTotal += n
		}
		now := time.Now().UTC()
		decision, err := h.policy.Evaluate(r.Context(), policy.Input{
			User: policy.User{
				ID:   authInfo.UserID,
				Org:  authInfo.OrganizationID,
				Team: authInfo.TeamID,
			},
			Request: policy.Request{
				Model:       triageReq.Model,
				Categories:  filters.ServerGate,
				MaskedTotal: maskedTotal,
			},
			Time: policy.Time{
				Hour: now.Hour(),
				Day:  now.Format("2006-01-02"),
			},
		})
		if err != nil {
			slog.Error("policy evaluation failed", "error", err, "request_id", reqID)
			httputil.WriteInternalError(w, reqID, "Policy evaluation failed")
			return
		}
		if !decision.Allow {
			slog.Warn("request denied by policy",
				"request_id", reqID,
				"reason", decision.Reason,
				"org_id", authInfo.OrganizationID,
			)
			if h.metrics != nil {
				h.metrics.RecordFilterAction("policy", "block")
			}
			httputil.WriteContentBlockedError(w, reqID, "Denied by organization policy: "+decision.Reason)
			return
		}
		forceEscalate = decision.Escalate
		filters.Policy = types.FilterAction{Action: "pass"}
		if decision.Escalate {
			filters.Policy.Action = "escalate"
		}
	}

	// Route to provider
	modelsCfg := h.modelsCfg()
	adapter, providerModel, err := router.ResolveRoute(modelsCfg, h.registry, h.healthTracker, triageReq.Model)
	if err != nil {
		httputil.WriteServiceUnavailableError(w, reqID, "No provider available: "+err.Error())
		return
	}

	// Build the prompt from the (already masked) request text
	modelReq := &types.ModelRequest{
		Model:       providerModel,
		Messages:    analyze.Build(analyze.BuildOpts{Request: &triageReq}),
		Stream:      triageReq.Stream,
		Temperature: triageReq.Temperature,
		MaxTokens:   triageReq.MaxTokens,
	}

	providerReq, err := adapter.TransformRequest(r.Context(), modelReq)
	if err != nil {
		slog.Error("failed to transform request", "error", err, "provider", adapter.Name())
		httputil.WriteInternalError(w, reqID, "Failed to prepare provider request")
		return
	}

	// Streaming: forward SSE events from provider to client
	if triageReq.Stream {
		h.handleStream(w, reqID, providerReq, adapter, triageReq.Model, authInfo)
		return
	}

	providerStart := time.Now()
	providerResp, err := adapter.SendRequest(providerReq)
	if err != nil {
		slog.Error("provider request failed", "error", err, "provider", adapter.Name())
		if h.healthTracker != nil {
			h.healthTracker.RecordFailure(adapter.Name())
		}
		httputil.WriteServiceUnavailableError(w, reqID, "Provider request failed")
		return
	}

	modelResp, err := adapter.TransformResponse(r.Context(), providerResp)
	if err != nil {
		slog.Error("failed to transform response", "error", err, "provider", adapter.Name())
		if h.healthTracker != nil {
			h.healthTracker.RecordFailure(adapter.Name())
		}
		httputil.WriteInternalError(w, reqID, "Failed to process provider response")
		return
	}
	providerDuration := time.Since(providerStart)

	if h.healthTracker != nil {
		h.healthTracker.RecordSuccess(adapter.Name())
	}

	// Outbound defensive pass over model output
	content := modelResp.Content
	if h.cfg().Filter.Outbound.Enabled {
		var caught map[string]int
		content, caught = h.sanitizer.Sanitize(content)
		if len(caught) > 0 {
			slog.Warn("outbound pass masked model output",
				"request_id", reqID,
				"categories", caught,
			)
			if h.metrics != nil {
				h.metrics.RecordRedactions("outbound", caught)
			}
		}
	}

	resp := types.TriageResponse{
		RequestID: reqID,
		Model:     triageReq.Model,
		Provider:  modelResp.Provider,
		Usage:     modelResp.Usage,
		Filters:   filters,
	}

	verdict, parseErr := analyze.ParseVerdict(content)
	if verdict != nil {
		if forceEscalate {
			verdict.Escalate = true
		}
		resp.Verdict = verdict
	} else {
		// Hand the raw text back rather than failing the whole analysis
		resp.Raw = content
		resp.ParseError = parseErr
	}

	if h.quota != nil {
		if err := h.quota.RecordAnalysis(r.Context(), authInfo.TeamID); err != nil {
			slog.Error("failed to record analysis", "error", err, "team_id", authInfo.TeamID)
		}
	}

	totalDuration := time.Since(receivedAt)

	slog.Info("analysis completed",
		"request_id", reqID,
		"model_requested", triageReq.Model,
		"model_served", modelResp.Model,
		"provider", modelResp.Provider,
		"prompt_tokens", modelResp.Usage.PromptTokens,
		"completion_tokens", modelResp.Usage.CompletionTokens,
		"total_tokens", modelResp.Usage.TotalTokens,
		"verdict_parsed", verdict != nil,
		"duration_ms", totalDuration.Milliseconds(),
		"status_code", http.StatusOK,
		"stream", false,
		"org_id", authInfo.OrganizationID,
		"team_id", authInfo.TeamID,
	)

	if h.metrics != nil {
		h.metrics.RecordRequest(telemetry.RequestLabels{
			Org:              authInfo.OrganizationID,
			Team:             authInfo.TeamID,
			Model:            triageReq.Model,
			Provider:         modelResp.Provider,
			Status:           "200",
			DurationMs:       float64(totalDuration.Milliseconds()),
			OverheadMs:       float64((totalDuration - providerDuration).Milliseconds()),
			PromptTokens:     modelResp.Usage.PromptTokens,
			CompletionTokens: modelResp.Usage.CompletionTokens,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleStream sends the request to the provider and forwards SSE chunks to the client.
func (h *Handler) handleStream(w http.ResponseWriter, reqID string, providerReq *http.Request, adapter adapters.ProviderAdapter, originalModel string, authInfo *auth.AuthInfo) {
	providerResp, err := adapter.SendRequest(providerReq)
	if err != nil {
		slog.Error("streaming provider request failed", "error", err, "provider", adapter.Name())
		if h.healthTracker != nil {
			h.healthTracker.RecordFailure(adapter.Name())
		}
		httputil.WriteServiceUnavailableError(w, reqID, "Provider request failed")
		return
	}

	if providerResp.StatusCode != http.StatusOK {
		// Forward provider error as JSON
		body, _ := io.ReadAll(providerResp.Body)
		providerResp.Body.Close()
		slog.Error("streaming provider returned error",
			"status", providerResp.StatusCode,
			"provider", adapter.Name(),
			"body", string(body),
		)
		httputil.WriteInternalError(w, reqID, "Provider returned error")
		return
	}

	if h.healthTracker != nil {
		h.healthTracker.RecordSuccess(adapter.Name())
	}

	slog.Info("streaming started",
		"request_id", reqID,
		"model_requested", originalModel,
		"provider", adapter.Name(),
		"org_id", authInfo.OrganizationID,
	)

	var sanitizer *analyze.Sanitizer
	if h.cfg().Filter.Outbound.Enabled {
		sanitizer = h.sanitizer
	}
	streamSSE(w, reqID, providerResp, adapter, sanitizer, h.metrics)

	if h.quota != nil {
		if err := h.quota.RecordAnalysis(providerReq.Context(), authInfo.TeamID); err != nil {
			slog.Error("failed to record analysis", "error", err, "team_id", authInfo.TeamID)
		}
	}
}

// ListModels handles GET /v1/models
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	authInfo, ok := auth.AuthFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "Not authenticated")
		return
	}

	modelsCfg := h.modelsCfg()
	var models []modelObject
	for name, mapping := range modelsCfg.Models {
		// Filter by allowed models if set
		if len(authInfo.AllowedModels) > 0 {
			allowed := false
			for _, m := range authInfo.AllowedModels {
				if m == name {
					allowed = true
					break
				}
			}
			if !allowed {
				continue
			}
		}

		models = append(models, modelObject{
			ID:          name,
			DisplayName: mapping.DisplayName,
			Object:      "model",
			OwnedBy:     "sdkdoctor",
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(modelListResponse{
		Object: "list",
		Data:   models,
	})
}

type modelObject struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
	Object      string `json:"object"`
	OwnedBy     string `json:"owned_by"`
}

type modelListResponse struct {
	Object string        `json:"object"`
	Data   []modelObject `json:"data"`
}
