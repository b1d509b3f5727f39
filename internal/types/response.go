package types

// TriageResponse is returned for a non-streaming analysis.
type TriageResponse struct {
	RequestID  string        `json:"request_id"`
	Model      string        `json:"model"`
	Provider   string        `json:"provider"`
	Verdict    *Verdict      `json:"verdict,omitempty"`
	Raw        string        `json:"raw,omitempty"`
	ParseError string        `json:"parse_error,omitempty"`
	Usage      Usage         `json:"usage"`
	Filters    FilterSummary `json:"filters"`
}

// Verdict is the model's structured judgment of the SDK setup.
type Verdict struct {
	Summary  string   `json:"summary"`
	Correct  []string `json:"correct"`
	Issues   []Issue  `json:"issues"`
	Fixes    []Fix    `json:"fixes"`
	Escalate bool     `json:"escalate"`
}

// Issue is one thing the model found broken.
type Issue struct {
	Area    string `json:"area"`
	Problem string `json:"problem"`
}

// Fix is one suggested change.
type Fix struct {
	Title  string `json:"title"`
	Change string `json:"change"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// FilterSummary reports what the proxy-side gates did. Counts are per
// category; matched content is never included.
type FilterSummary struct {
	// ServerGate holds the categories the upstream gate masked. A non-empty
	// map means something slipped past the client-side pass.
	ServerGate map[string]int `json:"server_gate,omitempty"`
	Injection  FilterAction   `json:"injection,omitempty"`
	Policy     FilterAction   `json:"policy,omitempty"`
}

type FilterAction struct {
	Action     string  `json:"action,omitempty"`
	Detections int     `json:"detections,omitempty"`
	Score      float64 `json:"score,omitempty"`
}
