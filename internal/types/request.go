package types

import "time"

// TriageRequest is the canonical internal representation of an incoming
// analysis request: an SDK initialization snippet, a free-text symptom
// description, and optional uploaded file contents.
type TriageRequest struct {
	// Identity (set by auth middleware)
	RequestID      string `json:"request_id"`
	OrganizationID string `json:"organization_id"`
	TeamID         string `json:"team_id"`
	UserID         string `json:"user_id"`
	APIKeyID       string `json:"api_key_id"`

	// Request content. All free-text fields pass through the masking gate
	// before any prompt is built from them.
	SDKConfig   string       `json:"sdk_config"`
	Description string       `json:"description"`
	Attachments []Attachment `json:"attachments,omitempty"`

	Model       string   `json:"model"`
	Stream      bool     `json:"stream"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`

	// Metadata
	Project string `json:"project,omitempty"`

	// Internal tracking
	ReceivedAt time.Time `json:"-"`
}

// Attachment is one uploaded file's contents. Each attachment is scanned
// independently; manifests are merged per category.
type Attachment struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// FreeTextFields returns pointers to every user-authored free-text field in
// the request, so the masking gate can redact them in place without knowing
// the request shape.
func (r *TriageRequest) FreeTextFields() []*string {
	fields := []*string{&r.SDKConfig, &r.Description}
	for i := range r.Attachments {
		fields = append(fields, &r.Attachments[i].Content)
	}
	return fields
}
