package config

import "time"

// ProvidersConfig holds upstream LLM provider connections, keyed by the
// provider name route entries in models.yaml refer to.
type ProvidersConfig struct {
	Providers map[string]ProviderConfig `yaml:"providers"`
}

type ProviderConfig struct {
	// Type selects the adapter: "openai" or "anthropic".
	Type          string            `yaml:"type"`
	BaseURL       string            `yaml:"base_url"`
	APIKey        string            `yaml:"api_key"`
	APIVersion    string            `yaml:"api_version,omitempty"`
	MaxConcurrent int               `yaml:"max_concurrent"`
	Timeout       time.Duration     `yaml:"timeout"`
	Headers       map[string]string `yaml:"headers,omitempty"`
}
