package models

// Provider names an LLM backend.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderCustom    Provider = "custom"
)

// LLMPreferences is what the caller has stored for a user. Every field may
// be empty.
type LLMPreferences struct {
	Provider        Provider
	Model           string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	CustomEndpoint  string
	CustomAPIKey    string
}

// ProviderConfig is the single provider active for one query.
type ProviderConfig struct {
	Provider Provider
	Model    string
	APIKey   string
	Endpoint string
}

// Resolve picks the active provider, falling back to the process-wide
// defaults for an unset provider or model, and selects its credentials.
func (p LLMPreferences) Resolve(defaultProvider Provider, defaultModel string) ProviderConfig {
	cfg := ProviderConfig{Provider: p.Provider, Model: p.Model}
	if cfg.Provider == "" {
		cfg.Provider = defaultProvider
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	switch cfg.Provider {
	case ProviderOpenAI:
		cfg.APIKey = p.OpenAIAPIKey
	case ProviderAnthropic:
		cfg.APIKey = p.AnthropicAPIKey
	case ProviderCustom:
		cfg.APIKey = p.CustomAPIKey
		cfg.Endpoint = p.CustomEndpoint
	}
	return cfg
}

// Redacted returns a copy safe for logging.
func (c ProviderConfig) Redacted() map[string]any {
	return map[string]any{
		"provider":    string(c.Provider),
		"model":       c.Model,
		"endpoint":    c.Endpoint,
		"has_api_key": c.APIKey != "",
	}
}
