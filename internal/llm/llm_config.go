package llm

import "time"

type Provider string

const (
	// ProviderOpenAI also covers OpenAI-compatible endpoints (litellm, ollama
	// proxies) via BaseURL.
	ProviderOpenAI Provider = "openai"
)

type LLMConfig struct {
	Provider    Provider      `json:"provider"`
	APIKey      string        `json:"api_key"`
	Model       string        `json:"model"`
	BaseURL     string        `json:"base_url,omitempty"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Timeout     time.Duration `json:"-"`
}
