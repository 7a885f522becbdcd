// Package llm provides the chat-completion client used by every agent.
// The concrete backend is chosen from CHAT_COMPLETION_PROVIDER; its keyword
// arguments come from CHAT_COMPLETION_KWARGS_JSON.
package llm

import (
	"context"
	"fmt"
)

var ErrUnsupportedProvider = fmt.Errorf("unsupported chat completion provider")

type LLM interface {
	Call(ctx context.Context, msgs []LLMMessage) (LLMMessage, error)
}

// CreateLLM builds an LLM client for the configured provider.
func CreateLLM(cfg LLMConfig, tools []LLMTool) (LLM, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		return newOpenAILLM(
			withOpenAIAPIKey(cfg.APIKey),
			withOpenAIBaseURL(cfg.BaseURL),
			withOpenAILLMModel(cfg.Model),
			withOpenAILLMTemperature(cfg.Temperature),
			withOpenAIMaxTokens(cfg.MaxTokens),
			withOpenAITimeout(cfg.Timeout),
			withOpenAITools(tools),
		), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, cfg.Provider)
	}
}
