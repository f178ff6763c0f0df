package llm

import (
	"fmt"
	"strings"
)

// NewProvider creates a grading provider based on configuration. Unlike an
// optional summarizer, the grader is mandatory: an empty provider is an error.
func NewProvider(config Config) (Provider, error) {
	provider := strings.ToLower(config.Provider)

	switch provider {
	case "openai":
		return NewOpenAIProvider(config)

	case "anthropic", "claude":
		return NewAnthropicProvider(config)

	case "ollama":
		return NewOllamaProvider(config)

	case "":
		return nil, fmt.Errorf("no grading provider configured (supported: openai, anthropic, ollama)")

	default:
		return nil, fmt.Errorf("unknown grading provider: %s (supported: openai, anthropic, ollama)", config.Provider)
	}
}
