package factory

import (
	"fmt"

	"qa-guru-be/pkg/llm"
	"qa-guru-be/pkg/llm/gemini"
	"qa-guru-be/pkg/llm/proxy"
)

// NewProvider selects an LLM backend by type. "gemini" talks to the Google
// API directly; "proxy" goes through the relay service.
func NewProvider(providerType, apiKey, baseURL string) (llm.Provider, error) {
	switch providerType {
	case "gemini":
		return gemini.NewGeminiProvider(apiKey), nil
	case "proxy":
		if baseURL == "" {
			return nil, fmt.Errorf("proxy provider requires a base URL")
		}
		return proxy.NewProxyProvider(baseURL, apiKey), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", providerType)
	}
}
