package llm

import (
	"fmt"
	"strings"

	"github.com/ppiankov/dossier/internal/model"
)

// NewProvider creates a backend client based on configuration
func NewProvider(config Config) (Provider, error) {
	switch strings.ToLower(config.Backend) {
	case "openai", "openrouter", "":
		return NewOpenAIProvider(config)

	case "anthropic", "claude":
		return NewAnthropicProvider(config)

	case "ollama":
		return NewOllamaProvider(config)

	default:
		return nil, fmt.Errorf("unknown LLM backend: %s (supported: openai, anthropic, ollama)", config.Backend)
	}
}

// ConfigFactory returns a Factory that builds providers from the llm config section.
// Each Kind maps to its own configured provider block.
func ConfigFactory(cfg model.LLMConfig, proxy model.ProxyConfig) Factory {
	return func(kind Kind, s Settings) (Provider, error) {
		var pc model.ProviderConfig
		switch kind {
		case KindOpenAI:
			pc = cfg.OpenAI
		case KindGemini:
			pc = cfg.Gemini
		default:
			return nil, fmt.Errorf("no configuration for provider %q", kind)
		}
		c := ConfigFromModel(pc)
		c.Temperature = s.Temperature
		c.JSONMode = s.JSONMode
		c.HTTPProxy, c.HTTPSProxy, c.NoProxy = proxy.HTTP, proxy.HTTPS, proxy.NoProxy
		return NewProvider(c)
	}
}
