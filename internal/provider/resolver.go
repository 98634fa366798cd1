package provider

import (
	"fmt"
	"strings"

	"github.com/mirrorhub/mirrorhub/internal/config"
)

// providerAliases maps common aliases to canonical provider IDs.
var providerAliases = map[string]string{
	"google":       "gemini",
	"googleai":     "gemini",
	"ai-studio":    "gemini",
	"openai-api":   "openai",
	"azure-openai": "openai",
}

// NormalizeProviderID resolves aliases and normalizes the provider ID.
func NormalizeProviderID(id string) string {
	lower := strings.ToLower(strings.TrimSpace(id))
	if canonical, ok := providerAliases[lower]; ok {
		return canonical
	}
	return lower
}

// ParseModelString splits a "provider/model" string into provider ID and model name.
func ParseModelString(s string) (providerID, modelName string) {
	s = strings.TrimSpace(s)
	parts := strings.SplitN(s, "/", 2)
	if len(parts) < 2 {
		return "", s
	}
	providerID = strings.ToLower(parts[0])
	modelName = parts[1]
	return
}

// Resolve creates the LLMProvider named by model.name. A bare model name
// picks Gemini for "gemini-*" models and the OpenAI-compatible client otherwise.
func Resolve(cfg *config.Config) (LLMProvider, error) {
	provID, model := ParseModelString(cfg.Model.Name)
	if provID == "" {
		if strings.HasPrefix(strings.ToLower(model), "gemini") {
			provID = "gemini"
		} else {
			provID = "openai"
		}
	}
	return buildProvider(cfg, NormalizeProviderID(provID), model)
}

// buildProvider constructs a provider from its canonical ID and model name.
func buildProvider(cfg *config.Config, providerID, model string) (LLMProvider, error) {
	switch providerID {
	case "gemini":
		key := cfg.Providers.Gemini.APIKey
		if key == "" {
			return nil, &ProviderError{Provider: "gemini", Hint: "set providers.gemini.apiKey in config or GOOGLE_AI_STUDIO_API_KEY"}
		}
		return NewGeminiProvider(key, cfg.Providers.Gemini.APIBase, model), nil

	case "openai":
		key := cfg.Providers.OpenAI.APIKey
		if key == "" {
			return nil, &ProviderError{Provider: "openai", Hint: "set providers.openai.apiKey in config or OPENAI_API_KEY"}
		}
		return NewOpenAIProvider(key, cfg.Providers.OpenAI.APIBase, model), nil

	default:
		return nil, &ProviderError{Provider: providerID, Hint: fmt.Sprintf("unknown provider ID %q, supported: gemini, openai", providerID)}
	}
}

// ProviderError is returned when a provider cannot be constructed.
type ProviderError struct {
	Provider string
	Hint     string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %q: %s", e.Provider, e.Hint)
}
