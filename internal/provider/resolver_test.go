package provider

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirrorhub/mirrorhub/internal/config"
)

func TestParseModelString(t *testing.T) {
	tests := []struct {
		input      string
		wantProvID string
		wantModel  string
	}{
		{"gemini/gemini-1.5-flash", "gemini", "gemini-1.5-flash"},
		{"openai/gpt-4o-mini", "openai", "gpt-4o-mini"},
		{"bare-model-name", "", "bare-model-name"},
		{"", "", ""},
		{"  Gemini/gemini-2.5-pro  ", "gemini", "gemini-2.5-pro"},
	}
	for _, tt := range tests {
		provID, model := ParseModelString(tt.input)
		assert.Equal(t, tt.wantProvID, provID, tt.input)
		assert.Equal(t, tt.wantModel, model, tt.input)
	}
}

func TestNormalizeProviderID(t *testing.T) {
	assert.Equal(t, "gemini", NormalizeProviderID("google"))
	assert.Equal(t, "openai", NormalizeProviderID("  OpenAI "))
	assert.Equal(t, "mistral", NormalizeProviderID("mistral"))
}

func TestResolve(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Providers.Gemini.APIKey = "g-key"
	cfg.Providers.OpenAI.APIKey = "o-key"

	cases := map[string]string{
		"gemini/gemini-1.5-flash": "*provider.GeminiProvider",
		"google/gemini-1.5-pro":   "*provider.GeminiProvider",
		"gemini-1.5-flash":        "*provider.GeminiProvider",
		"openai/gpt-4o-mini":      "*provider.OpenAIProvider",
		"gpt-4o":                  "*provider.OpenAIProvider",
	}
	for name, want := range cases {
		cfg.Model.Name = name
		p, err := Resolve(cfg)
		require.NoError(t, err, name)
		assert.Equal(t, want, typeName(p), name)
	}

	cfg.Model.Name = "gemini/gemini-1.5-flash"
	p, err := Resolve(cfg)
	require.NoError(t, err)
	assert.Equal(t, "gemini-1.5-flash", p.DefaultModel())
}

func TestResolveMissingKey(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Model.Name = "gemini/gemini-1.5-flash"
	_, err := Resolve(cfg)
	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "gemini", pe.Provider)

	cfg.Model.Name = "anthropic/claude"
	_, err = Resolve(cfg)
	require.True(t, errors.As(err, &pe))
	assert.Contains(t, pe.Hint, "supported: gemini, openai")
}

func typeName(p LLMProvider) string {
	switch p.(type) {
	case *GeminiProvider:
		return "*provider.GeminiProvider"
	case *OpenAIProvider:
		return "*provider.OpenAIProvider"
	}
	return "unknown"
}
