package core

import (
	"testing"

	"github.com/mohammad-safakhou/deepresearch/config"
)

func TestExtractFirstJSON(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`prefix {"a": 1} suffix`, `{"a": 1}`},
		{`{"outer": {"inner": 2}} trailing {"second": 3}`, `{"outer": {"inner": 2}}`},
		{`no json here`, ``},
		{`unbalanced { "a": 1`, ``},
	}
	for _, c := range cases {
		if got := extractFirstJSON(c.in); got != c.want {
			t.Fatalf("extractFirstJSON(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNewLLMProviderRejectsUnsupportedType(t *testing.T) {
	cfg := config.LLMConfig{Providers: map[string]config.LLMProvider{
		"other": {Type: "other"},
	}}
	if _, err := NewLLMProvider(cfg); err == nil {
		t.Fatalf("expected error for unsupported provider type")
	}
}

func TestNewLLMProviderRequiresProviders(t *testing.T) {
	if _, err := NewLLMProvider(config.LLMConfig{}); err == nil {
		t.Fatalf("expected error when no providers configured")
	}
}

func TestNewLLMProviderBuildsOpenAI(t *testing.T) {
	cfg := config.LLMConfig{Providers: map[string]config.LLMProvider{
		"openai": {Type: "openai", Models: map[string]config.LLMModel{
			"fast": {Name: "gpt-4o-mini", MaxTokens: 4000},
		}},
	}}
	provider, err := NewLLMProvider(cfg)
	if err != nil {
		t.Fatalf("NewLLMProvider: %v", err)
	}
	info, err := provider.GetModelInfo("fast")
	if err != nil {
		t.Fatalf("GetModelInfo: %v", err)
	}
	if info.Provider != "openai" {
		t.Fatalf("unexpected model info: %+v", info)
	}
}

func TestNewSearchProviderRequiresAPIKey(t *testing.T) {
	cfg := testConfig()
	if _, err := NewSearchProvider(cfg, &stubLLM{}); err == nil {
		t.Fatalf("expected error without web search API key")
	}
}

func TestNewSearchProviderPrefersBraveKey(t *testing.T) {
	cfg := testConfig()
	cfg.Search.BraveAPIKey = "key"
	if _, err := NewSearchProvider(cfg, &stubLLM{}); err != nil {
		t.Fatalf("NewSearchProvider: %v", err)
	}
}
