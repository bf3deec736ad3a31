package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/templeguardian/internal/config"
	"github.com/MrWong99/templeguardian/pkg/chant"
)

func baseConfig() *config.Config {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Providers.LLM = config.ProviderEntry{Name: "openai", Model: "gpt-4o-mini"}
	return cfg
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	d := config.Diff(baseConfig(), baseConfig())
	if !d.Empty() {
		t.Errorf("expected empty diff, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old, cur := baseConfig(), baseConfig()
	cur.Server.LogLevel = config.LogDebug

	d := config.Diff(old, cur)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("NewLogLevel: got %q, want %q", d.NewLogLevel, config.LogDebug)
	}
	if d.ChatChanged || len(d.RestartRequired) != 0 {
		t.Errorf("unexpected extra changes: %+v", d)
	}
}

func TestDiff_ChatChanged(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"max tokens", func(c *config.Config) { c.Chat.MaxTokens = 200 }},
		{"temperature", func(c *config.Config) { v := 0.1; c.Chat.Temperature = &v }},
		{"timeout", func(c *config.Config) { c.Chat.Timeout = time.Second }},
		{"rules file", func(c *config.Config) { c.Chat.RulesFile = "rules.yaml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			old, cur := baseConfig(), baseConfig()
			tt.mutate(cur)
			d := config.Diff(old, cur)
			if !d.ChatChanged {
				t.Error("expected ChatChanged")
			}
			if len(d.RestartRequired) != 0 {
				t.Errorf("chat tuning must not require a restart, got %v", d.RestartRequired)
			}
		})
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		section string
	}{
		{"listen addr", func(c *config.Config) { c.Server.ListenAddr = ":9999" }, "server"},
		{"llm model", func(c *config.Config) { c.Providers.LLM.Model = "gpt-4o" }, "providers"},
		{"fallback added", func(c *config.Config) {
			c.Providers.LLMFallbacks = []config.ProviderEntry{{Name: "ollama"}}
		}, "providers"},
		{"breaker", func(c *config.Config) { c.Chat.CircuitBreaker.MaxFailures = 2 }, "providers"},
		{"dsn", func(c *config.Config) { c.Database.PostgresDSN = "postgres://x" }, "database"},
		{"seed", func(c *config.Config) { c.Temples.SeedFile = "t.yaml" }, "temples"},
		{"tracks", func(c *config.Config) { c.Chanting.Tracks = chant.DefaultCatalog()[:1] }, "chanting"},
		{"volume", func(c *config.Config) { v := 10; c.Chanting.DefaultVolume = &v }, "chanting"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			old, cur := baseConfig(), baseConfig()
			tt.mutate(cur)
			d := config.Diff(old, cur)
			if !slices.Contains(d.RestartRequired, tt.section) {
				t.Errorf("RestartRequired = %v, want it to contain %q", d.RestartRequired, tt.section)
			}
		})
	}
}

func TestDiff_SameVolumeDifferentPointer(t *testing.T) {
	t.Parallel()
	old, cur := baseConfig(), baseConfig()
	v := chant.DefaultVolume
	cur.Chanting.DefaultVolume = &v
	if d := config.Diff(old, cur); !d.Empty() {
		t.Errorf("explicit default volume should not count as a change, got %+v", d)
	}
}
