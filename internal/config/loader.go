package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/templeguardian/pkg/audio"
	"github.com/MrWong99/templeguardian/pkg/chant"
)

// ValidProviderNames lists the known LLM provider names.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = []string{"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr      = ":8080"
	DefaultShutdownTimeout = 15 * time.Second
	DefaultMaxTokens       = 1000
	DefaultTemperature     = 0.7
	DefaultChatTimeout     = 30 * time.Second
	DefaultIdleTimeout     = 30 * time.Minute
	DefaultMaxPlayers      = 256
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills in defaults and
// environment credentials, and validates the result. An empty document
// yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	ApplyEnv(cfg, os.Getenv)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills every unset field that has a default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	if cfg.Chat.MaxTokens == 0 {
		cfg.Chat.MaxTokens = DefaultMaxTokens
	}
	if cfg.Chat.Temperature == nil {
		t := DefaultTemperature
		cfg.Chat.Temperature = &t
	}
	if cfg.Chat.Timeout == 0 {
		cfg.Chat.Timeout = DefaultChatTimeout
	}

	if cfg.Chanting.SampleRate == 0 {
		cfg.Chanting.SampleRate = chant.DefaultSampleRate
	}
	if cfg.Chanting.FrameDuration == 0 {
		cfg.Chanting.FrameDuration = audio.DefaultFrameDuration
	}
	if cfg.Chanting.IdleTimeout == 0 {
		cfg.Chanting.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Chanting.MaxPlayers == 0 {
		cfg.Chanting.MaxPlayers = DefaultMaxPlayers
	}
}

// ApplyEnv fills an empty OpenAI API key from OPENAI_API_KEY using getenv.
// Other backends read their own environment variables when the key is empty.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	fill := func(e *ProviderEntry) {
		if e.Name == "openai" && e.APIKey == "" {
			e.APIKey = getenv("OPENAI_API_KEY")
		}
	}
	fill(&cfg.Providers.LLM)
	for i := range cfg.Providers.LLMFallbacks {
		fill(&cfg.Providers.LLMFallbacks[i])
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout %s must not be negative", cfg.Server.ShutdownTimeout))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Providers
	validateProviderName("providers.llm", cfg.Providers.LLM.Name)
	if cfg.Providers.LLM.Name == "" {
		if len(cfg.Providers.LLMFallbacks) > 0 {
			errs = append(errs, errors.New("providers.llm_fallbacks requires providers.llm"))
		} else {
			slog.Warn("no LLM provider configured; chat will answer from keyword rules only")
		}
	}
	for i, fb := range cfg.Providers.LLMFallbacks {
		prefix := fmt.Sprintf("providers.llm_fallbacks[%d]", i)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		validateProviderName(prefix, fb.Name)
	}

	// Database
	if cfg.Database.MaxConns < 0 {
		errs = append(errs, fmt.Errorf("database.max_conns %d must not be negative", cfg.Database.MaxConns))
	}
	if cfg.Database.PostgresDSN == "" && cfg.Temples.SeedFile == "" {
		slog.Warn("neither database.postgres_dsn nor temples.seed_file is set; the temple directory will be empty")
	}

	// Chat
	if cfg.Chat.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("chat.max_tokens %d must not be negative", cfg.Chat.MaxTokens))
	}
	if t := cfg.Chat.Temperature; t != nil && (*t < 0 || *t > 2) {
		errs = append(errs, fmt.Errorf("chat.temperature %.2f is out of range [0, 2]", *t))
	}
	if cfg.Chat.Timeout < 0 {
		errs = append(errs, fmt.Errorf("chat.timeout %s must not be negative", cfg.Chat.Timeout))
	}
	if cfg.Chat.CircuitBreaker.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("chat.circuit_breaker.max_failures %d must not be negative", cfg.Chat.CircuitBreaker.MaxFailures))
	}
	if cfg.Chat.CircuitBreaker.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("chat.circuit_breaker.reset_timeout %s must not be negative", cfg.Chat.CircuitBreaker.ResetTimeout))
	}

	// Chanting
	ch := cfg.Chanting
	if ch.SampleRate != 0 && (ch.SampleRate < 8000 || ch.SampleRate > 192000) {
		errs = append(errs, fmt.Errorf("chanting.sample_rate %d is out of range [8000, 192000]", ch.SampleRate))
	}
	if ch.FrameDuration < 0 || ch.FrameDuration > time.Second {
		errs = append(errs, fmt.Errorf("chanting.frame_duration %s is out of range [0, 1s]", ch.FrameDuration))
	}
	if v := ch.DefaultVolume; v != nil && (*v < 0 || *v > 100) {
		errs = append(errs, fmt.Errorf("chanting.default_volume %d is out of range [0, 100]", *v))
	}
	if ch.IdleTimeout < 0 {
		errs = append(errs, fmt.Errorf("chanting.idle_timeout %s must not be negative", ch.IdleTimeout))
	}
	if ch.MaxPlayers < 0 {
		errs = append(errs, fmt.Errorf("chanting.max_players %d must not be negative", ch.MaxPlayers))
	}

	// Track duplicate id detection
	idsSeen := make(map[string]int, len(ch.Tracks))
	for i, t := range chant.WithDefaultRecipes(ch.Tracks) {
		prefix := fmt.Sprintf("chanting.tracks[%d]", i)
		if err := t.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", prefix, err))
		}
		if t.ID == "" {
			continue
		}
		if prev, ok := idsSeen[t.ID]; ok {
			errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of chanting.tracks[%d]", prefix, t.ID, prev))
		}
		idsSeen[t.ID] = i
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// [ValidProviderNames].
func validateProviderName(field, name string) {
	if name == "" || slices.Contains(ValidProviderNames, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"field", field,
		"name", name,
		"known", ValidProviderNames,
	)
}
