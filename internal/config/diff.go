package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only chat tuning and the log level are applied without a restart; every
// other changed section is listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// ChatChanged is true when max_tokens, temperature, timeout or the
	// rules file differ.
	ChatChanged bool

	RestartRequired []string
}

// Empty reports whether the diff carries no change at all.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.ChatChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oc, nc := old.Chat, new.Chat
	if oc.MaxTokens != nc.MaxTokens || oc.Timeout != nc.Timeout ||
		oc.RulesFile != nc.RulesFile || !sameFloat(oc.Temperature, nc.Temperature) {
		d.ChatChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr || !sameTLS(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !sameProvider(old.Providers.LLM, new.Providers.LLM) ||
		!slices.EqualFunc(old.Providers.LLMFallbacks, new.Providers.LLMFallbacks, sameProvider) ||
		oc.CircuitBreaker != nc.CircuitBreaker {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Database != new.Database {
		d.RestartRequired = append(d.RestartRequired, "database")
	}
	if old.Temples != new.Temples {
		d.RestartRequired = append(d.RestartRequired, "temples")
	}
	if !sameChanting(old.Chanting, new.Chanting) {
		d.RestartRequired = append(d.RestartRequired, "chanting")
	}
	return d
}

func sameFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameTLS(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// sameProvider ignores Options, which are opaque to the server.
func sameProvider(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL && a.Model == b.Model
}

func sameChanting(a, b ChantingConfig) bool {
	return a.SampleRate == b.SampleRate &&
		a.FrameDuration == b.FrameDuration &&
		a.Volume() == b.Volume() &&
		a.IdleTimeout == b.IdleTimeout &&
		a.MaxPlayers == b.MaxPlayers &&
		slices.Equal(a.Tracks, b.Tracks)
}
