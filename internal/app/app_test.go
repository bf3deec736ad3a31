package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/templeguardian/internal/app"
	"github.com/MrWong99/templeguardian/internal/chat"
	"github.com/MrWong99/templeguardian/internal/config"
	"github.com/MrWong99/templeguardian/internal/temple"
	"github.com/MrWong99/templeguardian/pkg/provider/llm"
	llmmock "github.com/MrWong99/templeguardian/pkg/provider/llm/mock"
)

const seedYAML = `temples:
  - id: konark
    name: Konark Sun Temple
    location: Konark
    state: Odisha
    deity: Surya Dev
  - id: kedarnath
    name: Kedarnath Temple
    location: Kedarnath
    state: Uttarakhand
    deity: Lord Shiva
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// testConfig returns a defaulted config over a two-temple seed file.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromReader(strings.NewReader(`
temples:
  seed_file: ` + writeFile(t, "temples.yaml", seedYAML) + `
chanting:
  sample_rate: 8000
`))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	return cfg
}

func newApp(t *testing.T, cfg *config.Config, opts ...app.Option) *app.App {
	t.Helper()
	a, err := app.New(context.Background(), cfg, opts...)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func getJSON(t *testing.T, h http.Handler, path string, v any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
	if v != nil && rec.Code == http.StatusOK {
		if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return rec.Code
}

func TestNew_SeedsMemoryDirectory(t *testing.T) {
	t.Parallel()

	a := newApp(t, testConfig(t))
	h := a.Handler()

	var temples []temple.Temple
	if code := getJSON(t, h, "/api/temples", &temples); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(temples) != 2 {
		t.Fatalf("got %d temples, want 2", len(temples))
	}
	if code := getJSON(t, h, "/readyz", nil); code != http.StatusOK {
		t.Errorf("readyz = %d, want 200", code)
	}
}

func TestNew_WithInjectedDependencies(t *testing.T) {
	t.Parallel()

	dir, err := temple.NewMemoryStore([]temple.Temple{{ID: "x", Name: "X", State: "Goa", Deity: "Lord Shiva"}})
	if err != nil {
		t.Fatal(err)
	}
	store := chat.NewMemoryStore()
	p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "From the model."}}

	cfg := testConfig(t)
	a := newApp(t, cfg, app.WithDirectory(dir), app.WithChatStore(store), app.WithLLM(p))
	h := a.Handler()

	var states []string
	getJSON(t, h, "/api/temples/states", &states)
	if len(states) != 1 || states[0] != "Goa" {
		t.Errorf("states = %v, want injected directory", states)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/api/chat",
		strings.NewReader(`{"session_id":"s1","agent":"temple","message":"Tell me about Konark"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("chat status = %d: %s", rec.Code, rec.Body)
	}
	if len(p.Calls()) != 1 {
		t.Errorf("llm calls = %d, want 1", len(p.Calls()))
	}
	conv, err := store.Conversation(context.Background(), "s1")
	if err != nil {
		t.Fatalf("injected store not used: %v", err)
	}
	if len(conv.Messages) != 2 {
		t.Errorf("stored %d messages, want 2", len(conv.Messages))
	}
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"missing seed file", func(c *config.Config) { c.Temples.SeedFile = "/nonexistent/temples.yaml" }},
		{"missing rules file", func(c *config.Config) { c.Chat.RulesFile = "/nonexistent/rules.yaml" }},
		{"bad dsn", func(c *config.Config) { c.Database.PostgresDSN = "postgres://%zz" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig(t)
			tc.mutate(cfg)
			if _, err := app.New(context.Background(), cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestApplyConfig(t *testing.T) {
	t.Parallel()

	var level slog.LevelVar
	cfg := testConfig(t)
	a := newApp(t, cfg, app.WithLevelVar(&level))

	rules := writeFile(t, "rules.yaml", `
agents:
  temple:
    welcome: "Welcome, pilgrim."
    groups:
      - keywords: [lamp]
        response: "Lamps are lit at dusk."
`)
	next := *cfg
	next.Server.LogLevel = config.LogDebug
	next.Chat.RulesFile = rules
	next.Chanting.MaxPlayers = 1

	d := a.ApplyConfig(&next)
	if !d.LogLevelChanged || !d.ChatChanged {
		t.Errorf("diff = %+v, want log level and chat changes", d)
	}
	if len(d.RestartRequired) != 1 || d.RestartRequired[0] != "chanting" {
		t.Errorf("RestartRequired = %v, want [chanting]", d.RestartRequired)
	}
	if level.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", level.Level())
	}

	var resp struct {
		Message chat.Message `json:"message"`
	}
	getJSON(t, a.Handler(), "/api/chat/welcome?agent=temple", &resp)
	if resp.Message.Content != "Welcome, pilgrim." {
		t.Errorf("welcome = %q, want reloaded copy", resp.Message.Content)
	}

	// Reapplying the same config is a no-op, but chanting still differs
	// from what is running.
	d = a.ApplyConfig(&next)
	if d.LogLevelChanged || d.ChatChanged {
		t.Errorf("second apply diff = %+v", d)
	}
	if len(d.RestartRequired) != 1 {
		t.Errorf("second apply RestartRequired = %v", d.RestartRequired)
	}
}

func TestApplyConfig_BadRulesKeepsCurrent(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	a := newApp(t, cfg)

	next := *cfg
	next.Chat.RulesFile = writeFile(t, "rules.yaml", "apology: [not, a, string]\n")
	a.ApplyConfig(&next)

	var resp struct {
		Message chat.Message `json:"message"`
	}
	getJSON(t, a.Handler(), "/api/chat/welcome?agent=temple", &resp)
	if want := chat.DefaultRules().Welcome(chat.AgentTemple); resp.Message.Content != want {
		t.Errorf("welcome = %q, want built-in copy", resp.Message.Content)
	}
}

func TestBuildLLM(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{CompleteErr: errors.New("primary down")}
	fallback := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "fallback"}}
	reg := config.NewRegistry()
	reg.RegisterLLM("primary", func(config.ProviderEntry) (llm.Provider, error) { return primary, nil })
	reg.RegisterLLM("fallback", func(config.ProviderEntry) (llm.Provider, error) { return fallback, nil })

	cfg := &config.Config{}
	cfg.Providers.LLM = config.ProviderEntry{Name: "primary"}
	cfg.Providers.LLMFallbacks = []config.ProviderEntry{{Name: "fallback"}}

	p, err := app.BuildLLM(cfg, reg)
	if err != nil {
		t.Fatalf("BuildLLM: %v", err)
	}
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "fallback" {
		t.Errorf("Content = %q, want fallback", resp.Content)
	}
	if len(primary.Calls()) != 1 || len(fallback.Calls()) != 1 {
		t.Errorf("calls = %d/%d, want 1/1", len(primary.Calls()), len(fallback.Calls()))
	}
}

func TestBuildLLM_NotConfiguredOrUnknown(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	p, err := app.BuildLLM(&config.Config{}, reg)
	if err != nil || p != nil {
		t.Errorf("BuildLLM(empty) = %v, %v; want nil, nil", p, err)
	}

	cfg := &config.Config{}
	cfg.Providers.LLM = config.ProviderEntry{Name: "nope"}
	if _, err := app.BuildLLM(cfg, reg); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Server.ListenAddr = "127.0.0.1:0"
	a := newApp(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

// freeAddr returns a loopback address that was free a moment ago.
func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	_ = l.Close()
	return addr
}

func TestRun_OpenAudioStreamDoesNotDelayShutdown(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Server.ListenAddr = freeAddr(t)
	cfg.Server.ShutdownTimeout = 10 * time.Second
	a := newApp(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	base := "http://" + cfg.Server.ListenAddr
	var resp *http.Response
	deadline := time.Now().Add(5 * time.Second)
	for {
		var err error
		resp, err = http.Post(base+"/api/players", "application/json", strings.NewReader(`{"deity":"Lord Shiva"}`))
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never came up: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	var created struct {
		ID string `json:"id"`
	}
	err := json.NewDecoder(resp.Body).Decode(&created)
	resp.Body.Close()
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("create player: status %d, err %v", resp.StatusCode, err)
	}

	audio, err := http.Get(base + "/api/players/" + created.ID + "/audio")
	if err != nil {
		t.Fatalf("GET audio: %v", err)
	}
	defer audio.Body.Close()
	header := make([]byte, 44)
	if _, err := io.ReadFull(audio.Body, header); err != nil {
		t.Fatalf("read WAV header: %v", err)
	}

	start := time.Now()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v, want nil", err)
		}
		if d := time.Since(start); d > 5*time.Second {
			t.Errorf("Run took %v to stop with a listener attached", d)
		}
	case <-time.After(8 * time.Second):
		t.Fatal("Run did not return while an audio stream was open")
	}
	if _, err := io.Copy(io.Discard, audio.Body); err != nil {
		t.Logf("audio stream ended with %v", err)
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	t.Parallel()

	a, err := app.New(context.Background(), testConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}

func TestSlogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   config.LogLevel
		want slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tc := range tests {
		if got := app.SlogLevel(tc.in); got != tc.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
