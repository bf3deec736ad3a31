package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/templeguardian/pkg/provider/llm"
	"github.com/MrWong99/templeguardian/pkg/provider/llm/mock"
)

var testReq = llm.CompletionRequest{Messages: []llm.Message{{Role: llm.RoleUser, Content: "darshan timings?"}}}

func TestLLMFailover_PrimarySuccess(t *testing.T) {
	primary := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "primary"}, ModelName: "gpt-4o-mini"}
	backup := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "backup"}}

	f := NewLLMFailover(primary, "openai", FallbackConfig{})
	f.AddFallback("ollama", backup)

	resp, err := f.Complete(context.Background(), testReq)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "primary" {
		t.Errorf("Content = %q, want primary", resp.Content)
	}
	if len(backup.Calls()) != 0 {
		t.Error("backup was called although the primary succeeded")
	}
	if f.Model() != "gpt-4o-mini" {
		t.Errorf("Model = %q", f.Model())
	}
	if names := f.Names(); len(names) != 2 || names[1] != "ollama" {
		t.Errorf("Names = %v", names)
	}
}

func TestLLMFailover_Failover(t *testing.T) {
	primary := &mock.Provider{CompleteErr: errors.New("rate limited")}
	backup := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "backup"}}

	f := NewLLMFailover(primary, "openai", FallbackConfig{})
	f.AddFallback("anthropic", backup)

	resp, err := f.Complete(context.Background(), testReq)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "backup" {
		t.Errorf("Content = %q, want backup", resp.Content)
	}
	if n := len(primary.Calls()); n != 1 {
		t.Errorf("primary called %d times, want exactly 1 (no retries)", n)
	}
}

func TestLLMFailover_AllFail(t *testing.T) {
	f := NewLLMFailover(&mock.Provider{CompleteErr: errors.New("down")}, "openai", FallbackConfig{})
	f.AddFallback("gemini", &mock.Provider{CompleteErr: errors.New("quota")})

	_, err := f.Complete(context.Background(), testReq)
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestLLMFailover_SkipsOpenBreaker(t *testing.T) {
	primary := &mock.Provider{CompleteErr: errors.New("down")}
	backup := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "ok"}}

	f := NewLLMFailover(primary, "openai", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour},
	})
	f.AddFallback("ollama", backup)

	for range 4 {
		if _, err := f.Complete(context.Background(), testReq); err != nil {
			t.Fatalf("Complete: %v", err)
		}
	}
	if n := len(primary.Calls()); n != 2 {
		t.Errorf("primary called %d times, want 2 before its breaker opened", n)
	}
	if st := f.Breaker("openai").State(); st != StateOpen {
		t.Errorf("primary breaker = %v, want open", st)
	}
	if f.Breaker("missing") != nil {
		t.Error("Breaker(missing) should be nil")
	}
}

func TestLLMFailover_CancelledContext(t *testing.T) {
	primary := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "late"}}
	f := NewLLMFailover(primary, "openai", FallbackConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.Complete(ctx, testReq); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if n := len(primary.Calls()); n != 0 {
		t.Errorf("primary called %d times after cancel", n)
	}
}
