package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrWong99/templeguardian/pkg/provider/llm"
)

// ErrAllFailed is returned when every backend of an [LLMFailover] failed or
// had an open breaker.
var ErrAllFailed = errors.New("resilience: all providers failed")

// FallbackConfig configures the breaker created for each backend.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

type backend struct {
	name     string
	provider llm.Provider
	breaker  *CircuitBreaker
}

// LLMFailover implements [llm.Provider] over an ordered list of backends.
// Each call goes to the first backend whose breaker admits it; a failure moves
// on to the next one. A backend is never asked twice for the same request.
type LLMFailover struct {
	cfg      FallbackConfig
	backends []backend
}

var _ llm.Provider = (*LLMFailover)(nil)

// NewLLMFailover creates a failover chain with primary as its first backend.
func NewLLMFailover(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFailover {
	f := &LLMFailover{cfg: cfg}
	f.AddFallback(primaryName, primary)
	return f
}

// AddFallback appends a backend. Backends are tried in registration order.
// It must not be called concurrently with Complete.
func (f *LLMFailover) AddFallback(name string, p llm.Provider) {
	cbCfg := f.cfg.CircuitBreaker
	cbCfg.Name = name
	f.backends = append(f.backends, backend{
		name:     name,
		provider: p,
		breaker:  NewCircuitBreaker(cbCfg),
	})
}

// Names returns the backend names in failover order.
func (f *LLMFailover) Names() []string {
	out := make([]string, len(f.backends))
	for i, b := range f.backends {
		out[i] = b.name
	}
	return out
}

// Breaker returns the breaker guarding the named backend, or nil.
func (f *LLMFailover) Breaker(name string) *CircuitBreaker {
	for _, b := range f.backends {
		if b.name == name {
			return b.breaker
		}
	}
	return nil
}

// Model returns the primary backend's model.
func (f *LLMFailover) Model() string {
	if len(f.backends) == 0 {
		return ""
	}
	return f.backends[0].provider.Model()
}

// Complete implements [llm.Provider]. A cancelled ctx stops the chain at
// once and returns the context error.
func (f *LLMFailover) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	var errs []string
	for _, b := range f.backends {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var resp *llm.CompletionResponse
		err := b.breaker.Execute(func() error {
			var innerErr error
			resp, innerErr = b.provider.Complete(ctx, req)
			return innerErr
		})
		if err == nil {
			return resp, nil
		}
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping provider (circuit open)", "provider", b.name)
		} else {
			slog.Warn("provider failed, trying next", "provider", b.name, "err", err)
		}
		errs = append(errs, fmt.Sprintf("%s: %v", b.name, err))
	}
	return nil, fmt.Errorf("%w: %s", ErrAllFailed, strings.Join(errs, "; "))
}
