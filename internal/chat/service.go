package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/templeguardian/internal/observe"
	"github.com/MrWong99/templeguardian/pkg/provider/llm"
)

// Tuning holds the model call parameters that may change at runtime.
type Tuning struct {
	MaxTokens   int
	Temperature float64

	// Timeout bounds one model call. Zero means no extra deadline.
	Timeout time.Duration
}

// DefaultTuning mirrors the parameters the assistant has always used.
var DefaultTuning = Tuning{MaxTokens: 1000, Temperature: 0.7, Timeout: 30 * time.Second}

// Option is a functional option for [NewService].
type Option func(*Service)

// WithLLM sets the fallback model. Without one every unmatched message is
// answered with the apology.
func WithLLM(p llm.Provider) Option {
	return func(s *Service) { s.llm = p }
}

// WithStore sets the conversation store. Defaults to a [MemoryStore].
func WithStore(st Store) Option {
	return func(s *Service) { s.store = st }
}

// WithRules replaces [DefaultRules].
func WithRules(r Rules) Option {
	return func(s *Service) { s.rules = r }
}

// WithTuning replaces [DefaultTuning].
func WithTuning(t Tuning) Option {
	return func(s *Service) { s.tuning = t }
}

// WithMetrics records reply and model metrics to m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides time.Now for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service answers visitor messages. It is safe for concurrent use.
type Service struct {
	llm     llm.Provider
	store   Store
	metrics *observe.Metrics
	now     func() time.Time

	mu     sync.RWMutex
	rules  Rules
	tuning Tuning
}

// NewService creates a Service with the given options.
func NewService(opts ...Option) *Service {
	s := &Service{
		rules:  DefaultRules(),
		tuning: DefaultTuning,
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.store == nil {
		s.store = NewMemoryStore()
	}
	return s
}

// SetRules swaps the keyword table for subsequent replies.
func (s *Service) SetRules(r Rules) {
	s.mu.Lock()
	s.rules = r
	s.mu.Unlock()
}

// SetTuning swaps the model parameters for subsequent replies.
func (s *Service) SetTuning(t Tuning) {
	s.mu.Lock()
	s.tuning = t
	s.mu.Unlock()
}

func (s *Service) settings() (Rules, Tuning) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rules, s.tuning
}

// Welcome returns the greeting message of agent.
func (s *Service) Welcome(agent Agent) Message {
	rules, _ := s.settings()
	return s.message(SenderAI, rules.Welcome(agent), SourceWelcome)
}

// Reply answers text on behalf of agent and appends both messages to the
// session's conversation. The only errors are for invalid input; model
// failures are answered with the apology.
func (s *Service) Reply(ctx context.Context, sessionID string, agent Agent, text string) (Message, error) {
	if strings.TrimSpace(text) == "" {
		return Message{}, ErrEmptyMessage
	}
	if sessionID == "" {
		return Message{}, errors.New("chat: session id is required")
	}

	ctx, span := observe.StartSpan(ctx, observe.SpanChatReply,
		trace.WithAttributes(observe.KeyAgent.String(string(agent))))
	defer span.End()

	userMsg := s.message(SenderUser, text, "")
	rules, tuning := s.settings()

	var reply Message
	if answer, ok := rules.Match(agent, text); ok {
		reply = s.message(SenderAI, answer, SourceKeyword)
	} else {
		answer, src := s.complete(ctx, rules, tuning, agent, text)
		reply = s.message(SenderAI, answer, src)
	}
	span.SetAttributes(observe.KeyReplySource.String(string(reply.Source)))

	if s.metrics != nil {
		s.metrics.RecordChatReply(ctx, string(agent), string(reply.Source))
	}
	if err := s.store.Append(ctx, sessionID, agent, userMsg, reply); err != nil {
		observe.Logger(ctx).Warn("chat: failed to log exchange", "session_id", sessionID, "err", err)
	}
	return reply, nil
}

// History returns the conversation of sessionID.
func (s *Service) History(ctx context.Context, sessionID string) (Conversation, error) {
	c, err := s.store.Conversation(ctx, sessionID)
	if err != nil {
		return Conversation{}, fmt.Errorf("chat: history: %w", err)
	}
	return c, nil
}

// complete asks the model exactly once.
func (s *Service) complete(ctx context.Context, rules Rules, tuning Tuning, agent Agent, text string) (string, Source) {
	if s.llm == nil {
		return rules.ApologyFor(agent), SourceApology
	}
	if tuning.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, tuning.Timeout)
		defer cancel()
	}

	start := s.now()
	resp, err := s.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: rules.SystemPrompt(agent),
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: text}},
		Temperature:  tuning.Temperature,
		MaxTokens:    tuning.MaxTokens,
	})
	s.recordLLM(ctx, s.now().Sub(start), err)

	if err != nil {
		observe.Fail(trace.SpanFromContext(ctx), err, "llm failed")
		observe.Logger(ctx, "agent", agent).Warn("chat: llm fallback failed", "model", s.llm.Model(), "err", err)
		return rules.ApologyFor(agent), SourceApology
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return rules.Unclear, SourceLLM
	}
	return resp.Content, SourceLLM
}

func (s *Service) recordLLM(ctx context.Context, d time.Duration, err error) {
	if s.metrics == nil {
		return
	}
	model := s.llm.Model()
	status := "ok"
	if err != nil {
		status = "error"
		s.metrics.RecordProviderError(ctx, model, "llm")
	}
	s.metrics.RecordProviderRequest(ctx, model, "llm", status)
	s.metrics.LLMDuration.Record(ctx, d.Seconds())
}

func (s *Service) message(sender Sender, content string, src Source) Message {
	return Message{
		ID:        uuid.NewString(),
		Sender:    sender,
		Content:   content,
		Source:    src,
		Timestamp: s.now().UTC(),
	}
}
