// Package agent implements the specialist agents that answer routed queries.
//
// A Specialist owns one domain: a system prompt, a knowledge-base topic, and
// the routing vocabulary the router matches against incoming queries. Answers
// are grounded on retrieved passages and streamed as events; reasoning
// segments the model wraps in thinking tags are surfaced as separate events
// and never leak into answer text.
//
// The generation path carries the resilience stack for upstream model calls:
// a token-bucket rate limiter, exponential-backoff retries for transient
// failures, and a circuit breaker that sheds load after repeated errors.
package agent

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/iecho-project/iecho/internal/citation"
	"github.com/iecho-project/iecho/internal/knowledge"
	"github.com/iecho-project/iecho/internal/session"
)

const (
	// fallbackAnswer is returned when the model produces an empty response.
	fallbackAnswer = "I apologize, but I couldn't generate a response. Please try rephrasing your question."

	// retrievalTimeout bounds knowledge-base lookup so a slow database
	// surfaces well before the overall answer deadline.
	retrievalTimeout = 5 * time.Second

	// defaultRateLimit and defaultRateBurst shape the token bucket guarding
	// upstream model calls.
	defaultRateLimit = rate.Limit(10)
	defaultRateBurst = 30
)

// Failure classes wrapped into errors returned by Answer. Callers use
// errors.Is against these instead of matching message text.
var (
	// ErrRetrievalFailed marks knowledge-base lookup failures.
	ErrRetrievalFailed = errors.New("knowledge retrieval failed")

	// ErrGenerationFailed marks model call failures after retries are spent.
	ErrGenerationFailed = errors.New("response generation failed")

	// ErrModelUnavailable marks requests rejected before reaching the model,
	// currently only by an open circuit breaker.
	ErrModelUnavailable = errors.New("model unavailable")
)

// Definition declares a specialist: its identity, routing vocabulary, and
// the knowledge-base topic its answers are grounded on.
type Definition struct {
	// Name is the registry key, e.g. "tb".
	Name string

	// Topic scopes knowledge retrieval. Empty for fixed-reply specialists.
	Topic string

	// TriggerTerms is the routing vocabulary matched against queries.
	TriggerTerms []string

	// SystemPrompt is the model instruction establishing the specialist's
	// domain and answer style.
	SystemPrompt string

	// FixedReply, when set, makes Answer return this text verbatim without
	// retrieval or generation. Used for the out-of-domain reply.
	FixedReply string
}

// Retriever fetches topic-scoped passages for grounding an answer.
type Retriever interface {
	Retrieve(ctx context.Context, topic, query string) ([]knowledge.Passage, error)
}

// Image is a decoded upload attached to a query.
type Image struct {
	Data      []byte
	MediaType string // e.g. "image/png"
}

// Request carries one conversation turn's inputs to a specialist.
type Request struct {
	Query   string
	History []session.Exchange
	Image   *Image

	// Citations, when non-nil, collects the provenance of retrieved
	// passages for the final response.
	Citations *citation.Aggregator
}

// Config assembles a Specialist's dependencies.
type Config struct {
	Genkit    *genkit.Genkit
	Retriever Retriever
	ModelName string // fully qualified, e.g. "googleai/gemini-2.5-flash"
	Logger    *slog.Logger

	// Retry overrides the retry policy; zero value uses DefaultRetryConfig.
	Retry RetryConfig

	// Breaker overrides circuit breaker thresholds; zero values use defaults.
	Breaker CircuitBreakerConfig

	// Limiter overrides the upstream rate limiter; nil uses the package
	// default bucket.
	Limiter *rate.Limiter
}

// Specialist answers queries for one domain.
//
// Specialist is safe for concurrent use by multiple goroutines.
type Specialist struct {
	def       Definition
	g         *genkit.Genkit
	retriever Retriever
	modelName string
	logger    *slog.Logger

	retry   RetryConfig
	breaker *CircuitBreaker
	limiter *rate.Limiter
}

// New creates a Specialist from its definition and dependencies.
func New(def Definition, cfg Config) (*Specialist, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("definition name is required")
	}
	if def.FixedReply == "" {
		if cfg.Genkit == nil {
			return nil, fmt.Errorf("genkit instance is required for %s", def.Name)
		}
		if cfg.Retriever == nil {
			return nil, fmt.Errorf("retriever is required for %s", def.Name)
		}
		if cfg.ModelName == "" {
			return nil, fmt.Errorf("model name is required for %s", def.Name)
		}
		if def.Topic == "" {
			return nil, fmt.Errorf("topic is required for %s", def.Name)
		}
		if def.SystemPrompt == "" {
			return nil, fmt.Errorf("system prompt is required for %s", def.Name)
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retry := cfg.Retry
	if retry == (RetryConfig{}) {
		retry = DefaultRetryConfig()
	}
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(defaultRateLimit, defaultRateBurst)
	}

	return &Specialist{
		def:       def,
		g:         cfg.Genkit,
		retriever: cfg.Retriever,
		modelName: cfg.ModelName,
		logger:    logger,
		retry:     retry,
		breaker:   NewCircuitBreaker(cfg.Breaker),
		limiter:   limiter,
	}, nil
}

// Name returns the registry key.
func (s *Specialist) Name() string { return s.def.Name }

// Topic returns the knowledge-base topic scope.
func (s *Specialist) Topic() string { return s.def.Topic }

// TriggerTerms returns the routing vocabulary. The slice is shared; callers
// must not modify it.
func (s *Specialist) TriggerTerms() []string { return s.def.TriggerTerms }

// Answer produces the specialist's response for one turn, emitting events as
// they are generated. The returned text is exactly the concatenation of the
// content events emitted.
//
// Answer blocks until generation completes or ctx is done. Retrieved passage
// provenance is recorded in req.Citations when set.
func (s *Specialist) Answer(ctx context.Context, req Request, emit EmitFunc) (string, error) {
	if emit == nil {
		emit = nopEmit
	}

	if s.def.FixedReply != "" {
		if err := emit(ctx, Event{Type: EventContent, Text: s.def.FixedReply}); err != nil {
			return "", fmt.Errorf("emitting reply: %w", err)
		}
		return s.def.FixedReply, nil
	}

	passages, err := s.retrievePassages(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRetrievalFailed, err)
	}
	if req.Citations != nil {
		for _, p := range passages {
			req.Citations.Add(citation.Citation{
				Title:      citation.TitleFromSource(p.Source),
				Source:     p.Source,
				Confidence: p.Score,
			})
		}
	}

	parser := newStreamParser(emit)
	if err := s.generate(ctx, req, passages, parser); err != nil {
		return "", err
	}
	if err := parser.finish(ctx); err != nil {
		return "", fmt.Errorf("closing reasoning segment: %w", err)
	}

	text := parser.finalText()
	if text == "" {
		// Reasoning-only or empty output; substitute the fallback through
		// the parser so the streamed frames and final text stay identical.
		if err := parser.feed(ctx, fallbackAnswer); err != nil {
			return "", fmt.Errorf("emitting fallback: %w", err)
		}
		text = parser.finalText()
	}
	return text, nil
}

// retrievePassages looks up grounding passages for the contextualized query.
func (s *Specialist) retrievePassages(ctx context.Context, req Request) ([]knowledge.Passage, error) {
	rctx, cancel := context.WithTimeout(ctx, retrievalTimeout)
	defer cancel()

	query := ContextualQuery(req.Query, req.History)
	passages, err := s.retriever.Retrieve(rctx, s.def.Topic, query)
	if err != nil {
		return nil, fmt.Errorf("retrieving %s passages: %w", s.def.Topic, err)
	}

	s.logger.Debug("passages retrieved",
		"specialist", s.def.Name,
		"count", len(passages),
	)
	return passages, nil
}

// generate runs the model call behind the circuit breaker and retry policy,
// feeding streamed chunks through parser.
func (s *Specialist) generate(ctx context.Context, req Request, passages []knowledge.Passage, parser *streamParser) error {
	opts := []ai.GenerateOption{
		ai.WithModelName(s.modelName),
		ai.WithSystem(s.def.SystemPrompt),
		ai.WithMessages(buildMessages(req)...),
		ai.WithStreaming(func(cbCtx context.Context, chunk *ai.ModelResponseChunk) error {
			return parser.feed(cbCtx, chunk.Text())
		}),
	}
	if len(passages) > 0 {
		docs := make([]*ai.Document, len(passages))
		for i, p := range passages {
			docs[i] = ai.DocumentFromText(p.Content, map[string]any{"source": p.Source})
		}
		opts = append(opts, ai.WithDocs(docs...))
	}

	if err := s.breaker.Allow(); err != nil {
		s.logger.Warn("circuit breaker is open, rejecting request",
			"specialist", s.def.Name,
			"state", s.breaker.State().String(),
		)
		return fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}

	if err := s.executeWithRetry(ctx, opts, parser); err != nil {
		s.breaker.Failure()
		return fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	s.breaker.Success()
	return nil
}

// executeWithRetry calls the model with exponential backoff on transient
// errors. Each attempt is rate limited. Once any event has reached the
// caller a retry would duplicate streamed frames, so the error is returned
// instead.
func (s *Specialist) executeWithRetry(ctx context.Context, opts []ai.GenerateOption, parser *streamParser) error {
	var lastErr error
	delay := s.retry.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= s.retry.MaxRetries; attempt++ {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("rate limit wait: %w", err)
			}
		}

		_, err := genkit.Generate(ctx, s.g, opts...)
		if err == nil {
			s.logger.Debug("generation succeeded",
				"specialist", s.def.Name,
				"attempts", attempt+1,
				"elapsed", time.Since(start),
			)
			return nil
		}

		lastErr = err

		if !retryableError(err) {
			return err
		}
		if parser.emitted() {
			return fmt.Errorf("aborting retry after partial stream: %w", err)
		}
		if attempt == s.retry.MaxRetries {
			break
		}

		s.logger.Debug("retrying generation",
			"specialist", s.def.Name,
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, s.retry.MaxInterval)
		}
	}

	return fmt.Errorf("after %d retries (elapsed: %v): %w",
		s.retry.MaxRetries, time.Since(start), lastErr)
}

// buildMessages converts the conversation window and current query into
// model messages. The image, when present, rides on the final user message.
func buildMessages(req Request) []*ai.Message {
	msgs := make([]*ai.Message, 0, len(req.History)*2+1)
	for _, ex := range req.History {
		msgs = append(msgs,
			ai.NewUserMessage(ai.NewTextPart(ex.Query)),
			ai.NewModelMessage(ai.NewTextPart(ex.Answer)),
		)
	}

	parts := []*ai.Part{ai.NewTextPart(req.Query)}
	if req.Image != nil {
		parts = append(parts, imagePart(req.Image))
	}
	return append(msgs, ai.NewUserMessage(parts...))
}

// imagePart encodes a decoded image as a data-URL media part.
func imagePart(img *Image) *ai.Part {
	b64 := base64.StdEncoding.EncodeToString(img.Data)
	return ai.NewMediaPart(img.MediaType, "data:"+img.MediaType+";base64,"+b64)
}

// ContextualQuery rewrites a follow-up query for retrieval by prefixing the
// previous question, so "what about the dosage?" still lands near treatment
// passages in vector space.
func ContextualQuery(query string, history []session.Exchange) string {
	if len(history) == 0 {
		return query
	}
	prev := history[len(history)-1].Query
	if prev == "" {
		return query
	}
	return "Previous question: " + prev + "\nCurrent question: " + query
}
