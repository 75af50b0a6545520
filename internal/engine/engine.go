// Package engine orchestrates one chat turn end to end: request validation,
// session resolution, routing, specialist execution, and the post-turn
// bookkeeping (history append, feedback correlation, follow-up suggestions).
//
// The engine is transport-neutral. Buffered and streaming HTTP handlers, and
// the MCP tool, all run the same Query path; streaming callers receive
// incremental events through the EmitFunc and the final aggregate through the
// returned Response.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"

	"github.com/iecho-project/iecho/internal/agent"
	"github.com/iecho-project/iecho/internal/citation"
	"github.com/iecho-project/iecho/internal/feedback"
	"github.com/iecho-project/iecho/internal/log"
	"github.com/iecho-project/iecho/internal/router"
	"github.com/iecho-project/iecho/internal/session"
)

// DefaultTimeout bounds one specialist invocation, covering retrieval and
// generation together.
const DefaultTimeout = 25 * time.Second

// anonymousUser stands in when a request carries no user id.
const anonymousUser = "anonymous"

// ErrTimeout marks turns that exceeded the specialist invocation budget.
// Transports surface it as a timeout status or a terminal error frame.
var ErrTimeout = errors.New("chat turn timed out")

// Config assembles the engine's collaborators. All fields except Timeout are
// required.
type Config struct {
	Registry   *router.Registry
	Sessions   *session.Store
	Correlator *feedback.Correlator
	Genkit     *genkit.Genkit
	ModelName  string
	Logger     log.Logger

	// Timeout bounds one specialist invocation. Zero uses DefaultTimeout.
	Timeout time.Duration
}

// Engine runs chat turns. Safe for concurrent use; per-turn state lives on
// the stack of each Query call.
type Engine struct {
	registry   *router.Registry
	sessions   *session.Store
	correlator *feedback.Correlator
	g          *genkit.Genkit
	modelName  string
	logger     log.Logger
	timeout    time.Duration
}

// New validates cfg and builds an Engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if cfg.Correlator == nil {
		return nil, fmt.Errorf("feedback correlator is required")
	}
	if cfg.Genkit == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Engine{
		registry:   cfg.Registry,
		sessions:   cfg.Sessions,
		correlator: cfg.Correlator,
		g:          cfg.Genkit,
		modelName:  cfg.ModelName,
		logger:     cfg.Logger,
		timeout:    cfg.Timeout,
	}, nil
}

// Request is one inbound chat turn.
type Request struct {
	Query     string
	UserID    string
	SessionID string

	// Image is an optional base64-encoded PNG, JPEG, GIF, or WEBP payload.
	Image string
}

// Response is the completed turn. The same object serializes as the /chat
// body and as the final bare frame of /chat-stream.
type Response struct {
	Text              string              `json:"response"`
	SessionID         string              `json:"sessionId"`
	Citations         []citation.Citation `json:"citations"`
	UserID            string              `json:"userId"`
	ResponseID        string              `json:"responseId"`
	FollowUpQuestions []string            `json:"followUpQuestions"`
	CreatedAt         time.Time           `json:"-"`
}

// Query runs one chat turn. Events stream through emit in specialist
// emission order, preceded by a routing event once validation has passed;
// emit may be nil for buffered callers.
//
// The turn's response id is correlated for feedback before Query returns, so
// a client rating the answer immediately cannot race the recording.
func (e *Engine) Query(ctx context.Context, req Request, emit agent.EmitFunc) (*Response, error) {
	if emit == nil {
		emit = func(context.Context, agent.Event) error { return nil }
	}

	if err := validateQuery(req.Query); err != nil {
		return nil, err
	}
	img, err := decodeImage(req.Image)
	if err != nil {
		return nil, err
	}

	userID := req.UserID
	if userID == "" {
		userID = anonymousUser
	}
	sess := e.sessions.CreateOrTouch(req.SessionID, userID)

	if err := emit(ctx, agent.Event{Type: agent.EventRouting}); err != nil {
		return nil, fmt.Errorf("emitting routing event: %w", err)
	}
	spec := e.registry.Route(req.Query)
	agg := citation.NewAggregator()

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	text, err := spec.Answer(runCtx, agent.Request{
		Query:     req.Query,
		History:   sess.Exchanges,
		Image:     img,
		Citations: agg,
	}, emit)
	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: specialist %s: %v", ErrTimeout, spec.Name(), err)
		}
		return nil, fmt.Errorf("specialist %s: %w", spec.Name(), err)
	}

	now := time.Now().UTC()
	resp := &Response{
		Text:              text,
		SessionID:         sess.ID,
		Citations:         agg.Finalize(),
		UserID:            userID,
		ResponseID:        uuid.New().String(),
		FollowUpQuestions: e.followUps(ctx, req.Query, text, sess.Exchanges),
		CreatedAt:         now,
	}

	if err := e.sessions.Append(sess.ID, userID, session.Exchange{
		Query:  req.Query,
		Answer: text,
		At:     now,
	}); err != nil {
		e.logger.Warn("appending exchange to session",
			"session_id", sess.ID,
			"error", err,
		)
	}

	// A failed correlation only disables rating for this turn; the answer
	// itself still returns.
	if err := e.correlator.Record(ctx, feedback.ResponseMeta{
		ResponseID: resp.ResponseID,
		UserID:     userID,
		SessionID:  sess.ID,
		Agent:      spec.Name(),
		Query:      req.Query,
		Answer:     text,
		CreatedAt:  now,
	}); err != nil {
		e.logger.Error("recording response for feedback",
			"response_id", resp.ResponseID,
			"error", err,
		)
	}

	e.logger.Info("chat turn complete",
		"user_id", userID,
		"session_id", sess.ID,
		"response_id", resp.ResponseID,
		"agent", spec.Name(),
		"query_len", len(req.Query),
		"response_len", len(text),
		"citations", len(resp.Citations),
		"image", img != nil,
	)
	return resp, nil
}
