package api

import (
	"errors"
	"net/http"

	"github.com/iecho-project/iecho/internal/engine"
	"github.com/iecho-project/iecho/internal/feedback"
	"github.com/iecho-project/iecho/internal/log"
)

// Config contains configuration for creating the API server.
type Config struct {
	Logger     log.Logger
	Engine     *engine.Engine       // Required
	Correlator *feedback.Correlator // Required
	Docs       DocumentStore        // Optional: leave nil when no bucket is configured

	// Status reporting surfaced by GET /status.
	Region              string
	KnowledgeConfigured bool
	FeedbackConfigured  bool

	CORSOrigins []string // Allowed origins; empty or a "*" entry admits any origin
	TrustProxy  bool     // Trust X-Real-IP/X-Forwarded-For headers (behind reverse proxy)
	IsDev       bool     // Disables HSTS for plain-HTTP development
	RateBurst   int      // Rate limiter burst size per IP (0 = default 60)
}

// Server is the iECHO API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates an API server with all routes configured.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("engine is required")
	}
	if cfg.Correlator == nil {
		return nil, errors.New("feedback correlator is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	ch := &chatHandler{engine: cfg.Engine, logger: logger}
	fh := &feedbackHandler{correlator: cfg.Correlator, logger: logger}
	dh := &documentsHandler{docs: cfg.Docs, logger: logger}
	sh := &statusHandler{
		region:              cfg.Region,
		knowledgeConfigured: cfg.KnowledgeConfigured,
		documentsConfigured: cfg.Docs != nil,
		feedbackConfigured:  cfg.FeedbackConfigured,
		logger:              logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", ch.chat)
	mux.HandleFunc("POST /chat-stream", ch.chatStream)
	mux.HandleFunc("POST /feedback", fh.submit)
	mux.HandleFunc("GET /status", sh.status)
	mux.HandleFunc("GET /documents", dh.list)
	mux.HandleFunc("GET /document-url/{path...}", dh.presign)

	// Rate limiter: per-IP token bucket (1 token/sec refill)
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Build middleware stack (outermost first):
	//   Recovery → RequestID → Logging → CORS → RateLimit → Routes
	// RequestID must be before Logging so request_id is available in log
	// attributes. CORS must be before RateLimit so preflight OPTIONS gets
	// proper CORS headers.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Wrap with security headers
	isDev := cfg.IsDev
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w, isDev)
		handler.ServeHTTP(w, r)
	})

	// Use a top-level mux to keep the liveness probe outside the stack
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health(logger))
	topMux.Handle("/", final)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
