package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iecho-project/iecho/db"
	"github.com/iecho-project/iecho/internal/agent"
	"github.com/iecho-project/iecho/internal/api"
	"github.com/iecho-project/iecho/internal/config"
	"github.com/iecho-project/iecho/internal/docstore"
	"github.com/iecho-project/iecho/internal/engine"
	"github.com/iecho-project/iecho/internal/feedback"
	"github.com/iecho-project/iecho/internal/knowledge"
	"github.com/iecho-project/iecho/internal/log"
	"github.com/iecho-project/iecho/internal/observability"
	"github.com/iecho-project/iecho/internal/router"
	"github.com/iecho-project/iecho/internal/session"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup. Call Close() to release.
func Setup(ctx context.Context, cfg *config.Config) (_ *App, retErr error) {
	logger := log.New(log.Config{Level: cfg.SlogLevel(), JSON: cfg.LogJSON})
	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	// Tracing first: Genkit captures the TracerProvider at Init
	a.otelShutdown = provideOtelShutdown(ctx, cfg, logger)

	pool, err := provideDBPool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Pool = pool

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	embedder := provideEmbedder(g, cfg)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}

	store, err := knowledge.NewStore(pool, embedder, knowledge.Config{
		TopK:   cfg.RetrieveTopK,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating knowledge store: %w", err)
	}

	registry, err := provideRegistry(g, store, cfg, logger)
	if err != nil {
		return nil, err
	}

	a.Sessions = session.New(session.Config{Logger: logger})

	fbStore, err := provideFeedbackStore(cfg, pool, logger)
	if err != nil {
		return nil, err
	}
	correlator, err := feedback.NewCorrelator(fbStore, logger)
	if err != nil {
		return nil, fmt.Errorf("creating feedback correlator: %w", err)
	}
	a.Correlator = correlator

	// The document surface is optional: without a bucket the endpoints
	// report "not configured" instead of failing startup.
	if cfg.DocumentsBucket != "" {
		docs, err := docstore.New(ctx, docstore.Config{
			Bucket: cfg.DocumentsBucket,
			Region: cfg.AWSRegion,
			Logger: logger,
		})
		if err != nil {
			logger.Warn("document store unavailable, documents endpoints disabled",
				"bucket", cfg.DocumentsBucket, "error", err)
		} else {
			a.Docs = docs
		}
	}

	eng, err := engine.New(engine.Config{
		Registry:   registry,
		Sessions:   a.Sessions,
		Correlator: correlator,
		Genkit:     g,
		ModelName:  cfg.FullModelName(),
		Logger:     logger,
		Timeout:    time.Duration(cfg.TurnTimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	a.Engine = eng

	srvCfg := api.Config{
		Logger:              logger,
		Engine:              eng,
		Correlator:          correlator,
		Region:              cfg.AWSRegion,
		KnowledgeConfigured: true,
		FeedbackConfigured:  true,
		CORSOrigins:         cfg.CORSOrigins,
		TrustProxy:          cfg.TrustProxy,
		IsDev:               cfg.IsDev(),
		RateBurst:           cfg.RateBurst,
	}
	if a.Docs != nil {
		srvCfg.Docs = a.Docs
	}
	server, err := api.NewServer(srvCfg)
	if err != nil {
		return nil, fmt.Errorf("creating API server: %w", err)
	}
	a.Handler = server.Handler()

	// Background work: expire idle sessions until Close
	appCtx, cancel := context.WithCancel(ctx)
	a.ctx = appCtx
	a.cancel = cancel
	go a.Sessions.Run(appCtx)

	return a, nil
}

// provideOtelShutdown wires OTLP trace export when tracing is enabled.
// Must run before provideGenkit so the TracerProvider is ready.
func provideOtelShutdown(ctx context.Context, cfg *config.Config, logger log.Logger) func() {
	tc := cfg.Tracing
	if !tc.Enabled {
		return func() {}
	}

	shutdown, err := observability.Setup(ctx, observability.Config{
		Endpoint:    tc.Endpoint,
		Environment: tc.Environment,
		ServiceName: tc.ServiceName,
		Logger:      logger,
	})
	if err != nil {
		logger.Warn("setting up tracing", "error", err)
		return func() {}
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideDBPool runs migrations and creates the PostgreSQL connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config, logger log.Logger) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// provideGenkit initializes Genkit with the configured AI provider.
// Call ordering in Setup ensures tracing is set up first.
func provideGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, error) {
	switch cfg.Provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g := genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit model registration (no auto-discovery)
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		logger.Info("initialized Genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)
		return g, nil

	default: // gemini
		g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("initialized Genkit with gemini provider", "model", cfg.ModelName)
		return g, nil
	}
}

// provideEmbedder looks up the embedder registered by the provider plugin.
// Ollama embedders are keyed by server address (registered in provideGenkit),
// Gemini embedders by model name.
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	switch cfg.Provider {
	case config.ProviderOllama:
		return ollama.Embedder(g, cfg.OllamaHost)
	default:
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}
}

// provideRegistry builds the specialist agents and the routing table.
// The reject agent is the fallback for out-of-scope and ambiguous queries.
func provideRegistry(g *genkit.Genkit, store *knowledge.Store, cfg *config.Config, logger log.Logger) (*router.Registry, error) {
	reject, err := agent.New(agent.RejectDefinition(), agent.Config{Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("creating reject agent: %w", err)
	}

	registry, err := router.NewRegistry(reject)
	if err != nil {
		return nil, err
	}

	specialistCfg := agent.Config{
		Genkit:    g,
		Retriever: store,
		ModelName: cfg.FullModelName(),
		Logger:    logger,
	}
	for _, def := range []agent.Definition{agent.TBDefinition(), agent.AgricultureDefinition()} {
		s, err := agent.New(def, specialistCfg)
		if err != nil {
			return nil, fmt.Errorf("creating %s agent: %w", def.Name, err)
		}
		if err := registry.Register(s); err != nil {
			return nil, err
		}
	}

	return registry, nil
}

// provideFeedbackStore selects the feedback backend from configuration.
func provideFeedbackStore(cfg *config.Config, pool *pgxpool.Pool, logger log.Logger) (feedback.Store, error) {
	switch cfg.FeedbackBackend {
	case config.FeedbackFile:
		store, err := feedback.NewFileStore(cfg.FeedbackDir)
		if err != nil {
			return nil, fmt.Errorf("creating file feedback store: %w", err)
		}
		logger.Info("feedback backend ready", "backend", "file", "dir", cfg.FeedbackDir)
		return store, nil
	case config.FeedbackMemory:
		logger.Info("feedback backend ready", "backend", "memory")
		return feedback.NewMemoryStore(), nil
	default:
		store, err := feedback.NewPostgresStore(pool)
		if err != nil {
			return nil, fmt.Errorf("creating postgres feedback store: %w", err)
		}
		logger.Info("feedback backend ready", "backend", "postgres")
		return store, nil
	}
}
